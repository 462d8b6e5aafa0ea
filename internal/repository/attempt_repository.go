package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openprep/testprep-backend/internal/model"
)

// ErrAttemptNotFound is returned when no attempt record matches the query.
var ErrAttemptNotFound = errors.New("attempt record not found")

// AttemptRepository handles persisted attempt outcome records. Records are
// write-once: there is no update path, and the (test_id, user_id) unique
// constraint guarantees at most one record per learner per test.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// Insert persists a finalized attempt record. Any conflict — same attempt
// id on a requeued record, or same (test_id, user_id) when an earlier
// submission already landed — is treated as a successful no-op. This keeps
// retries and the manual/auto submission race idempotent at the database
// layer.
func (r *AttemptRepository) Insert(ctx context.Context, rec *model.TestAttemptRecord) error {
	answers, err := json.Marshal(rec.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	sectionScores, err := json.Marshal(rec.SectionScores)
	if err != nil {
		return fmt.Errorf("encode section scores: %w", err)
	}
	analytics, err := json.Marshal(rec.Analytics)
	if err != nil {
		return fmt.Errorf("encode analytics: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO attempts (id, test_id, user_id, answers, score, total_marks,
		                       percentage, started_at, finished_at, time_spent_seconds,
		                       trigger, section_scores, analytics)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT DO NOTHING`,
		rec.AttemptID, rec.TestID, rec.UserID, answers, rec.Score, rec.TotalMarks,
		rec.Percentage, rec.StartedAt, rec.FinishedAt, rec.TimeSpentSeconds,
		rec.Trigger, sectionScores, analytics)
	return err
}

// InsertBatch persists a batch of attempt records in one round trip using
// UNNEST. Conflicting rows are skipped, matching Insert semantics.
func (r *AttemptRepository) InsertBatch(ctx context.Context, recs []model.TestAttemptRecord) error {
	if len(recs) == 0 {
		return nil
	}

	n := len(recs)
	ids := make([]uuid.UUID, n)
	testIDs := make([]uuid.UUID, n)
	userIDs := make([]int, n)
	answers := make([]string, n)
	scores := make([]float64, n)
	totals := make([]float64, n)
	percentages := make([]float64, n)
	startedAts := make([]time.Time, n)
	finishedAts := make([]time.Time, n)
	timeSpents := make([]int, n)
	triggers := make([]string, n)
	sectionScores := make([]string, n)
	analytics := make([]string, n)

	for i, rec := range recs {
		a, err := json.Marshal(rec.Answers)
		if err != nil {
			return fmt.Errorf("encode answers for %s: %w", rec.AttemptID, err)
		}
		s, err := json.Marshal(rec.SectionScores)
		if err != nil {
			return fmt.Errorf("encode section scores for %s: %w", rec.AttemptID, err)
		}
		an, err := json.Marshal(rec.Analytics)
		if err != nil {
			return fmt.Errorf("encode analytics for %s: %w", rec.AttemptID, err)
		}
		ids[i] = rec.AttemptID
		testIDs[i] = rec.TestID
		userIDs[i] = rec.UserID
		answers[i] = string(a)
		scores[i] = rec.Score
		totals[i] = rec.TotalMarks
		percentages[i] = rec.Percentage
		startedAts[i] = rec.StartedAt
		finishedAts[i] = rec.FinishedAt
		timeSpents[i] = rec.TimeSpentSeconds
		triggers[i] = string(rec.Trigger)
		sectionScores[i] = string(s)
		analytics[i] = string(an)
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO attempts (id, test_id, user_id, answers, score, total_marks,
		                       percentage, started_at, finished_at, time_spent_seconds,
		                       trigger, section_scores, analytics)
		 SELECT * FROM UNNEST(
		     $1::uuid[], $2::uuid[], $3::int[], $4::jsonb[], $5::float8[],
		     $6::float8[], $7::float8[], $8::timestamptz[], $9::timestamptz[],
		     $10::int[], $11::text[], $12::jsonb[], $13::jsonb[])
		 ON CONFLICT DO NOTHING`,
		ids, testIDs, userIDs, answers, scores, totals, percentages,
		startedAts, finishedAts, timeSpents, triggers, sectionScores, analytics)
	return err
}

// GetByTestAndUser retrieves the attempt record for one learner on one test.
func (r *AttemptRepository) GetByTestAndUser(ctx context.Context, testID uuid.UUID, userID int) (*model.TestAttemptRecord, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, test_id, user_id, answers, score, total_marks, percentage,
		        started_at, finished_at, time_spent_seconds, trigger,
		        section_scores, analytics
		 FROM attempts WHERE test_id = $1 AND user_id = $2`, testID, userID)
	return scanAttempt(row)
}

// GetByID retrieves an attempt record by its UUID.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.TestAttemptRecord, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, test_id, user_id, answers, score, total_marks, percentage,
		        started_at, finished_at, time_spent_seconds, trigger,
		        section_scores, analytics
		 FROM attempts WHERE id = $1`, id)
	return scanAttempt(row)
}

// ListByTest retrieves all attempt records for a test, ordered for ranking:
// score descending, then faster completion first, then earlier finish.
func (r *AttemptRepository) ListByTest(ctx context.Context, testID uuid.UUID) ([]model.TestAttemptRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, test_id, user_id, answers, score, total_marks, percentage,
		        started_at, finished_at, time_spent_seconds, trigger,
		        section_scores, analytics
		 FROM attempts WHERE test_id = $1
		 ORDER BY score DESC, time_spent_seconds ASC, finished_at ASC`, testID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []model.TestAttemptRecord
	for rows.Next() {
		rec, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

// ListByUser retrieves all attempt records for a learner, most recent first.
func (r *AttemptRepository) ListByUser(ctx context.Context, userID int) ([]model.TestAttemptRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, test_id, user_id, answers, score, total_marks, percentage,
		        started_at, finished_at, time_spent_seconds, trigger,
		        section_scores, analytics
		 FROM attempts WHERE user_id = $1
		 ORDER BY finished_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []model.TestAttemptRecord
	for rows.Next() {
		rec, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

func scanAttempt(row pgx.Row) (*model.TestAttemptRecord, error) {
	rec := &model.TestAttemptRecord{}
	var answers, sectionScores, analytics []byte
	err := row.Scan(&rec.AttemptID, &rec.TestID, &rec.UserID, &answers,
		&rec.Score, &rec.TotalMarks, &rec.Percentage,
		&rec.StartedAt, &rec.FinishedAt, &rec.TimeSpentSeconds, &rec.Trigger,
		&sectionScores, &analytics)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(answers, &rec.Answers); err != nil {
		return nil, fmt.Errorf("decode answers: %w", err)
	}
	if err := json.Unmarshal(sectionScores, &rec.SectionScores); err != nil {
		return nil, fmt.Errorf("decode section scores: %w", err)
	}
	if err := json.Unmarshal(analytics, &rec.Analytics); err != nil {
		return nil, fmt.Errorf("decode analytics: %w", err)
	}
	return rec, nil
}
