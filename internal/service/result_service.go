package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openprep/testprep-backend/internal/engine"
	"github.com/openprep/testprep-backend/internal/model"
	"github.com/openprep/testprep-backend/internal/repository"
)

// AttemptResult is a finalized attempt together with its standing among
// all completed attempts for the same test. The ranking fields are derived
// on read and shift as more learners finish.
type AttemptResult struct {
	Record  *model.TestAttemptRecord `json:"record"`
	Ranking model.RankingSnapshot    `json:"ranking"`
}

// ResultService reads finalized attempt records and derives rankings.
type ResultService struct {
	attemptRepo *repository.AttemptRepository
	log         zerolog.Logger
}

// NewResultService creates a new ResultService.
func NewResultService(attemptRepo *repository.AttemptRepository, log zerolog.Logger) *ResultService {
	return &ResultService{
		attemptRepo: attemptRepo,
		log:         log.With().Str("component", "result_service").Logger(),
	}
}

// GetResult returns a learner's finalized attempt for a test with its
// current rank and percentile.
func (s *ResultService) GetResult(ctx context.Context, testID uuid.UUID, userID int) (*AttemptResult, error) {
	rec, err := s.attemptRepo.GetByTestAndUser(ctx, testID, userID)
	if err != nil {
		return nil, err
	}

	population, err := s.attemptRepo.ListByTest(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("list attempts for ranking: %w", err)
	}

	return &AttemptResult{
		Record:  rec,
		Ranking: engine.RankAmong(rec.Score, population),
	}, nil
}

// GetByAttemptID returns a finalized attempt by its record ID with its
// current ranking. Ownership is checked by the caller.
func (s *ResultService) GetByAttemptID(ctx context.Context, attemptID uuid.UUID) (*AttemptResult, error) {
	rec, err := s.attemptRepo.GetByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}

	population, err := s.attemptRepo.ListByTest(ctx, rec.TestID)
	if err != nil {
		return nil, fmt.Errorf("list attempts for ranking: %w", err)
	}

	return &AttemptResult{
		Record:  rec,
		Ranking: engine.RankAmong(rec.Score, population),
	}, nil
}

// Leaderboard returns all finalized attempts for a test in rank order.
// Equal scores share a rank; ties are broken for display order only by
// faster completion, then earlier finish.
func (s *ResultService) Leaderboard(ctx context.Context, testID uuid.UUID) ([]engine.RankedAttempt, error) {
	records, err := s.attemptRepo.ListByTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	return engine.Leaderboard(records), nil
}

// ListForLearner returns all of a learner's finalized attempts, most
// recent first.
func (s *ResultService) ListForLearner(ctx context.Context, userID int) ([]model.TestAttemptRecord, error) {
	return s.attemptRepo.ListByUser(ctx, userID)
}
