package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/openprep/testprep-backend/internal/config"
	"github.com/openprep/testprep-backend/internal/engine"
	"github.com/openprep/testprep-backend/internal/model"
	"github.com/openprep/testprep-backend/internal/repository"
)

// Attempt-level errors surfaced to handlers.
var (
	ErrNoActiveAttempt         = errors.New("no active attempt for this test")
	ErrAttemptAlreadySubmitted = errors.New("attempt already submitted")
)

// AttemptEventType enumerates the events a runtime fans out to connected
// clients.
type AttemptEventType string

const (
	AttemptEventWarning   AttemptEventType = "warning"
	AttemptEventSubmitted AttemptEventType = "submitted"
)

// AttemptEvent is a one-way notification from the attempt runtime to a
// connected client stream.
type AttemptEvent struct {
	Type        AttemptEventType
	MinutesLeft int
	Record      *model.TestAttemptRecord
}

// AttemptRuntime is the live, in-process state of one attempt: the answer
// session, its countdown timer and the submission orchestrator, plus an
// event channel for the learner's stream connection.
type AttemptRuntime struct {
	Session *engine.Session
	Timer   *engine.Timer
	Orch    *engine.Orchestrator
	Orders  map[uuid.UUID]engine.OptionOrder

	// Events is buffered; sends never block the timer goroutine. A slow or
	// absent reader just misses notifications, the state endpoint remains
	// authoritative.
	Events chan AttemptEvent

	cancel context.CancelFunc
}

// AttemptState is the reload-survivable view of a running attempt: answers
// in displayed positions plus the authoritative remaining time.
type AttemptState struct {
	TestID           uuid.UUID           `json:"test_id"`
	Status           model.AttemptStatus `json:"status"`
	RemainingSeconds int                 `json:"remaining_seconds"`
	Countdown        string              `json:"countdown"`
	MinutesLeft      int                 `json:"minutes_left"`
	Answers          map[uuid.UUID]int   `json:"answers"`
	AnsweredCount    int                 `json:"answered_count"`
	TotalQuestions   int                 `json:"total_questions"`
}

// StartAttemptResult is returned from StartAttempt: the shuffled paper plus
// the remaining time, which is less than the full duration on a resume.
type StartAttemptResult struct {
	Paper            *model.TestPaper `json:"paper"`
	RemainingSeconds int              `json:"remaining_seconds"`
	Resumed          bool             `json:"resumed"`
}

type runtimeKey struct {
	testID uuid.UUID
	userID int
}

// AttemptService coordinates attempt lifecycles: start/resume, answer
// autosave, the two-step manual submit, and automatic submission on expiry.
// Live state lives in this process plus Redis; only the final outcome
// record reaches PostgreSQL.
type AttemptService struct {
	cfg         *config.Config
	rdb         *redis.Client
	testSvc     *TestService
	attemptRepo *repository.AttemptRepository
	log         zerolog.Logger

	mu       sync.Mutex
	runtimes map[runtimeKey]*AttemptRuntime
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	cfg *config.Config,
	rdb *redis.Client,
	testSvc *TestService,
	attemptRepo *repository.AttemptRepository,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		cfg:         cfg,
		rdb:         rdb,
		testSvc:     testSvc,
		attemptRepo: attemptRepo,
		log:         log.With().Str("component", "attempt_service").Logger(),
		runtimes:    make(map[runtimeKey]*AttemptRuntime),
	}
}

// analyticsConfig builds the engine analytics settings from deployment
// config, keeping the code-level band defaults.
func (s *AttemptService) analyticsConfig() engine.AnalyticsConfig {
	cfg := engine.DefaultAnalyticsConfig()
	cfg.FastRatio = s.cfg.FastTimeRatio
	cfg.StrongSectionPct = s.cfg.StrongSectionPct
	cfg.WeakSectionPct = s.cfg.WeakSectionPct
	if err := cfg.Validate(); err != nil {
		s.log.Warn().Err(err).Msg("Invalid analytics thresholds in config, using defaults")
		return engine.DefaultAnalyticsConfig()
	}
	return cfg
}

// StartAttempt begins a new attempt or resumes the existing one. A learner
// gets exactly one attempt per test: a persisted record refuses the start,
// and a live attempt is resumed with its original seed and the clock still
// counting from the original start time.
func (s *AttemptService) StartAttempt(ctx context.Context, testID uuid.UUID, userID int) (*StartAttemptResult, error) {
	if _, err := s.attemptRepo.GetByTestAndUser(ctx, testID, userID); err == nil {
		return nil, ErrAttemptAlreadySubmitted
	} else if !errors.Is(err, repository.ErrAttemptNotFound) {
		return nil, fmt.Errorf("check prior attempt: %w", err)
	}

	rt, resumed, err := s.runtime(ctx, testID, userID, true)
	if err != nil {
		return nil, err
	}

	paper := buildPaper(rt.Session.Definition(), rt.Orders)
	return &StartAttemptResult{
		Paper:            paper,
		RemainingSeconds: int(rt.Timer.Remaining().Seconds()),
		Resumed:          resumed,
	}, nil
}

// Runtime returns the live runtime for a learner's attempt, rebuilding it
// from Redis after a process restart. Never creates a fresh attempt.
func (s *AttemptService) Runtime(ctx context.Context, testID uuid.UUID, userID int) (*AttemptRuntime, error) {
	rt, _, err := s.runtime(ctx, testID, userID, false)
	return rt, err
}

// runtime is the single path into the runtime map. With create=false an
// attempt that has no trace in memory or Redis yields ErrNoActiveAttempt.
func (s *AttemptService) runtime(ctx context.Context, testID uuid.UUID, userID int, create bool) (*AttemptRuntime, bool, error) {
	key := runtimeKey{testID: testID, userID: userID}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rt, ok := s.runtimes[key]; ok {
		return rt, true, nil
	}

	startKey := config.CacheKey.AttemptStartKey(testID.String(), userID)
	startRaw, err := s.rdb.Get(ctx, startKey).Result()
	switch {
	case err == nil:
		rt, rtErr := s.rebuildRuntime(ctx, testID, userID, startRaw)
		if rtErr != nil {
			return nil, false, rtErr
		}
		s.runtimes[key] = rt
		return rt, true, nil
	case errors.Is(err, redis.Nil):
		if !create {
			return nil, false, ErrNoActiveAttempt
		}
	default:
		return nil, false, fmt.Errorf("read attempt start: %w", err)
	}

	rt, err := s.newRuntime(ctx, testID, userID)
	if err != nil {
		return nil, false, err
	}
	s.runtimes[key] = rt
	return rt, false, nil
}

// newRuntime creates a brand-new attempt: fresh seed, start time recorded
// in Redis before anything else so a crash mid-start still resumes.
func (s *AttemptService) newRuntime(ctx context.Context, testID uuid.UUID, userID int) (*AttemptRuntime, error) {
	def, err := s.testSvc.GetDefinition(ctx, testID)
	if err != nil {
		return nil, err
	}

	startedAt := time.Now()
	seed := startedAt.UnixNano()

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.AttemptStartKey(testID.String(), userID), startedAt.Unix(), 0)
	pipe.Set(ctx, config.CacheKey.AttemptSeedKey(testID.String(), userID), seed, 0)
	pipe.Set(ctx, config.CacheKey.LearnerActiveTestKey(userID), testID.String(), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("record attempt start: %w", err)
	}

	orders := engine.ShuffleTest(def, seed)
	session := engine.NewSession(def, userID, orders, startedAt)

	rt, err := s.assemble(session, orders, time.Duration(def.DurationMinutes)*time.Minute)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("test_id", testID.String()).
		Int("user_id", userID).
		Int64("seed", seed).
		Msg("Attempt started")
	return rt, nil
}

// rebuildRuntime reconstructs a live attempt from its Redis trace: original
// start time, original shuffle seed, autosaved answers. The same seed
// regenerates the same option orders, so the learner sees the exact paper
// they started with.
func (s *AttemptService) rebuildRuntime(ctx context.Context, testID uuid.UUID, userID int, startRaw string) (*AttemptRuntime, error) {
	startUnix, err := strconv.ParseInt(startRaw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid attempt start in cache: %w", err)
	}
	startedAt := time.Unix(startUnix, 0)

	seedRaw, err := s.rdb.Get(ctx, config.CacheKey.AttemptSeedKey(testID.String(), userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read shuffle seed: %w", err)
	}
	seed, err := strconv.ParseInt(seedRaw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid shuffle seed in cache: %w", err)
	}

	def, err := s.testSvc.GetDefinition(ctx, testID)
	if err != nil {
		return nil, err
	}

	orders := engine.ShuffleTest(def, seed)
	session := engine.NewSession(def, userID, orders, startedAt)

	saved, err := s.rdb.HGetAll(ctx, config.CacheKey.AttemptAnswersKey(testID.String(), userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read autosaved answers: %w", err)
	}
	for qidRaw, idxRaw := range saved {
		qid, qErr := uuid.Parse(qidRaw)
		idx, iErr := strconv.Atoi(idxRaw)
		if qErr != nil || iErr != nil {
			s.log.Warn().Str("question", qidRaw).Msg("Skipping corrupt autosaved answer")
			continue
		}
		if rErr := session.RestoreAnswer(qid, idx); rErr != nil {
			s.log.Warn().Err(rErr).Str("question", qidRaw).Msg("Skipping unrestorable answer")
		}
	}

	remaining := time.Duration(def.DurationMinutes)*time.Minute - time.Since(startedAt)
	if remaining <= 0 {
		// Found already past its deadline (process was down at expiry).
		// Finalize immediately with whatever was autosaved.
		rt, aErr := s.assembleExpired(session, orders)
		if aErr != nil {
			return nil, aErr
		}
		s.log.Info().
			Str("test_id", testID.String()).
			Int("user_id", userID).
			Msg("Recovered attempt past deadline, auto-submitting")
		go s.finalizeExpired(rt)
		return rt, nil
	}

	rt, err := s.assemble(session, orders, remaining)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("test_id", testID.String()).
		Int("user_id", userID).
		Int("answers_restored", session.AnsweredCount()).
		Dur("remaining", remaining).
		Msg("Attempt runtime rebuilt")
	return rt, nil
}

// assemble wires session, timer and orchestrator together and starts the
// wall-clock timer goroutine.
func (s *AttemptService) assemble(session *engine.Session, orders map[uuid.UUID]engine.OptionOrder, remaining time.Duration) (*AttemptRuntime, error) {
	rt := s.assembleCore(session, orders)

	if err := rt.Timer.Start(remaining); err != nil {
		rt.cancel()
		return nil, fmt.Errorf("start timer: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	prev := rt.cancel
	rt.cancel = func() { cancel(); prev() }
	go rt.Timer.Run(runCtx)
	return rt, nil
}

// assembleExpired builds a runtime whose deadline already passed: no timer
// goroutine, finalization is the only remaining transition.
func (s *AttemptService) assembleExpired(session *engine.Session, orders map[uuid.UUID]engine.OptionOrder) (*AttemptRuntime, error) {
	return s.assembleCore(session, orders), nil
}

func (s *AttemptService) assembleCore(session *engine.Session, orders map[uuid.UUID]engine.OptionOrder) *AttemptRuntime {
	timer := engine.NewTimer(s.cfg.WarningThresholds...)

	rt := &AttemptRuntime{
		Session: session,
		Timer:   timer,
		Orders:  orders,
		Events:  make(chan AttemptEvent, 8),
		cancel:  func() {},
	}

	rt.Orch = engine.NewOrchestrator(session, timer, engine.PersistFunc(s.persistRecord), engine.OrchestratorOpts{
		Analytics:      s.analyticsConfig(),
		Logger:         s.log,
		RetryBackoff:   s.cfg.SubmitRetryBackoff,
		MaxAutoRetries: s.cfg.MaxSubmitRetries,
	})

	rt.Orch.OnFinalized(func(rec *model.TestAttemptRecord) {
		s.onFinalized(rt, rec)
	})

	timer.OnWarning(func(minutesLeft int) {
		select {
		case rt.Events <- AttemptEvent{Type: AttemptEventWarning, MinutesLeft: minutesLeft}:
		default:
		}
	})
	timer.OnExpired(func() {
		go s.finalizeExpired(rt)
	})

	return rt
}

// persistRecord is the orchestrator's persister. Manual submissions fail
// loudly so the learner can retry. Automatic submissions must not be lost:
// if the insert fails, the record is pushed onto the Redis persist queue
// for the background worker and the submission is accepted.
func (s *AttemptService) persistRecord(ctx context.Context, rec *model.TestAttemptRecord) error {
	err := s.attemptRepo.Insert(ctx, rec)
	if err == nil {
		return nil
	}
	if rec.Trigger == model.SubmitTriggerManual {
		return err
	}

	s.log.Warn().Err(err).
		Str("attempt_id", rec.AttemptID.String()).
		Msg("Auto-submit insert failed, queueing for background persist")

	payload, mErr := json.Marshal(rec)
	if mErr != nil {
		return fmt.Errorf("marshal attempt for queue: %w", mErr)
	}
	if qErr := s.rdb.LPush(ctx, config.WorkerKey.PersistAttemptsQueue, payload).Err(); qErr != nil {
		return fmt.Errorf("insert failed (%v) and queue failed: %w", err, qErr)
	}
	return nil
}

// onFinalized cleans up after a successful submission: drop the live Redis
// keys, emit the submitted event, and retire the runtime.
func (s *AttemptService) onFinalized(rt *AttemptRuntime, rec *model.TestAttemptRecord) {
	select {
	case rt.Events <- AttemptEvent{Type: AttemptEventSubmitted, Record: rec}:
	default:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	testID := rec.TestID.String()
	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, config.CacheKey.AttemptStartKey(testID, rec.UserID))
	pipe.Del(ctx, config.CacheKey.AttemptSeedKey(testID, rec.UserID))
	pipe.Del(ctx, config.CacheKey.AttemptAnswersKey(testID, rec.UserID))
	pipe.Del(ctx, config.CacheKey.LearnerActiveTestKey(rec.UserID))
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn().Err(err).
			Str("attempt_id", rec.AttemptID.String()).
			Msg("Failed to clear attempt cache keys")
	}

	rt.cancel()

	s.mu.Lock()
	delete(s.runtimes, runtimeKey{testID: rec.TestID, userID: rec.UserID})
	s.mu.Unlock()
}

// finalizeExpired drives the automatic submission when the timer runs out.
func (s *AttemptService) finalizeExpired(rt *AttemptRuntime) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if _, err := rt.Orch.HandleExpiry(ctx); err != nil {
		if errors.Is(err, engine.ErrAlreadySubmitted) || errors.Is(err, engine.ErrSubmissionInFlight) {
			return
		}
		s.log.Error().Err(err).
			Str("test_id", rt.Session.TestID().String()).
			Int("user_id", rt.Session.UserID()).
			Msg("Automatic submission failed after retries")
	}
}

// Paper returns the learner's shuffled paper for a live attempt.
func (s *AttemptService) Paper(ctx context.Context, testID uuid.UUID, userID int) (*model.TestPaper, error) {
	rt, err := s.Runtime(ctx, testID, userID)
	if err != nil {
		return nil, err
	}
	return buildPaper(rt.Session.Definition(), rt.Orders), nil
}

// HasLiveAttempt reports whether the learner has an in-flight attempt on
// the test, without creating or rebuilding a runtime.
func (s *AttemptService) HasLiveAttempt(ctx context.Context, testID uuid.UUID, userID int) bool {
	s.mu.Lock()
	_, ok := s.runtimes[runtimeKey{testID: testID, userID: userID}]
	s.mu.Unlock()
	if ok {
		return true
	}
	n, err := s.rdb.Exists(ctx, config.CacheKey.AttemptStartKey(testID.String(), userID)).Result()
	return err == nil && n > 0
}

// SelectAnswer records one answer on the live session and autosaves it to
// Redis so a reload or process restart loses nothing.
func (s *AttemptService) SelectAnswer(ctx context.Context, testID uuid.UUID, userID int, req *model.SelectAnswerRequest) error {
	rt, err := s.Runtime(ctx, testID, userID)
	if err != nil {
		return err
	}

	if err := rt.Session.SelectAnswer(req.QuestionID, req.OptionIndex); err != nil {
		return err
	}

	order, ok := rt.Orders[req.QuestionID]
	if !ok {
		return engine.ErrUnknownQuestion
	}
	orig, err := order.OriginalIndex(req.OptionIndex)
	if err != nil {
		return err
	}

	answersKey := config.CacheKey.AttemptAnswersKey(testID.String(), userID)
	if err := s.rdb.HSet(ctx, answersKey, req.QuestionID.String(), orig).Err(); err != nil {
		// The in-memory session already holds the answer; a lost autosave
		// only matters if this process dies before submission.
		s.log.Warn().Err(err).
			Str("question", req.QuestionID.String()).
			Msg("Answer autosave failed")
	}
	return nil
}

// State returns the current attempt state with answers translated back to
// displayed positions for the learner's paper.
func (s *AttemptService) State(ctx context.Context, testID uuid.UUID, userID int) (*AttemptState, error) {
	rt, err := s.Runtime(ctx, testID, userID)
	if err != nil {
		return nil, err
	}

	answers := rt.Session.Answers()
	displayed := make(map[uuid.UUID]int, len(answers))
	for qid, orig := range answers {
		if pos, ok := displayedPosition(rt.Orders[qid], orig); ok {
			displayed[qid] = pos
		}
	}

	return &AttemptState{
		TestID:           testID,
		Status:           rt.Session.Status(),
		RemainingSeconds: int(rt.Timer.Remaining().Seconds()),
		Countdown:        rt.Timer.Countdown(),
		MinutesLeft:      rt.Timer.MinutesLeft(),
		Answers:          displayed,
		AnsweredCount:    len(answers),
		TotalQuestions:   rt.Session.QuestionCount(),
	}, nil
}

// RequestSubmit opens the manual submission confirmation step.
func (s *AttemptService) RequestSubmit(ctx context.Context, testID uuid.UUID, userID int) (model.SubmitConfirmation, error) {
	rt, err := s.Runtime(ctx, testID, userID)
	if err != nil {
		return model.SubmitConfirmation{}, err
	}
	return rt.Orch.RequestManualSubmit()
}

// CancelSubmit withdraws an open confirmation.
func (s *AttemptService) CancelSubmit(ctx context.Context, testID uuid.UUID, userID int) error {
	rt, err := s.Runtime(ctx, testID, userID)
	if err != nil {
		return err
	}
	return rt.Orch.CancelManualSubmit()
}

// ConfirmSubmit completes the manual submission and returns the final
// record.
func (s *AttemptService) ConfirmSubmit(ctx context.Context, testID uuid.UUID, userID int) (*model.TestAttemptRecord, error) {
	rt, err := s.Runtime(ctx, testID, userID)
	if err != nil {
		return nil, err
	}
	return rt.Orch.ConfirmManualSubmit(ctx)
}

// FinalizeIfExpired checks a live attempt found past its deadline by the
// background sweep and drives it to submission. Returns true when this
// call initiated finalization.
func (s *AttemptService) FinalizeIfExpired(ctx context.Context, testID uuid.UUID, userID int) (bool, error) {
	rt, err := s.Runtime(ctx, testID, userID)
	if err != nil {
		return false, err
	}
	if rt.Orch.Submitted() {
		return false, nil
	}
	if rt.Timer.Remaining() > 0 {
		return false, nil
	}
	go s.finalizeExpired(rt)
	return true, nil
}

// Shutdown cancels all runtime timer goroutines. Live attempt state stays
// in Redis and is rebuilt on the next start.
func (s *AttemptService) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rt := range s.runtimes {
		rt.cancel()
	}
	s.runtimes = make(map[runtimeKey]*AttemptRuntime)
}

// buildPaper produces the learner-facing paper: options in shuffled order,
// correct answers and penalties stripped.
func buildPaper(def *model.TestDefinition, orders map[uuid.UUID]engine.OptionOrder) *model.TestPaper {
	paper := &model.TestPaper{
		TestID:          def.ID,
		Title:           def.Title,
		DurationMinutes: def.DurationMinutes,
		Sections:        make([]model.PaperSection, len(def.Sections)),
	}
	for si, sec := range def.Sections {
		ps := model.PaperSection{
			ID:        sec.ID,
			Title:     sec.Title,
			Questions: make([]model.PaperQuestion, len(sec.Questions)),
		}
		for qi, q := range sec.Questions {
			opts := q.Options
			if order, ok := orders[q.ID]; ok {
				opts = order.Display
			}
			ps.Questions[qi] = model.PaperQuestion{
				ID:      q.ID,
				Text:    q.Text,
				Options: opts,
				Marks:   q.Marks,
			}
		}
		paper.Sections[si] = ps
	}
	return paper
}

// displayedPosition maps an original option index back to its shuffled
// position on the learner's paper.
func displayedPosition(order engine.OptionOrder, orig int) (int, bool) {
	for pos, o := range order.ToOriginal {
		if o == orig {
			return pos, true
		}
	}
	return 0, false
}
