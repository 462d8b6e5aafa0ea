package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/openprep/testprep-backend/internal/model"
)

// ErrNoPendingConfirmation is returned when Confirm or Cancel is called
// without an open manual-submit request.
var ErrNoPendingConfirmation = errors.New("no manual submission awaiting confirmation")

// Persister receives the finished attempt record. Treated as fallible: a
// failed call leaves the session retryable with answers intact, and the
// orchestrator never calls it again for a session once it has succeeded.
type Persister interface {
	PersistAttempt(ctx context.Context, rec *model.TestAttemptRecord) error
}

// PersistFunc adapts a function to the Persister interface.
type PersistFunc func(ctx context.Context, rec *model.TestAttemptRecord) error

func (f PersistFunc) PersistAttempt(ctx context.Context, rec *model.TestAttemptRecord) error {
	return f(ctx, rec)
}

// OrchestratorOpts tune an Orchestrator. Zero values fall back to defaults.
type OrchestratorOpts struct {
	Clock          Clock
	Analytics      AnalyticsConfig
	Logger         zerolog.Logger
	RetryBackoff   time.Duration // automatic-path backoff between persist retries
	MaxAutoRetries int           // persist retries on the automatic path
}

// Orchestrator guarantees at-most-once submission for one session. Manual
// submit and timer expiry both converge on submit, whose entry is guarded by
// a single compare-and-swap: a second trigger while a submission is in flight
// or complete is a no-op.
type Orchestrator struct {
	session *Session
	timer   *Timer
	persist Persister
	clock   Clock
	cfg     AnalyticsConfig
	log     zerolog.Logger

	backoff    time.Duration
	maxRetries int

	inFlight  atomic.Bool
	submitted atomic.Bool

	mu             sync.Mutex
	pendingConfirm bool

	// onFinalized, when set, receives the record after a successful
	// submission. Used to fan events out to connected clients.
	onFinalized func(rec *model.TestAttemptRecord)
}

// NewOrchestrator wires a session and its timer to a persister.
func NewOrchestrator(session *Session, timer *Timer, persist Persister, opts OrchestratorOpts) *Orchestrator {
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	if opts.Analytics.GradeBands == nil {
		opts.Analytics = DefaultAnalyticsConfig()
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 3 * time.Second
	}
	if opts.MaxAutoRetries <= 0 {
		opts.MaxAutoRetries = 5
	}
	return &Orchestrator{
		session:    session,
		timer:      timer,
		persist:    persist,
		clock:      opts.Clock,
		cfg:        opts.Analytics,
		log:        opts.Logger.With().Str("component", "orchestrator").Logger(),
		backoff:    opts.RetryBackoff,
		maxRetries: opts.MaxAutoRetries,
	}
}

// OnFinalized registers the post-submission hook. Set before the attempt
// begins.
func (o *Orchestrator) OnFinalized(fn func(rec *model.TestAttemptRecord)) {
	o.onFinalized = fn
}

// RequestManualSubmit opens a learner-initiated submission. It does not
// submit: it returns the answered/total counts the learner must confirm
// against, and stays cancellable until ConfirmManualSubmit.
func (o *Orchestrator) RequestManualSubmit() (model.SubmitConfirmation, error) {
	if o.submitted.Load() {
		return model.SubmitConfirmation{}, ErrAlreadySubmitted
	}
	if st := o.session.Status(); st != model.AttemptStatusActive {
		return model.SubmitConfirmation{}, ErrAnswersFrozen
	}

	o.mu.Lock()
	o.pendingConfirm = true
	o.mu.Unlock()

	return model.SubmitConfirmation{
		Answered:       o.session.AnsweredCount(),
		TotalQuestions: o.session.QuestionCount(),
		Pending:        true,
	}, nil
}

// CancelManualSubmit withdraws an open confirmation. No-op once the
// submission has gone through or expiry has taken over.
func (o *Orchestrator) CancelManualSubmit() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.pendingConfirm {
		return ErrNoPendingConfirmation
	}
	o.pendingConfirm = false
	return nil
}

// ConfirmManualSubmit completes a learner-initiated submission. Requires an
// open confirmation; expiry dismisses any open confirmation, so a confirm
// that races expiry resolves to a no-op error rather than a second submit.
func (o *Orchestrator) ConfirmManualSubmit(ctx context.Context) (*model.TestAttemptRecord, error) {
	o.mu.Lock()
	if !o.pendingConfirm {
		o.mu.Unlock()
		return nil, ErrNoPendingConfirmation
	}
	o.pendingConfirm = false
	o.mu.Unlock()

	return o.submit(ctx, model.SubmitTriggerManual)
}

// HandleExpiry is the timer-expiry trigger: not cancellable, not confirmable,
// and it dismisses any confirmation dialog still open. The learner can no
// longer act, so persistence failures are retried here with backoff before
// the error is surfaced to the caller for background requeueing.
func (o *Orchestrator) HandleExpiry(ctx context.Context) (*model.TestAttemptRecord, error) {
	o.mu.Lock()
	o.pendingConfirm = false
	o.mu.Unlock()

	o.session.Expire()

	var lastErr error
	for attempt := 0; attempt < o.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(o.backoff):
			}
		}
		rec, err := o.submit(ctx, model.SubmitTriggerAuto)
		if err == nil {
			return rec, nil
		}
		if errors.Is(err, ErrAlreadySubmitted) || errors.Is(err, ErrSubmissionInFlight) {
			// Another trigger won the race; exactly-once holds.
			return nil, err
		}
		lastErr = err
		o.log.Warn().Err(err).Int("attempt", attempt+1).Msg("auto-submit persist failed")
	}
	return nil, fmt.Errorf("auto-submit exhausted retries: %w", lastErr)
}

// submit is the single convergence point for both triggers. The CAS on
// inFlight is the one atomic check-and-set closing the submit/expiry race.
func (o *Orchestrator) submit(ctx context.Context, trigger model.SubmitTrigger) (*model.TestAttemptRecord, error) {
	if !o.inFlight.CompareAndSwap(false, true) {
		return nil, ErrSubmissionInFlight
	}
	defer o.inFlight.Store(false)

	if o.submitted.Load() {
		return nil, ErrAlreadySubmitted
	}

	prev, err := o.session.beginSubmit()
	if err != nil {
		return nil, err
	}

	if trigger == model.SubmitTriggerManual && o.timer != nil {
		o.timer.Stop()
	}

	def := o.session.Definition()
	answers := o.session.Answers()
	start := o.session.StartedAt()
	end := o.clock.Now()

	sum := Score(def, answers)
	spent := int(end.Sub(start).Seconds())

	rec := &model.TestAttemptRecord{
		AttemptID:        o.session.ID(),
		UserID:           o.session.UserID(),
		TestID:           def.ID,
		Answers:          answers,
		Score:            sum.Score,
		TotalMarks:       sum.TotalMarks,
		Percentage:       sum.Percentage,
		StartedAt:        start,
		FinishedAt:       end,
		TimeSpentSeconds: spent,
		Trigger:          trigger,
		SectionScores:    sum.Sections,
		Analytics:        GenerateAnalytics(o.cfg, sum, spent, def.DurationMinutes),
	}

	if err := o.persist.PersistAttempt(ctx, rec); err != nil {
		// Revert so the learner loses nothing and may retry; the frozen
		// answers were never mutated.
		o.session.abortSubmit(prev)
		return nil, fmt.Errorf("persist attempt: %w", err)
	}

	o.session.completeSubmit()
	o.submitted.Store(true)

	o.log.Info().
		Str("attempt_id", rec.AttemptID.String()).
		Str("trigger", string(trigger)).
		Float64("score", rec.Score).
		Int("time_spent_s", rec.TimeSpentSeconds).
		Msg("attempt submitted")

	if o.onFinalized != nil {
		o.onFinalized(rec)
	}
	return rec, nil
}

// Submitted reports whether the attempt has been finalized.
func (o *Orchestrator) Submitted() bool { return o.submitted.Load() }
