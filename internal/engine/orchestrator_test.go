package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openprep/testprep-backend/internal/engine"
	"github.com/openprep/testprep-backend/internal/model"
)

// fakePersister counts calls and can fail the first N of them.
type fakePersister struct {
	mu       sync.Mutex
	failures int
	calls    int
	records  []*model.TestAttemptRecord
}

func (p *fakePersister) PersistAttempt(_ context.Context, rec *model.TestAttemptRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls <= p.failures {
		return errors.New("transport error")
	}
	p.records = append(p.records, rec)
	return nil
}

func (p *fakePersister) persisted() []*model.TestAttemptRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*model.TestAttemptRecord(nil), p.records...)
}

type fixture struct {
	def   *model.TestDefinition
	sess  *engine.Session
	timer *engine.Timer
	clock *fakeClock
	pers  *fakePersister
	orch  *engine.Orchestrator
}

func newFixture(t *testing.T, failures int) *fixture {
	t.Helper()
	def := twoSectionTest()
	require.NoError(t, def.Validate())

	clock := &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	sess := engine.NewSession(def, 7, engine.ShuffleTest(def, 1), clock.Now())
	timer := engine.NewTimer()
	pers := &fakePersister{failures: failures}

	orch := engine.NewOrchestrator(sess, timer, pers, engine.OrchestratorOpts{
		Clock:        clock,
		Logger:       zerolog.Nop(),
		RetryBackoff: time.Millisecond,
	})

	require.NoError(t, timer.Start(time.Duration(def.DurationMinutes)*time.Minute))
	return &fixture{def: def, sess: sess, timer: timer, clock: clock, pers: pers, orch: orch}
}

func TestOrchestrator_ManualSubmitFlow(t *testing.T) {
	f := newFixture(t, 0)
	qID := f.def.Sections[0].Questions[0].ID
	require.NoError(t, f.sess.SelectAnswer(qID, 0))

	conf, err := f.orch.RequestManualSubmit()
	require.NoError(t, err)
	assert.Equal(t, 1, conf.Answered)
	assert.Equal(t, 3, conf.TotalQuestions)

	f.clock.Advance(4 * time.Minute)
	rec, err := f.orch.ConfirmManualSubmit(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.SubmitTriggerManual, rec.Trigger)
	assert.Equal(t, 240, rec.TimeSpentSeconds)
	assert.Equal(t, model.AttemptStatusSubmitted, f.sess.Status())
	assert.Equal(t, engine.TimerStopped, f.timer.State())
	assert.Len(t, f.pers.persisted(), 1)
}

func TestOrchestrator_ConfirmWithoutRequest(t *testing.T) {
	f := newFixture(t, 0)
	_, err := f.orch.ConfirmManualSubmit(context.Background())
	assert.ErrorIs(t, err, engine.ErrNoPendingConfirmation)
}

func TestOrchestrator_CancelWithdrawsConfirmation(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.orch.RequestManualSubmit()
	require.NoError(t, err)
	require.NoError(t, f.orch.CancelManualSubmit())

	_, err = f.orch.ConfirmManualSubmit(context.Background())
	assert.ErrorIs(t, err, engine.ErrNoPendingConfirmation)
	assert.Equal(t, model.AttemptStatusActive, f.sess.Status())
	assert.Empty(t, f.pers.persisted())
}

func TestOrchestrator_AutoSubmitOnExpiry(t *testing.T) {
	// Duration 10 minutes, learner does nothing: at t=600s expiry fires and
	// the orchestrator submits score 0 with timeSpentSeconds 600.
	f := newFixture(t, 0)

	var rec *model.TestAttemptRecord
	f.timer.OnExpired(func() {
		f.clock.Advance(600 * time.Second)
		rec, _ = f.orch.HandleExpiry(context.Background())
	})

	for i := 0; i < 600; i++ {
		f.timer.Tick()
	}

	require.NotNil(t, rec)
	assert.Equal(t, model.SubmitTriggerAuto, rec.Trigger)
	assert.Equal(t, 0.0, rec.Score)
	assert.Equal(t, 600, rec.TimeSpentSeconds)
	assert.Len(t, f.pers.persisted(), 1)
}

func TestOrchestrator_ExpiryOverridesPendingConfirmation(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.orch.RequestManualSubmit()
	require.NoError(t, err)

	// Timer expires while the confirmation dialog is open: automatic
	// submission proceeds and the dialog is dismissed.
	rec, err := f.orch.HandleExpiry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.SubmitTriggerAuto, rec.Trigger)

	_, err = f.orch.ConfirmManualSubmit(context.Background())
	assert.ErrorIs(t, err, engine.ErrNoPendingConfirmation)
	assert.Len(t, f.pers.persisted(), 1)
}

func TestOrchestrator_SecondTriggerIsNoOp(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.orch.RequestManualSubmit()
	require.NoError(t, err)
	_, err = f.orch.ConfirmManualSubmit(context.Background())
	require.NoError(t, err)

	// A later expiry (e.g. a stale tick) must not produce a second record.
	_, err = f.orch.HandleExpiry(context.Background())
	assert.Error(t, err)
	assert.Len(t, f.pers.persisted(), 1)
}

func TestOrchestrator_PersistFailureIsRecoverable(t *testing.T) {
	f := newFixture(t, 1)
	qID := f.def.Sections[0].Questions[0].ID
	require.NoError(t, f.sess.SelectAnswer(qID, 0))

	_, err := f.orch.RequestManualSubmit()
	require.NoError(t, err)
	_, err = f.orch.ConfirmManualSubmit(context.Background())
	require.Error(t, err)

	// Session reverts to Active with answers preserved verbatim; the guard
	// clears so submission may be retried.
	assert.Equal(t, model.AttemptStatusActive, f.sess.Status())
	assert.Equal(t, 1, f.sess.AnsweredCount())
	assert.False(t, f.orch.Submitted())

	_, err = f.orch.RequestManualSubmit()
	require.NoError(t, err)
	rec, err := f.orch.ConfirmManualSubmit(context.Background())
	require.NoError(t, err)
	assert.Len(t, f.pers.persisted(), 1)
	assert.Equal(t, rec.AttemptID, f.pers.persisted()[0].AttemptID)
}

func TestOrchestrator_AutoPathRetriesUntilPersisted(t *testing.T) {
	f := newFixture(t, 2)

	rec, err := f.orch.HandleExpiry(context.Background())
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, 3, f.pers.calls)
	assert.Len(t, f.pers.persisted(), 1)
	assert.Equal(t, model.AttemptStatusSubmitted, f.sess.Status())
}

func TestOrchestrator_ConcurrentTriggersProduceOneRecord(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.orch.RequestManualSubmit()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.orch.ConfirmManualSubmit(context.Background())
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.orch.HandleExpiry(context.Background())
		}()
	}
	wg.Wait()

	// Exactly one of {manual, automatic} wins — never zero, never two.
	assert.Len(t, f.pers.persisted(), 1)
	assert.True(t, f.orch.Submitted())
}
