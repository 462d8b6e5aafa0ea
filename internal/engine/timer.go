package engine

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// TimerState enumerates the countdown state machine.
type TimerState string

const (
	TimerIdle    TimerState = "IDLE"
	TimerRunning TimerState = "RUNNING"
	TimerExpired TimerState = "EXPIRED"
	TimerStopped TimerState = "STOPPED"
)

// DefaultWarningThresholds are the remaining-time marks at which a one-shot
// warning fires.
var DefaultWarningThresholds = []time.Duration{5 * time.Minute, 1 * time.Minute}

// Timer is the attempt countdown. It is driven by Tick, one logical second
// per call, so firing-once semantics are testable without wall-clock waiting;
// Run drives it from a real ticker in production.
//
// Each warning threshold fires at most once per Start/Reset, and the expiry
// callback fires exactly once. Thresholds at or above the full duration are
// ignored so a short test does not warn on its first tick.
type Timer struct {
	mu         sync.Mutex
	state      TimerState
	total      int // seconds at last Start/Reset
	remaining  int // seconds
	thresholds []int
	fired      map[int]bool

	onWarning func(minutesLeft int)
	onExpired func()
}

// NewTimer creates an idle timer with the given warning thresholds
// (DefaultWarningThresholds when none are passed).
func NewTimer(thresholds ...time.Duration) *Timer {
	if len(thresholds) == 0 {
		thresholds = DefaultWarningThresholds
	}
	secs := make([]int, 0, len(thresholds))
	for _, th := range thresholds {
		if s := int(th.Seconds()); s > 0 {
			secs = append(secs, s)
		}
	}
	return &Timer{
		state:      TimerIdle,
		thresholds: secs,
		fired:      make(map[int]bool),
	}
}

// OnWarning registers the one-shot warning callback. Set before Start.
func (t *Timer) OnWarning(fn func(minutesLeft int)) { t.onWarning = fn }

// OnExpired registers the expiry callback. Set before Start.
func (t *Timer) OnExpired(fn func()) { t.onExpired = fn }

// Start begins the countdown for the given duration. Restarting clears all
// previously-fired-warning memory.
func (t *Timer) Start(d time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if d <= 0 {
		return fmt.Errorf("timer duration must be positive, got %s", d)
	}
	if t.state == TimerRunning {
		return fmt.Errorf("timer already running")
	}
	t.total = int(d.Seconds())
	t.remaining = t.total
	t.fired = make(map[int]bool)
	t.state = TimerRunning
	return nil
}

// Tick advances the countdown by one second and returns the resulting state.
// Callbacks are invoked after the internal lock is released so they may call
// back into the timer.
func (t *Timer) Tick() TimerState {
	t.mu.Lock()
	if t.state != TimerRunning {
		st := t.state
		t.mu.Unlock()
		return st
	}

	t.remaining--

	var warnMinutes []int
	for _, th := range t.thresholds {
		if th >= t.total || t.fired[th] {
			continue
		}
		if t.remaining <= th && t.remaining > 0 {
			t.fired[th] = true
			warnMinutes = append(warnMinutes, (t.remaining+59)/60)
		}
	}

	expired := false
	if t.remaining <= 0 {
		t.remaining = 0
		t.state = TimerExpired
		expired = true
	}
	st := t.state
	onWarning := t.onWarning
	onExpired := t.onExpired
	t.mu.Unlock()

	if onWarning != nil {
		for _, m := range warnMinutes {
			onWarning(m)
		}
	}
	if expired && onExpired != nil {
		onExpired()
	}
	return st
}

// Stop halts the countdown without firing expiry. Used by manual submission.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == TimerRunning {
		t.state = TimerStopped
	}
}

// State returns the current state.
func (t *Timer) State() TimerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Remaining returns the time left on the countdown.
func (t *Timer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return time.Duration(t.remaining) * time.Second
}

// MinutesLeft returns the remaining time rounded up to whole minutes, for
// the "minutes left" indicator.
func (t *Timer) MinutesLeft() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return (t.remaining + 59) / 60
}

// Countdown formats the remaining time as hh:mm:ss.
func (t *Timer) Countdown() string {
	t.mu.Lock()
	r := t.remaining
	t.mu.Unlock()
	return fmt.Sprintf("%02d:%02d:%02d", r/3600, (r%3600)/60, r%60)
}

// Run drives the timer from a one-second wall-clock ticker until it leaves
// the Running state or the context is cancelled. Call in a goroutine.
func (t *Timer) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-ticker.C:
			if st := t.Tick(); st != TimerRunning {
				return
			}
		}
	}
}
