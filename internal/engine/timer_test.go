package engine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openprep/testprep-backend/internal/engine"
)

func TestTimer_ExpiryFiresExactlyOnce(t *testing.T) {
	tm := engine.NewTimer()
	expiries := 0
	tm.OnExpired(func() { expiries++ })

	require.NoError(t, tm.Start(10*time.Minute))

	// Drive well past the duration; the state machine must expire at tick
	// 600 and then ignore further ticks.
	for i := 0; i < 700; i++ {
		tm.Tick()
	}

	assert.Equal(t, engine.TimerExpired, tm.State())
	assert.Equal(t, 1, expiries)
	assert.Equal(t, time.Duration(0), tm.Remaining())
}

func TestTimer_ExpiresAtDurationSeconds(t *testing.T) {
	tm := engine.NewTimer()
	require.NoError(t, tm.Start(2*time.Minute))

	for i := 0; i < 119; i++ {
		require.Equal(t, engine.TimerRunning, tm.Tick())
	}
	assert.Equal(t, engine.TimerExpired, tm.Tick())
}

func TestTimer_WarningsFireOnceEach(t *testing.T) {
	tm := engine.NewTimer()
	var warnings []int
	tm.OnWarning(func(minutesLeft int) { warnings = append(warnings, minutesLeft) })

	require.NoError(t, tm.Start(10*time.Minute))
	for i := 0; i < 600; i++ {
		tm.Tick()
	}

	// 5-minute and 1-minute thresholds, each at most once, regardless of how
	// many ticks pass below them.
	assert.Equal(t, []int{5, 1}, warnings)
}

func TestTimer_ThresholdAboveDurationIgnored(t *testing.T) {
	tm := engine.NewTimer()
	var warnings []int
	tm.OnWarning(func(minutesLeft int) { warnings = append(warnings, minutesLeft) })

	// A 3-minute test must not trigger the 5-minute warning on its first
	// tick; only the 1-minute mark applies.
	require.NoError(t, tm.Start(3*time.Minute))
	for i := 0; i < 180; i++ {
		tm.Tick()
	}

	assert.Equal(t, []int{1}, warnings)
}

func TestTimer_StopHaltsWithoutExpiry(t *testing.T) {
	tm := engine.NewTimer()
	expiries := 0
	tm.OnExpired(func() { expiries++ })

	require.NoError(t, tm.Start(1*time.Minute))
	for i := 0; i < 30; i++ {
		tm.Tick()
	}
	tm.Stop()

	for i := 0; i < 100; i++ {
		tm.Tick()
	}

	assert.Equal(t, engine.TimerStopped, tm.State())
	assert.Equal(t, 0, expiries)
	assert.Equal(t, 30*time.Second, tm.Remaining())
}

func TestTimer_RestartClearsWarningMemory(t *testing.T) {
	tm := engine.NewTimer()
	warnings := 0
	tm.OnWarning(func(int) { warnings++ })

	require.NoError(t, tm.Start(2*time.Minute))
	for i := 0; i < 70; i++ { // crosses the 1-minute mark
		tm.Tick()
	}
	require.Equal(t, 1, warnings)
	tm.Stop()

	require.NoError(t, tm.Start(2*time.Minute))
	for i := 0; i < 70; i++ {
		tm.Tick()
	}
	assert.Equal(t, 2, warnings, "restart must re-arm the threshold")
}

func TestTimer_StartWhileRunningRejected(t *testing.T) {
	tm := engine.NewTimer()
	require.NoError(t, tm.Start(time.Minute))
	assert.Error(t, tm.Start(time.Minute))
}

func TestTimer_DisplayValues(t *testing.T) {
	tm := engine.NewTimer()
	require.NoError(t, tm.Start(90*time.Minute))

	assert.Equal(t, 90, tm.MinutesLeft())
	assert.Equal(t, "01:30:00", tm.Countdown())

	tm.Tick()
	// 5399s left: the minutes indicator is the ceiling, the countdown exact.
	assert.Equal(t, 90, tm.MinutesLeft())
	assert.Equal(t, "01:29:59", tm.Countdown())

	for i := 0; i < 59; i++ {
		tm.Tick()
	}
	assert.Equal(t, 89, tm.MinutesLeft())
	assert.Equal(t, "01:29:00", tm.Countdown())
}

func TestTimer_ZeroDurationRejected(t *testing.T) {
	tm := engine.NewTimer()
	assert.Error(t, tm.Start(0))
}
