package engine

import "time"

// Clock abstracts wall-clock access so attempt timestamps and elapsed-time
// math are testable without real waiting.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the real wall clock.
func SystemClock() Clock { return systemClock{} }
