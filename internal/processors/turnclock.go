package processors

import (
	"sync/atomic"
	"time"
)

// TurnClock measures the response latency the caller actually experiences:
// the time from a final caller transcript to the first assistant audio chunk.
// The recognition stage starts it and the synthesis stage stops it; a shared
// atomic is used because the two stages run in different goroutines.
type TurnClock struct {
	startNano atomic.Int64
}

// NewTurnClock returns a stopped clock.
func NewTurnClock() *TurnClock {
	return &TurnClock{}
}

// Start marks the beginning of a turn. A later Start before the turn is
// stopped moves the mark, so the measurement always covers the most recent
// caller utterance.
func (t *TurnClock) Start() {
	t.startNano.Store(time.Now().UnixNano())
}

// Stop returns the elapsed time since Start and resets the clock. The second
// return is false when no turn is running, which happens for unprompted
// speech such as the greeting.
func (t *TurnClock) Stop() (time.Duration, bool) {
	start := t.startNano.Swap(0)
	if start == 0 {
		return 0, false
	}
	return time.Duration(time.Now().UnixNano() - start), true
}
