package processors

import "sync/atomic"

// Interrupt is a barge-in epoch counter shared by the processors of one call
// session. The recognition stage raises it when VAD detects the caller
// speaking over the assistant; the generation and synthesis processors sample
// the epoch when a response starts and abandon their work once it moves.
//
// An epoch counter is used instead of a control frame because processors are
// single event loops: a frame queued behind an in-flight generation could
// never pre-empt it.
type Interrupt struct {
	epoch atomic.Uint64
}

// NewInterrupt returns a fresh interrupt state at epoch zero.
func NewInterrupt() *Interrupt {
	return &Interrupt{}
}

// Raise advances the epoch, invalidating any generation started before now.
func (i *Interrupt) Raise() {
	i.epoch.Add(1)
}

// Epoch returns the current epoch.
func (i *Interrupt) Epoch() uint64 {
	return i.epoch.Load()
}

// Stale reports whether the epoch has moved since the given sample.
func (i *Interrupt) Stale(since uint64) bool {
	return i.epoch.Load() != since
}
