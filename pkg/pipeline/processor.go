// Package pipeline implements the frame-streaming engine: an ordered chain of
// processors connected by bounded queues, a task that injects frames into the
// chain, and a runner that drives the whole thing to completion.
//
// Frames travel in two directions. Downstream follows the processor list order
// (caller → agent → caller-facing output); upstream flows the other way and
// carries control and error signals. Each processor runs on its own goroutine,
// so one processor suspending on a network call never blocks delivery of
// unrelated frames to its siblings — but frames emitted by a single processor
// in a single direction are always delivered to its neighbour in emission
// order (FIFO per direction per link).
package pipeline

import (
	"context"

	"github.com/fbruhn/sprechzeit/pkg/frame"
)

// Emitter delivers frames produced by a processor to its neighbours. An
// Emitter is bound to the emitting processor's position in the chain:
// downstream emission goes to the next processor in list order, upstream to
// the previous one. Emitting past either end is valid — downstream past the
// tail reaches the engine's sink, upstream past the head reaches the runner.
//
// Emit blocks while the receiving queue is full (backpressure) and returns
// ctx's error if the context is cancelled first.
type Emitter interface {
	Emit(ctx context.Context, f frame.Frame, dir frame.Direction) error
}

// Processor is one stage of the pipeline.
//
// Process is called once per delivered frame and may emit zero or more frames
// in either direction via out. A processor dispatches on the concrete frame
// type and must forward data frames it does not handle unchanged, in the
// direction they arrived.
//
// Control frames are the exception: the engine forwards every frame.Control
// itself after Process returns, so processors may react to a control signal
// (flush a buffer, abandon a generation) but must not re-emit the received
// control frame.
//
// A non-nil error from Process is fatal: the engine converts it into a
// SignalFatal control frame and the runner tears the pipeline down. Recoverable
// problems should instead be reported upstream as frame.Log frames, after which
// Process returns nil and the conversation continues. Retry policy for external
// collaborators is internal to each processor; the engine never retries on a
// processor's behalf.
//
// A processor may hold private mutable state. The only state shared between
// processors is the conversation context, reached via LLMContext frames.
type Processor interface {
	// Name identifies the processor in logs and control-frame origins.
	Name() string

	// Process handles one frame delivered in direction dir.
	Process(ctx context.Context, f frame.Frame, dir frame.Direction, out Emitter) error
}

// Forward re-emits f in direction dir, the standard pass-through for frame
// types a processor does not handle. Control frames are skipped: the engine
// forwards those itself after Process returns, so passing them here too
// would deliver every signal twice.
func Forward(ctx context.Context, f frame.Frame, dir frame.Direction, out Emitter) error {
	if _, ok := f.(*frame.Control); ok {
		return nil
	}
	return out.Emit(ctx, f, dir)
}
