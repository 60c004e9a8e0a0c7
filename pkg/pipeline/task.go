package pipeline

import (
	"context"
	"time"

	"github.com/fbruhn/sprechzeit/pkg/frame"
)

// defaultCollaboratorTimeout bounds any single external collaborator call made
// by a processor. A stalled collaborator otherwise stalls the whole
// conversational turn.
const defaultCollaboratorTimeout = 30 * time.Second

// Params configures one pipeline run.
type Params struct {
	// AllowInterruptions controls barge-in. When false (the intake deployment
	// default), caller speech arriving while the assistant is mid-utterance
	// does not pre-empt playback. When true, a final caller transcript during
	// assistant output emits an upstream SignalInterrupt that makes the LLM
	// and TTS processors abandon the current generation.
	AllowInterruptions bool

	// CollaboratorTimeout bounds each external collaborator call (STT send,
	// LLM completion, TTS synthesis). Zero selects the default of 30s.
	CollaboratorTimeout time.Duration
}

// Task binds a Pipeline to its run parameters and is the injection point for
// frames. Create one Task per call session.
type Task struct {
	pipeline *Pipeline
	params   Params
}

// NewTask creates a Task driving p with params.
func NewTask(p *Pipeline, params Params) *Task {
	if params.CollaboratorTimeout <= 0 {
		params.CollaboratorTimeout = defaultCollaboratorTimeout
	}
	return &Task{pipeline: p, params: params}
}

// Params returns the task's run parameters.
func (t *Task) Params() Params { return t.params }

// Queue injects frames at the head of the chain travelling downstream, in
// order. It blocks only on enqueueing — delivery through the chain is
// asynchronous relative to the caller. Queueing before the runner has started
// is valid; the frames are delivered once the run begins.
func (t *Task) Queue(ctx context.Context, frames ...frame.Frame) error {
	for _, f := range frames {
		if err := t.pipeline.inject(ctx, f, frame.Downstream); err != nil {
			return err
		}
	}
	return nil
}

// QueueUpstream injects f at the tail of the chain travelling upstream.
func (t *Task) QueueUpstream(ctx context.Context, f frame.Frame) error {
	return t.pipeline.inject(ctx, f, frame.Upstream)
}

// Stop requests a graceful stop by queueing a SignalEnd control frame
// downstream. Frames already queued ahead of it are fully delivered before the
// runner returns.
func (t *Task) Stop(ctx context.Context) error {
	return t.Queue(ctx, frame.NewControl(frame.SignalEnd, "task"))
}
