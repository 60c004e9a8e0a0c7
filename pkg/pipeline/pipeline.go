package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fbruhn/sprechzeit/pkg/frame"
)

// defaultQueueDepth is the per-link, per-direction queue capacity. Deep enough
// to absorb bursts (a TTS synthesis emitting many audio chunks) without
// coupling adjacent stages, shallow enough that a stalled consumer exerts
// backpressure instead of buffering unboundedly.
const defaultQueueDepth = 64

// ErrEmpty is returned by New when no processors are supplied.
var ErrEmpty = errors.New("pipeline: at least one processor is required")

// Pipeline is an ordered chain of processors. Adjacent processors are linked
// by two bounded queues, one per direction. Construct with New, then drive it
// with a Task and a Runner.
type Pipeline struct {
	nodes []*node

	// endReached is closed when a SignalEnd control frame has traversed the
	// full chain and left the tail — the graceful-stop condition.
	endReached chan struct{}

	// fatal receives the first SignalFatal control frame to escape the chain.
	fatal chan *frame.Control
}

// node wraps one processor with its inbound queues and chain position.
type node struct {
	proc Processor
	pos  int
	pipe *Pipeline

	// down and up are this node's inbound queues. The upstream neighbour's
	// downstream emissions land in down; the downstream neighbour's upstream
	// emissions land in up. Channel FIFO gives the per-link ordering guarantee.
	down chan frame.Frame
	up   chan frame.Frame
}

// New builds a Pipeline from procs in the given order. The first and last
// processors are conventionally the transport input and the assistant-side
// context aggregator (after transport output), but the engine attaches no
// semantics to the positions beyond direction routing.
func New(procs ...Processor) (*Pipeline, error) {
	if len(procs) == 0 {
		return nil, ErrEmpty
	}
	p := &Pipeline{
		endReached: make(chan struct{}),
		fatal:      make(chan *frame.Control, 1),
	}
	for i, proc := range procs {
		p.nodes = append(p.nodes, &node{
			proc: proc,
			pos:  i,
			pipe: p,
			down: make(chan frame.Frame, defaultQueueDepth),
			up:   make(chan frame.Frame, defaultQueueDepth),
		})
	}
	return p, nil
}

// inject places f on the chain's boundary queue for dir: downstream frames
// enter the head node, upstream frames enter the tail node. It blocks only on
// enqueueing, never on downstream effects.
func (p *Pipeline) inject(ctx context.Context, f frame.Frame, dir frame.Direction) error {
	var target chan frame.Frame
	if dir == frame.Downstream {
		target = p.nodes[0].down
	} else {
		target = p.nodes[len(p.nodes)-1].up
	}
	select {
	case target <- f:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pipeline: inject %s: %w", frame.Describe(f), ctx.Err())
	}
}

// emitter is the Emitter bound to one node.
type emitter struct {
	n *node
}

// Emit routes f to the neighbour in direction dir, or to the engine's
// boundary handling when emitted past either end of the chain.
func (e emitter) Emit(ctx context.Context, f frame.Frame, dir frame.Direction) error {
	return e.n.deliver(ctx, f, dir)
}

// deliver moves f one hop from n in direction dir.
func (n *node) deliver(ctx context.Context, f frame.Frame, dir frame.Direction) error {
	p := n.pipe
	var target chan frame.Frame

	if dir == frame.Downstream {
		if n.pos == len(p.nodes)-1 {
			return p.leaveTail(f)
		}
		target = p.nodes[n.pos+1].down
	} else {
		if n.pos == 0 {
			return p.leaveHead(f)
		}
		target = p.nodes[n.pos-1].up
	}

	select {
	case target <- f:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// leaveTail handles frames that exit the chain downstream. A SignalEnd control
// frame completing the traversal is the graceful-stop condition; everything
// else has been fully threaded through the chain and is discarded — frames
// keep no history, only their effects on the conversation context persist.
func (p *Pipeline) leaveTail(f frame.Frame) error {
	ctl, ok := f.(*frame.Control)
	if !ok {
		return nil
	}
	switch ctl.Signal {
	case frame.SignalEnd:
		select {
		case <-p.endReached:
		default:
			close(p.endReached)
		}
	case frame.SignalFatal:
		p.reportFatal(ctl)
	}
	return nil
}

// leaveHead handles frames that exit the chain upstream: fatal signals reach
// the runner, log frames reach the process log, anything else is discarded.
func (p *Pipeline) leaveHead(f frame.Frame) error {
	switch fr := f.(type) {
	case *frame.Control:
		if fr.Signal == frame.SignalFatal {
			p.reportFatal(fr)
		}
	case *frame.Log:
		slog.Log(context.Background(), fr.Level, fr.Message, "origin", fr.Origin)
	}
	return nil
}

// reportFatal records the first fatal control frame; later ones are dropped.
func (p *Pipeline) reportFatal(ctl *frame.Control) {
	select {
	case p.fatal <- ctl:
	default:
	}
}

// run is the node's event loop. It delivers frames from both inbound queues to
// the processor and auto-forwards control frames after the processor has seen
// them, guaranteeing lifecycle signals traverse the chain even if a processor
// ignores them.
func (n *node) run(ctx context.Context) error {
	out := emitter{n: n}
	for {
		var (
			f   frame.Frame
			dir frame.Direction
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f = <-n.down:
			dir = frame.Downstream
		case f = <-n.up:
			dir = frame.Upstream
		}

		if err := n.proc.Process(ctx, f, dir, out); err != nil {
			fatal := frame.NewFatal(n.proc.Name(), err)
			n.pipe.reportFatal(fatal)
			return fmt.Errorf("pipeline: processor %s: %w", n.proc.Name(), err)
		}

		// Control frames are forwarded by the engine, not the processor.
		if ctl, ok := f.(*frame.Control); ok {
			if err := n.deliver(ctx, ctl, dir); err != nil {
				return err
			}
		}
	}
}
