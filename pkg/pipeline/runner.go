package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Runner drives a Task's pipeline to completion.
type Runner struct {
	log *slog.Logger
}

// NewRunner returns a Runner logging through logger, or slog.Default() when
// logger is nil.
func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{log: logger}
}

// Run starts the pipeline's event loops and blocks until one of:
//
//   - a SignalEnd control frame has traversed the whole chain (graceful stop,
//     returns nil),
//   - a SignalFatal control frame escapes the chain or a processor returns an
//     error (returns that failure), or
//   - ctx is cancelled (transport disconnect, shutdown signal; returns
//     ctx.Err()).
//
// On any exit path Run cancels the per-node contexts and waits for all
// processor goroutines to unwind before returning, so every suspended
// collaborator call is cancelled and no goroutine outlives the run.
func (r *Runner) Run(ctx context.Context, task *Task) error {
	p := task.pipeline

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gCtx := errgroup.WithContext(runCtx)
	for _, n := range p.nodes {
		n := n
		g.Go(func() error {
			err := n.run(gCtx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	var runErr error
	select {
	case <-p.endReached:
		r.log.Debug("pipeline reached end of stream")
	case ctl := <-p.fatal:
		runErr = fmt.Errorf("pipeline: fatal signal from %s: %w", ctl.Origin, ctl.Err)
		r.log.Error("pipeline fatal", "origin", ctl.Origin, "err", ctl.Err)
	case <-ctx.Done():
		runErr = ctx.Err()
		r.log.Debug("pipeline run cancelled", "err", ctx.Err())
	}

	// Unwind all nodes and collect the first processor error, if any.
	cancel()
	if err := g.Wait(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
