package processors

import (
	"context"
	"log/slog"

	"github.com/fbruhn/sprechzeit/internal/observe"
	"github.com/fbruhn/sprechzeit/pkg/frame"
	"github.com/fbruhn/sprechzeit/pkg/pipeline"
)

// FrameLog is a transparent observability stage. Every frame passing through
// is logged at debug level and counted in the frame metric, then forwarded
// unchanged. Audio frames are counted but not logged: at 50 frames a second
// they would drown everything else out.
type FrameLog struct {
	log     *slog.Logger
	metrics *observe.Metrics
}

// NewFrameLog creates a frame logger. A nil logger selects slog.Default();
// a nil metrics selects observe.DefaultMetrics().
func NewFrameLog(log *slog.Logger, metrics *observe.Metrics) *FrameLog {
	if log == nil {
		log = slog.Default()
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &FrameLog{log: log, metrics: metrics}
}

// Name implements pipeline.Processor.
func (l *FrameLog) Name() string { return "framelog" }

// Process implements pipeline.Processor.
func (l *FrameLog) Process(ctx context.Context, f frame.Frame, dir frame.Direction, out pipeline.Emitter) error {
	l.metrics.RecordFrame(ctx, f.Kind().String(), dir.String())

	if f.Kind() != frame.KindAudioRaw {
		l.log.Debug("frame", "direction", dir.String(), "frame", frame.Describe(f))
	}
	return pipeline.Forward(ctx, f, dir, out)
}

var _ pipeline.Processor = (*FrameLog)(nil)
