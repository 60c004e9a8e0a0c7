// Package processors contains the pipeline stages of the intake call: the
// transport boundary, speech recognition, transcript correction, context
// aggregation, response generation, and speech synthesis.
//
// Each type implements pipeline.Processor. Stage order for a call is
//
//	transport in → STT → correct → user aggregator → LLM → frame log →
//	TTS → transport out → assistant aggregator
//
// so parallel recognition and synthesis never reorder frames within a link.
package processors

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fbruhn/sprechzeit/pkg/frame"
	"github.com/fbruhn/sprechzeit/pkg/pipeline"
	"github.com/fbruhn/sprechzeit/pkg/transport"
)

// TransportIn is the head of the chain. It owns the caller-facing audio
// source: Pump reads the session's inbound stream and injects AudioRaw frames
// at the head of the pipeline. As a processor it is a pure pass-through.
type TransportIn struct {
	session transport.Session
}

// NewTransportIn creates the transport input stage for session.
func NewTransportIn(session transport.Session) *TransportIn {
	return &TransportIn{session: session}
}

// Name implements pipeline.Processor.
func (t *TransportIn) Name() string { return "transport.in" }

// Process implements pipeline.Processor by forwarding every frame unchanged.
func (t *TransportIn) Process(ctx context.Context, f frame.Frame, dir frame.Direction, out pipeline.Emitter) error {
	return pipeline.Forward(ctx, f, dir, out)
}

// Pump reads caller audio from the session and queues it on task until the
// inbound stream closes or ctx is cancelled. It returns nil when the stream
// closes, which is the normal end of a call.
func (t *TransportIn) Pump(ctx context.Context, task *pipeline.Task) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case audio, ok := <-t.session.AudioIn():
			if !ok {
				return nil
			}
			if err := task.Queue(ctx, frame.NewAudioRaw(audio)); err != nil {
				return fmt.Errorf("processors: pump caller audio: %w", err)
			}
		}
	}
}

var _ pipeline.Processor = (*TransportIn)(nil)

// TransportOut writes assistant audio to the voice session. AudioRaw frames
// travelling downstream are copied onto the session's outbound channel and
// forwarded so the tail aggregator still sees the full stream.
type TransportOut struct {
	session transport.Session
}

// NewTransportOut creates the transport output stage for session.
func NewTransportOut(session transport.Session) *TransportOut {
	return &TransportOut{session: session}
}

// Name implements pipeline.Processor.
func (t *TransportOut) Name() string { return "transport.out" }

// Process implements pipeline.Processor.
func (t *TransportOut) Process(ctx context.Context, f frame.Frame, dir frame.Direction, out pipeline.Emitter) error {
	if audio, ok := f.(*frame.AudioRaw); ok && dir == frame.Downstream {
		select {
		case t.session.AudioOut() <- audio.Audio:
		default:
			// Outbound full: the platform is not consuming fast enough.
			// Dropping keeps the pipeline live at the cost of an audio glitch.
			slog.Warn("transport.out: outbound audio buffer full, dropping frame",
				"bytes", len(audio.Audio.Data))
		}
	}
	return pipeline.Forward(ctx, f, dir, out)
}

var _ pipeline.Processor = (*TransportOut)(nil)
