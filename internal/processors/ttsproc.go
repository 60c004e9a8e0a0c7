package processors

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fbruhn/sprechzeit/internal/observe"
	"github.com/fbruhn/sprechzeit/pkg/frame"
	"github.com/fbruhn/sprechzeit/pkg/pipeline"
	"github.com/fbruhn/sprechzeit/pkg/provider/tts"
	"github.com/fbruhn/sprechzeit/pkg/types"
)

// Speaker synthesises assistant reply text. Each Text frame — the generator
// emits them sentence-sized — becomes one synthesis call whose audio chunks
// are emitted downstream as AudioRaw frames, followed by the Text frame
// itself so the tail aggregator can reassemble the utterance.
//
// A barge-in (interrupt epoch moving) abandons the current synthesis and
// swallows the Text frame: text the caller never heard must not enter the
// conversation context.
type Speaker struct {
	provider   tts.Provider
	voice      types.VoiceProfile
	sampleRate int
	interrupt  *Interrupt
	turn       *TurnClock
	timeout    time.Duration
	log        *slog.Logger
	metrics    *observe.Metrics
}

// SpeakerConfig bundles the construction parameters for a Speaker.
type SpeakerConfig struct {
	Provider tts.Provider
	Voice    types.VoiceProfile
	// SampleRate is the PCM rate the provider was configured to emit; it tags
	// the outgoing audio frames.
	SampleRate int
	Interrupt  *Interrupt
	Turn       *TurnClock
	// Timeout bounds a single synthesis call. Zero means no extra bound.
	Timeout time.Duration
	Log     *slog.Logger
	Metrics *observe.Metrics
}

// NewSpeaker creates the synthesis stage.
func NewSpeaker(cfg SpeakerConfig) *Speaker {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Interrupt == nil {
		cfg.Interrupt = NewInterrupt()
	}
	if cfg.Turn == nil {
		cfg.Turn = NewTurnClock()
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	return &Speaker{
		provider:   cfg.Provider,
		voice:      cfg.Voice,
		sampleRate: cfg.SampleRate,
		interrupt:  cfg.Interrupt,
		turn:       cfg.Turn,
		timeout:    cfg.Timeout,
		log:        cfg.Log,
		metrics:    cfg.Metrics,
	}
}

// Name implements pipeline.Processor.
func (s *Speaker) Name() string { return "tts" }

// Process implements pipeline.Processor.
func (s *Speaker) Process(ctx context.Context, f frame.Frame, dir frame.Direction, out pipeline.Emitter) error {
	txt, ok := f.(*frame.Text)
	if !ok || dir != frame.Downstream {
		return pipeline.Forward(ctx, f, dir, out)
	}
	if txt.Text == "" {
		return nil
	}
	return s.speak(ctx, txt, out)
}

// speak synthesises one text fragment and emits its audio.
func (s *Speaker) speak(ctx context.Context, txt *frame.Text, out pipeline.Emitter) error {
	epoch := s.interrupt.Epoch()

	synthCtx := ctx
	cancel := context.CancelFunc(func() {})
	if s.timeout > 0 {
		synthCtx, cancel = context.WithTimeout(ctx, s.timeout)
	}
	defer cancel()

	text := make(chan string, 1)
	text <- txt.Text
	close(text)

	started := time.Now()
	audioCh, err := s.provider.SynthesizeStream(synthCtx, text, s.voice)
	if err != nil {
		// Recoverable: the reply still reaches the transcript, the caller
		// just hears nothing for this sentence.
		s.metrics.RecordProviderError(ctx, "tts", "synthesize")
		if lerr := out.Emit(ctx, frame.NewLog(slog.LevelError, s.Name(),
			fmt.Sprintf("synthesis failed: %v", err)), frame.Upstream); lerr != nil {
			return lerr
		}
		return pipeline.Forward(ctx, txt, frame.Downstream, out)
	}
	s.metrics.RecordProviderRequest(ctx, "tts", "synthesize", "ok")

	for chunk := range audioCh {
		if s.interrupt.Stale(epoch) {
			cancel()
			for range audioCh {
				// drain so the provider goroutine can exit
			}
			s.log.Debug("tts: synthesis abandoned on barge-in")
			return nil
		}
		audio := types.AudioFrame{
			Data:       chunk,
			SampleRate: s.sampleRate,
			Channels:   1,
		}
		if err := out.Emit(ctx, frame.NewAudioRaw(audio), frame.Downstream); err != nil {
			return err
		}
		if d, running := s.turn.Stop(); running {
			s.metrics.TurnDuration.Record(ctx, d.Seconds())
		}
	}
	s.metrics.TTSDuration.Record(ctx, time.Since(started).Seconds())

	return pipeline.Forward(ctx, txt, frame.Downstream, out)
}

var _ pipeline.Processor = (*Speaker)(nil)
