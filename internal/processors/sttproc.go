package processors

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fbruhn/sprechzeit/internal/observe"
	"github.com/fbruhn/sprechzeit/pkg/frame"
	"github.com/fbruhn/sprechzeit/pkg/pipeline"
	"github.com/fbruhn/sprechzeit/pkg/provider/stt"
	"github.com/fbruhn/sprechzeit/pkg/provider/vad"
	"github.com/fbruhn/sprechzeit/pkg/transport"
	"github.com/fbruhn/sprechzeit/pkg/types"
)

// hangoverFrames is how many frames after VAD speech end keep flowing to the
// STT provider, so trailing syllables are not clipped. At 20 ms per frame
// this is 600 ms.
const hangoverFrames = 30

// Recognizer converts caller audio into transcript frames. It owns one STT
// streaming session and one VAD session per call. Inbound AudioRaw frames are
// resampled to the recognition format, gated by voice activity, and sent to
// the provider; recognition results come back asynchronously and are emitted
// downstream as TranscriptText frames.
//
// When barge-in is enabled, a VAD speech start raises the shared interrupt
// epoch and emits a SignalInterrupt control frame downstream so in-flight
// generation and synthesis are abandoned.
type Recognizer struct {
	provider  stt.Provider
	streamCfg stt.StreamConfig
	vadEngine vad.Engine
	vadCfg    vad.Config
	interrupt *Interrupt
	turn      *TurnClock
	bargeIn   bool
	log       *slog.Logger
	metrics   *observe.Metrics

	// speechEndNano holds the wall clock of the last VAD speech end, consumed
	// by the transcript pump to measure recognition latency.
	speechEndNano atomic.Int64

	startOnce sync.Once
	startErr  error
	session   stt.SessionHandle
	vadSess   vad.SessionHandle
	conv      transport.FormatConverter
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	buf       []byte
	vadBytes  int
	inSpeech  bool
	hangover  int
	closeOnce sync.Once
}

// RecognizerConfig bundles the construction parameters for a Recognizer.
type RecognizerConfig struct {
	Provider  stt.Provider
	Stream    stt.StreamConfig
	VAD       vad.Engine
	VADConfig vad.Config
	Interrupt *Interrupt
	Turn      *TurnClock
	// BargeIn enables interrupt raising on VAD speech start.
	BargeIn bool
	Log     *slog.Logger
	Metrics *observe.Metrics
}

// NewRecognizer creates the STT stage. The provider session is opened lazily
// on the first audio frame so pipeline construction never blocks on the
// network.
func NewRecognizer(cfg RecognizerConfig) *Recognizer {
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
	return &Recognizer{
		provider:  cfg.Provider,
		streamCfg: cfg.Stream,
		vadEngine: cfg.VAD,
		vadCfg:    cfg.VADConfig,
		interrupt: cfg.Interrupt,
		turn:      cfg.Turn,
		bargeIn:   cfg.BargeIn,
		log:       cfg.Log,
		metrics:   cfg.Metrics,
		conv: transport.FormatConverter{
			Target: transport.Format{SampleRate: cfg.Stream.SampleRate, Channels: cfg.Stream.Channels},
		},
	}
}

// Name implements pipeline.Processor.
func (r *Recognizer) Name() string { return "stt" }

// Process implements pipeline.Processor.
func (r *Recognizer) Process(ctx context.Context, f frame.Frame, dir frame.Direction, out pipeline.Emitter) error {
	switch fr := f.(type) {
	case *frame.AudioRaw:
		if dir != frame.Downstream {
			return pipeline.Forward(ctx, f, dir, out)
		}
		return r.handleAudio(ctx, fr, out)
	case *frame.Control:
		if fr.Signal == frame.SignalEnd {
			r.shutdown()
		}
		return nil // engine forwards control frames
	default:
		return pipeline.Forward(ctx, f, dir, out)
	}
}

// handleAudio converts, VAD-gates, and ships one audio chunk.
func (r *Recognizer) handleAudio(ctx context.Context, fr *frame.AudioRaw, out pipeline.Emitter) error {
	r.startOnce.Do(func() { r.start(ctx, out) })
	if r.startErr != nil {
		// Session never opened: the call cannot proceed without recognition.
		return r.startErr
	}

	converted := r.conv.Convert(fr.Audio)
	if len(converted.Data) == 0 {
		return nil
	}
	r.buf = append(r.buf, converted.Data...)

	for len(r.buf) >= r.vadBytes {
		chunk := r.buf[:r.vadBytes]
		r.buf = r.buf[r.vadBytes:]

		send := true
		if r.vadSess != nil {
			ev, err := r.vadSess.ProcessFrame(chunk)
			if err != nil {
				r.log.Warn("stt: vad error, passing audio through", "error", err)
			} else {
				send = r.gate(ctx, ev, out)
			}
		}
		if !send {
			continue
		}

		if err := r.session.SendAudio(chunk); err != nil {
			r.metrics.RecordProviderError(ctx, "stt", "send_audio")
			if lerr := out.Emit(ctx, frame.NewLog(slog.LevelWarn, r.Name(),
				fmt.Sprintf("send audio: %v", err)), frame.Upstream); lerr != nil {
				return lerr
			}
			return nil
		}
	}
	return nil
}

// gate updates the speech/hangover state from ev and reports whether the
// current chunk should reach the provider. Chunks within the hangover window
// after speech end still pass so trailing syllables survive.
func (r *Recognizer) gate(ctx context.Context, ev types.VADEvent, out pipeline.Emitter) bool {
	switch ev.Type {
	case types.VADSpeechStart:
		r.inSpeech = true
		r.hangover = 0
		if r.bargeIn {
			r.interrupt.Raise()
			if err := out.Emit(ctx, frame.NewControl(frame.SignalInterrupt, r.Name()), frame.Downstream); err != nil {
				r.log.Warn("stt: emit interrupt", "error", err)
			}
		}
		return true
	case types.VADSpeechContinue:
		r.inSpeech = true
		return true
	case types.VADSpeechEnd:
		r.inSpeech = false
		r.hangover = hangoverFrames
		r.speechEndNano.Store(time.Now().UnixNano())
		return true
	default: // silence
		if r.hangover > 0 {
			r.hangover--
			return true
		}
		return false
	}
}

// start opens the STT and VAD sessions and launches the result pumps. Errors
// are stored in startErr for the calling Process to surface.
func (r *Recognizer) start(ctx context.Context, out pipeline.Emitter) {
	session, err := r.provider.StartStream(ctx, r.streamCfg)
	if err != nil {
		r.startErr = fmt.Errorf("stt: start stream: %w", err)
		r.metrics.RecordProviderError(ctx, "stt", "start_stream")
		return
	}
	r.session = session
	r.metrics.RecordProviderRequest(ctx, "stt", "start_stream", "ok")

	if r.vadEngine != nil {
		vs, verr := r.vadEngine.NewSession(r.vadCfg)
		if verr != nil {
			r.log.Warn("stt: vad session unavailable, audio passes ungated", "error", verr)
		} else {
			r.vadSess = vs
		}
	}
	r.vadBytes = r.streamCfg.SampleRate * r.streamCfg.Channels * 2 * r.vadCfg.FrameSizeMs / 1000
	if r.vadBytes <= 0 {
		r.vadBytes = r.streamCfg.SampleRate * r.streamCfg.Channels * 2 * 20 / 1000
	}

	pumpCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(2)
	go r.pumpTranscripts(pumpCtx, session.Finals(), out)
	go r.pumpTranscripts(pumpCtx, session.Partials(), out)

	// External cancellation (runner stop, transport disconnect) must release
	// the provider sessions too. The graceful path runs shutdown first and
	// makes this a no-op.
	go func() {
		<-pumpCtx.Done()
		r.shutdown()
	}()
}

// pumpTranscripts forwards recognition results downstream until ch closes.
// Both finals and partials travel as TranscriptText frames; IsFinal tells the
// aggregator which ones count.
func (r *Recognizer) pumpTranscripts(ctx context.Context, ch <-chan types.Transcript, out pipeline.Emitter) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-ch:
			if !ok {
				return
			}
			if t.IsFinal {
				if end := r.speechEndNano.Swap(0); end != 0 {
					r.metrics.STTDuration.Record(ctx, time.Duration(time.Now().UnixNano()-end).Seconds())
				}
				r.turn.Start()
			}
			if err := out.Emit(ctx, frame.NewTranscriptText(t), frame.Downstream); err != nil {
				r.log.Warn("stt: emit transcript", "error", err)
				return
			}
		}
	}
}

// shutdown closes the provider sessions, flushing buffered audio.
func (r *Recognizer) shutdown() {
	r.closeOnce.Do(func() {
		if r.session != nil {
			if err := r.session.Close(); err != nil {
				r.log.Warn("stt: close session", "error", err)
			}
		}
		if r.vadSess != nil {
			_ = r.vadSess.Close()
		}
		if r.cancel != nil {
			r.cancel()
		}
		r.wg.Wait()
	})
}

var _ pipeline.Processor = (*Recognizer)(nil)
