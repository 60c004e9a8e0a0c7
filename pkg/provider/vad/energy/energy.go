// Package energy implements a VAD engine based on short-time signal energy.
//
// Each frame's RMS level is normalised against a slowly adapting noise floor
// and mapped to a pseudo-probability. Hysteresis between the speech and
// silence thresholds plus short debounce windows keep single noisy frames
// from toggling the detection state.
package energy

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/fbruhn/sprechzeit/pkg/provider/vad"
	"github.com/fbruhn/sprechzeit/pkg/types"
)

const (
	// startFrames is how many consecutive speech frames confirm a start.
	startFrames = 3
	// endFrames is how many consecutive silence frames confirm an end.
	endFrames = 10
	// noiseAdapt controls how fast the noise floor tracks quiet frames.
	noiseAdapt = 0.05
)

// Engine implements vad.Engine.
type Engine struct{}

// New returns a new energy VAD engine.
func New() *Engine {
	return &Engine{}
}

// NewSession implements vad.Engine.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("energy: sample rate must be positive, got %d", cfg.SampleRate)
	}
	if cfg.FrameSizeMs <= 0 {
		return nil, fmt.Errorf("energy: frame size must be positive, got %dms", cfg.FrameSizeMs)
	}
	if cfg.SpeechThreshold < 0 || cfg.SpeechThreshold > 1 {
		return nil, fmt.Errorf("energy: speech threshold %.2f out of range [0,1]", cfg.SpeechThreshold)
	}
	if cfg.SilenceThreshold > cfg.SpeechThreshold {
		return nil, fmt.Errorf("energy: silence threshold %.2f exceeds speech threshold %.2f",
			cfg.SilenceThreshold, cfg.SpeechThreshold)
	}

	samplesPerFrame := cfg.SampleRate * cfg.FrameSizeMs / 1000
	return &session{
		cfg:        cfg,
		frameBytes: samplesPerFrame * 2, // 16-bit mono PCM
		noiseFloor: 100,                 // conservative prior for 16-bit audio
	}, nil
}

var _ vad.Engine = (*Engine)(nil)

// session holds the per-stream detection state.
type session struct {
	cfg        vad.Config
	frameBytes int

	noiseFloor   float64
	inSpeech     bool
	speechCount  int
	silenceCount int
	closed       bool
}

// ProcessFrame implements vad.SessionHandle.
func (s *session) ProcessFrame(frame []byte) (types.VADEvent, error) {
	if s.closed {
		return types.VADEvent{}, fmt.Errorf("energy: session closed")
	}
	if len(frame) != s.frameBytes {
		return types.VADEvent{}, fmt.Errorf("energy: frame size %d bytes, want %d", len(frame), s.frameBytes)
	}

	rms := rmsLevel(frame)
	prob := s.probability(rms)

	// Track the noise floor only while the signal looks quiet.
	if prob < s.cfg.SilenceThreshold {
		s.noiseFloor += noiseAdapt * (rms - s.noiseFloor)
		if s.noiseFloor < 1 {
			s.noiseFloor = 1
		}
	}

	ev := types.VADEvent{Probability: prob}
	switch {
	case !s.inSpeech && prob >= s.cfg.SpeechThreshold:
		s.speechCount++
		s.silenceCount = 0
		if s.speechCount >= startFrames {
			s.inSpeech = true
			ev.Type = types.VADSpeechStart
		} else {
			ev.Type = types.VADSilence
		}
	case s.inSpeech && prob <= s.cfg.SilenceThreshold:
		s.silenceCount++
		s.speechCount = 0
		if s.silenceCount >= endFrames {
			s.inSpeech = false
			ev.Type = types.VADSpeechEnd
		} else {
			ev.Type = types.VADSpeechContinue
		}
	case s.inSpeech:
		s.silenceCount = 0
		ev.Type = types.VADSpeechContinue
	default:
		s.speechCount = 0
		ev.Type = types.VADSilence
	}
	return ev, nil
}

// probability maps the frame RMS onto [0,1] relative to the noise floor.
// A frame 20 dB above the floor saturates at 1.0.
func (s *session) probability(rms float64) float64 {
	if rms <= s.noiseFloor {
		return 0
	}
	ratioDB := 20 * math.Log10(rms/s.noiseFloor)
	p := ratioDB / 20
	if p > 1 {
		p = 1
	}
	return p
}

// Reset implements vad.SessionHandle.
func (s *session) Reset() {
	s.inSpeech = false
	s.speechCount = 0
	s.silenceCount = 0
}

// Close implements vad.SessionHandle.
func (s *session) Close() error {
	s.closed = true
	return nil
}

var _ vad.SessionHandle = (*session)(nil)

// rmsLevel computes the root-mean-square of 16-bit little-endian PCM.
func rmsLevel(frame []byte) float64 {
	n := len(frame) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sample := int16(binary.LittleEndian.Uint16(frame[i*2:]))
		sum += float64(sample) * float64(sample)
	}
	return math.Sqrt(sum / float64(n))
}
