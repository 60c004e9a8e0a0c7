// Package vad defines the Engine interface for voice activity detection.
//
// A VAD engine surfaces a frame-level speech detector as a stateful
// per-stream session. Each session keeps its own smoothing state so multiple
// concurrent audio streams are processed independently. Detection is
// synchronous: ProcessFrame returns immediately, making it suitable for
// gating STT input inside a pipeline stage.
//
// Engines must be safe for concurrent use; a single SessionHandle is not,
// unless the implementation documents otherwise.
package vad

import "github.com/fbruhn/sprechzeit/pkg/types"

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the PCM sample rate in Hz of frames passed to
	// ProcessFrame. Common values: 8000, 16000, 48000.
	SampleRate int

	// FrameSizeMs is the duration of each frame in milliseconds. ProcessFrame
	// returns an error when the supplied frame does not match.
	FrameSizeMs int

	// SpeechThreshold is the probability above which a frame counts as
	// speech, in [0.0, 1.0]. Typical: 0.5.
	SpeechThreshold float64

	// SilenceThreshold is the probability below which an active speech
	// segment is considered ended. Must be <= SpeechThreshold. Typical: 0.35.
	SilenceThreshold float64
}

// SessionHandle is an active VAD session for one audio stream.
type SessionHandle interface {
	// ProcessFrame analyses one frame of raw little-endian PCM and returns
	// the detection result. It must not block.
	ProcessFrame(frame []byte) (types.VADEvent, error)

	// Reset clears accumulated detection state without closing the session.
	// Use when the stream is interrupted or restarted.
	Reset()

	// Close releases session resources. Calling Close more than once is safe.
	Close() error
}

// Engine is the factory for VAD sessions.
type Engine interface {
	// NewSession creates a session ready to accept audio frames. Returns an
	// error for invalid configuration.
	NewSession(cfg Config) (SessionHandle, error)
}
