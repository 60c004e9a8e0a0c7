// Package frame defines the frame taxonomy for the Sprechzeit pipeline.
//
// A Frame is an immutable, timestamped unit of data or control flowing through
// the processor chain: an audio chunk, a transcript, a conversation-context
// snapshot, a tool call and its result, or a control signal. Frames carry no
// direction themselves — direction is a property of where a frame is injected
// (see the pipeline package).
//
// Frames are immutable once created: construction via the New* functions is
// the only supported way to produce one, and a processor that wants to
// "modify" a frame constructs a new one instead. Processors dispatch on the
// concrete frame type via a type switch and must forward frame types they do
// not handle unchanged, so new frame kinds can be introduced without breaking
// existing processors.
package frame

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/fbruhn/sprechzeit/pkg/convo"
	"github.com/fbruhn/sprechzeit/pkg/types"
)

// Frame is the interface implemented by every frame kind. It is sealed: only
// types in this package can satisfy it, which keeps the taxonomy closed enough
// for exhaustive handling while still allowing pass-through of unknown kinds.
type Frame interface {
	// Kind identifies the frame's payload category.
	Kind() Kind

	// CreatedAt is the time the frame was constructed.
	CreatedAt() time.Time

	isFrame()
}

// Kind enumerates the frame payload categories.
type Kind int

const (
	// KindAudioRaw carries a chunk of raw PCM audio.
	KindAudioRaw Kind = iota

	// KindTranscriptText carries a speech-to-text result for caller audio.
	KindTranscriptText

	// KindText carries a fragment of assistant reply text on its way to TTS
	// and the assistant-side context aggregator.
	KindText

	// KindLLMContext carries a reference to the shared conversation context,
	// signalling the LLM processor to produce a completion from it.
	KindLLMContext

	// KindToolCall carries a tool invocation requested by the model.
	KindToolCall

	// KindToolResult carries the host's answer to a tool call.
	KindToolResult

	// KindControlSignal carries a pipeline lifecycle or flow-control signal.
	KindControlSignal

	// KindLog carries a diagnostic message emitted by a processor.
	KindLog
)

// String returns the frame kind's name.
func (k Kind) String() string {
	switch k {
	case KindAudioRaw:
		return "AudioRaw"
	case KindTranscriptText:
		return "TranscriptText"
	case KindText:
		return "Text"
	case KindLLMContext:
		return "LLMContext"
	case KindToolCall:
		return "ToolCall"
	case KindToolResult:
		return "ToolResult"
	case KindControlSignal:
		return "ControlSignal"
	case KindLog:
		return "Log"
	default:
		return "Unknown"
	}
}

// Direction is the travel direction of a frame through the pipeline.
type Direction int

const (
	// Downstream flows caller → agent → caller-facing output (list order).
	Downstream Direction = iota

	// Upstream flows agent → caller input (reverse list order), used for
	// control and error signalling.
	Upstream
)

// String returns the direction's name.
func (d Direction) String() string {
	if d == Upstream {
		return "UPSTREAM"
	}
	return "DOWNSTREAM"
}

// base provides the shared timestamp and seals the Frame interface.
type base struct {
	created time.Time
}

func newBase() base { return base{created: time.Now()} }

// CreatedAt is the time the frame was constructed.
func (b base) CreatedAt() time.Time { return b.created }

func (base) isFrame() {}

// ─── Frame kinds ──────────────────────────────────────────────────────────────

// AudioRaw carries one chunk of raw PCM audio. Treat Audio as read-only.
type AudioRaw struct {
	base

	// Audio is the PCM payload with its format metadata.
	Audio types.AudioFrame
}

// NewAudioRaw constructs an AudioRaw frame around audio.
func NewAudioRaw(audio types.AudioFrame) *AudioRaw {
	return &AudioRaw{base: newBase(), Audio: audio}
}

// Kind returns KindAudioRaw.
func (*AudioRaw) Kind() Kind { return KindAudioRaw }

// TranscriptText carries an STT result for caller speech. Partial transcripts
// have Transcript.IsFinal == false and are for observability only; final
// transcripts are routed into the conversation context.
type TranscriptText struct {
	base

	// Transcript is the recognition result.
	Transcript types.Transcript
}

// NewTranscriptText constructs a TranscriptText frame around t.
func NewTranscriptText(t types.Transcript) *TranscriptText {
	return &TranscriptText{base: newBase(), Transcript: t}
}

// Kind returns KindTranscriptText.
func (*TranscriptText) Kind() Kind { return KindTranscriptText }

// Text carries a fragment of assistant reply text. The LLM processor emits
// Text frames sentence by sentence; the TTS processor synthesises them and
// forwards them unchanged so the assistant-side aggregator at the end of the
// chain can reassemble the full reply.
type Text struct {
	base

	// Text is the fragment content.
	Text string
}

// NewText constructs a Text frame around s.
func NewText(s string) *Text {
	return &Text{base: newBase(), Text: s}
}

// Kind returns KindText.
func (*Text) Kind() Kind { return KindText }

// LLMContext signals the LLM processor to produce a completion from the shared
// conversation context. The frame itself is immutable; the referenced context
// is the session's single shared mutable state and is serialised internally
// (see convo.Context).
type LLMContext struct {
	base

	// Context is the session's conversation state.
	Context *convo.Context
}

// NewLLMContext constructs an LLMContext frame referencing c.
func NewLLMContext(c *convo.Context) *LLMContext {
	return &LLMContext{base: newBase(), Context: c}
}

// Kind returns KindLLMContext.
func (*LLMContext) Kind() Kind { return KindLLMContext }

// ToolCall carries a tool invocation requested by the model. It is emitted by
// the LLM processor before the call is dispatched, so downstream observers see
// every requested invocation whether or not a handler honours it.
type ToolCall struct {
	base

	// Call identifies the function, its opaque call ID, and the JSON arguments.
	Call types.ToolCall
}

// NewToolCall constructs a ToolCall frame around call.
func NewToolCall(call types.ToolCall) *ToolCall {
	return &ToolCall{base: newBase(), Call: call}
}

// Kind returns KindToolCall.
func (*ToolCall) Kind() Kind { return KindToolCall }

// ToolResult carries the host's answer to a tool call. Every ToolCall frame is
// answered by exactly one ToolResult frame; an empty Content is a valid
// acknowledgment, not an error.
type ToolResult struct {
	base

	// CallID correlates this result to its triggering call.
	CallID string

	// Name is the invoked function's name.
	Name string

	// Content is the JSON-encoded result, or empty for a bare acknowledgment.
	Content string
}

// NewToolResult constructs a ToolResult frame for the call identified by
// callID and name.
func NewToolResult(callID, name, content string) *ToolResult {
	return &ToolResult{base: newBase(), CallID: callID, Name: name, Content: content}
}

// Kind returns KindToolResult.
func (*ToolResult) Kind() Kind { return KindToolResult }

// Signal enumerates pipeline control signals.
type Signal int

const (
	// SignalEnd requests a graceful pipeline stop. It travels downstream so
	// in-flight frames ahead of it are fully delivered first.
	SignalEnd Signal = iota

	// SignalFatal reports an unrecoverable processor failure. It travels
	// upstream to the runner, which tears the pipeline down.
	SignalFatal

	// SignalInterrupt reports caller barge-in. The recognition stage emits it
	// downstream so the LLM and TTS processors abandon the current generation.
	SignalInterrupt

	// SignalResponseStart marks the beginning of one assistant response.
	SignalResponseStart

	// SignalResponseEnd marks the end of one assistant response. The
	// assistant-side aggregator commits the accumulated reply text to the
	// conversation context when it observes this signal.
	SignalResponseEnd
)

// String returns the signal's name.
func (s Signal) String() string {
	switch s {
	case SignalEnd:
		return "END"
	case SignalFatal:
		return "FATAL"
	case SignalInterrupt:
		return "INTERRUPT"
	case SignalResponseStart:
		return "RESPONSE_START"
	case SignalResponseEnd:
		return "RESPONSE_END"
	default:
		return "UNKNOWN"
	}
}

// Control carries a pipeline lifecycle or flow-control signal.
type Control struct {
	base

	// Signal is the control action.
	Signal Signal

	// Origin names the processor that emitted the signal, for diagnostics.
	Origin string

	// Err is the underlying failure for SignalFatal frames, nil otherwise.
	Err error
}

// NewControl constructs a Control frame carrying signal from origin.
func NewControl(signal Signal, origin string) *Control {
	return &Control{base: newBase(), Signal: signal, Origin: origin}
}

// NewFatal constructs a SignalFatal Control frame carrying err from origin.
func NewFatal(origin string, err error) *Control {
	return &Control{base: newBase(), Signal: SignalFatal, Origin: origin, Err: err}
}

// Kind returns KindControlSignal.
func (*Control) Kind() Kind { return KindControlSignal }

// Log carries a diagnostic message emitted by a processor. Non-fatal failures
// are reported upstream as Log frames so the conversation can continue while
// operators still see the problem.
type Log struct {
	base

	// Level is the slog severity of the message.
	Level slog.Level

	// Origin names the emitting processor.
	Origin string

	// Message is the diagnostic text.
	Message string
}

// NewLog constructs a Log frame from origin at level.
func NewLog(level slog.Level, origin, message string) *Log {
	return &Log{base: newBase(), Level: level, Origin: origin, Message: message}
}

// Kind returns KindLog.
func (*Log) Kind() Kind { return KindLog }

// Describe returns a short human-readable summary of f for log output.
func Describe(f Frame) string {
	switch fr := f.(type) {
	case *AudioRaw:
		return fmt.Sprintf("AudioRaw(%d bytes, %d Hz)", len(fr.Audio.Data), fr.Audio.SampleRate)
	case *TranscriptText:
		return fmt.Sprintf("TranscriptText(final=%t, %q)", fr.Transcript.IsFinal, fr.Transcript.Text)
	case *Text:
		return fmt.Sprintf("Text(%q)", fr.Text)
	case *LLMContext:
		return "LLMContext"
	case *ToolCall:
		return fmt.Sprintf("ToolCall(%s, id=%s)", fr.Call.Name, fr.Call.ID)
	case *ToolResult:
		return fmt.Sprintf("ToolResult(%s, id=%s)", fr.Name, fr.CallID)
	case *Control:
		if fr.Err != nil {
			return fmt.Sprintf("ControlSignal(%s, origin=%s, err=%v)", fr.Signal, fr.Origin, fr.Err)
		}
		return fmt.Sprintf("ControlSignal(%s, origin=%s)", fr.Signal, fr.Origin)
	case *Log:
		return fmt.Sprintf("Log(%s, %s: %s)", fr.Level, fr.Origin, fr.Message)
	default:
		return f.Kind().String()
	}
}
