// Package llm defines the Provider interface for language-model backends.
//
// A provider wraps a remote completion API (OpenAI, or anything reachable
// through any-llm) and exposes a uniform streaming interface so the dialogue
// layer never couples to a specific SDK. Implementations must be safe for
// concurrent use, and channels returned by StreamCompletion must be closed by
// the implementation when the stream ends or the context is cancelled.
package llm

import (
	"context"

	"github.com/fbruhn/sprechzeit/pkg/types"
)

// Usage holds token accounting returned by the backend. Counts are in the
// model's native token unit and differ between providers for the same text.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a response.
// Messages must be non-empty; a zero-value request is invalid.
type CompletionRequest struct {
	// Messages is the ordered conversation history, last message usually from
	// the "user" role.
	Messages []types.Message

	// Tools is the set of function definitions offered to the model. An empty
	// slice means no tools are available for this turn.
	Tools []types.ToolDefinition

	// Temperature controls output randomness in [0.0, 2.0]. Zero requests the
	// provider default.
	Temperature float64

	// MaxTokens caps completion length. Zero means provider default.
	MaxTokens int

	// SystemPrompt is an optional instruction injected ahead of Messages.
	// Providers without a dedicated system slot prepend it as a "system"
	// role message.
	SystemPrompt string
}

// Chunk is a single fragment emitted by a streaming completion. A chunk may
// carry text, a finish signal, tool calls, or any combination.
type Chunk struct {
	// Text is the incremental text content, possibly empty.
	Text string

	// FinishReason is set on the final chunk: "stop", "length", "tool_calls",
	// or "error" for mid-stream failures. Empty on non-final chunks.
	FinishReason string

	// ToolCalls holds fully assembled tool invocations. Implementations
	// accumulate streamed fragments internally and emit calls complete, on
	// the final chunk.
	ToolCalls []types.ToolCall
}

// CompletionResponse is returned by the non-streaming Complete method.
type CompletionResponse struct {
	// Content is the full assistant reply. Empty when the model responds
	// exclusively with tool calls.
	Content string

	// ToolCalls lists tool invocations requested by the model.
	ToolCalls []types.ToolCall

	// Usage contains token accounting for this exchange.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// StreamCompletion sends req to the model and returns a channel emitting
	// Chunk values as they arrive. The channel is closed when generation
	// finishes or ctx is cancelled; callers must drain it. Errors after the
	// stream opens surface as a Chunk with FinishReason "error"; the error
	// return is non-nil only when the stream cannot start at all.
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)

	// Complete sends req and waits for the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// CountTokens estimates how many context-window tokens the messages
	// would consume. The result may be approximate but should not undercount.
	CountTokens(messages []types.Message) (int, error)

	// Capabilities returns static metadata about the underlying model,
	// constant for the lifetime of the Provider.
	Capabilities() types.ModelCapabilities
}
