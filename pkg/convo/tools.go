package convo

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fbruhn/sprechzeit/pkg/types"
)

// ErrNoHandler is returned by Registry.Validate when a tool advertised in the
// conversation context has no registered handler.
var ErrNoHandler = errors.New("tool has no registered handler")

// ToolResult is a handler's answer to a tool call. The zero value is a bare
// acknowledgment: empty content, no follow-up.
type ToolResult struct {
	// Content is the JSON-encoded result text appended to the conversation as
	// a tool-role message. Empty is a valid acknowledgment.
	Content string

	// Requeue asks the LLM processor to re-inject the (now mutated)
	// conversation context for a fresh completion once the result is recorded.
	// The dialogue controller uses this to make the model produce its closing
	// utterance after a state transition.
	Requeue bool

	// AckAudio, when non-nil, is a short pre-recorded sound the pipeline plays
	// to the caller as immediate feedback while the follow-up completion runs.
	AckAudio *types.AudioFrame
}

// ToolHandler executes one named tool on behalf of the language model.
//
// Handlers must not panic and must always produce a usable ToolResult for
// well-formed calls; argument problems are degraded (defaulted) rather than
// rejected, so the model-side conversation state stays consistent. A non-nil
// error marks the call as failed — the pipeline still records an empty
// acknowledgment so the call/result pairing invariant holds.
type ToolHandler interface {
	HandleToolCall(ctx context.Context, call types.ToolCall) (ToolResult, error)
}

// ToolHandlerFunc adapts a function to the ToolHandler interface.
type ToolHandlerFunc func(ctx context.Context, call types.ToolCall) (ToolResult, error)

// HandleToolCall calls f.
func (f ToolHandlerFunc) HandleToolCall(ctx context.Context, call types.ToolCall) (ToolResult, error) {
	return f(ctx, call)
}

// Registry is a typed mapping from tool name to handler. It replaces
// string-keyed reflective dispatch with an explicit table that can be checked
// against the advertised tool set at assembly time.
//
// Registry is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]ToolHandler
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]ToolHandler)}
}

// Register binds handler to name. Registering an empty name or a nil handler
// is an error; re-registering a name replaces the previous handler.
func (r *Registry) Register(name string, handler ToolHandler) error {
	if name == "" {
		return errors.New("convo: tool name must not be empty")
	}
	if handler == nil {
		return errors.New("convo: tool handler must not be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = handler
	return nil
}

// Validate checks that every tool in tools has a registered handler and
// returns a joined error naming each missing one. Call this at pipeline
// assembly time so a tool the model could invoke never goes unanswered.
func (r *Registry) Validate(tools []types.ToolDefinition) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var errs []error
	for _, t := range tools {
		if _, ok := r.handlers[t.Name]; !ok {
			errs = append(errs, fmt.Errorf("convo: tool %q: %w", t.Name, ErrNoHandler))
		}
	}
	return errors.Join(errs...)
}

// Dispatch invokes the handler registered for call.Name. ok is false when no
// handler is registered — the caller should then record an empty
// acknowledgment and move on rather than fail the conversation.
func (r *Registry) Dispatch(ctx context.Context, call types.ToolCall) (result ToolResult, ok bool, err error) {
	r.mu.RLock()
	handler := r.handlers[call.Name]
	r.mu.RUnlock()
	if handler == nil {
		return ToolResult{}, false, nil
	}
	result, err = handler.HandleToolCall(ctx, call)
	return result, true, err
}
