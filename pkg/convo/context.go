// Package convo holds the conversation state shared across a call session:
// the ordered message history and the set of tools currently offered to the
// language model, plus the typed registry that maps advertised tool names to
// their handlers.
//
// A Context is created once per call session at pipeline assembly time and is
// the only piece of state shared between processors. All mutation goes through
// its methods, which serialise appends under a single mutex so the two context
// aggregators and the dialogue controller can never interleave writes
// (single-writer discipline per mutation).
package convo

import (
	"sync"

	"github.com/fbruhn/sprechzeit/pkg/types"
)

// Context is the language model's view of the conversation: an append-only,
// causally ordered message history and the currently offered tool set.
//
// Messages are never reordered or deleted — behaviour is redirected by
// appending a fresh system message, and earlier system messages remain in the
// history for audit. The tool set is replaced wholesale, never merged.
//
// All methods are safe for concurrent use.
type Context struct {
	mu       sync.Mutex
	messages []types.Message
	tools    []types.ToolDefinition
}

// New returns an empty Context.
func New() *Context {
	return &Context{}
}

// AddMessage appends msg to the history.
func (c *Context) AddMessage(msg types.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
}

// AddSystemMessage appends a system-role message with content. The newest
// system message is the active instruction; older ones stay in the history.
func (c *Context) AddSystemMessage(content string) {
	c.AddMessage(types.Message{Role: "system", Content: content})
}

// AddUserMessage appends a user-role message with content.
func (c *Context) AddUserMessage(content string) {
	c.AddMessage(types.Message{Role: "user", Content: content})
}

// AddAssistantMessage appends an assistant-role message with content.
func (c *Context) AddAssistantMessage(content string) {
	c.AddMessage(types.Message{Role: "assistant", Content: content})
}

// AddToolResult appends a tool-role message answering the call identified by
// callID. An empty content is a valid acknowledgment.
func (c *Context) AddToolResult(callID, name, content string) {
	c.AddMessage(types.Message{Role: "tool", Name: name, Content: content, ToolCallID: callID})
}

// SetTools replaces the offered tool set wholesale. Pass nil or an empty slice
// to withdraw all tools — this is the dialogue controller's lever for
// preventing further invocations.
func (c *Context) SetTools(tools []types.ToolDefinition) {
	cp := make([]types.ToolDefinition, len(tools))
	copy(cp, tools)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tools = cp
}

// Messages returns a copy of the message history.
func (c *Context) Messages() []types.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]types.Message, len(c.messages))
	copy(cp, c.messages)
	return cp
}

// Tools returns a copy of the currently offered tool set.
func (c *Context) Tools() []types.ToolDefinition {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]types.ToolDefinition, len(c.tools))
	copy(cp, c.tools)
	return cp
}

// Snapshot returns consistent copies of the message history and tool set,
// taken under a single lock acquisition. The LLM processor uses this to build
// a completion request that cannot observe a half-applied controller mutation.
func (c *Context) Snapshot() ([]types.Message, []types.ToolDefinition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := make([]types.Message, len(c.messages))
	copy(msgs, c.messages)
	tools := make([]types.ToolDefinition, len(c.tools))
	copy(tools, c.tools)
	return msgs, tools
}

// Len returns the number of messages in the history.
func (c *Context) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

// OffersTool reports whether a tool named name is currently offered.
func (c *Context) OffersTool(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.tools {
		if t.Name == name {
			return true
		}
	}
	return false
}
