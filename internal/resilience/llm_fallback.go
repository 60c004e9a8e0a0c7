package resilience

import (
	"context"

	"github.com/fbruhn/sprechzeit/pkg/provider/llm"
	"github.com/fbruhn/sprechzeit/pkg/types"
)

// LLMFailover implements [llm.Provider] across an ordered set of backends.
// Only opening the request is covered by failover; once a stream is
// established, mid-stream errors belong to the caller.
type LLMFailover struct {
	group *Group[llm.Provider]
}

var _ llm.Provider = (*LLMFailover)(nil)

func NewLLMFailover(primaryName string, primary llm.Provider, breaker BreakerConfig) *LLMFailover {
	return &LLMFailover{group: NewGroup(primaryName, primary, breaker)}
}

// AddFallback registers another backend, tried after all earlier ones.
func (f *LLMFailover) AddFallback(name string, provider llm.Provider) {
	f.group.Add(name, provider)
}

func (f *LLMFailover) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	return DoResult(f.group, func(p llm.Provider) (<-chan llm.Chunk, error) {
		return p.StreamCompletion(ctx, req)
	})
}

func (f *LLMFailover) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return DoResult(f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

func (f *LLMFailover) CountTokens(messages []types.Message) (int, error) {
	return DoResult(f.group, func(p llm.Provider) (int, error) {
		return p.CountTokens(messages)
	})
}

// Capabilities reports the primary's capabilities. Static metadata does not
// fail over.
func (f *LLMFailover) Capabilities() types.ModelCapabilities {
	return f.group.Primary().Capabilities()
}
