// Package mock provides a test double for the llm.Provider interface.
//
// Set the response fields before use and read the call records afterwards.
// Mutating fields during a concurrent call is the caller's responsibility.
package mock

import (
	"context"
	"sync"

	"github.com/fbruhn/sprechzeit/pkg/provider/llm"
	"github.com/fbruhn/sprechzeit/pkg/types"
)

// StreamCall records a single invocation of StreamCompletion.
type StreamCall struct {
	Req llm.CompletionRequest
}

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	Req llm.CompletionRequest
}

// Provider is a mock llm.Provider. Zero-value response fields yield zero
// values and nil errors.
type Provider struct {
	mu sync.Mutex

	// StreamChunks is emitted in order on the channel returned by
	// StreamCompletion before the channel closes. When StreamScript is
	// non-empty it takes precedence: call n uses StreamScript[n] (the last
	// entry repeats when calls outnumber entries).
	StreamChunks []llm.Chunk
	StreamScript [][]llm.Chunk
	// StreamErr, when set, is returned instead of opening a channel.
	StreamErr error

	// CompleteResponse and CompleteErr are returned by Complete.
	CompleteResponse *llm.CompletionResponse
	CompleteErr      error

	// TokenCount and CountTokensErr are returned by CountTokens.
	TokenCount     int
	CountTokensErr error

	// ModelCapabilities is returned by Capabilities.
	ModelCapabilities types.ModelCapabilities

	StreamCalls           []StreamCall
	CompleteCalls         []CompleteCall
	CountTokensCallCount  int
	CapabilitiesCallCount int
}

// StreamCompletion records the call and returns a channel emitting the
// configured chunks.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	callIdx := len(p.StreamCalls)
	p.StreamCalls = append(p.StreamCalls, StreamCall{Req: req})
	if p.StreamErr != nil {
		err := p.StreamErr
		p.mu.Unlock()
		return nil, err
	}
	source := p.StreamChunks
	if len(p.StreamScript) > 0 {
		if callIdx >= len(p.StreamScript) {
			callIdx = len(p.StreamScript) - 1
		}
		source = p.StreamScript[callIdx]
	}
	chunks := make([]llm.Chunk, len(source))
	copy(chunks, source)
	p.mu.Unlock()

	ch := make(chan llm.Chunk, len(chunks))
	go func() {
		defer close(ch)
		for _, c := range chunks {
			select {
			case ch <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Complete records the call and returns the configured response.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Req: req})
	return p.CompleteResponse, p.CompleteErr
}

// CountTokens returns the configured count.
func (p *Provider) CountTokens(messages []types.Message) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CountTokensCallCount++
	return p.TokenCount, p.CountTokensErr
}

// Capabilities returns the configured capabilities.
func (p *Provider) Capabilities() types.ModelCapabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CapabilitiesCallCount++
	return p.ModelCapabilities
}

// Calls returns a snapshot of recorded StreamCompletion calls.
func (p *Provider) Calls() []StreamCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]StreamCall, len(p.StreamCalls))
	copy(out, p.StreamCalls)
	return out
}

var _ llm.Provider = (*Provider)(nil)
