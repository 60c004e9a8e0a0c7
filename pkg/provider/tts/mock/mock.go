// Package mock provides a mock implementation of the tts.Provider interface
// for testing.
package mock

import (
	"context"
	"sync"

	"github.com/fbruhn/sprechzeit/pkg/provider/tts"
	"github.com/fbruhn/sprechzeit/pkg/types"
)

// SynthesizeStreamCall records a call to SynthesizeStream.
type SynthesizeStreamCall struct {
	Voice types.VoiceProfile
	Text  []string
}

// Provider is a mock tts.Provider. For each SynthesizeStream call it drains
// the text channel, records the fragments, and emits SynthesizeChunks on the
// returned audio channel.
type Provider struct {
	mu sync.Mutex

	// SynthesizeChunks are the audio chunks emitted per synthesis call.
	SynthesizeChunks [][]byte
	// SynthesizeStreamErr, when set, is returned by SynthesizeStream.
	SynthesizeStreamErr error
	// Voices is returned by ListVoices.
	Voices []types.VoiceProfile
	// ListVoicesErr, when set, is returned by ListVoices.
	ListVoicesErr error

	SynthesizeStreamCalls []*SynthesizeStreamCall
	ListVoicesCallCount   int
}

// SynthesizeStream records the call and returns a channel fed with
// SynthesizeChunks once the text channel closes.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	p.mu.Lock()
	if p.SynthesizeStreamErr != nil {
		err := p.SynthesizeStreamErr
		p.mu.Unlock()
		return nil, err
	}
	call := &SynthesizeStreamCall{Voice: voice}
	p.SynthesizeStreamCalls = append(p.SynthesizeStreamCalls, call)
	chunks := make([][]byte, len(p.SynthesizeChunks))
	copy(chunks, p.SynthesizeChunks)
	p.mu.Unlock()

	audioCh := make(chan []byte, len(chunks))
	go func() {
		defer close(audioCh)
		for {
			select {
			case fragment, ok := <-text:
				if !ok {
					for _, c := range chunks {
						select {
						case audioCh <- c:
						case <-ctx.Done():
							return
						}
					}
					return
				}
				p.mu.Lock()
				call.Text = append(call.Text, fragment)
				p.mu.Unlock()
			case <-ctx.Done():
				return
			}
		}
	}()
	return audioCh, nil
}

// ListVoices returns the configured Voices.
func (p *Provider) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ListVoicesCallCount++
	if p.ListVoicesErr != nil {
		return nil, p.ListVoicesErr
	}
	return p.Voices, nil
}

// Calls returns a snapshot of recorded SynthesizeStream calls.
func (p *Provider) Calls() []*SynthesizeStreamCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*SynthesizeStreamCall, len(p.SynthesizeStreamCalls))
	copy(out, p.SynthesizeStreamCalls)
	return out
}

var _ tts.Provider = (*Provider)(nil)
