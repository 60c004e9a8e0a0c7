package resilience

import (
	"context"

	"github.com/fbruhn/sprechzeit/pkg/provider/tts"
	"github.com/fbruhn/sprechzeit/pkg/types"
)

// TTSFailover implements [tts.Provider] across an ordered set of backends.
// Fallback voices may sound different from the primary; callers that care
// should register fallbacks with a comparable voice configured.
type TTSFailover struct {
	group *Group[tts.Provider]
}

var _ tts.Provider = (*TTSFailover)(nil)

func NewTTSFailover(primaryName string, primary tts.Provider, breaker BreakerConfig) *TTSFailover {
	return &TTSFailover{group: NewGroup(primaryName, primary, breaker)}
}

func (f *TTSFailover) AddFallback(name string, provider tts.Provider) {
	f.group.Add(name, provider)
}

func (f *TTSFailover) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	return DoResult(f.group, func(p tts.Provider) (<-chan []byte, error) {
		return p.SynthesizeStream(ctx, text, voice)
	})
}

func (f *TTSFailover) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	return DoResult(f.group, func(p tts.Provider) ([]types.VoiceProfile, error) {
		return p.ListVoices(ctx)
	})
}
