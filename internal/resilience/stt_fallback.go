package resilience

import (
	"context"

	"github.com/fbruhn/sprechzeit/pkg/provider/stt"
)

// STTFailover implements [stt.Provider] across an ordered set of backends.
// Failover applies to opening the session only; once a SessionHandle exists,
// the session is bound to the backend that produced it.
type STTFailover struct {
	group *Group[stt.Provider]
}

var _ stt.Provider = (*STTFailover)(nil)

func NewSTTFailover(primaryName string, primary stt.Provider, breaker BreakerConfig) *STTFailover {
	return &STTFailover{group: NewGroup(primaryName, primary, breaker)}
}

func (f *STTFailover) AddFallback(name string, provider stt.Provider) {
	f.group.Add(name, provider)
}

func (f *STTFailover) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	return DoResult(f.group, func(p stt.Provider) (stt.SessionHandle, error) {
		return p.StartStream(ctx, cfg)
	})
}
