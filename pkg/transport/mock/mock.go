// Package mock provides test doubles for the transport package interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/fbruhn/sprechzeit/pkg/transport"
	"github.com/fbruhn/sprechzeit/pkg/types"
)

// Transport is a mock transport.Transport.
type Transport struct {
	mu sync.Mutex

	// Session is returned by Join. Nil yields a fresh default Session.
	Session transport.Session
	// JoinErr, when set, is returned by Join.
	JoinErr error

	JoinCalls []string
}

// Join records roomID and returns the configured session.
func (t *Transport) Join(ctx context.Context, roomID string) (transport.Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.JoinCalls = append(t.JoinCalls, roomID)
	if t.JoinErr != nil {
		return nil, t.JoinErr
	}
	if t.Session != nil {
		return t.Session, nil
	}
	return NewSession(), nil
}

var _ transport.Transport = (*Transport)(nil)

// Session is a mock transport.Session. Tests feed caller audio with
// PushAudio, read assistant audio from Sent or the Outbound channel, and
// trigger participant events with EmitEvent.
type Session struct {
	mu sync.Mutex

	Inbound  chan types.AudioFrame
	Outbound chan types.AudioFrame

	LeaveErr error

	changeCb       func(transport.Event)
	leaveOnce      sync.Once
	LeaveCallCount int
}

// NewSession returns a Session with buffered audio channels.
func NewSession() *Session {
	return &Session{
		Inbound:  make(chan types.AudioFrame, 64),
		Outbound: make(chan types.AudioFrame, 64),
	}
}

// AudioIn implements transport.Session.
func (s *Session) AudioIn() <-chan types.AudioFrame { return s.Inbound }

// AudioOut implements transport.Session.
func (s *Session) AudioOut() chan<- types.AudioFrame { return s.Outbound }

// OnParticipantChange implements transport.Session.
func (s *Session) OnParticipantChange(cb func(transport.Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changeCb = cb
}

// Leave implements transport.Session, closing the inbound channel once.
func (s *Session) Leave() error {
	s.mu.Lock()
	s.LeaveCallCount++
	s.mu.Unlock()
	s.leaveOnce.Do(func() { close(s.Inbound) })
	return s.LeaveErr
}

var _ transport.Session = (*Session)(nil)

// PushAudio feeds a caller audio frame to the session.
func (s *Session) PushAudio(f types.AudioFrame) {
	s.Inbound <- f
}

// EmitEvent invokes the registered participant callback synchronously.
func (s *Session) EmitEvent(ev transport.Event) {
	s.mu.Lock()
	cb := s.changeCb
	s.mu.Unlock()
	if cb != nil {
		cb(ev)
	}
}

// Sent drains and returns all frames currently queued on the outbound channel.
func (s *Session) Sent() []types.AudioFrame {
	var out []types.AudioFrame
	for {
		select {
		case f := <-s.Outbound:
			out = append(out, f)
		default:
			return out
		}
	}
}
