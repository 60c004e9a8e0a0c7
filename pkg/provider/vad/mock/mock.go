// Package mock provides test doubles for the vad package interfaces.
package mock

import (
	"sync"

	"github.com/fbruhn/sprechzeit/pkg/provider/vad"
	"github.com/fbruhn/sprechzeit/pkg/types"
)

// Engine is a mock vad.Engine.
type Engine struct {
	mu sync.Mutex

	// Session is returned by NewSession. Nil yields a fresh default Session.
	Session vad.SessionHandle
	// NewSessionErr, when set, is returned by NewSession.
	NewSessionErr error

	NewSessionCalls []vad.Config
}

// NewSession records the call and returns the configured session.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewSessionCalls = append(e.NewSessionCalls, cfg)
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	if e.Session != nil {
		return e.Session, nil
	}
	return &Session{}, nil
}

var _ vad.Engine = (*Engine)(nil)

// Session is a mock vad.SessionHandle. When Events is non-empty, ProcessFrame
// returns entries in order, repeating the last one; otherwise EventResult.
type Session struct {
	mu sync.Mutex

	EventResult     types.VADEvent
	Events          []types.VADEvent
	ProcessFrameErr error
	CloseErr        error

	ProcessFrameCalls [][]byte
	ResetCallCount    int
	CloseCallCount    int
}

// ProcessFrame records a copy of the frame and returns the next scripted event.
func (s *Session) ProcessFrame(frame []byte) (types.VADEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(frame))
	copy(cp, frame)
	idx := len(s.ProcessFrameCalls)
	s.ProcessFrameCalls = append(s.ProcessFrameCalls, cp)
	if s.ProcessFrameErr != nil {
		return types.VADEvent{}, s.ProcessFrameErr
	}
	if len(s.Events) > 0 {
		if idx >= len(s.Events) {
			idx = len(s.Events) - 1
		}
		return s.Events[idx], nil
	}
	return s.EventResult, nil
}

// Reset increments ResetCallCount.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCallCount++
}

// CloseCalls returns the number of Close calls. Thread-safe.
func (s *Session) CloseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CloseCallCount
}

// Close increments CloseCallCount and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return s.CloseErr
}

var _ vad.SessionHandle = (*Session)(nil)
