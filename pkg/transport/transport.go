// Package transport defines the interfaces for voice-room connectivity.
//
// The two abstractions are:
//
//   - [Transport] — joins a voice room and returns a [Session].
//   - [Session] — an active call on that room, exposing the caller's inbound
//     audio, an outbound audio channel for the assistant's voice, and
//     participant lifecycle events.
//
// Platform-specific adapters (e.g. transport/discord) implement both. The
// interfaces are narrow so the call pipeline never couples to a provider SDK.
package transport

import (
	"context"

	"github.com/fbruhn/sprechzeit/pkg/types"
)

// EventType classifies participant lifecycle events emitted by a [Session].
type EventType int

const (
	// EventJoin is emitted when a participant enters the room.
	EventJoin EventType = iota

	// EventLeave is emitted when a participant leaves the room.
	EventLeave
)

// String returns the human-readable name of the event type.
func (e EventType) String() string {
	switch e {
	case EventJoin:
		return "JOIN"
	case EventLeave:
		return "LEAVE"
	default:
		return "UNKNOWN"
	}
}

// Event describes a participant lifecycle change on a voice room.
type Event struct {
	Type EventType

	// UserID is the platform-specific participant identifier.
	UserID string

	// Username is the participant's display name, when the platform knows it.
	Username string
}

// Session represents an active call on a voice room.
//
// A Session is obtained from [Transport.Join] and remains valid until
// [Session.Leave] is called. Implementations must be safe for concurrent use.
type Session interface {
	// AudioIn returns the inbound audio stream. Audio from all room
	// participants is merged into this single channel; an intake call has one
	// caller, so no per-participant demux is exposed. The channel is closed
	// when the session ends.
	AudioIn() <-chan types.AudioFrame

	// AudioOut returns the write-only channel for the assistant's voice.
	// The channel is buffered and owned by the caller; the session never
	// closes it. Frames written after Leave are dropped, not a panic.
	AudioOut() chan<- types.AudioFrame

	// OnParticipantChange registers cb for join/leave events. Only one
	// callback may be registered; later calls replace it. The callback runs
	// on an internal goroutine and must not block.
	OnParticipantChange(cb func(Event))

	// Leave tears down the session, closing AudioIn. Calling Leave more than
	// once is safe; subsequent calls return nil.
	Leave() error
}

// Transport is the entry point for a voice-room provider.
//
// Implementations must be safe for concurrent use.
type Transport interface {
	// Join connects to the room identified by roomID and returns an active
	// Session. ctx governs the join attempt only; the Session lives until
	// Leave is called.
	Join(ctx context.Context, roomID string) (Session, error)
}
