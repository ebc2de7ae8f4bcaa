package events

import (
	"github.com/google/uuid"

	"github.com/harborview/mediahub/internal/sessions/domain"
)

// Kind identifies an event type on the bus.
type Kind string

const (
	KindPlaybackStart    Kind = "playback.start"
	KindPlaybackProgress Kind = "playback.progress"
	KindPlaybackStopped  Kind = "playback.stopped"
	KindSessionStarted   Kind = "session.started"
	KindSessionEnded     Kind = "session.ended"
	KindSessionActivity  Kind = "session.activity"
	KindCapabilitiesChanged Kind = "session.capabilities"
	KindAuthenticationSucceeded Kind = "auth.succeeded"
	KindAuthenticationFailed    Kind = "auth.failed"
)

// Event is the common interface for everything published on the bus.
type Event interface {
	Kind() Kind
}

// PlaybackEvent covers start, progress and stop. The session snapshot is
// taken at publish time; subscribers never see live registry state.
type PlaybackEvent struct {
	EventKind Kind
	Session   domain.Session
	Item      *domain.NowPlayingItem
	PlayState domain.PlayState
}

func (e PlaybackEvent) Kind() Kind { return e.EventKind }

// SessionEvent covers session lifecycle transitions.
type SessionEvent struct {
	EventKind Kind
	Session   domain.Session
}

func (e SessionEvent) Kind() Kind { return e.EventKind }

// AuthenticationEvent is published by the authorization path. On failure the
// user may be unknown, so only the raw request attributes are carried.
type AuthenticationEvent struct {
	Success        bool
	UserID         uuid.UUID
	Username       string
	Client         string
	DeviceID       string
	RemoteEndPoint string
}

func (e AuthenticationEvent) Kind() Kind {
	if e.Success {
		return KindAuthenticationSucceeded
	}
	return KindAuthenticationFailed
}
