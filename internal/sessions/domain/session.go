package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// ClientCapabilities is the capability report a client sends after
// connecting. SupportsMediaControl gates whether the dispatcher will route
// remote-control commands to the session at all.
type ClientCapabilities struct {
	PlayableMediaTypes    []string
	SupportedCommands     []string
	SupportsMediaControl  bool
	SupportsSync          bool
	DeviceProfileID       string
	IconURL               string
	AppStoreURL           string
	SupportsPersistentIdentifier bool
}

// PlayState is the client-reported playback position for the session's
// current item.
type PlayState struct {
	PositionTicks int64
	IsPaused      bool
	IsMuted       bool
	VolumeLevel   int
	PlaybackRate  float64
	MediaSourceID string
	RepeatMode    string
}

// NowPlayingItem is a thin reference to the media item a session is playing.
// Library metadata itself lives outside this core; only identity and the
// fields needed for progress math are carried here.
type NowPlayingItem struct {
	ID           string
	Name         string
	MediaType    string
	RuntimeTicks int64
}

// TranscodingInfo describes the active transcode attached to a session. It
// is supplied and cleared by the transcoding collaborator, never derived
// here.
type TranscodingInfo struct {
	Container             string
	VideoCodec            string
	AudioCodec            string
	Bitrate               int
	Framerate             float64
	CompletionPercentage  float64
	IsVideoDirect         bool
	IsAudioDirect         bool
	IsHardwareAccelerated bool
}

// Session is the live record of one connected device+client+user
// combination. Values handed out by the registry are deep copies; the
// registry owns the live record.
type Session struct {
	ID                 string
	UserID             uuid.UUID
	Username           string
	// UserIsAdministrator mirrors the owning user's admin flag as of the
	// last activity report. Broadcast targeting reads it without a user
	// directory round trip.
	UserIsAdministrator bool
	Client             string
	DeviceName         string
	DeviceID           string
	ApplicationVersion string
	RemoteEndPoint     string

	LastActivityDate    time.Time
	LastPlaybackCheckIn time.Time

	Capabilities    ClientCapabilities
	NowPlayingItem  *NowPlayingItem
	NowViewingItem  *NowPlayingItem
	PlayState       PlayState
	TranscodingInfo *TranscodingInfo

	// AdditionalUsers are extra users attached to a shared session (for
	// example several people watching one screen).
	AdditionalUsers []uuid.UUID
}

// SupportsRemoteControl is derived from the reported capabilities.
func (s *Session) SupportsRemoteControl() bool {
	return s.Capabilities.SupportsMediaControl
}

// ContainsUser reports whether the given user owns or participates in the
// session.
func (s *Session) ContainsUser(userID uuid.UUID) bool {
	if s.UserID == userID {
		return true
	}
	return slices.Contains(s.AdditionalUsers, userID)
}

// Clone returns a deep copy safe to hand outside the registry lock.
func (s *Session) Clone() Session {
	out := *s
	out.Capabilities.PlayableMediaTypes = slices.Clone(s.Capabilities.PlayableMediaTypes)
	out.Capabilities.SupportedCommands = slices.Clone(s.Capabilities.SupportedCommands)
	out.AdditionalUsers = slices.Clone(s.AdditionalUsers)
	if s.NowPlayingItem != nil {
		item := *s.NowPlayingItem
		out.NowPlayingItem = &item
	}
	if s.NowViewingItem != nil {
		item := *s.NowViewingItem
		out.NowViewingItem = &item
	}
	if s.TranscodingInfo != nil {
		info := *s.TranscodingInfo
		out.TranscodingInfo = &info
	}
	return out
}
