package domain

// GeneralCommand is a remote-control command addressed to a session. The
// envelope is ephemeral: it exists for one dispatch call and is never stored.
type GeneralCommand struct {
	Name                 string
	ControllingSessionID string
	Arguments            map[string]string
}

// Command names understood by the stock clients. The dispatcher does not
// interpret these; they are forwarded verbatim to the transport.
const (
	CommandPlay        = "Play"
	CommandPause       = "Pause"
	CommandUnpause     = "Unpause"
	CommandStop        = "Stop"
	CommandSeek        = "Seek"
	CommandNextTrack   = "NextTrack"
	CommandPrevTrack   = "PreviousTrack"
	CommandSetVolume   = "SetVolume"
	CommandMute        = "Mute"
	CommandUnmute      = "Unmute"
	CommandDisplayMsg  = "DisplayMessage"
	CommandGoHome      = "GoHome"
	CommandTakeScreenshot = "TakeScreenshot"
)

// GroupUpdateType enumerates the known synchronized-playback update kinds.
type GroupUpdateType string

const (
	GroupUpdateGroupJoined GroupUpdateType = "GroupJoined"
	GroupUpdateGroupLeft   GroupUpdateType = "GroupLeft"
	GroupUpdateUserJoined  GroupUpdateType = "UserJoined"
	GroupUpdateUserLeft    GroupUpdateType = "UserLeft"
	GroupUpdateStateUpdate GroupUpdateType = "StateUpdate"
	GroupUpdatePlayQueue   GroupUpdateType = "PlayQueue"
)

// GroupUpdate is a synchronized-playback control message broadcast to the
// sessions in a playback group. Data is kind-specific and serialized by the
// transport.
type GroupUpdate struct {
	GroupID string
	Type    GroupUpdateType
	Data    any
}
