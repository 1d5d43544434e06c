package domain

import "github.com/disgoorg/snowflake/v2"

// SessionState is the playback state of a guild session.
type SessionState int

const (
	// SessionIdle has no current track and no voice connection in use.
	SessionIdle SessionState = iota
	// SessionLoading is preparing the next track's audio source.
	SessionLoading
	// SessionPlaying is streaming audio.
	SessionPlaying
)

// String returns a human-readable representation of the state.
func (s SessionState) String() string {
	switch s {
	case SessionLoading:
		return "loading"
	case SessionPlaying:
		return "playing"
	default:
		return "idle"
	}
}

// SessionSnapshot is a consistent point-in-time view of a guild session.
type SessionSnapshot struct {
	GuildID               snowflake.ID
	State                 SessionState
	NowPlaying            *Track // non-nil only while SessionPlaying
	Queue                 []Track
	Paused                bool
	VoiceChannelID        snowflake.ID
	NotificationChannelID snowflake.ID
}

// IsActive reports whether a track is playing or about to.
func (s SessionSnapshot) IsActive() bool {
	return s.State != SessionIdle
}
