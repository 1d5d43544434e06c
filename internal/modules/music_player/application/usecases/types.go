package usecases

import "github.com/sglre6355/sgrmusic/internal/modules/music_player/domain"

// EnqueueResult describes where appended tracks landed.
type EnqueueResult struct {
	Added int
	// Position is the 1-based queue position of the first appended track,
	// or 0 when it went straight to playback.
	Position int
	// StartedPlayback is true when the session was idle and began loading the first track.
	StartedPlayback bool
}

// VoiceAction is what EnsureVoice had to do to reach the requested channel.
type VoiceAction int

const (
	VoiceReused VoiceAction = iota
	VoiceJoined
	VoiceMoved
)

// SkipOutput contains the result of the Skip use case.
type SkipOutput struct {
	SkippedTrack domain.Track
	NextTrack    *domain.Track // nil if the queue was empty
}

// StopResult reports what a stop tore down.
type StopResult struct {
	WasActive  bool
	NowPlaying *domain.Track
	Cleared    int
}

// String returns a human-readable representation of the action.
func (a VoiceAction) String() string {
	switch a {
	case VoiceJoined:
		return "joined"
	case VoiceMoved:
		return "moved"
	default:
		return "reused"
	}
}
