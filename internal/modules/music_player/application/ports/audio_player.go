package ports

import (
	"context"
	"io"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/sgrmusic/internal/modules/music_player/domain"
)

// AudioSource is a prepared stream for one track. Closing it releases the
// underlying decoder and network resources; Close is safe to call twice.
type AudioSource interface {
	io.Closer
}

// SourceFactory builds audio sources from canonical playback URLs.
type SourceFactory interface {
	// CreateSource resolves the track's short-lived stream URL and wraps it
	// in a reconnecting decoder. Failures are returned, never panicked.
	CreateSource(ctx context.Context, track domain.Track) (AudioSource, error)
}

// Playback is one attempt at playing a source.
type Playback interface {
	// Done delivers exactly one value when playback ends: nil on natural
	// end of track, the decoder error otherwise.
	Done() <-chan error

	// SetPaused pauses or resumes the stream.
	SetPaused(paused bool) error

	// Stop ends playback early. Done still delivers.
	Stop()
}

// AudioPlayer streams sources into a guild's voice connection.
type AudioPlayer interface {
	Play(ctx context.Context, guildID snowflake.ID, source AudioSource) (Playback, error)
}
