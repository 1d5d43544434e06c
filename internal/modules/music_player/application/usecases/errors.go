package usecases

import (
	"errors"

	"github.com/sglre6355/sgrmusic/internal/modules/music_player/application/ports"
)

// Domain errors for the music player module.
var (
	// ErrNotConnected is returned when an operation requires the bot to be in a voice channel.
	ErrNotConnected = errors.New("not connected to a voice channel")

	// ErrUserNotInVoice is returned when the user is not in a voice channel.
	ErrUserNotInVoice = errors.New("you must be in a voice channel")

	// ErrNotPlaying is returned when no track is currently playing.
	ErrNotPlaying = errors.New("nothing is currently playing")

	// ErrAlreadyPaused is returned when trying to pause while already paused.
	ErrAlreadyPaused = errors.New("playback is already paused")

	// ErrNotPaused is returned when trying to resume while not paused.
	ErrNotPaused = errors.New("playback is not paused")

	// ErrNoResults is returned when a query resolves to no playable tracks.
	ErrNoResults = errors.New("no results found")

	// ErrQueueEmpty is returned when the queue is empty.
	ErrQueueEmpty = errors.New("the queue is empty")

	// ErrSessionClosed is returned when a guild session has been shut down.
	ErrSessionClosed = errors.New("guild session is closed")

	// ErrCatalogDisabled is returned for catalog links when no catalog credentials are configured.
	ErrCatalogDisabled = errors.New("catalog links are not enabled")

	// ErrExpansionCancelled is returned when a background catalog expansion
	// has been superseded by a newer play or a stop.
	ErrExpansionCancelled = errors.New("catalog expansion was cancelled")

	// ErrVoicePermission is returned when the bot may not join or speak in a voice channel.
	ErrVoicePermission = ports.ErrVoicePermission
)
