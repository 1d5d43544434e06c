package domain

import (
	"github.com/disgoorg/snowflake/v2"
)

// TrackEndReason represents why a track ended.
type TrackEndReason string

const (
	// TrackEndFinished means the track finished normally.
	TrackEndFinished TrackEndReason = "finished"
	// TrackEndFailed means the decoder failed mid-stream.
	TrackEndFailed TrackEndReason = "failed"
	// TrackEndSkipped means the user skipped the track.
	TrackEndSkipped TrackEndReason = "skipped"
	// TrackEndStopped means playback was stopped.
	TrackEndStopped TrackEndReason = "stopped"
)

// Event is published by guild sessions.
type Event interface {
	Guild() snowflake.ID
}

// PlaybackStartedEvent is published when a track starts playing.
type PlaybackStartedEvent struct {
	GuildID               snowflake.ID
	Track                 Track
	NotificationChannelID snowflake.ID
}

// PlaybackFinishedEvent is published when a playing track ends for any reason.
// This signals that the "Now Playing" message should be deleted.
type PlaybackFinishedEvent struct {
	GuildID               snowflake.ID
	Track                 Track
	Reason                TrackEndReason
	NotificationChannelID snowflake.ID
}

// TrackFailedEvent is published when a queued track could not be started.
type TrackFailedEvent struct {
	GuildID               snowflake.ID
	Track                 Track
	Err                   error
	NotificationChannelID snowflake.ID
}

// QueueExhaustedEvent is published when the session runs out of tracks and
// releases its voice connection.
type QueueExhaustedEvent struct {
	GuildID               snowflake.ID
	NotificationChannelID snowflake.ID
}

func (e PlaybackStartedEvent) Guild() snowflake.ID  { return e.GuildID }
func (e PlaybackFinishedEvent) Guild() snowflake.ID { return e.GuildID }
func (e TrackFailedEvent) Guild() snowflake.ID      { return e.GuildID }
func (e QueueExhaustedEvent) Guild() snowflake.ID   { return e.GuildID }
