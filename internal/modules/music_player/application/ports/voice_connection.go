package ports

import (
	"context"
	"errors"

	"github.com/disgoorg/snowflake/v2"
)

// VoiceConnector controls the bot's voice connection in a guild.
type VoiceConnector interface {
	// Join connects to a voice channel in a guild with no connection.
	Join(ctx context.Context, guildID, channelID snowflake.ID) error

	// Move moves an existing connection to another channel.
	Move(ctx context.Context, guildID, channelID snowflake.ID) error

	// Leave disconnects from the guild's voice channel.
	Leave(ctx context.Context, guildID snowflake.ID) error
}

// ErrVoicePermission is returned when the bot may not connect to or speak
// in the requested channel.
var ErrVoicePermission = errors.New("missing permission to join or speak in the voice channel")
