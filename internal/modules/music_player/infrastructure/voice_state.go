package infrastructure

import (
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/sgrmusic/internal/modules/music_player/application/ports"
)

// VoiceStateCache is the part of the gateway state cache holding voice states.
type VoiceStateCache interface {
	VoiceState(guildID, userID string) (*discordgo.VoiceState, error)
}

// VoiceStateProvider reads users' voice channels from the gateway cache.
type VoiceStateProvider struct {
	cache VoiceStateCache
}

// NewVoiceStateProvider creates a new VoiceStateProvider.
func NewVoiceStateProvider(cache VoiceStateCache) *VoiceStateProvider {
	return &VoiceStateProvider{cache: cache}
}

// GetUserVoiceChannel returns the user's voice channel, or 0 when the user
// is not in one.
func (v *VoiceStateProvider) GetUserVoiceChannel(
	guildID, userID snowflake.ID,
) (snowflake.ID, error) {
	state, err := v.cache.VoiceState(guildID.String(), userID.String())
	if errors.Is(err, discordgo.ErrStateNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read voice state: %w", err)
	}
	if state == nil || state.ChannelID == "" {
		return 0, nil
	}

	channelID, err := snowflake.Parse(state.ChannelID)
	if err != nil {
		return 0, fmt.Errorf("invalid voice channel id %q: %w", state.ChannelID, err)
	}
	return channelID, nil
}

var _ ports.VoiceStateProvider = (*VoiceStateProvider)(nil)
