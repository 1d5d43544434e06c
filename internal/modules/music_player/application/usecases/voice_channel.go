package usecases

import (
	"context"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/sgrmusic/internal/modules/music_player/application/ports"
)

// JoinInput contains the input for the Join use case.
type JoinInput struct {
	GuildID               snowflake.ID
	UserID                snowflake.ID
	NotificationChannelID snowflake.ID
	VoiceChannelID        snowflake.ID // Optional: specific channel to join (0 means use user's channel)
}

// JoinOutput contains the result of the Join use case.
type JoinOutput struct {
	VoiceChannelID snowflake.ID
	Action         VoiceAction
	session        *GuildSession
}

// LeaveInput contains the input for the Leave use case.
type LeaveInput struct {
	GuildID snowflake.ID
}

// BotVoiceStateChangeInput contains the input for handling bot voice state changes.
type BotVoiceStateChangeInput struct {
	GuildID      snowflake.ID
	NewChannelID *snowflake.ID // nil means disconnected
}

// VoiceChannelService handles voice channel operations.
type VoiceChannelService struct {
	sessions   *SessionManager
	voiceState ports.VoiceStateProvider
}

// NewVoiceChannelService creates a new VoiceChannelService.
func NewVoiceChannelService(
	sessions *SessionManager,
	voiceState ports.VoiceStateProvider,
) *VoiceChannelService {
	return &VoiceChannelService{
		sessions:   sessions,
		voiceState: voiceState,
	}
}

// EnsureConnection connects the bot to the requester's voice channel,
// reusing or moving an existing connection for the guild.
func (v *VoiceChannelService) EnsureConnection(ctx context.Context, input JoinInput) (*JoinOutput, error) {
	voiceChannelID := input.VoiceChannelID
	if voiceChannelID == 0 {
		userChannel, err := v.voiceState.GetUserVoiceChannel(input.GuildID, input.UserID)
		if err != nil {
			return nil, err
		}
		if userChannel == 0 {
			return nil, ErrUserNotInVoice
		}
		voiceChannelID = userChannel
	}

	session, err := v.sessions.GetOrCreate(input.GuildID)
	if err != nil {
		return nil, err
	}

	action, err := session.EnsureVoice(ctx, voiceChannelID, input.NotificationChannelID)
	if err != nil {
		return nil, err
	}

	return &JoinOutput{
		VoiceChannelID: voiceChannelID,
		Action:         action,
		session:        session,
	}, nil
}

// Leave stops playback and disconnects the bot from voice.
func (v *VoiceChannelService) Leave(ctx context.Context, input LeaveInput) error {
	session, ok := v.sessions.Get(input.GuildID)
	if !ok {
		return ErrNotConnected
	}

	result, err := session.Stop(ctx)
	if err != nil {
		return err
	}
	if !result.WasActive {
		return ErrNotConnected
	}

	return nil
}

// HandleBotVoiceStateChange reconciles the session with a voice state update
// for the bot. Being disconnected externally is treated like a stop.
func (v *VoiceChannelService) HandleBotVoiceStateChange(
	ctx context.Context,
	input BotVoiceStateChangeInput,
) error {
	session, ok := v.sessions.Get(input.GuildID)
	if !ok {
		return nil
	}
	return session.HandleVoiceStateChange(ctx, input.NewChannelID)
}
