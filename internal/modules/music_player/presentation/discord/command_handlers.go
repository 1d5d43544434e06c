package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/sgrmusic/internal/bot"
	"github.com/sglre6355/sgrmusic/internal/modules/music_player/application/usecases"
	"github.com/sglre6355/sgrmusic/internal/modules/music_player/domain"
)

// Embed colors.
const (
	colorSuccess = 0x08c404
	colorError   = 0xE74C3C
	colorInfo    = 0x5865F2
)

// Command deadlines. Play covers search fallback and is answered through a
// deferred response.
const (
	playTimeout    = 90 * time.Second
	commandTimeout = 15 * time.Second
)

const (
	genericErrorMessage       = "An error occurred while processing your command."
	invalidInteractionMessage = "This command can only be used in a server."
)

// Player is the playback surface the command handlers drive.
type Player interface {
	Play(ctx context.Context, input usecases.PlayInput) (*usecases.PlayOutput, error)
	Skip(ctx context.Context, input usecases.GuildInput) (*usecases.SkipOutput, error)
	Pause(ctx context.Context, input usecases.GuildInput) error
	Resume(ctx context.Context, input usecases.GuildInput) error
	Stop(ctx context.Context, input usecases.GuildInput) (usecases.StopResult, error)
	Queue(ctx context.Context, input usecases.QueueInput) (*usecases.QueueOutput, error)
	NowPlaying(ctx context.Context, input usecases.GuildInput) (*usecases.NowPlayingOutput, error)
}

// VoiceControl joins and leaves voice channels.
type VoiceControl interface {
	EnsureConnection(ctx context.Context, input usecases.JoinInput) (*usecases.JoinOutput, error)
	Leave(ctx context.Context, input usecases.LeaveInput) error
}

// CommandHandlers holds all the command handlers.
type CommandHandlers struct {
	player Player
	voice  VoiceControl
}

// NewCommandHandlers creates new CommandHandlers.
func NewCommandHandlers(player Player, voice VoiceControl) *CommandHandlers {
	return &CommandHandlers{
		player: player,
		voice:  voice,
	}
}

// HandleJoin handles the /join command.
func (h *CommandHandlers) HandleJoin(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ids, err := parseIDs(i)
	if err != nil {
		return respondError(r, invalidInteractionMessage)
	}

	var voiceChannelID snowflake.ID
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name != "channel" {
			continue
		}
		voiceChannelID, err = snowflake.Parse(fmt.Sprint(opt.Value))
		if err != nil {
			return respondError(r, "Invalid voice channel")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	output, err := h.voice.EnsureConnection(ctx, usecases.JoinInput{
		GuildID:               ids.guild,
		UserID:                ids.user,
		NotificationChannelID: ids.channel,
		VoiceChannelID:        voiceChannelID,
	})
	if err != nil {
		return respondUsecaseError(r, err)
	}

	var description string
	switch output.Action {
	case usecases.VoiceJoined:
		description = fmt.Sprintf("Connected to <#%d>.", output.VoiceChannelID)
	case usecases.VoiceMoved:
		description = fmt.Sprintf("Moved to <#%d>.", output.VoiceChannelID)
	default:
		description = fmt.Sprintf("Already connected to <#%d>.", output.VoiceChannelID)
	}
	return respondSuccess(r, description)
}

// HandleLeave handles the /leave command.
func (h *CommandHandlers) HandleLeave(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ids, err := parseIDs(i)
	if err != nil {
		return respondError(r, invalidInteractionMessage)
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := h.voice.Leave(ctx, usecases.LeaveInput{GuildID: ids.guild}); err != nil {
		return respondUsecaseError(r, err)
	}
	return respondSuccess(r, "Disconnected.")
}

// HandlePlay handles the /play command.
// Resolution may outlast the interaction window, so the response is deferred.
func (h *CommandHandlers) HandlePlay(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ids, err := parseIDs(i)
	if err != nil {
		return respondError(r, invalidInteractionMessage)
	}

	var query string
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "query" {
			query = opt.StringValue()
		}
	}

	if err := r.Respond(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), playTimeout)
	defer cancel()

	output, err := h.player.Play(ctx, usecases.PlayInput{
		GuildID:               ids.guild,
		UserID:                ids.user,
		NotificationChannelID: ids.channel,
		Query:                 query,
	})
	if err != nil {
		message, known := errorMessage(err)
		if !known {
			slog.Error("failed to play", "guild", ids.guild, "query", query, "error", err)
		}
		return editEmbed(r, &discordgo.MessageEmbed{
			Description: message,
			Color:       colorError,
		})
	}

	embed := playEmbed(output)
	embed.Footer = requesterFooter(i.Member)
	return editEmbed(r, embed)
}

func playEmbed(output *usecases.PlayOutput) *discordgo.MessageEmbed {
	if output.Collection != nil {
		return &discordgo.MessageEmbed{
			Title: "Playlist Added",
			Description: fmt.Sprintf(
				"Added %d songs from **%s** to the queue.",
				len(output.Collection.Queries),
				output.Collection.Name,
			),
			Color: colorInfo,
		}
	}

	if len(output.Tracks) == 0 {
		return &discordgo.MessageEmbed{Description: "No results found.", Color: colorError}
	}

	if len(output.Tracks) > 1 {
		return &discordgo.MessageEmbed{
			Title:       "Playlist Added",
			Description: fmt.Sprintf("Added %d songs from playlist to the queue.", len(output.Tracks)),
			Color:       colorInfo,
		}
	}

	track := output.Tracks[0]
	embed := &discordgo.MessageEmbed{
		Title:       "Added to Queue",
		Description: trackLink(track),
		Color:       colorInfo,
	}
	if thumbnail := track.ThumbnailURL(); thumbnail != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: thumbnail}
	}
	if output.Enqueue.Position > 0 {
		embed.Fields = []*discordgo.MessageEmbedField{
			{Name: "Position", Value: fmt.Sprintf("%d", output.Enqueue.Position), Inline: true},
		}
	}
	return embed
}

func requesterFooter(member *discordgo.Member) *discordgo.MessageEmbedFooter {
	if member == nil || member.User == nil {
		return nil
	}
	return &discordgo.MessageEmbedFooter{
		Text:    "Requested by " + member.DisplayName(),
		IconURL: member.AvatarURL(""),
	}
}

// HandleSkip handles the /skip command.
func (h *CommandHandlers) HandleSkip(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ids, err := parseIDs(i)
	if err != nil {
		return respondError(r, invalidInteractionMessage)
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	output, err := h.player.Skip(ctx, usecases.GuildInput{GuildID: ids.guild})
	if err != nil {
		return respondUsecaseError(r, err)
	}

	embed := &discordgo.MessageEmbed{
		Description: "Skipped the current song.",
		Color:       colorSuccess,
	}
	if output.NextTrack != nil {
		embed.Fields = []*discordgo.MessageEmbedField{
			{Name: "Up Next", Value: trackLink(*output.NextTrack)},
		}
	}
	return respondEmbed(r, embed, false)
}

// HandlePause handles the /pause command.
func (h *CommandHandlers) HandlePause(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ids, err := parseIDs(i)
	if err != nil {
		return respondError(r, invalidInteractionMessage)
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := h.player.Pause(ctx, usecases.GuildInput{GuildID: ids.guild}); err != nil {
		return respondUsecaseError(r, err)
	}
	return respondSuccess(r, "Paused.")
}

// HandleResume handles the /resume command.
func (h *CommandHandlers) HandleResume(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ids, err := parseIDs(i)
	if err != nil {
		return respondError(r, invalidInteractionMessage)
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := h.player.Resume(ctx, usecases.GuildInput{GuildID: ids.guild}); err != nil {
		return respondUsecaseError(r, err)
	}
	return respondSuccess(r, "Resumed.")
}

// HandleStop handles the /stop command.
func (h *CommandHandlers) HandleStop(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ids, err := parseIDs(i)
	if err != nil {
		return respondError(r, invalidInteractionMessage)
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	result, err := h.player.Stop(ctx, usecases.GuildInput{GuildID: ids.guild})
	if err != nil {
		return respondUsecaseError(r, err)
	}
	if !result.WasActive {
		return respondUsecaseError(r, usecases.ErrNotConnected)
	}
	return respondSuccess(r, "Music stopped.")
}

// HandleQueue handles the /queue command.
func (h *CommandHandlers) HandleQueue(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ids, err := parseIDs(i)
	if err != nil {
		return respondError(r, invalidInteractionMessage)
	}

	page := 0
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "page" {
			page = int(opt.IntValue()) - 1
		}
	}

	output, err := h.player.Queue(context.Background(), usecases.QueueInput{
		GuildID:  ids.guild,
		Page:     page,
		PageSize: domain.DefaultPageSize,
	})
	if err != nil {
		return respondUsecaseError(r, err)
	}
	if output.NowPlaying == nil && output.Page.Total == 0 {
		return respondUsecaseError(r, usecases.ErrQueueEmpty)
	}

	embed, components := renderQueue(output)
	return r.Respond(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{embed},
			Components: components,
		},
	})
}

// HandleNowPlaying handles the /nowplaying command.
func (h *CommandHandlers) HandleNowPlaying(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ids, err := parseIDs(i)
	if err != nil {
		return respondError(r, invalidInteractionMessage)
	}

	output, err := h.player.NowPlaying(context.Background(), usecases.GuildInput{GuildID: ids.guild})
	if err != nil {
		return respondUsecaseError(r, err)
	}

	embed := &discordgo.MessageEmbed{
		Title:       "Now Playing",
		Description: trackLink(output.Track),
		Color:       output.Track.Source().Color(),
	}
	if thumbnail := output.Track.ThumbnailURL(); thumbnail != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: thumbnail}
	}
	if duration := output.Track.FormattedDuration(); duration != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Duration", Value: duration, Inline: true,
		})
	}
	if output.Paused {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: "Paused"}
	}
	return respondEmbed(r, embed, false)
}

// interactionIDs are the snowflakes every command needs.
type interactionIDs struct {
	guild   snowflake.ID
	user    snowflake.ID
	channel snowflake.ID
}

func parseIDs(i *discordgo.InteractionCreate) (interactionIDs, error) {
	var ids interactionIDs
	var err error

	if ids.guild, err = snowflake.Parse(i.GuildID); err != nil {
		return ids, errors.New("invalid guild ID")
	}
	if i.Member == nil || i.Member.User == nil {
		return ids, errors.New("invalid user ID")
	}
	if ids.user, err = snowflake.Parse(i.Member.User.ID); err != nil {
		return ids, errors.New("invalid user ID")
	}
	if ids.channel, err = snowflake.Parse(i.ChannelID); err != nil {
		return ids, errors.New("invalid channel ID")
	}
	return ids, nil
}

// errorMessage returns the user-facing text for err. known is false for
// errors without a dedicated message.
func errorMessage(err error) (message string, known bool) {
	switch {
	case errors.Is(err, usecases.ErrUserNotInVoice):
		return "You must be in a voice channel to use this command.", true
	case errors.Is(err, usecases.ErrNoResults):
		return "No results found.", true
	case errors.Is(err, usecases.ErrNotPlaying):
		return "Nothing is playing.", true
	case errors.Is(err, usecases.ErrAlreadyPaused):
		return "Already paused.", true
	case errors.Is(err, usecases.ErrNotPaused):
		return "Music is not paused.", true
	case errors.Is(err, usecases.ErrNotConnected):
		return "I'm not in a voice channel.", true
	case errors.Is(err, usecases.ErrQueueEmpty):
		return "The queue is empty.", true
	case errors.Is(err, usecases.ErrVoicePermission):
		return "I don't have permission to join or speak in that channel.", true
	case errors.Is(err, usecases.ErrCatalogDisabled):
		return "Catalog links are not enabled.", true
	case errors.Is(err, usecases.ErrSessionClosed):
		return "The music player is shutting down.", true
	default:
		return genericErrorMessage, false
	}
}

// Response helpers.

// respondUsecaseError answers with the message for a known error. Unknown
// errors are returned so the bot reports them.
func respondUsecaseError(r bot.Responder, err error) error {
	message, known := errorMessage(err)
	if !known {
		return err
	}
	return respondError(r, message)
}

func respondError(r bot.Responder, message string) error {
	return respondEmbed(r, &discordgo.MessageEmbed{
		Description: message,
		Color:       colorError,
	}, true)
}

func respondSuccess(r bot.Responder, description string) error {
	return respondEmbed(r, &discordgo.MessageEmbed{
		Description: description,
		Color:       colorSuccess,
	}, false)
}

func respondEmbed(r bot.Responder, embed *discordgo.MessageEmbed, ephemeral bool) error {
	data := &discordgo.InteractionResponseData{
		Embeds: []*discordgo.MessageEmbed{embed},
	}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	return r.Respond(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
}

func editEmbed(r bot.Responder, embed *discordgo.MessageEmbed) error {
	return r.Edit(&discordgo.WebhookEdit{
		Embeds: &[]*discordgo.MessageEmbed{embed},
	})
}

func trackLink(track domain.Track) string {
	return fmt.Sprintf("[%s](%s)", escapeLinkText(track.Title), track.URL)
}
