package discord

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/sgrmusic/internal/bot"
	"github.com/sglre6355/sgrmusic/internal/modules/music_player/application/usecases"
	"github.com/sglre6355/sgrmusic/internal/modules/music_player/domain"
)

// QueueComponentPrefix routes queue pagination buttons to this module.
const QueueComponentPrefix = "queue"

const queuePageAction = "page"

// maxEmbedDescription is Discord's limit on embed descriptions.
const maxEmbedDescription = 4096

func queueButtonID(page int) string {
	return fmt.Sprintf("%s:%s:%d", QueueComponentPrefix, queuePageAction, page)
}

// parseQueueButtonID returns the 0-based page encoded in a button custom ID.
func parseQueueButtonID(customID string) (int, bool) {
	parts := strings.Split(customID, ":")
	if len(parts) != 3 || parts[0] != QueueComponentPrefix || parts[1] != queuePageAction {
		return 0, false
	}
	page, err := strconv.Atoi(parts[2])
	if err != nil || page < 0 {
		return 0, false
	}
	return page, true
}

// renderQueue builds the queue embed and its pagination buttons.
func renderQueue(output *usecases.QueueOutput) (*discordgo.MessageEmbed, []discordgo.MessageComponent) {
	page := output.Page

	var b strings.Builder
	if output.NowPlaying != nil {
		status := "Now Playing"
		if output.Paused {
			status = "Paused"
		}
		fmt.Fprintf(&b, "**%s:** %s\n\n", status, trackLink(*output.NowPlaying))
	}

	if page.Total == 0 {
		b.WriteString("The queue is empty.")
	} else {
		b.WriteString("**Up Next:**\n")
		for i, track := range page.Entries {
			line := fmt.Sprintf("%d. %s", page.Position(i), trackLink(track))
			if duration := track.FormattedDuration(); duration != "" {
				line += " `" + duration + "`"
			}
			if b.Len()+len(line)+1 > maxEmbedDescription {
				break
			}
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}

	embed := &discordgo.MessageEmbed{
		Title:       "Queue",
		Description: strings.TrimRight(b.String(), "\n"),
		Color:       colorInfo,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Page %d/%d · %d tracks", page.Page+1, page.MaxPages, page.Total),
		},
	}

	if page.MaxPages <= 1 {
		return embed, nil
	}

	components := []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "Previous",
					Style:    discordgo.SecondaryButton,
					CustomID: queueButtonID(page.Page - 1),
					Disabled: !page.HasPrev(),
				},
				discordgo.Button{
					Label:    "Next",
					Style:    discordgo.SecondaryButton,
					CustomID: queueButtonID(page.Page + 1),
					Disabled: !page.HasNext(),
				},
			},
		},
	}
	return embed, components
}

// HandleQueuePage handles the queue pagination buttons by re-rendering the
// message in place with the current queue.
func (h *CommandHandlers) HandleQueuePage(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	page, ok := parseQueueButtonID(i.MessageComponentData().CustomID)
	if !ok {
		return respondError(r, "Unknown button.")
	}

	guildID, err := snowflake.Parse(i.GuildID)
	if err != nil {
		return respondError(r, "Invalid guild")
	}

	output, err := h.player.Queue(context.Background(), usecases.QueueInput{
		GuildID:  guildID,
		Page:     page,
		PageSize: domain.DefaultPageSize,
	})
	if err != nil {
		return respondUsecaseError(r, err)
	}

	embed, components := renderQueue(output)
	// An empty slice clears buttons left over from a longer queue.
	if components == nil {
		components = []discordgo.MessageComponent{}
	}
	return r.Respond(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{embed},
			Components: components,
		},
	})
}

var linkTextEscaper = strings.NewReplacer("[", "\\[", "]", "\\]")

// escapeLinkText keeps brackets in titles from breaking markdown links.
func escapeLinkText(text string) string {
	return linkTextEscaper.Replace(text)
}
