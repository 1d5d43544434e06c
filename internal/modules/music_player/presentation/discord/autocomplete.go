package discord

import (
	"context"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sglre6355/sgrmusic/internal/bot"
	"github.com/sglre6355/sgrmusic/internal/modules/music_player/application/ports"
)

const (
	// Discord drops autocomplete answers after three seconds.
	autocompleteTimeout = 2500 * time.Millisecond
	maxChoices          = 25
	maxChoiceLength     = 100
	suggestionLimit     = 10
)

// Suggester offers search hits for partially typed queries.
type Suggester interface {
	Suggest(ctx context.Context, terms string, limit int) ([]ports.Suggestion, error)
}

// AutocompleteHandler handles autocomplete requests.
type AutocompleteHandler struct {
	suggester Suggester
}

// NewAutocompleteHandler creates a new AutocompleteHandler.
func NewAutocompleteHandler(suggester Suggester) *AutocompleteHandler {
	return &AutocompleteHandler{suggester: suggester}
}

// Handle routes autocomplete interactions by command name.
func (h *AutocompleteHandler) Handle(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommandAutocomplete {
		return
	}

	r := bot.NewDiscordResponder(s, i.Interaction)
	var err error
	switch i.ApplicationCommandData().Name {
	case "play":
		err = h.HandlePlay(s, i, r)
	default:
		return
	}
	if err != nil {
		slog.Debug("failed to answer autocomplete", "error", err)
	}
}

// HandlePlay suggests tracks for the /play query option. Failures answer
// with no choices.
func (h *AutocompleteHandler) HandlePlay(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	var query string
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "query" && opt.Focused {
			query = opt.StringValue()
			break
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), autocompleteTimeout)
	defer cancel()

	suggestions, err := h.suggester.Suggest(ctx, query, suggestionLimit)
	if err != nil {
		slog.Debug("autocomplete search failed", "query", query, "error", err)
		suggestions = nil
	}

	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, min(len(suggestions), maxChoices))
	for _, suggestion := range suggestions {
		if len(choices) == maxChoices {
			break
		}
		// Values over the option limit would be rejected.
		if suggestion.URL == "" || len(suggestion.URL) > maxChoiceLength {
			continue
		}
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{
			Name:  truncate(suggestion.Title, maxChoiceLength),
			Value: suggestion.URL,
		})
	}

	return r.Respond(&discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{
			Choices: choices,
		},
	})
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-1]) + "…"
}
