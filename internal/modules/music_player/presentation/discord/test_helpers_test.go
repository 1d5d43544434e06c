package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/sglre6355/sgrmusic/internal/modules/music_player/application/ports"
	"github.com/sglre6355/sgrmusic/internal/modules/music_player/application/usecases"
)

const (
	testGuildID   = "100"
	testChannelID = "200"
	testUserID    = "300"
)

type fakePlayer struct {
	playInput  usecases.PlayInput
	playOutput *usecases.PlayOutput
	queueInput usecases.QueueInput
	queue      *usecases.QueueOutput
	skip       *usecases.SkipOutput
	stop       usecases.StopResult
	nowPlaying *usecases.NowPlayingOutput
	err        error
}

func (f *fakePlayer) Play(_ context.Context, input usecases.PlayInput) (*usecases.PlayOutput, error) {
	f.playInput = input
	return f.playOutput, f.err
}

func (f *fakePlayer) Skip(context.Context, usecases.GuildInput) (*usecases.SkipOutput, error) {
	return f.skip, f.err
}

func (f *fakePlayer) Pause(context.Context, usecases.GuildInput) error {
	return f.err
}

func (f *fakePlayer) Resume(context.Context, usecases.GuildInput) error {
	return f.err
}

func (f *fakePlayer) Stop(context.Context, usecases.GuildInput) (usecases.StopResult, error) {
	return f.stop, f.err
}

func (f *fakePlayer) Queue(_ context.Context, input usecases.QueueInput) (*usecases.QueueOutput, error) {
	f.queueInput = input
	return f.queue, f.err
}

func (f *fakePlayer) NowPlaying(context.Context, usecases.GuildInput) (*usecases.NowPlayingOutput, error) {
	return f.nowPlaying, f.err
}

type fakeVoice struct {
	joinInput usecases.JoinInput
	join      *usecases.JoinOutput
	leaveErr  error
	err       error
}

func (f *fakeVoice) EnsureConnection(_ context.Context, input usecases.JoinInput) (*usecases.JoinOutput, error) {
	f.joinInput = input
	return f.join, f.err
}

func (f *fakeVoice) Leave(context.Context, usecases.LeaveInput) error {
	return f.leaveErr
}

type fakeSuggester struct {
	terms       string
	suggestions []ports.Suggestion
	err         error
}

func (f *fakeSuggester) Suggest(_ context.Context, terms string, _ int) ([]ports.Suggestion, error) {
	f.terms = terms
	return f.suggestions, f.err
}

func commandInteraction(
	name string,
	options ...*discordgo.ApplicationCommandInteractionDataOption,
) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type:      discordgo.InteractionApplicationCommand,
			GuildID:   testGuildID,
			ChannelID: testChannelID,
			Member: &discordgo.Member{
				User: &discordgo.User{ID: testUserID, Username: "listener"},
			},
			Data: discordgo.ApplicationCommandInteractionData{
				Name:    name,
				Options: options,
			},
		},
	}
}

func componentInteraction(customID string) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type:      discordgo.InteractionMessageComponent,
			GuildID:   testGuildID,
			ChannelID: testChannelID,
			Member: &discordgo.Member{
				User: &discordgo.User{ID: testUserID},
			},
			Data: discordgo.MessageComponentInteractionData{
				CustomID:      customID,
				ComponentType: discordgo.ButtonComponent,
			},
		},
	}
}

func stringOption(name, value string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:  name,
		Type:  discordgo.ApplicationCommandOptionString,
		Value: value,
	}
}

func firstEmbed(response *discordgo.InteractionResponse) *discordgo.MessageEmbed {
	if response == nil || response.Data == nil || len(response.Data.Embeds) == 0 {
		return nil
	}
	return response.Data.Embeds[0]
}
