package discord

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/sgrmusic/internal/bot"
	"github.com/sglre6355/sgrmusic/internal/modules/music_player/application/usecases"
	"github.com/sglre6355/sgrmusic/internal/modules/music_player/domain"
)

func testTrack(title, videoID string) domain.Track {
	return domain.NewTrack(title, domain.YouTubeWatchURL(videoID), "")
}

func TestHandlePlay_DefersThenEditsAddedEmbed(t *testing.T) {
	track := testTrack("Never Gonna Give You Up", "dQw4w9WgXcQ")
	player := &fakePlayer{
		playOutput: &usecases.PlayOutput{
			Tracks:  []domain.Track{track},
			Enqueue: usecases.EnqueueResult{Added: 1, Position: 2},
		},
	}
	handlers := NewCommandHandlers(player, &fakeVoice{})
	responder := &bot.MockResponder{}

	err := handlers.HandlePlay(nil, commandInteraction("play", stringOption("query", "rick astley")), responder)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(responder.Responses) != 1 {
		t.Fatalf("expected 1 response, got %d", len(responder.Responses))
	}
	if got := responder.Responses[0].Type; got != discordgo.InteractionResponseDeferredChannelMessageWithSource {
		t.Errorf("expected deferred response, got %d", got)
	}

	if player.playInput.Query != "rick astley" {
		t.Errorf("expected query %q, got %q", "rick astley", player.playInput.Query)
	}
	if player.playInput.GuildID != snowflake.MustParse(testGuildID) {
		t.Errorf("expected guild %s, got %s", testGuildID, player.playInput.GuildID)
	}
	if player.playInput.NotificationChannelID != snowflake.MustParse(testChannelID) {
		t.Errorf("expected channel %s, got %s", testChannelID, player.playInput.NotificationChannelID)
	}

	edit := responder.LastEdit()
	if edit == nil || edit.Embeds == nil || len(*edit.Embeds) != 1 {
		t.Fatal("expected one edited embed")
	}
	embed := (*edit.Embeds)[0]
	if embed.Title != "Added to Queue" {
		t.Errorf("expected title %q, got %q", "Added to Queue", embed.Title)
	}
	wantLink := fmt.Sprintf("[%s](%s)", track.Title, track.URL)
	if embed.Description != wantLink {
		t.Errorf("expected description %q, got %q", wantLink, embed.Description)
	}
	if embed.Thumbnail == nil || !strings.Contains(embed.Thumbnail.URL, "dQw4w9WgXcQ") {
		t.Errorf("expected youtube thumbnail, got %+v", embed.Thumbnail)
	}
	if embed.Footer == nil || embed.Footer.Text != "Requested by listener" {
		t.Errorf("expected requester footer, got %+v", embed.Footer)
	}
}

func TestHandlePlay_CollectionAndMultipleTracks(t *testing.T) {
	tests := []struct {
		name    string
		output  *usecases.PlayOutput
		wantSub string
	}{
		{
			name: "catalog collection",
			output: &usecases.PlayOutput{
				Collection: &domain.CatalogCollection{Name: "Road Trip", Queries: []string{"a", "b", "c"}},
			},
			wantSub: "Added 3 songs from **Road Trip** to the queue.",
		},
		{
			name: "youtube playlist",
			output: &usecases.PlayOutput{
				Tracks: []domain.Track{testTrack("one", "aaaaaaaaaaa"), testTrack("two", "bbbbbbbbbbb")},
			},
			wantSub: "Added 2 songs from playlist to the queue.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handlers := NewCommandHandlers(&fakePlayer{playOutput: tt.output}, &fakeVoice{})
			responder := &bot.MockResponder{}

			err := handlers.HandlePlay(nil, commandInteraction("play", stringOption("query", "x")), responder)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			embed := (*responder.LastEdit().Embeds)[0]
			if embed.Title != "Playlist Added" {
				t.Errorf("expected title %q, got %q", "Playlist Added", embed.Title)
			}
			if embed.Description != tt.wantSub {
				t.Errorf("expected description %q, got %q", tt.wantSub, embed.Description)
			}
		})
	}
}

func TestHandlePlay_ErrorsAreEdited(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"not in voice", usecases.ErrUserNotInVoice, "You must be in a voice channel to use this command."},
		{"no results", fmt.Errorf("resolve: %w", usecases.ErrNoResults), "No results found."},
		{"catalog disabled", usecases.ErrCatalogDisabled, "Catalog links are not enabled."},
		{"unknown", errors.New("boom"), genericErrorMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handlers := NewCommandHandlers(&fakePlayer{err: tt.err}, &fakeVoice{})
			responder := &bot.MockResponder{}

			err := handlers.HandlePlay(nil, commandInteraction("play", stringOption("query", "x")), responder)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			edit := responder.LastEdit()
			if edit == nil {
				t.Fatal("expected an edit")
			}
			embed := (*edit.Embeds)[0]
			if embed.Description != tt.want {
				t.Errorf("expected %q, got %q", tt.want, embed.Description)
			}
			if embed.Color != colorError {
				t.Errorf("expected error color, got %#x", embed.Color)
			}
		})
	}
}

func TestHandlePlay_DeferFailureStopsPlay(t *testing.T) {
	player := &fakePlayer{}
	handlers := NewCommandHandlers(player, &fakeVoice{})
	expectedErr := errors.New("responder failed")
	responder := &bot.MockResponder{Err: expectedErr}

	err := handlers.HandlePlay(nil, commandInteraction("play", stringOption("query", "x")), responder)
	if !errors.Is(err, expectedErr) {
		t.Fatalf("expected %v, got %v", expectedErr, err)
	}
	if player.playInput.Query != "" {
		t.Error("expected Play not to be called")
	}
}

func TestHandleJoin(t *testing.T) {
	tests := []struct {
		name   string
		action usecases.VoiceAction
		want   string
	}{
		{"joined", usecases.VoiceJoined, "Connected to <#400>."},
		{"moved", usecases.VoiceMoved, "Moved to <#400>."},
		{"reused", usecases.VoiceReused, "Already connected to <#400>."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			voice := &fakeVoice{join: &usecases.JoinOutput{VoiceChannelID: 400, Action: tt.action}}
			handlers := NewCommandHandlers(&fakePlayer{}, voice)
			responder := &bot.MockResponder{}

			err := handlers.HandleJoin(nil, commandInteraction("join"), responder)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			embed := firstEmbed(responder.LastResponse())
			if embed == nil || embed.Description != tt.want {
				t.Errorf("expected %q, got %+v", tt.want, embed)
			}
		})
	}
}

func TestHandleJoin_ChannelOption(t *testing.T) {
	voice := &fakeVoice{join: &usecases.JoinOutput{VoiceChannelID: 555, Action: usecases.VoiceJoined}}
	handlers := NewCommandHandlers(&fakePlayer{}, voice)

	option := &discordgo.ApplicationCommandInteractionDataOption{
		Name:  "channel",
		Type:  discordgo.ApplicationCommandOptionChannel,
		Value: "555",
	}
	err := handlers.HandleJoin(nil, commandInteraction("join", option), &bot.MockResponder{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if voice.joinInput.VoiceChannelID != 555 {
		t.Errorf("expected channel 555, got %s", voice.joinInput.VoiceChannelID)
	}
}

func TestHandleLeave_NotConnected(t *testing.T) {
	handlers := NewCommandHandlers(&fakePlayer{}, &fakeVoice{leaveErr: usecases.ErrNotConnected})
	responder := &bot.MockResponder{}

	if err := handlers.HandleLeave(nil, commandInteraction("leave"), responder); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	response := responder.LastResponse()
	if response.Data.Flags != discordgo.MessageFlagsEphemeral {
		t.Error("expected ephemeral response")
	}
	if got := firstEmbed(response).Description; got != "I'm not in a voice channel." {
		t.Errorf("unexpected description %q", got)
	}
}

func TestPlaybackControls(t *testing.T) {
	next := testTrack("next", "ccccccccccc")

	tests := []struct {
		name      string
		player    *fakePlayer
		handle    func(*CommandHandlers) bot.InteractionHandler
		want      string
		ephemeral bool
	}{
		{
			name:   "skip with next track",
			player: &fakePlayer{skip: &usecases.SkipOutput{NextTrack: &next}},
			handle: func(h *CommandHandlers) bot.InteractionHandler { return h.HandleSkip },
			want:   "Skipped the current song.",
		},
		{
			name:      "skip while idle",
			player:    &fakePlayer{err: usecases.ErrNotPlaying},
			handle:    func(h *CommandHandlers) bot.InteractionHandler { return h.HandleSkip },
			want:      "Nothing is playing.",
			ephemeral: true,
		},
		{
			name:   "pause",
			player: &fakePlayer{},
			handle: func(h *CommandHandlers) bot.InteractionHandler { return h.HandlePause },
			want:   "Paused.",
		},
		{
			name:      "pause twice",
			player:    &fakePlayer{err: usecases.ErrAlreadyPaused},
			handle:    func(h *CommandHandlers) bot.InteractionHandler { return h.HandlePause },
			want:      "Already paused.",
			ephemeral: true,
		},
		{
			name:   "resume",
			player: &fakePlayer{},
			handle: func(h *CommandHandlers) bot.InteractionHandler { return h.HandleResume },
			want:   "Resumed.",
		},
		{
			name:      "resume while playing",
			player:    &fakePlayer{err: usecases.ErrNotPaused},
			handle:    func(h *CommandHandlers) bot.InteractionHandler { return h.HandleResume },
			want:      "Music is not paused.",
			ephemeral: true,
		},
		{
			name:   "stop",
			player: &fakePlayer{stop: usecases.StopResult{WasActive: true}},
			handle: func(h *CommandHandlers) bot.InteractionHandler { return h.HandleStop },
			want:   "Music stopped.",
		},
		{
			name:      "stop while idle",
			player:    &fakePlayer{},
			handle:    func(h *CommandHandlers) bot.InteractionHandler { return h.HandleStop },
			want:      "I'm not in a voice channel.",
			ephemeral: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handlers := NewCommandHandlers(tt.player, &fakeVoice{})
			responder := &bot.MockResponder{}

			if err := tt.handle(handlers)(nil, commandInteraction("control"), responder); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			response := responder.LastResponse()
			embed := firstEmbed(response)
			if embed == nil || embed.Description != tt.want {
				t.Fatalf("expected %q, got %+v", tt.want, embed)
			}
			if got := response.Data.Flags == discordgo.MessageFlagsEphemeral; got != tt.ephemeral {
				t.Errorf("expected ephemeral=%v, got %v", tt.ephemeral, got)
			}
		})
	}
}

func TestHandleNowPlaying(t *testing.T) {
	track := testTrack("Song", "ddddddddddd")
	track.Duration = 3*time.Minute + 5*time.Second
	handlers := NewCommandHandlers(&fakePlayer{
		nowPlaying: &usecases.NowPlayingOutput{Track: track, Paused: true},
	}, &fakeVoice{})
	responder := &bot.MockResponder{}

	if err := handlers.HandleNowPlaying(nil, commandInteraction("nowplaying"), responder); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	embed := firstEmbed(responder.LastResponse())
	if embed.Title != "Now Playing" {
		t.Errorf("expected title %q, got %q", "Now Playing", embed.Title)
	}
	if len(embed.Fields) != 1 || embed.Fields[0].Value != "03:05" {
		t.Errorf("expected duration field 03:05, got %+v", embed.Fields)
	}
	if embed.Footer == nil || embed.Footer.Text != "Paused" {
		t.Errorf("expected paused footer, got %+v", embed.Footer)
	}
}

func TestHandleNowPlaying_UnknownErrorIsReturned(t *testing.T) {
	expectedErr := errors.New("session exploded")
	handlers := NewCommandHandlers(&fakePlayer{err: expectedErr}, &fakeVoice{})
	responder := &bot.MockResponder{}

	err := handlers.HandleNowPlaying(nil, commandInteraction("nowplaying"), responder)
	if !errors.Is(err, expectedErr) {
		t.Fatalf("expected %v, got %v", expectedErr, err)
	}
	if len(responder.Responses) != 0 {
		t.Errorf("expected no response, got %d", len(responder.Responses))
	}
}

func TestHandleQueue(t *testing.T) {
	tracks := make([]domain.Track, 12)
	for i := range tracks {
		tracks[i] = testTrack(fmt.Sprintf("track %d", i+1), fmt.Sprintf("video%06d", i))
	}
	player := &fakePlayer{
		queue: &usecases.QueueOutput{
			Page: domain.Paginate(tracks, 1, domain.DefaultPageSize),
		},
	}
	handlers := NewCommandHandlers(player, &fakeVoice{})
	responder := &bot.MockResponder{}

	option := &discordgo.ApplicationCommandInteractionDataOption{
		Name:  "page",
		Type:  discordgo.ApplicationCommandOptionInteger,
		Value: float64(2),
	}
	if err := handlers.HandleQueue(nil, commandInteraction("queue", option), responder); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if player.queueInput.Page != 1 {
		t.Errorf("expected 0-based page 1, got %d", player.queueInput.Page)
	}

	response := responder.LastResponse()
	embed := firstEmbed(response)
	if !strings.Contains(embed.Description, "11. [track 11]") {
		t.Errorf("expected absolute positions, got %q", embed.Description)
	}
	if embed.Footer == nil || !strings.HasPrefix(embed.Footer.Text, "Page 2/2") {
		t.Errorf("unexpected footer %+v", embed.Footer)
	}
	if len(response.Data.Components) != 1 {
		t.Fatalf("expected pagination row, got %d components", len(response.Data.Components))
	}
}

func TestHandleQueue_Empty(t *testing.T) {
	handlers := NewCommandHandlers(&fakePlayer{
		queue: &usecases.QueueOutput{Page: domain.Paginate(nil, 0, 0)},
	}, &fakeVoice{})
	responder := &bot.MockResponder{}

	if err := handlers.HandleQueue(nil, commandInteraction("queue"), responder); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := firstEmbed(responder.LastResponse()).Description; got != "The queue is empty." {
		t.Errorf("unexpected description %q", got)
	}
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		err       error
		want      string
		wantKnown bool
	}{
		{usecases.ErrUserNotInVoice, "You must be in a voice channel to use this command.", true},
		{usecases.ErrNoResults, "No results found.", true},
		{usecases.ErrNotPlaying, "Nothing is playing.", true},
		{usecases.ErrAlreadyPaused, "Already paused.", true},
		{usecases.ErrNotPaused, "Music is not paused.", true},
		{usecases.ErrNotConnected, "I'm not in a voice channel.", true},
		{usecases.ErrQueueEmpty, "The queue is empty.", true},
		{fmt.Errorf("join: %w", usecases.ErrVoicePermission), "I don't have permission to join or speak in that channel.", true},
		{usecases.ErrCatalogDisabled, "Catalog links are not enabled.", true},
		{errors.New("other"), genericErrorMessage, false},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			got, known := errorMessage(tt.err)
			if got != tt.want || known != tt.wantKnown {
				t.Errorf("errorMessage(%v) = %q, %v; want %q, %v", tt.err, got, known, tt.want, tt.wantKnown)
			}
		})
	}
}

func TestParseIDs_MissingMember(t *testing.T) {
	i := commandInteraction("skip")
	i.Member = nil

	if _, err := parseIDs(i); err == nil {
		t.Fatal("expected error for interaction without member")
	}
}

func TestTrackLink_EscapesBrackets(t *testing.T) {
	track := domain.NewTrack("[MV] Song [Live]", "https://example.com/a", "")

	want := `[\[MV\] Song \[Live\]](https://example.com/a)`
	if got := trackLink(track); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}
