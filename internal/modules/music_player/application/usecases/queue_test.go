package usecases

import (
	"context"
	"fmt"
	"slices"
	"testing"

	"github.com/sglre6355/sgrmusic/internal/modules/music_player/domain"
)

func TestQueueService_Page(t *testing.T) {
	f := newSessionFixture()
	sessions := NewSessionManager(f.deps(), DefaultSessionConfig())
	t.Cleanup(func() { _ = sessions.Shutdown(context.Background()) })
	service := NewQueueService(sessions)

	empty := service.Page(QueueInput{GuildID: testGuildID, Page: 3})
	if empty.Page.MaxPages != 1 || empty.Page.Page != 0 || len(empty.Page.Entries) != 0 {
		t.Errorf("Page() without session = %+v, want one empty page", empty.Page)
	}

	session, err := sessions.GetOrCreate(testGuildID)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	ctx := context.Background()
	if _, err := session.EnsureVoice(ctx, testVoiceChannelID, 0); err != nil {
		t.Fatalf("EnsureVoice() error = %v", err)
	}

	tracks := make([]domain.Track, 24)
	for i := range tracks {
		tracks[i] = mockTrack(fmt.Sprintf("T%02d", i))
	}
	if _, err := session.Enqueue(ctx, tracks...); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	waitForNowPlaying(t, session, "T00")

	tests := []struct {
		name      string
		page      int
		wantPage  int
		wantFirst string
		wantLen   int
	}{
		{name: "first page", page: 0, wantPage: 0, wantFirst: "T01", wantLen: 10},
		{name: "last page", page: 2, wantPage: 2, wantFirst: "T21", wantLen: 3},
		{name: "past the end clamps", page: 5, wantPage: 2, wantFirst: "T21", wantLen: 3},
		{name: "negative clamps", page: -1, wantPage: 0, wantFirst: "T01", wantLen: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := service.Page(QueueInput{GuildID: testGuildID, Page: tt.page})

			if output.NowPlaying == nil || output.NowPlaying.Title != "T00" {
				t.Errorf("now playing = %v, want T00", output.NowPlaying)
			}
			if output.Page.MaxPages != 3 || output.Page.Total != 23 {
				t.Errorf("MaxPages = %d, Total = %d, want 3 and 23", output.Page.MaxPages, output.Page.Total)
			}
			if output.Page.Page != tt.wantPage {
				t.Errorf("Page = %d, want %d", output.Page.Page, tt.wantPage)
			}
			if len(output.Page.Entries) != tt.wantLen || output.Page.Entries[0].Title != tt.wantFirst {
				t.Errorf("entries = %v, want %d starting at %s",
					trackTitles(output.Page.Entries), tt.wantLen, tt.wantFirst)
			}
		})
	}

	// A view opened before the queue emptied still renders.
	if _, err := session.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	stale := service.Page(QueueInput{GuildID: testGuildID, Page: 2})
	if stale.Page.Page != 0 || !slices.Equal(trackTitles(stale.Page.Entries), []string{}) {
		t.Errorf("Page() after stop = %+v, want an empty first page", stale.Page)
	}
}
