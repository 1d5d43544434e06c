package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ppalone/ytsearch"
	"github.com/raitonoberu/ytmusic"
	"github.com/sglre6355/sgrmusic/internal/modules/music_player/application/ports"
	"github.com/sglre6355/sgrmusic/internal/modules/music_player/domain"
)

// searchStage is one backend tried by FallbackSearcher.
type searchStage struct {
	name   string
	search func(ctx context.Context, terms string) (domain.Track, error)
}

// FallbackSearcher searches YouTube through several backends, falling
// through to the next one when a backend fails or finds nothing.
type FallbackSearcher struct {
	client    *ytsearch.Client
	stages    []searchStage
	timeout   time.Duration
	resilient *Resilient
}

// NewFallbackSearcher creates a FallbackSearcher trying ytsearch, then
// YouTube Music, then yt-dlp.
func NewFallbackSearcher(
	httpClient *http.Client,
	ytdlpClient *YtdlpClient,
	retry RetryConfig,
) *FallbackSearcher {
	s := &FallbackSearcher{
		client:    ytsearch.NewClient(httpClient),
		timeout:   retry.RequestTimeout,
		resilient: NewResilient("youtube-search", retry),
	}
	s.stages = []searchStage{
		{name: "ytsearch", search: s.searchYouTube},
		{name: "ytmusic", search: searchYouTubeMusic},
		{name: "yt-dlp", search: ytdlpClient.Search},
	}
	return s
}

// Search returns the first hit of the first backend that has one.
func (s *FallbackSearcher) Search(ctx context.Context, terms string) (domain.Track, error) {
	for _, stage := range s.stages {
		track, err := s.runStage(ctx, stage, terms)
		if err == nil && track.IsValid() {
			return track, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.Track{}, ctxErr
		}
		if err != nil && !errors.Is(err, ports.ErrNotFound) {
			slog.Warn("search backend failed", "backend", stage.name, "query", terms, "error", err)
		}
	}
	return domain.Track{}, fmt.Errorf("no search results for %q: %w", terms, ports.ErrNotFound)
}

func (s *FallbackSearcher) runStage(
	ctx context.Context,
	stage searchStage,
	terms string,
) (domain.Track, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return stage.search(ctx, terms)
}

// Suggest returns ytsearch results for autocomplete.
func (s *FallbackSearcher) Suggest(
	ctx context.Context,
	terms string,
	limit int,
) ([]ports.Suggestion, error) {
	var suggestions []ports.Suggestion
	err := s.resilient.Execute(ctx, func(ctx context.Context) error {
		res, err := s.client.Search(ctx, terms)
		if err != nil {
			return err
		}

		suggestions = suggestions[:0]
		for _, v := range res.Results {
			if v.VideoID == "" || v.Title == "" {
				continue
			}
			suggestions = append(suggestions, ports.Suggestion{
				Title: v.Title,
				URL:   domain.YouTubeWatchURL(v.VideoID),
			})
			if len(suggestions) == limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch suggestions: %w", err)
	}
	return suggestions, nil
}

func (s *FallbackSearcher) searchYouTube(ctx context.Context, terms string) (domain.Track, error) {
	var track domain.Track
	err := s.resilient.Execute(ctx, func(ctx context.Context) error {
		res, err := s.client.Search(ctx, terms)
		if err != nil {
			return err
		}
		for _, v := range res.Results {
			if v.VideoID == "" || v.Title == "" {
				continue
			}
			track = youTubeTrack(v.VideoID, v.Title, "")
			return nil
		}
		return ports.ErrNotFound
	})
	return track, err
}

// searchYouTubeMusic queries YouTube Music. The client has no context
// support, so the call is abandoned when ctx ends.
func searchYouTubeMusic(ctx context.Context, terms string) (domain.Track, error) {
	type result struct {
		track domain.Track
		err   error
	}
	results := make(chan result, 1)

	go func() {
		res, err := ytmusic.TrackSearch(terms).Next()
		if err != nil {
			results <- result{err: err}
			return
		}
		for _, v := range res.Tracks {
			if v.VideoID == "" || v.Title == "" {
				continue
			}
			artist := ""
			if len(v.Artists) > 0 {
				artist = v.Artists[0].Name
			}
			results <- result{track: youTubeTrack(v.VideoID, v.Title, artist)}
			return
		}
		results <- result{err: ports.ErrNotFound}
	}()

	select {
	case <-ctx.Done():
		return domain.Track{}, ctx.Err()
	case r := <-results:
		return r.track, r.err
	}
}

func youTubeTrack(videoID, title, artist string) domain.Track {
	track := domain.NewTrack(
		title,
		domain.YouTubeWatchURL(videoID),
		domain.YouTubeThumbnailURL(videoID, "hqdefault"),
	)
	track.Artist = artist
	return track
}

var _ ports.TrackSearcher = (*FallbackSearcher)(nil)
