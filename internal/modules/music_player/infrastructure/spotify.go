package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sglre6355/sgrmusic/internal/modules/music_player/application/ports"
	"github.com/sglre6355/sgrmusic/internal/modules/music_player/domain"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// topTracksMarket is the market used for artist top tracks.
const topTracksMarket = "US"

// SpotifyConfig configures the Spotify catalog.
type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
	// Limit caps the number of tracks read from one album or playlist.
	Limit int
}

// SpotifyCatalog expands Spotify links into YouTube search strings.
type SpotifyCatalog struct {
	client    *spotify.Client
	limit     int
	resilient *Resilient
}

// NewSpotifyCatalog creates a catalog authenticated with client credentials.
// Tokens are fetched and refreshed through httpClient.
func NewSpotifyCatalog(
	ctx context.Context,
	cfg SpotifyConfig,
	httpClient *http.Client,
	retry RetryConfig,
) *SpotifyCatalog {
	creds := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)

	return &SpotifyCatalog{
		client:    spotify.New(creds.Client(ctx)),
		limit:     cfg.Limit,
		resilient: NewResilient("spotify", retry),
	}
}

// Resolve returns the name of the linked entity and one search string per
// track, in source order.
func (c *SpotifyCatalog) Resolve(
	ctx context.Context,
	link domain.CatalogLink,
) (domain.CatalogCollection, error) {
	var collection domain.CatalogCollection
	err := c.resilient.Execute(ctx, func(ctx context.Context) error {
		var err error
		collection, err = c.resolve(ctx, link)
		return mapSpotifyError(err)
	})
	if err != nil {
		return domain.CatalogCollection{}, fmt.Errorf(
			"failed to resolve spotify %s %s: %w", link.Kind, link.ID, err,
		)
	}
	return collection, nil
}

func (c *SpotifyCatalog) resolve(
	ctx context.Context,
	link domain.CatalogLink,
) (domain.CatalogCollection, error) {
	id := spotify.ID(link.ID)

	switch link.Kind {
	case domain.CatalogTrack:
		track, err := c.client.GetTrack(ctx, id)
		if err != nil {
			return domain.CatalogCollection{}, err
		}
		return domain.CatalogCollection{
			Name:    track.Name,
			Queries: []string{searchString(track.Name, track.Artists)},
		}, nil

	case domain.CatalogAlbum:
		album, err := c.client.GetAlbum(ctx, id)
		if err != nil {
			return domain.CatalogCollection{}, err
		}
		queries, err := c.albumQueries(ctx, &album.Tracks)
		if err != nil {
			return domain.CatalogCollection{}, err
		}
		return domain.CatalogCollection{Name: album.Name, Queries: queries}, nil

	case domain.CatalogPlaylist:
		playlist, err := c.client.GetPlaylist(ctx, id)
		if err != nil {
			return domain.CatalogCollection{}, err
		}
		queries, err := c.playlistQueries(ctx, &playlist.Tracks)
		if err != nil {
			return domain.CatalogCollection{}, err
		}
		return domain.CatalogCollection{Name: playlist.Name, Queries: queries}, nil

	case domain.CatalogArtist:
		artist, err := c.client.GetArtist(ctx, id)
		if err != nil {
			return domain.CatalogCollection{}, err
		}
		tracks, err := c.client.GetArtistsTopTracks(ctx, id, topTracksMarket)
		if err != nil {
			return domain.CatalogCollection{}, err
		}
		queries := make([]string, 0, len(tracks))
		for _, track := range tracks {
			queries = append(queries, searchString(track.Name, track.Artists))
		}
		return domain.CatalogCollection{Name: artist.Name, Queries: queries}, nil

	default:
		return domain.CatalogCollection{}, fmt.Errorf("%w: unknown link kind %q", ports.ErrNotFound, link.Kind)
	}
}

func (c *SpotifyCatalog) albumQueries(
	ctx context.Context,
	page *spotify.SimpleTrackPage,
) ([]string, error) {
	var queries []string
	for {
		for _, track := range page.Tracks {
			queries = append(queries, searchString(track.Name, track.Artists))
		}
		if c.full(queries) {
			return queries[:c.limit], nil
		}
		if err := c.client.NextPage(ctx, page); err != nil {
			if errors.Is(err, spotify.ErrNoMorePages) {
				return queries, nil
			}
			return nil, err
		}
	}
}

func (c *SpotifyCatalog) playlistQueries(
	ctx context.Context,
	page *spotify.PlaylistTrackPage,
) ([]string, error) {
	var queries []string
	for {
		for _, item := range page.Tracks {
			// Removed and local tracks come back without an ID.
			if item.Track.ID == "" {
				continue
			}
			queries = append(queries, searchString(item.Track.Name, item.Track.Artists))
		}
		if c.full(queries) {
			return queries[:c.limit], nil
		}
		if err := c.client.NextPage(ctx, page); err != nil {
			if errors.Is(err, spotify.ErrNoMorePages) {
				return queries, nil
			}
			return nil, err
		}
	}
}

func (c *SpotifyCatalog) full(queries []string) bool {
	return c.limit > 0 && len(queries) >= c.limit
}

// searchString formats a catalog track as "title primary-artist".
func searchString(title string, artists []spotify.SimpleArtist) string {
	title = strings.TrimSpace(title)
	if len(artists) == 0 || artists[0].Name == "" {
		return title
	}
	return title + " " + strings.TrimSpace(artists[0].Name)
}

func mapSpotifyError(err error) error {
	var apiErr spotify.Error
	if errors.As(err, &apiErr) &&
		(apiErr.Status == http.StatusNotFound || apiErr.Status == http.StatusBadRequest) {
		return fmt.Errorf("%w: %s", ports.ErrNotFound, apiErr.Message)
	}
	return err
}

var _ ports.CatalogResolver = (*SpotifyCatalog)(nil)
