package ports

import (
	"context"
	"errors"

	"github.com/sglre6355/sgrmusic/internal/modules/music_player/domain"
)

var (
	// ErrNotFound is returned when a service has nothing for the request.
	// It is permanent and never retried.
	ErrNotFound = errors.New("not found")

	// ErrUnsupportedSource is returned by players given a source built by
	// a different backend.
	ErrUnsupportedSource = errors.New("unsupported audio source")
)

// Suggestion is a search hit offered during autocomplete.
type Suggestion struct {
	Title string
	URL   string
}

// TrackSearcher finds tracks by free text.
type TrackSearcher interface {
	// Search returns the top result for the terms.
	Search(ctx context.Context, terms string) (domain.Track, error)

	// Suggest returns up to limit results for autocomplete.
	Suggest(ctx context.Context, terms string, limit int) ([]Suggestion, error)
}

// VideoLookup fetches metadata for a media-host URL.
type VideoLookup interface {
	// Lookup returns the item behind url, or each item of a container in
	// source order. Items read before a failure are returned with the error.
	Lookup(ctx context.Context, url string) ([]domain.Track, error)
}

// CatalogResolver expands catalog links into search strings.
type CatalogResolver interface {
	Resolve(ctx context.Context, link domain.CatalogLink) (domain.CatalogCollection, error)
}
