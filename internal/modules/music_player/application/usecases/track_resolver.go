package usecases

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sglre6355/sgrmusic/internal/modules/music_player/application/ports"
	"github.com/sglre6355/sgrmusic/internal/modules/music_player/domain"
	"golang.org/x/time/rate"
)

// Resolution is the outcome of resolving one catalog entry.
type Resolution struct {
	Query string
	Track domain.Track
	Err   error
}

// TrackResolverService turns user queries into playable tracks.
type TrackResolverService struct {
	searcher     ports.TrackSearcher
	lookup       ports.VideoLookup
	catalog      ports.CatalogResolver // nil when catalog links are disabled
	catalogDelay time.Duration
}

// NewTrackResolverService creates a new TrackResolverService.
// catalog may be nil. catalogDelay spaces out the searches made while
// expanding a catalog collection.
func NewTrackResolverService(
	searcher ports.TrackSearcher,
	lookup ports.VideoLookup,
	catalog ports.CatalogResolver,
	catalogDelay time.Duration,
) *TrackResolverService {
	return &TrackResolverService{
		searcher:     searcher,
		lookup:       lookup,
		catalog:      catalog,
		catalogDelay: catalogDelay,
	}
}

// Resolve returns the tracks a query refers to, in source order.
// Failures are logged and yield fewer tracks; an unresolvable query yields
// an empty list.
func (s *TrackResolverService) Resolve(ctx context.Context, raw string) []domain.Track {
	query := domain.ParseQuery(raw)
	if !query.IsValid() {
		return nil
	}

	switch query.Kind {
	case domain.QueryVideoURL:
		tracks, err := s.lookup.Lookup(ctx, query.Raw)
		if err != nil {
			slog.Warn("failed to look up url",
				"url", query.Raw,
				"resolved", len(tracks),
				"error", err,
			)
		}
		return validTracks(tracks)

	case domain.QueryCatalog:
		collection, err := s.ResolveCatalog(ctx, query.Catalog)
		if err != nil {
			slog.Warn("failed to resolve catalog link", "query", query.Raw, "error", err)
			return nil
		}
		var tracks []domain.Track
		_, _ = s.Expand(ctx, collection, func(track domain.Track) bool {
			tracks = append(tracks, track)
			return true
		})
		return tracks

	default:
		track, err := s.searcher.Search(ctx, query.Raw)
		if err != nil {
			if !errors.Is(err, ports.ErrNotFound) {
				slog.Warn("failed to search", "query", query.Raw, "error", err)
			}
			return nil
		}
		return validTracks([]domain.Track{track})
	}
}

// ResolveCatalog expands a catalog link into its search strings without
// searching for them.
func (s *TrackResolverService) ResolveCatalog(
	ctx context.Context,
	link domain.CatalogLink,
) (domain.CatalogCollection, error) {
	if s.catalog == nil {
		return domain.CatalogCollection{}, ErrCatalogDisabled
	}

	collection, err := s.catalog.Resolve(ctx, link)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return domain.CatalogCollection{}, ErrNoResults
		}
		return domain.CatalogCollection{}, err
	}
	if len(collection.Queries) == 0 {
		return domain.CatalogCollection{}, ErrNoResults
	}

	return collection, nil
}

// Expand searches each entry of the collection in order and hands every
// resolved track to sink. Entries that fail are logged and skipped. Expansion
// ends early when ctx is cancelled or sink returns false.
// It returns the number of tracks accepted by sink.
func (s *TrackResolverService) Expand(
	ctx context.Context,
	collection domain.CatalogCollection,
	sink func(domain.Track) bool,
) (int, error) {
	limiter := rate.NewLimiter(rate.Every(s.catalogDelay), 1)
	accepted := 0

	for _, query := range collection.Queries {
		if err := limiter.Wait(ctx); err != nil {
			return accepted, err
		}

		res := s.resolveEntry(ctx, query)
		if res.Err != nil {
			if ctx.Err() != nil {
				return accepted, ctx.Err()
			}
			slog.Warn("failed to resolve catalog entry, skipping",
				"collection", collection.Name,
				"query", res.Query,
				"error", res.Err,
			)
			continue
		}

		if !sink(res.Track) {
			return accepted, nil
		}
		accepted++
	}

	return accepted, nil
}

func (s *TrackResolverService) resolveEntry(ctx context.Context, query string) Resolution {
	track, err := s.searcher.Search(ctx, query)
	if err == nil && !track.IsValid() {
		err = ErrNoResults
	}
	return Resolution{Query: query, Track: track, Err: err}
}

// Suggest returns autocomplete results for partially typed search terms.
// URLs and very short input get no suggestions.
func (s *TrackResolverService) Suggest(
	ctx context.Context,
	terms string,
	limit int,
) ([]ports.Suggestion, error) {
	query := domain.ParseQuery(terms)
	if query.Kind != domain.QuerySearch || len([]rune(query.Raw)) < minSuggestLength {
		return nil, nil
	}
	return s.searcher.Suggest(ctx, query.Raw, limit)
}

const minSuggestLength = 2

func validTracks(tracks []domain.Track) []domain.Track {
	valid := make([]domain.Track, 0, len(tracks))
	for _, track := range tracks {
		if track.IsValid() {
			valid = append(valid, track)
		}
	}
	return valid
}
