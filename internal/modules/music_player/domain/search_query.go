package domain

import (
	"regexp"
	"strings"
)

// QueryKind tells the resolver which path a query takes.
type QueryKind int

const (
	// QuerySearch is free text resolved to the top search result.
	QuerySearch QueryKind = iota
	// QueryVideoURL is a link to a media host, looked up without searching.
	QueryVideoURL
	// QueryCatalog is a link to an external music catalog.
	QueryCatalog
)

// CatalogKind is the type of entity a catalog link points to.
type CatalogKind string

const (
	CatalogTrack    CatalogKind = "track"
	CatalogAlbum    CatalogKind = "album"
	CatalogPlaylist CatalogKind = "playlist"
	CatalogArtist   CatalogKind = "artist"
)

// CatalogLink identifies an entity in the external music catalog.
type CatalogLink struct {
	Kind CatalogKind
	ID   string
}

// CatalogCollection is a catalog entity expanded into search strings,
// in source order.
type CatalogCollection struct {
	Name    string
	Queries []string
}

// Query is a classified user query.
type Query struct {
	Raw     string
	Kind    QueryKind
	Catalog CatalogLink // set when Kind == QueryCatalog
}

var (
	youtubeURLPattern = regexp.MustCompile(
		`^(https?://)?(www\.|m\.|music\.)?(youtube\.com|youtu\.be)/.+`,
	)
	catalogURLPattern = regexp.MustCompile(
		`^(?:https?://)?open\.spotify\.com/(?:intl-[a-zA-Z-]+/)?(track|album|playlist|artist)/([A-Za-z0-9]+)`,
	)
	catalogURIPattern = regexp.MustCompile(
		`^spotify:(track|album|playlist|artist):([A-Za-z0-9]+)$`,
	)
)

// ParseQuery classifies user input.
func ParseQuery(input string) Query {
	input = strings.TrimSpace(input)

	if link, ok := ParseCatalogLink(input); ok {
		return Query{Raw: input, Kind: QueryCatalog, Catalog: link}
	}
	if IsYouTubeURL(input) || isURL(input) {
		return Query{Raw: input, Kind: QueryVideoURL}
	}
	return Query{Raw: input, Kind: QuerySearch}
}

// IsValid returns true if the query is not empty.
func (q Query) IsValid() bool {
	return q.Raw != ""
}

// ParseCatalogLink extracts a catalog link from a URL or URI.
func ParseCatalogLink(input string) (CatalogLink, bool) {
	for _, pattern := range []*regexp.Regexp{catalogURLPattern, catalogURIPattern} {
		if m := pattern.FindStringSubmatch(input); m != nil {
			return CatalogLink{Kind: CatalogKind(m[1]), ID: m[2]}, true
		}
	}
	return CatalogLink{}, false
}

// IsYouTubeURL reports whether input is a YouTube link.
func IsYouTubeURL(input string) bool {
	return youtubeURLPattern.MatchString(input)
}

// isURL checks if the input looks like a URL.
func isURL(input string) bool {
	return strings.HasPrefix(input, "http://") ||
		strings.HasPrefix(input, "https://") ||
		strings.HasPrefix(input, "www.")
}
