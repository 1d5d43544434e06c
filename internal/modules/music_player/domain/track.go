package domain

import (
	"strconv"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// Track describes a playable item resolved from a query.
// Tracks are values; once resolved they are never mutated in place.
type Track struct {
	Title       string
	URL         string // canonical playback URL, not a direct stream URL
	Thumbnail   string
	Artist      string
	Duration    time.Duration
	RequesterID snowflake.ID
	EnqueuedAt  time.Time
}

// NewTrack creates a Track with the minimum descriptor fields.
func NewTrack(title, url, thumbnail string) Track {
	return Track{
		Title:     title,
		URL:       url,
		Thumbnail: thumbnail,
	}
}

// RequestedBy returns a copy of the track attributed to the given user.
func (t Track) RequestedBy(userID snowflake.ID, at time.Time) Track {
	t.RequesterID = userID
	t.EnqueuedAt = at.UTC()
	return t
}

// IsValid returns true if the track has the minimum required fields.
func (t Track) IsValid() bool {
	return t.Title != "" && t.URL != ""
}

// Source returns the platform hosting the track.
func (t Track) Source() TrackSource {
	return SourceFromURL(t.URL)
}

// VideoID returns the YouTube video ID of the track, or "" for other hosts.
func (t Track) VideoID() string {
	return YouTubeVideoID(t.URL)
}

// ThumbnailURL returns the resolved thumbnail, falling back to the default
// YouTube thumbnail for YouTube tracks.
func (t Track) ThumbnailURL() string {
	if t.Thumbnail != "" {
		return t.Thumbnail
	}
	if id := t.VideoID(); id != "" {
		return YouTubeThumbnailURL(id, "hqdefault")
	}
	return ""
}

// titleSeparators split "Artist - Song" style titles.
var titleSeparators = []string{" - ", " – ", " — "}

// SplitTitle splits an "Artist - Song" title.
// ok is false when the title has no recognizable separator.
func (t Track) SplitTitle() (artist, song string, ok bool) {
	for _, sep := range titleSeparators {
		before, after, found := strings.Cut(t.Title, sep)
		if !found {
			continue
		}
		before, after = strings.TrimSpace(before), strings.TrimSpace(after)
		if before == "" || after == "" {
			continue
		}
		return before, after, true
	}
	return "", "", false
}

// DisplayArtist returns the known artist, or the one parsed from the title.
func (t Track) DisplayArtist() string {
	if t.Artist != "" {
		return t.Artist
	}
	artist, _, _ := t.SplitTitle()
	return artist
}

// FormattedDuration returns the duration as mm:ss or hh:mm:ss,
// or "" when the duration is unknown.
func (t Track) FormattedDuration() string {
	if t.Duration <= 0 {
		return ""
	}

	totalSeconds := int(t.Duration.Seconds())
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	if hours > 0 {
		return pad(hours) + ":" + pad(minutes) + ":" + pad(seconds)
	}
	return pad(minutes) + ":" + pad(seconds)
}

func pad(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
