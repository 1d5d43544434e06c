package domain

import (
	"net/url"
	"strings"
)

// TrackSource represents the origin platform of a track.
type TrackSource string

const (
	TrackSourceYouTube    TrackSource = "youtube"
	TrackSourceSoundCloud TrackSource = "soundcloud"
	TrackSourceOther      TrackSource = "other"
)

// SourceFromURL derives the TrackSource from a playback URL.
func SourceFromURL(raw string) TrackSource {
	host := hostOf(raw)
	switch {
	case host == "youtu.be" || host == "youtube.com" || strings.HasSuffix(host, ".youtube.com"):
		return TrackSourceYouTube
	case host == "soundcloud.com" || strings.HasSuffix(host, ".soundcloud.com"):
		return TrackSourceSoundCloud
	default:
		return TrackSourceOther
	}
}

// Color returns the embed accent color for the source.
func (s TrackSource) Color() int {
	switch s {
	case TrackSourceYouTube:
		return 0xFF0000
	case TrackSourceSoundCloud:
		return 0xFF5500
	default:
		return 0x5865F2
	}
}

// YouTubeWatchURL returns the canonical watch URL for a video ID.
func YouTubeWatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

// YouTubeThumbnailURL returns the static thumbnail URL of a video at the
// given quality (maxresdefault, sddefault, hqdefault, mqdefault).
func YouTubeThumbnailURL(videoID, quality string) string {
	return "https://img.youtube.com/vi/" + videoID + "/" + quality + ".jpg"
}

// YouTubeVideoID extracts the video ID from a YouTube URL, or returns "".
func YouTubeVideoID(raw string) string {
	if SourceFromURL(raw) != TrackSourceYouTube {
		return ""
	}

	u, err := url.Parse(withScheme(raw))
	if err != nil {
		return ""
	}

	if strings.EqualFold(u.Hostname(), "youtu.be") {
		return strings.Trim(u.Path, "/")
	}
	if v := u.Query().Get("v"); v != "" {
		return v
	}
	for _, prefix := range []string{"/shorts/", "/embed/", "/live/"} {
		if id, ok := strings.CutPrefix(u.Path, prefix); ok {
			return strings.Trim(id, "/")
		}
	}
	return ""
}

func hostOf(raw string) string {
	u, err := url.Parse(withScheme(raw))
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func withScheme(raw string) string {
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	return "https://" + raw
}
