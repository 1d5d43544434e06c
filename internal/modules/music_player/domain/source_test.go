package domain

import "testing"

func TestYouTubeVideoID(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/watch?list=PL1&v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://youtube.com/shorts/abc123", "abc123"},
		{"https://music.youtube.com/watch?v=xyz", "xyz"},
		{"https://youtube.com/playlist?list=PL1", ""},
		{"https://example.com/watch?v=abc", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := YouTubeVideoID(tt.input); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestSourceFromURL(t *testing.T) {
	tests := []struct {
		input string
		want  TrackSource
	}{
		{"https://www.youtube.com/watch?v=a", TrackSourceYouTube},
		{"https://youtu.be/a", TrackSourceYouTube},
		{"https://m.soundcloud.com/a/b", TrackSourceSoundCloud},
		{"https://example.com/a.mp3", TrackSourceOther},
		{"", TrackSourceOther},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := SourceFromURL(tt.input); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
