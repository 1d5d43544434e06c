package music_player

import (
	"errors"
	"fmt"
	"time"
)

// Playback backends.
const (
	BackendNative   = "native"
	BackendLavalink = "lavalink"
)

// Config holds the music player module configuration.
type Config struct {
	Backend string `env:"MUSIC_BACKEND" envDefault:"native"`

	LavalinkAddress  string `env:"LAVALINK_ADDRESS"`
	LavalinkPassword string `env:"LAVALINK_PASSWORD"`
	LavalinkSecure   bool   `env:"LAVALINK_SECURE" envDefault:"false"`

	FFmpegPath         string `env:"FFMPEG_PATH" envDefault:"ffmpeg"`
	YtdlpCookiesFile   string `env:"YTDLP_COOKIES_FILE"`
	YtdlpMaxConcurrent int    `env:"YTDLP_MAX_CONCURRENT" envDefault:"4"`

	// Catalog links are enabled only when both are set.
	SpotifyClientID     string `env:"SPOTIFY_CLIENT_ID"`
	SpotifyClientSecret string `env:"SPOTIFY_CLIENT_SECRET"`

	RequestTimeout time.Duration `env:"MUSIC_REQUEST_TIMEOUT" envDefault:"15s"`
	RetryMax       int           `env:"MUSIC_RETRY_MAX" envDefault:"3"`
	RetryWaitMin   time.Duration `env:"MUSIC_RETRY_WAIT_MIN" envDefault:"200ms"`
	RetryWaitMax   time.Duration `env:"MUSIC_RETRY_WAIT_MAX" envDefault:"2s"`
	CatalogDelay   time.Duration `env:"MUSIC_CATALOG_DELAY" envDefault:"500ms"`
	CatalogLimit   int           `env:"MUSIC_CATALOG_LIMIT" envDefault:"100"`
	VoiceTimeout   time.Duration `env:"MUSIC_VOICE_TIMEOUT" envDefault:"10s"`
}

// Validate checks combinations the env tags cannot express.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendNative:
	case BackendLavalink:
		if c.LavalinkAddress == "" || c.LavalinkPassword == "" {
			return errors.New("LAVALINK_ADDRESS and LAVALINK_PASSWORD are required for the lavalink backend")
		}
	default:
		return fmt.Errorf("unknown MUSIC_BACKEND %q", c.Backend)
	}

	if c.RetryMax < 0 {
		return fmt.Errorf("MUSIC_RETRY_MAX must not be negative, got %d", c.RetryMax)
	}
	if c.RetryWaitMin > c.RetryWaitMax {
		return errors.New("MUSIC_RETRY_WAIT_MIN must not exceed MUSIC_RETRY_WAIT_MAX")
	}
	if c.CatalogDelay <= 0 {
		return errors.New("MUSIC_CATALOG_DELAY must be positive")
	}
	return nil
}

// CatalogEnabled reports whether catalog credentials are configured.
func (c *Config) CatalogEnabled() bool {
	return c.SpotifyClientID != "" && c.SpotifyClientSecret != ""
}
