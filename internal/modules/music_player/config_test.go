package music_player

import (
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	m := &MusicPlayerModule{}
	if err := m.LoadConfig(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg := m.config
	if cfg.Backend != BackendNative {
		t.Errorf("expected backend %q, got %q", BackendNative, cfg.Backend)
	}
	if cfg.FFmpegPath != "ffmpeg" {
		t.Errorf("expected ffmpeg path %q, got %q", "ffmpeg", cfg.FFmpegPath)
	}
	if cfg.YtdlpMaxConcurrent != 4 {
		t.Errorf("expected 4 concurrent yt-dlp runs, got %d", cfg.YtdlpMaxConcurrent)
	}
	if cfg.RequestTimeout != 15*time.Second {
		t.Errorf("expected request timeout 15s, got %s", cfg.RequestTimeout)
	}
	if cfg.CatalogDelay != 500*time.Millisecond {
		t.Errorf("expected catalog delay 500ms, got %s", cfg.CatalogDelay)
	}
	if cfg.CatalogLimit != 100 {
		t.Errorf("expected catalog limit 100, got %d", cfg.CatalogLimit)
	}
	if cfg.VoiceTimeout != 10*time.Second {
		t.Errorf("expected voice timeout 10s, got %s", cfg.VoiceTimeout)
	}
	if cfg.CatalogEnabled() {
		t.Error("expected catalog to be disabled without credentials")
	}
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	t.Setenv("MUSIC_BACKEND", "lavalink")
	t.Setenv("LAVALINK_ADDRESS", "localhost:2333")
	t.Setenv("LAVALINK_PASSWORD", "youshallnotpass")
	t.Setenv("LAVALINK_SECURE", "true")
	t.Setenv("SPOTIFY_CLIENT_ID", "id")
	t.Setenv("SPOTIFY_CLIENT_SECRET", "secret")
	t.Setenv("MUSIC_RETRY_MAX", "5")
	t.Setenv("MUSIC_CATALOG_DELAY", "1s")

	m := &MusicPlayerModule{}
	if err := m.LoadConfig(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg := m.config
	if cfg.Backend != BackendLavalink || !cfg.LavalinkSecure {
		t.Errorf("expected secure lavalink backend, got %q secure=%v", cfg.Backend, cfg.LavalinkSecure)
	}
	if !cfg.CatalogEnabled() {
		t.Error("expected catalog to be enabled")
	}
	if cfg.RetryMax != 5 {
		t.Errorf("expected retry max 5, got %d", cfg.RetryMax)
	}
	if cfg.CatalogDelay != time.Second {
		t.Errorf("expected catalog delay 1s, got %s", cfg.CatalogDelay)
	}
}

func TestLoadConfig_InvalidDuration(t *testing.T) {
	t.Setenv("MUSIC_REQUEST_TIMEOUT", "soon")

	m := &MusicPlayerModule{}
	if err := m.LoadConfig(); err == nil {
		t.Fatal("expected error for invalid duration, got nil")
	}
}

func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Backend:      BackendNative,
			RetryMax:     3,
			RetryWaitMin: 200 * time.Millisecond,
			RetryWaitMax: 2 * time.Second,
			CatalogDelay: 500 * time.Millisecond,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "native", mutate: func(*Config) {}},
		{
			name: "lavalink with credentials",
			mutate: func(c *Config) {
				c.Backend = BackendLavalink
				c.LavalinkAddress = "localhost:2333"
				c.LavalinkPassword = "pw"
			},
		},
		{
			name:    "lavalink without password",
			mutate:  func(c *Config) { c.Backend = BackendLavalink; c.LavalinkAddress = "localhost:2333" },
			wantErr: true,
		},
		{name: "unknown backend", mutate: func(c *Config) { c.Backend = "vlc" }, wantErr: true},
		{name: "negative retries", mutate: func(c *Config) { c.RetryMax = -1 }, wantErr: true},
		{name: "inverted waits", mutate: func(c *Config) { c.RetryWaitMin = 5 * time.Second }, wantErr: true},
		{name: "zero catalog delay", mutate: func(c *Config) { c.CatalogDelay = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
