package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"github.com/sglre6355/sgrmusic/internal/modules/music_player/application/ports"
	"github.com/sglre6355/sgrmusic/internal/modules/music_player/domain"
	"golang.org/x/sync/semaphore"
)

// entryTemplate prints one tab-separated line per entry.
const entryTemplate = "%(id)s\t%(title)s\t%(webpage_url,url)s\t%(thumbnail)s\t%(duration)s\t%(uploader,channel)s"

// notAvailable is what yt-dlp prints for a missing field.
const notAvailable = "NA"

// YtdlpConfig configures the yt-dlp client.
type YtdlpConfig struct {
	CookiesFile   string
	MaxConcurrent int
}

// YtdlpClient runs yt-dlp for URL lookups, search fallback and stream URL
// extraction. The number of concurrent processes is capped.
type YtdlpClient struct {
	cfg       YtdlpConfig
	sem       *semaphore.Weighted
	resilient *Resilient
}

// NewYtdlpClient creates a new YtdlpClient.
func NewYtdlpClient(cfg YtdlpConfig, retry RetryConfig) *YtdlpClient {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	return &YtdlpClient{
		cfg:       cfg,
		sem:       semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		resilient: NewResilient("yt-dlp", retry),
	}
}

// Lookup returns the item behind url, or every entry of a playlist.
func (c *YtdlpClient) Lookup(ctx context.Context, url string) ([]domain.Track, error) {
	var tracks []domain.Track
	err := c.resilient.Execute(ctx, func(ctx context.Context) error {
		stdout, err := c.run(ctx, c.command().FlatPlaylist().Print(entryTemplate), url)
		tracks = parseEntries(stdout)
		if err != nil {
			return err
		}
		if len(tracks) == 0 {
			return ports.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return tracks, fmt.Errorf("failed to look up %q: %w", url, err)
	}
	return tracks, nil
}

// Search returns the top result of a yt-dlp YouTube search.
func (c *YtdlpClient) Search(ctx context.Context, terms string) (domain.Track, error) {
	tracks, err := c.Lookup(ctx, "ytsearch1:"+terms)
	if len(tracks) > 0 {
		return tracks[0], nil
	}
	if err == nil {
		err = ports.ErrNotFound
	}
	return domain.Track{}, err
}

// StreamURL extracts the short-lived direct audio URL for a playback URL.
func (c *YtdlpClient) StreamURL(ctx context.Context, url string) (string, error) {
	var streamURL string
	err := c.resilient.Execute(ctx, func(ctx context.Context) error {
		stdout, err := c.run(ctx, c.command().Format("bestaudio/best").NoPlaylist().Print("urls"), url)
		if err != nil {
			return err
		}
		for line := range strings.Lines(stdout) {
			if line = strings.TrimSpace(line); line != "" {
				streamURL = line
				return nil
			}
		}
		return ports.ErrNotFound
	})
	if err != nil {
		return "", fmt.Errorf("failed to extract stream url: %w", err)
	}
	return streamURL, nil
}

func (c *YtdlpClient) command() *ytdlp.Command {
	cmd := ytdlp.New().
		NoWarnings().
		IgnoreConfig()
	if c.cfg.CookiesFile != "" {
		cmd.Cookies(c.cfg.CookiesFile)
	}
	return cmd
}

func (c *YtdlpClient) run(ctx context.Context, cmd *ytdlp.Command, args ...string) (string, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer c.sem.Release(1)

	res, err := cmd.Run(ctx, args...)
	if res == nil {
		return "", err
	}
	if err != nil {
		return res.Stdout, classifyYtdlpError(err, res.Stderr)
	}
	return res.Stdout, nil
}

// permanentYtdlpErrors are stderr fragments of failures retrying won't fix.
var permanentYtdlpErrors = []string{
	"video unavailable",
	"private video",
	"unsupported url",
	"http error 404",
	"does not exist",
	"not available",
	"sign in to confirm your age",
}

func classifyYtdlpError(err error, stderr string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	msg := strings.ToLower(stderr)
	for _, fragment := range permanentYtdlpErrors {
		if strings.Contains(msg, fragment) {
			return fmt.Errorf("%w: %s", ports.ErrNotFound, firstLine(stderr))
		}
	}
	if line := firstLine(stderr); line != "" {
		return fmt.Errorf("%w: %s", err, line)
	}
	return err
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(line)
}

// parseEntries converts entryTemplate output into tracks. Lines without an
// id or title are skipped.
func parseEntries(stdout string) []domain.Track {
	var tracks []domain.Track
	for line := range strings.Lines(stdout) {
		track, ok := parseEntry(strings.TrimRight(line, "\r\n"))
		if ok {
			tracks = append(tracks, track)
		}
	}
	return tracks
}

func parseEntry(line string) (domain.Track, bool) {
	fields := strings.Split(line, "\t")
	if len(fields) < 3 {
		return domain.Track{}, false
	}
	for len(fields) < 6 {
		fields = append(fields, notAvailable)
	}

	id, title, pageURL := field(fields[0]), field(fields[1]), field(fields[2])
	if id == "" || title == "" {
		return domain.Track{}, false
	}

	url := pageURL
	if url == "" || domain.SourceFromURL(url) == domain.TrackSourceYouTube {
		url = domain.YouTubeWatchURL(id)
	}

	thumbnail := field(fields[3])
	if thumbnail == "" && domain.SourceFromURL(url) == domain.TrackSourceYouTube {
		thumbnail = domain.YouTubeThumbnailURL(id, "hqdefault")
	}

	track := domain.NewTrack(title, url, thumbnail)
	track.Artist = field(fields[5])
	if seconds, err := strconv.ParseFloat(field(fields[4]), 64); err == nil && seconds > 0 {
		track.Duration = time.Duration(seconds * float64(time.Second))
	}
	return track, true
}

func field(s string) string {
	s = strings.TrimSpace(s)
	if s == notAvailable {
		return ""
	}
	return s
}

var _ ports.VideoLookup = (*YtdlpClient)(nil)
