package infrastructure

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/sglre6355/sgrmusic/internal/modules/music_player/application/ports"
	"github.com/sglre6355/sgrmusic/internal/modules/music_player/domain"
	"layeh.com/gopus"
)

// Discord voice expects 48kHz stereo Opus in 20ms frames.
const (
	sampleRate    = 48000
	channels      = 2
	frameSize     = 960
	frameDuration = 20 * time.Millisecond
	opusBitrate   = 128000
	maxOpusBytes  = frameSize * channels * 2
)

// streamURLResolver turns a playback URL into a direct stream URL.
type streamURLResolver interface {
	StreamURL(ctx context.Context, url string) (string, error)
}

// FFmpegSourceFactory decodes tracks with ffmpeg and encodes them to Opus.
type FFmpegSourceFactory struct {
	ffmpegPath string
	resolver   streamURLResolver
}

// NewFFmpegSourceFactory creates a new FFmpegSourceFactory.
func NewFFmpegSourceFactory(ffmpegPath string, resolver streamURLResolver) *FFmpegSourceFactory {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegSourceFactory{
		ffmpegPath: ffmpegPath,
		resolver:   resolver,
	}
}

// CreateSource starts ffmpeg on the track's stream URL and waits for the
// first decoded audio.
func (f *FFmpegSourceFactory) CreateSource(
	ctx context.Context,
	track domain.Track,
) (ports.AudioSource, error) {
	streamURL, err := f.resolver.StreamURL(ctx, track.URL)
	if err != nil {
		return nil, err
	}

	encoder, err := gopus.NewEncoder(sampleRate, channels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}
	encoder.SetBitrate(opusBitrate)

	cmd := exec.Command(f.ffmpegPath, ffmpegArgs(streamURL)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open ffmpeg output: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	source := &FFmpegSource{
		title:   track.Title,
		cmd:     cmd,
		pcm:     bufio.NewReaderSize(stdout, 16*1024),
		encoder: encoder,
		samples: make([]int16, frameSize*channels),
	}

	if err := source.waitForAudio(ctx); err != nil {
		_ = source.Close()
		return nil, err
	}
	return source, nil
}

// ffmpegArgs decodes a network stream to raw PCM on stdout, reconnecting
// when the connection drops.
func ffmpegArgs(streamURL string) []string {
	return []string{
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "5",
		"-i", streamURL,
		"-vn",
		"-f", "s16le",
		"-ar", "48000",
		"-ac", "2",
		"-loglevel", "error",
		"pipe:1",
	}
}

// FFmpegSource is a running ffmpeg decode exposed as an Opus frame reader.
type FFmpegSource struct {
	title   string
	cmd     *exec.Cmd
	pcm     *bufio.Reader
	encoder *gopus.Encoder
	samples []int16

	closeOnce sync.Once
	closeErr  error
}

func (s *FFmpegSource) waitForAudio(ctx context.Context) error {
	ready := make(chan error, 1)
	go func() {
		_, err := s.pcm.Peek(1)
		ready <- err
	}()

	select {
	case err := <-ready:
		if err != nil {
			return fmt.Errorf("ffmpeg produced no audio for %q: %w", s.title, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OpusFrame reads one frame of PCM and returns it encoded. io.EOF marks the
// end of the track.
func (s *FFmpegSource) OpusFrame() ([]byte, error) {
	err := binary.Read(s.pcm, binary.LittleEndian, s.samples)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read pcm: %w", err)
	}

	frame, err := s.encoder.Encode(s.samples, frameSize, maxOpusBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to encode opus frame: %w", err)
	}
	return frame, nil
}

// FrameDuration returns the duration of one Opus frame.
func (s *FFmpegSource) FrameDuration() time.Duration {
	return frameDuration
}

// Close kills ffmpeg and reaps it.
func (s *FFmpegSource) Close() error {
	s.closeOnce.Do(func() {
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		if err := s.cmd.Wait(); err != nil {
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) {
				s.closeErr = err
			}
		}
	})
	return s.closeErr
}

var _ ports.SourceFactory = (*FFmpegSourceFactory)(nil)
