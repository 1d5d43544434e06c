package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/jonas747/dca"
	"github.com/sglre6355/sgrmusic/internal/modules/music_player/application/ports"
)

// requiredVoicePermissions are needed to play audio in a channel.
const requiredVoicePermissions = discordgo.PermissionVoiceConnect | discordgo.PermissionVoiceSpeak

// ErrNoVoiceConnection is returned when playing in a guild the bot has not joined.
var ErrNoVoiceConnection = errors.New("no voice connection for guild")

// DiscordVoiceAdapter connects to voice through discordgo and streams
// Opus audio with dca.
type DiscordVoiceAdapter struct {
	session *discordgo.Session
}

// NewDiscordVoiceAdapter creates a new DiscordVoiceAdapter.
func NewDiscordVoiceAdapter(session *discordgo.Session) *DiscordVoiceAdapter {
	return &DiscordVoiceAdapter{session: session}
}

// Join connects to a voice channel.
func (a *DiscordVoiceAdapter) Join(ctx context.Context, guildID, channelID snowflake.ID) error {
	if err := a.checkPermissions(channelID); err != nil {
		return err
	}

	result := make(chan error, 1)
	go func() {
		vc, err := a.session.ChannelVoiceJoin(guildID.String(), channelID.String(), false, true)
		if err != nil {
			result <- mapVoiceError(err)
			return
		}
		// The caller gave up; don't leave a connection nobody owns.
		if ctx.Err() != nil {
			_ = vc.Disconnect()
		}
		result <- nil
	}()

	select {
	case err := <-result:
		if err != nil {
			return fmt.Errorf("failed to join voice channel: %w", err)
		}
		return ctx.Err()
	case <-ctx.Done():
		return fmt.Errorf("context cancelled while joining voice channel: %w", ctx.Err())
	}
}

// Move moves the guild's connection to another channel.
func (a *DiscordVoiceAdapter) Move(ctx context.Context, guildID, channelID snowflake.ID) error {
	if err := a.checkPermissions(channelID); err != nil {
		return err
	}

	vc := a.connection(guildID)
	if vc == nil {
		return a.Join(ctx, guildID, channelID)
	}
	if err := vc.ChangeChannel(channelID.String(), false, true); err != nil {
		return fmt.Errorf("failed to move voice channel: %w", mapVoiceError(err))
	}
	return nil
}

// Leave disconnects from the guild's voice channel.
func (a *DiscordVoiceAdapter) Leave(_ context.Context, guildID snowflake.ID) error {
	vc := a.connection(guildID)
	if vc == nil {
		return nil
	}
	if err := vc.Disconnect(); err != nil {
		return fmt.Errorf("failed to leave voice channel: %w", err)
	}
	return nil
}

// Play streams an FFmpegSource into the guild's voice connection. The
// source is closed when playback ends.
func (a *DiscordVoiceAdapter) Play(
	_ context.Context,
	guildID snowflake.ID,
	source ports.AudioSource,
) (ports.Playback, error) {
	reader, ok := source.(dca.OpusReader)
	if !ok {
		_ = source.Close()
		return nil, ports.ErrUnsupportedSource
	}

	vc := a.connection(guildID)
	if vc == nil {
		_ = source.Close()
		return nil, ErrNoVoiceConnection
	}

	if err := vc.Speaking(true); err != nil {
		slog.Debug("failed to set speaking state", "guild", guildID, "error", err)
	}

	streamDone := make(chan error, 1)
	playback := &dcaPlayback{
		source: source,
		done:   make(chan error, 1),
	}
	playback.stream = dca.NewStream(reader, vc, streamDone)

	go playback.wait(streamDone, func() {
		if err := vc.Speaking(false); err != nil {
			slog.Debug("failed to clear speaking state", "guild", guildID, "error", err)
		}
	})

	return playback, nil
}

func (a *DiscordVoiceAdapter) connection(guildID snowflake.ID) *discordgo.VoiceConnection {
	a.session.RLock()
	defer a.session.RUnlock()
	return a.session.VoiceConnections[guildID.String()]
}

func (a *DiscordVoiceAdapter) checkPermissions(channelID snowflake.ID) error {
	if a.session.State == nil || a.session.State.User == nil {
		return nil
	}

	perms, err := a.session.State.UserChannelPermissions(a.session.State.User.ID, channelID.String())
	if err != nil {
		// Missing from the cache; let the join itself decide.
		return nil
	}
	return checkVoicePermissions(perms)
}

func checkVoicePermissions(perms int64) error {
	if perms&discordgo.PermissionAdministrator != 0 {
		return nil
	}
	if perms&requiredVoicePermissions != requiredVoicePermissions {
		return ports.ErrVoicePermission
	}
	return nil
}

// mapVoiceError maps Discord permission failures to ErrVoicePermission.
func mapVoiceError(err error) error {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Message != nil &&
		restErr.Message.Code == discordgo.ErrCodeMissingPermissions {
		return fmt.Errorf("%w: %s", ports.ErrVoicePermission, restErr.Message.Message)
	}
	return err
}

// dcaPlayback is one dca stream of a source.
type dcaPlayback struct {
	source  ports.AudioSource
	stream  *dca.StreamingSession
	done    chan error
	stopped atomic.Bool
	once    sync.Once
}

func (p *dcaPlayback) wait(streamDone <-chan error, cleanup func()) {
	err := <-streamDone
	_ = p.source.Close()
	cleanup()

	if p.stopped.Load() || errors.Is(err, io.EOF) {
		err = nil
	}
	p.finish(err)
}

func (p *dcaPlayback) finish(err error) {
	p.once.Do(func() {
		p.done <- err
	})
}

// Done delivers once when the stream ends.
func (p *dcaPlayback) Done() <-chan error {
	return p.done
}

// SetPaused pauses or resumes sending frames.
func (p *dcaPlayback) SetPaused(paused bool) error {
	if finished, _ := p.stream.Finished(); finished {
		return nil
	}
	p.stream.SetPaused(paused)
	return nil
}

// Stop ends the stream by closing its source. A paused stream is resumed
// so it notices.
func (p *dcaPlayback) Stop() {
	p.stopped.Store(true)
	_ = p.source.Close()
	if p.stream.Paused() {
		p.stream.SetPaused(false)
	}
}

var (
	_ ports.VoiceConnector = (*DiscordVoiceAdapter)(nil)
	_ ports.AudioPlayer    = (*DiscordVoiceAdapter)(nil)
)
