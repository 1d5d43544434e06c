package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/disgolink/v3/disgolink"
	"github.com/disgoorg/disgolink/v3/lavalink"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/sgrmusic/internal/modules/music_player/application/ports"
	"github.com/sglre6355/sgrmusic/internal/modules/music_player/domain"
)

// ErrNoLavalinkNode is returned when no Lavalink node is available.
var ErrNoLavalinkNode = errors.New("no available Lavalink node")

// pendingVoiceConnection tracks the state of a pending voice connection.
type pendingVoiceConnection struct {
	mu             sync.Mutex
	hasVoiceState  bool
	hasVoiceServer bool
	ready          chan struct{}
}

// onEvent marks an event as received and signals ready once both arrived.
func (p *pendingVoiceConnection) onEvent(isVoiceState bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if isVoiceState {
		p.hasVoiceState = true
	} else {
		p.hasVoiceServer = true
	}

	if p.hasVoiceState && p.hasVoiceServer {
		select {
		case <-p.ready:
		default:
			close(p.ready)
		}
	}
}

// voiceEventBuffer holds a guild's voice state and server updates until
// both are known, so Lavalink never sees a partial voice state.
type voiceEventBuffer struct {
	mu sync.Mutex

	hasVoiceState bool
	channelID     *snowflake.ID
	sessionID     string

	hasVoiceServer bool
	token          string
	endpoint       string
}

// setVoiceState stores voice state data and reports whether both halves are present.
func (b *voiceEventBuffer) setVoiceState(channelID *snowflake.ID, sessionID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.hasVoiceState = true
	b.channelID = channelID
	b.sessionID = sessionID

	return b.hasVoiceState && b.hasVoiceServer
}

// setVoiceServer stores voice server data and reports whether both halves are present.
func (b *voiceEventBuffer) setVoiceServer(token, endpoint string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.hasVoiceServer = true
	b.token = token
	b.endpoint = endpoint

	return b.hasVoiceState && b.hasVoiceServer
}

// drain returns the buffered data and resets the buffer.
func (b *voiceEventBuffer) drain() (channelID *snowflake.ID, sessionID, token, endpoint string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	channelID, sessionID, token, endpoint = b.channelID, b.sessionID, b.token, b.endpoint
	*b = voiceEventBuffer{}
	return
}

// LavalinkConfig contains Lavalink connection configuration.
type LavalinkConfig struct {
	Address  string
	Password string
	Secure   bool
}

// LavalinkAdapter is the Lavalink playback backend. It joins voice without
// opening a local voice connection, loads tracks on the node and streams
// them through the node's player.
type LavalinkAdapter struct {
	link      disgolink.Client
	session   *discordgo.Session
	botID     snowflake.ID
	resilient *Resilient
	// requestTimeout bounds each player update sent to the node.
	requestTimeout time.Duration

	pendingMu sync.Mutex
	pending   map[snowflake.ID]*pendingVoiceConnection

	voiceBufferMu sync.Mutex
	voiceBuffers  map[snowflake.ID]*voiceEventBuffer

	playbackMu sync.Mutex
	playbacks  map[snowflake.ID]*lavalinkPlayback
}

// NewLavalinkAdapter connects to the Lavalink node.
func NewLavalinkAdapter(
	ctx context.Context,
	session *discordgo.Session,
	config LavalinkConfig,
	retry RetryConfig,
) (*LavalinkAdapter, error) {
	botID, err := snowflake.Parse(session.State.User.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse bot ID: %w", err)
	}

	requestTimeout := retry.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = DefaultRetryConfig().RequestTimeout
	}

	adapter := &LavalinkAdapter{
		session:        session,
		botID:          botID,
		resilient:      NewResilient("lavalink", retry),
		requestTimeout: requestTimeout,
		pending:      make(map[snowflake.ID]*pendingVoiceConnection),
		voiceBuffers:   make(map[snowflake.ID]*voiceEventBuffer),
		playbacks:      make(map[snowflake.ID]*lavalinkPlayback),
	}

	adapter.link = disgolink.New(botID,
		disgolink.WithListenerFunc(adapter.onTrackStart),
		disgolink.WithListenerFunc(adapter.onTrackEnd),
		disgolink.WithListenerFunc(adapter.onTrackException),
		disgolink.WithListenerFunc(adapter.onTrackStuck),
	)

	node, err := adapter.link.AddNode(ctx, disgolink.NodeConfig{
		Name:     "main",
		Address:  config.Address,
		Password: config.Password,
		Secure:   config.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add Lavalink node: %w", err)
	}

	slog.Info("connected to Lavalink", "node", node.Config().Name, "address", config.Address)

	return adapter, nil
}

// Close disconnects from every Lavalink node.
func (c *LavalinkAdapter) Close() {
	c.link.Close()
}

// Join connects to a voice channel and waits until Lavalink has both voice
// events.
func (c *LavalinkAdapter) Join(ctx context.Context, guildID, channelID snowflake.ID) error {
	pending := &pendingVoiceConnection{
		ready: make(chan struct{}),
	}

	c.pendingMu.Lock()
	c.pending[guildID] = pending
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, guildID)
		c.pendingMu.Unlock()
	}()

	err := c.session.ChannelVoiceJoinManual(guildID.String(), channelID.String(), false, true)
	if err != nil {
		return fmt.Errorf("failed to join voice channel: %w", mapVoiceError(err))
	}

	select {
	case <-pending.ready:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context cancelled while waiting for voice connection: %w", ctx.Err())
	}
}

// Move switches channels. Discord sends a fresh pair of voice events, so
// this is the same as joining.
func (c *LavalinkAdapter) Move(ctx context.Context, guildID, channelID snowflake.ID) error {
	return c.Join(ctx, guildID, channelID)
}

// Leave destroys the guild's player and disconnects from voice.
func (c *LavalinkAdapter) Leave(ctx context.Context, guildID snowflake.ID) error {
	if player := c.link.ExistingPlayer(guildID); player != nil {
		if err := player.Destroy(ctx); err != nil {
			slog.Warn("failed to destroy player", "guild", guildID, "error", err)
		}
	}

	if err := c.session.ChannelVoiceJoinManual(guildID.String(), "", false, false); err != nil {
		return fmt.Errorf("failed to leave voice channel: %w", err)
	}
	return nil
}

// lavalinkSource is a track loaded on the node.
type lavalinkSource struct {
	encoded string
	title   string
}

func (s *lavalinkSource) Close() error { return nil }

// CreateSource loads the track's URL on the node.
func (c *LavalinkAdapter) CreateSource(
	ctx context.Context,
	track domain.Track,
) (ports.AudioSource, error) {
	var source *lavalinkSource
	err := c.resilient.Execute(ctx, func(ctx context.Context) error {
		node := c.link.BestNode()
		if node == nil {
			return ErrNoLavalinkNode
		}

		result, err := node.LoadTracks(ctx, track.URL)
		if err != nil {
			return err
		}

		loaded, err := firstLoadedTrack(result)
		if err != nil {
			return err
		}
		source = &lavalinkSource{encoded: loaded.Encoded, title: loaded.Info.Title}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load %q: %w", track.URL, err)
	}
	return source, nil
}

func firstLoadedTrack(result *lavalink.LoadResult) (lavalink.Track, error) {
	switch data := result.Data.(type) {
	case lavalink.Track:
		return data, nil
	case lavalink.Playlist:
		if len(data.Tracks) > 0 {
			return data.Tracks[0], nil
		}
	case lavalink.Search:
		if len(data) > 0 {
			return data[0], nil
		}
	case lavalink.Exception:
		return lavalink.Track{}, fmt.Errorf("lavalink load failed: %s", data.Message)
	}
	return lavalink.Track{}, ports.ErrNotFound
}

// Play starts a loaded track on the guild's player.
func (c *LavalinkAdapter) Play(
	ctx context.Context,
	guildID snowflake.ID,
	source ports.AudioSource,
) (ports.Playback, error) {
	src, ok := source.(*lavalinkSource)
	if !ok {
		_ = source.Close()
		return nil, ports.ErrUnsupportedSource
	}

	playback := &lavalinkPlayback{
		player:  c.link.Player(guildID),
		timeout: c.requestTimeout,
		encoded: src.encoded,
		done:    make(chan error, 1),
	}

	c.playbackMu.Lock()
	c.playbacks[guildID] = playback
	c.playbackMu.Unlock()

	updateCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	err := playback.player.Update(updateCtx, lavalink.WithEncodedTrack(src.encoded), lavalink.WithPaused(false))
	if err != nil {
		c.removePlayback(guildID, playback)
		return nil, fmt.Errorf("failed to play track: %w", err)
	}
	return playback, nil
}

func (c *LavalinkAdapter) removePlayback(guildID snowflake.ID, playback *lavalinkPlayback) {
	c.playbackMu.Lock()
	defer c.playbackMu.Unlock()

	if c.playbacks[guildID] == playback {
		delete(c.playbacks, guildID)
	}
}

// playbackFor returns the guild's playback if it is playing the given track.
func (c *LavalinkAdapter) playbackFor(guildID snowflake.ID, encoded string) *lavalinkPlayback {
	c.playbackMu.Lock()
	defer c.playbackMu.Unlock()

	playback := c.playbacks[guildID]
	if playback == nil || playback.encoded != encoded {
		return nil
	}
	return playback
}

// playerUpdater is the part of disgolink.Player a playback drives.
type playerUpdater interface {
	GuildID() snowflake.ID
	Update(ctx context.Context, opts ...lavalink.PlayerUpdateOpt) error
}

// lavalinkPlayback is one track playing on a Lavalink player.
type lavalinkPlayback struct {
	player  playerUpdater
	timeout time.Duration
	encoded string
	done    chan error
	once    sync.Once

	mu        sync.Mutex
	exception error
}

func (p *lavalinkPlayback) Done() <-chan error {
	return p.done
}

func (p *lavalinkPlayback) SetPaused(paused bool) error {
	if err := p.update(lavalink.WithPaused(paused)); err != nil {
		return fmt.Errorf("failed to set paused: %w", err)
	}
	return nil
}

func (p *lavalinkPlayback) Stop() {
	if err := p.update(lavalink.WithNullTrack()); err != nil {
		slog.Warn("failed to stop lavalink player", "guild", p.player.GuildID(), "error", err)
	}
	p.finish(nil)
}

// update sends opts to the node, giving up after the request timeout.
func (p *lavalinkPlayback) update(opts ...lavalink.PlayerUpdateOpt) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	return p.player.Update(ctx, opts...)
}

func (p *lavalinkPlayback) setException(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exception = err
}

func (p *lavalinkPlayback) finish(err error) {
	p.once.Do(func() {
		p.done <- err
	})
}

// OnVoiceServerUpdate forwards Discord voice server updates. It must be
// called from the Discord event handler.
func (c *LavalinkAdapter) OnVoiceServerUpdate(event *discordgo.VoiceServerUpdate) {
	guildID, err := snowflake.Parse(event.GuildID)
	if err != nil {
		slog.Error("failed to parse guild ID in voice server update", "error", err)
		return
	}

	buffer := c.voiceBuffer(guildID)
	if buffer.setVoiceServer(event.Token, event.Endpoint) {
		c.forwardBufferedVoiceEvents(guildID, buffer)
	}

	c.signalPending(guildID, false)
}

// OnVoiceStateUpdate forwards the bot's own voice state updates. It must be
// called from the Discord event handler.
func (c *LavalinkAdapter) OnVoiceStateUpdate(event *discordgo.VoiceStateUpdate) {
	if event.UserID != c.botID.String() {
		return
	}

	guildID, err := snowflake.Parse(event.GuildID)
	if err != nil {
		slog.Error("failed to parse guild ID in voice state update", "error", err)
		return
	}

	var channelID *snowflake.ID
	if event.ChannelID != "" {
		id, err := snowflake.Parse(event.ChannelID)
		if err != nil {
			slog.Error("failed to parse channel ID in voice state update", "error", err)
			return
		}
		channelID = &id
	}

	// Disconnects need no server update.
	if channelID == nil {
		c.link.OnVoiceStateUpdate(context.Background(), guildID, nil, event.SessionID)
		c.clearVoiceBuffer(guildID)
		return
	}

	buffer := c.voiceBuffer(guildID)
	if buffer.setVoiceState(channelID, event.SessionID) {
		c.forwardBufferedVoiceEvents(guildID, buffer)
	}

	c.signalPending(guildID, true)
}

func (c *LavalinkAdapter) signalPending(guildID snowflake.ID, isVoiceState bool) {
	c.pendingMu.Lock()
	pending := c.pending[guildID]
	c.pendingMu.Unlock()

	if pending != nil {
		pending.onEvent(isVoiceState)
	}
}

func (c *LavalinkAdapter) voiceBuffer(guildID snowflake.ID) *voiceEventBuffer {
	c.voiceBufferMu.Lock()
	defer c.voiceBufferMu.Unlock()

	buffer, exists := c.voiceBuffers[guildID]
	if !exists {
		buffer = &voiceEventBuffer{}
		c.voiceBuffers[guildID] = buffer
	}
	return buffer
}

func (c *LavalinkAdapter) clearVoiceBuffer(guildID snowflake.ID) {
	c.voiceBufferMu.Lock()
	defer c.voiceBufferMu.Unlock()
	delete(c.voiceBuffers, guildID)
}

func (c *LavalinkAdapter) forwardBufferedVoiceEvents(guildID snowflake.ID, buffer *voiceEventBuffer) {
	channelID, sessionID, token, endpoint := buffer.drain()

	slog.Debug("forwarding buffered voice events to Lavalink",
		"guild", guildID,
		"channel", channelID,
		"hasSessionID", sessionID != "",
	)

	c.link.OnVoiceStateUpdate(context.Background(), guildID, channelID, sessionID)
	c.link.OnVoiceServerUpdate(context.Background(), guildID, token, endpoint)
}

func (c *LavalinkAdapter) onTrackStart(player disgolink.Player, event lavalink.TrackStartEvent) {
	slog.Debug("track started", "guild", player.GuildID(), "track", event.Track.Info.Title)
}

func (c *LavalinkAdapter) onTrackEnd(player disgolink.Player, event lavalink.TrackEndEvent) {
	slog.Debug("track ended", "guild", player.GuildID(), "reason", event.Reason)

	if event.Reason == lavalink.TrackEndReasonReplaced {
		return
	}

	playback := c.playbackFor(player.GuildID(), event.Track.Encoded)
	if playback == nil {
		return
	}
	c.removePlayback(player.GuildID(), playback)

	playback.mu.Lock()
	err := playback.exception
	playback.mu.Unlock()

	if event.Reason == lavalink.TrackEndReasonLoadFailed && err == nil {
		err = errors.New("lavalink failed to load track")
	}
	playback.finish(err)
}

func (c *LavalinkAdapter) onTrackException(
	player disgolink.Player,
	event lavalink.TrackExceptionEvent,
) {
	slog.Warn("track exception", "guild", player.GuildID(), "error", event.Exception.Message)

	if playback := c.playbackFor(player.GuildID(), event.Track.Encoded); playback != nil {
		playback.setException(fmt.Errorf("lavalink track exception: %s", event.Exception.Message))
	}
}

func (c *LavalinkAdapter) onTrackStuck(player disgolink.Player, event lavalink.TrackStuckEvent) {
	slog.Warn("track stuck", "guild", player.GuildID(), "threshold", event.Threshold)

	c.abandonPlayback(player.GuildID(), event.Track.Encoded,
		fmt.Errorf("lavalink track stuck for %dms", event.Threshold))
}

// abandonPlayback clears the guild's player and ends the playback of encoded
// with err, so the session moves on to the next track.
func (c *LavalinkAdapter) abandonPlayback(guildID snowflake.ID, encoded string, err error) {
	playback := c.playbackFor(guildID, encoded)
	if playback == nil {
		return
	}
	// Removed first so the end event caused by clearing the track is ignored.
	c.removePlayback(guildID, playback)

	if updateErr := playback.update(lavalink.WithNullTrack()); updateErr != nil {
		slog.Warn("failed to clear stuck track", "guild", guildID, "error", updateErr)
	}
	playback.finish(err)
}

var (
	_ ports.VoiceConnector = (*LavalinkAdapter)(nil)
	_ ports.SourceFactory  = (*LavalinkAdapter)(nil)
	_ ports.AudioPlayer    = (*LavalinkAdapter)(nil)
)
