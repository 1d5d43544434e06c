package usecases

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/sgrmusic/internal/modules/music_player/application/ports"
	"github.com/sglre6355/sgrmusic/internal/modules/music_player/domain"
)

// SessionDeps are the adapters a GuildSession drives.
type SessionDeps struct {
	Voice     ports.VoiceConnector
	Sources   ports.SourceFactory
	Player    ports.AudioPlayer
	Publisher ports.EventPublisher
}

// SessionConfig bounds the blocking calls a session makes.
type SessionConfig struct {
	VoiceTimeout  time.Duration
	SourceTimeout time.Duration
}

// DefaultSessionConfig returns the timeouts used when none are configured.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		VoiceTimeout:  10 * time.Second,
		SourceTimeout: 30 * time.Second,
	}
}

// GuildSession owns the playback state of a single guild.
//
// All mutations run on one goroutine, in the order they were submitted, so a
// skip, a stop, an enqueue and a track completion can never interleave.
// Snapshot reads never wait on that goroutine.
type GuildSession struct {
	guildID snowflake.ID
	deps    SessionDeps
	cfg     SessionConfig

	commands chan command
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	snapshot atomic.Pointer[domain.SessionSnapshot]

	// Everything below is owned by the loop goroutine.
	state                 domain.SessionState
	queue                 domain.Queue
	current               *domain.Track
	playback              ports.Playback
	paused                bool
	attempt               uint64
	cancelLoading         context.CancelFunc
	voiceChannelID        snowflake.ID
	notificationChannelID snowflake.ID
	opCtx                 context.Context
	opCancel              context.CancelFunc
	expansion             uint64
	cancelExpansion       context.CancelFunc
	leftAt                time.Time
	now                   func() time.Time
}

// leaveEchoWindow is how long after leaving voice a disconnect update is
// taken to be the echo of that leave rather than an external kick.
const leaveEchoWindow = 5 * time.Second

// NewGuildSession creates a session and starts its loop. The loop runs until
// parent is cancelled or Close is called.
func NewGuildSession(
	parent context.Context,
	guildID snowflake.ID,
	deps SessionDeps,
	cfg SessionConfig,
) *GuildSession {
	ctx, cancel := context.WithCancel(parent)
	s := &GuildSession{
		guildID:  guildID,
		deps:     deps,
		cfg:      cfg,
		commands: make(chan command),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		state:    domain.SessionIdle,
		queue:    domain.NewQueue(),
		now:      time.Now,
	}
	s.opCtx, s.opCancel = context.WithCancel(ctx)
	s.publishSnapshot()

	go s.run()

	return s
}

// GuildID returns the guild the session belongs to.
func (s *GuildSession) GuildID() snowflake.ID {
	return s.guildID
}

// Snapshot returns the most recently published state of the session.
func (s *GuildSession) Snapshot() domain.SessionSnapshot {
	return *s.snapshot.Load()
}

// Close stops playback, leaves voice and terminates the loop.
func (s *GuildSession) Close(ctx context.Context) error {
	s.cancel()
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// command is a unit of work for the loop. done, when set, is closed once
// fn has run and the resulting snapshot is visible.
type command struct {
	fn   func()
	done chan struct{}
}

func (s *GuildSession) run() {
	defer close(s.done)

	for {
		select {
		case cmd := <-s.commands:
			cmd.fn()
			s.publishSnapshot()
			if cmd.done != nil {
				close(cmd.done)
			}
		case <-s.ctx.Done():
			s.teardown()
			s.publishSnapshot()
			return
		}
	}
}

// do runs fn on the loop and waits for it to finish.
// It must never be called from the loop itself.
func (s *GuildSession) do(ctx context.Context, fn func()) error {
	cmd := command{fn: fn, done: make(chan struct{})}

	select {
	case s.commands <- cmd:
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	// The loop has accepted the command, so it will run to completion.
	<-cmd.done
	return nil
}

// post hands fn to the loop without waiting for it to run.
// It reports false when the session is gone.
func (s *GuildSession) post(fn func()) bool {
	select {
	case s.commands <- command{fn: fn}:
		return true
	case <-s.done:
		return false
	}
}

func (s *GuildSession) publishSnapshot() {
	snap := domain.SessionSnapshot{
		GuildID:               s.guildID,
		State:                 s.state,
		Queue:                 s.queue.List(),
		Paused:                s.paused,
		VoiceChannelID:        s.voiceChannelID,
		NotificationChannelID: s.notificationChannelID,
	}
	if s.state == domain.SessionPlaying && s.current != nil {
		track := *s.current
		snap.NowPlaying = &track
	}
	s.snapshot.Store(&snap)
}

func (s *GuildSession) publish(event domain.Event) {
	if s.deps.Publisher == nil {
		return
	}
	if err := s.deps.Publisher.Publish(event); err != nil {
		slog.Warn("failed to publish event",
			"guild_id", s.guildID,
			"event", event,
			"error", err,
		)
	}
}

// EnsureVoice connects the bot to channelID, joining, moving or reusing the
// existing connection as needed. A non-zero notificationChannelID replaces
// the channel used for playback notices.
func (s *GuildSession) EnsureVoice(
	ctx context.Context,
	channelID, notificationChannelID snowflake.ID,
) (VoiceAction, error) {
	var (
		action VoiceAction
		err    error
	)
	doErr := s.do(ctx, func() {
		if notificationChannelID != 0 {
			s.notificationChannelID = notificationChannelID
		}

		voiceCtx, cancel := context.WithTimeout(ctx, s.cfg.VoiceTimeout)
		defer cancel()

		switch {
		case s.voiceChannelID == 0:
			action = VoiceJoined
			err = s.deps.Voice.Join(voiceCtx, s.guildID, channelID)
		case s.voiceChannelID != channelID:
			action = VoiceMoved
			err = s.deps.Voice.Move(voiceCtx, s.guildID, channelID)
		default:
			action = VoiceReused
			return
		}
		if err != nil {
			return
		}

		s.voiceChannelID = channelID
		slog.Info("connected to voice channel",
			"guild_id", s.guildID,
			"channel_id", channelID,
			"action", action,
		)
	})
	if doErr != nil {
		return action, doErr
	}
	return action, err
}

// OperationContext derives a context that is cancelled when parent is done
// or when the session is stopped. Call release once the operation is over.
func (s *GuildSession) OperationContext(
	parent context.Context,
) (context.Context, context.CancelFunc, error) {
	var opCtx context.Context
	if err := s.do(parent, func() { opCtx = s.opCtx }); err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(opCtx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}, nil
}

// Enqueue appends tracks in order. When the session is idle it starts
// loading the first one.
func (s *GuildSession) Enqueue(ctx context.Context, tracks ...domain.Track) (EnqueueResult, error) {
	var (
		result EnqueueResult
		err    error
	)
	doErr := s.do(ctx, func() {
		result, err = s.enqueue(tracks)
	})
	if doErr != nil {
		return EnqueueResult{}, doErr
	}
	return result, err
}

func (s *GuildSession) enqueue(tracks []domain.Track) (EnqueueResult, error) {
	if s.voiceChannelID == 0 {
		return EnqueueResult{}, ErrNotConnected
	}
	if len(tracks) == 0 {
		return EnqueueResult{}, nil
	}

	result := EnqueueResult{
		Added:    len(tracks),
		Position: s.queue.Len() + 1,
	}
	s.queue.Append(tracks...)

	if s.state == domain.SessionIdle {
		s.advance()
		result.Position = 0
		result.StartedPlayback = true
	}

	return result, nil
}

// BeginExpansion registers a new background catalog expansion, cancelling any
// previous one. Tracks from the expansion must be added with EnqueueExpanded
// and the returned token.
func (s *GuildSession) BeginExpansion(ctx context.Context) (context.Context, uint64, error) {
	var (
		expCtx context.Context
		token  uint64
	)
	err := s.do(ctx, func() {
		s.stopExpansion()
		s.expansion++
		token = s.expansion
		expCtx, s.cancelExpansion = context.WithCancel(s.opCtx)
	})
	if err != nil {
		return nil, 0, err
	}
	return expCtx, token, nil
}

// EnqueueExpanded appends tracks produced by the expansion identified by token.
// It fails with ErrExpansionCancelled once that expansion has been superseded.
func (s *GuildSession) EnqueueExpanded(
	ctx context.Context,
	token uint64,
	tracks ...domain.Track,
) (EnqueueResult, error) {
	var (
		result EnqueueResult
		err    error
	)
	doErr := s.do(ctx, func() {
		if token != s.expansion || s.cancelExpansion == nil {
			err = ErrExpansionCancelled
			return
		}
		result, err = s.enqueue(tracks)
	})
	if doErr != nil {
		return EnqueueResult{}, doErr
	}
	return result, err
}

// EndExpansion releases the expansion identified by token if it is still
// current. A session that drained its queue while the expansion was running
// goes idle and leaves voice here.
func (s *GuildSession) EndExpansion(ctx context.Context, token uint64) error {
	return s.do(ctx, func() {
		if token != s.expansion || s.cancelExpansion == nil {
			return
		}
		s.stopExpansion()
		if s.state == domain.SessionIdle && s.queue.IsEmpty() {
			s.exhaust()
		}
	})
}

// ReleaseIfIdle leaves voice when the session has nothing left to play.
// It reports whether the connection was released.
func (s *GuildSession) ReleaseIfIdle(ctx context.Context) (bool, error) {
	var released bool
	err := s.do(ctx, func() {
		if s.state != domain.SessionIdle || !s.queue.IsEmpty() || s.cancelExpansion != nil {
			return
		}
		released = s.voiceChannelID != 0
		s.leaveVoice()
	})
	return released, err
}

// CancelExpansion cancels the in-flight catalog expansion, if any.
func (s *GuildSession) CancelExpansion(ctx context.Context) error {
	return s.do(ctx, s.stopExpansion)
}

func (s *GuildSession) stopExpansion() {
	if s.cancelExpansion != nil {
		s.cancelExpansion()
		s.cancelExpansion = nil
	}
}

// Skip abandons the current track and moves to the next one.
func (s *GuildSession) Skip(ctx context.Context) (*SkipOutput, error) {
	var (
		output *SkipOutput
		err    error
	)
	doErr := s.do(ctx, func() {
		if s.state == domain.SessionIdle {
			err = ErrNotPlaying
			return
		}

		output = &SkipOutput{SkippedTrack: *s.current}
		if s.state == domain.SessionLoading {
			s.cancelLoad()
		} else {
			s.playback.Stop()
			s.finishCurrent(domain.TrackEndSkipped)
		}
		s.advance()

		if s.current != nil {
			next := *s.current
			output.NextTrack = &next
		}
	})
	if doErr != nil {
		return nil, doErr
	}
	return output, err
}

// Pause pauses the current playback.
func (s *GuildSession) Pause(ctx context.Context) error {
	var err error
	doErr := s.do(ctx, func() {
		switch {
		case s.state != domain.SessionPlaying:
			err = ErrNotPlaying
		case s.paused:
			err = ErrAlreadyPaused
		default:
			if err = s.playback.SetPaused(true); err == nil {
				s.paused = true
			}
		}
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// Resume resumes paused playback.
func (s *GuildSession) Resume(ctx context.Context) error {
	var err error
	doErr := s.do(ctx, func() {
		switch {
		case s.state != domain.SessionPlaying:
			err = ErrNotPlaying
		case !s.paused:
			err = ErrNotPaused
		default:
			if err = s.playback.SetPaused(false); err == nil {
				s.paused = false
			}
		}
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// Stop cancels every in-flight operation, clears the queue and leaves voice.
// Stopping an inactive session is a no-op.
func (s *GuildSession) Stop(ctx context.Context) (StopResult, error) {
	var result StopResult
	err := s.do(ctx, func() {
		result = s.stop()
	})
	return result, err
}

// HandleVoiceStateChange reconciles the session with a voice state update for
// the bot itself. A nil channelID means the bot was disconnected.
func (s *GuildSession) HandleVoiceStateChange(ctx context.Context, channelID *snowflake.ID) error {
	return s.do(ctx, func() {
		if channelID == nil {
			echo := !s.leftAt.IsZero() && s.now().Sub(s.leftAt) < leaveEchoWindow
			s.leftAt = time.Time{}
			if s.voiceChannelID == 0 {
				return
			}
			if echo {
				slog.Debug("ignoring disconnect left over from an earlier leave",
					"guild_id", s.guildID,
					"channel_id", s.voiceChannelID,
				)
				return
			}
			slog.Info("disconnected from voice channel externally",
				"guild_id", s.guildID,
				"channel_id", s.voiceChannelID,
			)
			s.stop()
			return
		}
		if s.voiceChannelID != 0 && s.voiceChannelID != *channelID {
			slog.Info("moved to another voice channel externally",
				"guild_id", s.guildID,
				"from", s.voiceChannelID,
				"to", *channelID,
			)
			s.voiceChannelID = *channelID
		}
	})
}

func (s *GuildSession) stop() StopResult {
	result := StopResult{
		WasActive: s.voiceChannelID != 0 || s.state != domain.SessionIdle || !s.queue.IsEmpty(),
		Cleared:   s.queue.Len(),
	}
	if s.current != nil {
		track := *s.current
		result.NowPlaying = &track
	}

	s.stopExpansion()
	s.opCancel()
	s.opCtx, s.opCancel = context.WithCancel(s.ctx)

	switch s.state {
	case domain.SessionLoading:
		s.cancelLoad()
	case domain.SessionPlaying:
		s.playback.Stop()
		s.finishCurrent(domain.TrackEndStopped)
	}
	s.attempt++
	s.queue.Clear()
	s.current = nil
	s.paused = false
	s.state = domain.SessionIdle
	s.leaveVoice()

	return result
}

func (s *GuildSession) teardown() {
	// s.ctx is already cancelled here; voice needs its own deadline.
	s.stopExpansion()
	s.opCancel()
	switch s.state {
	case domain.SessionLoading:
		s.cancelLoad()
	case domain.SessionPlaying:
		s.playback.Stop()
		s.playback = nil
	}
	s.queue.Clear()
	s.current = nil
	s.paused = false
	s.state = domain.SessionIdle
	s.leaveVoice()
}

func (s *GuildSession) leaveVoice() {
	if s.voiceChannelID == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.VoiceTimeout)
	defer cancel()

	if err := s.deps.Voice.Leave(ctx, s.guildID); err != nil {
		slog.Warn("failed to leave voice channel",
			"guild_id", s.guildID,
			"channel_id", s.voiceChannelID,
			"error", err,
		)
	}
	s.voiceChannelID = 0
	s.leftAt = s.now()
}

func (s *GuildSession) cancelLoad() {
	if s.cancelLoading != nil {
		s.cancelLoading()
		s.cancelLoading = nil
	}
}

// finishCurrent clears the playing track and announces why it ended.
func (s *GuildSession) finishCurrent(reason domain.TrackEndReason) {
	if s.current != nil {
		s.publish(domain.PlaybackFinishedEvent{
			GuildID:               s.guildID,
			Track:                 *s.current,
			Reason:                reason,
			NotificationChannelID: s.notificationChannelID,
		})
	}
	s.current = nil
	s.playback = nil
	s.paused = false
}

// advance starts loading the head of the queue, or goes idle and leaves voice
// when the queue is empty. While a catalog expansion is still feeding the
// queue the session idles in place and keeps its connection. Every call starts
// a new attempt, so completions from earlier attempts are ignored.
func (s *GuildSession) advance() {
	s.attempt++
	s.current = nil
	s.playback = nil
	s.paused = false

	track, ok := s.queue.Pop()
	if !ok {
		s.state = domain.SessionIdle
		if s.cancelExpansion != nil {
			slog.Debug("queue drained while catalog expansion is running",
				"guild_id", s.guildID,
			)
			return
		}
		s.exhaust()
		return
	}

	attempt := s.attempt
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.SourceTimeout)
	s.cancelLoading = cancel
	s.current = &track
	s.state = domain.SessionLoading

	go func() {
		source, err := s.deps.Sources.CreateSource(ctx, track)
		delivered := s.post(func() {
			s.onSourceReady(attempt, track, source, err)
		})
		if !delivered && source != nil {
			_ = source.Close()
		}
	}()
}

// exhaust leaves voice and announces that the queue ran out.
func (s *GuildSession) exhaust() {
	s.leaveVoice()
	s.publish(domain.QueueExhaustedEvent{
		GuildID:               s.guildID,
		NotificationChannelID: s.notificationChannelID,
	})
}

func (s *GuildSession) onSourceReady(
	attempt uint64,
	track domain.Track,
	source ports.AudioSource,
	err error,
) {
	if attempt != s.attempt {
		if source != nil {
			_ = source.Close()
		}
		return
	}
	s.cancelLoad()

	if err == nil {
		var playback ports.Playback
		playback, err = s.deps.Player.Play(s.ctx, s.guildID, source)
		if err == nil {
			s.startPlayback(attempt, track, playback)
			return
		}
		_ = source.Close()
	}

	slog.Warn("failed to start track, skipping",
		"guild_id", s.guildID,
		"title", track.Title,
		"url", track.URL,
		"error", err,
	)
	s.publish(domain.TrackFailedEvent{
		GuildID:               s.guildID,
		Track:                 track,
		Err:                   err,
		NotificationChannelID: s.notificationChannelID,
	})
	s.advance()
}

func (s *GuildSession) startPlayback(attempt uint64, track domain.Track, playback ports.Playback) {
	s.state = domain.SessionPlaying
	s.current = &track
	s.playback = playback
	s.paused = false

	slog.Info("started playback",
		"guild_id", s.guildID,
		"title", track.Title,
		"url", track.URL,
	)
	s.publish(domain.PlaybackStartedEvent{
		GuildID:               s.guildID,
		Track:                 track,
		NotificationChannelID: s.notificationChannelID,
	})

	go func() {
		var err error
		select {
		case err = <-playback.Done():
		case <-s.done:
			return
		}
		s.post(func() { s.onPlaybackDone(attempt, err) })
	}()
}

func (s *GuildSession) onPlaybackDone(attempt uint64, err error) {
	if attempt != s.attempt || s.state != domain.SessionPlaying {
		return
	}

	reason := domain.TrackEndFinished
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("playback ended with error",
			"guild_id", s.guildID,
			"title", s.current.Title,
			"error", err,
		)
		reason = domain.TrackEndFailed
	}

	s.finishCurrent(reason)
	s.advance()
}
