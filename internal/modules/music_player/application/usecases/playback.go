package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/sgrmusic/internal/modules/music_player/domain"
)

// PlayInput contains the input for the Play use case.
type PlayInput struct {
	GuildID               snowflake.ID
	UserID                snowflake.ID
	NotificationChannelID snowflake.ID
	Query                 string
}

// PlayOutput contains the result of the Play use case.
type PlayOutput struct {
	// Tracks were resolved and queued before Play returned.
	Tracks []domain.Track
	// Collection is set for catalog links; its tracks are queued in the background.
	Collection     *domain.CatalogCollection
	Enqueue        EnqueueResult
	VoiceChannelID snowflake.ID
}

// GuildInput identifies the guild a playback control applies to.
type GuildInput struct {
	GuildID snowflake.ID
}

// NowPlayingOutput contains the result of the NowPlaying use case.
type NowPlayingOutput struct {
	Track  domain.Track
	Paused bool
}

// PlaybackService exposes the playback operations invoked by command handlers.
type PlaybackService struct {
	sessions *SessionManager
	voice    *VoiceChannelService
	resolver *TrackResolverService
	queue    *QueueService
	now      func() time.Time
}

// NewPlaybackService creates a new PlaybackService.
func NewPlaybackService(
	sessions *SessionManager,
	voice *VoiceChannelService,
	resolver *TrackResolverService,
) *PlaybackService {
	return &PlaybackService{
		sessions: sessions,
		voice:    voice,
		resolver: resolver,
		queue:    NewQueueService(sessions),
		now:      time.Now,
	}
}

// Play connects to the requester's voice channel, resolves the query and
// queues the result. Catalog links return after the collection is known and
// queue their tracks in the background. A connection made for a play that
// queues nothing is released again.
func (p *PlaybackService) Play(ctx context.Context, input PlayInput) (*PlayOutput, error) {
	query := domain.ParseQuery(input.Query)
	if !query.IsValid() {
		return nil, ErrNoResults
	}

	joined, err := p.voice.EnsureConnection(ctx, JoinInput{
		GuildID:               input.GuildID,
		UserID:                input.UserID,
		NotificationChannelID: input.NotificationChannelID,
	})
	if err != nil {
		return nil, err
	}
	session := joined.session

	output, err := p.play(ctx, session, input, query, joined.VoiceChannelID)
	if err != nil && joined.Action == VoiceJoined {
		p.releaseIdle(session)
	}
	return output, err
}

func (p *PlaybackService) play(
	ctx context.Context,
	session *GuildSession,
	input PlayInput,
	query domain.Query,
	voiceChannelID snowflake.ID,
) (*PlayOutput, error) {
	if err := session.CancelExpansion(ctx); err != nil {
		return nil, err
	}

	opCtx, release, err := session.OperationContext(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if query.Kind == domain.QueryCatalog {
		return p.playCatalog(opCtx, session, input, query, voiceChannelID)
	}

	tracks := p.resolver.Resolve(opCtx, query.Raw)
	if len(tracks) == 0 {
		if err := opCtx.Err(); err != nil {
			return nil, fmt.Errorf("play was interrupted: %w", err)
		}
		return nil, ErrNoResults
	}

	requestedAt := p.now()
	for i := range tracks {
		tracks[i] = tracks[i].RequestedBy(input.UserID, requestedAt)
	}

	result, err := session.Enqueue(opCtx, tracks...)
	if err != nil {
		return nil, err
	}

	return &PlayOutput{
		Tracks:         tracks,
		Enqueue:        result,
		VoiceChannelID: voiceChannelID,
	}, nil
}

// releaseIdle leaves voice if the session is still idle. The caller's context
// may already be done, so the release gets its own.
func (p *PlaybackService) releaseIdle(session *GuildSession) {
	released, err := session.ReleaseIfIdle(context.Background())
	if err != nil {
		if !errors.Is(err, ErrSessionClosed) {
			slog.Warn("failed to release voice after unsuccessful play",
				"guild_id", session.GuildID(),
				"error", err,
			)
		}
		return
	}
	if released {
		slog.Debug("released voice after unsuccessful play", "guild_id", session.GuildID())
	}
}

func (p *PlaybackService) playCatalog(
	ctx context.Context,
	session *GuildSession,
	input PlayInput,
	query domain.Query,
	voiceChannelID snowflake.ID,
) (*PlayOutput, error) {
	collection, err := p.resolver.ResolveCatalog(ctx, query.Catalog)
	if err != nil {
		return nil, err
	}

	expCtx, token, err := session.BeginExpansion(ctx)
	if err != nil {
		return nil, err
	}

	go p.expand(expCtx, session, token, collection, input.UserID)

	return &PlayOutput{
		Collection:     &collection,
		VoiceChannelID: voiceChannelID,
	}, nil
}

// expand queues the collection's tracks one at a time until it is done or
// superseded.
func (p *PlaybackService) expand(
	ctx context.Context,
	session *GuildSession,
	token uint64,
	collection domain.CatalogCollection,
	requesterID snowflake.ID,
) {
	defer func() {
		if err := session.EndExpansion(context.Background(), token); err != nil &&
			!errors.Is(err, ErrSessionClosed) {
			slog.Warn("failed to release catalog expansion", "error", err)
		}
	}()

	var stopErr error
	queued, err := p.resolver.Expand(ctx, collection, func(track domain.Track) bool {
		track = track.RequestedBy(requesterID, p.now())
		if _, err := session.EnqueueExpanded(ctx, token, track); err != nil {
			stopErr = err
			return false
		}
		return true
	})

	attrs := []any{
		"guild_id", session.GuildID(),
		"collection", collection.Name,
		"queued", queued,
		"total", len(collection.Queries),
	}
	switch {
	case err != nil:
		slog.Info("cancelled catalog expansion", append(attrs, "reason", err)...)
	case errors.Is(stopErr, ErrExpansionCancelled):
		slog.Info("cancelled catalog expansion", append(attrs, "reason", stopErr)...)
	case stopErr != nil:
		slog.Warn("stopped catalog expansion early", append(attrs, "error", stopErr)...)
	default:
		slog.Info("finished catalog expansion", attrs...)
	}
}

// Skip skips the current track.
func (p *PlaybackService) Skip(ctx context.Context, input GuildInput) (*SkipOutput, error) {
	session, ok := p.sessions.Get(input.GuildID)
	if !ok {
		return nil, ErrNotPlaying
	}

	return session.Skip(ctx)
}

// Pause pauses the current playback.
func (p *PlaybackService) Pause(ctx context.Context, input GuildInput) error {
	session, ok := p.sessions.Get(input.GuildID)
	if !ok {
		return ErrNotPlaying
	}
	return session.Pause(ctx)
}

// Resume resumes the paused playback.
func (p *PlaybackService) Resume(ctx context.Context, input GuildInput) error {
	session, ok := p.sessions.Get(input.GuildID)
	if !ok {
		return ErrNotPlaying
	}
	return session.Resume(ctx)
}

// Stop clears the queue, stops playback and leaves voice. Stopping an idle
// guild succeeds with WasActive false.
func (p *PlaybackService) Stop(ctx context.Context, input GuildInput) (StopResult, error) {
	session, ok := p.sessions.Get(input.GuildID)
	if !ok {
		return StopResult{}, nil
	}
	return session.Stop(ctx)
}

// Queue returns one page of the guild's queue.
func (p *PlaybackService) Queue(_ context.Context, input QueueInput) (*QueueOutput, error) {
	return p.queue.Page(input), nil
}

// NowPlaying returns the track currently streaming in the guild.
func (p *PlaybackService) NowPlaying(_ context.Context, input GuildInput) (*NowPlayingOutput, error) {
	session, ok := p.sessions.Get(input.GuildID)
	if !ok {
		return nil, ErrNotPlaying
	}

	snapshot := session.Snapshot()
	if snapshot.NowPlaying == nil {
		return nil, ErrNotPlaying
	}

	return &NowPlayingOutput{
		Track:  *snapshot.NowPlaying,
		Paused: snapshot.Paused,
	}, nil
}
