package application

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/sgrmusic/internal/modules/music_player/application/ports"
	"github.com/sglre6355/sgrmusic/internal/modules/music_player/domain"
)

// nowPlayingMessage locates a posted "Now Playing" message.
type nowPlayingMessage struct {
	channelID snowflake.ID
	messageID snowflake.ID
}

// NotificationEventHandler posts playback notices to each guild's
// notification channel.
type NotificationEventHandler struct {
	notifier   ports.NotificationSender
	userInfo   ports.UserInfoProvider
	subscriber ports.EventSubscriber

	mu         sync.Mutex
	nowPlaying map[snowflake.ID]nowPlayingMessage
}

// NewNotificationEventHandler creates a new NotificationEventHandler.
func NewNotificationEventHandler(
	notifier ports.NotificationSender,
	userInfo ports.UserInfoProvider,
	subscriber ports.EventSubscriber,
) *NotificationEventHandler {
	return &NotificationEventHandler{
		notifier:   notifier,
		userInfo:   userInfo,
		subscriber: subscriber,
		nowPlaying: make(map[snowflake.ID]nowPlayingMessage),
	}
}

// Start registers event handlers with the subscriber.
func (h *NotificationEventHandler) Start() error {
	handlers := map[reflect.Type]func(context.Context, domain.Event){
		reflect.TypeFor[domain.PlaybackStartedEvent](): func(ctx context.Context, e domain.Event) {
			h.handlePlaybackStarted(ctx, e.(domain.PlaybackStartedEvent))
		},
		reflect.TypeFor[domain.PlaybackFinishedEvent](): func(ctx context.Context, e domain.Event) {
			h.handlePlaybackFinished(ctx, e.(domain.PlaybackFinishedEvent))
		},
		reflect.TypeFor[domain.TrackFailedEvent](): func(ctx context.Context, e domain.Event) {
			h.handleTrackFailed(ctx, e.(domain.TrackFailedEvent))
		},
		reflect.TypeFor[domain.QueueExhaustedEvent](): func(ctx context.Context, e domain.Event) {
			h.handleQueueExhausted(ctx, e.(domain.QueueExhaustedEvent))
		},
	}

	for eventType, handler := range handlers {
		if err := h.subscriber.Subscribe(eventType, handler); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", eventType, err)
		}
	}

	slog.Debug("notification event handlers properly registered")

	return nil
}

func (h *NotificationEventHandler) handlePlaybackStarted(
	_ context.Context,
	event domain.PlaybackStartedEvent,
) {
	if event.NotificationChannelID == 0 {
		return
	}

	// A message left over from an interrupted transition is replaced.
	h.deleteNowPlaying(event.GuildID)

	var requester *ports.UserInfo
	if event.Track.RequesterID != 0 && h.userInfo != nil {
		info, err := h.userInfo.GetUserInfo(event.GuildID, event.Track.RequesterID)
		if err != nil {
			slog.Debug("failed to fetch requester info",
				"guild", event.GuildID,
				"user", event.Track.RequesterID,
				"error", err,
			)
		} else {
			requester = info
		}
	}

	messageID, err := h.notifier.SendNowPlaying(event.NotificationChannelID, event.Track, requester)
	if err != nil {
		slog.Warn("failed to send now playing message",
			"guild", event.GuildID,
			"channel", event.NotificationChannelID,
			"error", err,
		)
		return
	}

	h.mu.Lock()
	h.nowPlaying[event.GuildID] = nowPlayingMessage{
		channelID: event.NotificationChannelID,
		messageID: messageID,
	}
	h.mu.Unlock()
}

func (h *NotificationEventHandler) handlePlaybackFinished(
	_ context.Context,
	event domain.PlaybackFinishedEvent,
) {
	slog.Debug("playback finished",
		"guild", event.GuildID,
		"track", event.Track.Title,
		"reason", event.Reason,
	)
	h.deleteNowPlaying(event.GuildID)
}

func (h *NotificationEventHandler) handleTrackFailed(
	_ context.Context,
	event domain.TrackFailedEvent,
) {
	if event.NotificationChannelID == 0 {
		return
	}

	message := fmt.Sprintf("Could not play **%s**, skipping.", event.Track.Title)
	if err := h.notifier.SendError(event.NotificationChannelID, message); err != nil {
		slog.Warn("failed to send track failure message",
			"guild", event.GuildID,
			"channel", event.NotificationChannelID,
			"error", err,
		)
	}
}

func (h *NotificationEventHandler) handleQueueExhausted(
	_ context.Context,
	event domain.QueueExhaustedEvent,
) {
	h.deleteNowPlaying(event.GuildID)

	if event.NotificationChannelID == 0 {
		return
	}
	if err := h.notifier.SendInfo(
		event.NotificationChannelID,
		"The queue has finished. Leaving the voice channel.",
	); err != nil {
		slog.Warn("failed to send queue finished message",
			"guild", event.GuildID,
			"channel", event.NotificationChannelID,
			"error", err,
		)
	}
}

func (h *NotificationEventHandler) deleteNowPlaying(guildID snowflake.ID) {
	h.mu.Lock()
	msg, ok := h.nowPlaying[guildID]
	delete(h.nowPlaying, guildID)
	h.mu.Unlock()

	if !ok {
		return
	}
	if err := h.notifier.DeleteMessage(msg.channelID, msg.messageID); err != nil {
		slog.Debug("failed to delete now playing message",
			"guild", guildID,
			"message", msg.messageID,
			"error", err,
		)
	}
}
