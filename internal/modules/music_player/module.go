package music_player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/caarlos0/env/v11"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/sgrmusic/internal/bot"
	"github.com/sglre6355/sgrmusic/internal/modules/music_player/application"
	"github.com/sglre6355/sgrmusic/internal/modules/music_player/application/ports"
	"github.com/sglre6355/sgrmusic/internal/modules/music_player/application/usecases"
	"github.com/sglre6355/sgrmusic/internal/modules/music_player/infrastructure"
	"github.com/sglre6355/sgrmusic/internal/modules/music_player/presentation/discord"
)

// shutdownTimeout bounds how long sessions get to leave voice on shutdown.
const shutdownTimeout = 10 * time.Second

func init() {
	bot.Register(&MusicPlayerModule{})
}

// Compile-time interface checks.
var (
	_ bot.ConfigurableModule = (*MusicPlayerModule)(nil)
	_ bot.ComponentModule    = (*MusicPlayerModule)(nil)
)

// MusicPlayerModule provides music playback commands.
type MusicPlayerModule struct {
	config          *Config
	commandHandlers *discord.CommandHandlers
	autocomplete    *discord.AutocompleteHandler
	eventHandlers   *discord.EventHandlers
	lavalinkAdapter *infrastructure.LavalinkAdapter

	sessions            *usecases.SessionManager
	eventBus            *infrastructure.ChannelEventBus
	notificationHandler *application.NotificationEventHandler

	ctx    context.Context
	cancel context.CancelFunc
}

// Name returns the module name.
func (m *MusicPlayerModule) Name() string {
	return "music_player"
}

// Commands returns the slash commands for this module.
func (m *MusicPlayerModule) Commands() []*discordgo.ApplicationCommand {
	return discord.Commands()
}

// CommandHandlers returns the command handlers for this module.
func (m *MusicPlayerModule) CommandHandlers() map[string]bot.InteractionHandler {
	return map[string]bot.InteractionHandler{
		"join":       m.commandHandlers.HandleJoin,
		"leave":      m.commandHandlers.HandleLeave,
		"play":       m.commandHandlers.HandlePlay,
		"skip":       m.commandHandlers.HandleSkip,
		"pause":      m.commandHandlers.HandlePause,
		"resume":     m.commandHandlers.HandleResume,
		"stop":       m.commandHandlers.HandleStop,
		"queue":      m.commandHandlers.HandleQueue,
		"nowplaying": m.commandHandlers.HandleNowPlaying,
	}
}

// ComponentHandlers returns the button handlers for this module.
func (m *MusicPlayerModule) ComponentHandlers() map[string]bot.InteractionHandler {
	return map[string]bot.InteractionHandler{
		discord.QueueComponentPrefix: m.commandHandlers.HandleQueuePage,
	}
}

// EventHandlers returns the event handlers for this module.
func (m *MusicPlayerModule) EventHandlers() []bot.EventHandler {
	return []bot.EventHandler{
		func(s *discordgo.Session, event *discordgo.VoiceServerUpdate) {
			m.handleVoiceServerUpdate(s, event)
		},
		func(s *discordgo.Session, event *discordgo.VoiceStateUpdate) {
			m.handleVoiceStateUpdate(s, event)
		},
		func(s *discordgo.Session, i *discordgo.InteractionCreate) {
			m.autocomplete.Handle(s, i)
		},
	}
}

// LoadConfig loads module-specific configuration from environment variables.
func (m *MusicPlayerModule) LoadConfig() error {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.config = cfg
	return nil
}

// Init initializes the module.
func (m *MusicPlayerModule) Init(deps bot.ModuleDependencies) error {
	if deps.Session == nil || deps.Session.State == nil || deps.Session.State.User == nil {
		return errors.New("music_player requires a connected Discord session")
	}
	if m.config == nil {
		return errors.New("music_player config not loaded")
	}

	m.ctx, m.cancel = context.WithCancel(context.Background())

	retry := infrastructure.RetryConfig{
		RetryMax:       m.config.RetryMax,
		RetryWaitMin:   m.config.RetryWaitMin,
		RetryWaitMax:   m.config.RetryWaitMax,
		RequestTimeout: m.config.RequestTimeout,
	}
	httpClient := infrastructure.NewHTTPClient(retry)

	m.eventBus = infrastructure.NewChannelEventBus(infrastructure.DefaultEventBufferSize)

	// Lookup and search
	ytdlp := infrastructure.NewYtdlpClient(infrastructure.YtdlpConfig{
		CookiesFile:   m.config.YtdlpCookiesFile,
		MaxConcurrent: m.config.YtdlpMaxConcurrent,
	}, retry)
	searcher := infrastructure.NewFallbackSearcher(httpClient, ytdlp, retry)

	var catalog ports.CatalogResolver
	if m.config.CatalogEnabled() {
		catalog = infrastructure.NewSpotifyCatalog(m.ctx, infrastructure.SpotifyConfig{
			ClientID:     m.config.SpotifyClientID,
			ClientSecret: m.config.SpotifyClientSecret,
			Limit:        m.config.CatalogLimit,
		}, httpClient, retry)
	}
	resolver := usecases.NewTrackResolverService(searcher, ytdlp, catalog, m.config.CatalogDelay)

	// Playback backend
	sessionDeps, err := m.playbackBackend(deps.Session, ytdlp, retry)
	if err != nil {
		m.cancel()
		m.eventBus.Close()
		return err
	}
	sessionDeps.Publisher = m.eventBus

	sessionCfg := usecases.DefaultSessionConfig()
	sessionCfg.VoiceTimeout = m.config.VoiceTimeout
	m.sessions = usecases.NewSessionManager(sessionDeps, sessionCfg)

	voiceState := infrastructure.NewVoiceStateProvider(deps.Session.State)
	userInfo := infrastructure.NewDiscordUserInfoProvider(deps.Session)
	notifier := infrastructure.NewNotifier(deps.Session, httpClient)

	voiceChannel := usecases.NewVoiceChannelService(m.sessions, voiceState)
	playback := usecases.NewPlaybackService(m.sessions, voiceChannel, resolver)

	m.notificationHandler = application.NewNotificationEventHandler(notifier, userInfo, m.eventBus)
	if err := m.notificationHandler.Start(); err != nil {
		return err
	}

	botID, err := snowflake.Parse(deps.Session.State.User.ID)
	if err != nil {
		return fmt.Errorf("failed to parse bot ID: %w", err)
	}
	m.commandHandlers = discord.NewCommandHandlers(playback, voiceChannel)
	m.autocomplete = discord.NewAutocompleteHandler(resolver)
	m.eventHandlers = discord.NewEventHandlers(botID, voiceChannel)

	slog.Info("music_player module initialized",
		"backend", m.config.Backend,
		"catalog", m.config.CatalogEnabled(),
	)

	return nil
}

// playbackBackend builds the voice, source and player ports for the
// configured backend.
func (m *MusicPlayerModule) playbackBackend(
	session *discordgo.Session,
	ytdlp *infrastructure.YtdlpClient,
	retry infrastructure.RetryConfig,
) (usecases.SessionDeps, error) {
	if m.config.Backend == BackendLavalink {
		adapter, err := infrastructure.NewLavalinkAdapter(m.ctx, session, infrastructure.LavalinkConfig{
			Address:  m.config.LavalinkAddress,
			Password: m.config.LavalinkPassword,
			Secure:   m.config.LavalinkSecure,
		}, retry)
		if err != nil {
			return usecases.SessionDeps{}, err
		}
		m.lavalinkAdapter = adapter
		return usecases.SessionDeps{
			Voice:   adapter,
			Sources: adapter,
			Player:  adapter,
		}, nil
	}

	voice := infrastructure.NewDiscordVoiceAdapter(session)
	return usecases.SessionDeps{
		Voice:   voice,
		Sources: infrastructure.NewFFmpegSourceFactory(m.config.FFmpegPath, ytdlp),
		Player:  voice,
	}, nil
}

// Shutdown stops every guild session, then the event bus and the
// Lavalink connection.
func (m *MusicPlayerModule) Shutdown() error {
	var errs []error

	if m.sessions != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := m.sessions.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shut down sessions: %w", err))
		}
	}

	if m.cancel != nil {
		m.cancel()
	}

	if m.eventBus != nil {
		m.eventBus.Close()
	}

	if m.lavalinkAdapter != nil {
		m.lavalinkAdapter.Close()
	}

	return errors.Join(errs...)
}

// Event handlers.

func (m *MusicPlayerModule) handleVoiceServerUpdate(
	_ *discordgo.Session,
	event *discordgo.VoiceServerUpdate,
) {
	if m.lavalinkAdapter != nil {
		m.lavalinkAdapter.OnVoiceServerUpdate(event)
	}
}

func (m *MusicPlayerModule) handleVoiceStateUpdate(
	s *discordgo.Session,
	event *discordgo.VoiceStateUpdate,
) {
	if m.lavalinkAdapter != nil {
		m.lavalinkAdapter.OnVoiceStateUpdate(event)
	}
	if m.eventHandlers != nil {
		m.eventHandlers.HandleVoiceStateUpdate(s, event)
	}
}
