package usecases

import (
	"context"
	"sync"

	"github.com/disgoorg/snowflake/v2"
	"golang.org/x/sync/errgroup"
)

// SessionManager maps guilds to their sessions, creating them on first use.
// Sessions are kept after they go idle.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[snowflake.ID]*GuildSession
	deps     SessionDeps
	cfg      SessionConfig
	ctx      context.Context
	cancel   context.CancelFunc
	closed   bool
}

// NewSessionManager creates a new SessionManager.
func NewSessionManager(deps SessionDeps, cfg SessionConfig) *SessionManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &SessionManager{
		sessions: make(map[snowflake.ID]*GuildSession),
		deps:     deps,
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Get returns the session for a guild if one exists.
func (m *SessionManager) Get(guildID snowflake.ID) (*GuildSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[guildID]
	return session, ok
}

// GetOrCreate returns the session for a guild, creating it if needed.
func (m *SessionManager) GetOrCreate(guildID snowflake.ID) (*GuildSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrSessionClosed
	}
	if session, ok := m.sessions[guildID]; ok {
		return session, nil
	}

	session := NewGuildSession(m.ctx, guildID, m.deps, m.cfg)
	m.sessions[guildID] = session
	return session, nil
}

// Shutdown closes every session in parallel and waits for them to leave voice.
func (m *SessionManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	sessions := make([]*GuildSession, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	m.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, session := range sessions {
		g.Go(func() error {
			return session.Close(ctx)
		})
	}
	err := g.Wait()
	m.cancel()
	return err
}
