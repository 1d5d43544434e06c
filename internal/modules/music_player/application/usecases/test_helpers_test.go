package usecases

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/sgrmusic/internal/modules/music_player/application/ports"
	"github.com/sglre6355/sgrmusic/internal/modules/music_player/domain"
)

const (
	testGuildID        = snowflake.ID(1)
	testVoiceChannelID = snowflake.ID(100)
	testOtherChannelID = snowflake.ID(200)
	testTextChannelID  = snowflake.ID(300)
	testUserID         = snowflake.ID(123)
)

func mockTrack(title string) domain.Track {
	return domain.NewTrack(
		title,
		"https://www.youtube.com/watch?v="+title,
		"",
	)
}

func trackTitles(tracks []domain.Track) []string {
	titles := make([]string, len(tracks))
	for i, track := range tracks {
		titles[i] = track.Title
	}
	return titles
}

// waitFor polls cond until it holds or the test times out.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitForNowPlaying(t *testing.T, session *GuildSession, title string) {
	t.Helper()
	waitFor(t, "now playing "+title, func() bool {
		np := session.Snapshot().NowPlaying
		return np != nil && np.Title == title
	})
}

func waitForIdle(t *testing.T, session *GuildSession) {
	t.Helper()
	waitFor(t, "idle session", func() bool {
		snap := session.Snapshot()
		return snap.State == domain.SessionIdle && snap.VoiceChannelID == 0
	})
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type mockVoiceConnector struct {
	mu      sync.Mutex
	joinErr error
	calls   []string
}

func (m *mockVoiceConnector) Join(_ context.Context, _, channelID snowflake.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.joinErr != nil {
		return m.joinErr
	}
	m.calls = append(m.calls, fmt.Sprintf("join:%d", channelID))
	return nil
}

func (m *mockVoiceConnector) Move(_ context.Context, _, channelID snowflake.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, fmt.Sprintf("move:%d", channelID))
	return nil
}

func (m *mockVoiceConnector) Leave(_ context.Context, _ snowflake.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, "leave")
	return nil
}

func (m *mockVoiceConnector) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]string(nil), m.calls...)
}

type mockSource struct {
	track  domain.Track
	closed atomic.Bool
}

func (s *mockSource) Close() error {
	s.closed.Store(true)
	return nil
}

type mockSourceFactory struct {
	mu       sync.Mutex
	failures map[string]error
	gates    map[string]chan struct{}
}

func newMockSourceFactory() *mockSourceFactory {
	return &mockSourceFactory{
		failures: make(map[string]error),
		gates:    make(map[string]chan struct{}),
	}
}

// failOn makes source creation fail for the given title.
func (m *mockSourceFactory) failOn(title string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[title] = err
}

// hold blocks source creation for the given title until the returned
// channel is closed or the load is cancelled.
func (m *mockSourceFactory) hold(title string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	gate := make(chan struct{})
	m.gates[title] = gate
	return gate
}

func (m *mockSourceFactory) CreateSource(
	ctx context.Context,
	track domain.Track,
) (ports.AudioSource, error) {
	m.mu.Lock()
	err := m.failures[track.Title]
	gate := m.gates[track.Title]
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &mockSource{track: track}, nil
}

type mockPlayback struct {
	track domain.Track
	done  chan error
	once  sync.Once

	mu      sync.Mutex
	paused  bool
	stopped bool
}

func newMockPlayback(track domain.Track) *mockPlayback {
	return &mockPlayback{
		track: track,
		done:  make(chan error, 1),
	}
}

func (p *mockPlayback) Done() <-chan error {
	return p.done
}

func (p *mockPlayback) SetPaused(paused bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = paused
	return nil
}

func (p *mockPlayback) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.finish(nil)
}

// finish ends the playback as the decoder would.
func (p *mockPlayback) finish(err error) {
	p.once.Do(func() {
		p.done <- err
	})
}

func (p *mockPlayback) isPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

type mockAudioPlayer struct {
	mu        sync.Mutex
	playErr   error
	playbacks []*mockPlayback
}

func (m *mockAudioPlayer) Play(
	_ context.Context,
	_ snowflake.ID,
	source ports.AudioSource,
) (ports.Playback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.playErr != nil {
		return nil, m.playErr
	}
	src, ok := source.(*mockSource)
	if !ok {
		return nil, ports.ErrUnsupportedSource
	}

	playback := newMockPlayback(src.track)
	m.playbacks = append(m.playbacks, playback)
	return playback, nil
}

// Started returns the titles of every track handed to the player, in order.
func (m *mockAudioPlayer) Started() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	titles := make([]string, len(m.playbacks))
	for i, playback := range m.playbacks {
		titles[i] = playback.track.Title
	}
	return titles
}

// Last returns the most recent playback.
func (m *mockAudioPlayer) Last() *mockPlayback {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.playbacks) == 0 {
		return nil
	}
	return m.playbacks[len(m.playbacks)-1]
}

type mockPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (m *mockPublisher) Publish(event domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *mockPublisher) Events() []domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Event(nil), m.events...)
}

// count returns how many published events satisfy match.
func (m *mockPublisher) count(match func(domain.Event) bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, event := range m.events {
		if match(event) {
			n++
		}
	}
	return n
}

func isTrackFailed(event domain.Event) bool {
	_, ok := event.(domain.TrackFailedEvent)
	return ok
}

func isQueueExhausted(event domain.Event) bool {
	_, ok := event.(domain.QueueExhaustedEvent)
	return ok
}

type mockVoiceStateProvider struct {
	channelID snowflake.ID
	err       error
}

func (m *mockVoiceStateProvider) GetUserVoiceChannel(_, _ snowflake.ID) (snowflake.ID, error) {
	return m.channelID, m.err
}

type mockSearcher struct {
	mu          sync.Mutex
	results     map[string]domain.Track
	errs        map[string]error
	gates       map[string]chan struct{}
	queries     []string
	suggestions []ports.Suggestion
}

func newMockSearcher() *mockSearcher {
	return &mockSearcher{
		results: make(map[string]domain.Track),
		errs:    make(map[string]error),
		gates:   make(map[string]chan struct{}),
	}
}

// hold blocks searches for terms until the returned channel is closed.
func (m *mockSearcher) hold(terms string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	gate := make(chan struct{})
	m.gates[terms] = gate
	return gate
}

func (m *mockSearcher) Search(ctx context.Context, terms string) (domain.Track, error) {
	m.mu.Lock()
	gate := m.gates[terms]
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return domain.Track{}, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.queries = append(m.queries, terms)
	if err := m.errs[terms]; err != nil {
		return domain.Track{}, err
	}
	track, ok := m.results[terms]
	if !ok {
		return domain.Track{}, ports.ErrNotFound
	}
	return track, nil
}

func (m *mockSearcher) Suggest(_ context.Context, _ string, limit int) ([]ports.Suggestion, error) {
	if limit < len(m.suggestions) {
		return m.suggestions[:limit], nil
	}
	return m.suggestions, nil
}

func (m *mockSearcher) Queries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.queries...)
}

type mockLookup struct {
	tracks []domain.Track
	err    error
}

func (m *mockLookup) Lookup(_ context.Context, _ string) ([]domain.Track, error) {
	return m.tracks, m.err
}

type mockCatalog struct {
	collection domain.CatalogCollection
	err        error
}

func (m *mockCatalog) Resolve(
	_ context.Context,
	_ domain.CatalogLink,
) (domain.CatalogCollection, error) {
	return m.collection, m.err
}

var errTransient = errors.New("connection reset by peer")

type sessionFixture struct {
	voice     *mockVoiceConnector
	sources   *mockSourceFactory
	player    *mockAudioPlayer
	publisher *mockPublisher
}

func newSessionFixture() *sessionFixture {
	return &sessionFixture{
		voice:     &mockVoiceConnector{},
		sources:   newMockSourceFactory(),
		player:    &mockAudioPlayer{},
		publisher: &mockPublisher{},
	}
}

func (f *sessionFixture) deps() SessionDeps {
	return SessionDeps{
		Voice:     f.voice,
		Sources:   f.sources,
		Player:    f.player,
		Publisher: f.publisher,
	}
}

// setupSession starts a session that is closed when the test ends.
func setupSession(t *testing.T, f *sessionFixture) *GuildSession {
	t.Helper()

	session := NewGuildSession(context.Background(), testGuildID, f.deps(), DefaultSessionConfig())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = session.Close(ctx)
	})
	return session
}

// setupConnectedSession starts a session already joined to testVoiceChannelID.
func setupConnectedSession(t *testing.T, f *sessionFixture) *GuildSession {
	t.Helper()

	session := setupSession(t, f)
	if _, err := session.EnsureVoice(context.Background(), testVoiceChannelID, testTextChannelID); err != nil {
		t.Fatalf("EnsureVoice() error = %v", err)
	}
	return session
}
