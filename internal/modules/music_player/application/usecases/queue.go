package usecases

import (
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/sgrmusic/internal/modules/music_player/domain"
)

// QueueInput contains the input for the Queue use case.
type QueueInput struct {
	GuildID  snowflake.ID
	Page     int // 0-indexed page number, clamped into range
	PageSize int // Items per page (optional, defaults to domain.DefaultPageSize)
}

// QueueOutput contains the result of the Queue use case.
type QueueOutput struct {
	NowPlaying *domain.Track
	Paused     bool
	Page       domain.QueuePage
}

// QueueService presents guild queues.
type QueueService struct {
	sessions *SessionManager
}

// NewQueueService creates a new QueueService.
func NewQueueService(sessions *SessionManager) *QueueService {
	return &QueueService{
		sessions: sessions,
	}
}

// Page returns one page of the guild's queue taken from a fresh snapshot.
// Guilds without a session have an empty queue.
func (q *QueueService) Page(input QueueInput) *QueueOutput {
	var snapshot domain.SessionSnapshot
	if session, ok := q.sessions.Get(input.GuildID); ok {
		snapshot = session.Snapshot()
	}

	return &QueueOutput{
		NowPlaying: snapshot.NowPlaying,
		Paused:     snapshot.Paused,
		Page:       domain.Paginate(snapshot.Queue, input.Page, input.PageSize),
	}
}
