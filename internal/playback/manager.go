package playback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/flywaylab/bird-heatmap-service/internal/dataset"
	"github.com/flywaylab/bird-heatmap-service/internal/observability"
)

// Options carries the playback-related configuration into the manager.
type Options struct {
	FrameInterval  time.Duration
	ResizeDebounce time.Duration
	CanvasWidth    int
	CanvasHeight   int
}

// Manager tracks live sessions by ID.
type Manager struct {
	store   *dataset.Store
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
	opts    Options

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates an empty session manager.
func NewManager(store *dataset.Store, clk clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Manager {
	return &Manager{
		store:    store,
		clock:    clk,
		logger:   logger,
		metrics:  metrics,
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// Create builds a session and loads its initial species. The session is
// only registered when the load succeeds.
func (m *Manager) Create(ctx context.Context, species string) (*Session, error) {
	s := newSession(m.store, m.clock, m.logger, m.metrics, m.opts)
	if err := s.Select(ctx, species); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.metrics.ActiveSessions.Inc()
	m.logger.Info("session created", "session", s.ID, "species", species)
	return s, nil
}

// Get looks up a session by ID.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Delete closes and removes a session. Unknown IDs are a no-op.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return
	}
	s.Close()
	m.metrics.ActiveSessions.Dec()
	m.logger.Info("session deleted", "session", id)
}

// CloseAll shuts down every session, for service shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
		m.metrics.ActiveSessions.Dec()
	}
}
