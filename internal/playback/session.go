package playback

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/flywaylab/bird-heatmap-service/internal/dataset"
	"github.com/flywaylab/bird-heatmap-service/internal/domain"
	"github.com/flywaylab/bird-heatmap-service/internal/observability"
)

// ErrSuperseded is returned from Select when a newer selection was made
// while this one's fetch was in flight. The stale result is discarded,
// never applied, so only the most recent selection ever renders.
var ErrSuperseded = errors.New("selection superseded by a newer one")

// ErrClosed is returned by operations on a deleted session.
var ErrClosed = errors.New("session closed")

// Session owns one client's heatmap state: the selected dataset, its
// viewport projection, the playback controller, and the event
// subscribers. Everything the browser-side player kept in globals lives
// here explicitly.
type Session struct {
	ID string

	store        *dataset.Store
	clock        clockwork.Clock
	logger       *slog.Logger
	metrics      *observability.Metrics
	baseInterval time.Duration
	debounce     time.Duration

	loadGen atomic.Uint64

	mu          sync.Mutex
	species     string
	ds          *domain.Dataset
	ctrl        *Controller
	width       int
	height      int
	proj        domain.Projection
	resizeTimer clockwork.Timer
	pendingW    int
	pendingH    int
	subs        map[chan FrameEvent]struct{}
	closed      bool
}

// State is a snapshot of session state for API responses.
type State struct {
	ID              string   `json:"id"`
	Species         string   `json:"species"`
	SpeciesName     string   `json:"speciesName,omitempty"`
	FrameCount      int      `json:"frameCount"`
	FrameIndex      int      `json:"frameIndex"`
	Playing         bool     `json:"playing"`
	Speed           float64  `json:"speed"`
	ControlsEnabled bool     `json:"controlsEnabled"`
	Weeks           []string `json:"weeks"`
}

func newSession(store *dataset.Store, clk clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Session {
	return &Session{
		ID:           newSessionID(),
		store:        store,
		clock:        clk,
		logger:       logger,
		metrics:      metrics,
		baseInterval: opts.FrameInterval,
		debounce:     opts.ResizeDebounce,
		width:        opts.CanvasWidth,
		height:       opts.CanvasHeight,
		subs:         make(map[chan FrameEvent]struct{}),
	}
}

// Select loads a species dataset into the session. Rapid re-selection is
// safe: each call bumps a load generation before fetching, and a fetch
// that resolves after a newer Select returns ErrSuperseded without
// touching session state. On success, playback resets to frame 0,
// stopped, speed 1, and subscribers are told about the reset.
func (s *Session) Select(ctx context.Context, species string) error {
	gen := s.loadGen.Add(1)

	ds, err := s.store.Get(ctx, species)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if gen != s.loadGen.Load() {
		s.mu.Unlock()
		s.metrics.SupersededLoads.Inc()
		s.logger.Debug("stale dataset load discarded", "session", s.ID, "species", species)
		return ErrSuperseded
	}
	if err != nil {
		// Prior state (or the empty state) stays visible; no partial apply.
		s.mu.Unlock()
		return err
	}

	prev := s.ctrl
	s.species = species
	s.ds = ds
	s.ctrl = NewController(ds.Weeks(), s.baseInterval, s.clock, s.onTick)
	s.proj = domain.FitProjection(ds.Scales.Bounds, s.width, s.height)
	ev := FrameEvent{Index: 0, Week: ds.Frames[0].Week}
	s.mu.Unlock()

	// Silence the old controller before announcing the reset, so a tick
	// already in flight cannot land after it.
	if prev != nil {
		prev.Pause()
	}
	s.broadcast(ev)
	return nil
}

// Play starts autoplay. Returns ErrNotPlayable for single-frame datasets.
func (s *Session) Play() error {
	ctrl, err := s.controller()
	if err != nil {
		return err
	}
	return ctrl.Play()
}

// Pause stops autoplay. Idempotent.
func (s *Session) Pause() error {
	ctrl, err := s.controller()
	if err != nil {
		return err
	}
	ctrl.Pause()
	return nil
}

// SetSpeed changes the playback speed, restarting a running timer.
func (s *Session) SetSpeed(multiplier float64) error {
	ctrl, err := s.controller()
	if err != nil {
		return err
	}
	return ctrl.SetSpeed(multiplier)
}

// Seek jumps to a frame (clamped) and broadcasts it immediately, without
// disturbing a running timer.
func (s *Session) Seek(index int) (FrameEvent, error) {
	ctrl, err := s.controller()
	if err != nil {
		return FrameEvent{}, err
	}
	ev := ctrl.Seek(index)
	s.broadcast(ev)
	return ev, nil
}

// Resize records a new viewport and schedules a debounced projection
// rebuild, so a burst of resize events does one recomputation.
func (s *Session) Resize(width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.pendingW, s.pendingH = width, height
	if s.resizeTimer == nil {
		s.resizeTimer = s.clock.AfterFunc(s.debounce, s.applyResize)
		return
	}
	s.resizeTimer.Reset(s.debounce)
}

func (s *Session) applyResize() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.width, s.height = s.pendingW, s.pendingH
	s.resizeTimer = nil
	if s.ds != nil {
		s.proj = domain.FitProjection(s.ds.Scales.Bounds, s.width, s.height)
	}
	s.logger.Debug("viewport resized", "session", s.ID, "width", s.width, "height", s.height)
}

// Snapshot returns what the renderer needs for the session's current
// frame. ok is false before the first successful Select.
func (s *Session) Snapshot() (ds *domain.Dataset, proj domain.Projection, index int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ds == nil {
		return nil, domain.Projection{}, 0, false
	}
	index, _, _ = s.ctrl.State()
	return s.ds, s.proj, index, true
}

// State returns the session snapshot for API responses.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{ID: s.ID, Species: s.species}
	if s.ds == nil {
		return st
	}
	st.SpeciesName = s.ds.SpeciesName
	st.FrameCount = s.ds.FrameCount()
	st.ControlsEnabled = s.ds.Playable()
	st.Weeks = s.ds.Weeks()
	st.FrameIndex, st.Playing, st.Speed = s.ctrl.State()
	return st
}

// Subscribe registers a frame-event listener. Slow consumers drop events
// rather than stall playback. The returned cancel removes the listener.
func (s *Session) Subscribe() (<-chan FrameEvent, func()) {
	ch := make(chan FrameEvent, 16)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// Close stops playback and releases all subscribers.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	ctrl := s.ctrl
	if s.resizeTimer != nil {
		s.resizeTimer.Stop()
		s.resizeTimer = nil
	}
	for ch := range s.subs {
		close(ch)
	}
	s.subs = map[chan FrameEvent]struct{}{}
	s.mu.Unlock()

	if ctrl != nil {
		ctrl.Pause()
	}
}

// onTick is the controller's notify hook for timer-driven advances.
func (s *Session) onTick(ev FrameEvent) {
	s.metrics.PlaybackTicks.Inc()
	s.broadcast(ev)
}

func (s *Session) broadcast(ev FrameEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for ch := range s.subs {
		select {
		case ch <- ev:
		default: // drop for slow consumers
		}
	}
}

func (s *Session) controller() (*Controller, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.ctrl == nil {
		return nil, ErrNotPlayable
	}
	return s.ctrl, nil
}

func newSessionID() string {
	var b [8]byte
	rand.Read(b[:]) //nolint:errcheck // crypto/rand never fails
	return hex.EncodeToString(b[:])
}
