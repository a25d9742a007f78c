// Package http exposes the heatmap service over HTTP: health and
// metrics endpoints, stateless PNG rendering routes, and the stateful
// session API with an SSE frame stream.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flywaylab/bird-heatmap-service/internal/config"
	"github.com/flywaylab/bird-heatmap-service/internal/dataset"
	"github.com/flywaylab/bird-heatmap-service/internal/domain"
	"github.com/flywaylab/bird-heatmap-service/internal/playback"
	"github.com/flywaylab/bird-heatmap-service/internal/render"
)

const (
	minViewportPx = 64
	maxViewportPx = 4096

	defaultLegendHeight = 80
	defaultTrendWidth   = 640
	defaultTrendHeight  = 320
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Server wires the HTTP routes to the dataset store, renderer, and
// session manager.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger

	store    *dataset.Store
	sessions *playback.Manager
	renderer *render.Renderer
	species  []string

	canvasWidth  int
	canvasHeight int
}

// NewServer creates the HTTP server with all routes registered.
func NewServer(cfg *config.Config, store *dataset.Store, sessions *playback.Manager, renderer *render.Renderer, ready ReadinessChecker, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		// No WriteTimeout: the SSE stream holds its response open for
		// the lifetime of the session.
		httpServer: &http.Server{
			Addr:        cfg.HTTPAddr,
			Handler:     mux,
			ReadTimeout: 10 * time.Second,
			IdleTimeout: 60 * time.Second,
		},
		logger:       logger,
		store:        store,
		sessions:     sessions,
		renderer:     renderer,
		species:      cfg.Species,
		canvasWidth:  cfg.CanvasWidth,
		canvasHeight: cfg.CanvasHeight,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /v1/species", s.handleListSpecies)
	mux.HandleFunc("GET /v1/species/{key}/frames/{index}", s.handleFrame)
	mux.HandleFunc("GET /v1/species/{key}/legend", s.handleLegend)
	mux.HandleFunc("GET /v1/species/{key}/trend", s.handleTrend)

	mux.HandleFunc("POST /v1/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("POST /v1/sessions/{id}/select", s.handleSelect)
	mux.HandleFunc("POST /v1/sessions/{id}/play", s.handlePlay)
	mux.HandleFunc("POST /v1/sessions/{id}/pause", s.handlePause)
	mux.HandleFunc("POST /v1/sessions/{id}/speed", s.handleSpeed)
	mux.HandleFunc("POST /v1/sessions/{id}/seek", s.handleSeek)
	mux.HandleFunc("POST /v1/sessions/{id}/viewport", s.handleViewport)
	mux.HandleFunc("GET /v1/sessions/{id}/frame", s.handleSessionFrame)
	mux.HandleFunc("GET /v1/sessions/{id}/stream", s.handleStream)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func (s *Server) handleListSpecies(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"species": s.species})
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "frame index must be an integer")
		return
	}
	width, height, ok := s.viewportParams(w, r)
	if !ok {
		return
	}

	ds, ok := s.loadDataset(w, r, r.PathValue("key"))
	if !ok {
		return
	}

	proj := domain.FitProjection(ds.Scales.Bounds, width, height)
	png, err := s.renderer.RenderFrame(ds, proj, index)
	if err != nil {
		s.renderFailed(w, "frame", err)
		return
	}
	writePNG(w, png)
}

func (s *Server) handleLegend(w http.ResponseWriter, r *http.Request) {
	width := intQuery(r, "width", s.canvasWidth)
	height := intQuery(r, "height", defaultLegendHeight)

	ds, ok := s.loadDataset(w, r, r.PathValue("key"))
	if !ok {
		return
	}

	png, err := s.renderer.RenderLegend(ds, width, height)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writePNG(w, png)
}

func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	width := intQuery(r, "width", defaultTrendWidth)
	height := intQuery(r, "height", defaultTrendHeight)

	ds, ok := s.loadDataset(w, r, r.PathValue("key"))
	if !ok {
		return
	}

	png, err := s.renderer.RenderTrend(ds, width, height)
	if err != nil {
		s.renderFailed(w, "trend", err)
		return
	}
	writePNG(w, png)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Species string `json:"species"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Species == "" {
		writeError(w, http.StatusBadRequest, "species is required")
		return
	}

	sess, err := s.sessions.Create(r.Context(), body.Species)
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess.State())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.State())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	s.sessions.Delete(sess.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	var body struct {
		Species string `json:"species"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Species == "" {
		writeError(w, http.StatusBadRequest, "species is required")
		return
	}

	if err := sess.Select(r.Context(), body.Species); err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.State())
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	if err := sess.Play(); err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.State())
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	if err := sess.Pause(); err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.State())
}

var allowedSpeeds = map[float64]bool{1: true, 2: true, 4: true}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	var body struct {
		Speed float64 `json:"speed"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if !allowedSpeeds[body.Speed] {
		writeError(w, http.StatusBadRequest, "speed must be one of 1, 2, 4")
		return
	}

	if err := sess.SetSpeed(body.Speed); err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.State())
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	var body struct {
		Frame int `json:"frame"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	if _, err := sess.Seek(body.Frame); err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.State())
}

func (s *Server) handleViewport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	var body struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if !validViewport(body.Width) || !validViewport(body.Height) {
		writeError(w, http.StatusBadRequest, "viewport dimensions out of range")
		return
	}

	sess.Resize(body.Width, body.Height)
	writeJSON(w, http.StatusAccepted, sess.State())
}

// handleSessionFrame renders the session's current frame through its own
// projection, so a viewport change shows up here after the debounce.
func (s *Server) handleSessionFrame(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	ds, proj, index, ok := sess.Snapshot()
	if !ok {
		writeError(w, http.StatusNotFound, "no data available")
		return
	}

	png, err := s.renderer.RenderFrame(ds, proj, index)
	if err != nil {
		s.renderFailed(w, "frame", err)
		return
	}
	writePNG(w, png)
}

// handleStream pushes frame-change events over SSE until the client
// disconnects or the session closes.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events, cancel := sess.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// Prime the client with the current position.
	st := sess.State()
	if st.FrameCount > 0 {
		week := ""
		if st.FrameIndex < len(st.Weeks) {
			week = st.Weeks[st.FrameIndex]
		}
		writeSSE(w, playback.FrameEvent{Index: st.FrameIndex, Week: week})
		flusher.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			writeSSE(w, ev)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev playback.FrameEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	w.Write([]byte("event: frame\ndata: ")) //nolint:errcheck // best-effort stream write
	w.Write(data)                           //nolint:errcheck
	w.Write([]byte("\n\n"))                 //nolint:errcheck
}

// loadDataset fetches a dataset or writes the fail-closed 404.
func (s *Server) loadDataset(w http.ResponseWriter, r *http.Request, species string) (*domain.Dataset, bool) {
	ds, err := s.store.Get(r.Context(), species)
	if err != nil {
		writeError(w, http.StatusNotFound, "no data available")
		return nil, false
	}
	return ds, true
}

func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request) (*playback.Session, bool) {
	sess, ok := s.sessions.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return sess, true
}

// writeSessionError maps session and store errors onto the API's error
// taxonomy: missing data is 404, disabled controls and superseded
// selections are 409, everything else is a 500.
func (s *Server) writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dataset.ErrNoData):
		writeError(w, http.StatusNotFound, "no data available")
	case errors.Is(err, playback.ErrNotPlayable):
		writeError(w, http.StatusConflict, "playback controls disabled")
	case errors.Is(err, playback.ErrSuperseded):
		writeError(w, http.StatusConflict, "selection superseded by a newer one")
	case errors.Is(err, playback.ErrClosed):
		writeError(w, http.StatusNotFound, "session not found")
	default:
		s.logger.Error("session operation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) renderFailed(w http.ResponseWriter, kind string, err error) {
	s.logger.Error("render failed", "kind", kind, "error", err)
	writeError(w, http.StatusInternalServerError, "render failed")
}

func (s *Server) viewportParams(w http.ResponseWriter, r *http.Request) (width, height int, ok bool) {
	width = intQuery(r, "width", s.canvasWidth)
	height = intQuery(r, "height", s.canvasHeight)
	if !validViewport(width) || !validViewport(height) {
		writeError(w, http.StatusBadRequest, "viewport dimensions out of range")
		return 0, 0, false
	}
	return width, height, true
}

func validViewport(px int) bool {
	return px >= minViewportPx && px <= maxViewportPx
}

func intQuery(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return -1 // forces the range check to reject it
	}
	return v
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writePNG(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data) //nolint:errcheck // best-effort image response
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
