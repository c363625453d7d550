// Package server exposes the recording hub over HTTP.
package server

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/synheart/synheart-recorder/internal/export"
	"github.com/synheart/synheart-recorder/internal/hub"
	"github.com/synheart/synheart-recorder/internal/metrics"
	"github.com/synheart/synheart-recorder/internal/models"
	"golang.org/x/time/rate"
)

const maxBodySize = 10 * 1024 * 1024

// Config holds the control server configuration.
type Config struct {
	Addr       string
	Token      string
	AcceptGzip bool

	// EventsPerSecond limits POST /v1/events. Zero disables the limit.
	EventsPerSecond float64
	Burst           int
}

// Server is the HTTP control surface of a Hub.
type Server struct {
	config     Config
	hub        *hub.Hub
	metrics    *metrics.Metrics
	logger     *slog.Logger
	limiter    *rate.Limiter
	idempotent *IdempotencyStore
	server     *http.Server
	mu         sync.RWMutex
	stats      Stats
}

// Stats holds request statistics.
type Stats struct {
	TotalReceived   int `json:"totalReceived"`
	TotalDuplicates int `json:"totalDuplicates"`
	TotalRejected   int `json:"totalRejected"`
	TotalErrors     int `json:"totalErrors"`
}

func New(config Config, h *hub.Hub, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{
		config:     config,
		hub:        h,
		metrics:    m,
		logger:     logger.With("component", "server"),
		idempotent: NewIdempotencyStore(DefaultIdempotencyTTL),
	}
	if config.EventsPerSecond > 0 {
		burst := config.Burst
		if burst <= 0 {
			burst = int(config.EventsPerSecond) + 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(config.EventsPerSecond), burst)
	}
	return s
}

// Handler returns the routed, authenticated and logged handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleRoot)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	mux.Handle("POST /v1/recording/start", s.auth(s.handleStart))
	mux.Handle("POST /v1/recording/stop", s.auth(s.handleStop))
	mux.Handle("POST /v1/recording/pause", s.auth(s.handlePause))
	mux.Handle("POST /v1/recording/resume", s.auth(s.handleResume))
	mux.Handle("POST /v1/recording/clear", s.auth(s.handleClear))
	mux.Handle("POST /v1/events", s.auth(s.limit(s.handleAddEvents)))
	mux.Handle("GET /v1/events", s.auth(s.handleEntries))
	mux.Handle("GET /v1/stats", s.auth(s.handleStats))
	mux.Handle("GET /v1/export", s.auth(s.handleExport))
	mux.Handle("GET /v1/formats", s.auth(s.handleFormats))

	return s.logRequests(mux)
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("control API listening", "addr", s.Address())
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown()
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) Address() string {
	return "http://" + s.config.Addr
}

func (s *Server) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

func (s *Server) count(fn func(*Stats)) {
	s.mu.Lock()
	fn(&s.stats)
	s.mu.Unlock()
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service":  "synheart-recorder",
		"version":  "1.0.0",
		"endpoint": "/v1/recording",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type startRequest struct {
	Name string `json:"name"`
}

type stateResponse struct {
	Changed   bool      `json:"changed"`
	State     hub.State `json:"state"`
	SessionID string    `json:"sessionId,omitempty"`
}

func (s *Server) stateResponse(changed bool) stateResponse {
	resp := stateResponse{Changed: changed, State: s.hub.State()}
	if cur := s.hub.Current(); cur != nil {
		resp.SessionID = cur.ID()
	}
	return resp
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	body, err := s.readBody(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body: "+err.Error())
		return
	}
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, s.stateResponse(s.hub.Start(req.Name)))
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	info, ok := s.hub.Stop()
	if !ok {
		writeJSON(w, http.StatusOK, s.stateResponse(false))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"changed": true,
		"state":   s.hub.State(),
		"session": info,
	})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.stateResponse(s.hub.Pause()))
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.stateResponse(s.hub.Resume()))
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.stateResponse(s.hub.Clear()))
}

// handleAddEvents accepts one tagged event object or an array of them.
// Missing ids and timestamps are filled in.
func (s *Server) handleAddEvents(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		s.count(func(st *Stats) { st.TotalErrors++ })
		s.writeError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}

	key := r.Header.Get("Idempotency-Key")
	if key != "" && s.idempotent.Exists(key) {
		s.count(func(st *Stats) { st.TotalDuplicates++ })
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "duplicate": true, "recorded": 0})
		return
	}

	body, err := s.readBody(r)
	if err != nil {
		s.count(func(st *Stats) { st.TotalErrors++ })
		s.writeError(w, http.StatusBadRequest, "failed to read request body: "+err.Error())
		return
	}

	events, err := decodeEvents(body)
	if err != nil {
		s.count(func(st *Stats) { st.TotalErrors++ })
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var recorded []int64
	for _, e := range events {
		stamped, err := s.hub.AddEvent(e)
		if err != nil {
			s.count(func(st *Stats) { st.TotalErrors++ })
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if stamped != nil {
			recorded = append(recorded, stamped.Base().SequenceNumber)
		}
	}
	if key != "" {
		s.idempotent.Mark(key)
	}

	s.count(func(st *Stats) {
		st.TotalReceived += len(events)
		st.TotalRejected += len(events) - len(recorded)
	})

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":    "ok",
		"recorded":  len(recorded),
		"dropped":   len(events) - len(recorded),
		"sequences": recorded,
		"state":     s.hub.State(),
	})
}

func (s *Server) handleEntries(w http.ResponseWriter, r *http.Request) {
	entries := s.hub.Entries()
	if entries == nil {
		entries = []models.Event{}
	}
	if after := r.URL.Query().Get("after"); after != "" {
		n, err := strconv.ParseInt(after, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "after must be a sequence number")
			return
		}
		filtered := entries[:0:0]
		for _, e := range entries {
			if e.Base().SequenceNumber > n {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session": s.hub.Info(),
		"events":  entries,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"hub":      s.hub.Stats(),
		"requests": s.GetStats(),
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}

	a, err := s.hub.Render(format)
	if err != nil {
		if errors.Is(err, export.ErrUnsupportedFormat) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", contentType(a.Format))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", a.FileName()))
	w.WriteHeader(http.StatusOK)
	w.Write(a.Data)
}

func (s *Server) handleFormats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"formats": s.hub.Exporters().Formats()})
}

func contentType(format string) string {
	switch format {
	case "json":
		return "application/json"
	case "ndjson":
		return "application/x-ndjson"
	case "yaml":
		return "application/yaml"
	case "protobuf":
		return "application/x-protobuf"
	default:
		return "text/plain; charset=utf-8"
	}
}

// decodeEvents parses and validates a single event or an array of events.
// Nothing is recorded unless every event in the batch is valid.
func decodeEvents(body []byte) ([]models.Event, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil, errors.New("request body is empty")
	}

	var raws []json.RawMessage
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(body, &raws); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
	} else {
		raws = []json.RawMessage{json.RawMessage(trimmed)}
	}

	events := make([]models.Event, 0, len(raws))
	for i, raw := range raws {
		filled, err := fillEnvelope(raw)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		e, err := models.UnmarshalEvent(filled)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		if e, err = models.Normalize(e); err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		events = append(events, e)
	}
	return events, nil
}

// fillEnvelope sets id and timestamp when the client left them out.
func fillEnvelope(raw json.RawMessage) ([]byte, error) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if fields == nil {
		return nil, errors.New("event must be a JSON object")
	}
	base := models.NewBase("", "")
	if id, _ := fields["id"].(string); id == "" {
		fields["id"] = base.ID
	}
	if ts, _ := fields["timestamp"].(string); ts == "" {
		fields["timestamp"] = base.Timestamp.Format(time.RFC3339Nano)
	}
	return json.Marshal(fields)
}

func (s *Server) readBody(r *http.Request) ([]byte, error) {
	var reader io.Reader = r.Body

	if s.config.AcceptGzip && r.Header.Get("Content-Encoding") == "gzip" {
		gzReader, err := gzip.NewReader(r.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress gzip: %w", err)
		}
		defer gzReader.Close()
		reader = gzReader
	}

	return io.ReadAll(io.LimitReader(reader, maxBodySize))
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// DefaultIdempotencyTTL is how long a processed request key is remembered.
const DefaultIdempotencyTTL = 24 * time.Hour

// IdempotencyStore tracks processed request keys. Keys older than the TTL
// are forgotten and pruned as new keys are marked.
type IdempotencyStore struct {
	seen      map[string]time.Time
	ttl       time.Duration
	lastSweep time.Time
	now       func() time.Time
	mu        sync.RWMutex
}

func NewIdempotencyStore(ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	return &IdempotencyStore{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

func (s *IdempotencyStore) Exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	at, exists := s.seen[id]
	return exists && s.now().Sub(at) < s.ttl
}

func (s *IdempotencyStore) Mark(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if now.Sub(s.lastSweep) >= s.ttl/10 {
		for key, at := range s.seen {
			if now.Sub(at) >= s.ttl {
				delete(s.seen, key)
			}
		}
		s.lastSweep = now
	}
	s.seen[id] = now
}

// Len returns the number of remembered keys.
func (s *IdempotencyStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.seen)
}
