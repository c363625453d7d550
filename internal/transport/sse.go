package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/synheart/synheart-recorder/internal/hub"
)

// encode renders a notification as a dashboard message.
func encode(n hub.Notification) ([]byte, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("failed to encode notification: %w", err)
	}
	return data, nil
}

type message struct {
	kind hub.NotificationKind
	data []byte
}

// SSEServer streams hub notifications to dashboards via Server-Sent Events.
type SSEServer struct {
	addr    string
	logger  *slog.Logger
	clients  map[chan message]bool
	mu       sync.RWMutex
	server   *http.Server
	listener net.Listener
}

func NewSSEServer(addr string, logger *slog.Logger) *SSEServer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &SSEServer{
		addr:    addr,
		logger:  logger.With("component", "sse"),
		clients: make(map[chan message]bool),
	}
}

// Handler returns the SSE routes: /events and an info page at /.
func (s *SSEServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", s.handleSSE)
	mux.HandleFunc("/", s.handleRoot)
	return mux
}

// Listen binds the server address. Address reports the bound port
// afterwards.
func (s *SSEServer) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	s.addr = ln.Addr().String()
	return nil
}

// Start serves until ctx is cancelled, binding first unless Listen was
// already called.
func (s *SSEServer) Start(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("SSE server listening", "url", s.Address())
		if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown()
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("SSE server failed: %w", err)
		}
		return nil
	}
}

func (s *SSEServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintf(w, "Synheart Recorder SSE\n\nEndpoint: %s\nConnected clients: %d\n", s.Address(), s.ClientCount())
}

func (s *SSEServer) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	clientChan := make(chan message, 100)
	s.addClient(clientChan)
	defer s.removeClient(clientChan)

	s.logger.Debug("SSE client connected", "remote", r.RemoteAddr, "clients", s.ClientCount())

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-clientChan:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.kind, msg.data)
			flusher.Flush()
		}
	}
}

func (s *SSEServer) addClient(ch chan message) {
	s.mu.Lock()
	s.clients[ch] = true
	s.mu.Unlock()
}

func (s *SSEServer) removeClient(ch chan message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.clients[ch]; exists {
		delete(s.clients, ch)
		close(ch)
		s.logger.Debug("SSE client disconnected", "clients", len(s.clients))
	}
}

// Broadcast sends a notification to every client. Slow clients miss it.
func (s *SSEServer) Broadcast(n hub.Notification) error {
	if s.ClientCount() == 0 {
		return nil
	}

	data, err := encode(n)
	if err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for ch := range s.clients {
		select {
		case ch <- message{kind: n.Kind, data: data}:
		default:
		}
	}
	return nil
}

// Follow broadcasts notifications until ctx is done or the channel closes.
func (s *SSEServer) Follow(ctx context.Context, notifications <-chan hub.Notification) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-notifications:
			if !ok {
				return nil
			}
			if err := s.Broadcast(n); err != nil {
				s.logger.Warn("broadcast failed", "error", err)
			}
		}
	}
}

func (s *SSEServer) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Shutdown disconnects every client and stops the server.
func (s *SSEServer) Shutdown() error {
	s.mu.Lock()
	for ch := range s.clients {
		close(ch)
	}
	s.clients = make(map[chan message]bool)
	s.mu.Unlock()

	if s.server != nil {
		return s.server.Close()
	}
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

func (s *SSEServer) Address() string {
	return fmt.Sprintf("http://%s/events", s.addr)
}
