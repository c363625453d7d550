package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/synheart/synheart-recorder/internal/hub"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // dashboards run on localhost
	},
}

// WebSocketServer pushes hub notifications to WebSocket clients.
type WebSocketServer struct {
	addr    string
	logger  *slog.Logger
	clients  map[*websocket.Conn]bool
	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

func NewWebSocketServer(addr string, logger *slog.Logger) *WebSocketServer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &WebSocketServer{
		addr:    addr,
		logger:  logger.With("component", "websocket"),
		clients: make(map[*websocket.Conn]bool),
	}
}

// Handler returns the WebSocket routes: /ws and an info page at /.
func (s *WebSocketServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/", s.handleRoot)
	return mux
}

// Listen binds the server address. Address reports the bound port
// afterwards, so ":0" can be used.
func (s *WebSocketServer) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	s.addr = ln.Addr().String()
	return nil
}

// Start serves until ctx is cancelled. It binds first unless Listen was
// already called, and returns bind and serve errors.
func (s *WebSocketServer) Start(ctx context.Context) error {
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
		s.logger.Info("WebSocket server listening", "url", s.Address())
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
			return fmt.Errorf("WebSocket server failed: %w", err)
		}
		return nil
	}
}

func (s *WebSocketServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintf(w, "Synheart Recorder WebSocket\n\nEndpoint: %s\nConnected clients: %d\n", s.Address(), s.ClientCount())
}

func (s *WebSocketServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("failed to upgrade connection", "error", err)
		return
	}

	s.mu.Lock()
	s.clients[conn] = true
	clientCount := len(s.clients)
	s.mu.Unlock()

	s.logger.Debug("client connected", "remote", r.RemoteAddr, "clients", clientCount)

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		clientCount := len(s.clients)
		s.mu.Unlock()

		conn.Close()
		s.logger.Debug("client disconnected", "clients", clientCount)
	}()

	// Dashboards only listen; reading detects disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// Broadcast sends a notification to every connected client.
func (s *WebSocketServer) Broadcast(n hub.Notification) error {
	data, err := encode(n)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for client := range s.clients {
		_ = client.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			s.logger.Debug("failed to send to client", "error", err)
		}
	}
	return nil
}

// Follow broadcasts notifications until ctx is done or the channel closes.
func (s *WebSocketServer) Follow(ctx context.Context, notifications <-chan hub.Notification) error {
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

func (s *WebSocketServer) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Shutdown closes every client and stops the server.
func (s *WebSocketServer) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.mu.Lock()
	for client := range s.clients {
		client.Close()
	}
	s.clients = make(map[*websocket.Conn]bool)
	s.mu.Unlock()

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

func (s *WebSocketServer) Address() string {
	return fmt.Sprintf("ws://%s/ws", s.addr)
}
