// ABOUTME: HTTP status feed for the receiver
// ABOUTME: Websocket status stream, JSON snapshot, Prometheus metrics and health check
package statusfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/micreceiver/micreceiver-go/internal/metrics"
	"github.com/micreceiver/micreceiver-go/pkg/receiver"
)

const (
	pingInterval  = 30 * time.Second
	writeDeadline = 10 * time.Second
	subBuffer     = 64
)

// Source is the part of the receiver the feed reports on
type Source interface {
	State() receiver.State
	Sessions() []receiver.SessionInfo
}

// Config holds status feed configuration
type Config struct {
	// Addr to listen on, e.g. "127.0.0.1:8080"
	Addr string

	// Log provides history and live updates
	Log *receiver.StatusLog

	// Source provides server state and sessions
	Source Source

	// Metrics, if set, is served on /metrics and counts requests
	Metrics *metrics.Metrics

	Logger *zap.SugaredLogger
}

// Server serves the status feed
type Server struct {
	config   Config
	logger   *zap.SugaredLogger
	upgrader websocket.Upgrader
	mux      *http.ServeMux

	httpServer *http.Server
	listener   net.Listener

	// mu orders subscriber registration against Stop
	mu       sync.Mutex
	stopped  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New creates a status feed server
func New(config Config) *Server {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	logger = logger.Named("statusfeed")

	s := &Server{
		config:   config,
		logger:   logger,
		mux:      http.NewServeMux(),
		stopChan: make(chan struct{}),
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // Allow all origins for local network use
		},
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/status", s.handleWebSocket)
	s.mux.HandleFunc("/status.json", s.withMetrics("/status.json", s.handleSnapshot))
	s.mux.HandleFunc("/healthz", s.withMetrics("/healthz", s.handleHealth))
	if s.config.Metrics != nil {
		s.mux.Handle("/metrics", s.config.Metrics.Handler())
	}
}

// Handler returns the routes, for embedding or tests
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start binds the listener and serves in the background
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("status feed listen on %s: %w", s.config.Addr, err)
	}

	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Infow("Status feed listening", "addr", ln.Addr().String())

	s.mu.Lock()
	s.wg.Add(1)
	s.mu.Unlock()
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorw("Status feed failed", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Start
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes websocket streams and shuts the HTTP server down
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		close(s.stopChan)
	}
	s.mu.Unlock()

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.wg.Wait()
	return err
}

// handleWebSocket streams status history, then live updates, as JSON frames
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.config.Log == nil {
		http.Error(w, "status log unavailable", http.StatusServiceUnavailable)
		return
	}

	// Hijacked connections are not tracked by http.Server.Shutdown
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		http.Error(w, "status feed stopping", http.StatusServiceUnavailable)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("Websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	s.logger.Debugw("Status subscriber connected", "remote", r.RemoteAddr)

	history, updates, cancel := s.config.Log.Subscribe(subBuffer)
	defer cancel()

	// Reader detects the peer going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for _, st := range history {
		if err := s.writeJSON(conn, st); err != nil {
			return
		}
	}

	s.streamUpdates(conn, updates, gone)
	s.logger.Debugw("Status subscriber disconnected", "remote", r.RemoteAddr)
}

// streamUpdates sends updates until the peer leaves or the feed stops
func (s *Server) streamUpdates(conn *websocket.Conn, updates <-chan receiver.Status, gone <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case st, ok := <-updates:
			if !ok {
				return
			}
			if err := s.writeJSON(conn, st); err != nil {
				s.logger.Debugw("Error writing status", "error", err)
				return
			}

		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeDeadline)); err != nil {
				return
			}

		case <-gone:
			return

		case <-s.stopChan:
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "receiver stopping")
			conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			return
		}
	}
}

func (s *Server) writeJSON(conn *websocket.Conn, v any) error {
	conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return conn.WriteJSON(v)
}

// sessionJSON is the wire form of receiver.SessionInfo
type sessionJSON struct {
	ID            string    `json:"id"`
	RemoteAddr    string    `json:"remote_addr"`
	Started       time.Time `json:"started"`
	State         string    `json:"state"`
	BytesReceived uint64    `json:"bytes_received"`
	Buffered      int       `json:"buffered_bytes"`
	Capacity      int       `json:"capacity_bytes"`
	Dropped       uint64    `json:"dropped_bytes"`
	Underruns     uint64    `json:"underruns"`
}

// Snapshot is the /status.json document
type Snapshot struct {
	State    string            `json:"state"`
	Sessions []sessionJSON     `json:"sessions"`
	History  []receiver.Status `json:"history"`
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := Snapshot{
		State:    receiver.StateIdle.String(),
		Sessions: []sessionJSON{},
		History:  []receiver.Status{},
	}
	if s.config.Source != nil {
		snap.State = s.config.Source.State().String()
		for _, info := range s.config.Source.Sessions() {
			snap.Sessions = append(snap.Sessions, sessionJSON{
				ID:            info.ID,
				RemoteAddr:    info.RemoteAddr,
				Started:       info.Started,
				State:         info.State.String(),
				BytesReceived: info.BytesReceived,
				Buffered:      info.Sink.Buffered,
				Capacity:      info.Sink.Capacity,
				Dropped:       info.Sink.Dropped,
				Underruns:     info.Sink.Underruns,
			})
		}
	}
	if s.config.Log != nil {
		snap.History = s.config.Log.Entries()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		s.logger.Warnw("Error encoding snapshot", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := receiver.StateIdle
	if s.config.Source != nil {
		state = s.config.Source.State()
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if state != receiver.StateListening {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	w.Write([]byte(state.String() + "\n"))
}

// withMetrics wraps an HTTP handler with request counting
func (s *Server) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	if s.config.Metrics == nil {
		return handler
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(ww, r)
		s.config.Metrics.RecordHTTPRequest(r.Method, endpoint, ww.statusCode)
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
