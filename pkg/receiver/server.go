// ABOUTME: StreamServer owning the listener and the per-client sessions
// ABOUTME: Poll-with-timeout accept loop, idempotent Stop, leak-free unwind
package receiver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/micreceiver/micreceiver-go/pkg/audio/output"
)

// maxAcceptDelay caps the backoff after consecutive accept failures
const maxAcceptDelay = time.Second

// State is the server lifecycle state
type State int32

const (
	StateIdle State = iota
	StateListening
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Options holds the collaborators of a Server
type Options struct {
	// Backend opens output devices (required)
	Backend output.Backend

	// Status receives human-readable notifications
	Status StatusSink

	// Logger for structured diagnostics
	Logger *zap.SugaredLogger

	// Observer is told about sessions and accept failures (e.g. metrics)
	Observer Observer

	// Tap, if set, receives a copy of each session's audio
	Tap TapFunc
}

// Server accepts connections and runs one Session per connection
type Server struct {
	opts     Options
	logger   *zap.SugaredLogger
	notify   notifier
	observer Observer

	mu       sync.Mutex
	state    State
	config   Config
	listener *net.TCPListener
	sessions map[string]*Session
	cancel   context.CancelFunc
	stopChan chan struct{}

	wg sync.WaitGroup
}

// NewServer creates an idle server
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}

	return &Server{
		opts:     opts,
		logger:   opts.Logger.Named("server"),
		notify:   newNotifier(opts.Status),
		observer: opts.Observer,
		sessions: make(map[string]*Session),
	}
}

// Start binds the listener and serves until ctx is cancelled, Stop is
// called, or the listener fails. Config and bind errors are returned
// before the server leaves Idle; cancellation returns nil.
func (s *Server) Start(ctx context.Context, cfg Config) error {
	if s.opts.Backend == nil {
		return ErrNoBackend
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg = cfg.withDefaults()

	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}

	addr := cfg.Addr()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.mu.Unlock()
		s.notify.notify("Error starting server: %v", err)
		s.logger.Errorw("Failed to bind", "addr", addr, "error", err)
		return &BindError{Addr: addr, Err: err}
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.listener = ln.(*net.TCPListener)
	s.config = cfg
	s.cancel = cancel
	s.stopChan = make(chan struct{})
	s.sessions = make(map[string]*Session)
	s.state = StateListening
	s.mu.Unlock()

	deviceName := output.DeviceName(s.opts.Backend, cfg.DeviceID)
	s.notify.notify("Server listening on %s", ln.Addr())
	s.notify.notify("Using output device: %s", deviceName)
	s.logger.Infow("Server listening",
		"addr", ln.Addr().String(),
		"backend", s.opts.Backend.Name(),
		"device", deviceName,
		"format", cfg.Format.String())

	loopErr := s.acceptLoop(runCtx, s.listener, cfg.PollInterval)
	s.shutdown()

	return loopErr
}

// acceptLoop waits for connections, waking every pollInterval to observe
// cancellation. Only a listener failure that is not caused by Stop ends it
// with an error.
func (s *Server) acceptLoop(ctx context.Context, ln *net.TCPListener, pollInterval time.Duration) error {
	var tempDelay time.Duration

	for {
		if s.stopRequested(ctx) {
			return nil
		}

		if err := ln.SetDeadline(time.Now().Add(pollInterval)); err != nil && !s.stopRequested(ctx) {
			s.logger.Warnw("Failed to set accept deadline", "error", err)
		}

		conn, err := ln.Accept()
		if err != nil {
			if s.stopRequested(ctx) {
				return nil
			}

			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}

			if errors.Is(err, net.ErrClosed) {
				s.notify.notify("Error in server: %v", err)
				s.logger.Errorw("Listener failed", "error", err)
				return fmt.Errorf("listener failed: %w", err)
			}

			s.notify.notify("Error accepting connection: %v", err)
			s.logger.Warnw("Accept failed", "error", err)
			s.observer.AcceptFailed(err)

			if tempDelay == 0 {
				tempDelay = 5 * time.Millisecond
			} else {
				tempDelay *= 2
			}
			if tempDelay > maxAcceptDelay {
				tempDelay = maxAcceptDelay
			}

			select {
			case <-time.After(tempDelay):
			case <-ctx.Done():
			case <-s.stopChan:
			}
			continue
		}

		tempDelay = 0
		s.spawn(ctx, conn)
	}
}

// spawn registers and starts a session without blocking the accept loop
func (s *Server) spawn(ctx context.Context, conn net.Conn) {
	s.mu.Lock()
	if s.state != StateListening {
		s.mu.Unlock()
		conn.Close()
		return
	}

	sess := NewSession(conn, SessionOptions{
		Backend:        s.opts.Backend,
		DeviceID:       s.config.DeviceID,
		Format:         s.config.Format,
		ReadChunk:      s.config.ReadChunk,
		BufferDuration: s.config.BufferDuration,
		Status:         s.opts.Status,
		Logger:         s.opts.Logger,
		Observer:       s.observer,
		Tap:            s.opts.Tap,
	})
	s.sessions[sess.ID()] = sess
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer s.removeSession(sess.ID())
		sess.Run(ctx)
	}()
}

func (s *Server) removeSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// stopRequested reports whether ctx is done or Stop has been called
func (s *Server) stopRequested(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-s.stopChan:
		return true
	default:
		return false
	}
}

// Stop closes the listener and aborts every session. It is idempotent, a
// no-op when the server is not listening, and does not wait for sessions to
// drain; Start returns once they have.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.state != StateListening {
		s.mu.Unlock()
		return
	}
	s.state = StateStopping
	close(s.stopChan)

	ln := s.listener
	cancel := s.cancel
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	s.notify.notify("Stopping server")
	s.logger.Infow("Server stopping", "sessions", len(sessions))

	cancel()
	if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Warnw("Listener close error", "error", err)
	}
	for _, sess := range sessions {
		sess.Abort()
	}
}

// shutdown finishes a run: stop, drain sessions, return to Idle
func (s *Server) shutdown() {
	s.Stop()
	s.wg.Wait()

	s.mu.Lock()
	s.listener = nil
	s.cancel = nil
	s.state = StateIdle
	s.mu.Unlock()

	s.notify.notify("Server stopped")
	s.logger.Infow("Server stopped cleanly")
}

// State returns the lifecycle state
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Addr returns the bound address, or nil when not listening
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Config returns the config of the current or last run
func (s *Server) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// Sessions returns snapshots of active sessions, oldest first
func (s *Server) Sessions() []SessionInfo {
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	infos := make([]SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		infos = append(infos, sess.Info())
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Started.Before(infos[j].Started)
	})
	return infos
}
