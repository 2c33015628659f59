// ABOUTME: ClientSession pumping one TCP connection into one PlaybackSink
// ABOUTME: Owns the connection and sink; cleanup always runs on exit
package receiver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/micreceiver/micreceiver-go/pkg/audio"
	"github.com/micreceiver/micreceiver-go/pkg/audio/output"
)

// SessionState tracks a session from accept to release
type SessionState int32

const (
	SessionActive SessionState = iota
	SessionClosing
	SessionClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionActive:
		return "active"
	case SessionClosing:
		return "closing"
	case SessionClosed:
		return "closed"
	default:
		return fmt.Sprintf("SessionState(%d)", int32(s))
	}
}

// SessionOptions configures a Session
type SessionOptions struct {
	Backend        output.Backend
	DeviceID       int
	Format         audio.Format
	ReadChunk      int
	BufferDuration time.Duration

	Status   StatusSink
	Logger   *zap.SugaredLogger
	Observer Observer
	Tap      TapFunc
}

// Session reads one connection until it closes, fails or is cancelled
type Session struct {
	id     string
	remote string
	conn   net.Conn
	opts   SessionOptions
	sink   *Sink

	notify   notifier
	logger   *zap.SugaredLogger
	observer Observer

	tap       io.WriteCloser
	started   time.Time
	received  atomic.Uint64
	state     atomic.Int32
	aborted   atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// NewSession wraps an accepted connection
func NewSession(conn net.Conn, opts SessionOptions) *Session {
	if opts.Format.IsZero() {
		opts.Format = audio.MicFormat
	}
	if opts.ReadChunk <= 0 {
		opts.ReadChunk = DefaultReadChunk
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}

	id := uuid.New().String()
	remote := conn.RemoteAddr().String()

	return &Session{
		id:       id,
		remote:   remote,
		conn:     conn,
		opts:     opts,
		sink:     NewSink(opts.Backend, opts.BufferDuration),
		notify:   newNotifier(opts.Status),
		logger:   opts.Logger.Named("session").With("session", id[:8], "remote", remote),
		observer: opts.Observer,
		started:  time.Now(),
		done:     make(chan struct{}),
	}
}

// ID returns the session's unique identifier
func (s *Session) ID() string { return s.id }

// RemoteAddr returns the peer address
func (s *Session) RemoteAddr() string { return s.remote }

// State returns the current lifecycle state
func (s *Session) State() SessionState { return SessionState(s.state.Load()) }

// Done is closed once Run has released every resource
func (s *Session) Done() <-chan struct{} { return s.done }

// Info returns a snapshot of the session
func (s *Session) Info() SessionInfo {
	return SessionInfo{
		ID:            s.id,
		RemoteAddr:    s.remote,
		Started:       s.started,
		BytesReceived: s.received.Load(),
		State:         s.State(),
		Sink:          s.sink.Stats(),
	}
}

// Run plays the connection until EOF, a read error, or ctx cancellation.
// The connection and sink are always released before Run returns.
func (s *Session) Run(ctx context.Context) {
	defer close(s.done)

	var runErr error
	defer func() {
		if r := recover(); r != nil {
			runErr = fmt.Errorf("panic: %v", r)
			s.logger.Errorw("Session panicked", "panic", r)
		}
		s.teardown(runErr)
	}()

	s.notify.notify("Client connected from %s", s.remote)
	s.logger.Infow("Client connected")
	s.observer.SessionStarted(s.Info())

	// Closing the connection is the only way to interrupt a blocked Read
	go func() {
		select {
		case <-ctx.Done():
			s.Abort()
		case <-s.done:
		}
	}()

	if err := s.sink.Initialize(s.opts.DeviceID, s.opts.Format); err != nil {
		if !s.aborted.Load() {
			runErr = err
		}
		return
	}
	s.notify.notify("Audio playback initialized")

	s.openTap()

	runErr = s.readLoop()
}

// readLoop feeds the sink until the stream ends
func (s *Session) readLoop() error {
	buf := make([]byte, s.opts.ReadChunk)

	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			s.received.Add(uint64(n))

			if _, feedErr := s.sink.Feed(buf[:n]); feedErr != nil {
				if s.aborted.Load() {
					return nil
				}
				return feedErr
			}
			s.writeTap(buf[:n])
			s.observer.SessionData(s.Info(), n)
		}

		if err != nil {
			if errors.Is(err, io.EOF) || s.aborted.Load() {
				return nil
			}
			return err
		}
	}
}

// Abort closes the connection and stops the sink from any goroutine. The
// read loop then exits as a normal disconnect.
func (s *Session) Abort() {
	s.aborted.Store(true)
	s.state.CompareAndSwap(int32(SessionActive), int32(SessionClosing))
	s.closeConn()
	if err := s.sink.Stop(); err != nil {
		s.logger.Warnw("Failed to stop playback", "error", err)
	}
}

// teardown releases everything and reports the outcome
func (s *Session) teardown(err error) {
	s.state.Store(int32(SessionClosing))

	if err != nil {
		s.notify.notify("Error handling client %s: %v", s.remote, err)
		s.logger.Warnw("Session error", "error", err)
	}
	s.notify.notify("Client %s disconnected", s.remote)

	if stopErr := s.sink.Stop(); stopErr != nil {
		s.logger.Warnw("Failed to stop playback", "error", stopErr)
	}
	s.closeConn()
	s.closeTap()

	s.state.Store(int32(SessionClosed))

	info := s.Info()
	s.logger.Infow("Client disconnected",
		"bytes", info.BytesReceived,
		"dropped", info.Sink.Dropped,
		"duration", time.Since(s.started).Round(time.Millisecond))
	s.observer.SessionEnded(info, err)
}

func (s *Session) closeConn() {
	s.closeOnce.Do(func() {
		if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Debugw("Connection close error", "error", err)
		}
	})
}

// openTap starts the optional recording tap; failure only disables it
func (s *Session) openTap() {
	if s.opts.Tap == nil {
		return
	}
	w, err := s.opts.Tap(s.Info(), s.opts.Format)
	if err != nil {
		s.notify.notify("Recording disabled for %s: %v", s.remote, err)
		return
	}
	s.tap = w
}

func (s *Session) writeTap(p []byte) {
	if s.tap == nil {
		return
	}
	if _, err := s.tap.Write(p); err != nil {
		s.notify.notify("Recording stopped for %s: %v", s.remote, err)
		s.closeTap()
	}
}

func (s *Session) closeTap() {
	if s.tap == nil {
		return
	}
	if err := s.tap.Close(); err != nil {
		s.logger.Warnw("Failed to close recording", "error", err)
	}
	s.tap = nil
}
