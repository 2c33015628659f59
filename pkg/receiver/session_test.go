// ABOUTME: Tests for client sessions
// ABOUTME: Uses net.Pipe connections against the in-memory backend
package receiver

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/micreceiver/micreceiver-go/pkg/audio"
)

// memTap records what a session copies to its tap
type memTap struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

func (m *memTap) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buf.Write(p)
}

func (m *memTap) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *memTap) snapshot() ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return bytes.Clone(m.buf.Bytes()), m.closed
}

// panicObserver panics on the first data callback
type panicObserver struct{ countingObserver }

func (p *panicObserver) SessionData(SessionInfo, int) { panic("observer exploded") }

func runSession(ctx context.Context, sess *Session) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		sess.Run(ctx)
		close(done)
	}()
	return done
}

func waitDone(t *testing.T, done <-chan struct{}, timeout time.Duration) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatalf("session did not finish within %v", timeout)
	}
}

func TestSessionStreamsUntilEOF(t *testing.T) {
	server, client := net.Pipe()
	backend := &memBackend{}
	log := NewStatusLog(0)
	observer := &countingObserver{}
	tap := &memTap{}

	sess := NewSession(server, SessionOptions{
		Backend:  backend,
		Status:   log,
		Observer: observer,
		Tap: func(info SessionInfo, format audio.Format) (io.WriteCloser, error) {
			if format != audio.MicFormat {
				t.Errorf("tap got format %v", format)
			}
			return tap, nil
		},
	})
	if sess.State() != SessionActive {
		t.Errorf("expected new session active, got %v", sess.State())
	}
	if sess.RemoteAddr() != "pipe" {
		t.Errorf("unexpected remote %q", sess.RemoteAddr())
	}

	done := runSession(context.Background(), sess)

	data := pattern(3, 3200)
	if _, err := client.Write(data[:1600]); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, err := client.Write(data[1600:]); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	client.Close()

	waitDone(t, done, 2*time.Second)
	<-sess.Done()

	if sess.State() != SessionClosed {
		t.Errorf("expected closed, got %v", sess.State())
	}
	if info := sess.Info(); info.BytesReceived != 3200 {
		t.Errorf("expected 3200 bytes received, got %d", info.BytesReceived)
	}

	device := backend.opened()[0]
	if !device.isClosed() {
		t.Error("expected device closed")
	}
	// Playback stops at EOF, so the device may not have drained everything
	if played := device.playedBytes(); !bytes.HasPrefix(data, played) {
		t.Error("device did not play the stream in order")
	}

	recorded, closed := tap.snapshot()
	if !bytes.Equal(recorded, data) {
		t.Errorf("tap recorded %d bytes, expected the full stream", len(recorded))
	}
	if !closed {
		t.Error("expected tap closed")
	}

	started, ended, _, total := observer.snapshot()
	if started != 1 || ended != 1 || total != 3200 {
		t.Errorf("observer saw started=%d ended=%d bytes=%d", started, ended, total)
	}
	if observer.endErrs[0] != nil {
		t.Errorf("expected clean end, got %v", observer.endErrs[0])
	}

	entries := log.Entries()
	c := indexOfStatus(entries, 0, "Client connected from pipe")
	i := indexOfStatus(entries, c, "Audio playback initialized")
	d := indexOfStatus(entries, i, "Client pipe disconnected")
	if c < 0 || i < 0 || d < 0 {
		t.Errorf("unexpected status sequence: %v", entries)
	}
	if hasStatus(log, "Error handling client") {
		t.Errorf("EOF must not be reported as an error: %v", entries)
	}
}

func TestSessionCancelDuringBlockedRead(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	backend := &memBackend{exclusive: true}
	log := NewStatusLog(0)
	sess := NewSession(server, SessionOptions{Backend: backend, Status: log})

	ctx, cancel := context.WithCancel(context.Background())
	done := runSession(ctx, sess)

	waitFor(t, time.Second, "device opened", func() bool { return backend.openCount() == 1 })

	start := time.Now()
	cancel()
	waitDone(t, done, time.Second)
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("cancel took %v", elapsed)
	}

	if !backend.allClosed() {
		t.Fatal("expected device released after cancel")
	}

	// The exclusive device can be opened again once released
	again := NewSink(backend, 0)
	if err := again.Initialize(0, audio.MicFormat); err != nil {
		t.Errorf("device not reusable after cancel: %v", err)
	}
	again.Stop()

	if _, err := client.Write([]byte{1, 2}); err == nil {
		t.Error("expected connection closed after cancel")
	}
	if hasStatus(log, "Error handling client") {
		t.Errorf("cancellation must not be reported as an error: %v", log.Entries())
	}
	if !hasStatus(log, "Client pipe disconnected") {
		t.Errorf("expected disconnect status: %v", log.Entries())
	}
}

func TestSessionDeviceUnavailable(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	backend := &memBackend{openErr: errors.New("device busy")}
	log := NewStatusLog(0)
	observer := &countingObserver{}
	sess := NewSession(server, SessionOptions{Backend: backend, Status: log, Observer: observer})

	done := runSession(context.Background(), sess)
	waitDone(t, done, time.Second)

	entries := log.Entries()
	e := indexOfStatus(entries, 0, "Error handling client pipe")
	d := indexOfStatus(entries, e, "Client pipe disconnected")
	if e < 0 || d < 0 {
		t.Fatalf("unexpected status sequence: %v", entries)
	}
	if !strings.Contains(entries[e].Message, "device busy") {
		t.Errorf("expected cause in status, got %q", entries[e].Message)
	}
	if hasStatus(log, "Audio playback initialized") {
		t.Error("playback must not be reported initialized")
	}

	if _, err := client.Write([]byte{1, 2}); err == nil {
		t.Error("expected connection closed")
	}
	if _, ended, _, _ := observer.snapshot(); ended != 1 {
		t.Errorf("expected one ended callback, got %d", ended)
	}
}

func TestSessionPanicIsContained(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	backend := &memBackend{}
	log := NewStatusLog(0)
	sess := NewSession(server, SessionOptions{Backend: backend, Status: log, Observer: &panicObserver{}})

	done := runSession(context.Background(), sess)
	if _, err := client.Write(pattern(0, 320)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	waitDone(t, done, time.Second)

	if !backend.allClosed() {
		t.Error("expected device released after panic")
	}
	if sess.State() != SessionClosed {
		t.Errorf("expected closed, got %v", sess.State())
	}
	if !hasStatus(log, "observer exploded") {
		t.Errorf("expected panic reported in status: %v", log.Entries())
	}
}

func TestSessionTapFailureKeepsPlaying(t *testing.T) {
	server, client := net.Pipe()
	backend := &memBackend{}
	log := NewStatusLog(0)

	sess := NewSession(server, SessionOptions{
		Backend: backend,
		Status:  log,
		Tap: func(SessionInfo, audio.Format) (io.WriteCloser, error) {
			return nil, errors.New("disk full")
		},
	})
	done := runSession(context.Background(), sess)

	data := pattern(9, 640)
	if _, err := client.Write(data); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	client.Close()
	waitDone(t, done, time.Second)

	if !hasStatus(log, "Recording disabled for pipe: disk full") {
		t.Errorf("expected recording status: %v", log.Entries())
	}
	if hasStatus(log, "Error handling client") {
		t.Error("tap failure must not end the session with an error")
	}
	if info := sess.Info(); info.BytesReceived != uint64(len(data)) {
		t.Errorf("expected %d bytes received, got %d", len(data), info.BytesReceived)
	}
}

func TestSessionAbortIdempotent(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	sess := NewSession(server, SessionOptions{Backend: &memBackend{}})
	sess.Abort()
	sess.Abort()

	if sess.State() != SessionClosing {
		t.Errorf("expected closing after abort, got %v", sess.State())
	}

	done := runSession(context.Background(), sess)
	waitDone(t, done, time.Second)
	if sess.State() != SessionClosed {
		t.Errorf("expected closed, got %v", sess.State())
	}
}

func TestSessionStateString(t *testing.T) {
	tests := []struct {
		state SessionState
		want  string
	}{
		{SessionActive, "active"},
		{SessionClosing, "closing"},
		{SessionClosed, "closed"},
		{SessionState(9), "SessionState(9)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("%d: got %q, want %q", int(tt.state), got, tt.want)
		}
	}
}
