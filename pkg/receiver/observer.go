// ABOUTME: Hooks for metrics and recording around sessions
// ABOUTME: Defines SessionInfo snapshots, the Observer interface and TapFunc
package receiver

import (
	"io"
	"time"

	"github.com/micreceiver/micreceiver-go/pkg/audio"
	"github.com/micreceiver/micreceiver-go/pkg/audio/output"
)

// SinkStats is a snapshot of a sink's jitter buffer counters
type SinkStats = output.RingStats

// SessionInfo is a point-in-time view of a session
type SessionInfo struct {
	ID            string
	RemoteAddr    string
	Started       time.Time
	BytesReceived uint64
	State         SessionState
	Sink          SinkStats
}

// Observer is notified about session lifecycle and traffic. Methods are
// called from session goroutines and must be safe for concurrent use.
type Observer interface {
	SessionStarted(info SessionInfo)
	SessionData(info SessionInfo, n int)
	SessionEnded(info SessionInfo, err error)
	AcceptFailed(err error)
}

// TapFunc opens a secondary writer that receives a copy of every chunk fed
// to a session's sink, e.g. a WAV recorder. It is called once per session
// after playback is initialized.
type TapFunc func(info SessionInfo, format audio.Format) (io.WriteCloser, error)

// nopObserver ignores everything
type nopObserver struct{}

func (nopObserver) SessionStarted(SessionInfo)      {}
func (nopObserver) SessionData(SessionInfo, int)    {}
func (nopObserver) SessionEnded(SessionInfo, error) {}
func (nopObserver) AcceptFailed(error)              {}
