// ABOUTME: PlaybackSink pairing a jitter buffer with an output device
// ABOUTME: Feed never blocks; the device pulls from the buffer on its own thread
package receiver

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/micreceiver/micreceiver-go/pkg/audio"
	"github.com/micreceiver/micreceiver-go/pkg/audio/output"
)

// Sink plays raw PCM bytes on one output device.
//
// Overflow policy: when the buffer is full the oldest unplayed frames are
// dropped, so latency stays bounded by the buffer length and the network
// read loop is never slowed down by the device.
type Sink struct {
	backend        output.Backend
	bufferDuration time.Duration

	buffer  *output.RingBuffer
	device  output.Device
	stopped atomic.Bool
	mu      sync.Mutex
}

// NewSink creates an uninitialized sink. bufferDuration sizes the jitter
// buffer (DefaultBufferDuration when <= 0).
func NewSink(backend output.Backend, bufferDuration time.Duration) *Sink {
	if bufferDuration <= 0 {
		bufferDuration = DefaultBufferDuration
	}
	return &Sink{
		backend:        backend,
		bufferDuration: bufferDuration,
	}
}

// Initialize opens the device and starts playback. The device produces
// silence until Feed supplies data. A zero format means audio.MicFormat.
// Errors wrap output.ErrDeviceUnavailable or output.ErrFormatUnsupported.
func (s *Sink) Initialize(deviceID int, format audio.Format) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped.Load() {
		return ErrSinkStopped
	}
	if s.device != nil {
		return fmt.Errorf("playback sink already initialized")
	}
	if format.IsZero() {
		format = audio.MicFormat
	}
	if err := format.Validate(); err != nil {
		return fmt.Errorf("%w: %v", output.ErrFormatUnsupported, err)
	}

	buffer := output.NewRingBuffer(format.BytesFor(s.bufferDuration), format.FrameSize())
	device, err := s.backend.Open(deviceID, format, buffer)
	if err != nil {
		if !errors.Is(err, output.ErrDeviceUnavailable) && !errors.Is(err, output.ErrFormatUnsupported) {
			err = fmt.Errorf("%w: %v", output.ErrDeviceUnavailable, err)
		}
		return err
	}

	s.buffer = buffer
	s.device = device
	return nil
}

// Feed queues p for playback in arrival order. It never blocks.
func (s *Sink) Feed(p []byte) (int, error) {
	if s.stopped.Load() {
		return 0, ErrSinkStopped
	}
	if s.buffer == nil {
		return 0, fmt.Errorf("playback sink not initialized")
	}
	return s.buffer.Write(p)
}

// Write implements io.Writer via Feed
func (s *Sink) Write(p []byte) (int, error) {
	return s.Feed(p)
}

// Stop halts playback and releases the device. It is idempotent and safe
// after a failed Initialize.
func (s *Sink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped.Swap(true) {
		return nil
	}
	if s.device == nil {
		return nil
	}

	err := s.device.Close()
	s.device = nil
	return err
}

// Stopped reports whether Stop has been called
func (s *Sink) Stopped() bool {
	return s.stopped.Load()
}

// Stats returns the jitter buffer counters
func (s *Sink) Stats() SinkStats {
	s.mu.Lock()
	buffer := s.buffer
	s.mu.Unlock()

	if buffer == nil {
		return SinkStats{}
	}
	return buffer.Stats()
}
