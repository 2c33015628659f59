// ABOUTME: Shared test doubles for the receiver package
// ABOUTME: In-memory output backend, status helpers and polling utilities
package receiver

import (
	"bytes"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/micreceiver/micreceiver-go/pkg/audio"
	"github.com/micreceiver/micreceiver-go/pkg/audio/output"
)

// memBackend opens in-memory devices that pull from their source quickly
// and record the real audio bytes they receive
type memBackend struct {
	exclusive bool  // refuse to open a device id that is already open
	paused    bool  // devices never pull
	openErr   error // returned by every Open

	mu      sync.Mutex
	devices []*memDevice
}

type memDevice struct {
	id     int
	format audio.Format
	src    output.Source

	mu     sync.Mutex
	played []byte
	closed bool

	stopChan chan struct{}
	wg       sync.WaitGroup
}

func (b *memBackend) Name() string { return "mem" }

func (b *memBackend) Devices() ([]output.DeviceInfo, error) {
	return []output.DeviceInfo{
		{Index: 0, Name: "Memory speaker", Default: true},
		{Index: 1, Name: "Memory headphones"},
	}, nil
}

func (b *memBackend) Open(deviceID int, format audio.Format, src output.Source) (output.Device, error) {
	if b.openErr != nil {
		return nil, b.openErr
	}
	if deviceID < 0 || deviceID > 1 {
		return nil, fmt.Errorf("%w: no device #%d", output.ErrDeviceUnavailable, deviceID)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.exclusive {
		for _, d := range b.devices {
			if d.id == deviceID && !d.isClosed() {
				return nil, fmt.Errorf("%w: device #%d busy", output.ErrDeviceUnavailable, deviceID)
			}
		}
	}

	d := &memDevice{id: deviceID, format: format, src: src, stopChan: make(chan struct{})}
	b.devices = append(b.devices, d)

	if !b.paused {
		d.wg.Add(1)
		go d.pump()
	}
	return d, nil
}

func (b *memBackend) Close() error { return nil }

func (b *memBackend) opened() []*memDevice {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*memDevice, len(b.devices))
	copy(out, b.devices)
	return out
}

func (b *memBackend) openCount() int {
	return len(b.opened())
}

func (b *memBackend) allClosed() bool {
	for _, d := range b.opened() {
		if !d.isClosed() {
			return false
		}
	}
	return true
}

func (d *memDevice) pump() {
	defer d.wg.Done()
	buf := make([]byte, 1024)
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n := d.src.Pull(buf)
			if n > 0 {
				d.mu.Lock()
				d.played = append(d.played, buf[:n]...)
				d.mu.Unlock()
			}
		case <-d.stopChan:
			return
		}
	}
}

func (d *memDevice) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.stopChan)
	d.mu.Unlock()

	d.wg.Wait()
	return nil
}

func (d *memDevice) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *memDevice) playedBytes() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return bytes.Clone(d.played)
}

// countingObserver records observer callbacks
type countingObserver struct {
	mu           sync.Mutex
	started      int
	ended        int
	feeds        int
	bytes        int
	endErrs      []error
	acceptFailed int
}

func (o *countingObserver) SessionStarted(SessionInfo) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started++
}

func (o *countingObserver) SessionData(_ SessionInfo, n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.feeds++
	o.bytes += n
}

func (o *countingObserver) SessionEnded(_ SessionInfo, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ended++
	o.endErrs = append(o.endErrs, err)
}

func (o *countingObserver) AcceptFailed(error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.acceptFailed++
}

func (o *countingObserver) snapshot() (started, ended, feeds, total int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.started, o.ended, o.feeds, o.bytes
}

// pattern returns n bytes of a repeating sequence seeded by seed
func pattern(seed byte, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = seed + byte(i*7)
	}
	return b
}

// freePort returns a loopback port that was free a moment ago
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find free port: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

// waitFor polls cond until it holds or timeout elapses
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out after %v waiting for %s", timeout, what)
}

// indexOfStatus returns the index of the first entry containing substr
// at or after from, or -1
func indexOfStatus(entries []Status, from int, substr string) int {
	for i := from; i < len(entries); i++ {
		if strings.Contains(entries[i].Message, substr) {
			return i
		}
	}
	return -1
}

func hasStatus(log *StatusLog, substr string) bool {
	return indexOfStatus(log.Entries(), 0, substr) >= 0
}
