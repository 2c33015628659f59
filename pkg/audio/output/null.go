// ABOUTME: Null output backend that discards audio at real-time pace
// ABOUTME: Lets the receiver run headless while keeping buffer semantics intact
package output

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/micreceiver/micreceiver-go/pkg/audio"
)

// DefaultNullPeriod is how often a null device pulls from its source
const DefaultNullPeriod = 20 * time.Millisecond

// Null backend consumes audio on a ticker and throws it away
type Null struct {
	logger *zap.SugaredLogger
	period time.Duration
}

type nullDevice struct {
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewNull creates a null backend pulling every DefaultNullPeriod
func NewNull(logger *zap.SugaredLogger) *Null {
	return &Null{logger: logger.Named("null"), period: DefaultNullPeriod}
}

// Name returns the backend identifier
func (n *Null) Name() string { return "null" }

// Devices returns the single discard device
func (n *Null) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{Index: 0, Name: "Null output (discard)", Default: true}}, nil
}

// Open starts a goroutine that drains src in real time
func (n *Null) Open(deviceID int, format audio.Format, src Source) (Device, error) {
	if deviceID != 0 {
		return nil, fmt.Errorf("%w: null backend has a single device (0), got #%d", ErrDeviceUnavailable, deviceID)
	}
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormatUnsupported, err)
	}

	d := &nullDevice{stopChan: make(chan struct{})}
	buf := make([]byte, format.BytesFor(n.period))

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(n.period)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				src.Pull(buf)
			case <-d.stopChan:
				return
			}
		}
	}()

	n.logger.Debugw("Null output opened", "format", format.String())
	return d, nil
}

// Close is a no-op
func (n *Null) Close() error {
	return nil
}

// Close stops the drain goroutine and waits for it
func (d *nullDevice) Close() error {
	d.stopOnce.Do(func() {
		close(d.stopChan)
	})
	d.wg.Wait()
	return nil
}
