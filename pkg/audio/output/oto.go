// ABOUTME: Oto-based audio output backend
// ABOUTME: Streams a Source through a persistent oto player on the default device
package output

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"
	"go.uber.org/zap"

	"github.com/micreceiver/micreceiver-go/pkg/audio"
)

// oto allows a single context per process, shared by every Oto backend
var (
	otoMu     sync.Mutex
	otoCtx    *oto.Context
	otoFormat audio.Format
)

// Oto backend implementation using oto library. It can only play to the
// system default device and only 16-bit audio.
type Oto struct {
	logger *zap.SugaredLogger
}

// otoDevice is one persistent player reading from a Source
type otoDevice struct {
	player    *oto.Player
	reader    *sourceReader
	closeOnce sync.Once
}

// sourceReader adapts a Source to the io.Reader oto pulls from
type sourceReader struct {
	src    Source
	closed atomic.Bool
}

// NewOto creates a new Oto backend
func NewOto(logger *zap.SugaredLogger) *Oto {
	return &Oto{logger: logger.Named("oto")}
}

// Name returns the backend identifier
func (o *Oto) Name() string { return "oto" }

// Devices returns the single default device oto can address
func (o *Oto) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{Index: 0, Name: "System default output", Default: true}}, nil
}

// Open starts a player on the shared context
func (o *Oto) Open(deviceID int, format audio.Format, src Source) (Device, error) {
	if deviceID != 0 {
		return nil, fmt.Errorf("%w: oto only supports the default device (0), got #%d", ErrDeviceUnavailable, deviceID)
	}
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormatUnsupported, err)
	}
	if format.BitDepth != 16 {
		return nil, fmt.Errorf("%w: oto only supports 16-bit output, got %d", ErrFormatUnsupported, format.BitDepth)
	}

	ctx, err := o.context(format)
	if err != nil {
		return nil, err
	}

	reader := &sourceReader{src: src}
	player := ctx.NewPlayer(reader)
	player.Play()

	o.logger.Infow("Audio output initialized", "format", format.String())

	return &otoDevice{player: player, reader: reader}, nil
}

// context returns the process-wide oto context, creating it on first use
func (o *Oto) context(format audio.Format) (*oto.Context, error) {
	otoMu.Lock()
	defer otoMu.Unlock()

	if otoCtx != nil {
		// oto doesn't support reinitialization with another format
		if otoFormat != format {
			return nil, fmt.Errorf("%w: oto context already running at %s", ErrFormatUnsupported, otoFormat)
		}
		return otoCtx, nil
	}

	ctx, readyChan, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   format.SampleRate,
		ChannelCount: format.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   50 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create oto context: %v", ErrDeviceUnavailable, err)
	}
	<-readyChan

	otoCtx = ctx
	otoFormat = format
	return ctx, nil
}

// Close is a no-op; the oto context lives for the rest of the process
func (o *Oto) Close() error {
	return nil
}

// Read always fills p, with silence when the source is short
func (r *sourceReader) Read(p []byte) (int, error) {
	if r.closed.Load() {
		return 0, io.EOF
	}
	r.src.Pull(p)
	return len(p), nil
}

// Close stops the player
func (d *otoDevice) Close() error {
	var err error
	d.closeOnce.Do(func() {
		d.reader.closed.Store(true)
		d.player.Pause()
		err = d.player.Close()
	})
	return err
}
