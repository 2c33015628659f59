// ABOUTME: Malgo-based audio output backend
// ABOUTME: Uses miniaudio via malgo; the device callback pulls from a Source
package output

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"go.uber.org/zap"

	"github.com/micreceiver/micreceiver-go/pkg/audio"
)

// Malgo backend implementation using malgo/miniaudio library
type Malgo struct {
	logger   *zap.SugaredLogger
	malgoCtx *malgo.AllocatedContext
	mu       sync.Mutex
}

// malgoDevice is one running playback device
type malgoDevice struct {
	logger    *zap.SugaredLogger
	device    *malgo.Device
	closeOnce sync.Once
}

// NewMalgo creates a new Malgo backend. The miniaudio context is created on
// first use.
func NewMalgo(logger *zap.SugaredLogger) *Malgo {
	return &Malgo{logger: logger.Named("malgo")}
}

// Name returns the backend identifier
func (m *Malgo) Name() string { return "malgo" }

// context returns the shared miniaudio context (must hold m.mu)
func (m *Malgo) context() (*malgo.AllocatedContext, error) {
	if m.malgoCtx != nil {
		return m.malgoCtx, nil
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
	}
	m.malgoCtx = ctx
	return ctx, nil
}

// playbackDevices returns the raw device list (must hold m.mu)
func (m *Malgo) playbackDevices() ([]malgo.DeviceInfo, error) {
	ctx, err := m.context()
	if err != nil {
		return nil, err
	}

	infos, err := ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, fmt.Errorf("failed to list playback devices: %w", err)
	}
	return infos, nil
}

// Devices lists playback devices in miniaudio's enumeration order
func (m *Malgo) Devices() ([]DeviceInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	infos, err := m.playbackDevices()
	if err != nil {
		return nil, err
	}

	devices := make([]DeviceInfo, 0, len(infos))
	for i, info := range infos {
		devices = append(devices, DeviceInfo{
			Index:   i,
			Name:    info.Name(),
			Default: info.IsDefault != 0,
		})
	}
	return devices, nil
}

// Open initializes and starts a playback device
func (m *Malgo) Open(deviceID int, format audio.Format, src Source) (Device, error) {
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormatUnsupported, err)
	}

	// Map bit depth to malgo format
	var sampleFormat malgo.FormatType
	switch format.BitDepth {
	case 16:
		sampleFormat = malgo.FormatS16
	case 24:
		sampleFormat = malgo.FormatS24
	case 32:
		sampleFormat = malgo.FormatS32
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	infos, err := m.playbackDevices()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	if deviceID < 0 || deviceID >= len(infos) {
		return nil, fmt.Errorf("%w: no playback device #%d (%d available)", ErrDeviceUnavailable, deviceID, len(infos))
	}

	// Configure device
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = sampleFormat
	deviceConfig.Playback.Channels = uint32(format.Channels)
	deviceConfig.Playback.DeviceID = infos[deviceID].ID.Pointer()
	deviceConfig.SampleRate = uint32(format.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	frameSize := format.FrameSize()
	onSamples := func(pOutputSample, pInputSamples []byte, frameCount uint32) {
		n := int(frameCount) * frameSize
		if n > len(pOutputSample) {
			n = len(pOutputSample)
		}
		src.Pull(pOutputSample[:n])
	}

	device, err := malgo.InitDevice(m.malgoCtx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onSamples,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to initialize playback device: %v", ErrDeviceUnavailable, err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("%w: failed to start device: %v", ErrDeviceUnavailable, err)
	}

	m.logger.Infow("Audio output initialized",
		"device", infos[deviceID].Name(),
		"format", format.String(),
		"sampleFormat", formatName(sampleFormat))

	return &malgoDevice{logger: m.logger, device: device}, nil
}

// Close releases the miniaudio context
func (m *Malgo) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.malgoCtx == nil {
		return nil
	}

	if err := m.malgoCtx.Uninit(); err != nil {
		m.logger.Warnw("malgo context uninit error", "error", err)
	}
	m.malgoCtx.Free()
	m.malgoCtx = nil
	return nil
}

// Close stops and uninitializes the device
func (d *malgoDevice) Close() error {
	d.closeOnce.Do(func() {
		if err := d.device.Stop(); err != nil {
			d.logger.Warnw("device stop error", "error", err)
		}
		d.device.Uninit()
	})
	return nil
}

// formatName returns human-readable format name
func formatName(format malgo.FormatType) string {
	switch format {
	case malgo.FormatS16:
		return "S16"
	case malgo.FormatS24:
		return "S24"
	case malgo.FormatS32:
		return "S32"
	default:
		return fmt.Sprintf("Unknown(%d)", format)
	}
}
