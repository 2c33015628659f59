//go:build portaudio

// ABOUTME: PortAudio output backend
// ABOUTME: Cross-platform callback-driven output using PortAudio
package output

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"go.uber.org/zap"

	"github.com/micreceiver/micreceiver-go/pkg/audio"
)

// PortAudio backend implementation
type PortAudio struct {
	logger      *zap.SugaredLogger
	mu          sync.Mutex
	initialized bool
}

// portAudioDevice is one running output stream
type portAudioDevice struct {
	stream    *portaudio.Stream
	closeOnce sync.Once
}

// NewPortAudio creates a new PortAudio backend
func NewPortAudio(logger *zap.SugaredLogger) Backend {
	return &PortAudio{logger: logger.Named("portaudio")}
}

// Name returns the backend identifier
func (p *PortAudio) Name() string { return "portaudio" }

// init initializes the library once (must hold p.mu)
func (p *PortAudio) init() error {
	if p.initialized {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize portaudio: %w", err)
	}
	p.initialized = true
	return nil
}

// outputDevices returns output-capable devices (must hold p.mu)
func (p *PortAudio) outputDevices() ([]*portaudio.DeviceInfo, error) {
	if err := p.init(); err != nil {
		return nil, err
	}
	all, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	var outputs []*portaudio.DeviceInfo
	for _, d := range all {
		if d.MaxOutputChannels > 0 {
			outputs = append(outputs, d)
		}
	}
	return outputs, nil
}

// Devices lists output-capable devices
func (p *PortAudio) Devices() ([]DeviceInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	outputs, err := p.outputDevices()
	if err != nil {
		return nil, err
	}

	def, _ := portaudio.DefaultOutputDevice()
	devices := make([]DeviceInfo, 0, len(outputs))
	for i, d := range outputs {
		devices = append(devices, DeviceInfo{
			Index:   i,
			Name:    d.Name,
			Default: def != nil && d.Name == def.Name,
		})
	}
	return devices, nil
}

// Open opens and starts an output stream that pulls from src
func (p *PortAudio) Open(deviceID int, format audio.Format, src Source) (Device, error) {
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormatUnsupported, err)
	}
	if format.BitDepth != 16 {
		return nil, fmt.Errorf("%w: portaudio backend plays 16-bit only, got %d", ErrFormatUnsupported, format.BitDepth)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	outputs, err := p.outputDevices()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	if deviceID < 0 || deviceID >= len(outputs) {
		return nil, fmt.Errorf("%w: no output device #%d (%d available)", ErrDeviceUnavailable, deviceID, len(outputs))
	}

	params := portaudio.LowLatencyParameters(nil, outputs[deviceID])
	params.Output.Channels = format.Channels
	params.SampleRate = float64(format.SampleRate)

	var scratch []byte
	stream, err := portaudio.OpenStream(params, func(out []int16) {
		if cap(scratch) < len(out)*2 {
			scratch = make([]byte, len(out)*2)
		}
		buf := scratch[:len(out)*2]
		src.Pull(buf)
		for i := range out {
			out[i] = int16(binary.LittleEndian.Uint16(buf[i*2:]))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open stream: %v", ErrDeviceUnavailable, err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("%w: failed to start stream: %v", ErrDeviceUnavailable, err)
	}

	p.logger.Infow("Audio output initialized", "device", outputs[deviceID].Name, "format", format.String())
	return &portAudioDevice{stream: stream}, nil
}

// Close terminates the library
func (p *PortAudio) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return nil
	}
	p.initialized = false
	return portaudio.Terminate()
}

// Close stops and closes the stream
func (d *portAudioDevice) Close() error {
	var err error
	d.closeOnce.Do(func() {
		if stopErr := d.stream.Stop(); stopErr != nil {
			err = stopErr
		}
		if closeErr := d.stream.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	})
	return err
}
