//go:build !portaudio

// ABOUTME: PortAudio stub when library not available
// ABOUTME: Provides compile-time placeholder when PortAudio not installed
package output

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/micreceiver/micreceiver-go/pkg/audio"
)

// PortAudio backend implementation (stub)
type PortAudio struct{}

// NewPortAudio creates a new PortAudio backend
func NewPortAudio(logger *zap.SugaredLogger) Backend {
	return &PortAudio{}
}

// Name returns the backend identifier
func (p *PortAudio) Name() string { return "portaudio" }

// Devices is unavailable without the portaudio build tag
func (p *PortAudio) Devices() ([]DeviceInfo, error) {
	return nil, fmt.Errorf("%w: PortAudio support not enabled (build with -tags portaudio)", ErrBackendUnavailable)
}

// Open is unavailable without the portaudio build tag
func (p *PortAudio) Open(deviceID int, format audio.Format, src Source) (Device, error) {
	return nil, fmt.Errorf("%w: PortAudio support not enabled (build with -tags portaudio)", ErrBackendUnavailable)
}

// Close releases resources
func (p *PortAudio) Close() error {
	return nil
}
