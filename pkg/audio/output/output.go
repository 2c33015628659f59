// ABOUTME: Audio output interface definition
// ABOUTME: Common interfaces, errors and backend selection for playback backends
package output

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/micreceiver/micreceiver-go/pkg/audio"
)

var (
	// ErrDeviceUnavailable is returned when the requested device cannot be opened
	ErrDeviceUnavailable = errors.New("output device unavailable")

	// ErrFormatUnsupported is returned when a backend cannot play the format
	ErrFormatUnsupported = errors.New("audio format unsupported")

	// ErrBackendUnavailable is returned when a backend is not compiled in
	ErrBackendUnavailable = errors.New("audio backend unavailable")
)

// Source is pulled by a Device whenever it needs more audio. Pull must fill
// all of p, padding with silence, and return how many bytes were real audio.
type Source interface {
	Pull(p []byte) int
}

// DeviceInfo describes a playback device
type DeviceInfo struct {
	Index   int
	Name    string
	Default bool
}

// Device is an opened, running playback device
type Device interface {
	// Close stops playback and releases the device
	Close() error
}

// Backend represents an audio output system
type Backend interface {
	// Name returns the backend identifier ("malgo", "oto", ...)
	Name() string

	// Devices lists the playback devices; Index is the id accepted by Open
	Devices() ([]DeviceInfo, error)

	// Open starts playback on a device. The device begins pulling from src
	// immediately.
	Open(deviceID int, format audio.Format, src Source) (Device, error)

	// Close releases backend-wide resources
	Close() error
}

// Backends lists the names accepted by New
var Backends = []string{"malgo", "oto", "portaudio", "null"}

// New creates a backend by name
func New(name string, logger *zap.SugaredLogger) (Backend, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	switch strings.ToLower(name) {
	case "", "malgo":
		return NewMalgo(logger), nil
	case "oto":
		return NewOto(logger), nil
	case "portaudio":
		return NewPortAudio(logger), nil
	case "null":
		return NewNull(logger), nil
	default:
		return nil, fmt.Errorf("unknown audio backend %q (supported: %s)", name, strings.Join(Backends, ", "))
	}
}

// DeviceName returns a display name for deviceID, falling back to "#id"
func DeviceName(b Backend, deviceID int) string {
	devices, err := b.Devices()
	if err == nil {
		for _, d := range devices {
			if d.Index == deviceID {
				return d.Name
			}
		}
	}
	return fmt.Sprintf("#%d", deviceID)
}
