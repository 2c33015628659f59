// ABOUTME: Receiver configuration and validation
// ABOUTME: Config is checked before any socket or device is acquired
package receiver

import (
	"net"
	"net/netip"
	"strconv"
	"time"

	"github.com/micreceiver/micreceiver-go/pkg/audio"
)

const (
	// DefaultPort is the port the sender app targets out of the box
	DefaultPort = 5000

	// DefaultReadChunk is the size of a single socket read
	DefaultReadChunk = 4096

	// DefaultBufferDuration is the jitter buffer length per session
	DefaultBufferDuration = 5 * time.Second

	// DefaultPollInterval bounds how long the accept loop takes to notice
	// cancellation
	DefaultPollInterval = time.Second
)

// Config holds the listener and playback settings. Start copies it, so
// changes after Start have no effect on the running server.
type Config struct {
	// BindAddress is an IP literal ("0.0.0.0", "127.0.0.1", "::")
	BindAddress string

	// Port to listen on (1-65535)
	Port int

	// DeviceID selects the output device, see output.Backend.Devices
	DeviceID int

	// Format of the incoming stream (zero value: audio.MicFormat)
	Format audio.Format

	// ReadChunk is the maximum bytes per socket read (default 4096)
	ReadChunk int

	// BufferDuration sizes each session's ring buffer (default 5s)
	BufferDuration time.Duration

	// PollInterval is the accept deadline used to re-check cancellation
	// (default 1s)
	PollInterval time.Duration
}

// withDefaults fills zero values
func (c Config) withDefaults() Config {
	if c.Format.IsZero() {
		c.Format = audio.MicFormat
	}
	if c.ReadChunk <= 0 {
		c.ReadChunk = DefaultReadChunk
	}
	if c.BufferDuration <= 0 {
		c.BufferDuration = DefaultBufferDuration
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	return c
}

// Validate checks the config without touching the network
func (c Config) Validate() error {
	c = c.withDefaults()

	if c.BindAddress == "" {
		return &ConfigError{Field: "bind address", Reason: "empty"}
	}
	if _, err := netip.ParseAddr(c.BindAddress); err != nil {
		return &ConfigError{Field: "bind address", Reason: strconv.Quote(c.BindAddress) + " is not an IP address"}
	}
	if c.Port < 1 || c.Port > 65535 {
		return &ConfigError{Field: "port", Reason: strconv.Itoa(c.Port) + " is outside 1-65535"}
	}
	if c.DeviceID < 0 {
		return &ConfigError{Field: "output device", Reason: "no device selected"}
	}
	if c.Format != audio.MicFormat {
		return &ConfigError{Field: "format", Reason: c.Format.String() + " (only " + audio.MicFormat.String() + " is supported)"}
	}
	return nil
}

// Addr returns the host:port the server binds
func (c Config) Addr() string {
	return net.JoinHostPort(c.BindAddress, strconv.Itoa(c.Port))
}

// BufferBytes returns the ring buffer capacity for one session
func (c Config) BufferBytes() int {
	c = c.withDefaults()
	return c.Format.BytesFor(c.BufferDuration)
}
