// ABOUTME: Audio type definitions
// ABOUTME: Defines the PCM stream format and s16le sample conversion
package audio

import (
	"encoding/binary"
	"fmt"
	"time"
)

// MicFormat is the only format the receiver accepts on the wire.
var MicFormat = Format{
	SampleRate: 16000,
	BitDepth:   16,
	Channels:   1,
}

// Format describes an interleaved little-endian PCM stream
type Format struct {
	SampleRate int
	BitDepth   int
	Channels   int
}

// IsZero reports whether no field of the format is set
func (f Format) IsZero() bool {
	return f == Format{}
}

// Validate checks that the format describes a playable PCM stream
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %d", f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("invalid channel count: %d", f.Channels)
	}
	switch f.BitDepth {
	case 16, 24, 32:
	default:
		return fmt.Errorf("unsupported bit depth: %d (supported: 16, 24, 32)", f.BitDepth)
	}
	return nil
}

// BytesPerSample returns the width of a single sample
func (f Format) BytesPerSample() int {
	return f.BitDepth / 8
}

// FrameSize returns the number of bytes holding one sample for every channel
func (f Format) FrameSize() int {
	return f.BytesPerSample() * f.Channels
}

// BytesPerSecond returns the data rate of the stream
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.FrameSize()
}

// BytesFor returns the whole-frame byte count covering d
func (f Format) BytesFor(d time.Duration) int {
	frames := int(int64(f.SampleRate) * int64(d) / int64(time.Second))
	return frames * f.FrameSize()
}

// DurationOf returns how long n bytes of this format play for
func (f Format) DurationOf(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(bps))
}

// String renders the format as "16000Hz/16bit/1ch"
func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dbit/%dch", f.SampleRate, f.BitDepth, f.Channels)
}

// DecodeS16LE converts little-endian 16-bit PCM to integer samples.
// A trailing odd byte is ignored.
func DecodeS16LE(data []byte) []int {
	samples := make([]int, len(data)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(data[i*2:])))
	}
	return samples
}

// EncodeS16LE converts 16-bit samples to little-endian bytes
func EncodeS16LE(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
