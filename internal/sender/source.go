// ABOUTME: PCM sources for the sender tool
// ABOUTME: Generates a sine test tone or serves a WAV file converted to the wire format
package sender

import (
	"fmt"
	"io"
	"math"
	"os"
	"sync"
	"time"

	"github.com/go-audio/wav"
	"github.com/micreceiver/micreceiver-go/pkg/audio"
	"github.com/micreceiver/micreceiver-go/pkg/audio/resample"
)

// DefaultToneFrequency is A4
const DefaultToneFrequency = 440.0

// Source yields mono 16-bit samples. Read returns io.EOF once exhausted.
type Source interface {
	Read(samples []int16) (int, error)
}

// ToneSource generates an endless sine wave
type ToneSource struct {
	sampleIndex uint64
	sampleMu    sync.Mutex
	frequency   float64
	sampleRate  int
}

// NewToneSource creates a tone generator at the given frequency
func NewToneSource(frequency float64, sampleRate int) *ToneSource {
	if frequency <= 0 {
		frequency = DefaultToneFrequency
	}
	return &ToneSource{
		frequency:  frequency,
		sampleRate: sampleRate,
	}
}

func (s *ToneSource) Read(samples []int16) (int, error) {
	s.sampleMu.Lock()
	defer s.sampleMu.Unlock()

	for i := range samples {
		t := float64(s.sampleIndex+uint64(i)) / float64(s.sampleRate)
		sample := math.Sin(2 * math.Pi * s.frequency * t)
		samples[i] = int16(sample * 32767.0 * 0.5) // 50% volume
	}
	s.sampleIndex += uint64(len(samples))

	return len(samples), nil
}

// WAVSource plays a decoded WAV file converted to the target format
type WAVSource struct {
	path    string
	samples []int16
	pos     int
	rate    int
}

// NewWAVSource decodes the whole file, folds it to mono and resamples it to
// format's rate. Only integer PCM of 16, 24 or 32 bits is accepted.
func NewWAVSource(path string, format audio.Format) (*WAVSource, error) {
	if format.Channels != 1 || format.BitDepth != 16 {
		return nil, fmt.Errorf("wav source: unsupported target format %s", format)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("wav source: %w", err)
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("wav source: %s is not a valid WAV file", path)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("wav source: decode %s: %w", path, err)
	}

	depth := int(decoder.BitDepth)
	shift := 0
	switch depth {
	case 16:
	case 24, 32:
		shift = depth - 16
	default:
		return nil, fmt.Errorf("wav source: unsupported bit depth %d", depth)
	}

	mono := resample.Downmix(buf.Data, int(decoder.NumChans))
	converted := resample.New(int(decoder.SampleRate), format.SampleRate).Resample(mono)

	samples := make([]int16, len(converted))
	for i, v := range converted {
		samples[i] = clamp16(v >> shift)
	}

	return &WAVSource{
		path:    path,
		samples: samples,
		rate:    format.SampleRate,
	}, nil
}

func (s *WAVSource) Read(samples []int16) (int, error) {
	if s.pos >= len(s.samples) {
		return 0, io.EOF
	}
	n := copy(samples, s.samples[s.pos:])
	s.pos += n
	return n, nil
}

// Duration returns the playing time of the converted file
func (s *WAVSource) Duration() time.Duration {
	return time.Duration(len(s.samples)) * time.Second / time.Duration(s.rate)
}

// Len returns the number of converted samples
func (s *WAVSource) Len() int {
	return len(s.samples)
}

func clamp16(v int) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
