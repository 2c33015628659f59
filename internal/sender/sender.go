// ABOUTME: Real-time PCM sender for testing the receiver
// ABOUTME: Paces frames from a Source onto a TCP connection at the stream rate
package sender

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/micreceiver/micreceiver-go/pkg/audio"
	"go.uber.org/zap"
)

// DefaultFrameDuration is the pacing interval between writes
const DefaultFrameDuration = 20 * time.Millisecond

var errNoSource = errors.New("no source")

// Config controls pacing
type Config struct {
	Format        audio.Format
	FrameDuration time.Duration
	// Duration caps the amount of audio sent. Zero sends until the source ends.
	Duration time.Duration
	Logger   *zap.SugaredLogger
}

// Stats summarises a finished stream
type Stats struct {
	Frames  int
	Bytes   int64
	Elapsed time.Duration
}

func (c Config) withDefaults() Config {
	if c.Format.IsZero() {
		c.Format = audio.MicFormat
	}
	if c.FrameDuration <= 0 {
		c.FrameDuration = DefaultFrameDuration
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop().Sugar()
	}
	return c
}

// Stream writes src to w one frame per tick until the source ends, the
// duration cap is reached or ctx is cancelled. Cancellation returns ctx.Err()
// alongside the stats gathered so far.
func Stream(ctx context.Context, w io.Writer, src Source, config Config) (Stats, error) {
	config = config.withDefaults()
	logger := config.Logger.Named("sender")

	if src == nil {
		return Stats{}, errNoSource
	}

	samplesPerFrame := int(int64(config.Format.SampleRate) * int64(config.FrameDuration) / int64(time.Second))
	if samplesPerFrame <= 0 {
		return Stats{}, fmt.Errorf("frame duration %v too short for %s", config.FrameDuration, config.Format)
	}

	remaining := -1
	if config.Duration > 0 {
		remaining = config.Format.BytesFor(config.Duration) / config.Format.FrameSize()
	}

	logger.Debugw("Streaming",
		"format", config.Format.String(),
		"frameDuration", config.FrameDuration,
		"samplesPerFrame", samplesPerFrame,
		"duration", config.Duration)

	frame := make([]int16, samplesPerFrame)
	ticker := time.NewTicker(config.FrameDuration)
	defer ticker.Stop()

	var stats Stats
	start := time.Now()
	for remaining != 0 {
		want := samplesPerFrame
		if remaining > 0 && remaining < want {
			want = remaining
		}

		n, err := src.Read(frame[:want])
		if n > 0 {
			written, werr := w.Write(audio.EncodeS16LE(frame[:n]))
			stats.Bytes += int64(written)
			if werr != nil {
				stats.Elapsed = time.Since(start)
				return stats, fmt.Errorf("write: %w", werr)
			}
			stats.Frames++
			if remaining > 0 {
				remaining -= n
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			stats.Elapsed = time.Since(start)
			return stats, fmt.Errorf("read source: %w", err)
		}
		if remaining == 0 {
			break
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			stats.Elapsed = time.Since(start)
			return stats, ctx.Err()
		}
	}

	stats.Elapsed = time.Since(start)
	logger.Debugw("Finished streaming", "frames", stats.Frames, "bytes", stats.Bytes, "elapsed", stats.Elapsed)
	return stats, nil
}

// Send dials addr, streams src and half-closes the connection so the
// receiver sees end of stream.
func Send(ctx context.Context, addr string, src Source, config Config) (Stats, error) {
	config = config.withDefaults()
	logger := config.Logger.Named("sender")

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return Stats{}, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	logger.Infow("Connected", "addr", conn.RemoteAddr().String())

	stats, err := Stream(ctx, conn, src, config)
	if tcp, ok := conn.(*net.TCPConn); ok {
		if cerr := tcp.CloseWrite(); cerr != nil && err == nil {
			err = fmt.Errorf("close write: %w", cerr)
		}
	}

	logger.Infow("Disconnected", "bytes", stats.Bytes, "elapsed", stats.Elapsed)
	return stats, err
}
