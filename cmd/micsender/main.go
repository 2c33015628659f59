// ABOUTME: Test client that streams PCM audio to a MicReceiver
// ABOUTME: Sends a sine tone or a WAV file in real time, optionally finding the receiver via mDNS
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/micreceiver/micreceiver-go/internal/discovery"
	"github.com/micreceiver/micreceiver-go/internal/logging"
	"github.com/micreceiver/micreceiver-go/internal/sender"
	"github.com/micreceiver/micreceiver-go/pkg/audio"
	"go.uber.org/zap"
)

var (
	addr     = flag.String("addr", "", "Receiver address (host:port)")
	browse   = flag.Bool("browse", false, "Find the receiver via mDNS instead of -addr")
	wavFile  = flag.String("wav", "", "WAV file to send (converted to 16kHz mono)")
	tone     = flag.Float64("tone", sender.DefaultToneFrequency, "Test tone frequency in Hz when no -wav is given")
	duration = flag.Duration("duration", 5*time.Second, "Amount of audio to send (0 = until the source ends or Ctrl-C)")
	frame    = flag.Duration("frame", sender.DefaultFrameDuration, "Pacing interval between writes")
	verbose  = flag.Bool("verbose", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	logger, err := logging.NewLogger(logging.Options{Level: "info", Verbose: *verbose})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	named := logger.Named("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	target, err := resolveTarget(ctx, logger)
	if err != nil {
		named.Fatalw("No receiver", "error", err)
	}

	var src sender.Source
	if *wavFile != "" {
		wavSrc, err := sender.NewWAVSource(*wavFile, audio.MicFormat)
		if err != nil {
			named.Fatalw("Failed to load WAV", "file", *wavFile, "error", err)
		}
		named.Infow("Loaded WAV", "file", *wavFile, "duration", wavSrc.Duration())
		src = wavSrc
	} else {
		named.Infow("Generating tone", "frequency", *tone)
		src = sender.NewToneSource(*tone, audio.MicFormat.SampleRate)
	}

	stats, err := sender.Send(ctx, target, src, sender.Config{
		Format:        audio.MicFormat,
		FrameDuration: *frame,
		Duration:      *duration,
		Logger:        logger,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		named.Errorw("Send failed", "addr", target, "error", err)
		logger.Sync()
		os.Exit(1)
	}

	named.Infow("Done",
		"addr", target,
		"bytes", stats.Bytes,
		"audio", audio.MicFormat.DurationOf(int(stats.Bytes)),
		"elapsed", stats.Elapsed)
}

func resolveTarget(ctx context.Context, logger *zap.SugaredLogger) (string, error) {
	if !*browse {
		if *addr == "" {
			return "", errors.New("either -addr or -browse is required")
		}
		return *addr, nil
	}

	servers, err := discovery.Lookup(ctx, discovery.DefaultLookupTimeout, logger)
	if err != nil {
		return "", fmt.Errorf("mdns lookup: %w", err)
	}
	if len(servers) == 0 {
		return "", errors.New("no receivers found on the local network")
	}

	for i, s := range servers {
		logger.Infow("Found receiver", "index", i, "name", s.Name, "addr", s.Addr(), "rate", s.SampleRate, "channels", s.Channels)
	}
	return servers[0].Addr(), nil
}
