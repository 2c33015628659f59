// ABOUTME: Receiver application orchestration
// ABOUTME: Wires the stream server to output, status, metrics, recording, mDNS and TUI
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/micreceiver/micreceiver-go/internal/config"
	"github.com/micreceiver/micreceiver-go/internal/discovery"
	"github.com/micreceiver/micreceiver-go/internal/logging"
	"github.com/micreceiver/micreceiver-go/internal/metrics"
	"github.com/micreceiver/micreceiver-go/internal/recorder"
	"github.com/micreceiver/micreceiver-go/internal/statusfeed"
	"github.com/micreceiver/micreceiver-go/internal/ui"
	"github.com/micreceiver/micreceiver-go/internal/version"
	"github.com/micreceiver/micreceiver-go/pkg/audio"
	"github.com/micreceiver/micreceiver-go/pkg/audio/output"
	"github.com/micreceiver/micreceiver-go/pkg/receiver"
)

// shutdownTimeout bounds the status feed's graceful shutdown
const shutdownTimeout = 5 * time.Second

// DefaultLogFile is used when the TUI owns the terminal and no log file is set
const DefaultLogFile = "micreceiver.log"

// Receiver is the assembled receiver application
type Receiver struct {
	config  *config.Config
	logger  *zap.SugaredLogger
	backend output.Backend

	statusLog *receiver.StatusLog
	metrics   *metrics.Metrics
	server    *receiver.Server
	feed      *statusfeed.Server
	discovery *discovery.Manager
	tui       *ui.TUI
}

// New builds every component from cfg without acquiring the network or
// audio devices
func New(cfg *config.Config, logger *zap.SugaredLogger) (*Receiver, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	cfg.MDNS.ServiceName = serviceName(cfg.MDNS.ServiceName)

	backend, err := output.New(cfg.Backend, logger)
	if err != nil {
		return nil, err
	}

	r := &Receiver{
		config:    cfg,
		logger:    logger.Named("app"),
		backend:   backend,
		statusLog: receiver.NewStatusLog(0),
		metrics:   metrics.NewMetrics(),
	}

	sinks := receiver.MultiStatus{r.statusLog, logging.NewStatusLogger(logger)}

	if cfg.TUI {
		r.tui = ui.New(r.header(), r.snapshot)
		sinks = append(sinks, r.tui)
	}

	var tap receiver.TapFunc
	if cfg.Record.Dir != "" {
		rec, err := recorder.New(cfg.Record.Dir, logger)
		if err != nil {
			backend.Close()
			return nil, err
		}
		tap = rec.Tap()
	}

	r.server = receiver.NewServer(receiver.Options{
		Backend:  backend,
		Status:   sinks,
		Logger:   logger,
		Observer: r.metrics,
		Tap:      tap,
	})

	if cfg.HTTP.Addr != "" {
		r.feed = statusfeed.New(statusfeed.Config{
			Addr:    cfg.HTTP.Addr,
			Log:     r.statusLog,
			Source:  r.server,
			Metrics: r.metrics,
			Logger:  logger,
		})
	}

	if cfg.MDNS.Enabled {
		r.discovery = discovery.NewManager(discovery.Config{
			ServiceName: cfg.MDNS.ServiceName,
			Port:        cfg.Port,
			Format:      audio.MicFormat,
			Version:     version.Version,
			Logger:      logger,
		})
	}

	return r, nil
}

// Run serves until ctx is cancelled, the user quits the TUI, or the server
// fails. Config and bind errors are returned before anything is announced.
func (r *Receiver) Run(ctx context.Context) error {
	defer r.backend.Close()

	rc := r.config.Receiver()
	if err := rc.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if r.feed != nil {
		if err := r.feed.Start(); err != nil {
			return err
		}
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer stopCancel()
			if err := r.feed.Stop(stopCtx); err != nil {
				r.logger.Warnw("Status feed shutdown error", "error", err)
			}
		}()
	}

	if r.discovery != nil {
		if err := r.discovery.Advertise(); err != nil {
			r.logger.Warnw("Failed to start mDNS advertisement", "error", err)
		}
		defer r.discovery.Stop()
	}

	var tuiDone chan struct{}
	if r.tui != nil {
		tuiDone = make(chan struct{})
		go func() {
			defer close(tuiDone)
			if err := r.tui.Run(); err != nil {
				r.logger.Warnw("TUI exited with error", "error", err)
			}
		}()
		go func() {
			select {
			case <-r.tui.QuitChan():
				r.logger.Infow("TUI quit requested, shutting down")
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	err := r.server.Start(ctx, rc)

	if r.tui != nil {
		r.tui.Stop()
		<-tuiDone
	}

	if err != nil {
		return fmt.Errorf("receiver: %w", err)
	}
	return nil
}

// Server returns the stream server
func (r *Receiver) Server() *receiver.Server { return r.server }

// StatusLog returns the status history
func (r *Receiver) StatusLog() *receiver.StatusLog { return r.statusLog }

// FeedAddr returns the status feed address, or nil when disabled or stopped
func (r *Receiver) FeedAddr() string {
	if r.feed == nil || r.feed.Addr() == nil {
		return ""
	}
	return r.feed.Addr().String()
}

func (r *Receiver) header() ui.Header {
	rc := r.config.Receiver()
	return ui.Header{
		Name:    r.config.MDNS.ServiceName,
		Addr:    rc.Addr(),
		Backend: r.backend.Name(),
		Device:  output.DeviceName(r.backend, r.config.Device),
		Format:  audio.MicFormat.String(),
	}
}

func (r *Receiver) snapshot() ui.Snapshot {
	return ui.Snapshot{
		State:    r.server.State(),
		Sessions: r.server.Sessions(),
	}
}

// ListDevices prints the playback devices of a backend
func ListDevices(w io.Writer, backendName string, logger *zap.SugaredLogger) error {
	backend, err := output.New(backendName, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	devices, err := backend.Devices()
	if err != nil {
		return fmt.Errorf("list %s devices: %w", backend.Name(), err)
	}

	fmt.Fprintf(w, "Output devices (%s):\n", backend.Name())
	if len(devices) == 0 {
		fmt.Fprintln(w, "  (none)")
		return nil
	}
	for _, d := range devices {
		marker := ""
		if d.Default {
			marker = " (default)"
		}
		fmt.Fprintf(w, "  [%d] %s%s\n", d.Index, d.Name, marker)
	}
	return nil
}

// serviceName defaults the advertised name to "<hostname>-micreceiver"
func serviceName(configured string) string {
	if configured != "" {
		return configured
	}
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "unknown"
	}
	return hostname + "-micreceiver"
}
