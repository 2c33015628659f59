// ABOUTME: Entry point for the MicReceiver audio receiver
// ABOUTME: Parses CLI flags, loads configuration and runs the receiver
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/micreceiver/micreceiver-go/internal/app"
	"github.com/micreceiver/micreceiver-go/internal/config"
	"github.com/micreceiver/micreceiver-go/internal/logging"
	"github.com/micreceiver/micreceiver-go/internal/version"
	"github.com/micreceiver/micreceiver-go/pkg/receiver"
)

var (
	configFile  = flag.String("config", "", "Config file path (default: ./micreceiver.yaml if present)")
	listDevices = flag.Bool("list-devices", false, "List output devices and exit")
	noTUI       = flag.Bool("no-tui", false, "Disable TUI, stream logs to the console")
	verbose     = flag.Bool("verbose", false, "Enable debug logging")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.BoolVar(verbose, "v", false, "Shorthand for -verbose")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *noTUI {
		cfg.TUI = false
	}

	// The TUI owns the terminal, so logs go to a file
	logFile := cfg.Log.File
	if cfg.TUI && logFile == "" && !*listDevices {
		logFile = app.DefaultLogFile
	}

	logger, err := logging.NewLogger(logging.Options{
		Level:   cfg.Log.Level,
		Verbose: *verbose,
		File:    logFile,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	named := logger.Named("main")
	named.Infow("Version info",
		"version", version.Version,
		"gitCommit", version.GitCommit,
		"buildType", version.BuildType)

	if *listDevices {
		if err := app.ListDevices(os.Stdout, cfg.Backend, logger); err != nil {
			named.Fatalw("Failed to list devices", "error", err)
		}
		return
	}

	r, err := app.New(cfg, logger)
	if err != nil {
		named.Fatalw("Failed to create receiver", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !cfg.TUI {
		named.Infow("Starting receiver", "addr", cfg.Receiver().Addr(), "backend", cfg.Backend, "device", cfg.Device)
		named.Info("Press Ctrl-C to stop")
	}

	if err := r.Run(ctx); err != nil {
		var cfgErr *receiver.ConfigError
		if errors.As(err, &cfgErr) {
			fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "Receiver error: %v\n", err)
		}
		named.Errorw("Receiver stopped with error", "error", err)
		logger.Sync()
		os.Exit(1)
	}

	named.Info("Receiver stopped cleanly")
}
