package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/petems/mic-meter/internal/app"
	"github.com/petems/mic-meter/internal/audio"
	"github.com/petems/mic-meter/internal/config"
	"github.com/petems/mic-meter/internal/logging"
	"github.com/petems/mic-meter/internal/meter"
	"github.com/petems/mic-meter/internal/permissions"
	"github.com/petems/mic-meter/internal/server"
	"github.com/petems/mic-meter/internal/tray"
)

var (
	// Version is set via ldflags at build time
	Version = "dev"
	// Commit is set via ldflags at build time
	Commit = "unknown"
)

func main() {
	wavFile := flag.String("file", "", "meter a WAV file instead of the microphone (implies -headless)")
	headless := flag.Bool("headless", false, "render the meter in the terminal instead of the tray")
	flag.Parse()

	// Load config from XDG/Library/AppData
	cfg, err := config.Load()
	if err != nil {
		log := logging.New()
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	log := logging.NewWithLevel(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Pick the capture source: live microphone or WAV file
	var capture audio.Capture
	var prompter permissions.Prompter
	if *wavFile != "" {
		capture = audio.NewFile(*wavFile, true)
		prompter = permissions.Granted()
		*headless = true
	} else {
		capture, err = audio.New(cfg.Audio)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize audio")
		}
		prompter = permissions.New()
	}
	defer capture.Close()

	lm, err := meter.New(meter.Config{
		MinDecibels:  cfg.Meter.MinDecibels,
		MaxDecibels:  cfg.Meter.MaxDecibels,
		SilenceFloor: cfg.Meter.SilenceFloor,
		Smoothing:    cfg.Meter.Smoothing,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid meter config")
	}

	// Create tray UI first (we'll pass it to app)
	var trayUI *tray.UI
	if !*headless {
		trayUI = tray.New(nil, cfg, Version, Commit) // App reference set below
	}

	appCfg := app.Config{
		Capture:     capture,
		Permissions: prompter,
		Meter:       lm,
		Config:      cfg,
		Logger:      log,
	}
	if trayUI != nil {
		appCfg.StatusUpdater = trayUI
	}
	application := app.New(appCfg)

	if trayUI != nil {
		trayUI.SetApp(application)
	}

	// Optional WebSocket level stream for remote meter UIs
	if cfg.Server.Enabled {
		srv := server.New(cfg.Server.Addr, lm, log)
		go func() {
			if err := srv.Run(ctx); err != nil {
				log.Error().Err(err).Msg("Level stream error")
			}
		}()
	}

	log.Info().Str("version", Version).Msg("mic-meter starting...")

	// Setup shutdown signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if *headless {
		runHeadless(ctx, application, lm, sigChan)
		return
	}

	go func() {
		<-sigChan
		log.Info().Msg("Shutting down...")
		if err := application.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Shutdown error")
		}
		os.Exit(0)
	}()

	// Start tray UI - MUST run on main thread
	if err := trayUI.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Tray error")
	}
}

// runHeadless starts metering immediately and draws a terminal VU bar until
// interrupted.
func runHeadless(ctx context.Context, application *app.App, lm *meter.Meter, sigChan chan os.Signal) {
	const barWidth = 40

	var lastDraw atomic.Int64
	id := lm.Subscribe(func(level float64, state meter.State) {
		now := time.Now().UnixNano()
		if now-lastDraw.Load() < int64(50*time.Millisecond) {
			return
		}
		lastDraw.Store(now)

		filled := int(level * barWidth)
		bar := strings.Repeat("|", filled) + strings.Repeat(" ", barWidth-filled)
		fmt.Fprintf(os.Stderr, "\r[%s] %5.1f%% %-8s", bar, level*100, state)
	})
	defer lm.Unsubscribe(id)

	if err := application.Start(ctx); err != nil {
		application.Shutdown(ctx)
		fmt.Fprintf(os.Stderr, "mic-meter: %v\n", err)
		os.Exit(1)
	}

	<-sigChan
	fmt.Fprintln(os.Stderr)
	application.Shutdown(ctx)
}
