package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/petems/mic-meter/internal/audio"
	"github.com/petems/mic-meter/internal/config"
	"github.com/petems/mic-meter/internal/meter"
	"github.com/petems/mic-meter/internal/permissions"
)

var (
	// ErrPermissionDenied means the user or OS declined microphone access.
	// Terminal for the session; the caller must not retry automatically.
	ErrPermissionDenied = errors.New("microphone permission denied")

	// ErrEngineStart means the capture engine could not start (device busy,
	// format mismatch). The caller may retry manually.
	ErrEngineStart = errors.New("audio engine failed to start")
)

// StatusUpdater is an interface for updating status (e.g., tray icon)
type StatusUpdater interface {
	SetIdle()
	SetMetering()
	SetError()
}

type Config struct {
	Capture       audio.Capture
	Permissions   permissions.Prompter
	Meter         *meter.Meter
	Config        *config.Config
	Logger        zerolog.Logger
	StatusUpdater StatusUpdater // Optional - can be nil
}

// App sequences permission prompt → device acquisition → tap installation →
// engine start, and drives the meter's state machine from those lifecycle
// events.
type App struct {
	capture audio.Capture
	perms   permissions.Prompter
	meter   *meter.Meter
	cfg     *config.Config
	log     zerolog.Logger
	status  StatusUpdater

	mu          sync.Mutex
	captureStop context.CancelFunc
}

func New(cfg Config) *App {
	return &App{
		capture: cfg.Capture,
		perms:   cfg.Permissions,
		meter:   cfg.Meter,
		cfg:     cfg.Config,
		log:     cfg.Logger,
		status:  cfg.StatusUpdater,
	}
}

// Start requests microphone permission if undetermined, installs the
// per-block tap and starts the engine. On any failure the meter is left
// Stopped and no tap is installed. Stop during a pending Start cancels the
// permission prompt.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.captureStop != nil {
		a.mu.Unlock()
		return nil // already starting or running
	}
	captureCtx, cancel := context.WithCancel(ctx)
	a.captureStop = cancel
	a.mu.Unlock()

	a.meter.SetState(meter.StateStarting)

	status, err := a.perms.Request(captureCtx)
	if err != nil {
		a.abort()
		return fmt.Errorf("permission request aborted: %w", err)
	}
	if status != permissions.StatusGranted {
		a.abort()
		a.log.Warn().Msg("Microphone permission denied")
		return ErrPermissionDenied
	}

	// Stop may have raced the permission prompt; never install the tap then.
	a.mu.Lock()
	cancelled := a.captureStop == nil
	a.mu.Unlock()
	if cancelled {
		return context.Canceled
	}

	tap := func(b audio.Block) { a.meter.Process(b) }
	if err := a.capture.Start(captureCtx, a.cfg.Audio.DeviceID, a.cfg.Audio.SampleRate, a.cfg.Audio.FramesPerBuffer, tap); err != nil {
		a.abort()
		a.log.Error().Err(err).Msg("Audio engine start failed")
		return fmt.Errorf("%w: %v", ErrEngineStart, err)
	}

	a.meter.SetState(meter.StateRunning)
	if a.status != nil {
		a.status.SetMetering()
	}
	a.log.Info().
		Str("device", a.cfg.Audio.DeviceID).
		Int("sample_rate", a.cfg.Audio.SampleRate).
		Int("frames_per_buffer", a.cfg.Audio.FramesPerBuffer).
		Msg("Metering started")
	return nil
}

// abort reverts a failed or cancelled Start to Stopped.
func (a *App) abort() {
	a.mu.Lock()
	if a.captureStop != nil {
		a.captureStop()
		a.captureStop = nil
	}
	a.mu.Unlock()
	a.meter.SetState(meter.StateStopped)
	if a.status != nil {
		a.status.SetIdle()
	}
}

// Stop tears down the tap and stops the engine. Always succeeds, idempotent,
// and safe to call during a pending Start.
func (a *App) Stop() {
	a.mu.Lock()
	stop := a.captureStop
	a.captureStop = nil
	a.mu.Unlock()

	if stop != nil {
		stop()
		if err := a.capture.Stop(); err != nil {
			a.log.Warn().Err(err).Msg("Capture stop error")
		}
		a.log.Info().Msg("Metering stopped")
	}

	a.meter.SetState(meter.StateStopped)
	if a.status != nil {
		a.status.SetIdle()
	}
}

// Running reports whether blocks are currently flowing to the meter.
func (a *App) Running() bool {
	return a.meter.State() == meter.StateRunning
}

// Level returns the most recent normalized level.
func (a *App) Level() float64 {
	return a.meter.Level()
}

// State returns the meter's lifecycle state.
func (a *App) State() meter.State {
	return a.meter.State()
}

// SetDevice switches the capture device for the next Start.
func (a *App) SetDevice(id string) error {
	if a.Running() {
		return fmt.Errorf("cannot change device while metering")
	}

	a.mu.Lock()
	a.cfg.Audio.DeviceID = id
	a.mu.Unlock()
	return a.cfg.Save()
}

func (a *App) ListDevices() ([]audio.Device, error) {
	return a.capture.ListDevices()
}

func (a *App) Shutdown(ctx context.Context) error {
	a.Stop()
	a.meter.Close()
	return a.capture.Close()
}
