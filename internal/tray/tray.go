package tray

import (
	"context"
	"fmt"

	"github.com/atotto/clipboard"
	"github.com/getlantern/systray"
	"github.com/rs/zerolog"

	"github.com/petems/mic-meter/internal/app"
	"github.com/petems/mic-meter/internal/config"
	"github.com/petems/mic-meter/internal/logging"
)

type UI struct {
	app     *app.App
	cfg     *config.Config
	version string
	commit  string
	log     zerolog.Logger

	// Menu items
	mStartStop *systray.MenuItem
	mDevices   *systray.MenuItem
	mCopyDiag  *systray.MenuItem
	mQuit      *systray.MenuItem
}

// Status update methods for the app to call
func (u *UI) SetIdle() {
	u.updateStatus("idle")
}

func (u *UI) SetMetering() {
	u.updateStatus("metering")
}

func (u *UI) SetError() {
	u.updateStatus("error")
}

func New(application *app.App, cfg *config.Config, version, commit string) *UI {
	log := logging.New()
	return &UI{
		app:     application,
		cfg:     cfg,
		version: version,
		commit:  commit,
		log:     log,
	}
}

// SetApp sets the app reference (for circular dependency resolution)
func (u *UI) SetApp(application *app.App) {
	u.app = application
}

func (u *UI) Run(ctx context.Context) error {
	systray.Run(u.onReady, u.onExit)
	return nil
}

func (u *UI) onReady() {
	u.updateStatus("idle")
	systray.SetTooltip("Microphone level meter")

	// Build menu
	u.mStartStop = systray.AddMenuItem("Start Metering", "Start the microphone level meter")
	systray.AddSeparator()

	u.mDevices = systray.AddMenuItem("Microphone", "Select audio device")
	u.buildDeviceMenu()
	systray.AddSeparator()

	u.mCopyDiag = systray.AddMenuItem("Copy Diagnostics", "Copy meter diagnostics to clipboard")
	systray.AddSeparator()

	u.mQuit = systray.AddMenuItem(fmt.Sprintf("Quit (v%s)", u.version), "Quit mic-meter")

	go u.handleClicks()
}

func (u *UI) onExit() {
	u.app.Stop()
}

func (u *UI) buildDeviceMenu() {
	devices, err := u.app.ListDevices()
	if err != nil {
		u.log.Warn().Err(err).Msg("Failed to list devices")
		return
	}

	for _, d := range devices {
		name := d.Name
		if d.Default {
			name += " (default)"
		}
		item := u.mDevices.AddSubMenuItem(name, "Use this microphone")
		go func(id string, item *systray.MenuItem) {
			for range item.ClickedCh {
				if err := u.app.SetDevice(id); err != nil {
					u.log.Warn().Err(err).Str("device", id).Msg("Failed to switch device")
				}
			}
		}(d.ID, item)
	}
}

func (u *UI) handleClicks() {
	for {
		select {
		case <-u.mStartStop.ClickedCh:
			u.toggleMetering()
		case <-u.mCopyDiag.ClickedCh:
			u.copyDiagnostics()
		case <-u.mQuit.ClickedCh:
			systray.Quit()
			return
		}
	}
}

func (u *UI) toggleMetering() {
	if u.app.Running() {
		u.app.Stop()
		u.mStartStop.SetTitle("Start Metering")
		return
	}

	u.mStartStop.SetTitle("Stop Metering")
	go func() {
		if err := u.app.Start(context.Background()); err != nil {
			u.log.Error().Err(err).Msg("Failed to start metering")
			u.mStartStop.SetTitle("Start Metering")
			u.SetError()
		}
	}()
}

func (u *UI) copyDiagnostics() {
	diag := formatDiagnostics(u.version, u.commit, u.cfg, u.app.Level(), u.app.State().String())
	if err := clipboard.WriteAll(diag); err != nil {
		u.log.Warn().Err(err).Msg("Failed to copy diagnostics")
	}
}

// formatDiagnostics renders a plain-text snapshot of the meter configuration
// and current reading, suitable for pasting into a bug report.
func formatDiagnostics(version, commit string, cfg *config.Config, level float64, state string) string {
	return fmt.Sprintf(
		"mic-meter %s (%s)\ndevice: %q\nsample rate: %d Hz\nframes per buffer: %d\ndB window: [%.1f, %.1f]\nsmoothing: %.2f\nstate: %s\nlevel: %.3f\n",
		version, commit,
		cfg.Audio.DeviceID,
		cfg.Audio.SampleRate,
		cfg.Audio.FramesPerBuffer,
		cfg.Meter.MinDecibels, cfg.Meter.MaxDecibels,
		cfg.Meter.Smoothing,
		state, level,
	)
}

func (u *UI) updateStatus(status string) {
	switch status {
	case "metering":
		systray.SetTitle("🎙️")
	case "error":
		systray.SetTitle("⚠️")
	default:
		systray.SetTitle("🎤")
	}
}
