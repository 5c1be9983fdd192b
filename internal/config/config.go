package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	LogLevel string       `json:"log_level" validate:"omitempty,oneof=trace debug info warn error"`
	Audio    AudioConfig  `json:"audio"`
	Meter    MeterConfig  `json:"meter"`
	Server   ServerConfig `json:"server"`
}

type AudioConfig struct {
	DeviceID        string `json:"device_id"`
	SampleRate      int    `json:"sample_rate" validate:"gt=0"`
	Channels        int    `json:"channels" validate:"gte=1,lte=8"`
	FramesPerBuffer int    `json:"frames_per_buffer" validate:"gt=0"`
}

// MeterConfig holds the dB display window. The window is deliberately a
// config value, not a constant: the right calibration depends on microphone
// gain and use case (a narrow window is more sensitive to quiet input but
// saturates sooner).
type MeterConfig struct {
	MinDecibels  float64 `json:"min_decibels" validate:"ltfield=MaxDecibels"`
	MaxDecibels  float64 `json:"max_decibels"`
	SilenceFloor float64 `json:"silence_floor" validate:"gt=0"`
	Smoothing    float64 `json:"smoothing" validate:"gt=0,lte=1"`
}

type ServerConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr" validate:"omitempty,hostname_port"`
}

var validate = validator.New()

// Load reads the config from disk or returns defaults
func Load() (*Config, error) {
	path := configPath()

	// Default config
	cfg := &Config{
		LogLevel: "info",
		Audio: AudioConfig{
			DeviceID:        "",
			SampleRate:      16000,
			Channels:        1,
			FramesPerBuffer: 1024,
		},
		Meter: MeterConfig{
			MinDecibels:  -60.0,
			MaxDecibels:  -10.0,
			SilenceFloor: 1e-5,
			Smoothing:    1.0,
		},
		Server: ServerConfig{
			Enabled: false,
			Addr:    "127.0.0.1:8965",
		},
	}

	// Load existing config if it exists
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks field constraints, including the dB window invariant
// (max_decibels must exceed min_decibels).
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	path := configPath()

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// configPath returns the platform-specific config file path
func configPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, "mic-meter", "config.json")
}
