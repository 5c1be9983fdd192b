package config

import (
	"testing"
)

func validConfig() *Config {
	return &Config{
		LogLevel: "info",
		Audio: AudioConfig{
			SampleRate:      16000,
			Channels:        1,
			FramesPerBuffer: 1024,
		},
		Meter: MeterConfig{
			MinDecibels:  -60,
			MaxDecibels:  -10,
			SilenceFloor: 1e-5,
			Smoothing:    1.0,
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8965",
		},
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestValidateObservedWindows(t *testing.T) {
	// dB windows seen in the wild; all must be representable.
	windows := []struct{ min, max float64 }{
		{-60, -10},
		{-50, -5},
		{-80, -10},
		{-20, -10},
	}

	for _, w := range windows {
		cfg := validConfig()
		cfg.Meter.MinDecibels = w.min
		cfg.Meter.MaxDecibels = w.max
		if err := cfg.Validate(); err != nil {
			t.Fatalf("window [%v, %v] rejected: %v", w.min, w.max, err)
		}
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"inverted dB window", func(c *Config) { c.Meter.MinDecibels = -10; c.Meter.MaxDecibels = -60 }},
		{"empty dB window", func(c *Config) { c.Meter.MinDecibels = -10; c.Meter.MaxDecibels = -10 }},
		{"zero silence floor", func(c *Config) { c.Meter.SilenceFloor = 0 }},
		{"smoothing above one", func(c *Config) { c.Meter.Smoothing = 1.5 }},
		{"zero sample rate", func(c *Config) { c.Audio.SampleRate = 0 }},
		{"zero frames per buffer", func(c *Config) { c.Audio.FramesPerBuffer = 0 }},
		{"too many channels", func(c *Config) { c.Audio.Channels = 32 }},
		{"unknown log level", func(c *Config) { c.LogLevel = "loud" }},
		{"bad server addr", func(c *Config) { c.Server.Addr = "not an address" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadReturnsDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("APPDATA", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Meter.MinDecibels != -60 || cfg.Meter.MaxDecibels != -10 {
		t.Fatalf("unexpected default dB window: [%v, %v]", cfg.Meter.MinDecibels, cfg.Meter.MaxDecibels)
	}
	if cfg.Audio.FramesPerBuffer != 1024 {
		t.Fatalf("unexpected default frames per buffer: %d", cfg.Audio.FramesPerBuffer)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults fail validation: %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("APPDATA", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	cfg.Meter.MinDecibels = -80
	cfg.Meter.Smoothing = 0.4
	cfg.Audio.DeviceID = "USB Microphone"
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loaded.Meter.MinDecibels != -80 || loaded.Meter.Smoothing != 0.4 {
		t.Fatalf("meter config not round-tripped: %+v", loaded.Meter)
	}
	if loaded.Audio.DeviceID != "USB Microphone" {
		t.Fatalf("device not round-tripped: %q", loaded.Audio.DeviceID)
	}
}
