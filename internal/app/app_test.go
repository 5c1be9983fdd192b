package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/petems/mic-meter/internal/audio"
	"github.com/petems/mic-meter/internal/config"
	"github.com/petems/mic-meter/internal/meter"
	"github.com/petems/mic-meter/internal/permissions"
)

// Mock implementations for testing

type mockCapture struct {
	mu       sync.Mutex
	startErr error
	started  bool
	stops    int
	fn       audio.BlockFunc
}

func (m *mockCapture) Start(ctx context.Context, deviceID string, sampleRate, framesPerBuffer int, fn audio.BlockFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return m.startErr
	}
	m.started = true
	m.fn = fn
	return nil
}

func (m *mockCapture) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
	return nil
}

func (m *mockCapture) ListDevices() ([]audio.Device, error) {
	return []audio.Device{{ID: "default", Name: "Default", Default: true}}, nil
}

func (m *mockCapture) Close() error {
	return nil
}

func (m *mockCapture) tapInstalled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

func (m *mockCapture) tap() audio.BlockFunc {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fn
}

type mockPrompter struct {
	status permissions.Status
	block  bool // wait for ctx cancellation instead of answering
}

func (m *mockPrompter) Request(ctx context.Context) (permissions.Status, error) {
	if m.block {
		<-ctx.Done()
		return permissions.StatusNotDetermined, ctx.Err()
	}
	return m.status, nil
}

func testAppConfig() *config.Config {
	return &config.Config{
		Audio: config.AudioConfig{
			DeviceID:        "default",
			SampleRate:      16000,
			Channels:        1,
			FramesPerBuffer: 1024,
		},
	}
}

func newTestApp(t *testing.T, capture *mockCapture, prompter *mockPrompter) (*App, *meter.Meter) {
	t.Helper()
	lm, err := meter.New(meter.DefaultConfig())
	if err != nil {
		t.Fatalf("meter.New: %v", err)
	}
	t.Cleanup(lm.Close)

	return New(Config{
		Capture:     capture,
		Permissions: prompter,
		Meter:       lm,
		Config:      testAppConfig(),
		Logger:      zerolog.Nop(),
	}), lm
}

func TestStartPermissionDenied(t *testing.T) {
	capture := &mockCapture{}
	app, lm := newTestApp(t, capture, &mockPrompter{status: permissions.StatusDenied})

	err := app.Start(context.Background())
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if lm.State() != meter.StateStopped {
		t.Fatalf("expected state stopped after denial, got %v", lm.State())
	}
	if capture.tapInstalled() {
		t.Fatal("capture callback installed despite permission denial")
	}
}

func TestStartEngineFailure(t *testing.T) {
	capture := &mockCapture{startErr: errors.New("device busy")}
	app, lm := newTestApp(t, capture, &mockPrompter{status: permissions.StatusGranted})

	err := app.Start(context.Background())
	if !errors.Is(err, ErrEngineStart) {
		t.Fatalf("expected ErrEngineStart, got %v", err)
	}
	if lm.State() != meter.StateStopped {
		t.Fatalf("expected state stopped after engine failure, got %v", lm.State())
	}

	// Manual retry is allowed after an engine failure
	capture.mu.Lock()
	capture.startErr = nil
	capture.mu.Unlock()
	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("retry after engine failure: %v", err)
	}
	if lm.State() != meter.StateRunning {
		t.Fatalf("expected state running after retry, got %v", lm.State())
	}
}

func TestStartDeliversBlocksToMeter(t *testing.T) {
	capture := &mockCapture{}
	app, lm := newTestApp(t, capture, &mockPrompter{status: permissions.StatusGranted})

	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !app.Running() {
		t.Fatal("app not running after successful Start")
	}

	// Simulate the capture thread delivering a full-scale block
	samples := make([]float32, 1024)
	for i := range samples {
		samples[i] = 1.0
	}
	capture.tap()(audio.Block{Channels: 1, Frames: 1024, Samples: samples})

	if lm.Level() != 1.0 {
		t.Fatalf("expected level 1.0 after full-scale block, got %f", lm.Level())
	}
}

func TestStartWhileRunningIsNoOp(t *testing.T) {
	capture := &mockCapture{}
	app, _ := newTestApp(t, capture, &mockPrompter{status: permissions.StatusGranted})

	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("second Start should be a no-op, got %v", err)
	}
}

func TestStopIdempotent(t *testing.T) {
	capture := &mockCapture{}
	app, lm := newTestApp(t, capture, &mockPrompter{status: permissions.StatusGranted})

	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	app.Stop()
	app.Stop()

	if lm.State() != meter.StateStopped {
		t.Fatalf("expected state stopped, got %v", lm.State())
	}
}

func TestStopWithoutStart(t *testing.T) {
	capture := &mockCapture{}
	app, lm := newTestApp(t, capture, &mockPrompter{status: permissions.StatusGranted})

	app.Stop()

	if lm.State() != meter.StateStopped {
		t.Fatalf("expected state stopped, got %v", lm.State())
	}
	if capture.stops != 0 {
		t.Fatalf("capture.Stop called %d times without a start", capture.stops)
	}
}

func TestStopCancelsPendingStart(t *testing.T) {
	capture := &mockCapture{}
	app, lm := newTestApp(t, capture, &mockPrompter{block: true})

	startErr := make(chan error, 1)
	go func() {
		startErr <- app.Start(context.Background())
	}()

	// Wait for Start to reach the permission prompt
	deadline := time.Now().Add(time.Second)
	for lm.State() != meter.StateStarting && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if lm.State() != meter.StateStarting {
		t.Fatal("Start never reached the permission prompt")
	}

	app.Stop()

	select {
	case err := <-startErr:
		if err == nil {
			t.Fatal("pending Start returned nil after Stop")
		}
	case <-time.After(time.Second):
		t.Fatal("pending Start never returned after Stop")
	}

	if capture.tapInstalled() {
		t.Fatal("capture callback installed despite cancelled Start")
	}
	if lm.State() != meter.StateStopped {
		t.Fatalf("expected state stopped, got %v", lm.State())
	}
}

func TestRestartAfterStop(t *testing.T) {
	capture := &mockCapture{}
	app, lm := newTestApp(t, capture, &mockPrompter{status: permissions.StatusGranted})

	for i := 0; i < 3; i++ {
		if err := app.Start(context.Background()); err != nil {
			t.Fatalf("cycle %d Start: %v", i, err)
		}
		if lm.State() != meter.StateRunning {
			t.Fatalf("cycle %d: expected running, got %v", i, lm.State())
		}
		app.Stop()
		if lm.State() != meter.StateStopped {
			t.Fatalf("cycle %d: expected stopped, got %v", i, lm.State())
		}
	}
}
