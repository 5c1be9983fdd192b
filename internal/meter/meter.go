// Package meter converts blocks of PCM samples into a smoothed, normalized
// level in [0, 1] and publishes it to subscribers off the capture thread.
package meter

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/petems/mic-meter/internal/audio"
)

// ErrInvalidConfig is returned by New for configs where the dB window is
// empty or inverted. Configuration is the only failure source: Process is
// total over valid blocks.
var ErrInvalidConfig = errors.New("invalid meter config")

// State tracks the capture lifecycle the meter is attached to. Transitions
// are driven by the lifecycle controller, never by Process.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	default:
		return "stopped"
	}
}

// Config calibrates the RMS→dB→[0,1] mapping. MinDecibels maps to 0,
// MaxDecibels to 1. SilenceFloor is the smallest RMS substituted before the
// logarithm so exact silence stays finite. Smoothing is the EMA factor
// applied to the published level (1 = unsmoothed).
type Config struct {
	MinDecibels  float64
	MaxDecibels  float64
	SilenceFloor float64
	Smoothing    float64
}

// DefaultConfig returns a 50 dB window suitable for typical speech.
func DefaultConfig() Config {
	return Config{
		MinDecibels:  -60.0,
		MaxDecibels:  -10.0,
		SilenceFloor: 1e-5,
		Smoothing:    1.0,
	}
}

func (c Config) validate() error {
	if c.MaxDecibels <= c.MinDecibels {
		return fmt.Errorf("%w: max decibels (%v) must exceed min decibels (%v)", ErrInvalidConfig, c.MaxDecibels, c.MinDecibels)
	}
	if c.SilenceFloor <= 0 {
		return fmt.Errorf("%w: silence floor must be positive, got %v", ErrInvalidConfig, c.SilenceFloor)
	}
	if c.Smoothing <= 0 || c.Smoothing > 1 {
		return fmt.Errorf("%w: smoothing must be in (0, 1], got %v", ErrInvalidConfig, c.Smoothing)
	}
	return nil
}

// Subscriber receives level and state updates on the dispatch goroutine.
type Subscriber func(level float64, state State)

// Meter computes and publishes normalized levels. The capture thread only
// ever touches Process; everything observer-facing runs on the dispatch
// goroutine so the capture thread never waits on UI work.
type Meter struct {
	cfg Config

	level atomic.Uint64 // float64 bits, single writer (capture thread)
	state atomic.Int32

	// latest-value-wins handoff from the capture thread to dispatch
	updates chan float64
	done    chan struct{}
	once    sync.Once

	mu     sync.Mutex
	subs   map[int]Subscriber
	nextID int
}

// New validates cfg and starts the dispatch goroutine.
func New(cfg Config) (*Meter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	m := &Meter{
		cfg:     cfg,
		updates: make(chan float64, 1),
		done:    make(chan struct{}),
		subs:    make(map[int]Subscriber),
	}
	go m.dispatch()
	return m, nil
}

// Process reduces one block to a normalized level, stores it and hands it to
// the dispatch goroutine without blocking. It runs on the capture goroutine:
// no locks, no allocation, no I/O. A zero-frame block is a no-op and the
// previous level is retained.
func (m *Meter) Process(b audio.Block) float64 {
	if b.Frames == 0 || b.Channels == 0 {
		return m.Level()
	}

	var sum float64
	for _, s := range b.Samples {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(b.Channels*b.Frames))
	if math.IsNaN(rms) {
		return m.Level()
	}
	if rms < m.cfg.SilenceFloor {
		rms = m.cfg.SilenceFloor
	}

	powerDb := 20 * math.Log10(rms)
	level := (powerDb - m.cfg.MinDecibels) / (m.cfg.MaxDecibels - m.cfg.MinDecibels)
	if level < 0 {
		level = 0
	} else if level > 1 {
		level = 1
	}

	if a := m.cfg.Smoothing; a < 1 {
		level = a*level + (1-a)*m.Level()
	}

	m.level.Store(math.Float64bits(level))
	m.publish(level)
	return level
}

// publish replaces any undelivered level so a slow dispatch only ever
// coalesces to the latest value, never blocks the capture thread and never
// reorders updates.
func (m *Meter) publish(level float64) {
	for {
		select {
		case m.updates <- level:
			return
		default:
		}
		select {
		case <-m.updates:
		default:
		}
	}
}

func (m *Meter) dispatch() {
	for {
		select {
		case <-m.done:
			return
		case level := <-m.updates:
			m.notify(level, m.State())
		}
	}
}

func (m *Meter) notify(level float64, state State) {
	m.mu.Lock()
	subs := make([]Subscriber, 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(level, state)
	}
}

// Level returns the most recently published normalized level.
func (m *Meter) Level() float64 {
	return math.Float64frombits(m.level.Load())
}

// State returns the current lifecycle state.
func (m *Meter) State() State {
	return State(m.state.Load())
}

// SetState records a lifecycle transition and notifies subscribers with the
// current level. Called by the lifecycle controller only.
func (m *Meter) SetState(s State) {
	if State(m.state.Swap(int32(s))) == s {
		return
	}
	m.notify(m.Level(), s)
}

// Subscribe registers fn for level and state updates and returns a handle
// for Unsubscribe. Multiple concurrent subscribers are permitted.
func (m *Meter) Subscribe(fn Subscriber) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.subs[m.nextID] = fn
	return m.nextID
}

// Unsubscribe removes a subscription. Unknown handles are ignored.
func (m *Meter) Unsubscribe(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, id)
}

// Close stops the dispatch goroutine. Safe to call more than once.
func (m *Meter) Close() {
	m.once.Do(func() { close(m.done) })
}
