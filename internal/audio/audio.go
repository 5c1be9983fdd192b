package audio

import "context"

// Block is one capture callback's worth of interleaved float32 PCM.
// Samples holds Channels*Frames values and is only valid for the duration
// of the callback; copy it if it must outlive the callback.
type Block struct {
	Channels int
	Frames   int
	Samples  []float32
}

// BlockFunc receives each captured block on the capture goroutine. It must
// return quickly, must not block, and must not retain b.Samples.
type BlockFunc func(b Block)

// Capture defines the interface for audio capture sources
type Capture interface {
	Start(ctx context.Context, deviceID string, sampleRate, framesPerBuffer int, fn BlockFunc) error
	Stop() error
	ListDevices() ([]Device, error)
	Close() error
}

// Device represents an audio input device
type Device struct {
	ID      string
	Name    string
	Default bool
}
