package audio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/petems/mic-meter/internal/config"
)

type portAudioCapture struct {
	channels int

	mu     sync.Mutex
	stream *portaudio.Stream
}

// New creates a new PortAudio-based audio capture
func New(cfg config.AudioConfig) (Capture, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	channels := cfg.Channels
	if channels < 1 {
		channels = 1
	}

	return &portAudioCapture{channels: channels}, nil
}

func (p *portAudioCapture) Start(ctx context.Context, deviceID string, sampleRate, framesPerBuffer int, fn BlockFunc) error {
	// Find device
	var device *portaudio.DeviceInfo
	if deviceID == "" {
		var err error
		device, err = portaudio.DefaultInputDevice()
		if err != nil {
			return fmt.Errorf("failed to get default input device: %w", err)
		}
	} else {
		devices, err := portaudio.Devices()
		if err != nil {
			return fmt.Errorf("failed to enumerate devices: %w", err)
		}
		for _, d := range devices {
			if d.Name == deviceID {
				device = d
				break
			}
		}
	}

	if device == nil {
		return fmt.Errorf("device not found: %s", deviceID)
	}

	// Open stream: interleaved float32 at the configured channel count
	buffer := make([]float32, framesPerBuffer*p.channels)
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: p.channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      float64(sampleRate),
		FramesPerBuffer: framesPerBuffer,
	}, buffer)

	if err != nil {
		return fmt.Errorf("failed to open audio stream: %w", err)
	}

	p.mu.Lock()
	p.stream = stream
	p.mu.Unlock()

	if err := stream.Start(); err != nil {
		stream.Close()
		p.mu.Lock()
		p.stream = nil
		p.mu.Unlock()
		return fmt.Errorf("failed to start audio stream: %w", err)
	}

	// Read loop. The block handed to fn aliases the stream buffer: fn runs
	// synchronously before the next Read, so no per-block copy is needed.
	go func() {
		defer stream.Close()
		block := Block{Channels: p.channels, Frames: framesPerBuffer, Samples: buffer}
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if err := stream.Read(); err != nil {
					return
				}
				fn(block)
			}
		}
	}()

	return nil
}

func (p *portAudioCapture) Stop() error {
	p.mu.Lock()
	stream := p.stream
	p.stream = nil
	p.mu.Unlock()

	if stream != nil {
		return stream.Stop()
	}
	return nil
}

func (p *portAudioCapture) ListDevices() ([]Device, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	result := make([]Device, 0, len(devices))
	defaultDevice, _ := portaudio.DefaultInputDevice()

	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			result = append(result, Device{
				ID:      d.Name,
				Name:    d.Name,
				Default: d == defaultDevice,
			})
		}
	}

	return result, nil
}

func (p *portAudioCapture) Close() error {
	p.mu.Lock()
	if p.stream != nil {
		p.stream.Close()
		p.stream = nil
	}
	p.mu.Unlock()
	portaudio.Terminate()
	return nil
}
