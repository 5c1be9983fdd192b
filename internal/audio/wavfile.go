package audio

import (
	"context"
	"fmt"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// FileSource replays a WAV file through the Capture interface. It exists so
// the dB window can be calibrated against known material without a live
// microphone; the deviceID argument to Start is ignored.
type FileSource struct {
	path     string
	realtime bool
}

// NewFile creates a capture source backed by a WAV file. With realtime set,
// blocks are paced at the file's sample rate; otherwise they are delivered
// as fast as the consumer processes them.
func NewFile(path string, realtime bool) *FileSource {
	return &FileSource{path: path, realtime: realtime}
}

func (f *FileSource) Start(ctx context.Context, _ string, _ int, framesPerBuffer int, fn BlockFunc) error {
	file, err := os.Open(f.path)
	if err != nil {
		return fmt.Errorf("failed to open WAV file: %w", err)
	}

	dec := wav.NewDecoder(file)
	if !dec.IsValidFile() {
		file.Close()
		return fmt.Errorf("not a valid WAV file: %s", f.path)
	}

	channels := int(dec.NumChans)
	rate := int(dec.SampleRate)
	bitDepth := int(dec.BitDepth)
	if bitDepth == 0 {
		bitDepth = 16
	}
	scale := float32(int(1) << (bitDepth - 1))

	go func() {
		defer file.Close()

		buf := &goaudio.IntBuffer{
			Format: &goaudio.Format{NumChannels: channels, SampleRate: rate},
			Data:   make([]int, framesPerBuffer*channels),
		}
		samples := make([]float32, framesPerBuffer*channels)

		var ticker *time.Ticker
		if f.realtime {
			ticker = time.NewTicker(time.Duration(framesPerBuffer) * time.Second / time.Duration(rate))
			defer ticker.Stop()
		}

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			n, err := dec.PCMBuffer(buf)
			if err != nil || n == 0 {
				return
			}

			for i := 0; i < n; i++ {
				samples[i] = float32(buf.Data[i]) / scale
			}
			fn(Block{Channels: channels, Frames: n / channels, Samples: samples[:n]})

			if ticker != nil {
				select {
				case <-ticker.C:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return nil
}

// Stop is a no-op; file playback stops when the Start context is cancelled.
func (f *FileSource) Stop() error {
	return nil
}

func (f *FileSource) ListDevices() ([]Device, error) {
	return []Device{{ID: f.path, Name: f.path, Default: true}}, nil
}

func (f *FileSource) Close() error {
	return nil
}
