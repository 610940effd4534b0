package miniaudio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/safewalk-core/core/audio"
)

var errCaptureNotInitialized = errors.New("capture device not initialized")

// captureClient feeds microphone frames to one listener at a time. A
// capture is tied to the context it was started with and ends with it.
type captureClient struct {
	audioContext *malgo.AllocatedContext
	device       *malgo.Device
	encoding     audio.EncodingInfo

	// onAudio is read on the device thread, so it is swapped atomically.
	onAudio atomic.Pointer[func(audio []byte)]

	mu         sync.Mutex
	generation uint64
}

func (c *captureClient) Init(audioContext *malgo.AllocatedContext, encoding audio.EncodingInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if encoding.Format != audio.EncodingLinear16 {
		return fmt.Errorf("unsupported capture encoding %q", encoding.Format.Name())
	}

	channels := max(encoding.Channels, 1)
	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	config := malgo.DefaultDeviceConfig(malgo.Capture)
	config.SampleRate = uint32(encoding.SampleRate)
	config.Capture.Format = format
	config.Capture.Channels = uint32(channels)
	config.Alsa.NoMMap = 1
	config.PerformanceProfile = malgo.LowLatency
	config.PeriodSizeInFrames = uint32(encoding.SampleRate / 50) // 20ms frames
	config.Periods = 3

	device, err := malgo.InitDevice(audioContext.Context, config, malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if n == 0 || len(input) < n {
				return
			}
			onAudio := c.onAudio.Load()
			if onAudio == nil {
				return
			}
			// the device reuses its buffer once the callback returns
			frame := make([]byte, n)
			copy(frame, input[:n])
			(*onAudio)(frame)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize capture device: %w", err)
	}

	c.audioContext = audioContext
	c.device = device
	c.encoding = encoding
	c.encoding.Channels = channels
	return nil
}

// Start routes captured frames to onAudio until Stop is called or ctx ends.
// A new Start replaces the previous listener.
func (c *captureClient) Start(ctx context.Context, onAudio func(audio []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return errCaptureNotInitialized
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.generation++
	generation := c.generation
	c.onAudio.Store(&onAudio)

	if !c.device.IsStarted() {
		if err := c.device.Start(); err != nil {
			c.onAudio.Store(nil)
			return fmt.Errorf("failed to start capture device: %w", err)
		}
	}

	go func() {
		<-ctx.Done()
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.generation == generation {
			if err := c.stopLocked(); err != nil {
				logger.Warn("failed to stop capture after cancellation", "error", err)
			}
		}
	}()
	return nil
}

func (c *captureClient) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	return c.stopLocked()
}

func (c *captureClient) stopLocked() error {
	c.onAudio.Store(nil)
	if c.device == nil {
		return errCaptureNotInitialized
	}
	if !c.device.IsStarted() {
		return nil
	}
	if err := c.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop capture device: %w", err)
	}
	return nil
}

func (c *captureClient) Uninit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	c.onAudio.Store(nil)
	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}
	return nil
}
