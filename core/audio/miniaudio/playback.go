package miniaudio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/safewalk-core/core/audio"
)

var errPlaybackCleared = errors.New("playback cleared before clip ended")

type playbackClient struct {
	audioContext *malgo.AllocatedContext
	device       *malgo.Device
	config       malgo.DeviceConfig
	encoding     audio.EncodingInfo

	leftoverAudio []byte
	marks         []playbackMark

	mu      sync.Mutex
	audioMu sync.Mutex
}

func (c *playbackClient) Init(audioContext *malgo.AllocatedContext, encoding audio.EncodingInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.initDevice(audioContext, encoding)
}

func (c *playbackClient) initDevice(audioContext *malgo.AllocatedContext, encoding audio.EncodingInfo) error {
	if encoding.Format != audio.EncodingLinear16 {
		return fmt.Errorf("unsupported playback encoding %q", encoding.Format.Name())
	}

	sampleRate := uint32(encoding.SampleRate)
	channels := max(encoding.Channels, 1)
	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	c.config = malgo.DefaultDeviceConfig(malgo.Playback)
	c.config.SampleRate = sampleRate
	c.config.Playback.Format = format
	c.config.Playback.Channels = uint32(channels)
	c.config.Alsa.NoMMap = 1
	c.config.PeriodSizeInFrames = sampleRate / 10 // ~100ms of audio
	c.config.Periods = 4

	c.audioContext = audioContext

	var err error
	if c.device, err = malgo.InitDevice(
		c.audioContext.Context,
		c.config,
		malgo.DeviceCallbacks{Data: c.processAudio(bytesPerFrame)},
	); err != nil {
		return err
	}
	c.encoding = encoding
	c.encoding.Channels = channels

	return nil
}

// Play queues the clip and blocks until the device has consumed all of it,
// the context is cancelled or the buffer is cleared by Stop.
func (c *playbackClient) Play(ctx context.Context, clip audio.Clip) error {
	if err := c.ensureEncoding(clip.Encoding); err != nil {
		return err
	}
	if err := c.start(); err != nil {
		return err
	}

	done := make(chan error, 1)
	c.audioMu.Lock()
	c.leftoverAudio = append(c.leftoverAudio, clip.Data...)
	c.marks = append(c.marks, playbackMark{
		position: len(c.leftoverAudio),
		callback: func(played bool) {
			if played {
				done <- nil
			} else {
				done <- errPlaybackCleared
			}
		},
	})
	c.audioMu.Unlock()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		c.ClearBuffer()
		return ctx.Err()
	}
}

func (c *playbackClient) ensureEncoding(encoding audio.EncodingInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if encoding.SampleRate == c.encoding.SampleRate &&
		encoding.Format == c.encoding.Format &&
		max(encoding.Channels, 1) == c.encoding.Channels && c.device != nil {
		return nil
	}

	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}
	c.clearLocked()

	if err := c.initDevice(c.audioContext, encoding); err != nil {
		return fmt.Errorf("failed to reinitialize playback device: %w", err)
	}
	return nil
}

func (c *playbackClient) start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	} else if c.device.IsStarted() {
		return nil
	}

	if err := c.device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}

	return nil
}

func (c *playbackClient) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	}

	c.clearLocked()
	if !c.device.IsStarted() {
		return nil
	}
	if err := c.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop playback device: %w", err)
	}

	return nil
}

func (c *playbackClient) ClearBuffer() {
	c.clearLocked()
}

func (c *playbackClient) clearLocked() {
	c.audioMu.Lock()
	pending := c.marks
	c.leftoverAudio = nil
	c.marks = nil
	c.audioMu.Unlock()

	for _, mark := range pending {
		mark.callback(false)
	}
}

func (c *playbackClient) Uninit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device == nil {
		return fmt.Errorf("device not initialized")
	}

	c.clearLocked()
	c.device.Uninit()
	c.device = nil

	return nil
}

type playbackMark struct {
	position int
	callback func(played bool)
}

func (c *playbackClient) processAudio(bytesPerFrame int) malgo.DataProc {
	return func(pOutput, _ []byte, frameCount uint32) {
		need := int(frameCount) * bytesPerFrame

		c.audioMu.Lock()
		passed := c.advanceMarks(need)
		n := copy(pOutput, c.leftoverAudio[:min(need, len(c.leftoverAudio))])
		c.leftoverAudio = c.leftoverAudio[n:]
		c.audioMu.Unlock()

		clear(pOutput[n:])
		if len(passed) > 0 {
			go func() {
				for _, mark := range passed {
					mark.callback(true)
				}
			}()
		}
	}
}

// advanceMarks must be called with audioMu held.
func (c *playbackClient) advanceMarks(consumed int) []playbackMark {
	passedMarks := 0
	for i, mark := range c.marks {
		if mark.position > consumed {
			c.marks[i].position -= consumed
		} else {
			passedMarks++
		}
	}
	if passedMarks == 0 {
		return nil
	}

	passed := c.marks[:passedMarks:passedMarks]
	c.marks = c.marks[passedMarks:]
	return passed
}
