// Package portaudio is a PortAudio backed speaker and microphone. Writes are
// blocking, so Play returns once the last buffer has been handed to the device.
package portaudio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
	"github.com/koscakluka/safewalk-core/core/audio"
)

var errPlaybackStopped = errors.New("playback stopped")

type Client struct {
	bufferSize int
	stream     *portaudio.Stream

	in  []int16
	out []int16

	streamMu  sync.Mutex
	started   bool
	stopped   atomic.Bool
	capturing atomic.Bool
}

func NewClient(bufferSize int) (*Client, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	in := make([]int16, bufferSize)
	out := make([]int16, bufferSize)
	stream, err := portaudio.OpenDefaultStream(1, 1, audio.DefaultSampleRate, bufferSize, in, out)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to open PortAudio stream: %w", err)
	}

	return &Client{
		bufferSize: bufferSize,
		stream:     stream,
		in:         in,
		out:        out,
	}, nil
}

func (c *Client) ensureStarted() error {
	if c.started {
		return nil
	}
	if err := c.stream.Start(); err != nil {
		return fmt.Errorf("failed to start PortAudio stream: %w", err)
	}
	c.started = true
	return nil
}

// Play writes the clip to the output stream buffer by buffer. The last
// partial buffer is padded with silence.
func (c *Client) Play(ctx context.Context, clip audio.Clip) error {
	if clip.Encoding.Format != audio.EncodingLinear16 || clip.Encoding.SampleRate != audio.DefaultSampleRate {
		return fmt.Errorf("unsupported clip encoding %s@%d", clip.Encoding.Format.Name(), clip.Encoding.SampleRate)
	}

	c.stopped.Store(false)
	bufferBytes := c.bufferSize * 2
	data := clip.Data
	for offset := 0; offset < len(data); offset += bufferBytes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.stopped.Load() {
			return errPlaybackStopped
		}

		chunk := data[offset:min(offset+bufferBytes, len(data))]
		if err := c.writeChunk(chunk); err != nil {
			return err
		}
	}

	return nil
}

func (c *Client) writeChunk(chunk []byte) error {
	c.streamMu.Lock()
	defer c.streamMu.Unlock()

	if err := c.ensureStarted(); err != nil {
		return err
	}

	clear(c.out)
	if err := binary.Read(bytes.NewReader(chunk), binary.LittleEndian, c.out[:len(chunk)/2]); err != nil {
		return fmt.Errorf("failed to decode samples: %w", err)
	}
	if err := c.stream.Write(); err != nil {
		return fmt.Errorf("failed to write to PortAudio stream: %w", err)
	}
	return nil
}

func (c *Client) Stop() error {
	c.stopped.Store(true)
	return nil
}

// StartCapture reads from the input stream until StopCapture is called or the
// context ends.
func (c *Client) StartCapture(ctx context.Context, onAudio func(audio []byte)) error {
	if !c.capturing.CompareAndSwap(false, true) {
		return nil
	}

	go func() {
		defer c.capturing.Store(false)
		for c.capturing.Load() && ctx.Err() == nil {
			c.streamMu.Lock()
			err := c.ensureStarted()
			if err == nil {
				err = c.stream.Read()
			}
			audioBuffer := bytes.Buffer{}
			_ = binary.Write(&audioBuffer, binary.LittleEndian, c.in)
			c.streamMu.Unlock()

			if err != nil {
				logger.Warn("failed to read from PortAudio stream", "error", err)
				continue
			}
			onAudio(audioBuffer.Bytes())
		}
	}()

	return nil
}

func (c *Client) StopCapture() error {
	c.capturing.Store(false)
	return nil
}

func (c *Client) Close() {
	c.stopped.Store(true)
	c.capturing.Store(false)

	c.streamMu.Lock()
	defer c.streamMu.Unlock()
	_ = c.stream.Close()
	_ = portaudio.Terminate()
}

// CaptureEncoding is the format of the frames passed to StartCapture
// listeners.
func (c *Client) CaptureEncoding() audio.EncodingInfo {
	return audio.GetDefaultEncodingInfo()
}
