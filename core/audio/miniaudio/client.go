// Package miniaudio drives the default system speaker and microphone through
// miniaudio. The speaker side plays whole clips and reports when they end,
// the microphone side streams linear16 frames to a callback.
package miniaudio

import (
	"context"
	"fmt"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/safewalk-core/core/audio"
	"go.opentelemetry.io/otel/attribute"
)

// Client owns one miniaudio context with a playback and a capture device.
type Client struct {
	audioContext *malgo.AllocatedContext
	playbackClient
	captureClient
}

type clientOptions struct {
	playback audio.EncodingInfo
	capture  audio.EncodingInfo
}

type ClientOption func(*clientOptions)

// WithPlaybackEncoding sets the initial speaker format. Clips in another
// format reconfigure the device when played.
func WithPlaybackEncoding(encoding audio.EncodingInfo) ClientOption {
	return func(o *clientOptions) {
		if !encoding.IsZero() {
			o.playback = encoding
		}
	}
}

// WithCaptureEncoding sets the microphone format. It has to match what the
// recognizer is told to expect.
func WithCaptureEncoding(encoding audio.EncodingInfo) ClientOption {
	return func(o *clientOptions) {
		if !encoding.IsZero() {
			o.capture = encoding
		}
	}
}

func NewClient(opts ...ClientOption) (*Client, error) {
	options := clientOptions{
		playback: audio.GetDefaultEncodingInfo(),
		capture:  audio.GetDefaultEncodingInfo(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	audioCtx, err := malgo.InitContext(
		nil,
		malgo.ContextConfig{},
		func(message string) { logger.Debug("malgo", "message", message) },
	)
	if err != nil {
		return nil, fmt.Errorf("malgo InitContext failed: %w", err)
	}

	client := Client{audioContext: audioCtx}

	if err := client.playbackClient.Init(audioCtx, options.playback); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize playback client: %w", err)
	}
	if err := client.captureClient.Init(audioCtx, options.capture); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize capture client: %w", err)
	}

	return &client, nil
}

// Play blocks until the clip has been played through the speaker.
func (c *Client) Play(ctx context.Context, clip audio.Clip) error {
	ctx, span := tracer.Start(ctx, "play clip")
	defer span.End()
	span.SetAttributes(attribute.Int64("clip.duration_ms", clip.Duration().Milliseconds()))

	if err := c.playbackClient.Play(ctx, clip); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// Stop interrupts the clip currently playing, if any.
func (c *Client) Stop() error {
	return c.playbackClient.Stop()
}

// StartCapture streams microphone frames to onAudio until StopCapture is
// called or ctx ends.
func (c *Client) StartCapture(ctx context.Context, onAudio func(audio []byte)) error {
	if err := c.captureClient.Start(ctx, onAudio); err != nil {
		logger.Warn("failed to start capture", "error", err)
		return err
	}
	return nil
}

func (c *Client) StopCapture() error {
	return c.captureClient.Stop()
}

func (c *Client) Close() {
	_ = c.captureClient.Uninit()
	_ = c.playbackClient.Uninit()
	if c.audioContext != nil {
		_ = c.audioContext.Uninit()
		c.audioContext.Free()
		c.audioContext = nil
	}
}

// CaptureEncoding is the format of the frames passed to StartCapture
// listeners.
func (c *Client) CaptureEncoding() audio.EncodingInfo {
	return c.captureClient.encoding
}
