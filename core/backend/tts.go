package backend

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/koscakluka/safewalk-core/core/audio"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type ttsResponse struct {
	Success   bool   `json:"success"`
	AudioData string `json:"audio_data"`
	VoiceName string `json:"voice_name"`
	Error     string `json:"error"`
}

// Synthesize asks the backend to voice the text and decodes the returned WAV.
// It is bounded by the TTS timeout rather than the general request timeout.
func (c *Client) Synthesize(ctx context.Context, text string) (audio.Clip, error) {
	ctx, span := tracer.Start(ctx, "backend synthesize")
	defer span.End()

	text = strings.TrimSpace(text)
	span.SetAttributes(
		attribute.String("voice_name", c.voiceName),
		attribute.Int("text.length", utf8.RuneCountInString(text)),
	)
	if text == "" {
		span.RecordError(ErrEmptyText)
		return audio.Clip{}, ErrEmptyText
	}
	if utf8.RuneCountInString(text) > MaxSynthesisLength {
		err := fmt.Errorf("%w: %d characters, max %d", ErrTextTooLong, utf8.RuneCountInString(text), MaxSynthesisLength)
		span.RecordError(err)
		return audio.Clip{}, err
	}

	form := url.Values{}
	form.Set("text", text)
	form.Set("voice_name", c.voiceName)

	var resp ttsResponse
	if err := c.do(ctx, span, request{
		method:      http.MethodPost,
		path:        "/api/tts",
		body:        strings.NewReader(form.Encode()),
		contentType: "application/x-www-form-urlencoded",
		timeout:     c.ttsTimeout,
	}, &resp); err != nil {
		return audio.Clip{}, err
	}

	if resp.AudioData == "" {
		err := fmt.Errorf("tts response carried no audio: %s", resp.Error)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return audio.Clip{}, err
	}

	wav, err := base64.StdEncoding.DecodeString(resp.AudioData)
	if err != nil {
		err = fmt.Errorf("error decoding audio data: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return audio.Clip{}, err
	}

	clip, err := audio.DecodeWAV(wav)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return audio.Clip{}, err
	}
	span.SetAttributes(attribute.Int("audio.bytes", len(clip.Data)))

	return clip, nil
}
