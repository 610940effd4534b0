// Package texttospeech holds the shared options for turning prompt text into
// audio clips.
package texttospeech

import (
	"context"

	"github.com/koscakluka/safewalk-core/core/audio"
)

type SynthesisOptions struct {
	Voice        string
	EncodingInfo audio.EncodingInfo
}

type SynthesisOption func(*SynthesisOptions)

func NewSynthesisOptions(opts ...SynthesisOption) SynthesisOptions {
	options := SynthesisOptions{EncodingInfo: audio.GetDefaultEncodingInfo()}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

func WithVoice(voice string) SynthesisOption {
	return func(o *SynthesisOptions) {
		if voice != "" {
			o.Voice = voice
		}
	}
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) SynthesisOption {
	return func(o *SynthesisOptions) {
		if !encodingInfo.IsZero() {
			o.EncodingInfo = encodingInfo
		}
	}
}

// Synthesizer turns a piece of text into a playable clip.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (audio.Clip, error)
}

// Player plays clips, blocking until the clip ends.
type Player interface {
	Play(ctx context.Context, clip audio.Clip) error
	Stop() error
}

// Speaker synthesizes and plays text in one step.
type Speaker struct {
	synthesizer Synthesizer
	player      Player
}

func NewSpeaker(synthesizer Synthesizer, player Player) *Speaker {
	return &Speaker{synthesizer: synthesizer, player: player}
}

// Speak returns once the synthesized text has finished playing.
func (s *Speaker) Speak(ctx context.Context, text string) error {
	clip, err := s.synthesizer.Synthesize(ctx, text)
	if err != nil {
		return err
	}
	return s.player.Play(ctx, clip)
}
