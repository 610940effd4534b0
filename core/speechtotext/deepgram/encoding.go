package deepgram

import (
	"errors"
	"fmt"
	"slices"

	"github.com/koscakluka/safewalk-core/core/audio"
)

var (
	errUnsupportedSampleRate = errors.New("unsupported sample rate")
	errUnsupportedFormat     = errors.New("unsupported format")
)

// telephonySampleRate is the only rate the listen API accepts for the
// companded formats.
const telephonySampleRate = 8000

var listenSampleRates = []int{8000, 16000, 24000, 32000, 44100, 48000}

// listenFormat is the raw audio description sent as listen query parameters.
type listenFormat struct {
	encoding   string
	sampleRate int
	channels   int
}

func newListenFormat(encoding audio.EncodingInfo) (listenFormat, error) {
	if !slices.Contains(listenSampleRates, encoding.SampleRate) {
		return listenFormat{}, fmt.Errorf("%w: %d Hz", errUnsupportedSampleRate, encoding.SampleRate)
	}

	switch encoding.Format {
	case audio.EncodingLinear16:
	case audio.EncodingALaw, audio.EncodingMulaw:
		if encoding.SampleRate != telephonySampleRate {
			return listenFormat{}, fmt.Errorf("%w: %s needs %d Hz, got %d Hz",
				errUnsupportedSampleRate, encoding.Format.Name(), telephonySampleRate, encoding.SampleRate)
		}
	default:
		return listenFormat{}, fmt.Errorf("%w: %q", errUnsupportedFormat, encoding.Format.Name())
	}

	return listenFormat{
		encoding:   encoding.Format.Name(),
		sampleRate: encoding.SampleRate,
		channels:   max(encoding.Channels, 1),
	}, nil
}
