// Package speechtotext describes single-shot speech recognition: one call to a
// recognizer listens for one utterance and reports it through callbacks.
package speechtotext

import (
	"time"

	"github.com/koscakluka/safewalk-core/core/audio"
)

const DefaultLanguage = "ko-KR"

type RecognitionOptions struct {
	// StartCallback is called once the recognizer is actually listening.
	StartCallback func()
	// ResultCallback is called at most once with the final transcript.
	ResultCallback func(transcript string)
	// InterimCallback is called with partial transcripts while listening.
	// Not supported by all recognizers.
	InterimCallback func(transcript string)
	// ErrorCallback is called at most once when recognition fails.
	ErrorCallback func(err *RecognitionError)
	// EndCallback is always called last, after a result, an error or a
	// cancellation.
	EndCallback func()

	Language     string
	EncodingInfo audio.EncodingInfo
	// SilenceTimeout ends the recognition with [ErrorKindNoSpeech] when no
	// speech is detected for the given duration. Zero leaves it to the
	// recognizer.
	SilenceTimeout time.Duration
}

type RecognitionOption func(*RecognitionOptions)

// NewRecognitionOptions applies opts on top of no-op callbacks so recognizers
// never need to nil-check.
func NewRecognitionOptions(opts ...RecognitionOption) RecognitionOptions {
	options := RecognitionOptions{
		StartCallback:   func() {},
		ResultCallback:  func(string) {},
		InterimCallback: func(string) {},
		ErrorCallback:   func(*RecognitionError) {},
		EndCallback:     func() {},
		Language:        DefaultLanguage,
		EncodingInfo:    audio.GetDefaultEncodingInfo(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

func WithStartCallback(callback func()) RecognitionOption {
	return func(o *RecognitionOptions) {
		if callback != nil {
			o.StartCallback = callback
		}
	}
}

func WithResultCallback(callback func(transcript string)) RecognitionOption {
	return func(o *RecognitionOptions) {
		if callback != nil {
			o.ResultCallback = callback
		}
	}
}

func WithInterimCallback(callback func(transcript string)) RecognitionOption {
	return func(o *RecognitionOptions) {
		if callback != nil {
			o.InterimCallback = callback
		}
	}
}

func WithErrorCallback(callback func(err *RecognitionError)) RecognitionOption {
	return func(o *RecognitionOptions) {
		if callback != nil {
			o.ErrorCallback = callback
		}
	}
}

func WithEndCallback(callback func()) RecognitionOption {
	return func(o *RecognitionOptions) {
		if callback != nil {
			o.EndCallback = callback
		}
	}
}

func WithLanguage(language string) RecognitionOption {
	return func(o *RecognitionOptions) {
		if language != "" {
			o.Language = language
		}
	}
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) RecognitionOption {
	return func(o *RecognitionOptions) {
		if !encodingInfo.IsZero() {
			o.EncodingInfo = encodingInfo
		}
	}
}

func WithSilenceTimeout(timeout time.Duration) RecognitionOption {
	return func(o *RecognitionOptions) { o.SilenceTimeout = timeout }
}
