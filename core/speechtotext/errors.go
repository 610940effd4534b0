package speechtotext

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	// ErrorKindNoSpeech means the recognizer heard nothing it could transcribe.
	ErrorKindNoSpeech ErrorKind = "no-speech"
	// ErrorKindNetwork means the recognition service could not be reached.
	ErrorKindNetwork ErrorKind = "network"
	// ErrorKindNotAllowed means microphone access was denied.
	ErrorKindNotAllowed ErrorKind = "not-allowed"
	// ErrorKindAudioCapture means the microphone failed while listening.
	ErrorKindAudioCapture ErrorKind = "audio-capture"
	// ErrorKindAborted means recognition was cancelled by the caller.
	ErrorKindAborted ErrorKind = "aborted"
	// ErrorKindUnsupported means the platform has no recognition capability.
	ErrorKindUnsupported ErrorKind = "unsupported"
)

// ErrUnsupported is returned by recognizers that cannot run on this platform.
var ErrUnsupported = &RecognitionError{Kind: ErrorKindUnsupported}

type RecognitionError struct {
	Kind ErrorKind
	Err  error
}

func NewRecognitionError(kind ErrorKind, err error) *RecognitionError {
	return &RecognitionError{Kind: kind, Err: err}
}

func (e *RecognitionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("speech recognition failed (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("speech recognition failed (%s)", e.Kind)
}

func (e *RecognitionError) Unwrap() error { return e.Err }

// Is matches any RecognitionError of the same kind.
func (e *RecognitionError) Is(target error) bool {
	var other *RecognitionError
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

// Transient reports whether listening again is a sensible reaction.
func (e *RecognitionError) Transient() bool {
	return e != nil && (e.Kind == ErrorKindNoSpeech || e.Kind == ErrorKindNetwork)
}

// KindOf returns the kind of a recognition error anywhere in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var recognitionErr *RecognitionError
	if errors.As(err, &recognitionErr) {
		return recognitionErr.Kind, true
	}
	return "", false
}
