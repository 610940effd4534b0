package speechtotext

import (
	"errors"
	"fmt"
	"testing"
)

func TestRecognitionErrorMatchesByKind(t *testing.T) {
	err := fmt.Errorf("listening: %w", NewRecognitionError(ErrorKindUnsupported, errors.New("no backend")))

	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected wrapped unsupported error to match ErrUnsupported")
	}
	if errors.Is(err, NewRecognitionError(ErrorKindNoSpeech, nil)) {
		t.Fatalf("expected unsupported error not to match no-speech")
	}

	kind, ok := KindOf(err)
	if !ok || kind != ErrorKindUnsupported {
		t.Fatalf("expected kind %q, got %q (ok=%v)", ErrorKindUnsupported, kind, ok)
	}
}

func TestRecognitionErrorTransientKinds(t *testing.T) {
	cases := map[ErrorKind]bool{
		ErrorKindNoSpeech:     true,
		ErrorKindNetwork:      true,
		ErrorKindNotAllowed:   false,
		ErrorKindAudioCapture: false,
		ErrorKindAborted:      false,
		ErrorKindUnsupported:  false,
	}

	for kind, want := range cases {
		if got := NewRecognitionError(kind, nil).Transient(); got != want {
			t.Fatalf("expected transient=%v for %q, got %v", want, kind, got)
		}
	}
}

func TestNewRecognitionOptionsDefaultsToNoopCallbacks(t *testing.T) {
	options := NewRecognitionOptions(WithResultCallback(nil), WithLanguage(""))

	options.StartCallback()
	options.ResultCallback("x")
	options.InterimCallback("x")
	options.ErrorCallback(nil)
	options.EndCallback()

	if options.Language != DefaultLanguage {
		t.Fatalf("expected default language %q, got %q", DefaultLanguage, options.Language)
	}
	if options.EncodingInfo.IsZero() {
		t.Fatalf("expected default encoding to be set")
	}
}
