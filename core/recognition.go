package guidance

import (
	"context"
	"errors"
	"sync"

	"github.com/koscakluka/safewalk-core/core/events"
	"github.com/koscakluka/safewalk-core/core/speechtotext"
)

var errRecognitionEnded = speechtotext.NewRecognitionError(speechtotext.ErrorKindAborted,
	errors.New("recognition ended without a result"))

type recognitionOutcome struct {
	transcript string
	err        error
}

// recognitionTurn adapts the callback based recognizer to a single outcome.
// Once abandoned, late callbacks from the recognizer are ignored.
type recognitionTurn struct {
	cancel    context.CancelFunc
	emitEvent eventEmitter
	onStart   func()

	mu        sync.Mutex
	abandoned bool
	delivered bool
	outcome   chan recognitionOutcome
}

func newRecognitionTurn(cancel context.CancelFunc, emitEvent eventEmitter, onStart func()) *recognitionTurn {
	if emitEvent == nil {
		emitEvent = noopEventEmitter
	}
	return &recognitionTurn{
		cancel:    cancel,
		emitEvent: emitEvent,
		onStart:   onStart,
		outcome:   make(chan recognitionOutcome, 1),
	}
}

func (t *recognitionTurn) options(opts ...speechtotext.RecognitionOption) []speechtotext.RecognitionOption {
	return append(opts,
		speechtotext.WithStartCallback(t.invokeStart),
		speechtotext.WithInterimCallback(t.invokeInterim),
		speechtotext.WithResultCallback(func(transcript string) {
			t.deliver(recognitionOutcome{transcript: transcript})
		}),
		speechtotext.WithErrorCallback(func(err *speechtotext.RecognitionError) {
			t.deliver(recognitionOutcome{err: err})
		}),
		speechtotext.WithEndCallback(func() {
			t.deliver(recognitionOutcome{err: errRecognitionEnded})
		}),
	)
}

func (t *recognitionTurn) invokeStart() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.abandoned {
		return
	}
	if t.onStart != nil {
		t.onStart()
	}
	t.emitEvent(events.NewUserSpeechStarted())
}

func (t *recognitionTurn) invokeInterim(transcript string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.abandoned {
		return
	}
	t.emitEvent(events.NewUserTranscriptInterimUpdated(transcript))
}

func (t *recognitionTurn) deliver(outcome recognitionOutcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.abandoned || t.delivered {
		return
	}
	t.delivered = true
	t.outcome <- outcome
}

// abandon stops the recognition and detaches the callbacks.
func (t *recognitionTurn) abandon() {
	t.mu.Lock()
	t.abandoned = true
	t.mu.Unlock()
	t.cancel()
}
