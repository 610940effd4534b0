package guidance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/safewalk-core/core/audio"
	"github.com/koscakluka/safewalk-core/core/backend"
	"github.com/koscakluka/safewalk-core/core/events"
	"github.com/koscakluka/safewalk-core/core/geo"
	"github.com/koscakluka/safewalk-core/core/speechtotext"
)

const testTimeout = 2 * time.Second

func eventually(t *testing.T, what string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for !condition() {
		if time.Now().After(deadline) {
			t.Fatalf("expected %s before timeout", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitClosed(t *testing.T, what string, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(testTimeout):
		t.Fatalf("expected %s before timeout", what)
	}
}

// recordingSpeaker is a local voice that remembers what it said. With block
// set it keeps speaking until its context is cancelled.
type recordingSpeaker struct {
	mu      sync.Mutex
	spoken  []string
	delay   time.Duration
	block   bool
	err     error
	active  int
	overlap bool
	started chan string
}

func newRecordingSpeaker() *recordingSpeaker {
	return &recordingSpeaker{started: make(chan string, 64)}
}

func (s *recordingSpeaker) Speak(ctx context.Context, text string) error {
	s.mu.Lock()
	s.active++
	if s.active > 1 {
		s.overlap = true
	}
	block, delay, err := s.block, s.delay, s.err
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.active--
		s.mu.Unlock()
	}()

	select {
	case s.started <- text:
	default:
	}

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.spoken = append(s.spoken, text)
	s.mu.Unlock()
	return nil
}

func (s *recordingSpeaker) Spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

func (s *recordingSpeaker) Overlapped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overlap
}

func (s *recordingSpeaker) Said(text string) bool {
	for _, spoken := range s.Spoken() {
		if spoken == text {
			return true
		}
	}
	return false
}

func (s *recordingSpeaker) Count(text string) int {
	count := 0
	for _, spoken := range s.Spoken() {
		if spoken == text {
			count++
		}
	}
	return count
}

type failingSynthesizer struct{}

func (failingSynthesizer) Synthesize(context.Context, string) (audio.Clip, error) {
	return audio.Clip{}, errors.New("synthesis service unavailable")
}

type stubSynthesizer struct{}

func (stubSynthesizer) Synthesize(_ context.Context, text string) (audio.Clip, error) {
	return audio.Clip{Data: []byte(text)}, nil
}

type recordingPlayer struct {
	mu     sync.Mutex
	played []string
	stops  int
}

func (p *recordingPlayer) Play(_ context.Context, clip audio.Clip) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.played = append(p.played, string(clip.Data))
	return nil
}

func (p *recordingPlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
	return nil
}

func (p *recordingPlayer) Played() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.played...)
}

// recognitionStep is one scripted listening turn. A step with hang set never
// produces a result and only ends when its context is cancelled. A step with
// hold keeps Recognize from returning until hold is closed.
type recognitionStep struct {
	transcript string
	kind       speechtotext.ErrorKind
	hang       bool
	hold       <-chan struct{}
}

type scriptedRecognizer struct {
	mu        sync.Mutex
	steps     []recognitionStep
	calls     int
	cancelled chan struct{}
	listening chan struct{}
}

func newScriptedRecognizer(steps ...recognitionStep) *scriptedRecognizer {
	return &scriptedRecognizer{
		steps:     steps,
		cancelled: make(chan struct{}, 16),
		listening: make(chan struct{}, 16),
	}
}

func (r *scriptedRecognizer) Recognize(ctx context.Context, opts ...speechtotext.RecognitionOption) error {
	options := speechtotext.NewRecognitionOptions(opts...)

	r.mu.Lock()
	step := recognitionStep{hang: true}
	if r.calls < len(r.steps) {
		step = r.steps[r.calls]
	}
	r.calls++
	r.mu.Unlock()

	if step.hold != nil {
		<-step.hold
	}

	go func() {
		defer options.EndCallback()
		options.StartCallback()
		select {
		case r.listening <- struct{}{}:
		default:
		}

		switch {
		case step.hang:
			<-ctx.Done()
			select {
			case r.cancelled <- struct{}{}:
			default:
			}
		case step.kind != "":
			options.ErrorCallback(speechtotext.NewRecognitionError(step.kind, nil))
		default:
			options.InterimCallback(step.transcript)
			options.ResultCallback(step.transcript)
		}
	}()
	return nil
}

func (r *scriptedRecognizer) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type stubPlaces struct {
	mu      sync.Mutex
	places  []backend.Place
	err     error
	queries []string
}

func (s *stubPlaces) SearchPlaces(_ context.Context, query string) ([]backend.Place, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, query)
	return s.places, s.err
}

func (s *stubPlaces) Queries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

type routeRequest struct {
	start geo.Coordinate
	end   geo.Coordinate
}

type stubRoutes struct {
	mu       sync.Mutex
	route    backend.Route
	err      error
	requests []routeRequest
}

func (s *stubRoutes) PlanSafeRoute(_ context.Context, start, end geo.Coordinate) (backend.Route, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, routeRequest{start: start, end: end})
	return s.route, s.err
}

func (s *stubRoutes) Requests() []routeRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]routeRequest(nil), s.requests...)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) handle(event events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) Kinds() []events.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]events.Kind, 0, len(r.events))
	for _, event := range r.events {
		kinds = append(kinds, event.Kind())
	}
	return kinds
}

func (r *eventRecorder) Has(kind events.Kind) bool {
	for _, k := range r.Kinds() {
		if k == kind {
			return true
		}
	}
	return false
}

func (r *eventRecorder) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}
