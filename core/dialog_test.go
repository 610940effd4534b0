package guidance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/koscakluka/safewalk-core/core/backend"
	"github.com/koscakluka/safewalk-core/core/events"
	"github.com/koscakluka/safewalk-core/core/geo"
	"github.com/koscakluka/safewalk-core/core/geolocation"
	"github.com/koscakluka/safewalk-core/core/speechtotext"
)

var (
	seoulCityHall = geo.Coordinate{Lat: 37.5665, Lng: 126.9780}
	gangnamPlace  = backend.Place{Name: "강남역 2호선", X: "127.0276", Y: "37.4979"}
)

type dialogFixture struct {
	engine     *DialogEngine
	channel    *VoiceChannel
	speaker    *recordingSpeaker
	recognizer *scriptedRecognizer
	places     *stubPlaces
	routes     *stubRoutes
	recorder   *eventRecorder
}

func newDialogFixture(t *testing.T, steps []recognitionStep, opts ...DialogOption) *dialogFixture {
	t.Helper()

	f := &dialogFixture{
		speaker:    newRecordingSpeaker(),
		recognizer: newScriptedRecognizer(steps...),
		places:     &stubPlaces{places: []backend.Place{gangnamPlace}},
		routes:     &stubRoutes{route: backend.Route{Distance: 8.4, EstimatedTime: 120, RouteType: "safe"}},
		recorder:   &eventRecorder{},
	}
	f.channel = NewVoiceChannel(NewPlaybackQueue(WithLocalSpeaker(f.speaker)), f.recognizer)
	locator := geolocation.NewReplay(geolocation.Step{Fix: geo.Fix{Coordinate: seoulCityHall, AccuracyMeters: 12}})

	opts = append([]DialogOption{WithDialogEventHandler(f.recorder.handle)}, opts...)
	f.engine = NewDialogEngine(f.channel, locator, f.places, f.routes, opts...)
	t.Cleanup(f.engine.Stop)
	return f
}

func (f *dialogFixture) start(t *testing.T) {
	t.Helper()
	if err := f.engine.Start(context.Background()); err != nil {
		t.Fatalf("expected dialog to start, got %v", err)
	}
}

func (f *dialogFixture) wait(t *testing.T) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	select {
	case <-f.engine.Done():
		return f.engine.Err()
	case <-ctx.Done():
		t.Fatalf("expected dialog to finish before timeout, state %s", f.engine.State())
		return nil
	}
}

func TestDialogNegativeReplyClearsPendingAndReprompts(t *testing.T) {
	f := newDialogFixture(t, []recognitionStep{
		{transcript: "강남역"},
		{transcript: "아니요"},
		{hang: true},
	})
	f.start(t)

	eventually(t, "retry prompt", func() bool { return f.speaker.Said(promptRetryDestination) })
	eventually(t, "listening again", func() bool { return f.recognizer.Calls() == 3 })

	if !f.speaker.Said(confirmationPrompt("강남역")) {
		t.Fatalf("expected confirmation prompt, got %v", f.speaker.Spoken())
	}
	if got := f.engine.PendingDestination(); got != "" {
		t.Fatalf("expected pending destination to be cleared, got %q", got)
	}
	if got := f.places.Queries(); len(got) != 0 {
		t.Fatalf("expected no place lookup, got %v", got)
	}
	if got := f.routes.Requests(); len(got) != 0 {
		t.Fatalf("expected no route lookup, got %v", got)
	}
}

func TestDialogAffirmativeReplyResolvesRoute(t *testing.T) {
	var routed []DialogResult
	f := newDialogFixture(t, []recognitionStep{
		{transcript: "강남역"},
		{transcript: "네, 맞아요"},
	}, WithRouteCallback(func(result DialogResult) { routed = append(routed, result) }))
	f.start(t)

	if err := f.wait(t); err != nil {
		t.Fatalf("expected dialog to resolve without error, got %v", err)
	}
	if got := f.engine.State(); got != DialogResolved {
		t.Fatalf("expected state Resolved, got %s", got)
	}

	if got := f.places.Queries(); len(got) != 1 || got[0] != "강남역" {
		t.Fatalf("expected one place lookup for the confirmed destination, got %v", got)
	}
	requests := f.routes.Requests()
	if len(requests) != 1 {
		t.Fatalf("expected exactly one route lookup, got %d", len(requests))
	}
	wantEnd := geo.Coordinate{Lat: 37.4979, Lng: 127.0276}
	if requests[0].start != seoulCityHall || requests[0].end != wantEnd {
		t.Fatalf("expected route from %v to %v, got %+v", seoulCityHall, wantEnd, requests[0])
	}

	result, ok := f.engine.Result()
	if !ok {
		t.Fatalf("expected a dialog result")
	}
	if result.Destination != gangnamPlace.Name || result.Query != "강남역" {
		t.Fatalf("expected result for %q, got %+v", gangnamPlace.Name, result)
	}
	if len(routed) != 1 {
		t.Fatalf("expected route callback once, got %d", len(routed))
	}
	if !f.speaker.Said(acknowledgementPrompt("강남역")) || !f.speaker.Said(guidancePrompt(gangnamPlace.Name)) {
		t.Fatalf("expected acknowledgement and guidance prompts, got %v", f.speaker.Spoken())
	}
	if !f.recorder.Has(events.KindRouteFound) {
		t.Fatalf("expected route found event, got %v", f.recorder.Kinds())
	}
	if f.channel.Busy() {
		t.Fatalf("expected voice channel to be released")
	}
}

func TestDialogStoppedRunKeepsRestartedRunListening(t *testing.T) {
	hold := make(chan struct{})
	released := false
	defer func() {
		if !released {
			close(hold)
		}
	}()

	f := newDialogFixture(t, []recognitionStep{{hang: true, hold: hold}, {hang: true}})
	f.start(t)
	eventually(t, "first recognition call", func() bool { return f.recognizer.Calls() == 1 })
	stale := f.engine.Done()

	f.engine.Stop()
	f.start(t)

	select {
	case <-f.recognizer.listening:
	case <-time.After(testTimeout):
		t.Fatalf("expected the restarted run to listen")
	}
	eventually(t, "listening flag", f.engine.IsListening)

	close(hold)
	released = true
	waitClosed(t, "stopped run to finish", stale)

	if !f.engine.IsListening() {
		t.Fatalf("expected the restarted run to keep listening after the stopped run finished")
	}
	if got := f.engine.State(); got != DialogListening {
		t.Fatalf("expected state Listening, got %s", got)
	}
}

func TestDialogStopDuringRecognitionTearsDown(t *testing.T) {
	shutdowns := 0
	f := newDialogFixture(t, []recognitionStep{{hang: true}},
		WithShutdownCallback(func() { shutdowns++ }))
	f.start(t)

	select {
	case <-f.recognizer.listening:
	case <-time.After(testTimeout):
		t.Fatalf("expected recognition to start")
	}
	eventually(t, "listening flag", f.engine.IsListening)

	f.engine.Stop()

	select {
	case <-f.recognizer.cancelled:
	case <-time.After(testTimeout):
		t.Fatalf("expected recognition context to be cancelled")
	}
	if got := f.engine.State(); got != DialogCancelled {
		t.Fatalf("expected state Cancelled, got %s", got)
	}
	if f.engine.IsListening() {
		t.Fatalf("expected listening flag to be cleared")
	}
	queue := f.channel.Queue()
	if queue.Len() != 0 || queue.IsSpeaking() {
		t.Fatalf("expected empty silent queue, got %d pending", queue.Len())
	}
	if f.channel.Busy() {
		t.Fatalf("expected voice channel to be released")
	}
	if shutdowns != 1 {
		t.Fatalf("expected shutdown callback once, got %d", shutdowns)
	}

	f.wait(t)
	if got := f.engine.State(); got != DialogCancelled {
		t.Fatalf("expected state to stay Cancelled after the run ended, got %s", got)
	}
}

func TestDialogUnsupportedRecognitionDisablesVoice(t *testing.T) {
	speaker := newRecordingSpeaker()
	channel := NewVoiceChannel(NewPlaybackQueue(WithLocalSpeaker(speaker)), nil)
	locator := geolocation.NewStatic(seoulCityHall, 10)
	engine := NewDialogEngine(channel, locator, &stubPlaces{}, &stubRoutes{})

	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("expected dialog to start, got %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	err := engine.Wait(ctx)
	if !errors.Is(err, ErrVoiceDisabled) {
		t.Fatalf("expected ErrVoiceDisabled, got %v", err)
	}
	if !engine.Disabled() {
		t.Fatalf("expected engine to be disabled")
	}
	if got := engine.State(); got != DialogFailed {
		t.Fatalf("expected state Failed, got %s", got)
	}
	if err := engine.Start(context.Background()); !errors.Is(err, ErrVoiceDisabled) {
		t.Fatalf("expected restart to be refused with ErrVoiceDisabled, got %v", err)
	}
}

func TestDialogBoundsAmbiguousReplies(t *testing.T) {
	f := newDialogFixture(t, []recognitionStep{
		{transcript: "강남역"},
		{transcript: "글쎄"},
		{transcript: "음"},
		{transcript: "모르겠어"},
		{hang: true},
	})
	f.start(t)

	eventually(t, "retry prompt", func() bool { return f.speaker.Said(promptRetryDestination) })

	if got := f.speaker.Count(promptYesOrNo); got != DefaultMaxAmbiguousReplies-1 {
		t.Fatalf("expected %d yes-or-no hints, got %d", DefaultMaxAmbiguousReplies-1, got)
	}
	if got := f.engine.PendingDestination(); got != "" {
		t.Fatalf("expected pending destination to be dropped, got %q", got)
	}
	if got := len(f.places.Queries()); got != 0 {
		t.Fatalf("expected no place lookup, got %d", got)
	}
}

func TestDialogRetriesTransientRecognitionErrors(t *testing.T) {
	f := newDialogFixture(t, []recognitionStep{
		{kind: speechtotext.ErrorKindNoSpeech},
		{kind: speechtotext.ErrorKindNetwork},
		{transcript: "강남역"},
		{hang: true},
	})
	f.start(t)

	eventually(t, "confirmation prompt", func() bool { return f.speaker.Said(confirmationPrompt("강남역")) })
	if got := f.speaker.Count(promptNotRecognized); got != 2 {
		t.Fatalf("expected two not-recognized prompts, got %d", got)
	}
	if got := f.engine.PendingDestination(); got != "강남역" {
		t.Fatalf("expected pending destination, got %q", got)
	}
}

func TestDialogRepeatedSilenceAsksForDestinationAgain(t *testing.T) {
	f := newDialogFixture(t, []recognitionStep{
		{transcript: "강남역"},
		{kind: speechtotext.ErrorKindNoSpeech},
		{kind: speechtotext.ErrorKindNoSpeech},
		{hang: true},
	}, WithMaxRecognitionRetries(2))
	f.start(t)

	eventually(t, "retry prompt", func() bool { return f.speaker.Said(promptRetryDestination) })
	eventually(t, "listening again", func() bool { return f.recognizer.Calls() == 4 })

	select {
	case <-f.engine.Done():
		t.Fatalf("expected the dialog to keep running, got %v", f.engine.Err())
	default:
	}
	if got := f.engine.PendingDestination(); got != "" {
		t.Fatalf("expected pending destination to be cleared, got %q", got)
	}
	if f.speaker.Said(promptRecognitionFailed) {
		t.Fatalf("expected no give-up prompt, got %v", f.speaker.Spoken())
	}

	timedOut := false
	for _, event := range f.recorder.Events() {
		if status, ok := event.(events.StatusUpdated); ok && errors.Is(status.Err, ErrDialogTimeout) {
			timedOut = true
		}
	}
	if !timedOut {
		t.Fatalf("expected a timeout status, got %v", f.recorder.Kinds())
	}
}

func TestDialogMicrophonePermissionFails(t *testing.T) {
	f := newDialogFixture(t, []recognitionStep{{kind: speechtotext.ErrorKindNotAllowed}})
	f.start(t)

	if err := f.wait(t); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if !f.speaker.Said(promptMicrophonePermission) {
		t.Fatalf("expected microphone permission prompt, got %v", f.speaker.Spoken())
	}
}

func TestDialogSubmitReplyConfirmsWithoutMicrophone(t *testing.T) {
	f := newDialogFixture(t, nil)

	if err := f.engine.SubmitReply("강남역"); !errors.Is(err, ErrNotListening) {
		t.Fatalf("expected ErrNotListening before start, got %v", err)
	}

	f.start(t)
	eventually(t, "listening", func() bool { return f.engine.State() == DialogListening })
	if err := f.engine.SubmitReply("강남역"); err != nil {
		t.Fatalf("expected reply to be accepted, got %v", err)
	}

	eventually(t, "pending destination", func() bool { return f.engine.PendingDestination() == "강남역" })
	if err := f.engine.SubmitReply("예"); err != nil {
		t.Fatalf("expected confirmation to be accepted, got %v", err)
	}

	if err := f.wait(t); err != nil {
		t.Fatalf("expected dialog to resolve, got %v", err)
	}
	if got := len(f.routes.Requests()); got != 1 {
		t.Fatalf("expected one route lookup, got %d", got)
	}

	typed := false
	for _, event := range f.recorder.Events() {
		if final, ok := event.(events.UserTranscriptFinal); ok && final.Typed {
			typed = true
		}
	}
	if !typed {
		t.Fatalf("expected typed transcript events")
	}
}

func TestDialogSearchFailureReturnsToPrompting(t *testing.T) {
	f := newDialogFixture(t, []recognitionStep{
		{transcript: "없는곳"},
		{transcript: "네"},
		{hang: true},
	})
	f.places.places = nil
	f.start(t)

	eventually(t, "not found prompt", func() bool { return f.speaker.Said(promptNotFound) })
	eventually(t, "listening again", func() bool { return f.recognizer.Calls() == 3 })
	if got := len(f.routes.Requests()); got != 0 {
		t.Fatalf("expected no route lookup without a place, got %d", got)
	}
	if _, ok := f.engine.Result(); ok {
		t.Fatalf("expected no result")
	}
}

func TestDialogLocationPermissionFails(t *testing.T) {
	speaker := newRecordingSpeaker()
	channel := NewVoiceChannel(NewPlaybackQueue(WithLocalSpeaker(speaker)), newScriptedRecognizer())
	locator := geolocation.NewReplay(geolocation.Step{Err: geolocation.ErrPermissionDenied})
	engine := NewDialogEngine(channel, locator, &stubPlaces{}, &stubRoutes{})

	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("expected dialog to start, got %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	if err := engine.Wait(ctx); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if !speaker.Said(promptLocationUnavailable) {
		t.Fatalf("expected location prompt, got %v", speaker.Spoken())
	}
}

func TestDialogRefusesBusyVoiceChannel(t *testing.T) {
	f := newDialogFixture(t, []recognitionStep{{hang: true}})
	f.start(t)

	other := NewDialogEngine(f.channel, geolocation.NewStatic(seoulCityHall, 5), f.places, f.routes)
	if err := other.Start(context.Background()); !errors.Is(err, ErrVoiceChannelBusy) {
		t.Fatalf("expected ErrVoiceChannelBusy, got %v", err)
	}
}

func TestClassifyReply(t *testing.T) {
	tests := []struct {
		transcript string
		want       replyKind
	}{
		{"네", replyAffirmative},
		{"예 맞아요!", replyAffirmative},
		{"아니요", replyNegative},
		{"틀렸어.", replyNegative},
		{"아니 네 맞아", replyAffirmative},
		{"글쎄", replyAmbiguous},
		{"", replyAmbiguous},
	}
	for _, tt := range tests {
		if got := classifyReply(tt.transcript); got != tt.want {
			t.Fatalf("expected %q to be %s, got %s", tt.transcript, tt.want, got)
		}
	}
}

func TestNormalizeTranscript(t *testing.T) {
	if got := normalizeTranscript("  강남역,   2호선! "); got != "강남역 2호선" {
		t.Fatalf("expected normalized transcript, got %q", got)
	}
}

func TestDialogStateTransitions(t *testing.T) {
	if !DialogResolved.canTransitionTo(DialogPrompting) {
		t.Fatalf("expected Resolved to fall back to Prompting")
	}
	if DialogFailed.canTransitionTo(DialogPrompting) {
		t.Fatalf("expected Failed to be final")
	}
	if DialogAwaitingConfirmation.canTransitionTo(DialogResolved) {
		t.Fatalf("expected confirmation to require a new listening turn")
	}
}
