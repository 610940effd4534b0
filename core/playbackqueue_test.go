package guidance

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/koscakluka/safewalk-core/core/events"
)

func TestPlaybackQueueSpeaksInOrderWithoutOverlap(t *testing.T) {
	speaker := newRecordingSpeaker()
	speaker.delay = 10 * time.Millisecond
	queue := NewPlaybackQueue(WithLocalSpeaker(speaker))

	texts := []string{"첫째", "둘째", "셋째", "넷째", "다섯째"}
	var last *Utterance
	for _, text := range texts {
		last = queue.Enqueue(text)
	}
	if !queue.IsSpeaking() {
		t.Fatalf("expected queue to report speaking after enqueue")
	}

	waitClosed(t, "last utterance to be spoken", last.Spoken())

	if got := speaker.Spoken(); !slices.Equal(got, texts) {
		t.Fatalf("expected utterances spoken in order %v, got %v", texts, got)
	}
	if speaker.Overlapped() {
		t.Fatalf("expected utterances to never overlap")
	}

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	if err := queue.WaitIdle(ctx); err != nil {
		t.Fatalf("expected queue to become idle, got %v", err)
	}
	if queue.IsSpeaking() {
		t.Fatalf("expected queue to stop speaking once drained")
	}
}

func TestPlaybackQueueFlushDiscardsPendingAndCurrent(t *testing.T) {
	speaker := newRecordingSpeaker()
	speaker.block = true
	recorder := &eventRecorder{}
	queue := NewPlaybackQueue(WithLocalSpeaker(speaker), WithPlaybackEventHandler(recorder.handle))

	utterances := []*Utterance{queue.Enqueue("하나"), queue.Enqueue("둘"), queue.Enqueue("셋")}
	select {
	case text := <-speaker.started:
		if text != "하나" {
			t.Fatalf("expected first utterance to start, got %q", text)
		}
	case <-time.After(testTimeout):
		t.Fatalf("expected playback to start")
	}

	queue.Flush()

	for i, u := range utterances {
		waitClosed(t, "utterance to be discarded", u.Discarded())
		select {
		case <-u.Spoken():
			t.Fatalf("expected utterance %d to never be resolved as spoken", i)
		default:
		}
	}
	if queue.Len() != 0 {
		t.Fatalf("expected empty queue after flush, got %d", queue.Len())
	}
	if queue.IsSpeaking() {
		t.Fatalf("expected queue to stop speaking after flush")
	}
	if recorder.Has(events.KindUtteranceSpoken) {
		t.Fatalf("expected no spoken events for flushed utterances")
	}

	speaker.mu.Lock()
	speaker.block = false
	speaker.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	if err := queue.Speak(ctx, "다시"); err != nil {
		t.Fatalf("expected queue to keep working after flush, got %v", err)
	}
	if got := speaker.Spoken(); !slices.Equal(got, []string{"다시"}) {
		t.Fatalf("expected only the new utterance to be spoken, got %v", got)
	}
}

func TestPlaybackQueueSpeakReturnsDiscardedOnFlush(t *testing.T) {
	speaker := newRecordingSpeaker()
	speaker.block = true
	queue := NewPlaybackQueue(WithLocalSpeaker(speaker))

	result := make(chan error, 1)
	go func() { result <- queue.Speak(context.Background(), "멈춤") }()

	<-speaker.started
	queue.Flush()

	select {
	case err := <-result:
		if !errors.Is(err, ErrUtteranceDiscarded) {
			t.Fatalf("expected ErrUtteranceDiscarded, got %v", err)
		}
	case <-time.After(testTimeout):
		t.Fatalf("expected Speak to return after flush")
	}
}

func TestPlaybackQueuePrefersRemoteVoice(t *testing.T) {
	speaker := newRecordingSpeaker()
	player := &recordingPlayer{}
	queue := NewPlaybackQueue(WithRemoteSynthesizer(stubSynthesizer{}, player), WithLocalSpeaker(speaker))

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	if err := queue.Speak(ctx, "안녕하세요"); err != nil {
		t.Fatalf("expected remote playback to succeed, got %v", err)
	}

	if got := player.Played(); !slices.Equal(got, []string{"안녕하세요"}) {
		t.Fatalf("expected remote clip to be played, got %v", got)
	}
	if got := speaker.Spoken(); len(got) != 0 {
		t.Fatalf("expected local voice to stay silent, got %v", got)
	}
}

func TestPlaybackQueueFallsBackToLocalVoice(t *testing.T) {
	speaker := newRecordingSpeaker()
	player := &recordingPlayer{}
	recorder := &eventRecorder{}
	queue := NewPlaybackQueue(
		WithRemoteSynthesizer(failingSynthesizer{}, player),
		WithLocalSpeaker(speaker),
		WithPlaybackEventHandler(recorder.handle))

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	if err := queue.Speak(ctx, "경로를 찾습니다"); err != nil {
		t.Fatalf("expected local fallback to succeed, got %v", err)
	}

	if !speaker.Said("경로를 찾습니다") {
		t.Fatalf("expected local voice to speak the utterance, got %v", speaker.Spoken())
	}
	if len(player.Played()) != 0 {
		t.Fatalf("expected nothing played remotely")
	}
	if !recorder.Has(events.KindSpeechFallbackUsed) {
		t.Fatalf("expected fallback event, got %v", recorder.Kinds())
	}
}

func TestPlaybackQueueMovesOnWhenBothVoicesFail(t *testing.T) {
	speaker := newRecordingSpeaker()
	speaker.err = errors.New("speaker busy")
	recorder := &eventRecorder{}
	queue := NewPlaybackQueue(
		WithRemoteSynthesizer(failingSynthesizer{}, &recordingPlayer{}),
		WithLocalSpeaker(speaker),
		WithPlaybackEventHandler(recorder.handle))

	failed := queue.Enqueue("실패")
	next := queue.Enqueue("다음")

	waitClosed(t, "failed utterance to resolve", failed.Spoken())
	if failed.Err() == nil {
		t.Fatalf("expected failed utterance to carry an error")
	}
	waitClosed(t, "next utterance to resolve", next.Spoken())

	found := false
	for _, event := range recorder.Events() {
		if status, ok := event.(events.StatusUpdated); ok && status.IsError() {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a failure status, got %v", recorder.Kinds())
	}
}

func TestPlaybackQueueResolvesBlankTextImmediately(t *testing.T) {
	queue := NewPlaybackQueue(WithLocalSpeaker(newRecordingSpeaker()))

	u := queue.Enqueue("   ")
	select {
	case <-u.Spoken():
	default:
		t.Fatalf("expected blank utterance to resolve immediately")
	}
	if queue.IsSpeaking() {
		t.Fatalf("expected blank utterance not to start playback")
	}
}

func TestPlaybackQueueDiscardsAfterClose(t *testing.T) {
	queue := NewPlaybackQueue(WithLocalSpeaker(newRecordingSpeaker()))
	queue.Close()

	u := queue.Enqueue("닫힘")
	select {
	case <-u.Discarded():
	default:
		t.Fatalf("expected utterance enqueued after close to be discarded")
	}
}
