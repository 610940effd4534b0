package deepgram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/safewalk-core/core/speechtotext"
)

func TestProcessMessageCompletesOnSpeechFinal(t *testing.T) {
	interim := []string{}
	session := newRecognitionSession(nil, speechtotext.NewRecognitionOptions(
		speechtotext.WithInterimCallback(func(transcript string) { interim = append(interim, transcript) }),
	), func() {})

	if _, done := session.processMessage([]byte(`{"type":"SpeechStarted"}`)); done {
		t.Fatalf("expected speech start not to complete the utterance")
	}
	if _, done := session.processMessage(resultsMessage("강남", false, false)); done {
		t.Fatalf("expected interim result not to complete the utterance")
	}
	if _, done := session.processMessage(resultsMessage("강남역", true, false)); done {
		t.Fatalf("expected final segment without speech_final not to complete the utterance")
	}
	transcript, done := session.processMessage(resultsMessage("", true, true))
	if !done || transcript != "강남역" {
		t.Fatalf("expected utterance %q to complete, got %q (done=%v)", "강남역", transcript, done)
	}

	if len(interim) != 1 || interim[0] != "강남" {
		t.Fatalf("expected interim callbacks [강남], got %v", interim)
	}
}

func TestProcessMessageCompletesOnUtteranceEnd(t *testing.T) {
	session := newRecognitionSession(nil, speechtotext.NewRecognitionOptions(), func() {})

	if _, done := session.processMessage([]byte(`{"type":"UtteranceEnd"}`)); done {
		t.Fatalf("expected utterance end without transcript not to complete")
	}
	session.processMessage(resultsMessage("네", true, false))
	transcript, done := session.processMessage([]byte(`{"type":"UtteranceEnd"}`))
	if !done || transcript != "네" {
		t.Fatalf("expected utterance end to complete with %q, got %q (done=%v)", "네", transcript, done)
	}
}

func TestProcessMessageIgnoresGarbage(t *testing.T) {
	session := newRecognitionSession(nil, speechtotext.NewRecognitionOptions(), func() {})

	for _, msg := range []string{"not json", `{"type":"Metadata"}`, `{"type":"Results","channel":{"alternatives":[]}}`} {
		if _, done := session.processMessage([]byte(msg)); done {
			t.Fatalf("expected %q to be ignored", msg)
		}
	}
}

func TestRecognizeWithoutMicrophoneIsUnsupported(t *testing.T) {
	recognizer := NewRecognizer(nil, WithAPIKey("key"))

	err := recognizer.Recognize(context.Background())
	if !errors.Is(err, speechtotext.ErrUnsupported) {
		t.Fatalf("expected unsupported error, got %v", err)
	}
}

func TestRecognizeDeliversTranscriptThenEnd(t *testing.T) {
	server := newListenServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, resultsMessage("네 맞아요", true, true))
	})
	defer server.Close()

	mic := &microphoneStub{}
	recognizer := NewRecognizer(mic, WithAPIKey("key"), WithListenURL("ws"+strings.TrimPrefix(server.URL, "http")))

	var (
		mu     sync.Mutex
		order  []string
		result string
	)
	ended := make(chan struct{})
	err := recognizer.Recognize(context.Background(),
		speechtotext.WithStartCallback(func() { mu.Lock(); order = append(order, "start"); mu.Unlock() }),
		speechtotext.WithResultCallback(func(transcript string) {
			mu.Lock()
			order = append(order, "result")
			result = transcript
			mu.Unlock()
		}),
		speechtotext.WithErrorCallback(func(err *speechtotext.RecognitionError) {
			mu.Lock()
			order = append(order, "error:"+string(err.Kind))
			mu.Unlock()
		}),
		speechtotext.WithEndCallback(func() {
			mu.Lock()
			order = append(order, "end")
			mu.Unlock()
			close(ended)
		}),
	)
	if err != nil {
		t.Fatalf("expected recognition to start, got %v", err)
	}

	select {
	case <-ended:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected recognition to end")
	}

	mu.Lock()
	defer mu.Unlock()
	if strings.Join(order, ",") != "start,result,end" {
		t.Fatalf("expected callbacks start,result,end, got %v", order)
	}
	if result != "네 맞아요" {
		t.Fatalf("expected transcript %q, got %q", "네 맞아요", result)
	}
	if mic.stops.Load() != 1 {
		t.Fatalf("expected microphone to be stopped once, got %d", mic.stops.Load())
	}
}

func TestRecognizeCancellationReportsAborted(t *testing.T) {
	server := newListenServer(t, func(conn *websocket.Conn) {
		// never answer, keep the socket open until the client leaves
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	recognizer := NewRecognizer(&microphoneStub{}, WithAPIKey("key"), WithListenURL("ws"+strings.TrimPrefix(server.URL, "http")))

	ctx, cancel := context.WithCancel(context.Background())
	kinds := make(chan speechtotext.ErrorKind, 1)
	ended := make(chan struct{})
	if err := recognizer.Recognize(ctx,
		speechtotext.WithErrorCallback(func(err *speechtotext.RecognitionError) { kinds <- err.Kind }),
		speechtotext.WithEndCallback(func() { close(ended) }),
	); err != nil {
		t.Fatalf("expected recognition to start, got %v", err)
	}

	cancel()

	select {
	case <-ended:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected recognition to end after cancellation")
	}
	if kind := <-kinds; kind != speechtotext.ErrorKindAborted {
		t.Fatalf("expected aborted error, got %q", kind)
	}
}

func TestRecognizeCancelledImmediatelyEndsCleanly(t *testing.T) {
	server := newListenServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	recognizer := NewRecognizer(&microphoneStub{}, WithAPIKey("key"), WithListenURL("ws"+strings.TrimPrefix(server.URL, "http")))

	for i := range 50 {
		ctx, cancel := context.WithCancel(context.Background())
		ended := make(chan struct{})
		var aborted atomic.Bool
		if err := recognizer.Recognize(ctx,
			speechtotext.WithErrorCallback(func(err *speechtotext.RecognitionError) {
				aborted.Store(err.Kind == speechtotext.ErrorKindAborted)
			}),
			speechtotext.WithEndCallback(func() { close(ended) }),
		); err != nil {
			cancel()
			t.Fatalf("attempt %d: expected recognition to start, got %v", i, err)
		}
		cancel()

		select {
		case <-ended:
		case <-time.After(2 * time.Second):
			t.Fatalf("attempt %d: expected recognition to end after cancellation", i)
		}
		if !aborted.Load() {
			t.Fatalf("attempt %d: expected aborted error", i)
		}
	}
}

func resultsMessage(transcript string, isFinal, speechFinal bool) []byte {
	final := "false"
	if isFinal {
		final = "true"
	}
	speech := "false"
	if speechFinal {
		speech = "true"
	}
	return []byte(`{"type":"Results","is_final":` + final + `,"speech_final":` + speech +
		`,"channel":{"alternatives":[{"transcript":"` + transcript + `"}]}}`)
}

func newListenServer(t *testing.T, handle func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	}))
}

type microphoneStub struct {
	starts atomic.Int32
	stops  atomic.Int32
}

func (m *microphoneStub) StartCapture(context.Context, func([]byte)) error {
	m.starts.Add(1)
	return nil
}

func (m *microphoneStub) StopCapture() error {
	m.stops.Add(1)
	return nil
}
