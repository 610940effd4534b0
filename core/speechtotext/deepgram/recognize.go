// Package deepgram implements single-shot speech recognition on top of the
// Deepgram live transcription websocket, fed by a local microphone.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
	"github.com/koscakluka/safewalk-core/core/speechtotext"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const defaultListenURL = "wss://api.deepgram.com/v1/listen"

// Microphone is the capture side of an audio device.
type Microphone interface {
	StartCapture(ctx context.Context, onAudio func(audio []byte)) error
	StopCapture() error
}

type Recognizer struct {
	microphone Microphone
	apiKey     string
	model      string
	listenURL  string
	dialer     *websocket.Dialer

	// busy keeps recognitions non-overlapping, a single microphone feeds one
	// socket at a time.
	busy sync.Mutex
}

type RecognizerOption func(*Recognizer)

// WithAPIKey overrides the DEEPGRAM_API_KEY environment variable.
func WithAPIKey(apiKey string) RecognizerOption {
	return func(r *Recognizer) { r.apiKey = apiKey }
}

func WithModel(model string) RecognizerOption {
	return func(r *Recognizer) { r.model = model }
}

// WithListenURL points the recognizer at a different listen endpoint, mostly
// useful for tests.
func WithListenURL(listenURL string) RecognizerOption {
	return func(r *Recognizer) { r.listenURL = listenURL }
}

func NewRecognizer(microphone Microphone, opts ...RecognizerOption) *Recognizer {
	r := &Recognizer{
		microphone: microphone,
		apiKey:     os.Getenv("DEEPGRAM_API_KEY"),
		model:      "nova-2",
		listenURL:  defaultListenURL,
		dialer:     websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Recognize listens for a single utterance. It returns once listening has
// started; the outcome is reported through the option callbacks and the end
// callback is always invoked last. Errors returned directly mean recognition
// never started and no callback will fire.
func (r *Recognizer) Recognize(ctx context.Context, opts ...speechtotext.RecognitionOption) error {
	options := speechtotext.NewRecognitionOptions(opts...)

	if r.microphone == nil {
		return speechtotext.NewRecognitionError(speechtotext.ErrorKindUnsupported, errors.New("no microphone configured"))
	}
	if r.apiKey == "" {
		return speechtotext.NewRecognitionError(speechtotext.ErrorKindUnsupported, errors.New("deepgram api key not found"))
	}

	format, err := newListenFormat(options.EncodingInfo)
	if err != nil {
		return speechtotext.NewRecognitionError(speechtotext.ErrorKindUnsupported, fmt.Errorf("invalid encoding: %w", err))
	}

	if !r.busy.TryLock() {
		return speechtotext.NewRecognitionError(speechtotext.ErrorKindAborted, errors.New("recognition already in progress"))
	}

	ctx, span := tracer.Start(ctx, "recognize speech")
	span.SetAttributes(attribute.String("language", options.Language))

	conn, err := r.connect(ctx, connectionOptions{
		format:   format,
		language: options.Language,
		interim:  true,
	})
	if err != nil {
		r.busy.Unlock()
		err = speechtotext.NewRecognitionError(speechtotext.ErrorKindNetwork, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return err
	}

	listenCtx, cancel := context.WithCancel(ctx)
	session := newRecognitionSession(conn, options, cancel)

	if err := r.microphone.StartCapture(listenCtx, session.sendAudio); err != nil {
		cancel()
		_ = conn.Close()
		r.busy.Unlock()
		err = speechtotext.NewRecognitionError(speechtotext.ErrorKindNotAllowed, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return err
	}

	options.StartCallback()

	go func() {
		defer span.End()

		outcome := session.run(listenCtx)
		if err := r.microphone.StopCapture(); err != nil {
			logger.Warn("failed to stop microphone capture", "error", err)
		}
		session.close()
		// free before the callbacks so they may start the next recognition
		r.busy.Unlock()

		switch {
		case outcome.err != nil:
			span.RecordError(outcome.err)
			span.SetStatus(codes.Error, outcome.err.Error())
			options.ErrorCallback(outcome.err)
		default:
			span.SetAttributes(attribute.Int("transcript.length", len(outcome.transcript)))
			options.ResultCallback(outcome.transcript)
		}
		options.EndCallback()
	}()

	return nil
}

type connectionOptions struct {
	format   listenFormat
	language string
	interim  bool
}

func (r *Recognizer) connect(ctx context.Context, options connectionOptions) (*websocket.Conn, error) {
	listenURL, err := url.Parse(r.listenURL)
	if err != nil {
		return nil, fmt.Errorf("invalid listen url: %w", err)
	}

	queryParams := listenURL.Query()
	queryParams.Set("encoding", options.format.encoding)
	queryParams.Set("sample_rate", strconv.Itoa(options.format.sampleRate))
	queryParams.Set("channels", strconv.Itoa(options.format.channels))
	queryParams.Set("model", r.model)
	queryParams.Set("language", strings.Split(options.language, "-")[0])
	queryParams.Set("smart_format", "true")
	queryParams.Set("utterance_end_ms", "1000")
	queryParams.Set("endpointing", "300")
	queryParams.Set("vad_events", "true")
	if options.interim {
		queryParams.Set("interim_results", "true")
	}
	listenURL.RawQuery = queryParams.Encode()

	conn, _, err := r.dialer.DialContext(ctx, listenURL.String(),
		http.Header{"Authorization": {"Token " + r.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	return conn, nil
}

type recognitionOutcome struct {
	transcript string
	err        *speechtotext.RecognitionError
}

type recognitionSession struct {
	conn    *websocket.Conn
	connMu  sync.Mutex
	options speechtotext.RecognitionOptions
	cancel  context.CancelFunc

	speechStarted         bool
	accumulatedTranscript string
}

func newRecognitionSession(conn *websocket.Conn, options speechtotext.RecognitionOptions, cancel context.CancelFunc) *recognitionSession {
	return &recognitionSession{conn: conn, options: options, cancel: cancel}
}

func (s *recognitionSession) sendAudio(audio []byte) {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil {
		return
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		logger.Debug("failed to write audio to deepgram", "error", err)
	}
}

// run reads transcription messages until an utterance is complete, the
// connection drops, silence times out or the context is cancelled.
func (s *recognitionSession) run(ctx context.Context) recognitionOutcome {
	// close clears s.conn, the reader keeps its own reference and exits once
	// the connection is closed underneath it.
	s.connMu.Lock()
	conn := s.conn
	s.connMu.Unlock()
	if conn == nil {
		return recognitionOutcome{err: speechtotext.NewRecognitionError(speechtotext.ErrorKindAborted, errors.New("connection closed"))}
	}

	messages := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		for {
			msgType, msg, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			if msgType == websocket.BinaryMessage {
				continue
			}
			select {
			case messages <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	var silence <-chan time.Time
	if s.options.SilenceTimeout > 0 {
		timer := time.NewTimer(s.options.SilenceTimeout)
		defer timer.Stop()
		silence = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return recognitionOutcome{err: speechtotext.NewRecognitionError(speechtotext.ErrorKindAborted, ctx.Err())}
		case <-silence:
			if !s.speechStarted {
				return recognitionOutcome{err: speechtotext.NewRecognitionError(speechtotext.ErrorKindNoSpeech, errors.New("no speech detected"))}
			}
		case err := <-readErr:
			if transcript := strings.TrimSpace(s.accumulatedTranscript); transcript != "" {
				return recognitionOutcome{transcript: transcript}
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return recognitionOutcome{err: speechtotext.NewRecognitionError(speechtotext.ErrorKindNoSpeech, err)}
			}
			return recognitionOutcome{err: speechtotext.NewRecognitionError(speechtotext.ErrorKindNetwork, err)}
		case msg := <-messages:
			if transcript, done := s.processMessage(msg); done {
				return recognitionOutcome{transcript: transcript}
			}
		}
	}
}

// processMessage folds a single Deepgram message into the session and reports
// whether the utterance is complete.
func (s *recognitionSession) processMessage(msg []byte) (string, bool) {
	var parsedMsg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		logger.Debug("failed to unmarshal deepgram message", "error", err)
		return "", false
	}

	switch api.TypeResponse(parsedMsg.Type) {
	case api.TypeMessageResponse:
		var msgResp api.MessageResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			logger.Debug("failed to unmarshal deepgram results", "error", err)
			return "", false
		}
		if len(msgResp.Channel.Alternatives) == 0 {
			return "", false
		}

		transcript := strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript)
		if transcript != "" {
			s.speechStarted = true
		}
		if !msgResp.IsFinal {
			if transcript != "" {
				s.options.InterimCallback(strings.TrimSpace(s.accumulatedTranscript + " " + transcript))
			}
			return "", false
		}

		if transcript != "" {
			s.accumulatedTranscript = strings.TrimSpace(s.accumulatedTranscript + " " + transcript)
		}
		if msgResp.SpeechFinal && s.accumulatedTranscript != "" {
			return s.accumulatedTranscript, true
		}

	case api.TypeUtteranceEndResponse:
		if s.accumulatedTranscript != "" {
			return s.accumulatedTranscript, true
		}

	case api.TypeSpeechStartedResponse:
		s.speechStarted = true
	}

	return "", false
}

func (s *recognitionSession) close() {
	s.cancel()

	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return
	}

	if err := s.conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: string(api.TypeCloseStreamResponse)}); err != nil {
		logger.Debug("failed to send close stream to deepgram", "error", err)
	}
	_ = s.conn.Close()
	s.conn = nil
}
