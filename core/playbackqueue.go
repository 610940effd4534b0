package guidance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/koscakluka/safewalk-core/core/events"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

const DefaultRemoteSynthesisTimeout = 15 * time.Second

var (
	errRemoteVoiceUnavailable = errors.New("remote voice not configured")
	errLocalVoiceUnavailable  = errors.New("local voice not configured")
)

// Utterance is a single prompt waiting in, or played by, a PlaybackQueue.
// Exactly one of Spoken and Discarded is eventually closed.
type Utterance struct {
	ID   string
	Text string

	spoken    chan struct{}
	discarded chan struct{}
	resolved  bool
	err       error
}

func newUtterance(text string) *Utterance {
	return &Utterance{
		ID:        uuid.NewString(),
		Text:      text,
		spoken:    make(chan struct{}),
		discarded: make(chan struct{}),
	}
}

// Spoken is closed once playback of the utterance ended.
func (u *Utterance) Spoken() <-chan struct{} { return u.spoken }

// Discarded is closed when the utterance was flushed before it finished.
func (u *Utterance) Discarded() <-chan struct{} { return u.discarded }

// Err reports why neither voice could play the utterance. It is only
// meaningful after Spoken is closed; the queue moves on either way.
func (u *Utterance) Err() error {
	select {
	case <-u.spoken:
		return u.err
	default:
		return nil
	}
}

// PlaybackQueue speaks prompts strictly one after another. Each prompt is
// synthesized remotely and played; if that fails for any reason the local
// voice speaks it instead.
type PlaybackQueue struct {
	remote        RemoteSynthesizer
	player        Player
	local         LocalSpeaker
	remoteTimeout time.Duration
	emitEvent     eventEmitter

	mu            sync.Mutex
	pending       []*Utterance
	current       *Utterance
	cancelCurrent context.CancelFunc
	draining      bool
	idle          chan struct{}
	closed        bool

	speaking atomic.Bool
}

type PlaybackQueueOption func(*PlaybackQueue)

func WithRemoteSynthesizer(remote RemoteSynthesizer, player Player) PlaybackQueueOption {
	return func(q *PlaybackQueue) {
		q.remote = remote
		q.player = player
	}
}

func WithLocalSpeaker(local LocalSpeaker) PlaybackQueueOption {
	return func(q *PlaybackQueue) { q.local = local }
}

// WithRemoteSynthesisTimeout bounds the remote synthesis request. Playback of
// the returned clip is not bounded.
func WithRemoteSynthesisTimeout(timeout time.Duration) PlaybackQueueOption {
	return func(q *PlaybackQueue) {
		if timeout > 0 {
			q.remoteTimeout = timeout
		}
	}
}

func WithPlaybackEventHandler(handlers ...EventHandler) PlaybackQueueOption {
	return func(q *PlaybackQueue) { q.emitEvent = newEventEmitter(handlers...) }
}

func NewPlaybackQueue(opts ...PlaybackQueueOption) *PlaybackQueue {
	idle := make(chan struct{})
	close(idle)

	q := &PlaybackQueue{
		remoteTimeout: DefaultRemoteSynthesisTimeout,
		emitEvent:     noopEventEmitter,
		idle:          idle,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue appends text to the queue and starts playback if nothing is
// playing. Blank text is resolved immediately without being spoken.
func (q *PlaybackQueue) Enqueue(text string) *Utterance {
	u := newUtterance(text)

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.discardLocked(u)
		return u
	}
	if strings.TrimSpace(text) == "" {
		q.resolveLocked(u, nil)
		return u
	}

	q.pending = append(q.pending, u)
	q.speaking.Store(true)
	q.emitEvent(events.NewUtteranceQueued(u.ID, u.Text))
	if !q.draining {
		q.draining = true
		q.idle = make(chan struct{})
		go q.drain()
	}
	return u
}

// Speak enqueues text and waits until it was spoken. A flushed utterance
// returns ErrUtteranceDiscarded. If both voices failed, the error is returned
// but the queue has already moved on.
func (q *PlaybackQueue) Speak(ctx context.Context, text string) error {
	u := q.Enqueue(text)
	select {
	case <-u.Spoken():
		return u.Err()
	case <-u.Discarded():
		return ErrUtteranceDiscarded
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush stops the current utterance and drops everything queued. Dropped
// utterances are never resolved as spoken.
func (q *PlaybackQueue) Flush() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.flushLocked()
}

func (q *PlaybackQueue) flushLocked() {
	for _, u := range q.pending {
		q.discardLocked(u)
	}
	q.pending = nil

	if q.current != nil {
		q.discardLocked(q.current)
		q.current = nil
		q.cancelCurrent()
		q.cancelCurrent = nil
		if q.player != nil {
			if err := q.player.Stop(); err != nil {
				logger.Warn("failed to stop playback", "error", err)
			}
		}
	}
	q.speaking.Store(false)
}

// Close flushes the queue. Anything enqueued afterwards is discarded.
func (q *PlaybackQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.flushLocked()
}

// IsSpeaking reports whether an utterance is playing or waiting to play.
func (q *PlaybackQueue) IsSpeaking() bool {
	return q.speaking.Load()
}

// Len reports the number of utterances waiting behind the current one.
func (q *PlaybackQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// WaitIdle blocks until the queue has nothing left to play.
func (q *PlaybackQueue) WaitIdle(ctx context.Context) error {
	for {
		q.mu.Lock()
		idle := q.idle
		busy := q.current != nil || len(q.pending) > 0
		q.mu.Unlock()

		if !busy {
			return nil
		}
		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (q *PlaybackQueue) drain() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.draining = false
			q.speaking.Store(false)
			close(q.idle)
			q.mu.Unlock()
			return
		}
		u := q.pending[0]
		q.pending = q.pending[1:]
		ctx, cancel := context.WithCancel(context.Background())
		q.current = u
		q.cancelCurrent = cancel
		q.speaking.Store(true)
		q.emitEvent(events.NewUtteranceStarted(u.ID, u.Text))
		q.mu.Unlock()

		err := q.speak(ctx, u)

		q.mu.Lock()
		if q.current == u {
			q.current = nil
			q.cancelCurrent = nil
			q.resolveLocked(u, err)
		}
		q.mu.Unlock()
		cancel()
	}
}

func (q *PlaybackQueue) speak(ctx context.Context, u *Utterance) error {
	ctx, span := tracer.Start(ctx, "speak utterance")
	defer span.End()
	span.SetAttributes(attribute.String("utterance.id", u.ID), attribute.Int("utterance.length", len(u.Text)))

	remoteErr := q.speakRemote(ctx, u.Text)
	if remoteErr == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	logger.Info("remote voice failed, using local voice", "utterance", u.ID, "error", remoteErr)
	span.AddEvent("fallback to local voice")
	speechFallbacks.Add(ctx, 1)
	q.emitEvent(events.NewSpeechFallbackUsed(u.ID, u.Text, remoteErr))

	if q.local == nil {
		err := errors.Join(remoteErr, errLocalVoiceUnavailable)
		span.RecordError(err)
		span.SetStatus(codes.Error, "no voice could speak the utterance")
		return err
	}
	if err := q.local.Speak(ctx, u.Text); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err = errors.Join(remoteErr, fmt.Errorf("local voice failed: %w", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "no voice could speak the utterance")
		return err
	}
	return nil
}

func (q *PlaybackQueue) speakRemote(ctx context.Context, text string) error {
	if q.remote == nil || q.player == nil {
		return errRemoteVoiceUnavailable
	}

	synthesisCtx, cancel := context.WithTimeout(ctx, q.remoteTimeout)
	clip, err := q.remote.Synthesize(synthesisCtx, text)
	cancel()
	if err != nil {
		return fmt.Errorf("remote synthesis failed: %w", err)
	}

	if err := q.player.Play(ctx, clip); err != nil {
		return fmt.Errorf("playback failed: %w", err)
	}
	return nil
}

func (q *PlaybackQueue) resolveLocked(u *Utterance, err error) {
	if u.resolved {
		return
	}
	u.resolved = true
	u.err = err
	close(u.spoken)

	utterancesSpoken.Add(context.Background(), 1, metric.WithAttributes(attribute.Bool("failed", err != nil)))
	if err != nil {
		logger.Warn("utterance could not be spoken", "utterance", u.ID, "error", err)
		q.emitEvent(events.NewStatusFailed("음성 안내를 재생하지 못했습니다.", err))
	}
	q.emitEvent(events.NewUtteranceSpoken(u.ID, u.Text, err))
}

func (q *PlaybackQueue) discardLocked(u *Utterance) {
	if u.resolved {
		return
	}
	u.resolved = true
	close(u.discarded)
	q.emitEvent(events.NewUtteranceDiscarded(u.ID, u.Text))
}
