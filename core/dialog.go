package guidance

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/koscakluka/safewalk-core/core/backend"
	"github.com/koscakluka/safewalk-core/core/events"
	"github.com/koscakluka/safewalk-core/core/geo"
	"github.com/koscakluka/safewalk-core/core/geolocation"
	"github.com/koscakluka/safewalk-core/core/speechtotext"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

const (
	DefaultListenTimeout         = 10 * time.Second
	DefaultMaxAmbiguousReplies   = 3
	DefaultMaxRecognitionRetries = 5
)

const (
	statusLocating               = "현재 위치 확인 중..."
	statusStopped                = "안내 종료됨"
	promptLocationConfirmed      = "현재 위치를 확인했습니다. 목적지를 말씀해 주세요."
	promptLocationUnavailable    = "위치 정보를 가져올 수 없습니다."
	promptLocationPermission     = "위치 권한을 허용해주세요."
	promptRetryDestination       = "죄송합니다. 목적지를 다시 말씀해주세요."
	promptYesOrNo                = `"네" 또는 "아니오"로 답해주세요.`
	promptNotFound               = "목적지를 찾을 수 없습니다. 다시 말씀해 주세요."
	promptRouteFailed            = "경로를 찾지 못했습니다. 다른 목적지를 말씀해 주세요."
	promptNotRecognized          = "음성을 인식하지 못했습니다."
	promptRecognitionUnsupported = "음성 인식을 지원하지 않습니다."
	promptMicrophonePermission   = "마이크 권한을 허용해주세요."
	promptRecognitionFailed      = "음성 인식에 실패했습니다. 안내를 종료합니다."
)

func confirmationPrompt(destination string) string {
	return `"` + destination + `" 맞나요?`
}

func acknowledgementPrompt(destination string) string {
	return `네, "` + destination + `"(으)로 경로를 찾습니다.`
}

func guidancePrompt(place string) string {
	return place + "까지 안내를 시작합니다."
}

// DialogResult is what a resolved dialog hands to the caller.
type DialogResult struct {
	// Query is the destination as the user confirmed it.
	Query string
	// Destination is the display name of the place that was found.
	Destination string
	Start       geo.Fix
	End         geo.Coordinate
	Route       backend.Route
}

// DialogEngine asks the user for a destination by voice, confirms it and
// plans a safe route to it. It holds the voice channel while running.
type DialogEngine struct {
	id      string
	channel *VoiceChannel
	locator Locator
	places  PlaceSearcher
	routes  RoutePlanner

	listenTimeout         time.Duration
	maxAmbiguousReplies   int
	maxRecognitionRetries int
	positionOptions       geolocation.PositionOptions
	recognitionOptions    []speechtotext.RecognitionOption
	emitEvent             eventEmitter
	eventHandlers         []EventHandler
	onRoute               func(DialogResult)
	onLocation            func(geo.Fix)
	onShutdown            func()

	disabled  atomic.Bool
	listening atomic.Bool

	mu      sync.Mutex
	active  bool
	runID   uint64
	state   DialogState
	pending string
	result  *DialogResult
	err     error
	cancel  context.CancelFunc
	turn    *recognitionTurn
	replies chan string
	done    chan struct{}
}

type DialogOption func(*DialogEngine)

func WithDialogEventHandler(handlers ...EventHandler) DialogOption {
	return func(d *DialogEngine) { d.eventHandlers = append(d.eventHandlers, handlers...) }
}

// WithStatusCallback receives every status line the dialog shows the user.
func WithStatusCallback(callback func(message string, err error)) DialogOption {
	return func(d *DialogEngine) { d.eventHandlers = append(d.eventHandlers, statusCallbackHandler(callback)) }
}

func WithRouteCallback(callback func(DialogResult)) DialogOption {
	return func(d *DialogEngine) { d.onRoute = callback }
}

// WithLocationCallback is called with the starting position once it is known.
func WithLocationCallback(callback func(geo.Fix)) DialogOption {
	return func(d *DialogEngine) { d.onLocation = callback }
}

// WithShutdownCallback is called after every run, however it ended.
func WithShutdownCallback(callback func()) DialogOption {
	return func(d *DialogEngine) { d.onShutdown = callback }
}

// WithMaxAmbiguousReplies bounds how often a confirmation is repeated before
// the candidate is dropped and the user is asked for a destination again.
// Zero or less removes the bound.
func WithMaxAmbiguousReplies(n int) DialogOption {
	return func(d *DialogEngine) { d.maxAmbiguousReplies = n }
}

// WithMaxRecognitionRetries bounds consecutive failed listening turns before
// the dialog asks for the destination again.
func WithMaxRecognitionRetries(n int) DialogOption {
	return func(d *DialogEngine) {
		if n > 0 {
			d.maxRecognitionRetries = n
		}
	}
}

// WithListenTimeout ends a listening turn that produced nothing. It counts as
// a turn without speech.
func WithListenTimeout(timeout time.Duration) DialogOption {
	return func(d *DialogEngine) {
		if timeout > 0 {
			d.listenTimeout = timeout
		}
	}
}

func WithPositionOptions(opts ...geolocation.PositionOption) DialogOption {
	return func(d *DialogEngine) {
		for _, opt := range opts {
			opt(&d.positionOptions)
		}
	}
}

func WithRecognitionOptions(opts ...speechtotext.RecognitionOption) DialogOption {
	return func(d *DialogEngine) { d.recognitionOptions = append(d.recognitionOptions, opts...) }
}

func NewDialogEngine(channel *VoiceChannel, locator Locator, places PlaceSearcher, routes RoutePlanner, opts ...DialogOption) *DialogEngine {
	if channel == nil {
		channel = NewVoiceChannel(nil, nil)
	}
	done := make(chan struct{})
	close(done)

	d := &DialogEngine{
		id:                    uuid.NewString(),
		channel:               channel,
		locator:               locator,
		places:                places,
		routes:                routes,
		listenTimeout:         DefaultListenTimeout,
		maxAmbiguousReplies:   DefaultMaxAmbiguousReplies,
		maxRecognitionRetries: DefaultMaxRecognitionRetries,
		positionOptions:       geolocation.NewPositionOptions(),
		emitEvent:             noopEventEmitter,
		state:                 DialogIdle,
		done:                  done,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.emitEvent = newEventEmitter(d.eventHandlers...)

	return d
}

// Start begins a new dialog run in the background. It fails if the voice
// channel is held elsewhere or voice guidance was disabled.
func (d *DialogEngine) Start(ctx context.Context) error {
	if d.disabled.Load() {
		return ErrVoiceDisabled
	}
	if d.locator == nil || d.places == nil || d.routes == nil {
		return errors.New("dialog engine requires a locator, a place searcher and a route planner")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active {
		return ErrVoiceChannelBusy
	}
	if err := d.channel.acquire(d.id); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.runID++
	d.active = true
	d.cancel = cancel
	d.pending = ""
	d.result = nil
	d.err = nil
	d.replies = make(chan string, 1)
	d.done = make(chan struct{})

	from := d.state
	d.state = DialogLocatingUser
	d.emitEvent(events.NewDialogStateChanged(from.String(), d.state.String()))

	run := &dialogRun{engine: d, ctx: runCtx, id: d.runID, replies: d.replies}
	go run.execute(d.done)

	return nil
}

// Stop cancels recognition, GPS and network requests, flushes the playback
// queue, clears the pending destination and releases the voice channel, all
// before it returns.
func (d *DialogEngine) Stop() {
	d.mu.Lock()
	after := d.teardownLocked(d.runID, DialogCancelled, nil)
	d.mu.Unlock()
	after()
}

// Done is closed when the current run has finished.
func (d *DialogEngine) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

// Wait blocks until the current run has finished and returns its error.
func (d *DialogEngine) Wait(ctx context.Context) error {
	select {
	case <-d.Done():
		return d.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubmitReply answers the current question without the microphone, as the
// confirmation buttons do.
func (d *DialogEngine) SubmitReply(text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.active || (d.state != DialogListening && d.state != DialogAwaitingConfirmation) {
		return ErrNotListening
	}
	select {
	case d.replies <- text:
		return nil
	default:
		return ErrNotListening
	}
}

func (d *DialogEngine) State() DialogState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *DialogEngine) PendingDestination() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

func (d *DialogEngine) IsListening() bool { return d.listening.Load() }

// Disabled reports whether voice guidance was turned off because speech
// recognition is not available.
func (d *DialogEngine) Disabled() bool { return d.disabled.Load() }

func (d *DialogEngine) Result() (DialogResult, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.result == nil {
		return DialogResult{}, false
	}
	return *d.result, true
}

// Err returns why the last run failed, or nil.
func (d *DialogEngine) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

func (d *DialogEngine) ownsLocked(runID uint64) bool {
	return d.active && d.runID == runID
}

func (d *DialogEngine) transitionLocked(runID uint64, to DialogState) bool {
	if !d.ownsLocked(runID) {
		return false
	}
	from := d.state
	if from == to {
		return true
	}
	if !from.canTransitionTo(to) {
		logger.Warn("refusing dialog transition", "from", from.String(), "to", to.String())
		return false
	}
	d.state = to
	d.emitEvent(events.NewDialogStateChanged(from.String(), to.String()))
	return true
}

// teardownLocked ends the run. The returned function runs callbacks and must
// be called after the lock is released.
func (d *DialogEngine) teardownLocked(runID uint64, state DialogState, err error) func() {
	if !d.ownsLocked(runID) {
		return func() {}
	}

	d.active = false
	d.cancel()
	if d.turn != nil {
		d.turn.abandon()
		d.turn = nil
	}
	d.listening.Store(false)
	d.pending = ""
	d.channel.queue.Flush()
	d.channel.release(d.id)
	d.err = err

	if from := d.state; from != state {
		d.state = state
		d.emitEvent(events.NewDialogStateChanged(from.String(), state.String()))
	}
	if state == DialogCancelled {
		d.emitEvent(events.NewStatusUpdated(statusStopped))
	}

	onShutdown := d.onShutdown
	return func() {
		if onShutdown != nil {
			onShutdown()
		}
	}
}

// dialogRun is one pass through the dialog, from locating the user to a
// terminal state. Every mutation checks that the run still owns the engine.
type dialogRun struct {
	engine  *DialogEngine
	ctx     context.Context
	id      uint64
	replies <-chan string
	start   geo.Fix
}

func (r *dialogRun) execute(done chan struct{}) {
	defer close(done)

	ctx, span := tracer.Start(r.ctx, "destination dialog")
	defer span.End()
	r.ctx = ctx

	state, err := r.converse()
	span.SetAttributes(attribute.String("dialog.final_state", state.String()))
	if err != nil && r.ctx.Err() == nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if r.ctx.Err() != nil {
		state, err = DialogCancelled, nil
	}

	r.engine.mu.Lock()
	after := r.engine.teardownLocked(r.id, state, err)
	r.engine.mu.Unlock()
	after()
}

func (r *dialogRun) converse() (DialogState, error) {
	r.status(statusLocating, nil)
	fix, err := r.engine.locator.CurrentPosition(r.ctx, r.engine.positionOptions)
	if err != nil {
		if r.ctx.Err() != nil {
			return DialogCancelled, r.ctx.Err()
		}
		err = locationError(err)
		if errors.Is(err, ErrPermissionDenied) {
			r.status(promptLocationPermission, err)
		}
		_ = r.say(promptLocationUnavailable, err)
		return DialogFailed, err
	}
	if !r.locationAcquired(fix) || !r.transition(DialogPrompting) {
		return DialogCancelled, context.Canceled
	}

	prompt := promptLocationConfirmed
	ambiguousReplies := 0
	failedTurns := 0
	for {
		if prompt != "" {
			if err := r.say(prompt, nil); err != nil {
				return DialogCancelled, err
			}
			prompt = ""
		}
		if !r.transition(DialogListening) {
			return DialogCancelled, context.Canceled
		}

		transcript, typed, err := r.listen()
		if err == nil {
			transcript = normalizeTranscript(transcript)
			if transcript == "" {
				err = speechtotext.NewRecognitionError(speechtotext.ErrorKindNoSpeech, errors.New("empty transcript"))
			}
		}
		if err != nil {
			if r.ctx.Err() != nil {
				return DialogCancelled, r.ctx.Err()
			}
			failedTurns++
			state, err := r.recognitionFailed(err, failedTurns)
			if state.IsTerminal() {
				return state, err
			}
			if state == DialogPrompting {
				r.setPending("")
				if !r.transition(DialogPrompting) {
					return DialogCancelled, context.Canceled
				}
				failedTurns = 0
				ambiguousReplies = 0
				prompt = promptRetryDestination
			}
			continue
		}
		failedTurns = 0
		r.emit(events.NewUserTranscriptFinal(transcript, typed))

		pending := r.engine.PendingDestination()
		if pending == "" {
			if !r.setPending(transcript) || !r.transition(DialogAwaitingConfirmation) {
				return DialogCancelled, context.Canceled
			}
			ambiguousReplies = 0
			prompt = confirmationPrompt(transcript)
			continue
		}

		switch classifyReply(transcript) {
		case replyAffirmative:
			if !r.transition(DialogResolved) {
				return DialogCancelled, context.Canceled
			}
			r.setPending("")
			if err := r.say(acknowledgementPrompt(pending), nil); err != nil {
				return DialogCancelled, err
			}

			result, failurePrompt, err := r.resolve(pending)
			if err != nil {
				if r.ctx.Err() != nil {
					return DialogCancelled, r.ctx.Err()
				}
				logger.Info("destination lookup failed", "destination", pending, "error", err)
				if !r.transition(DialogPrompting) {
					return DialogCancelled, context.Canceled
				}
				r.status(failurePrompt, err)
				if err := r.say(failurePrompt, nil); err != nil {
					return DialogCancelled, err
				}
				continue
			}

			if !r.resolved(result) {
				return DialogCancelled, context.Canceled
			}
			if err := r.say(guidancePrompt(result.Destination), nil); err != nil {
				return DialogCancelled, err
			}
			return DialogResolved, nil

		case replyNegative:
			r.setPending("")
			if !r.transition(DialogPrompting) {
				return DialogCancelled, context.Canceled
			}
			prompt = promptRetryDestination

		default:
			ambiguousReplies++
			if r.engine.maxAmbiguousReplies > 0 && ambiguousReplies >= r.engine.maxAmbiguousReplies {
				r.setPending("")
				r.status(promptRetryDestination, fmt.Errorf("%w: %d replies", ErrAmbiguousReply, ambiguousReplies))
				if !r.transition(DialogPrompting) {
					return DialogCancelled, context.Canceled
				}
				prompt = promptRetryDestination
				continue
			}
			if !r.transition(DialogAwaitingConfirmation) {
				return DialogCancelled, context.Canceled
			}
			if err := r.say(promptYesOrNo, ErrAmbiguousReply); err != nil {
				return DialogCancelled, err
			}
			prompt = confirmationPrompt(pending)
		}
	}
}

// recognitionFailed reacts to a failed listening turn. Listening means the
// turn is retried, Prompting means the dialog starts over from the
// destination question.
func (r *dialogRun) recognitionFailed(err error, failedTurns int) (DialogState, error) {
	kind, ok := speechtotext.KindOf(err)
	if !ok {
		kind = "unknown"
	}
	recognitionErrors.Add(r.ctx, 1, metric.WithAttributes(attribute.String("kind", string(kind))))

	switch kind {
	case speechtotext.ErrorKindNoSpeech, speechtotext.ErrorKindNetwork, speechtotext.ErrorKindAborted:
		if failedTurns >= r.engine.maxRecognitionRetries {
			err = fmt.Errorf("%w: %d listening turns failed: %w", ErrDialogTimeout, failedTurns, err)
			r.status(promptRetryDestination, err)
			return DialogPrompting, err
		}
		if err := r.say(promptNotRecognized, fmt.Errorf("%w: %w", ErrRecognitionFailure, err)); err != nil {
			return DialogCancelled, err
		}
		return DialogListening, nil

	case speechtotext.ErrorKindNotAllowed:
		err = fmt.Errorf("%w: %w", ErrPermissionDenied, err)
		_ = r.say(promptMicrophonePermission, err)
		return DialogFailed, err

	case speechtotext.ErrorKindUnsupported:
		r.engine.disabled.Store(true)
		err = fmt.Errorf("%w: %w", ErrVoiceDisabled, err)
		_ = r.say(promptRecognitionUnsupported, err)
		return DialogFailed, err

	default:
		err = fmt.Errorf("%w: %w", ErrRecognitionFailure, err)
		_ = r.say(promptRecognitionFailed, err)
		return DialogFailed, err
	}
}

// listen runs one listening turn. typed is set when the reply was submitted
// by hand.
func (r *dialogRun) listen() (transcript string, typed bool, err error) {
	select {
	case reply := <-r.replies:
		return reply, true, nil
	default:
	}

	if err := r.engine.channel.queue.WaitIdle(r.ctx); err != nil {
		return "", false, err
	}

	listenCtx, cancel := context.WithCancel(r.ctx)
	turn := newRecognitionTurn(cancel, r.engine.emitEvent, func() { r.engine.listening.Store(true) })

	r.engine.mu.Lock()
	if r.ctx.Err() != nil || !r.engine.ownsLocked(r.id) {
		r.engine.mu.Unlock()
		cancel()
		return "", false, context.Canceled
	}
	r.engine.turn = turn
	r.engine.mu.Unlock()

	defer func() {
		turn.abandon()
		wasListening := false
		r.engine.mu.Lock()
		// a stopped run must not clear the flag of the run that replaced it
		if r.engine.turn == turn {
			r.engine.turn = nil
			wasListening = r.engine.listening.Swap(false)
		}
		r.engine.mu.Unlock()
		if wasListening {
			r.emit(events.NewUserSpeechEnded())
		}
	}()

	opts := turn.options(append(slices.Clone(r.engine.recognitionOptions),
		speechtotext.WithSilenceTimeout(r.engine.listenTimeout))...)
	if err := r.engine.channel.recognizer.Recognize(listenCtx, opts...); err != nil {
		return "", false, err
	}

	timer := time.NewTimer(r.engine.listenTimeout)
	defer timer.Stop()

	select {
	case outcome := <-turn.outcome:
		return outcome.transcript, false, outcome.err
	case reply := <-r.replies:
		return reply, true, nil
	case <-timer.C:
		return "", false, speechtotext.NewRecognitionError(speechtotext.ErrorKindNoSpeech, ErrDialogTimeout)
	case <-r.ctx.Done():
		return "", false, r.ctx.Err()
	}
}

// resolve looks the destination up and plans a route to it. On failure it
// also returns the prompt to speak.
func (r *dialogRun) resolve(query string) (DialogResult, string, error) {
	ctx, span := tracer.Start(r.ctx, "resolve destination")
	defer span.End()
	span.SetAttributes(attribute.String("destination.query", query))

	places, err := r.engine.places.SearchPlaces(ctx, query)
	if err == nil && len(places) == 0 {
		err = backend.ErrNoPlaces
	}
	if err != nil {
		span.RecordError(err)
		return DialogResult{}, promptNotFound, fmt.Errorf("destination search failed: %w", err)
	}

	place := places[0]
	end, err := place.Coordinate()
	if err != nil {
		span.RecordError(err)
		return DialogResult{}, promptNotFound, err
	}
	r.emit(events.NewDestinationResolved(place.Name, end))

	route, err := r.engine.routes.PlanSafeRoute(ctx, r.start.Coordinate, end)
	if err != nil {
		span.RecordError(err)
		return DialogResult{}, promptRouteFailed, fmt.Errorf("route planning failed: %w", err)
	}

	return DialogResult{
		Query:       query,
		Destination: place.Name,
		Start:       r.start,
		End:         end,
		Route:       route,
	}, "", nil
}

// say shows text as status and speaks it, returning once it was spoken. The
// enqueue happens under the engine lock so nothing is queued after Stop.
func (r *dialogRun) say(text string, cause error) error {
	r.engine.mu.Lock()
	if r.ctx.Err() != nil || !r.engine.ownsLocked(r.id) {
		r.engine.mu.Unlock()
		return context.Canceled
	}
	r.engine.emitEvent(statusEvent(text, cause))
	u := r.engine.channel.queue.Enqueue(text)
	r.engine.mu.Unlock()

	select {
	case <-u.Spoken():
		return nil
	case <-u.Discarded():
		return ErrUtteranceDiscarded
	case <-r.ctx.Done():
		return r.ctx.Err()
	}
}

func (r *dialogRun) status(text string, cause error) {
	r.emit(statusEvent(text, cause))
}

func (r *dialogRun) emit(event events.Event) {
	r.engine.mu.Lock()
	defer r.engine.mu.Unlock()
	if r.engine.ownsLocked(r.id) {
		r.engine.emitEvent(event)
	}
}

func (r *dialogRun) transition(to DialogState) bool {
	r.engine.mu.Lock()
	defer r.engine.mu.Unlock()
	return r.engine.transitionLocked(r.id, to)
}

func (r *dialogRun) setPending(destination string) bool {
	r.engine.mu.Lock()
	defer r.engine.mu.Unlock()
	if !r.engine.ownsLocked(r.id) {
		return false
	}
	r.engine.pending = destination
	return true
}

func (r *dialogRun) locationAcquired(fix geo.Fix) bool {
	r.engine.mu.Lock()
	if !r.engine.ownsLocked(r.id) {
		r.engine.mu.Unlock()
		return false
	}
	r.start = fix
	r.engine.emitEvent(events.NewLocationAcquired(fix))
	onLocation := r.engine.onLocation
	r.engine.mu.Unlock()

	if onLocation != nil {
		onLocation(fix)
	}
	return true
}

func (r *dialogRun) resolved(result DialogResult) bool {
	r.engine.mu.Lock()
	if !r.engine.ownsLocked(r.id) {
		r.engine.mu.Unlock()
		return false
	}
	r.engine.result = &result
	r.engine.emitEvent(events.NewRouteFound(result.Destination, result.Start.Coordinate, result.End,
		result.Route.Distance, result.Route.EstimatedTime, result.Route.RouteType))
	onRoute := r.engine.onRoute
	r.engine.mu.Unlock()

	if onRoute != nil {
		onRoute(result)
	}
	return true
}

func statusEvent(text string, cause error) events.StatusUpdated {
	if cause != nil {
		return events.NewStatusFailed(text, cause)
	}
	return events.NewStatusUpdated(text)
}

func locationError(err error) error {
	if errors.Is(err, geolocation.ErrPermissionDenied) {
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	}
	return fmt.Errorf("location unavailable: %w", err)
}
