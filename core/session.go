package guidance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"github.com/koscakluka/safewalk-core/core/backend"
	"github.com/koscakluka/safewalk-core/core/events"
	"github.com/koscakluka/safewalk-core/core/geo"
	"github.com/koscakluka/safewalk-core/core/geolocation"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

// GeofenceRadiusMeters is the check-in radius around both checkpoints. The
// reported accuracy of a fix does not widen or shrink it.
const GeofenceRadiusMeters = 100.0

// withinGeofence reports whether a fix this far from a checkpoint may check
// in. The boundary itself counts as inside.
func withinGeofence(distanceMeters float64) bool {
	return distanceMeters <= GeofenceRadiusMeters
}

var errSessionCancelled = errors.New("walking session cancelled")

// Route is the walk a session verifies: the user checks in near Start, then
// near End.
type Route struct {
	Name  string
	Start geo.Coordinate
	End   geo.Coordinate
	Plan  backend.Route
}

// RouteFromDialog builds a walk from a resolved destination dialog.
func RouteFromDialog(result DialogResult) Route {
	return Route{
		Name:  result.Destination,
		Start: result.Start.Coordinate,
		End:   result.End,
		Plan:  result.Route,
	}
}

// GeofenceCheck is the outcome of measuring one fix against a checkpoint.
type GeofenceCheck struct {
	Checkpoint     Checkpoint
	Target         geo.Coordinate
	Position       geo.Fix
	DistanceMeters float64
	RadiusMeters   float64
	WithinRadius   bool
}

// ClaimOutcome is how the points service answered the completion claim.
type ClaimOutcome struct {
	Accepted     bool
	PointsEarned int
	Message      string
	Err          error
}

func (c ClaimOutcome) Duplicate() bool {
	return errors.Is(c.Err, ErrDuplicateClaim)
}

// SessionSnapshot is a point-in-time copy of a walking session.
type SessionSnapshot struct {
	ID           string
	State        SessionState
	Active       bool
	Route        *Route
	StartChecked bool
	EndChecked   bool
	StartedAt    time.Time
	StartFix     geo.Fix
	LastFix      *geo.Fix
	Claim        *ClaimOutcome
}

// WalkingSession verifies with GPS that the user was at the start and then at
// the end of a route, and claims the walking reward once.
type WalkingSession struct {
	locator         Locator
	claimer         PointsClaimer
	authenticated   func(ctx context.Context) bool
	positionOptions geolocation.PositionOptions
	emitEvent       eventEmitter

	mu         sync.Mutex
	state      SessionState
	id         string
	route      *Route
	startedAt  time.Time
	startFix   geo.Fix
	lastFix    *geo.Fix
	claim      *ClaimOutcome
	busy       bool
	generation uint64
	cancel     context.CancelFunc
}

type SessionOption func(*WalkingSession)

func WithPointsClaimer(claimer PointsClaimer) SessionOption {
	return func(s *WalkingSession) { s.claimer = claimer }
}

// WithAuthenticated decides whether a completed walk is claimed. Without it
// the claimer is asked, if it can tell, and otherwise the claim is always
// attempted.
func WithAuthenticated(authenticated func() bool) SessionOption {
	return func(s *WalkingSession) {
		if authenticated != nil {
			s.authenticated = func(context.Context) bool { return authenticated() }
		}
	}
}

func WithSessionPositionOptions(opts ...geolocation.PositionOption) SessionOption {
	return func(s *WalkingSession) {
		for _, opt := range opts {
			opt(&s.positionOptions)
		}
	}
}

func WithSessionEventHandler(handlers ...EventHandler) SessionOption {
	return func(s *WalkingSession) { s.emitEvent = newEventEmitter(handlers...) }
}

func NewWalkingSession(locator Locator, opts ...SessionOption) *WalkingSession {
	s := &WalkingSession{
		locator:         locator,
		positionOptions: geolocation.NewPositionOptions(),
		emitEvent:       noopEventEmitter,
		state:           SessionNotStarted,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.authenticated == nil {
		if claimer, ok := s.claimer.(interface{ Authenticated(context.Context) bool }); ok {
			s.authenticated = claimer.Authenticated
		} else {
			s.authenticated = func(context.Context) bool { return true }
		}
	}
	return s
}

// Begin starts a new walk from a fresh position fix. It is refused while
// another walk is in progress.
func (s *WalkingSession) Begin(ctx context.Context, route Route) error {
	ctx, span := tracer.Start(ctx, "begin walking session")
	defer span.End()

	if s.locator == nil {
		return errors.New("walking session requires a locator")
	}

	s.mu.Lock()
	if !s.state.canBegin() || s.busy {
		s.mu.Unlock()
		span.RecordError(ErrSessionActive)
		return ErrSessionActive
	}
	fixCtx, generation := s.startRequestLocked(ctx)
	s.mu.Unlock()

	fix, err := s.locator.CurrentPosition(fixCtx, s.positionOptions)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.finishRequestLocked(generation) {
		return errSessionCancelled
	}
	if err != nil {
		err = locationError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	s.id = uuid.NewString()
	s.state = SessionStarted
	s.route = &route
	s.startedAt = fix.Timestamp
	if s.startedAt.IsZero() {
		s.startedAt = time.Now()
	}
	s.startFix = fix
	s.lastFix = &fix
	s.claim = nil

	span.SetAttributes(attribute.String("session.id", s.id))
	s.emitEvent(events.NewSessionStarted(s.id, route.Start, route.End))
	return nil
}

// CheckIn measures the user's position against a checkpoint. The ordering
// guard runs before any position request: an end check-in before an
// accepted start check-in fails with ErrSessionOrderViolation and changes
// nothing. Only one check-in runs at a time.
//
// An accepted end check-in completes the walk and, for authenticated users,
// submits one points claim. A rejected claim is reported through the
// session's events and snapshot but the walk stays completed.
func (s *WalkingSession) CheckIn(ctx context.Context, checkpoint Checkpoint) (GeofenceCheck, error) {
	ctx, span := tracer.Start(ctx, "walking session check-in")
	defer span.End()
	span.SetAttributes(attribute.String("checkpoint", checkpoint.String()))

	s.mu.Lock()
	required, ok := checkpoint.requiredState()
	if !ok {
		s.mu.Unlock()
		return GeofenceCheck{}, fmt.Errorf("unknown checkpoint %d", checkpoint)
	}
	if s.state != required {
		err := fmt.Errorf("%w: %s check-in while %s", ErrSessionOrderViolation, checkpoint, s.state)
		s.rejectLocked(checkpoint, -1, err)
		s.mu.Unlock()
		span.RecordError(err)
		return GeofenceCheck{}, err
	}
	if s.busy {
		s.mu.Unlock()
		return GeofenceCheck{}, ErrCheckInInProgress
	}
	target := s.route.Start
	if checkpoint == CheckpointEnd {
		target = s.route.End
	}
	fixCtx, generation := s.startRequestLocked(ctx)
	s.mu.Unlock()

	fix, err := s.locator.CurrentPosition(fixCtx, s.positionOptions)

	s.mu.Lock()
	if !s.finishRequestLocked(generation) {
		s.mu.Unlock()
		return GeofenceCheck{}, errSessionCancelled
	}
	if err != nil {
		err = locationError(err)
		s.rejectLocked(checkpoint, -1, err)
		s.mu.Unlock()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return GeofenceCheck{}, err
	}
	s.lastFix = &fix

	check := GeofenceCheck{
		Checkpoint:     checkpoint,
		Target:         target,
		Position:       fix,
		DistanceMeters: geo.DistanceMeters(fix.Coordinate, target),
		RadiusMeters:   GeofenceRadiusMeters,
	}
	check.WithinRadius = withinGeofence(check.DistanceMeters)
	span.SetAttributes(
		attribute.Float64("distance_m", check.DistanceMeters),
		attribute.Float64("accuracy_m", fix.AccuracyMeters),
		attribute.Bool("within_radius", check.WithinRadius),
	)

	if !check.WithinRadius {
		err := &GeofenceViolationError{Checkpoint: checkpoint, DistanceMeters: check.DistanceMeters, RadiusMeters: GeofenceRadiusMeters}
		s.rejectLocked(checkpoint, check.DistanceMeters, err)
		s.mu.Unlock()
		return check, err
	}

	s.state = checkpoint.acceptedState()
	checkIns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("checkpoint", checkpoint.String()), attribute.String("outcome", "accepted")))
	s.emitEvent(events.NewCheckInAccepted(s.id, checkpoint.String(), check.DistanceMeters))
	if s.state != SessionCompleted {
		s.mu.Unlock()
		return check, nil
	}

	s.emitEvent(events.NewSessionCompleted(s.id))
	if s.claimer == nil || !s.authenticated(ctx) {
		s.mu.Unlock()
		return check, nil
	}
	claim := backend.WalkingRouteClaim{Start: s.route.Start, Destination: s.route.End}
	claimCtx, generation := s.startRequestLocked(ctx)
	s.mu.Unlock()

	s.submitClaim(claimCtx, generation, claim)
	return check, nil
}

func (s *WalkingSession) submitClaim(ctx context.Context, generation uint64, claim backend.WalkingRouteClaim) {
	ctx, span := tracer.Start(ctx, "claim walking route points")
	defer span.End()

	result, err := s.claimer.ClaimWalkingRoute(ctx, claim)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.finishRequestLocked(generation) {
		return
	}

	outcome := ClaimOutcome{Accepted: err == nil, PointsEarned: result.PointsEarned, Message: result.Message, Err: err}
	s.claim = &outcome
	if err != nil {
		span.RecordError(err)
		logger.Info("walking route claim rejected", "session", s.id, "error", err)
		s.emitEvent(events.NewPointsClaimRejected(s.id, result.Message, err))
		return
	}
	s.emitEvent(events.NewPointsClaimAccepted(s.id, result.PointsEarned, result.Message))
}

// Cancel abandons the walk, aborting any position request or claim in
// flight. It is always permitted.
func (s *WalkingSession) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.busy = false

	id := s.id
	s.state = SessionCancelled
	s.route = nil
	s.startedAt = time.Time{}
	s.startFix = geo.Fix{}
	s.lastFix = nil
	s.claim = nil
	s.emitEvent(events.NewSessionCancelled(id))
}

func (s *WalkingSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Claim returns the outcome of the last points claim, if one was made.
func (s *WalkingSession) Claim() (ClaimOutcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claim == nil {
		return ClaimOutcome{}, false
	}
	return *s.claim, true
}

func (s *WalkingSession) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := SessionSnapshot{
		ID:           s.id,
		State:        s.state,
		Active:       s.state.Active(),
		StartChecked: s.state.StartChecked(),
		EndChecked:   s.state.EndChecked(),
		StartedAt:    s.startedAt,
		StartFix:     s.startFix,
	}
	if s.route != nil {
		route := Route{}
		if err := copier.CopyWithOption(&route, s.route, copier.Option{DeepCopy: true}); err != nil {
			logger.Warn("failed to copy session route", "error", err)
		}
		snapshot.Route = &route
	}
	if s.lastFix != nil {
		fix := *s.lastFix
		snapshot.LastFix = &fix
	}
	if s.claim != nil {
		claim := *s.claim
		snapshot.Claim = &claim
	}
	return snapshot
}

// startRequestLocked marks the session busy with a cancellable request.
func (s *WalkingSession) startRequestLocked(ctx context.Context) (context.Context, uint64) {
	requestCtx, cancel := context.WithCancel(ctx)
	s.busy = true
	s.cancel = cancel
	return requestCtx, s.generation
}

// finishRequestLocked clears the busy mark and reports whether the session
// was left alone while the request ran.
func (s *WalkingSession) finishRequestLocked(generation uint64) bool {
	if generation != s.generation {
		return false
	}
	s.busy = false
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	return true
}

func (s *WalkingSession) rejectLocked(checkpoint Checkpoint, distanceMeters float64, err error) {
	checkIns.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("checkpoint", checkpoint.String()), attribute.String("outcome", "rejected")))
	s.emitEvent(events.NewCheckInRejected(s.id, checkpoint.String(), distanceMeters, err))
}
