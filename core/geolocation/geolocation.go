// Package geolocation provides one-shot position fixes.
package geolocation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/koscakluka/safewalk-core/core/geo"
	"go.opentelemetry.io/otel/attribute"
)

const DefaultTimeout = 10 * time.Second

var (
	ErrPermissionDenied    = errors.New("location permission denied")
	ErrPositionUnavailable = errors.New("position unavailable")
	ErrTimeout             = errors.New("position request timed out")
)

type PositionOptions struct {
	HighAccuracy bool
	Timeout      time.Duration
}

func NewPositionOptions(opts ...PositionOption) PositionOptions {
	options := PositionOptions{HighAccuracy: true, Timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

type PositionOption func(*PositionOptions)

func WithHighAccuracy(highAccuracy bool) PositionOption {
	return func(o *PositionOptions) { o.HighAccuracy = highAccuracy }
}

func WithTimeout(timeout time.Duration) PositionOption {
	return func(o *PositionOptions) {
		if timeout > 0 {
			o.Timeout = timeout
		}
	}
}

// Static always reports the same position. Useful on devices without GPS and
// for the terminal driver.
type Static struct {
	Position       geo.Coordinate
	AccuracyMeters float64
	now            func() time.Time
}

func NewStatic(position geo.Coordinate, accuracyMeters float64) *Static {
	return &Static{Position: position, AccuracyMeters: accuracyMeters, now: time.Now}
}

func (s *Static) CurrentPosition(ctx context.Context, options PositionOptions) (geo.Fix, error) {
	if err := ctx.Err(); err != nil {
		return geo.Fix{}, err
	}
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	return geo.Fix{Coordinate: s.Position, AccuracyMeters: s.AccuracyMeters, Timestamp: now()}, nil
}

// Step is one scripted answer of a Replay locator: either a fix or an error,
// optionally delayed.
type Step struct {
	Fix   geo.Fix
	Err   error
	Delay time.Duration
}

// Replay answers position requests from a script, repeating the last step
// once the script runs out.
type Replay struct {
	mu    sync.Mutex
	steps []Step
	next  int
}

func NewReplay(steps ...Step) *Replay {
	return &Replay{steps: steps}
}

// Push appends further steps to the script.
func (r *Replay) Push(steps ...Step) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, steps...)
}

func (r *Replay) CurrentPosition(ctx context.Context, options PositionOptions) (geo.Fix, error) {
	ctx, span := tracer.Start(ctx, "replay current position")
	defer span.End()

	r.mu.Lock()
	if len(r.steps) == 0 {
		r.mu.Unlock()
		return geo.Fix{}, ErrPositionUnavailable
	}
	step := r.steps[min(r.next, len(r.steps)-1)]
	if r.next < len(r.steps) {
		r.next++
	}
	r.mu.Unlock()

	if options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, options.Timeout)
		defer cancel()
	}

	if step.Delay > 0 {
		timer := time.NewTimer(step.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return geo.Fix{}, fmt.Errorf("%w after %s", ErrTimeout, options.Timeout)
			}
			return geo.Fix{}, ctx.Err()
		case <-timer.C:
		}
	}

	if step.Err != nil {
		span.RecordError(step.Err)
		return geo.Fix{}, step.Err
	}
	fix := step.Fix
	if fix.Timestamp.IsZero() {
		fix.Timestamp = time.Now()
	}
	span.SetAttributes(
		attribute.Float64("position.lat", fix.Lat),
		attribute.Float64("position.lng", fix.Lng),
		attribute.Float64("position.accuracy_m", fix.AccuracyMeters),
	)
	return fix, nil
}
