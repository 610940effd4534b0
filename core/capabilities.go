package guidance

import (
	"context"

	"github.com/koscakluka/safewalk-core/core/audio"
	"github.com/koscakluka/safewalk-core/core/backend"
	"github.com/koscakluka/safewalk-core/core/geo"
	"github.com/koscakluka/safewalk-core/core/geolocation"
	"github.com/koscakluka/safewalk-core/core/speechtotext"
)

// Locator produces one position fix per call.
type Locator interface {
	CurrentPosition(ctx context.Context, options geolocation.PositionOptions) (geo.Fix, error)
}

type PlaceSearcher interface {
	SearchPlaces(ctx context.Context, query string) ([]backend.Place, error)
}

type RoutePlanner interface {
	PlanSafeRoute(ctx context.Context, start, end geo.Coordinate) (backend.Route, error)
}

type PointsClaimer interface {
	ClaimWalkingRoute(ctx context.Context, claim backend.WalkingRouteClaim) (backend.ClaimResult, error)
}

type AreaLister interface {
	ExerciseAreas(ctx context.Context) ([]backend.ExerciseArea, error)
}

// RemoteSynthesizer turns prompt text into audio on a remote service.
type RemoteSynthesizer interface {
	Synthesize(ctx context.Context, text string) (audio.Clip, error)
}

// Player plays a clip and returns once it finished. Stop interrupts any clip
// currently playing.
type Player interface {
	Play(ctx context.Context, clip audio.Clip) error
	Stop() error
}

// LocalSpeaker is the fallback voice used when remote synthesis fails. Speak
// returns once the text has been spoken.
type LocalSpeaker interface {
	Speak(ctx context.Context, text string) error
}

// SpeechRecognizer listens for a single utterance. A returned error means
// recognition never started and no callbacks will be called.
type SpeechRecognizer interface {
	Recognize(ctx context.Context, opts ...speechtotext.RecognitionOption) error
}
