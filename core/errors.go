package guidance

import (
	"errors"
	"fmt"

	"github.com/koscakluka/safewalk-core/core/backend"
)

var (
	// ErrPermissionDenied covers refused microphone or location access and
	// rejected credentials.
	ErrPermissionDenied   = backend.ErrPermissionDenied
	ErrNetworkFailure     = backend.ErrNetworkFailure
	ErrDuplicateClaim     = backend.ErrDuplicateClaim
	ErrRecognitionFailure = errors.New("speech recognition failed")

	ErrGeofenceViolation     = errors.New("outside checkpoint geofence")
	ErrSessionOrderViolation = errors.New("checkpoint out of order")
	ErrSessionActive         = errors.New("walking session already active")
	ErrCheckInInProgress     = errors.New("check-in already in progress")

	ErrDialogTimeout      = errors.New("no reply before timeout")
	ErrAmbiguousReply     = errors.New("reply was neither yes nor no")
	ErrVoiceDisabled      = errors.New("voice guidance is disabled")
	ErrVoiceChannelBusy   = errors.New("voice channel is in use")
	ErrNotListening       = errors.New("dialog is not listening")
	ErrUtteranceDiscarded = errors.New("utterance discarded before it was spoken")
)

// GeofenceViolationError reports how far the user was from the checkpoint.
type GeofenceViolationError struct {
	Checkpoint     Checkpoint
	DistanceMeters float64
	RadiusMeters   float64
}

func (e *GeofenceViolationError) Error() string {
	return fmt.Sprintf("%s checkpoint is %.0fm away, must be within %.0fm",
		e.Checkpoint, e.DistanceMeters, e.RadiusMeters)
}

func (e *GeofenceViolationError) Unwrap() error { return ErrGeofenceViolation }
