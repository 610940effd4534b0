package events

// KindStatusUpdated identifies user-visible status updates.
const KindStatusUpdated Kind = "status.updated"

// StatusUpdated carries a status line meant for the user.
type StatusUpdated struct {
	Base
	Message string
	Err     error
}

// NewStatusUpdated creates a status update event.
func NewStatusUpdated(message string) StatusUpdated {
	return StatusUpdated{Base: NewBase(KindStatusUpdated), Message: message}
}

// NewStatusFailed creates a status update event describing a failure.
func NewStatusFailed(message string, err error) StatusUpdated {
	return StatusUpdated{Base: NewBase(KindStatusUpdated), Message: message, Err: err}
}

// IsError reports whether the status describes a failure.
func (s StatusUpdated) IsError() bool {
	return s.Err != nil
}
