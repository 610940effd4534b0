package guidance

// SessionState tracks a walking attempt. The checked flags of earlier
// versions are derived from it, so an end check without a start check cannot
// be represented.
type SessionState int

const (
	SessionNotStarted SessionState = iota
	SessionStarted
	SessionAtStart
	SessionCompleted
	SessionCancelled
)

func (s SessionState) String() string {
	switch s {
	case SessionNotStarted:
		return "NotStarted"
	case SessionStarted:
		return "Started"
	case SessionAtStart:
		return "AtStart"
	case SessionCompleted:
		return "Completed"
	case SessionCancelled:
		return "Cancelled"
	}
	return "Unknown"
}

func (s SessionState) Active() bool {
	return s == SessionStarted || s == SessionAtStart || s == SessionCompleted
}

func (s SessionState) StartChecked() bool {
	return s == SessionAtStart || s == SessionCompleted
}

func (s SessionState) EndChecked() bool {
	return s == SessionCompleted
}

// canBegin reports whether a new attempt may replace the current one.
func (s SessionState) canBegin() bool {
	return s == SessionNotStarted || s == SessionCompleted || s == SessionCancelled
}

// Checkpoint names one of the two geofences of a walk.
type Checkpoint int

const (
	CheckpointStart Checkpoint = iota
	CheckpointEnd
)

func (c Checkpoint) String() string {
	switch c {
	case CheckpointStart:
		return "start"
	case CheckpointEnd:
		return "end"
	}
	return "unknown"
}

// requiredState is the only state a check-in at c is accepted from.
func (c Checkpoint) requiredState() (SessionState, bool) {
	switch c {
	case CheckpointStart:
		return SessionStarted, true
	case CheckpointEnd:
		return SessionAtStart, true
	}
	return 0, false
}

func (c Checkpoint) acceptedState() SessionState {
	if c == CheckpointEnd {
		return SessionCompleted
	}
	return SessionAtStart
}
