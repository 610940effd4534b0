package events

import "github.com/koscakluka/safewalk-core/core/geo"

const (
	KindSessionStarted      Kind = "session.started"
	KindCheckInAccepted     Kind = "session.checkin_accepted"
	KindCheckInRejected     Kind = "session.checkin_rejected"
	KindSessionCompleted    Kind = "session.completed"
	KindSessionCancelled    Kind = "session.cancelled"
	KindPointsClaimAccepted Kind = "points.claim_accepted"
	KindPointsClaimRejected Kind = "points.claim_rejected"
)

type SessionStarted struct {
	Base
	SessionID string
	Start     geo.Coordinate
	End       geo.Coordinate
}

func NewSessionStarted(sessionID string, start, end geo.Coordinate) SessionStarted {
	return SessionStarted{Base: NewBase(KindSessionStarted), SessionID: sessionID, Start: start, End: end}
}

type CheckInAccepted struct {
	Base
	SessionID      string
	Checkpoint     string
	DistanceMeters float64
}

func NewCheckInAccepted(sessionID, checkpoint string, distanceMeters float64) CheckInAccepted {
	return CheckInAccepted{Base: NewBase(KindCheckInAccepted), SessionID: sessionID, Checkpoint: checkpoint, DistanceMeters: distanceMeters}
}

// CheckInRejected carries the reason a check-in was refused. DistanceMeters
// is negative when no position was measured.
type CheckInRejected struct {
	Base
	SessionID      string
	Checkpoint     string
	DistanceMeters float64
	Err            error
}

func NewCheckInRejected(sessionID, checkpoint string, distanceMeters float64, err error) CheckInRejected {
	return CheckInRejected{Base: NewBase(KindCheckInRejected), SessionID: sessionID, Checkpoint: checkpoint, DistanceMeters: distanceMeters, Err: err}
}

type SessionCompleted struct {
	Base
	SessionID string
}

func NewSessionCompleted(sessionID string) SessionCompleted {
	return SessionCompleted{Base: NewBase(KindSessionCompleted), SessionID: sessionID}
}

type SessionCancelled struct {
	Base
	SessionID string
}

func NewSessionCancelled(sessionID string) SessionCancelled {
	return SessionCancelled{Base: NewBase(KindSessionCancelled), SessionID: sessionID}
}

type PointsClaimAccepted struct {
	Base
	SessionID    string
	PointsEarned int
	Message      string
}

func NewPointsClaimAccepted(sessionID string, pointsEarned int, message string) PointsClaimAccepted {
	return PointsClaimAccepted{Base: NewBase(KindPointsClaimAccepted), SessionID: sessionID, PointsEarned: pointsEarned, Message: message}
}

type PointsClaimRejected struct {
	Base
	SessionID string
	Message   string
	Err       error
}

func NewPointsClaimRejected(sessionID, message string, err error) PointsClaimRejected {
	return PointsClaimRejected{Base: NewBase(KindPointsClaimRejected), SessionID: sessionID, Message: message, Err: err}
}
