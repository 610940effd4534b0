package guidance

// DialogState is the step the destination dialog is in. Resolved, Cancelled
// and Failed are terminal for a run; Resolved may still fall back to
// Prompting when the route lookup fails.
type DialogState int

const (
	DialogIdle DialogState = iota
	DialogLocatingUser
	DialogPrompting
	DialogListening
	DialogAwaitingConfirmation
	DialogResolved
	DialogCancelled
	DialogFailed
)

func (s DialogState) String() string {
	switch s {
	case DialogIdle:
		return "Idle"
	case DialogLocatingUser:
		return "LocatingUser"
	case DialogPrompting:
		return "Prompting"
	case DialogListening:
		return "Listening"
	case DialogAwaitingConfirmation:
		return "AwaitingConfirmation"
	case DialogResolved:
		return "Resolved"
	case DialogCancelled:
		return "Cancelled"
	case DialogFailed:
		return "Failed"
	}
	return "Unknown"
}

func (s DialogState) IsTerminal() bool {
	return s == DialogResolved || s == DialogCancelled || s == DialogFailed
}

var dialogTransitions = map[DialogState][]DialogState{
	DialogIdle:                 {DialogLocatingUser, DialogCancelled},
	DialogLocatingUser:         {DialogPrompting, DialogFailed, DialogCancelled},
	DialogPrompting:            {DialogListening, DialogFailed, DialogCancelled},
	DialogListening:            {DialogAwaitingConfirmation, DialogPrompting, DialogResolved, DialogFailed, DialogCancelled},
	DialogAwaitingConfirmation: {DialogListening, DialogFailed, DialogCancelled},
	DialogResolved:             {DialogPrompting, DialogCancelled},
	DialogCancelled:            {},
	DialogFailed:               {},
}

func (s DialogState) canTransitionTo(next DialogState) bool {
	for _, allowed := range dialogTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
