package events

const (
	KindUtteranceQueued    Kind = "playback.utterance_queued"
	KindUtteranceStarted   Kind = "playback.utterance_started"
	KindUtteranceSpoken    Kind = "playback.utterance_spoken"
	KindUtteranceDiscarded Kind = "playback.utterance_discarded"
	KindSpeechFallbackUsed Kind = "playback.fallback_used"
)

type UtteranceQueued struct {
	Base
	ID   string
	Text string
}

func NewUtteranceQueued(id, text string) UtteranceQueued {
	return UtteranceQueued{Base: NewBase(KindUtteranceQueued), ID: id, Text: text}
}

type UtteranceStarted struct {
	Base
	ID   string
	Text string
}

func NewUtteranceStarted(id, text string) UtteranceStarted {
	return UtteranceStarted{Base: NewBase(KindUtteranceStarted), ID: id, Text: text}
}

// UtteranceSpoken is emitted once per utterance when playback ended. Err is
// set when neither voice could play it and the queue moved on anyway.
type UtteranceSpoken struct {
	Base
	ID   string
	Text string
	Err  error
}

func NewUtteranceSpoken(id, text string, err error) UtteranceSpoken {
	return UtteranceSpoken{Base: NewBase(KindUtteranceSpoken), ID: id, Text: text, Err: err}
}

type UtteranceDiscarded struct {
	Base
	ID   string
	Text string
}

func NewUtteranceDiscarded(id, text string) UtteranceDiscarded {
	return UtteranceDiscarded{Base: NewBase(KindUtteranceDiscarded), ID: id, Text: text}
}

// SpeechFallbackUsed reports why the remote voice was skipped.
type SpeechFallbackUsed struct {
	Base
	ID     string
	Text   string
	Reason error
}

func NewSpeechFallbackUsed(id, text string, reason error) SpeechFallbackUsed {
	return SpeechFallbackUsed{Base: NewBase(KindSpeechFallbackUsed), ID: id, Text: text, Reason: reason}
}
