package events

import (
	"strings"
	"time"
)

// Kind names an event as "<namespace>.<name>".
type Kind string

// Namespace is the part of the kind before the first dot, e.g. "session".
func (k Kind) Namespace() string {
	namespace, _, _ := strings.Cut(string(k), ".")
	return namespace
}

type Event interface {
	Kind() Kind
	Timestamp() time.Time
}

// Base is embedded by every event and stamps it on creation.
type Base struct {
	kind      Kind
	timestamp time.Time
}

func NewBase(kind Kind) Base {
	return Base{kind: kind, timestamp: time.Now()}
}

func (b Base) Kind() Kind {
	return b.kind
}

func (b Base) Timestamp() time.Time {
	return b.timestamp
}
