package guidance

import "github.com/koscakluka/safewalk-core/core/events"

type eventEmitter func(events.Event)

func noopEventEmitter(events.Event) {}

// EventHandler receives every event emitted by a queue, dialog or session.
// It is called synchronously, possibly with internal locks held, so it must
// not block or call back into the component that emitted the event.
type EventHandler func(events.Event)

func newEventEmitter(handlers ...EventHandler) eventEmitter {
	active := make([]EventHandler, 0, len(handlers))
	for _, handler := range handlers {
		if handler != nil {
			active = append(active, handler)
		}
	}
	if len(active) == 0 {
		return noopEventEmitter
	}

	return func(event events.Event) {
		for _, handler := range active {
			handler(event)
		}
	}
}

// statusCallbackHandler adapts a plain status callback to the event stream.
func statusCallbackHandler(callback func(message string, err error)) EventHandler {
	if callback == nil {
		return nil
	}
	return func(event events.Event) {
		if status, ok := event.(events.StatusUpdated); ok {
			callback(status.Message, status.Err)
		}
	}
}
