package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers
// Usage: bus.Publish(DeviceListChangedEvent{...})
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case ConnectionResultEvent:
		event.Publish(b.dispatcher, e)
	case DeviceListChangedEvent:
		event.Publish(b.dispatcher, e)
	case StreamingResultEvent:
		event.Publish(b.dispatcher, e)
	case PhaseChangedEvent:
		event.Publish(b.dispatcher, e)
	case DataGapEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	case DeviceMetricsEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function
// The handler type determines which events it receives
// Returns an unsubscribe function
// Usage: unsub := bus.Subscribe(func(e StreamingResultEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(ConnectionResultEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(DeviceListChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(StreamingResultEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(PhaseChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(DataGapEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogEntryEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(DeviceMetricsEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		// Unknown handler type, nothing to unsubscribe
		return func() {}
	}
}
