package events

import "github.com/kelindar/event"

// SubscribeToChannel forwards events of type T into ch for select-loop
// consumers such as SSE handlers. Events are dropped while ch is full so a
// stalled client never holds up the bridge.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}

// SubscribeNotifications forwards every bridge notification (connection,
// device list, streaming, phase, data gap and per-device metrics) into ch.
// The returned function removes all subscriptions.
func SubscribeNotifications(bus *Bus, ch chan<- any) func() {
	unsubs := []func(){
		SubscribeToChannel[ConnectionResultEvent](bus, ch),
		SubscribeToChannel[DeviceListChangedEvent](bus, ch),
		SubscribeToChannel[StreamingResultEvent](bus, ch),
		SubscribeToChannel[PhaseChangedEvent](bus, ch),
		SubscribeToChannel[DataGapEvent](bus, ch),
		SubscribeToChannel[DeviceMetricsEvent](bus, ch),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}
