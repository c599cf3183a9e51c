package api

import (
	"context"
	"maps"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/labstreaminglayer/App-PSMove/internal/events"
	"github.com/labstreaminglayer/App-PSMove/internal/metrics/exporters"
)

// registerSSERoutes registers the native Huma SSE endpoint.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time stream of link, device list, streaming, phase and data gap notifications",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func() map[string]any {
		eventTypes := map[string]any{
			"connection-result":   events.ConnectionResultEvent{},
			"device-list-changed": events.DeviceListChangedEvent{},
			"streaming-result":    events.StreamingResultEvent{},
			"phase-changed":       events.PhaseChangedEvent{},
			"data-gap":            events.DataGapEvent{},
		}

		maps.Copy(eventTypes, exporters.GetEventTypesForEndpoint("events"))

		return eventTypes
	}(), func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 32)

		unsubscribe := events.SubscribeNotifications(s.eventBus, eventCh)
		defer unsubscribe()

		// New clients get the current controller list and phase right away
		status := s.bridge.Status()
		now := time.Now().Format(time.RFC3339)
		if err := send.Data(events.PhaseChangedEvent{Phase: status.Phase, Timestamp: now}); err != nil {
			return
		}
		devices := status.Devices
		if devices == nil {
			devices = []string{}
		}
		if err := send.Data(events.DeviceListChangedEvent{Devices: devices, Timestamp: now}); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
