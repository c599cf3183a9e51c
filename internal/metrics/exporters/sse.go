package exporters

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/labstreaminglayer/App-PSMove/internal/events"
	"github.com/labstreaminglayer/App-PSMove/internal/metrics"
)

// EventPublisher interface for publishing events.
type EventPublisher interface {
	Publish(ev events.Event)
}

// SSEExporter exports per-device push rates via Server-Sent Events.
type SSEExporter struct {
	eventBus EventPublisher
	interval time.Duration
	previous map[metrics.DeviceCategory]uint64
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewSSEExporter creates a new SSE exporter.
func NewSSEExporter(eventBus EventPublisher) *SSEExporter {
	return &SSEExporter{
		eventBus: eventBus,
		interval: 1 * time.Second,
		previous: make(map[metrics.DeviceCategory]uint64),
	}
}

// Start begins the SSE export loop.
func (s *SSEExporter) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run()
}

// Stop stops the SSE exporter and waits for the goroutine to finish.
func (s *SSEExporter) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *SSEExporter) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.publishMetrics()
		}
	}
}

func (s *SSEExporter) publishMetrics() {
	keys, counts := metrics.PushCounts()
	seconds := s.interval.Seconds()
	next := make(map[metrics.DeviceCategory]uint64, len(keys))
	for _, key := range keys {
		total := counts[key]
		next[key] = total
		delta := total
		if prev, ok := s.previous[key]; ok && prev <= total {
			delta = total - prev
		}
		s.eventBus.Publish(events.DeviceMetricsEvent{
			EventType: "device_metrics",
			DeviceID:  key.DeviceID,
			Category:  key.Category,
			Rate:      strconv.FormatFloat(float64(delta)/seconds, 'f', 2, 64),
			Total:     total,
		})
	}
	s.previous = next
}

// GetEventTypes returns event types for SSE endpoint registration.
func GetEventTypes() map[string]any {
	return map[string]any{
		"device-metrics": events.DeviceMetricsEvent{},
	}
}

// GetEventTypesForEndpoint returns event types for a specific SSE endpoint.
func GetEventTypesForEndpoint(endpoint string) map[string]any {
	if endpoint == "events" {
		return map[string]any{
			"device-metrics": events.DeviceMetricsEvent{},
		}
	}
	return map[string]any{}
}

// GetEventRoutes returns the routing configuration for events.
func GetEventRoutes() map[string]string {
	return map[string]string{
		"device-metrics": "events",
	}
}
