package exporters

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/labstreaminglayer/App-PSMove/internal/events"
	"github.com/labstreaminglayer/App-PSMove/internal/metrics"
)

type mockEventBus struct {
	mu        sync.Mutex
	events    []events.Event
	published chan struct{}
}

func newMockEventBus() *mockEventBus {
	return &mockEventBus{
		events:    make([]events.Event, 0),
		published: make(chan struct{}, 100),
	}
}

func (m *mockEventBus) Publish(ev events.Event) {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
	select {
	case m.published <- struct{}{}:
	default:
	}
}

func (m *mockEventBus) getEvents() []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]events.Event, len(m.events))
	copy(result, m.events)
	return result
}

func TestSSEExporterPublishesMetrics(t *testing.T) {
	const deviceID = 21
	metrics.DeleteDeviceMetrics(deviceID)
	defer metrics.DeleteDeviceMetrics(deviceID)

	for range 5 {
		metrics.RecordPush(deviceID, "Pose")
	}

	mock := newMockEventBus()
	exporter := NewSSEExporter(mock)
	exporter.interval = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	exporter.Start(ctx)

	// Wait for at least one publish cycle
	select {
	case <-mock.published:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for metrics publish")
	}

	cancel()
	exporter.Stop()

	var found bool
	for _, ev := range mock.getEvents() {
		dme, ok := ev.(events.DeviceMetricsEvent)
		if !ok || dme.DeviceID != deviceID {
			continue
		}
		found = true
		if dme.Category != "Pose" {
			t.Errorf("Category = %q, want \"Pose\"", dme.Category)
		}
		if dme.Total != 5 {
			t.Errorf("Total = %d, want 5", dme.Total)
		}
		// First interval counts every push: 5 samples / 50ms.
		if dme.Rate != "100.00" {
			t.Errorf("Rate = %q, want \"100.00\"", dme.Rate)
		}
		break
	}

	if !found {
		t.Error("expected DeviceMetricsEvent for test device")
	}
}

func TestSSEExporterRateUsesDelta(t *testing.T) {
	const deviceID = 22
	metrics.DeleteDeviceMetrics(deviceID)
	defer metrics.DeleteDeviceMetrics(deviceID)

	mock := newMockEventBus()
	exporter := NewSSEExporter(mock)
	exporter.interval = time.Second

	metrics.RecordPush(deviceID, "IMU")
	exporter.publishMetrics()
	metrics.RecordPush(deviceID, "IMU")
	metrics.RecordPush(deviceID, "IMU")
	exporter.publishMetrics()

	var rates []string
	for _, ev := range mock.getEvents() {
		if dme, ok := ev.(events.DeviceMetricsEvent); ok && dme.DeviceID == deviceID {
			rates = append(rates, dme.Rate)
		}
	}
	if len(rates) != 2 || rates[0] != "1.00" || rates[1] != "2.00" {
		t.Errorf("rates = %v, want [1.00 2.00]", rates)
	}
}

func TestSSEExporterNoMetrics(t *testing.T) {
	const deviceID = 23
	metrics.DeleteDeviceMetrics(deviceID)

	mock := newMockEventBus()
	exporter := NewSSEExporter(mock)
	exporter.interval = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	exporter.Start(ctx)

	// Wait for at least one publish cycle
	time.Sleep(50 * time.Millisecond)

	cancel()
	exporter.Stop()

	for _, ev := range mock.getEvents() {
		if dme, ok := ev.(events.DeviceMetricsEvent); ok && dme.DeviceID == deviceID {
			t.Error("expected no events for deleted device")
		}
	}
}

func TestSSEExporterStopIdempotent(t *testing.T) {
	metrics.RecordPush(24, "IMU")
	defer metrics.DeleteDeviceMetrics(24)

	mock := newMockEventBus()
	exporter := NewSSEExporter(mock)
	exporter.interval = 10 * time.Millisecond

	ctx := context.Background()
	exporter.Start(ctx)

	// Let it run briefly
	time.Sleep(30 * time.Millisecond)

	// Stop multiple times
	exporter.Stop()
	exporter.Stop()
	exporter.Stop()

	// Record event count after stops
	countAfterStop := len(mock.getEvents())

	// Wait and verify no new events after stop
	time.Sleep(30 * time.Millisecond)
	countAfterWait := len(mock.getEvents())

	if countAfterWait != countAfterStop {
		t.Errorf("events published after stop: got %d, want %d", countAfterWait, countAfterStop)
	}
}

func TestSSEExporterStopBeforeStart(t *testing.T) {
	metrics.RecordPush(25, "Pose")
	defer metrics.DeleteDeviceMetrics(25)

	mock := newMockEventBus()
	exporter := NewSSEExporter(mock)
	exporter.interval = 10 * time.Millisecond

	// Stop before start should not panic
	exporter.Stop()

	// Should still be able to start and function normally
	ctx := t.Context()
	exporter.Start(ctx)

	// Wait for publish cycle
	time.Sleep(30 * time.Millisecond)
	exporter.Stop()

	// Verify events were published after start
	if len(mock.getEvents()) == 0 {
		t.Error("expected events after Start(), got none")
	}
}

func TestGetEventTypes(t *testing.T) {
	types := GetEventTypes()
	if _, ok := types["device-metrics"]; !ok {
		t.Error("expected device-metrics event type")
	}
}

func TestGetEventTypesForEndpoint(t *testing.T) {
	types := GetEventTypesForEndpoint("events")
	if _, ok := types["device-metrics"]; !ok {
		t.Error("expected device-metrics for events endpoint")
	}

	types = GetEventTypesForEndpoint("unknown")
	if len(types) != 0 {
		t.Error("expected empty map for unknown endpoint")
	}
}

func TestGetEventRoutes(t *testing.T) {
	routes := GetEventRoutes()
	if routes["device-metrics"] != "events" {
		t.Errorf("device-metrics route = %q, want \"events\"", routes["device-metrics"])
	}
}
