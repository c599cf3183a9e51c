package bridge

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/labstreaminglayer/App-PSMove/internal/events"
	"github.com/labstreaminglayer/App-PSMove/internal/metrics"
	"github.com/labstreaminglayer/App-PSMove/internal/psmove"
)

// EventPublisher publishes bridge notifications.
type EventPublisher interface {
	Publish(ev events.Event)
}

// Registry holds the controller list from the latest scan. It is owned by
// the worker; callers learn about changes through DeviceListChangedEvent.
type Registry struct {
	client  psmove.Client
	timeout time.Duration
	events  EventPublisher
	logger  *slog.Logger
	devices []psmove.DeviceDescriptor
}

// NewRegistry creates an empty registry. events may be nil.
func NewRegistry(client psmove.Client, timeout time.Duration, publisher EventPublisher, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		client:  client,
		timeout: timeout,
		events:  publisher,
		logger:  logger,
	}
}

// Refresh lists controllers and replaces the stored list when it differs in
// any id, serial or in order. It reports whether the list changed. A failed query
// keeps the previous list.
func (r *Registry) Refresh(ctx context.Context) (bool, error) {
	list, err := r.client.ListDevices(ctx, r.timeout)
	if err != nil {
		r.logger.Debug("Controller enumeration failed, keeping previous list", "error", err)
		return false, err
	}

	if sameOrder(list, r.devices) {
		return false, nil
	}

	for _, gone := range removed(r.devices, list) {
		metrics.DeleteDeviceMetrics(gone)
	}
	r.devices = slices.Clone(list)
	metrics.SetDevicesKnown(len(r.devices))
	display := DisplayStrings(r.devices)
	r.logger.Info("Controller list changed", "devices", display)
	if r.events != nil {
		r.events.Publish(events.DeviceListChangedEvent{
			Devices:   display,
			Timestamp: time.Now().Format(time.RFC3339),
		})
	}
	return true, nil
}

// Devices returns a copy of the current list.
func (r *Registry) Devices() []psmove.DeviceDescriptor {
	return slices.Clone(r.devices)
}

// IDs returns the controller ids in scan order.
func (r *Registry) IDs() []int {
	ids := make([]int, len(r.devices))
	for i, d := range r.devices {
		ids[i] = d.ID
	}
	return ids
}

// Lookup returns the descriptor for id. Unknown ids get a descriptor with
// no serial.
func (r *Registry) Lookup(id int) psmove.DeviceDescriptor {
	for _, d := range r.devices {
		if d.ID == id {
			return d
		}
	}
	return psmove.DeviceDescriptor{ID: id}
}

// DisplayStrings formats devices as "id:serial".
func DisplayStrings(devices []psmove.DeviceDescriptor) []string {
	out := make([]string, len(devices))
	for i, d := range devices {
		out[i] = d.String()
	}
	return out
}

// sameOrder compares position by position; consumers index by position.
func sameOrder(a, b []psmove.DeviceDescriptor) bool {
	return slices.Equal(a, b)
}

// removed returns the ids present in prev but not in next.
func removed(prev, next []psmove.DeviceDescriptor) []int {
	var ids []int
	for _, d := range prev {
		if !slices.ContainsFunc(next, func(n psmove.DeviceDescriptor) bool { return n.ID == d.ID }) {
			ids = append(ids, d.ID)
		}
	}
	return ids
}
