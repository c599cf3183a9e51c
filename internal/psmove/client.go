// Package psmove defines the contract the bridge consumes from a
// PSMoveService-compatible controller service.
//
// The service owns discovery, tracking and sensor fusion. The bridge only
// connects, enumerates controllers, subscribes to their data streams and
// polls the latest cached state once per loop iteration.
package psmove

import (
	"context"
	"fmt"
	"time"
)

// Service defaults, matching the PSMoveService client library.
const (
	DefaultAddress = "localhost"
	DefaultPort    = 9512
	DefaultTimeout = 1000 * time.Millisecond
)

// Result is the completion code delivered by asynchronous service requests.
type Result int

// Result codes.
const (
	ResultSuccess Result = iota
	ResultError
	ResultCanceled
	ResultTimeout
)

func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultError:
		return "error"
	case ResultCanceled:
		return "canceled"
	case ResultTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// StreamFlags selects which data blocks the service streams for a controller.
// Bit values mirror PSMoveService's PSMStreamFlags.
type StreamFlags uint32

// Stream flag bits.
const (
	IncludePositionData         StreamFlags = 1 << 0
	IncludePhysicsData          StreamFlags = 1 << 1
	IncludeRawSensorData        StreamFlags = 1 << 2
	IncludeCalibratedSensorData StreamFlags = 1 << 3
	IncludeRawTrackerData       StreamFlags = 1 << 4
)

// Has reports whether all bits of f are set.
func (s StreamFlags) Has(f StreamFlags) bool {
	return s&f == f
}

// CompletionFunc receives the outcome of an asynchronous Subscribe.
// It may be invoked from any goroutine.
type CompletionFunc func(deviceID int, result Result)

// Client is the controller-service client contract.
type Client interface {
	// Connect opens the link to the service at address:port.
	Connect(ctx context.Context, address string, port int, timeout time.Duration) error

	// Disconnect closes the link and drops every subscription.
	Disconnect() error

	// ListDevices enumerates the controllers the service currently knows.
	// Failures are expected while the service is busy and should be retried.
	ListDevices(ctx context.Context, timeout time.Duration) ([]DeviceDescriptor, error)

	// Subscribe asks the service to start streaming the given blocks for a
	// controller. It returns immediately; done is called once with the result.
	Subscribe(deviceID int, flags StreamFlags, done CompletionFunc)

	// Unsubscribe stops the data stream for a controller.
	Unsubscribe(deviceID int) error

	// PumpUpdates refreshes the cached per-controller state. Must be called
	// once per loop iteration while any controller is subscribed.
	PumpUpdates()

	// LatestState returns the most recent cached state of a subscribed controller.
	LatestState(deviceID int) (ControllerState, bool)
}
