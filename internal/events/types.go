package events

// Event type constants for kelindar/event.
const (
	TypeConnectionResult uint32 = iota + 1
	TypeDeviceListChanged
	TypeStreamingResult
	TypePhaseChanged
	TypeDataGap
	TypeLogEntry
	TypeDeviceMetrics
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// ConnectionResultEvent reports the outcome of linking to the controller
// service. Connected=false is also sent once when the link is torn down.
type ConnectionResultEvent struct {
	Connected bool   `json:"connected" example:"true" doc:"Whether the controller service link is up"`
	Error     string `json:"error,omitempty" doc:"Failure reason when the link could not be established"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ConnectionResultEvent.
func (e ConnectionResultEvent) Type() uint32 { return TypeConnectionResult }

// DeviceListChangedEvent carries the new controller list as "id:serial" strings.
type DeviceListChangedEvent struct {
	Devices   []string `json:"devices" example:"[\"0:00:06:f7:c9:a1:fb\"]" doc:"Known controllers"`
	Timestamp string   `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for DeviceListChangedEvent.
func (e DeviceListChangedEvent) Type() uint32 { return TypeDeviceListChanged }

// StreamingResultEvent reports that outlets were created (Active=true) or
// torn down / failed (Active=false).
type StreamingResultEvent struct {
	Active    bool   `json:"active" example:"true" doc:"Whether outlets are streaming"`
	Error     string `json:"error,omitempty" doc:"Failure reason when streaming could not start"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamingResultEvent.
func (e StreamingResultEvent) Type() uint32 { return TypeStreamingResult }

// PhaseChangedEvent is published on every worker phase transition.
type PhaseChangedEvent struct {
	Phase     string `json:"phase" example:"transfer_data" doc:"New phase"`
	Previous  string `json:"previous" example:"create_outlets" doc:"Previous phase"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for PhaseChangedEvent.
func (e PhaseChangedEvent) Type() uint32 { return TypePhaseChanged }

// DataGapEvent is published when a controller's sequence number skipped values.
type DataGapEvent struct {
	DeviceID  int    `json:"device_id" example:"0" doc:"Controller id"`
	From      int    `json:"from" example:"41" doc:"Last forwarded sequence number"`
	To        int    `json:"to" example:"44" doc:"Sequence number just forwarded"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for DataGapEvent.
func (e DataGapEvent) Type() uint32 { return TypeDataGap }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"bridge" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }

// DeviceMetricsEvent reports the push rate of one device outlet over the
// last export interval.
type DeviceMetricsEvent struct {
	EventType string `json:"type" example:"device_metrics" doc:"Event type"`
	DeviceID  int    `json:"device_id" example:"0" doc:"Controller id"`
	Category  string `json:"category" example:"IMU" doc:"Sensor category"`
	Rate      string `json:"rate" example:"120.00" doc:"Samples per second"`
	Total     uint64 `json:"total" example:"36000" doc:"Samples pushed since the counter was created"`
}

// Type returns the event type identifier for DeviceMetricsEvent.
func (e DeviceMetricsEvent) Type() uint32 { return TypeDeviceMetrics }
