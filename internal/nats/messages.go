package nats

import (
	"encoding/json"
	"fmt"
)

// Subject prefixes for NATS topics.
const (
	SubjectControlPrefix = "psmove.control"
	SubjectEventsPrefix  = "psmove.events"
)

// Control subjects. All are request/reply.
const (
	SubjectControlLink   = SubjectControlPrefix + ".link"
	SubjectControlStop   = SubjectControlPrefix + ".stop"
	SubjectControlToggle = SubjectControlPrefix + ".toggle"
	SubjectControlStatus = SubjectControlPrefix + ".status"
)

// Event kinds, used as the last subject token.
const (
	KindConnection = "connection"
	KindDevices    = "devices"
	KindStreaming  = "streaming"
	KindPhase      = "phase"
	KindGap        = "gap"
)

// SubjectEvent returns the subject bridge notifications of kind are published on.
func SubjectEvent(kind string) string {
	return fmt.Sprintf("%s.%s", SubjectEventsPrefix, kind)
}

// LinkCommand starts the bridge worker, or disconnects it when running.
type LinkCommand struct {
	SampleRate *float64 `json:"sample_rate,omitempty"`
}

// Marshal serializes the message to JSON.
func (m LinkCommand) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// ToggleCommand starts or stops streaming. Devices are "id" or "id:serial".
type ToggleCommand struct {
	Devices []string `json:"devices,omitempty"`
	IMU     bool     `json:"imu,omitempty"`
	IMURaw  bool     `json:"imu_raw,omitempty"`
	Pose    bool     `json:"pose,omitempty"`
	PoseRaw bool     `json:"pose_raw,omitempty"`
}

// Marshal serializes the message to JSON.
func (m ToggleCommand) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// Reply answers every control request.
type Reply struct {
	OK      bool            `json:"ok"`
	Error   string          `json:"error,omitempty"`
	Action  string          `json:"action,omitempty"` // started, stopping, stopped, queued
	Running bool            `json:"running"`
	Status  json.RawMessage `json:"status,omitempty"`
}

// Marshal serializes the message to JSON.
func (m Reply) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// EventMessage wraps a bridge notification published on psmove.events.<kind>.
type EventMessage struct {
	Kind      string          `json:"kind"`
	Timestamp string          `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Marshal serializes the message to JSON.
func (m EventMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// UnmarshalLink deserializes a LinkCommand from JSON. An empty payload is a
// command with defaults.
func UnmarshalLink(data []byte) (LinkCommand, error) {
	var m LinkCommand
	if len(data) == 0 {
		return m, nil
	}
	err := json.Unmarshal(data, &m)
	return m, err
}

// UnmarshalToggle deserializes a ToggleCommand from JSON.
func UnmarshalToggle(data []byte) (ToggleCommand, error) {
	var m ToggleCommand
	if len(data) == 0 {
		return m, nil
	}
	err := json.Unmarshal(data, &m)
	return m, err
}

// UnmarshalReply deserializes a Reply from JSON.
func UnmarshalReply(data []byte) (Reply, error) {
	var m Reply
	err := json.Unmarshal(data, &m)
	return m, err
}

// UnmarshalEvent deserializes an EventMessage from JSON.
func UnmarshalEvent(data []byte) (EventMessage, error) {
	var m EventMessage
	err := json.Unmarshal(data, &m)
	return m, err
}
