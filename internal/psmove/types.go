package psmove

import (
	"fmt"
	"strconv"
	"strings"
)

// DeviceDescriptor identifies a physical controller. Immutable once discovered.
type DeviceDescriptor struct {
	ID     int    `json:"id" example:"0" doc:"Controller id assigned by the service"`
	Serial string `json:"serial" example:"00:06:f7:c9:a1:fb" doc:"Controller Bluetooth serial"`
}

// String returns the "id:serial" display form used in device-list notifications.
func (d DeviceDescriptor) String() string {
	return strconv.Itoa(d.ID) + ":" + d.Serial
}

// ParseDeviceRef extracts the controller id from either a bare id ("3") or
// the "id:serial" display form ("3:00:06:f7:c9:a1:fb").
func ParseDeviceRef(ref string) (int, error) {
	head, _, _ := strings.Cut(strings.TrimSpace(ref), ":")
	id, err := strconv.Atoi(head)
	if err != nil {
		return 0, fmt.Errorf("invalid device reference %q: %w", ref, err)
	}
	if id < 0 {
		return 0, fmt.Errorf("invalid device reference %q: negative id", ref)
	}
	return id, nil
}

// Vector3 is a 3-axis reading.
type Vector3 struct {
	X, Y, Z float32
}

// Quaternion is a unit orientation.
type Quaternion struct {
	W, X, Y, Z float32
}

// SensorData is one IMU block. Calibrated blocks are in physical units
// (g, rad/s, normalized field); raw blocks carry uncorrected counts.
type SensorData struct {
	Accelerometer Vector3
	Gyroscope     Vector3
	Magnetometer  Vector3
	TimeInSeconds float64
}

// Pose is the fused controller pose. Position is in centimeters.
type Pose struct {
	Orientation Quaternion
	Position    Vector3
}

// RawTrackerData is the optical position relative to the tracking camera, in centimeters.
type RawTrackerData struct {
	RelativePosition Vector3
	Valid            bool
}

// ControllerState is the latest cached state of a subscribed controller.
// SequenceNumber advances by one for every new sensor packet the service sees.
type ControllerState struct {
	SequenceNumber    int
	Serial            string
	CalibratedSensors SensorData
	RawSensors        SensorData
	Pose              Pose
	RawTracker        RawTrackerData
}

// ParseDeviceRefs parses every reference with ParseDeviceRef.
func ParseDeviceRefs(refs []string) ([]int, error) {
	var ids []int
	for _, ref := range refs {
		id, err := ParseDeviceRef(ref)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
