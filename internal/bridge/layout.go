package bridge

import (
	"strconv"

	"github.com/labstreaminglayer/App-PSMove/internal/outlet"
	"github.com/labstreaminglayer/App-PSMove/internal/psmove"
)

// Category is a sensor category. Each streamed device gets one outlet per
// non-empty category.
type Category string

// Sensor categories.
const (
	CategoryIMU  Category = "IMU"
	CategoryPose Category = "Pose"
)

// Stream metadata shared by every outlet the bridge declares. Consumers match
// on these strings, so they must not change.
const (
	StreamType   = "MoCap"
	Manufacturer = "Sony"
	Model        = "PlayStation Move"
)

// FeatureFlags selects the sensor blocks streamed for every device.
type FeatureFlags struct {
	IMU     bool `json:"imu" doc:"Calibrated accelerometer, gyroscope and magnetometer"`
	IMURaw  bool `json:"imu_raw" doc:"Raw sensor counts"`
	Pose    bool `json:"pose" doc:"Calibrated orientation and position"`
	PoseRaw bool `json:"pose_raw" doc:"Raw tracker relative position"`
}

// Any reports whether at least one block is selected.
func (f FeatureFlags) Any() bool {
	return f.IMU || f.IMURaw || f.Pose || f.PoseRaw
}

// StreamFlags composes the service subscription bits for f.
func (f FeatureFlags) StreamFlags() psmove.StreamFlags {
	var flags psmove.StreamFlags
	if f.IMU {
		flags |= psmove.IncludeCalibratedSensorData
	}
	if f.IMURaw {
		flags |= psmove.IncludeRawSensorData
	}
	if f.Pose {
		flags |= psmove.IncludePositionData
	}
	if f.PoseRaw {
		flags |= psmove.IncludeRawTrackerData
	}
	return flags
}

// ChannelSpec names one channel of a layout.
type ChannelSpec struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Unit string `json:"unit"`
}

// ChannelLayout is the ordered channel list of one category. Its length is the
// declared channel count and the length of every sample pushed for it.
type ChannelLayout struct {
	Category Category      `json:"category"`
	Channels []ChannelSpec `json:"channels"`
}

// Len returns the channel count.
func (l ChannelLayout) Len() int {
	return len(l.Channels)
}

// Empty reports whether the category is not streamed.
func (l ChannelLayout) Empty() bool {
	return len(l.Channels) == 0
}

func sensorBlock(prefix, unitAccel, unitGyro, unitMag string) []ChannelSpec {
	return []ChannelSpec{
		{prefix + "Time", "Time", "s"},
		{prefix + "Accel.x", "Accelerometer", unitAccel},
		{prefix + "Accel.y", "Accelerometer", unitAccel},
		{prefix + "Accel.z", "Accelerometer", unitAccel},
		{prefix + "Gyro.x", "Gyroscope", unitGyro},
		{prefix + "Gyro.y", "Gyroscope", unitGyro},
		{prefix + "Gyro.z", "Gyroscope", unitGyro},
		{prefix + "Mag.x", "Magnetometer", unitMag},
		{prefix + "Mag.y", "Magnetometer", unitMag},
		{prefix + "Mag.z", "Magnetometer", unitMag},
	}
}

var (
	imuCalibrated = sensorBlock("", "g", "rad/s", "normalized")
	imuRaw        = sensorBlock("Raw", "counts", "counts", "counts")

	poseCalibrated = []ChannelSpec{
		{"Quat.w", "Orientation", "quaternion"},
		{"Quat.x", "Orientation", "quaternion"},
		{"Quat.y", "Orientation", "quaternion"},
		{"Quat.z", "Orientation", "quaternion"},
		{"Pos.x", "Position", "cm"},
		{"Pos.y", "Position", "cm"},
		{"Pos.z", "Position", "cm"},
	}
	poseRaw = []ChannelSpec{
		{"RawPos.x", "Position", "cm"},
		{"RawPos.y", "Position", "cm"},
		{"RawPos.z", "Position", "cm"},
	}
)

// BuildLayouts computes the IMU and pose layouts for f. The calibrated block
// always precedes the raw block; a category with neither flag set is empty.
func BuildLayouts(f FeatureFlags) (imu, pose ChannelLayout) {
	imu.Category = CategoryIMU
	if f.IMU {
		imu.Channels = append(imu.Channels, imuCalibrated...)
	}
	if f.IMURaw {
		imu.Channels = append(imu.Channels, imuRaw...)
	}

	pose.Category = CategoryPose
	if f.Pose {
		pose.Channels = append(pose.Channels, poseCalibrated...)
	}
	if f.PoseRaw {
		pose.Channels = append(pose.Channels, poseRaw...)
	}
	return imu, pose
}

// OutletName returns the stream name for a category.
func OutletName(c Category) string {
	return "PSMove" + string(c)
}

// SourceID returns the stable identifier of a device's outlet for a category.
// The serial survives reconnects; the id is used when the service reports none.
func SourceID(c Category, device psmove.DeviceDescriptor) string {
	unit := device.Serial
	if unit == "" {
		unit = strconv.Itoa(device.ID)
	}
	return "PSMove_" + string(c) + "_" + unit
}

// StreamInfo builds the outlet description for one device and layout.
// Channel labels are "<deviceId>_<ChannelName>".
func StreamInfo(device psmove.DeviceDescriptor, layout ChannelLayout, sampleRate float64) outlet.StreamInfo {
	rate := outlet.IrregularRate
	if sampleRate > 0 {
		rate = sampleRate
	}
	prefix := strconv.Itoa(device.ID) + "_"
	channels := make([]outlet.ChannelInfo, len(layout.Channels))
	for i, ch := range layout.Channels {
		channels[i] = outlet.ChannelInfo{
			Label: prefix + ch.Name,
			Type:  ch.Type,
			Unit:  ch.Unit,
		}
	}
	return outlet.StreamInfo{
		Name:          OutletName(layout.Category),
		Type:          StreamType,
		ChannelCount:  layout.Len(),
		NominalRate:   rate,
		ChannelFormat: outlet.FormatFloat32,
		SourceID:      SourceID(layout.Category, device),
		Desc: outlet.Description{
			Acquisition: outlet.Acquisition{Manufacturer: Manufacturer, Model: Model},
			Channels:    channels,
		},
	}
}
