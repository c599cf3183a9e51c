package bridge

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labstreaminglayer/App-PSMove/internal/outlet"
	"github.com/labstreaminglayer/App-PSMove/internal/psmove"
)

func allFlagCombinations() []FeatureFlags {
	var combos []FeatureFlags
	for bits := range 16 {
		combos = append(combos, FeatureFlags{
			IMU:     bits&1 != 0,
			IMURaw:  bits&2 != 0,
			Pose:    bits&4 != 0,
			PoseRaw: bits&8 != 0,
		})
	}
	return combos
}

func TestBuildLayoutsLengths(t *testing.T) {
	tests := []struct {
		flags    FeatureFlags
		imuLen   int
		poseLen  int
		firstIMU string
	}{
		{FeatureFlags{IMU: true}, 10, 0, "Time"},
		{FeatureFlags{IMU: true, IMURaw: true}, 20, 0, "Time"},
		{FeatureFlags{IMURaw: true}, 10, 0, "RawTime"},
		{FeatureFlags{Pose: true}, 0, 7, ""},
		{FeatureFlags{Pose: true, PoseRaw: true}, 0, 10, ""},
		{FeatureFlags{PoseRaw: true}, 0, 3, ""},
		{FeatureFlags{}, 0, 0, ""},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%+v", tt.flags), func(t *testing.T) {
			imu, pose := BuildLayouts(tt.flags)
			assert.Equal(t, CategoryIMU, imu.Category)
			assert.Equal(t, CategoryPose, pose.Category)
			assert.Equal(t, tt.imuLen, imu.Len())
			assert.Equal(t, tt.poseLen, pose.Len())
			if tt.firstIMU != "" {
				assert.Equal(t, tt.firstIMU, imu.Channels[0].Name)
			}
		})
	}
}

func TestBuildLayoutsOrder(t *testing.T) {
	imu, pose := BuildLayouts(FeatureFlags{IMU: true, IMURaw: true, Pose: true, PoseRaw: true})

	assert.Equal(t, "Mag.z", imu.Channels[9].Name)
	assert.Equal(t, "RawTime", imu.Channels[10].Name)
	assert.Equal(t, "RawMag.z", imu.Channels[19].Name)

	names := make([]string, pose.Len())
	for i, ch := range pose.Channels {
		names[i] = ch.Name
	}
	assert.Equal(t, []string{
		"Quat.w", "Quat.x", "Quat.y", "Quat.z",
		"Pos.x", "Pos.y", "Pos.z",
		"RawPos.x", "RawPos.y", "RawPos.z",
	}, names)
}

// Every flag combination must push exactly as many values as it declares.
func TestLayoutSampleLengthAgreement(t *testing.T) {
	state := psmove.ControllerState{SequenceNumber: 1}
	for _, flags := range allFlagCombinations() {
		t.Run(fmt.Sprintf("%+v", flags), func(t *testing.T) {
			imu, pose := BuildLayouts(flags)
			device := psmove.DeviceDescriptor{ID: 0, Serial: "aa"}

			if !imu.Empty() {
				info := StreamInfo(device, imu, 0)
				require.NoError(t, info.Validate())
				assert.Len(t, imuSample(state, flags), info.ChannelCount)
			} else {
				assert.Empty(t, imuSample(state, flags))
			}

			if !pose.Empty() {
				info := StreamInfo(device, pose, 0)
				require.NoError(t, info.Validate())
				assert.Len(t, poseSample(state, flags), info.ChannelCount)
			} else {
				assert.Empty(t, poseSample(state, flags))
			}
		})
	}
}

func TestStreamInfoMetadata(t *testing.T) {
	_, pose := BuildLayouts(FeatureFlags{Pose: true})
	info := StreamInfo(psmove.DeviceDescriptor{ID: 3, Serial: "00:06:f7:c9:a1:03"}, pose, 0)

	assert.Equal(t, "PSMovePose", info.Name)
	assert.Equal(t, "MoCap", info.Type)
	assert.Equal(t, 7, info.ChannelCount)
	assert.True(t, info.Irregular())
	assert.Equal(t, outlet.FormatFloat32, info.ChannelFormat)
	assert.Equal(t, "PSMove_Pose_00:06:f7:c9:a1:03", info.SourceID)
	assert.Equal(t, "Sony", info.Desc.Acquisition.Manufacturer)
	assert.Equal(t, "PlayStation Move", info.Desc.Acquisition.Model)
	assert.Equal(t, "3_Quat.w", info.Desc.Channels[0].Label)
	assert.Equal(t, "3_Pos.z", info.Desc.Channels[6].Label)
	assert.Equal(t, "cm", info.Desc.Channels[6].Unit)

	withRate := StreamInfo(psmove.DeviceDescriptor{ID: 1}, pose, 120)
	assert.InDelta(t, 120.0, withRate.NominalRate, 0)
	assert.Equal(t, "PSMove_Pose_1", withRate.SourceID, "id is used when serial is missing")
}

func TestFeatureFlagsStreamFlags(t *testing.T) {
	flags := FeatureFlags{IMU: true, PoseRaw: true}.StreamFlags()
	assert.True(t, flags.Has(psmove.IncludeCalibratedSensorData))
	assert.True(t, flags.Has(psmove.IncludeRawTrackerData))
	assert.False(t, flags.Has(psmove.IncludeRawSensorData))
	assert.False(t, flags.Has(psmove.IncludePositionData))
	assert.False(t, FeatureFlags{}.Any())
}

func TestSampleAssembly(t *testing.T) {
	state := psmove.ControllerState{
		CalibratedSensors: psmove.SensorData{
			TimeInSeconds: 1.5,
			Accelerometer: psmove.Vector3{X: 1, Y: 2, Z: 3},
			Gyroscope:     psmove.Vector3{X: 4, Y: 5, Z: 6},
			Magnetometer:  psmove.Vector3{X: 7, Y: 8, Z: 9},
		},
		RawSensors: psmove.SensorData{TimeInSeconds: 1.5, Accelerometer: psmove.Vector3{X: 100}},
		Pose: psmove.Pose{
			Orientation: psmove.Quaternion{W: 1, X: 0.1, Y: 0.2, Z: 0.3},
			Position:    psmove.Vector3{X: 10, Y: 20, Z: 30},
		},
		RawTracker: psmove.RawTrackerData{RelativePosition: psmove.Vector3{X: -1, Y: -2, Z: -3}},
	}
	flags := FeatureFlags{IMU: true, IMURaw: true, Pose: true, PoseRaw: true}

	imu := imuSample(state, flags)
	assert.Equal(t, []float32{1.5, 1, 2, 3, 4, 5, 6, 7, 8, 9}, imu[:10])
	assert.Equal(t, float32(100), imu[11])

	pose := poseSample(state, flags)
	assert.Equal(t, []float32{1, 0.1, 0.2, 0.3, 10, 20, 30, -1, -2, -3}, pose)
}
