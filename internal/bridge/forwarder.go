package bridge

import (
	"log/slog"
	"time"

	"github.com/labstreaminglayer/App-PSMove/internal/events"
	"github.com/labstreaminglayer/App-PSMove/internal/metrics"
	"github.com/labstreaminglayer/App-PSMove/internal/outlet"
	"github.com/labstreaminglayer/App-PSMove/internal/psmove"
)

// forwarder pushes each new controller sample exactly once per sequence value.
type forwarder struct {
	client  psmove.Client
	flags   FeatureFlags
	subs    []*subscription
	outlets map[int]*deviceOutlets
	events  EventPublisher
	logger  *slog.Logger
}

// pollOnce reads the cached state of every acquired controller and pushes a
// sample per active category when the sequence number advanced. It reports
// whether anything was pushed.
func (f *forwarder) pollOnce() bool {
	pushed := false
	for _, sub := range f.subs {
		if !sub.acquired {
			continue
		}
		state, ok := f.client.LatestState(sub.deviceID)
		if !ok {
			continue
		}
		seq := state.SequenceNumber
		if seq <= sub.lastSeq {
			continue
		}
		if sub.lastSeq >= 0 && seq-sub.lastSeq > 1 {
			f.reportGap(sub.deviceID, sub.lastSeq, seq)
		}

		outs := f.outlets[sub.deviceID]
		if outs != nil {
			if outs.imu != nil && f.push(sub.deviceID, CategoryIMU, outs.imu, imuSample(state, f.flags)) {
				pushed = true
			}
			if outs.pose != nil && f.push(sub.deviceID, CategoryPose, outs.pose, poseSample(state, f.flags)) {
				pushed = true
			}
		}
		sub.lastSeq = seq
	}
	return pushed
}

// push reports whether the outlet accepted the sample.
func (f *forwarder) push(deviceID int, category Category, o outlet.Outlet, values []float32) bool {
	if err := o.PushSample(values); err != nil {
		metrics.RecordPushError(deviceID, string(category))
		f.logger.Debug("Push failed", "device", deviceID, "category", category, "error", err)
		return false
	}
	metrics.RecordPush(deviceID, string(category))
	return true
}

func (f *forwarder) reportGap(deviceID, from, to int) {
	f.logger.Warn("Data gap detected", "device", deviceID, "from", from, "to", to, "missed", to-from-1)
	metrics.RecordDataGap(deviceID)
	if f.events != nil {
		f.events.Publish(events.DataGapEvent{
			DeviceID:  deviceID,
			From:      from,
			To:        to,
			Timestamp: time.Now().Format(time.RFC3339),
		})
	}
}

// imuSample assembles {calibrated}{raw}, each block being time, accelerometer,
// gyroscope and magnetometer.
func imuSample(state psmove.ControllerState, flags FeatureFlags) []float32 {
	values := make([]float32, 0, 20)
	if flags.IMU {
		values = appendSensor(values, state.CalibratedSensors)
	}
	if flags.IMURaw {
		values = appendSensor(values, state.RawSensors)
	}
	return values
}

// poseSample assembles {quaternion w/x/y/z, position}{raw relative position}.
func poseSample(state psmove.ControllerState, flags FeatureFlags) []float32 {
	values := make([]float32, 0, 10)
	if flags.Pose {
		q, p := state.Pose.Orientation, state.Pose.Position
		values = append(values, q.W, q.X, q.Y, q.Z, p.X, p.Y, p.Z)
	}
	if flags.PoseRaw {
		values = appendVector(values, state.RawTracker.RelativePosition)
	}
	return values
}

func appendSensor(values []float32, s psmove.SensorData) []float32 {
	values = append(values, float32(s.TimeInSeconds))
	values = appendVector(values, s.Accelerometer)
	values = appendVector(values, s.Gyroscope)
	return appendVector(values, s.Magnetometer)
}

func appendVector(values []float32, v psmove.Vector3) []float32 {
	return append(values, v.X, v.Y, v.Z)
}
