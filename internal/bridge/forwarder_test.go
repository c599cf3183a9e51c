package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labstreaminglayer/App-PSMove/internal/events"
	"github.com/labstreaminglayer/App-PSMove/internal/psmove"
)

type forwarderFixture struct {
	fwd  *forwarder
	imu  *fakeOutlet
	pose *fakeOutlet
	rec  *recorder
}

func newForwarderFixture(t *testing.T, flags FeatureFlags) (*forwarderFixture, func(n int)) {
	t.Helper()
	s := connectedSim(t, 1)
	done := make(chan psmove.Result, 1)
	s.Subscribe(0, flags.StreamFlags(), func(_ int, r psmove.Result) { done <- r })
	select {
	case r := <-done:
		require.Equal(t, psmove.ResultSuccess, r)
	case <-time.After(time.Second):
		t.Fatal("subscription did not complete")
	}

	provider := newFakeProvider()
	imu, pose := BuildLayouts(flags)
	device := psmove.DeviceDescriptor{ID: 0, Serial: "00:06:f7:c9:a1:00"}
	outs, err := provision(provider, []psmove.DeviceDescriptor{device}, imu, pose, 0, quietLogger())
	require.NoError(t, err)

	rec := &recorder{}
	fix := &forwarderFixture{
		fwd: &forwarder{
			client:  s,
			flags:   flags,
			subs:    []*subscription{{deviceID: 0, lastSeq: -1, acquired: true}},
			outlets: outs,
			events:  rec,
			logger:  quietLogger(),
		},
		imu:  provider.outlet(SourceID(CategoryIMU, device)),
		pose: provider.outlet(SourceID(CategoryPose, device)),
		rec:  rec,
	}
	step := func(n int) {
		s.Step(0, n)
		s.PumpUpdates()
	}
	s.PumpUpdates()
	return fix, step
}

func TestForwarderPushesOncePerSequence(t *testing.T) {
	fix, step := newForwarderFixture(t, FeatureFlags{IMU: true, Pose: true})
	require.NotNil(t, fix.imu)
	require.NotNil(t, fix.pose)

	assert.True(t, fix.fwd.pollOnce(), "first observed state is forwarded")
	assert.False(t, fix.fwd.pollOnce(), "unchanged sequence must not be forwarded again")
	assert.False(t, fix.fwd.pollOnce())
	assert.Equal(t, 1, fix.imu.sampleCount())
	assert.Equal(t, 1, fix.pose.sampleCount())

	step(1)
	assert.True(t, fix.fwd.pollOnce())
	assert.False(t, fix.fwd.pollOnce())
	assert.Equal(t, 2, fix.imu.sampleCount())
	assert.Equal(t, 2, fix.pose.sampleCount())
	assert.Empty(t, fix.rec.snapshot())
}

func TestForwarderIgnoresStaleSequence(t *testing.T) {
	fix, step := newForwarderFixture(t, FeatureFlags{Pose: true})
	assert.Nil(t, fix.imu, "no IMU outlet without IMU flags")

	step(5)
	require.True(t, fix.fwd.pollOnce())
	sub := fix.fwd.subs[0]
	assert.Equal(t, 5, sub.lastSeq)

	// Pretend a later sequence was already forwarded.
	sub.lastSeq = 9
	step(2)
	assert.False(t, fix.fwd.pollOnce(), "sequence 7 is older than 9")
	assert.Equal(t, 9, sub.lastSeq)
	assert.Equal(t, 1, fix.pose.sampleCount())
}

func TestForwarderReportsGaps(t *testing.T) {
	fix, step := newForwarderFixture(t, FeatureFlags{IMU: true})
	require.True(t, fix.fwd.pollOnce())

	step(4)
	require.True(t, fix.fwd.pollOnce())
	assert.Equal(t, 2, fix.imu.sampleCount(), "only the latest state is forwarded")

	evs := fix.rec.snapshot()
	require.Len(t, evs, 1)
	gap, ok := evs[0].(events.DataGapEvent)
	require.True(t, ok)
	assert.Equal(t, 0, gap.DeviceID)
	assert.Equal(t, 0, gap.From)
	assert.Equal(t, 4, gap.To)
}

func TestForwarderSkipsUnacquired(t *testing.T) {
	fix, _ := newForwarderFixture(t, FeatureFlags{IMU: true})
	fix.fwd.subs[0].acquired = false
	assert.False(t, fix.fwd.pollOnce())
	assert.Equal(t, 0, fix.imu.sampleCount())
}

func TestForwarderRejectedPushIsNotForwarded(t *testing.T) {
	fix, step := newForwarderFixture(t, FeatureFlags{IMU: true, Pose: true})
	require.NoError(t, fix.imu.Close())
	require.NoError(t, fix.pose.Close())

	assert.False(t, fix.fwd.pollOnce(), "no outlet accepted the sample")
	assert.Equal(t, 0, fix.imu.sampleCount())
	assert.Equal(t, 0, fix.pose.sampleCount())

	step(1)
	assert.False(t, fix.fwd.pollOnce())
}

func TestForwarderPartialPushCountsAsForwarded(t *testing.T) {
	fix, _ := newForwarderFixture(t, FeatureFlags{IMU: true, Pose: true})
	require.NoError(t, fix.imu.Close())

	assert.True(t, fix.fwd.pollOnce(), "pose outlet still accepted the sample")
	assert.Equal(t, 0, fix.imu.sampleCount())
	assert.Equal(t, 1, fix.pose.sampleCount())
}
