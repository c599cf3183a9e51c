package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labstreaminglayer/App-PSMove/internal/events"
	"github.com/labstreaminglayer/App-PSMove/internal/metrics"
	"github.com/labstreaminglayer/App-PSMove/internal/psmove"
	"github.com/labstreaminglayer/App-PSMove/internal/psmove/sim"
)

func connectedSim(t *testing.T, controllers int) *sim.Service {
	t.Helper()
	s := sim.New(sim.Options{Controllers: controllers})
	require.NoError(t, s.Connect(context.Background(), psmove.DefaultAddress, psmove.DefaultPort, time.Second))
	return s
}

func TestRegistryRefresh(t *testing.T) {
	s := connectedSim(t, 2)
	rec := &recorder{}
	reg := NewRegistry(s, time.Second, rec, quietLogger())
	ctx := context.Background()

	changed, err := reg.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, changed, "first non-empty list is a change")
	assert.Equal(t, []int{0, 1}, reg.IDs())

	changed, err = reg.Refresh(ctx)
	require.NoError(t, err)
	assert.False(t, changed, "identical list must not notify")
	assert.Equal(t, 1, countOf(rec, anyEvent[events.DeviceListChangedEvent]))

	ev := rec.snapshot()[0].(events.DeviceListChangedEvent)
	assert.Equal(t, []string{"0:00:06:f7:c9:a1:00", "1:00:06:f7:c9:a1:01"}, ev.Devices)
}

func TestRegistryDetectsReorderAndSerialChange(t *testing.T) {
	s := connectedSim(t, 0)
	a := psmove.DeviceDescriptor{ID: 0, Serial: "aa"}
	b := psmove.DeviceDescriptor{ID: 1, Serial: "bb"}
	reg := NewRegistry(s, time.Second, nil, quietLogger())
	ctx := context.Background()

	s.SetDevices([]psmove.DeviceDescriptor{a, b})
	changed, _ := reg.Refresh(ctx)
	assert.True(t, changed)

	s.SetDevices([]psmove.DeviceDescriptor{b, a})
	changed, _ = reg.Refresh(ctx)
	assert.True(t, changed, "reordering is a change")
	assert.Equal(t, []int{1, 0}, reg.IDs())

	s.SetDevices([]psmove.DeviceDescriptor{b, {ID: 0, Serial: "cc"}})
	changed, _ = reg.Refresh(ctx)
	assert.True(t, changed, "a new serial under the same id is a change")

	s.SetDevices([]psmove.DeviceDescriptor{b})
	changed, _ = reg.Refresh(ctx)
	assert.True(t, changed, "a removed controller is a change")
	assert.Equal(t, "", reg.Lookup(0).Serial)
	assert.Equal(t, "bb", reg.Lookup(1).Serial)
}

func TestRegistryEmptyListIsNotAChange(t *testing.T) {
	s := connectedSim(t, 0)
	rec := &recorder{}
	reg := NewRegistry(s, time.Second, rec, quietLogger())

	changed, err := reg.Refresh(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Empty(t, rec.snapshot())
}

func TestRegistryKeepsListOnError(t *testing.T) {
	s := connectedSim(t, 1)
	reg := NewRegistry(s, time.Second, nil, quietLogger())
	_, err := reg.Refresh(context.Background())
	require.NoError(t, err)

	boom := errors.New("service busy")
	s.SetListError(boom)
	changed, err := reg.Refresh(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.False(t, changed)
	assert.Equal(t, []int{0}, reg.IDs())
}

func TestRegistryDropsMetricsOfRemovedDevices(t *testing.T) {
	s := connectedSim(t, 0)
	keep := psmove.DeviceDescriptor{ID: 96, Serial: "keep"}
	gone := psmove.DeviceDescriptor{ID: 97, Serial: "gone"}
	reg := NewRegistry(s, time.Second, nil, quietLogger())
	ctx := context.Background()

	s.SetDevices([]psmove.DeviceDescriptor{keep, gone})
	_, err := reg.Refresh(ctx)
	require.NoError(t, err)
	metrics.RecordPush(keep.ID, "IMU")
	metrics.RecordPush(gone.ID, "IMU")

	s.SetDevices([]psmove.DeviceDescriptor{keep})
	_, err = reg.Refresh(ctx)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), metrics.PushCount(keep.ID, "IMU"))
	assert.Equal(t, uint64(0), metrics.PushCount(gone.ID, "IMU"))
}
