package bridge

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/labstreaminglayer/App-PSMove/internal/outlet"
	"github.com/labstreaminglayer/App-PSMove/internal/psmove"
)

// deviceOutlets are the outlets of one streamed device. A nil outlet means the
// category is not streamed.
type deviceOutlets struct {
	device psmove.DeviceDescriptor
	imu    outlet.Outlet
	pose   outlet.Outlet
}

// session is everything created between CreateOutlets and teardown.
type session struct {
	config    RunConfig
	imu       ChannelLayout
	pose      ChannelLayout
	outlets   map[int]*deviceOutlets
	startTime float64
	startedAt time.Time
}

func (s *session) sourceIDs() []string {
	var ids []string
	for _, id := range s.config.Devices {
		outs, ok := s.outlets[id]
		if !ok {
			continue
		}
		if outs.imu != nil {
			ids = append(ids, outs.imu.Info().SourceID)
		}
		if outs.pose != nil {
			ids = append(ids, outs.pose.Info().SourceID)
		}
	}
	return ids
}

func (s *session) outletCount() int {
	n := 0
	for _, outs := range s.outlets {
		if outs.imu != nil {
			n++
		}
		if outs.pose != nil {
			n++
		}
	}
	return n
}

// provision declares one outlet per device per non-empty layout. On any
// failure every outlet already declared is closed and nothing is returned.
func provision(provider outlet.Provider, devices []psmove.DeviceDescriptor, imu, pose ChannelLayout, sampleRate float64, logger *slog.Logger) (map[int]*deviceOutlets, error) {
	created := make(map[int]*deviceOutlets, len(devices))

	declare := func(device psmove.DeviceDescriptor, layout ChannelLayout) (outlet.Outlet, error) {
		if layout.Empty() {
			return nil, nil
		}
		o, err := provider.Declare(StreamInfo(device, layout, sampleRate))
		if err != nil {
			return nil, NewError(ErrCodeProvisionFailed,
				fmt.Sprintf("declare %s outlet for controller %d", layout.Category, device.ID), err)
		}
		return o, nil
	}

	for _, device := range devices {
		outs := &deviceOutlets{device: device}
		created[device.ID] = outs

		var err error
		if outs.imu, err = declare(device, imu); err == nil {
			outs.pose, err = declare(device, pose)
		}
		if err != nil {
			closed := closeOutlets(created, logger)
			logger.Error("Provisioning failed, closed partial outlets", "error", err, "closed", closed)
			return nil, err
		}
	}
	return created, nil
}

// closeOutlets closes every outlet and empties the map. It returns how many
// outlets were closed.
func closeOutlets(outlets map[int]*deviceOutlets, logger *slog.Logger) int {
	closed := 0
	for id, outs := range outlets {
		for _, o := range []outlet.Outlet{outs.imu, outs.pose} {
			if o == nil {
				continue
			}
			if err := o.Close(); err != nil {
				logger.Warn("Failed to close outlet", "source_id", o.Info().SourceID, "error", err)
			}
			closed++
		}
		delete(outlets, id)
	}
	return closed
}
