// Package sim implements psmove.Client with simulated controllers.
//
// In timed mode (RateHz > 0) every subscribed controller produces samples at
// the configured rate, observed whenever PumpUpdates runs. In manual mode
// (RateHz == 0) sequence numbers only advance through Step, which keeps tests
// deterministic.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/labstreaminglayer/App-PSMove/internal/psmove"
)

// ErrNotConnected is returned by calls that need an open link.
var ErrNotConnected = errors.New("sim: not connected")

// Options configures a simulated service.
type Options struct {
	Controllers    int           // number of controllers present at start
	RateHz         float64       // sample rate per controller; 0 = manual stepping
	SubscribeDelay time.Duration // delay before a subscription completes
}

type controller struct {
	desc       psmove.DeviceDescriptor
	subscribed bool
	flags      psmove.StreamFlags
	since      time.Time
	pending    int
	state      psmove.ControllerState
}

// Service is a simulated controller service. Safe for concurrent use.
type Service struct {
	opts Options

	mu          sync.Mutex
	connected   bool
	controllers []*controller
	connectErr  error
	listErr     error
	results     map[int]psmove.Result
	pumps       int
	now         func() time.Time
}

// New creates a simulated service with opts.Controllers controllers.
func New(opts Options) *Service {
	s := &Service{
		opts:    opts,
		results: make(map[int]psmove.Result),
		now:     time.Now,
	}
	for i := 0; i < opts.Controllers; i++ {
		s.controllers = append(s.controllers, newController(i))
	}
	return s
}

func newController(id int) *controller {
	return &controller{
		desc: psmove.DeviceDescriptor{
			ID:     id,
			Serial: fmt.Sprintf("00:06:f7:c9:a1:%02x", id),
		},
	}
}

// SetConnectError makes the next Connect calls fail with err (nil clears).
func (s *Service) SetConnectError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectErr = err
}

// SetListError makes ListDevices fail with err until cleared with nil.
func (s *Service) SetListError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listErr = err
}

// SetSubscribeResult forces the completion result for a controller.
func (s *Service) SetSubscribeResult(deviceID int, result psmove.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[deviceID] = result
}

// SetDevices replaces the controller set, keeping state of controllers that remain.
func (s *Service) SetDevices(devices []psmove.DeviceDescriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID := make(map[int]*controller, len(s.controllers))
	for _, c := range s.controllers {
		byID[c.desc.ID] = c
	}
	next := make([]*controller, 0, len(devices))
	for _, d := range devices {
		c, ok := byID[d.ID]
		if !ok {
			c = newController(d.ID)
		}
		c.desc = d
		next = append(next, c)
	}
	s.controllers = next
}

// Step queues n new samples for a controller; they become visible on the
// next PumpUpdates. Only meaningful in manual mode.
func (s *Service) Step(deviceID, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c := s.find(deviceID); c != nil {
		c.pending += n
	}
}

// Subscribed returns the ids of controllers with an active data stream.
func (s *Service) Subscribed() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int
	for _, c := range s.controllers {
		if c.subscribed {
			ids = append(ids, c.desc.ID)
		}
	}
	return ids
}

// Connected reports whether the link is open.
func (s *Service) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Pumps returns how many times PumpUpdates has run.
func (s *Service) Pumps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pumps
}

// Connect implements psmove.Client.
func (s *Service) Connect(ctx context.Context, _ string, _ int, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connectErr != nil {
		return s.connectErr
	}
	s.connected = true
	return nil
}

// Disconnect implements psmove.Client.
func (s *Service) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.controllers {
		c.subscribed = false
	}
	s.connected = false
	return nil
}

// ListDevices implements psmove.Client.
func (s *Service) ListDevices(ctx context.Context, _ time.Duration) ([]psmove.DeviceDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil, ErrNotConnected
	}
	if s.listErr != nil {
		return nil, s.listErr
	}
	list := make([]psmove.DeviceDescriptor, len(s.controllers))
	for i, c := range s.controllers {
		list[i] = c.desc
	}
	return list, nil
}

// Subscribe implements psmove.Client. Completion is delivered from a new goroutine.
func (s *Service) Subscribe(deviceID int, flags psmove.StreamFlags, done psmove.CompletionFunc) {
	s.mu.Lock()
	result := psmove.ResultError
	if c := s.find(deviceID); c != nil && s.connected {
		result = psmove.ResultSuccess
		if forced, ok := s.results[deviceID]; ok {
			result = forced
		}
	}
	delay := s.opts.SubscribeDelay
	s.mu.Unlock()

	go func() {
		if delay > 0 {
			time.Sleep(delay)
		}
		s.mu.Lock()
		if c := s.find(deviceID); c != nil && result == psmove.ResultSuccess {
			c.subscribed = true
			c.flags = flags
			c.since = s.now()
			start := c.state.SequenceNumber
			if s.opts.RateHz > 0 {
				start = 0
			}
			c.state = synthesize(c.desc, start, s.opts.RateHz)
		}
		s.mu.Unlock()
		if done != nil {
			done(deviceID, result)
		}
	}()
}

// Unsubscribe implements psmove.Client.
func (s *Service) Unsubscribe(deviceID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.find(deviceID)
	if c == nil {
		return fmt.Errorf("sim: unknown controller %d", deviceID)
	}
	c.subscribed = false
	return nil
}

// PumpUpdates implements psmove.Client.
func (s *Service) PumpUpdates() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pumps++
	now := s.now()
	for _, c := range s.controllers {
		if !c.subscribed {
			continue
		}
		seq := c.state.SequenceNumber
		if s.opts.RateHz > 0 {
			seq = int(now.Sub(c.since).Seconds() * s.opts.RateHz)
		} else {
			seq += c.pending
			c.pending = 0
		}
		if seq != c.state.SequenceNumber {
			c.state = synthesize(c.desc, seq, s.opts.RateHz)
		}
	}
}

// LatestState implements psmove.Client.
func (s *Service) LatestState(deviceID int) (psmove.ControllerState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.find(deviceID)
	if c == nil || !c.subscribed {
		return psmove.ControllerState{}, false
	}
	return mask(c.state, c.flags), true
}

// mask zeroes the blocks the subscription did not ask for, as the service does.
func mask(state psmove.ControllerState, flags psmove.StreamFlags) psmove.ControllerState {
	if !flags.Has(psmove.IncludeCalibratedSensorData) {
		state.CalibratedSensors = psmove.SensorData{}
	}
	if !flags.Has(psmove.IncludeRawSensorData) {
		state.RawSensors = psmove.SensorData{}
	}
	if !flags.Has(psmove.IncludePositionData) {
		state.Pose = psmove.Pose{}
	}
	if !flags.Has(psmove.IncludeRawTrackerData) {
		state.RawTracker = psmove.RawTrackerData{}
	}
	return state
}

func (s *Service) find(deviceID int) *controller {
	for _, c := range s.controllers {
		if c.desc.ID == deviceID {
			return c
		}
	}
	return nil
}

// synthesize produces a deterministic state for sequence seq: the controller
// orbits the camera at 30 cm radius while slowly turning about its y axis.
func synthesize(desc psmove.DeviceDescriptor, seq int, rateHz float64) psmove.ControllerState {
	if rateHz <= 0 {
		rateHz = 100
	}
	t := float64(seq) / rateHz
	phase := t + float64(desc.ID)*math.Pi/2
	const radius, omega = 30.0, 1.0

	sin, cos := math.Sincos(omega * phase)
	halfSin, halfCos := math.Sincos(omega * phase / 2)

	accel := psmove.Vector3{X: float32(-radius * omega * omega * cos / 981), Y: 1, Z: float32(-radius * omega * omega * sin / 981)}
	gyro := psmove.Vector3{X: 0, Y: omega, Z: 0}
	mag := psmove.Vector3{X: float32(cos), Y: 0, Z: float32(-sin)}

	return psmove.ControllerState{
		SequenceNumber: seq,
		Serial:         desc.Serial,
		CalibratedSensors: psmove.SensorData{
			Accelerometer: accel,
			Gyroscope:     gyro,
			Magnetometer:  mag,
			TimeInSeconds: t,
		},
		RawSensors: psmove.SensorData{
			Accelerometer: scale(accel, 4096),
			Gyroscope:     scale(gyro, 1024),
			Magnetometer:  scale(mag, 2048),
			TimeInSeconds: t,
		},
		Pose: psmove.Pose{
			Orientation: psmove.Quaternion{W: float32(halfCos), Y: float32(halfSin)},
			Position:    psmove.Vector3{X: float32(radius * cos), Y: 100, Z: float32(radius*sin) - 150},
		},
		RawTracker: psmove.RawTrackerData{
			RelativePosition: psmove.Vector3{X: float32(radius * cos), Y: 100, Z: float32(radius*sin) + 150},
			Valid:            true,
		},
	}
}

func scale(v psmove.Vector3, k float32) psmove.Vector3 {
	return psmove.Vector3{
		X: float32(math.Round(float64(v.X * k))),
		Y: float32(math.Round(float64(v.Y * k))),
		Z: float32(math.Round(float64(v.Z * k))),
	}
}
