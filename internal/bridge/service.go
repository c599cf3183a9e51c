// Package bridge forwards PS Move controller samples to telemetry outlets.
//
// A single worker goroutine drives the phase state machine: link to the
// controller service, scan for controllers, subscribe the requested ones,
// declare one outlet per controller and sensor category, then forward every
// new sample until asked to stop. Callers never touch worker state; they
// submit toggle requests through a bounded queue and observe results on the
// event bus.
package bridge

import (
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/labstreaminglayer/App-PSMove/internal/outlet"
	"github.com/labstreaminglayer/App-PSMove/internal/psmove"
)

// Scheduling defaults.
const (
	DefaultScanInterval   = 100 * time.Millisecond
	DefaultIdleYield      = 500 * time.Microsecond
	DefaultAcquireTimeout = 5 * time.Second
	DefaultQueueSize      = 16
)

// Scan interval bounds accepted from configuration.
const (
	MinScanInterval = 100 * time.Millisecond
	MaxScanInterval = 250 * time.Millisecond
)

// ClampScanInterval keeps a configured scan interval within the supported range.
func ClampScanInterval(d time.Duration) time.Duration {
	return min(max(d, MinScanInterval), MaxScanInterval)
}

// Options configures a Service.
type Options struct {
	Client  psmove.Client
	Outlets outlet.Provider
	Events  EventPublisher
	Logger  *slog.Logger

	// RegistryLogger receives controller scan logs; defaults to Logger.
	RegistryLogger *slog.Logger

	Address string
	Port    int
	Timeout time.Duration

	ScanInterval   time.Duration
	IdleYield      time.Duration
	AcquireTimeout time.Duration
	Policy         AcquirePolicy
	QueueSize      int
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.RegistryLogger == nil {
		o.RegistryLogger = o.Logger
	}
	if o.Address == "" {
		o.Address = psmove.DefaultAddress
	}
	if o.Port == 0 {
		o.Port = psmove.DefaultPort
	}
	if o.Timeout <= 0 {
		o.Timeout = psmove.DefaultTimeout
	}
	if o.ScanInterval <= 0 {
		o.ScanInterval = DefaultScanInterval
	}
	if o.IdleYield <= 0 {
		o.IdleYield = DefaultIdleYield
	}
	if o.AcquireTimeout <= 0 {
		o.AcquireTimeout = DefaultAcquireTimeout
	}
	if o.Policy == "" {
		o.Policy = PolicyAny
	}
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	return o
}

// Status is the worker's last published view of itself.
type Status struct {
	Running   bool           `json:"running" doc:"Whether the worker goroutine is alive"`
	Phase     string         `json:"phase" example:"transfer_data" doc:"Current phase"`
	Connected bool           `json:"connected" doc:"Whether the controller service link is up"`
	Streaming bool           `json:"streaming" doc:"Whether outlets are declared"`
	Devices   []string       `json:"devices" doc:"Controllers from the last scan as id:serial"`
	Session   *SessionStatus `json:"session,omitempty" doc:"Active session, if any"`
}

// SessionStatus describes the active session.
type SessionStatus struct {
	Config    RunConfig `json:"config"`
	Acquired  []int     `json:"acquired" doc:"Controllers whose subscription was confirmed"`
	Outlets   []string  `json:"outlets" doc:"Source ids of declared outlets"`
	StartTime float64   `json:"start_time" doc:"Outlet clock seconds when the session started"`
	StartedAt time.Time `json:"started_at"`
}

// Service runs the bridge worker.
type Service struct {
	opts    Options
	logger  *slog.Logger
	toggles chan StreamRequest

	mu      sync.Mutex
	running bool
	cancel  func()
	done    chan struct{}
	status  Status
	devices []psmove.DeviceDescriptor
}

// New creates a stopped service.
func New(opts Options) (*Service, error) {
	if opts.Client == nil {
		return nil, errors.New("bridge: controller client is required")
	}
	if opts.Outlets == nil {
		return nil, errors.New("bridge: outlet provider is required")
	}
	opts = opts.withDefaults()
	if _, err := ParseAcquirePolicy(string(opts.Policy)); err != nil {
		return nil, err
	}

	done := make(chan struct{})
	close(done)
	return &Service{
		opts:    opts,
		logger:  opts.Logger,
		toggles: make(chan StreamRequest, opts.QueueSize),
		done:    done,
		status:  Status{Phase: PhaseIdle.String()},
	}, nil
}

// Start launches the worker with the given nominal sample rate (0 declares
// irregular-rate outlets). If the worker is already running, Start signals it
// to shut down instead and returns immediately; callers use this as a
// reconnect button.
func (s *Service) Start(sampleRate float64) error {
	if sampleRate < 0 {
		return errors.New("bridge: sample rate must not be negative")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.logger.Info("Bridge already running, disconnecting")
		s.cancel()
		return nil
	}

	w := newWorker(s, sampleRate)
	done := make(chan struct{})
	s.running = true
	s.cancel = w.cancel
	s.done = done
	s.status = Status{Running: true, Phase: PhaseIdle.String()}
	s.devices = nil

	go func() {
		w.run()
		s.finish()
		close(done)
	}()
	return nil
}

// Stop aborts the worker and waits until it has released every outlet and
// subscription and disconnected.
func (s *Service) Stop() {
	s.mu.Lock()
	if s.running {
		s.cancel()
	}
	done := s.done
	s.mu.Unlock()
	<-done
}

// Done is closed when the current worker exits. It is already closed when no
// worker is running.
func (s *Service) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// ToggleStream asks the worker to start streaming with req when inactive, or
// to stop when active. The request is queued; it never blocks.
func (s *Service) ToggleStream(req StreamRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return ErrNotRunning
	}
	req.Devices = slices.Clone(req.Devices)
	select {
	case s.toggles <- req:
		return nil
	default:
		return ErrControlQueueFull
	}
}

// Status returns a copy of the last published status.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	st.Devices = slices.Clone(st.Devices)
	if st.Session != nil {
		sess := *st.Session
		sess.Config.Devices = slices.Clone(sess.Config.Devices)
		sess.Acquired = slices.Clone(sess.Acquired)
		sess.Outlets = slices.Clone(sess.Outlets)
		st.Session = &sess
	}
	return st
}

// Devices returns the controllers from the worker's last scan.
func (s *Service) Devices() []psmove.DeviceDescriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.devices)
}

func (s *Service) updateStatus(update func(*Status)) {
	s.mu.Lock()
	update(&s.status)
	s.mu.Unlock()
}

func (s *Service) publishDevices(devices []psmove.DeviceDescriptor) {
	s.mu.Lock()
	s.devices = devices
	s.status.Devices = DisplayStrings(devices)
	s.mu.Unlock()
}

// finish marks the worker stopped and drops requests it never saw.
func (s *Service) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.status.Running = false
	for {
		select {
		case <-s.toggles:
			s.logger.Debug("Dropping toggle request queued during shutdown")
		default:
			return
		}
	}
}
