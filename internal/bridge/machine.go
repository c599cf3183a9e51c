package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/labstreaminglayer/App-PSMove/internal/events"
	"github.com/labstreaminglayer/App-PSMove/internal/metrics"
	"github.com/labstreaminglayer/App-PSMove/internal/outlet"
	"github.com/labstreaminglayer/App-PSMove/internal/psmove"
)

// Phase is a state of the worker.
type Phase int

// Phases in lifecycle order. PhaseIdle is reported while no worker runs.
const (
	PhaseIdle Phase = iota
	PhaseStartLink
	PhaseScanForDevices
	PhaseAcquireControllers
	PhaseWaitForControllers
	PhaseCreateOutlets
	PhaseTransferData
	PhaseShutdown
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseStartLink:
		return "start_link"
	case PhaseScanForDevices:
		return "scan_for_devices"
	case PhaseAcquireControllers:
		return "acquire_controllers"
	case PhaseWaitForControllers:
		return "wait_for_controllers"
	case PhaseCreateOutlets:
		return "create_outlets"
	case PhaseTransferData:
		return "transfer_data"
	case PhaseShutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// worker owns everything the state machine touches. Only its goroutine uses it.
type worker struct {
	svc      *Service
	opts     Options
	client   psmove.Client
	logger   *slog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	timer    *time.Timer
	registry *Registry

	phase     Phase
	connected bool
	control   controlState

	config          RunConfig
	subs            []*subscription
	orphans         []*subscription
	acquireDeadline time.Time
	session         *session
	forwarder       *forwarder
}

func newWorker(s *Service, sampleRate float64) *worker {
	ctx, cancel := context.WithCancel(context.Background())
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	return &worker{
		svc:      s,
		opts:     s.opts,
		client:   s.opts.Client,
		logger:   s.logger,
		ctx:      ctx,
		cancel:   cancel,
		timer:    timer,
		registry: NewRegistry(s.opts.Client, s.opts.Timeout, s.opts.Events, s.opts.RegistryLogger),
		control:  controlState{sampleRate: sampleRate},
	}
}

// run drives the state machine until Shutdown completes. Abort is checked
// once per iteration before any other transition.
func (w *worker) run() {
	defer w.cancel()
	w.setPhase(PhaseStartLink)
	for {
		if w.ctx.Err() != nil && w.phase != PhaseShutdown {
			w.logger.Info("Abort requested", "phase", w.phase.String())
			w.setPhase(PhaseShutdown)
		}
		if w.phase != PhaseShutdown {
			w.drainToggles()
		}

		switch w.phase {
		case PhaseStartLink:
			w.startLink()
		case PhaseScanForDevices:
			w.scanForDevices()
		case PhaseAcquireControllers:
			w.acquireControllers()
		case PhaseWaitForControllers:
			w.waitForControllers()
		case PhaseCreateOutlets:
			w.createOutlets()
		case PhaseTransferData:
			w.transferData()
		case PhaseShutdown:
			w.shutdown()
			return
		}
	}
}

func (w *worker) startLink() {
	err := w.client.Connect(w.ctx, w.opts.Address, w.opts.Port, w.opts.Timeout)
	if err != nil && w.ctx.Err() != nil {
		w.setPhase(PhaseShutdown)
		return
	}
	if err != nil {
		linkErr := NewError(ErrCodeLinkFailed,
			fmt.Sprintf("connect to controller service at %s:%d", w.opts.Address, w.opts.Port), err)
		w.logger.Error("Unable to link to controller service", "error", linkErr)
		w.publish(events.ConnectionResultEvent{Connected: false, Error: linkErr.Error(), Timestamp: now()})
		w.setPhase(PhaseShutdown)
		return
	}

	w.connected = true
	w.logger.Info("Linked to controller service", "address", w.opts.Address, "port", w.opts.Port)
	w.svc.updateStatus(func(st *Status) { st.Connected = true })
	w.publish(events.ConnectionResultEvent{Connected: true, Timestamp: now()})
	w.setPhase(PhaseScanForDevices)
}

func (w *worker) scanForDevices() {
	if w.control.streaming {
		w.setPhase(PhaseAcquireControllers)
		return
	}

	w.reapOrphans()
	if changed, _ := w.registry.Refresh(w.ctx); changed {
		w.svc.publishDevices(w.registry.Devices())
	}
	w.wait(w.opts.ScanInterval)
}

func (w *worker) acquireControllers() {
	if !w.control.streaming {
		w.setPhase(PhaseScanForDevices)
		return
	}
	w.config = w.control.snapshot()

	switch {
	case len(w.config.Devices) == 0:
		w.abandon(NewError(ErrCodeNoDevices, "no controllers to stream", nil))
		return
	case !w.config.Flags.Any():
		w.abandon(NewError(ErrCodeNoChannels, "no sensor category selected", nil))
		return
	}

	flags := w.config.Flags.StreamFlags()
	w.logger.Info("Subscribing controllers", "devices", w.config.Devices, "flags", uint32(flags))
	w.subs = acquire(w.client, w.config.Devices, flags)
	w.acquireDeadline = time.Now().Add(w.opts.AcquireTimeout)
	w.setPhase(PhaseWaitForControllers)
}

func (w *worker) waitForControllers() {
	if !w.control.streaming {
		w.logger.Info("Stop requested while waiting for controllers")
		w.releaseSubscriptions()
		w.publish(events.StreamingResultEvent{Active: false, Timestamp: now()})
		w.setPhase(PhaseScanForDevices)
		return
	}

	w.client.PumpUpdates()
	collect(w.subs, w.logger)

	switch evaluate(w.opts.Policy, w.subs) {
	case acquireReady:
		w.setPhase(PhaseCreateOutlets)
	case acquireFailed:
		w.abandon(NewError(ErrCodeAcquireFailed, "no controller accepted the subscription", nil))
	default:
		if time.Now().After(w.acquireDeadline) {
			w.abandon(NewError(ErrCodeAcquireTimeout,
				fmt.Sprintf("no subscription confirmed within %s", w.opts.AcquireTimeout), nil))
			return
		}
		w.wait(w.opts.IdleYield)
	}
}

func (w *worker) createOutlets() {
	imu, pose := BuildLayouts(w.config.Flags)

	devices := make([]psmove.DeviceDescriptor, len(w.config.Devices))
	for i, id := range w.config.Devices {
		devices[i] = w.registry.Lookup(id)
	}

	outs, err := provision(w.opts.Outlets, devices, imu, pose, w.config.SampleRate, w.logger)
	if err != nil {
		w.publish(events.StreamingResultEvent{Active: false, Error: err.Error(), Timestamp: now()})
		w.setPhase(PhaseShutdown)
		return
	}

	w.session = &session{
		config:    w.config,
		imu:       imu,
		pose:      pose,
		outlets:   outs,
		startTime: outlet.LocalClock(),
		startedAt: time.Now(),
	}
	w.forwarder = &forwarder{
		client:  w.client,
		flags:   w.config.Flags,
		subs:    w.subs,
		outlets: outs,
		events:  w.opts.Events,
		logger:  w.logger,
	}
	metrics.SetOutletsActive(w.session.outletCount())
	w.logger.Info("Outlets created",
		"devices", w.config.Devices,
		"imu_channels", imu.Len(),
		"pose_channels", pose.Len(),
		"outlets", w.session.outletCount())
	w.updateSessionStatus()
	w.publish(events.StreamingResultEvent{Active: true, Timestamp: now()})
	w.setPhase(PhaseTransferData)
}

func (w *worker) transferData() {
	if !w.control.streaming {
		w.logger.Info("Instructed to stop streaming")
		w.teardown()
		w.publish(events.StreamingResultEvent{Active: false, Timestamp: now()})
		w.setPhase(PhaseScanForDevices)
		return
	}

	if hasPending(w.subs) {
		before := countAcquired(w.subs)
		collect(w.subs, w.logger)
		if countAcquired(w.subs) != before {
			w.updateSessionStatus()
		}
	}

	w.client.PumpUpdates()
	if !w.forwarder.pollOnce() {
		w.wait(w.opts.IdleYield)
	}
}

func (w *worker) shutdown() {
	hadSession := w.session != nil
	w.teardown()
	if hadSession {
		w.publish(events.StreamingResultEvent{Active: false, Timestamp: now()})
	}

	if w.connected {
		if err := w.client.Disconnect(); err != nil {
			w.logger.Warn("Disconnect failed", "error", err)
		}
		w.connected = false
		w.orphans = nil
		w.svc.updateStatus(func(st *Status) { st.Connected = false })
		w.publish(events.ConnectionResultEvent{Connected: false, Timestamp: now()})
	}
	w.timer.Stop()
	w.logger.Info("Bridge stopped")
}

// teardown destroys the session's outlets and subscriptions.
func (w *worker) teardown() {
	if w.session != nil {
		closed := closeOutlets(w.session.outlets, w.logger)
		w.logger.Debug("Outlets closed", "count", closed)
		w.session = nil
		w.forwarder = nil
		metrics.SetOutletsActive(0)
	}
	w.releaseSubscriptions()
	w.svc.updateStatus(func(st *Status) {
		st.Streaming = false
		st.Session = nil
	})
}

// releaseSubscriptions unsubscribes every confirmed controller. Requests still
// in flight become orphans and are unsubscribed once they complete.
func (w *worker) releaseSubscriptions() {
	for _, sub := range w.subs {
		switch {
		case sub.acquired:
			if err := w.client.Unsubscribe(sub.deviceID); err != nil {
				w.logger.Debug("Unsubscribe failed", "device", sub.deviceID, "error", err)
			}
		case sub.pending():
			w.orphans = append(w.orphans, sub)
		}
	}
	w.subs = nil
}

// reapOrphans unsubscribes late completions of abandoned requests.
func (w *worker) reapOrphans() {
	if len(w.orphans) == 0 {
		return
	}
	collect(w.orphans, w.logger)
	remaining := w.orphans[:0]
	for _, sub := range w.orphans {
		switch {
		case sub.acquired:
			if err := w.client.Unsubscribe(sub.deviceID); err != nil {
				w.logger.Debug("Unsubscribe failed", "device", sub.deviceID, "error", err)
			}
		case sub.pending():
			remaining = append(remaining, sub)
		}
	}
	w.orphans = remaining
}

// abandon gives up on the requested session and goes back to scanning.
func (w *worker) abandon(err *Error) {
	w.logger.Warn("Streaming not started", "error", err)
	w.releaseSubscriptions()
	w.control.streaming = false
	w.control.devices = nil
	w.publish(events.StreamingResultEvent{Active: false, Error: err.Error(), Timestamp: now()})
	w.setPhase(PhaseScanForDevices)
}

// drainToggles applies queued requests in arrival order, but at most one
// streaming transition per iteration: once a request flips streaming away
// from what the current phase assumes, the rest stay queued until the phase
// handler has acted on it. A stop followed by a start therefore tears the
// session down and starts a new one with the second request.
func (w *worker) drainToggles() {
	for w.settled() {
		select {
		case req := <-w.svc.toggles:
			w.applyToggle(req)
		default:
			return
		}
	}
}

// settled reports whether the current phase agrees with control.streaming.
// Phases from acquisition to transfer assume a session is wanted; the others
// assume it is not.
func (w *worker) settled() bool {
	switch w.phase {
	case PhaseAcquireControllers, PhaseWaitForControllers, PhaseCreateOutlets, PhaseTransferData:
		return w.control.streaming
	default:
		return !w.control.streaming
	}
}

func (w *worker) applyToggle(req StreamRequest) {
	w.control.applyToggle(req, w.registry.IDs())
	w.logger.Debug("Toggle applied", "streaming", w.control.streaming, "devices", w.control.devices)
}

// wait blocks for at most d. A toggle request or abort ends the wait early.
func (w *worker) wait(d time.Duration) {
	toggles := w.svc.toggles
	if !w.settled() {
		toggles = nil
	}
	w.timer.Reset(d)
	defer w.timer.Stop()
	select {
	case <-w.ctx.Done():
	case req := <-toggles:
		w.applyToggle(req)
	case <-w.timer.C:
	}
}

func (w *worker) setPhase(p Phase) {
	prev := w.phase
	w.phase = p
	metrics.SetPhase(int(p))
	w.svc.updateStatus(func(st *Status) { st.Phase = p.String() })
	w.logger.Debug("Phase changed", "from", prev.String(), "to", p.String())
	w.publish(events.PhaseChangedEvent{Phase: p.String(), Previous: prev.String(), Timestamp: now()})
}

func (w *worker) updateSessionStatus() {
	if w.session == nil {
		return
	}
	sess := &SessionStatus{
		Config:    w.session.config,
		Acquired:  acquiredIDs(w.subs),
		Outlets:   w.session.sourceIDs(),
		StartTime: w.session.startTime,
		StartedAt: w.session.startedAt,
	}
	w.svc.updateStatus(func(st *Status) {
		st.Streaming = true
		st.Session = sess
	})
}

func (w *worker) publish(ev events.Event) {
	if w.opts.Events != nil {
		w.opts.Events.Publish(ev)
	}
}

func hasPending(subs []*subscription) bool {
	for _, sub := range subs {
		if sub.pending() {
			return true
		}
	}
	return false
}

func countAcquired(subs []*subscription) int {
	n := 0
	for _, sub := range subs {
		if sub.acquired {
			n++
		}
	}
	return n
}

func now() string {
	return time.Now().Format(time.RFC3339)
}
