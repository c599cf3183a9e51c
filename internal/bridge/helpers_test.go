package bridge

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/labstreaminglayer/App-PSMove/internal/events"
	"github.com/labstreaminglayer/App-PSMove/internal/outlet"
	"github.com/labstreaminglayer/App-PSMove/internal/psmove/sim"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var errDeclare = errors.New("declare refused")

// fakeProvider records declared outlets and pushed samples in memory.
type fakeProvider struct {
	mu       sync.Mutex
	failAt   int // 1-based declare call that fails, 0 = never
	declares int
	open     map[string]*fakeOutlet
	all      []*fakeOutlet
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{open: make(map[string]*fakeOutlet)}
}

func (p *fakeProvider) Declare(info outlet.StreamInfo) (outlet.Outlet, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.declares++
	if p.failAt == p.declares {
		return nil, errDeclare
	}
	if err := info.Validate(); err != nil {
		return nil, err
	}
	if _, ok := p.open[info.SourceID]; ok {
		return nil, fmt.Errorf("%w: %s", outlet.ErrSourceIDInUse, info.SourceID)
	}
	o := &fakeOutlet{provider: p, info: info}
	p.open[info.SourceID] = o
	p.all = append(p.all, o)
	return o, nil
}

func (p *fakeProvider) openCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.open)
}

func (p *fakeProvider) declared() []*fakeOutlet {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.all)
}

func (p *fakeProvider) outlet(sourceID string) *fakeOutlet {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, o := range p.all {
		if o.info.SourceID == sourceID {
			return o
		}
	}
	return nil
}

type fakeOutlet struct {
	provider *fakeProvider
	info     outlet.StreamInfo

	mu      sync.Mutex
	samples [][]float32
	closed  bool
}

func (o *fakeOutlet) Info() outlet.StreamInfo { return o.info }

func (o *fakeOutlet) PushSample(values []float32) error {
	if len(values) != o.info.ChannelCount {
		return outlet.ErrChannelCount
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return outlet.ErrClosed
	}
	o.samples = append(o.samples, slices.Clone(values))
	return nil
}

func (o *fakeOutlet) Close() error {
	o.mu.Lock()
	already := o.closed
	o.closed = true
	o.mu.Unlock()
	if !already {
		o.provider.mu.Lock()
		delete(o.provider.open, o.info.SourceID)
		o.provider.mu.Unlock()
	}
	return nil
}

func (o *fakeOutlet) sampleCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.samples)
}

func (o *fakeOutlet) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// recorder is a synchronous event publisher. hook, when set, runs on the
// publishing goroutine before the event is stored.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
	hook   func(events.Event)
}

func (r *recorder) Publish(ev events.Event) {
	r.mu.Lock()
	hook := r.hook
	r.mu.Unlock()
	if hook != nil {
		hook(ev)
	}
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) setHook(hook func(events.Event)) {
	r.mu.Lock()
	r.hook = hook
	r.mu.Unlock()
}

func (r *recorder) snapshot() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// waitFor blocks until an event matching match has been recorded.
func waitFor[T events.Event](t *testing.T, r *recorder, match func(T) bool) T {
	t.Helper()
	var found T
	require.Eventually(t, func() bool {
		for _, ev := range r.snapshot() {
			if e, ok := ev.(T); ok && match(e) {
				found = e
				return true
			}
		}
		return false
	}, 3*time.Second, 2*time.Millisecond)
	return found
}

func countOf[T events.Event](r *recorder, match func(T) bool) int {
	n := 0
	for _, ev := range r.snapshot() {
		if e, ok := ev.(T); ok && match(e) {
			n++
		}
	}
	return n
}

func anyEvent[T events.Event](T) bool { return true }

type harness struct {
	svc      *Service
	sim      *sim.Service
	provider *fakeProvider
	events   *recorder
}

func newHarness(t *testing.T, simOpts sim.Options, mutate func(*Options)) *harness {
	t.Helper()
	h := &harness{
		sim:      sim.New(simOpts),
		provider: newFakeProvider(),
		events:   &recorder{},
	}
	opts := Options{
		Client:         h.sim,
		Outlets:        h.provider,
		Events:         h.events,
		Logger:         quietLogger(),
		ScanInterval:   2 * time.Millisecond,
		IdleYield:      200 * time.Microsecond,
		AcquireTimeout: time.Second,
	}
	if mutate != nil {
		mutate(&opts)
	}
	svc, err := New(opts)
	require.NoError(t, err)
	h.svc = svc
	t.Cleanup(svc.Stop)
	return h
}

// startAndScan starts the worker and waits for the first device list.
func (h *harness) startAndScan(t *testing.T) {
	t.Helper()
	require.NoError(t, h.svc.Start(0))
	waitFor(t, h.events, func(e events.ConnectionResultEvent) bool { return e.Connected })
	waitFor(t, h.events, anyEvent[events.DeviceListChangedEvent])
}

func (h *harness) waitPhase(t *testing.T, phase Phase) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.svc.Status().Phase == phase.String()
	}, 3*time.Second, time.Millisecond, "phase %s not reached", phase)
}
