package nats

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/labstreaminglayer/App-PSMove/internal/bridge"
	"github.com/labstreaminglayer/App-PSMove/internal/events"
	"github.com/labstreaminglayer/App-PSMove/internal/psmove"
	"github.com/labstreaminglayer/App-PSMove/internal/version"
)

// Controller is the part of bridge.Service the control subjects drive.
type Controller interface {
	Start(sampleRate float64) error
	Stop()
	ToggleStream(req bridge.StreamRequest) error
	Status() bridge.Status
}

// Bridge answers control requests on psmove.control.* and republishes bus
// notifications on psmove.events.*.
type Bridge struct {
	url        string
	controller Controller
	eventBus   *events.Bus
	sampleRate float64
	conn       *nats.Conn
	subs       []*nats.Subscription
	unsubs     []func()
	logger     *slog.Logger
	mu         sync.Mutex
}

// NewBridge creates a control bridge. sampleRate is used by link requests
// that carry none.
func NewBridge(url string, controller Controller, eventBus *events.Bus, sampleRate float64, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}

	return &Bridge{
		url:        url,
		controller: controller,
		eventBus:   eventBus,
		sampleRate: sampleRate,
		logger:     logger.With("component", "nats-bridge"),
	}
}

// Start connects to NATS, serves the control subjects and begins forwarding events.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	conn, err := nats.Connect(b.url,
		nats.Name(version.ClientName("control")),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				b.logger.Warn("NATS bridge disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			b.logger.Info("NATS bridge reconnected")
		}),
	)
	if err != nil {
		return err
	}

	b.conn = conn
	b.logger.Info("NATS bridge connected", "url", b.url)

	handlers := map[string]nats.MsgHandler{
		SubjectControlLink:   b.handleLink,
		SubjectControlStop:   b.handleStop,
		SubjectControlToggle: b.handleToggle,
		SubjectControlStatus: b.handleStatus,
	}
	for subject, handler := range handlers {
		sub, err := conn.Subscribe(subject, handler)
		if err != nil {
			b.cleanup()
			return err
		}
		b.subs = append(b.subs, sub)
	}

	if b.eventBus != nil {
		b.unsubs = []func(){
			b.eventBus.Subscribe(func(e events.ConnectionResultEvent) { b.forward(KindConnection, e.Timestamp, e) }),
			b.eventBus.Subscribe(func(e events.DeviceListChangedEvent) { b.forward(KindDevices, e.Timestamp, e) }),
			b.eventBus.Subscribe(func(e events.StreamingResultEvent) { b.forward(KindStreaming, e.Timestamp, e) }),
			b.eventBus.Subscribe(func(e events.PhaseChangedEvent) { b.forward(KindPhase, e.Timestamp, e) }),
			b.eventBus.Subscribe(func(e events.DataGapEvent) { b.forward(KindGap, e.Timestamp, e) }),
		}
	}

	b.logger.Info("NATS bridge serving control subjects", "prefix", SubjectControlPrefix)
	return nil
}

// handleLink starts the worker, or disconnects it when it is already running.
func (b *Bridge) handleLink(msg *nats.Msg) {
	cmd, err := UnmarshalLink(msg.Data)
	if err != nil {
		b.respondErr(msg, err)
		return
	}
	rate := b.sampleRate
	if cmd.SampleRate != nil {
		rate = *cmd.SampleRate
	}

	wasRunning := b.controller.Status().Running
	if err := b.controller.Start(rate); err != nil {
		b.respondErr(msg, err)
		return
	}
	action := "started"
	if wasRunning {
		action = "stopping"
	}
	b.logger.Info("Link requested over NATS", "action", action, "sample_rate", rate)
	b.respond(msg, Reply{OK: true, Action: action, Running: !wasRunning})
}

// handleStop stops the worker and replies after shutdown completed.
func (b *Bridge) handleStop(msg *nats.Msg) {
	b.controller.Stop()
	b.respond(msg, Reply{OK: true, Action: "stopped"})
}

// handleToggle queues a streaming toggle.
func (b *Bridge) handleToggle(msg *nats.Msg) {
	cmd, err := UnmarshalToggle(msg.Data)
	if err != nil {
		b.respondErr(msg, err)
		return
	}
	ids, err := psmove.ParseDeviceRefs(cmd.Devices)
	if err != nil {
		b.respondErr(msg, err)
		return
	}
	req := bridge.StreamRequest{
		Devices: ids,
		FeatureFlags: bridge.FeatureFlags{
			IMU:     cmd.IMU,
			IMURaw:  cmd.IMURaw,
			Pose:    cmd.Pose,
			PoseRaw: cmd.PoseRaw,
		},
	}
	if err := b.controller.ToggleStream(req); err != nil {
		b.respondErr(msg, err)
		return
	}
	b.respond(msg, Reply{OK: true, Action: "queued", Running: true})
}

// handleStatus replies with the current bridge status.
func (b *Bridge) handleStatus(msg *nats.Msg) {
	status := b.controller.Status()
	data, err := json.Marshal(status)
	if err != nil {
		b.respondErr(msg, err)
		return
	}
	b.respond(msg, Reply{OK: true, Running: status.Running, Status: data})
}

func (b *Bridge) respondErr(msg *nats.Msg, err error) {
	b.logger.Debug("Control request failed", "subject", msg.Subject, "error", err)
	running := false
	if !errors.Is(err, bridge.ErrNotRunning) {
		running = b.controller.Status().Running
	}
	b.respond(msg, Reply{OK: false, Error: err.Error(), Running: running})
}

func (b *Bridge) respond(msg *nats.Msg, reply Reply) {
	if msg.Reply == "" {
		return
	}
	data, err := reply.Marshal()
	if err != nil {
		b.logger.Warn("Failed to marshal reply", "error", err)
		return
	}
	if err := msg.Respond(data); err != nil {
		b.logger.Debug("Failed to send reply", "subject", msg.Subject, "error", err)
	}
}

// forward publishes a bus event on psmove.events.<kind>.
func (b *Bridge) forward(kind, timestamp string, payload any) {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		b.logger.Warn("Failed to marshal event", "kind", kind, "error", err)
		return
	}
	data, err := EventMessage{Kind: kind, Timestamp: timestamp, Payload: raw}.Marshal()
	if err != nil {
		b.logger.Warn("Failed to marshal event", "kind", kind, "error", err)
		return
	}
	if err := conn.Publish(SubjectEvent(kind), data); err != nil {
		b.logger.Debug("Failed to publish event", "kind", kind, "error", err)
	}
}

// cleanup unsubscribes and closes connection.
func (b *Bridge) cleanup() {
	for _, sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	b.subs = nil

	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
}

// Stop closes the bridge connection.
func (b *Bridge) Stop() {
	// Event handlers take the lock, so unsubscribe before holding it
	b.mu.Lock()
	unsubs := b.unsubs
	b.unsubs = nil
	b.mu.Unlock()
	for _, unsub := range unsubs {
		unsub()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.cleanup()
	b.logger.Info("NATS bridge stopped")
}

// IsConnected returns true if the bridge is connected to NATS.
func (b *Bridge) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil && b.conn.IsConnected()
}
