package nats

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/labstreaminglayer/App-PSMove/internal/bridge"
	"github.com/labstreaminglayer/App-PSMove/internal/version"
)

// ErrNotConnected is returned by requests made without a connection.
var ErrNotConnected = errors.New("not connected to NATS")

// DefaultRequestTimeout bounds control requests. Stop waits for the worker to
// release everything, so it gets a longer deadline.
const DefaultRequestTimeout = 2 * time.Second

// ControlClient drives a running bridge through the psmove.control subjects.
type ControlClient struct {
	url     string
	timeout time.Duration
	conn    *nats.Conn
	logger  *slog.Logger
	mu      sync.RWMutex
}

// NewControlClient creates a client for the bridge reachable at url.
func NewControlClient(url string, timeout time.Duration, logger *slog.Logger) *ControlClient {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	return &ControlClient{
		url:     url,
		timeout: timeout,
		logger:  logger.With("component", "nats-control"),
	}
}

// Connect establishes a connection to the NATS server.
func (c *ControlClient) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := nats.Connect(c.url,
		nats.Name(version.ClientName("client")),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(5),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				c.logger.Warn("NATS disconnected", "error", err)
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", c.url, err)
	}

	c.conn = conn
	c.logger.Debug("Connected to NATS", "url", c.url)
	return nil
}

// Link starts the bridge worker, or disconnects it when running. A nil rate
// uses the bridge's configured sample rate.
func (c *ControlClient) Link(sampleRate *float64) (Reply, error) {
	data, err := LinkCommand{SampleRate: sampleRate}.Marshal()
	if err != nil {
		return Reply{}, err
	}
	return c.request(SubjectControlLink, data, c.timeout)
}

// Stop stops the bridge worker and waits for its reply.
func (c *ControlClient) Stop() (Reply, error) {
	return c.request(SubjectControlStop, nil, 4*c.timeout)
}

// Toggle starts or stops streaming.
func (c *ControlClient) Toggle(cmd ToggleCommand) (Reply, error) {
	data, err := cmd.Marshal()
	if err != nil {
		return Reply{}, err
	}
	return c.request(SubjectControlToggle, data, c.timeout)
}

// Status fetches the bridge status.
func (c *ControlClient) Status() (bridge.Status, error) {
	reply, err := c.request(SubjectControlStatus, nil, c.timeout)
	if err != nil {
		return bridge.Status{}, err
	}
	var status bridge.Status
	if err := json.Unmarshal(reply.Status, &status); err != nil {
		return bridge.Status{}, fmt.Errorf("failed to parse status: %w", err)
	}
	return status, nil
}

// SubscribeEvents calls handler for every notification of kind, or of every
// kind when kind is empty. The returned function unsubscribes.
func (c *ControlClient) SubscribeEvents(kind string, handler func(EventMessage)) (func(), error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return nil, ErrNotConnected
	}

	subject := SubjectEvent(kind)
	if kind == "" {
		subject = SubjectEventsPrefix + ".*"
	}
	sub, err := conn.Subscribe(subject, func(msg *nats.Msg) {
		ev, err := UnmarshalEvent(msg.Data)
		if err != nil {
			c.logger.Warn("Failed to unmarshal event", "error", err, "subject", msg.Subject)
			return
		}
		handler(ev)
	})
	if err != nil {
		return nil, err
	}
	return func() { _ = sub.Unsubscribe() }, nil
}

func (c *ControlClient) request(subject string, data []byte, timeout time.Duration) (Reply, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return Reply{}, ErrNotConnected
	}

	msg, err := conn.Request(subject, data, timeout)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return Reply{}, fmt.Errorf("no bridge is serving %s: %w", subject, err)
		}
		return Reply{}, err
	}
	reply, err := UnmarshalReply(msg.Data)
	if err != nil {
		return Reply{}, fmt.Errorf("failed to parse reply: %w", err)
	}
	if !reply.OK {
		return reply, errors.New(reply.Error)
	}
	return reply, nil
}

// IsConnected returns true if connected to NATS.
func (c *ControlClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && c.conn.IsConnected()
}

// Close closes the NATS connection.
func (c *ControlClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.logger.Debug("NATS client closed")
}
