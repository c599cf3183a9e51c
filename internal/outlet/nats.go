package outlet

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// Dial connects to a NATS server with the reconnect policy outlets expect.
func Dial(url, name string, logger *slog.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return nats.Connect(url,
		nats.Name(name),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("NATS reconnected")
		}),
	)
}

// NATSProvider declares outlets on a NATS connection.
type NATSProvider struct {
	conn   *nats.Conn
	logger *slog.Logger

	mu sync.Mutex
	// declared is keyed by subject token; distinct source ids can share one.
	declared map[string]*natsOutlet
}

// NewNATSProvider creates a provider on an existing connection. The caller
// keeps ownership of conn.
func NewNATSProvider(conn *nats.Conn, logger *slog.Logger) *NATSProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSProvider{
		conn:     conn,
		logger:   logger,
		declared: make(map[string]*natsOutlet),
	}
}

// Declare implements Provider. The stream description is published once on
// the info subject and then served to requesters until the outlet closes.
func (p *NATSProvider) Declare(info StreamInfo) (Outlet, error) {
	if err := info.Validate(); err != nil {
		return nil, err
	}
	if p.conn == nil || !p.conn.IsConnected() {
		return nil, ErrNotConnected
	}
	if info.ChannelFormat == "" {
		info.ChannelFormat = FormatFloat32
	}
	info.CreatedAt = LocalClock()

	p.mu.Lock()
	defer p.mu.Unlock()
	token := subjectToken(info.SourceID)
	if held, exists := p.declared[token]; exists {
		if held.info.SourceID == info.SourceID {
			return nil, fmt.Errorf("%w: %s", ErrSourceIDInUse, info.SourceID)
		}
		return nil, fmt.Errorf("%w: %s shares subjects with %s", ErrSourceIDInUse, info.SourceID, held.info.SourceID)
	}

	payload, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stream info: %w", err)
	}

	infoSubject := SubjectInfo(info.SourceID)
	sub, err := p.conn.Subscribe(infoSubject, func(msg *nats.Msg) {
		if msg.Reply == "" {
			return
		}
		if respErr := msg.Respond(payload); respErr != nil {
			p.logger.Debug("Failed to answer stream info request", "source_id", info.SourceID, "error", respErr)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to serve stream info: %w", err)
	}

	if err := p.conn.Publish(infoSubject, payload); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("failed to announce stream: %w", err)
	}

	o := &natsOutlet{
		provider:    p,
		info:        info,
		dataSubject: SubjectData(info.SourceID),
		infoSub:     sub,
	}
	p.declared[token] = o
	p.logger.Info("Outlet declared",
		"name", info.Name,
		"source_id", info.SourceID,
		"channels", info.ChannelCount,
		"irregular", info.Irregular())
	return o, nil
}

// Declared returns the source ids of all open outlets.
func (p *NATSProvider) Declared() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.declared))
	for _, o := range p.declared {
		ids = append(ids, o.info.SourceID)
	}
	return ids
}

func (p *NATSProvider) release(sourceID string) {
	p.mu.Lock()
	delete(p.declared, subjectToken(sourceID))
	p.mu.Unlock()
}

type natsOutlet struct {
	provider    *NATSProvider
	info        StreamInfo
	dataSubject string

	mu      sync.Mutex
	infoSub *nats.Subscription
	closed  bool
}

func (o *natsOutlet) Info() StreamInfo {
	return o.info
}

// PushSample publishes one sample. Publishing is fire-and-forget; a slow or
// absent consumer never blocks the producer.
func (o *natsOutlet) PushSample(values []float32) error {
	if len(values) != o.info.ChannelCount {
		return fmt.Errorf("%w: got %d, want %d", ErrChannelCount, len(values), o.info.ChannelCount)
	}

	o.mu.Lock()
	closed := o.closed
	o.mu.Unlock()
	if closed {
		return ErrClosed
	}

	data, err := EncodeSample(Sample{Timestamp: LocalClock(), Values: values})
	if err != nil {
		return fmt.Errorf("failed to encode sample: %w", err)
	}
	return o.provider.conn.Publish(o.dataSubject, data)
}

func (o *natsOutlet) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true
	o.provider.release(o.info.SourceID)

	var err error
	if o.infoSub != nil {
		err = o.infoSub.Unsubscribe()
		o.infoSub = nil
	}
	o.provider.logger.Debug("Outlet closed", "source_id", o.info.SourceID)
	return err
}
