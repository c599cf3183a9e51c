package led

import (
	"log/slog"
	"sync"

	"github.com/labstreaminglayer/App-PSMove/internal/events"
)

// Manager mirrors the bridge state on the status LED: off while unlinked,
// blinking while linked and scanning, solid while outlets stream.
type Manager struct {
	controller Controller
	eventBus   *events.Bus
	logger     *slog.Logger

	mu           sync.Mutex
	unsubscribes []func()
	connected    bool
	streaming    bool
	lastOn       bool
	lastPattern  Pattern
	applied      bool
}

// NewManager creates a manager that drives controller from eventBus.
func NewManager(controller Controller, eventBus *events.Bus, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		controller: controller,
		eventBus:   eventBus,
		logger:     logger,
	}
}

// Start subscribes to bridge notifications and switches the LED off.
func (m *Manager) Start() {
	m.mu.Lock()
	m.unsubscribes = append(m.unsubscribes,
		m.eventBus.Subscribe(func(e events.ConnectionResultEvent) {
			m.mu.Lock()
			defer m.mu.Unlock()
			m.connected = e.Connected
			if !e.Connected {
				m.streaming = false
			}
			m.apply()
		}),
		m.eventBus.Subscribe(func(e events.StreamingResultEvent) {
			m.mu.Lock()
			defer m.mu.Unlock()
			m.streaming = e.Active
			m.apply()
		}),
	)
	m.apply()
	m.mu.Unlock()
	m.logger.Info("LED manager started")
}

// Stop unsubscribes and switches the LED off.
func (m *Manager) Stop() {
	m.mu.Lock()
	unsubscribes := m.unsubscribes
	m.unsubscribes = nil
	m.mu.Unlock()

	for _, unsubscribe := range unsubscribes {
		unsubscribe()
	}

	m.mu.Lock()
	m.connected, m.streaming = false, false
	m.apply()
	m.mu.Unlock()
	m.logger.Info("LED manager stopped")
}

// apply writes the LED state for the current flags. Callers hold m.mu.
func (m *Manager) apply() {
	on, pattern := false, Pattern("")
	switch {
	case m.streaming:
		on, pattern = true, PatternSolid
	case m.connected:
		on, pattern = true, PatternBlink
	}
	if m.applied && on == m.lastOn && pattern == m.lastPattern {
		return
	}
	if err := m.controller.Set(StatusLED, on, pattern); err != nil {
		m.logger.Warn("Failed to set status LED", "on", on, "pattern", pattern, "error", err)
		return
	}
	m.applied, m.lastOn, m.lastPattern = true, on, pattern
	m.logger.Debug("Status LED updated", "on", on, "pattern", pattern)
}
