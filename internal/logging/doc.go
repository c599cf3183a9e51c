// Package logging configures slog for the bridge and hands out one logger
// per module (bridge, registry, outlet, api, nats, ...).
//
// Call Initialize once from main, then ask for loggers by module name:
//
//	logging.Initialize(logging.Config{
//		Level:   "info",
//		Format:  "text",
//		Modules: map[string]string{"bridge": "debug", "api": "warn"},
//	})
//	logger := logging.GetLogger("bridge").With("device", id)
//	logger.Warn("Data gap detected", "from", 41, "to", 44)
//
// A module level overrides the global level for that module only. Loggers
// handed out before Initialize are rebuilt by it, and SetLevels adjusts
// levels in place when the [logging] table of the config file changes:
//
//	[logging]
//	level = "info"
//	bridge = "debug"
//	outlet = "error"
//
// # Destinations
//
// Records go to stdout (text or JSON) when stdout is a terminal, pipe or
// file, and to the systemd journal when journald is reachable; both when
// both are available. Every record is also kept in a RingBuffer. The HTTP
// API serves the buffer at /api/logs, and main republishes each entry on
// the event bus through SetLogCallback for /api/logs/stream. Entries carry
// a sequence number so the stream can drop events already replayed from
// the buffer.
//
// Journal entries are tagged with the psmove-bridge identifier and carry
// attributes as upper-cased fields:
//
//	journalctl -t psmove-bridge -f
//	journalctl -t psmove-bridge MODULE=bridge DEVICE=0
//	journalctl -t psmove-bridge -p warning --since "10m"
package logging
