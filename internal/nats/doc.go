// Package nats provides the embedded NATS server and the bridge's NATS
// control surface.
//
// # Architecture
//
//   - Server: Embedded NATS server running in the bridge process
//   - Bridge: Serves control requests and republishes bus notifications
//   - ControlClient: Drives a running bridge from another process
//
// Outlet traffic (lsl.streams.*) is handled by the outlet package and may use
// the same server.
//
// # Subject Hierarchy
//
//	psmove.control.link      # Start, or disconnect when running (request/reply)
//	psmove.control.stop      # Stop and wait for shutdown (request/reply)
//	psmove.control.toggle    # Toggle streaming (request/reply)
//	psmove.control.status    # Current status (request/reply)
//	psmove.events.connection # Link established or torn down
//	psmove.events.devices    # Controller list changed
//	psmove.events.streaming  # Outlets created or destroyed
//	psmove.events.phase      # Worker phase transitions
//	psmove.events.gap        # Skipped sequence numbers
//
// Control uses core NATS request/reply; events are fire-and-forget.
//
// # Debugging with nats CLI
//
// Watch every notification:
//
//	nats sub "psmove.events.>"
//
// Connect and start streaming IMU data from controller 0:
//
//	nats req psmove.control.link '{}'
//	nats req psmove.control.toggle '{"devices":["0"],"imu":true}'
//
// Watch the outlet samples (CBOR payloads):
//
//	nats sub "lsl.streams.*.data" --raw
//
// # Message Formats
//
// ToggleCommand (psmove.control.toggle):
//
//	{
//	  "devices": ["0:00:06:f7:c9:a1:fb"],
//	  "imu": true,
//	  "pose": true
//	}
//
// Reply (every control subject):
//
//	{
//	  "ok": true,
//	  "action": "queued",
//	  "running": true
//	}
//
// EventMessage (psmove.events.*):
//
//	{
//	  "kind": "streaming",
//	  "timestamp": "2025-01-27T10:30:00Z",
//	  "payload": {"active": true, "timestamp": "2025-01-27T10:30:00Z"}
//	}
package nats
