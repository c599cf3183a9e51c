package nats

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/labstreaminglayer/App-PSMove/internal/bridge"
	"github.com/labstreaminglayer/App-PSMove/internal/events"
	"github.com/labstreaminglayer/App-PSMove/internal/outlet"
	"github.com/labstreaminglayer/App-PSMove/internal/psmove/sim"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func startTestServer(t *testing.T) *Server {
	t.Helper()
	server := NewServer(ServerOptions{
		Port:   RandomPort,
		Name:   "test-server",
		Logger: testLogger(),
	})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(server.Stop)
	return server
}

func TestServerStartStop(t *testing.T) {
	server := NewServer(ServerOptions{
		Port:   RandomPort,
		Name:   "test-server",
		Logger: testLogger(),
	})

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}

	if !server.IsRunning() {
		t.Error("Server should be running after Start()")
	}

	if url := server.ClientURL(); url == "" {
		t.Error("ClientURL should not be empty")
	}

	server.Stop()

	if server.IsRunning() {
		t.Error("Server should not be running after Stop()")
	}
}

func TestControlClientWithoutServer(t *testing.T) {
	client := NewControlClient("nats://127.0.0.1:59999", 100*time.Millisecond, testLogger())

	if err := client.Connect(); err == nil {
		t.Error("Connect should fail with non-existent server")
	}
	if _, err := client.Toggle(ToggleCommand{IMU: true}); err != ErrNotConnected {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if _, err := client.SubscribeEvents("", func(EventMessage) {}); err != ErrNotConnected {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if client.IsConnected() {
		t.Error("Client should not be connected")
	}

	client.Close()
}

func TestControlClientNoResponders(t *testing.T) {
	server := startTestServer(t)

	client := NewControlClient(server.ClientURL(), 200*time.Millisecond, testLogger())
	if err := client.Connect(); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	_, err := client.Link(nil)
	if err == nil || !strings.Contains(err.Error(), "no bridge") {
		t.Errorf("expected no responders error, got %v", err)
	}
}

// TestControlRoundTrip drives a simulated bridge entirely through NATS and
// checks the declared outlet is resolvable on the same server.
func TestControlRoundTrip(t *testing.T) {
	server := startTestServer(t)
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))

	conn, err := outlet.Dial(server.ClientURL(), "test-outlets", quiet)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	defer conn.Close()

	bus := events.New()
	svc, err := bridge.New(bridge.Options{
		Client:       sim.New(sim.Options{Controllers: 1, RateHz: 100}),
		Outlets:      outlet.NewNATSProvider(conn, quiet),
		Events:       bus,
		Logger:       quiet,
		ScanInterval: 5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("bridge.New failed: %v", err)
	}
	defer svc.Stop()

	b := NewBridge(server.ClientURL(), svc, bus, 0, quiet)
	if err := b.Start(); err != nil {
		t.Fatalf("Bridge start failed: %v", err)
	}
	defer b.Stop()

	client := NewControlClient(server.ClientURL(), time.Second, testLogger())
	if err := client.Connect(); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	if _, err := client.Toggle(ToggleCommand{IMU: true}); err == nil || !strings.Contains(err.Error(), "not running") {
		t.Fatalf("expected not running error before link, got %v", err)
	}

	streaming := make(chan events.StreamingResultEvent, 4)
	unsub, err := client.SubscribeEvents(KindStreaming, func(ev EventMessage) {
		var e events.StreamingResultEvent
		if json.Unmarshal(ev.Payload, &e) == nil {
			streaming <- e
		}
	})
	if err != nil {
		t.Fatalf("SubscribeEvents failed: %v", err)
	}
	defer unsub()

	reply, err := client.Link(nil)
	if err != nil {
		t.Fatalf("Link failed: %v", err)
	}
	if reply.Action != "started" || !reply.Running {
		t.Errorf("unexpected link reply: %+v", reply)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		status, err := client.Status()
		if err != nil {
			t.Fatalf("Status failed: %v", err)
		}
		if len(status.Devices) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("controller never listed, status %+v", status)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, err := client.Toggle(ToggleCommand{Devices: []string{"zero"}}); err == nil {
		t.Error("expected invalid device reference to be rejected")
	}
	if _, err := client.Toggle(ToggleCommand{Devices: []string{"0:00:06:f7:c9:a1:00"}, IMU: true}); err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}

	select {
	case e := <-streaming:
		if !e.Active {
			t.Fatalf("expected streaming to start, got %+v", e)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no streaming notification")
	}

	info, err := outlet.ResolveStream(conn, "PSMove_IMU_00:06:f7:c9:a1:00", time.Second)
	if err != nil {
		t.Fatalf("ResolveStream failed: %v", err)
	}
	if info.ChannelCount != 10 {
		t.Errorf("expected 10 IMU channels, got %d", info.ChannelCount)
	}

	reply, err = client.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if reply.Action != "stopped" {
		t.Errorf("unexpected stop reply: %+v", reply)
	}
	if svc.Status().Running {
		t.Error("worker should have stopped")
	}
	if _, err := outlet.ResolveStream(conn, "PSMove_IMU_00:06:f7:c9:a1:00", 200*time.Millisecond); err == nil {
		t.Error("outlet should be gone after stop")
	}
}

func TestMessageMarshalUnmarshal(t *testing.T) {
	t.Run("LinkCommand", func(t *testing.T) {
		rate := 90.0
		data, err := LinkCommand{SampleRate: &rate}.Marshal()
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}
		parsed, err := UnmarshalLink(data)
		if err != nil {
			t.Fatalf("Unmarshal failed: %v", err)
		}
		if parsed.SampleRate == nil || *parsed.SampleRate != 90 {
			t.Errorf("SampleRate mismatch: got %v", parsed.SampleRate)
		}

		empty, err := UnmarshalLink(nil)
		if err != nil || empty.SampleRate != nil {
			t.Errorf("empty payload should give defaults, got %+v, %v", empty, err)
		}
	})

	t.Run("ToggleCommand", func(t *testing.T) {
		data, err := ToggleCommand{Devices: []string{"1:aa"}, Pose: true}.Marshal()
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}
		parsed, err := UnmarshalToggle(data)
		if err != nil {
			t.Fatalf("Unmarshal failed: %v", err)
		}
		if !parsed.Pose || parsed.IMU || len(parsed.Devices) != 1 {
			t.Errorf("unexpected toggle: %+v", parsed)
		}
	})
}

func TestSubjectEvent(t *testing.T) {
	tests := []struct {
		kind     string
		expected string
	}{
		{KindConnection, "psmove.events.connection"},
		{KindDevices, "psmove.events.devices"},
		{KindStreaming, "psmove.events.streaming"},
		{KindPhase, "psmove.events.phase"},
		{KindGap, "psmove.events.gap"},
	}

	for _, tt := range tests {
		if result := SubjectEvent(tt.kind); result != tt.expected {
			t.Errorf("Got %s, want %s", result, tt.expected)
		}
	}
}
