package cmd

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/labstreaminglayer/App-PSMove/internal/bridge"
	"github.com/labstreaminglayer/App-PSMove/internal/outlet"
	"github.com/labstreaminglayer/App-PSMove/internal/psmove"
	"github.com/labstreaminglayer/App-PSMove/internal/psmove/sim"
)

func TestListDevices(t *testing.T) {
	var out bytes.Buffer
	client := sim.New(sim.Options{Controllers: 2})
	if err := listDevices(context.Background(), client, psmove.DefaultAddress, psmove.DefaultPort, time.Second, &out); err != nil {
		t.Fatalf("listDevices failed: %v", err)
	}
	want := "0:00:06:f7:c9:a1:00\n1:00:06:f7:c9:a1:01\n"
	if out.String() != want {
		t.Errorf("unexpected output:\n%s", out.String())
	}
	if client.Connected() {
		t.Error("client should be disconnected afterwards")
	}
}

func TestListDevicesEmptyAndFailing(t *testing.T) {
	var out bytes.Buffer
	if err := listDevices(context.Background(), sim.New(sim.Options{}), "", 0, time.Second, &out); err != nil {
		t.Fatalf("listDevices failed: %v", err)
	}
	if strings.TrimSpace(out.String()) != "no controllers" {
		t.Errorf("unexpected output: %q", out.String())
	}

	failing := sim.New(sim.Options{Controllers: 1})
	failing.SetConnectError(errors.New("refused"))
	if err := listDevices(context.Background(), failing, "localhost", 9512, time.Second, &out); err == nil {
		t.Error("expected connect error")
	}
}

func TestPrintSample(t *testing.T) {
	var out bytes.Buffer
	printSample(&out, outlet.Received{
		Source: "PSMove_IMU_0",
		Sample: outlet.Sample{Timestamp: 1.5, Values: []float32{1, -0.25}},
	})
	if got := out.String(); got != "1.500000 PSMove_IMU_0 [1.0000 -0.2500]\n" {
		t.Errorf("unexpected line: %q", got)
	}
}

func TestPrintStreamInfo(t *testing.T) {
	var out bytes.Buffer
	printStreamInfo(&out, outlet.StreamInfo{
		Name:         "PSMovePose",
		Type:         "MoCap",
		SourceID:     "PSMove_Pose_x",
		ChannelCount: 1,
		NominalRate:  120,
		Desc:         outlet.Description{Channels: []outlet.ChannelInfo{{Label: "0_Pos.x", Type: "Position", Unit: "cm"}}},
	})
	text := out.String()
	if !strings.Contains(text, "120 Hz") || !strings.Contains(text, "0_Pos.x") {
		t.Errorf("unexpected output:\n%s", text)
	}
}

func TestPrintStatus(t *testing.T) {
	var out bytes.Buffer
	printStatus(&out, bridge.Status{
		Running: true,
		Phase:   "transfer_data",
		Devices: []string{"0:aa", "1:bb"},
		Session: &bridge.SessionStatus{
			Config:   bridge.RunConfig{SampleRate: 60, Devices: []int{0}},
			Acquired: []int{0},
			Outlets:  []string{"PSMove_IMU_aa"},
		},
	})
	text := out.String()
	for _, want := range []string{"phase:     transfer_data", "0:aa, 1:bb", "rate=60", "outlet PSMove_IMU_aa"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}
