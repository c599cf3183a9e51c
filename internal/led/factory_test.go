package led

import (
	"log/slog"
	"os"
	"testing"
)

func TestNew(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// Should always return a non-nil controller
	ctrl := New(logger)
	if ctrl == nil {
		t.Fatal("New() returned nil")
	}
	if ctrl.Available() == nil {
		t.Error("Available() returned nil")
	}

	// Set should not panic
	_ = ctrl.Set(StatusLED, false, "")
}

func TestNewForModel(t *testing.T) {
	tests := []struct {
		model string
		sysfs bool
		roles int
	}{
		{"FriendlyElec NanoPC-T6", true, 2},
		{"Orange Pi 5 Plus", true, 2},
		{"Raspberry Pi 4 Model B Rev 1.4", true, 1},
		{"unknown", false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			ctrl := newForModel(tt.model, t.TempDir(), nil)
			_, isSysfs := ctrl.(*sysfs)
			if isSysfs != tt.sysfs {
				t.Errorf("sysfs controller = %v, want %v", isSysfs, tt.sysfs)
			}
			if got := len(ctrl.Available()); got != tt.roles {
				t.Errorf("Available() has %d roles, want %d", got, tt.roles)
			}
		})
	}
}

func TestDetectBoard(t *testing.T) {
	model := detectBoard()

	// Should return a non-empty string (or "unknown")
	if model == "" {
		t.Error("detectBoard() returned empty string")
	}
}
