package led

import (
	"log/slog"
	"os"
	"strings"
)

const deviceTreeModelPath = "/proc/device-tree/model"

// boardLEDs maps device tree model substrings to role -> sysfs LED name.
var boardLEDs = []struct {
	model string
	leds  map[string]string
}{
	{"NanoPC-T6", map[string]string{StatusLED: "sys_led", "user": "usr_led"}},
	{"Orange Pi", map[string]string{StatusLED: "green_led", "user": "blue_led"}},
	{"Raspberry Pi", map[string]string{StatusLED: "ACT"}},
}

// New creates an LED controller for the detected board. Boards without known
// LEDs get a no-op controller.
func New(logger *slog.Logger) Controller {
	return newForModel(detectBoard(), "", logger)
}

func newForModel(model, root string, logger *slog.Logger) Controller {
	if logger == nil {
		logger = slog.Default()
	}
	for _, b := range boardLEDs {
		if strings.Contains(model, b.model) {
			logger.Info("Using sysfs LED controller", "board_model", model)
			return newSysfs(root, b.leds)
		}
	}
	logger.Info("No LED support detected, using no-op controller", "board_model", model)
	return newNoop(logger)
}

// detectBoard reads the device tree model to identify the board.
func detectBoard() string {
	data, err := os.ReadFile(deviceTreeModelPath)
	if err != nil {
		return "unknown"
	}
	// Device tree model contains null bytes, trim them
	return strings.TrimRight(string(data), "\x00")
}
