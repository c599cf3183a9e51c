package led

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

const sysfsLEDPath = "/sys/class/leds"

// sysfs implements Controller using the Linux sysfs LED interface.
type sysfs struct {
	root string
	leds map[string]string // role -> sysfs name
}

func newSysfs(root string, leds map[string]string) *sysfs {
	if root == "" {
		root = sysfsLEDPath
	}
	return &sysfs{root: root, leds: leds}
}

func (s *sysfs) Set(role string, on bool, pattern Pattern) error {
	name, ok := s.leds[role]
	if !ok {
		return fmt.Errorf("LED role %q not supported on this board", role)
	}

	ledPath := filepath.Join(s.root, name)
	if _, err := os.Stat(ledPath); os.IsNotExist(err) {
		return fmt.Errorf("LED %q not found at %s", role, ledPath)
	}

	if pattern != "" || !on {
		if err := writeAttr(ledPath, "trigger", trigger(on, pattern)); err != nil {
			return fmt.Errorf("failed to set LED trigger: %w", err)
		}
	}

	brightness := "0"
	if on {
		brightness = "1"
	}
	if err := writeAttr(ledPath, "brightness", brightness); err != nil {
		return fmt.Errorf("failed to set LED brightness: %w", err)
	}
	return nil
}

func (s *sysfs) Available() []string {
	roles := make([]string, 0, len(s.leds))
	for role := range s.leds {
		roles = append(roles, role)
	}
	slices.Sort(roles)
	return roles
}

// trigger maps a pattern to the kernel trigger name. Solid light is manual
// control with full brightness.
func trigger(on bool, pattern Pattern) string {
	if !on {
		return "none"
	}
	switch pattern {
	case PatternBlink, PatternHeartbeat:
		return "heartbeat"
	case PatternSolid, "":
		return "none"
	default:
		return string(pattern)
	}
}

func writeAttr(ledPath, attr, value string) error {
	return os.WriteFile(filepath.Join(ledPath, attr), []byte(value), 0o644)
}
