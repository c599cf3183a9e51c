// Package led drives a board status LED from bridge notifications.
package led

// Pattern is how a lit LED behaves.
type Pattern string

// Patterns understood by every controller.
const (
	PatternSolid     Pattern = "solid"
	PatternBlink     Pattern = "blink"
	PatternHeartbeat Pattern = "heartbeat"
)

// StatusLED is the role the manager drives. Board mappings translate it to
// the board's own LED name.
const StatusLED = "status"

// Controller abstracts LED hardware control across different SBC boards.
type Controller interface {
	// Set switches an LED by role. An empty pattern leaves the trigger alone.
	Set(role string, on bool, pattern Pattern) error

	// Available returns the LED roles this board provides.
	Available() []string
}
