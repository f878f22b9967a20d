// Package actuator drives the aeration blower output with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package actuator

import "github.com/sweeney/landfill-aeration/internal/logic"

// Actuator applies an aeration decision to the outside world.
type Actuator interface {
	// Set drives the output: ON energises the blower relay, OFF releases it.
	Set(d logic.Decision) error

	// Close releases the output, leaving the blower off.
	Close() error
}

// Defaults (BCM numbering). A negative pin disables the actuator.
const (
	DefaultChip = "gpiochip0"
	DefaultPin  = -1
)

// Nop ignores every decision. Used when no output pin is configured.
type Nop struct{}

func (Nop) Set(logic.Decision) error { return nil }
func (Nop) Close() error             { return nil }

func level(d logic.Decision) int {
	if d == logic.DecisionOn {
		return 1
	}
	return 0
}
