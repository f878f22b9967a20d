//go:build linux

package actuator

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"

	"github.com/sweeney/landfill-aeration/internal/logic"
)

// Real drives a blower relay from a Linux GPIO character device line.
type Real struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
	pin  int
}

// NewReal requests pin on chip as an output, initially low (blower off).
func NewReal(chip string, pin int) (*Real, error) {
	c, err := gpiocdev.NewChip(chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	line, err := c.RequestLine(pin, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("landfill-aeration"))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("request aeration pin %d: %w", pin, err)
	}

	return &Real{chip: c, line: line, pin: pin}, nil
}

// Set drives the line high for ON and low for OFF.
func (r *Real) Set(d logic.Decision) error {
	if err := r.line.SetValue(level(d)); err != nil {
		return fmt.Errorf("set aeration pin %d: %w", r.pin, err)
	}
	return nil
}

// Close switches the blower off and returns the line to an input with
// pull-down, matching Pi boot defaults.
func (r *Real) Close() error {
	var errs []error

	if r.line != nil {
		if err := r.line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("release aeration pin: %w", err))
		}
		if err := r.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure aeration pin: %w", err))
		}
		if err := r.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close aeration pin: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	return errors.Join(errs...)
}
