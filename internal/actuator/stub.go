//go:build !linux

package actuator

import (
	"errors"

	"github.com/sweeney/landfill-aeration/internal/logic"
)

// Real is not available on non-Linux platforms.
type Real struct{}

// NewReal returns an error on non-Linux platforms.
func NewReal(chip string, pin int) (*Real, error) {
	return nil, errors.New("actuator: gpio not supported on this platform (requires Linux)")
}

// Set is not implemented on non-Linux platforms.
func (r *Real) Set(logic.Decision) error {
	return errors.New("actuator: not supported")
}

// Close is not implemented on non-Linux platforms.
func (r *Real) Close() error {
	return nil
}
