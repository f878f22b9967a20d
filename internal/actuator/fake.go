package actuator

import "github.com/sweeney/landfill-aeration/internal/logic"

// Fake records the decisions it was asked to apply.
type Fake struct {
	// Decisions contains every decision passed to Set, in order.
	Decisions []logic.Decision

	// Closed tracks if Close was called
	Closed bool

	// SetError, if set, will be returned by Set()
	SetError error
}

// NewFake creates an empty Fake.
func NewFake() *Fake {
	return &Fake{}
}

// Set records the decision.
func (f *Fake) Set(d logic.Decision) error {
	if f.SetError != nil {
		return f.SetError
	}
	f.Decisions = append(f.Decisions, d)
	return nil
}

// Close marks the actuator as closed.
func (f *Fake) Close() error {
	f.Closed = true
	return nil
}

// Level returns the output level the last decision produced (0 before any).
func (f *Fake) Level() int {
	if len(f.Decisions) == 0 {
		return 0
	}
	return level(f.Decisions[len(f.Decisions)-1])
}
