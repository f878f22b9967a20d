package sensor

import (
	"errors"

	"github.com/sweeney/landfill-aeration/internal/logic"
)

// Fake is a test double that returns scripted readings.
type Fake struct {
	// Readings contains scripted values to return.
	// Each call to Next() consumes the next reading.
	Readings []logic.Reading

	// index tracks current position in Readings
	index int

	// Calls counts Next invocations, including failed ones
	Calls int

	// Err, if set, will be returned by Next()
	Err error
}

// NewFake creates a Fake with the given readings.
func NewFake(readings ...logic.Reading) *Fake {
	return &Fake{Readings: readings}
}

// Next returns the next scripted reading.
// If readings are exhausted, returns the last reading repeatedly.
func (f *Fake) Next() (logic.Reading, error) {
	f.Calls++
	if f.Err != nil {
		return logic.Reading{}, f.Err
	}

	if len(f.Readings) == 0 {
		return logic.Reading{}, errors.New("no readings configured")
	}

	r := f.Readings[f.index]
	if f.index < len(f.Readings)-1 {
		f.index++
	}
	return r, nil
}
