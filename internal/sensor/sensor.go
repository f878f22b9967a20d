// Package sensor provides landfill sensor readings behind a swappable source.
// The simulated implementation draws plausible values at random.
// The fake implementation allows scripted readings in tests.
package sensor

import (
	"math"
	"math/rand"
	"time"

	"github.com/sweeney/landfill-aeration/internal/logic"
)

// Source produces a Reading on demand.
type Source interface {
	// Next returns the current reading. A real sensor integration reports I/O
	// failures through the error; the simulated source never fails.
	Next() (logic.Reading, error)
}

// Range is a closed interval a simulated field is drawn from.
type Range struct {
	Min float64
	Max float64
}

// Simulated field ranges.
var (
	TemperatureRange = Range{Min: 30, Max: 45}
	OxygenRange      = Range{Min: 5, Max: 20}
	HumidityRange    = Range{Min: 40, Max: 80}
	PHRange          = Range{Min: 5.5, Max: 8.5}
)

// Simulated draws each field independently and uniformly from its range,
// rounded to two decimal places. Not safe for concurrent use.
type Simulated struct {
	rng *rand.Rand
}

// NewSimulated creates a simulated source. A zero seed seeds from the clock.
func NewSimulated(seed int64) *Simulated {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Simulated{rng: rand.New(rand.NewSource(seed))}
}

// Next returns a fresh random reading.
func (s *Simulated) Next() (logic.Reading, error) {
	return logic.Reading{
		Temperature: s.draw(TemperatureRange),
		Oxygen:      s.draw(OxygenRange),
		Humidity:    s.draw(HumidityRange),
		PH:          s.draw(PHRange),
	}, nil
}

func (s *Simulated) draw(r Range) float64 {
	return round2(r.Min + s.rng.Float64()*(r.Max-r.Min))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
