package history

import (
	"math"
	"time"

	"github.com/sweeney/landfill-aeration/internal/logic"
)

// Stats is min/max/mean of one field.
type Stats struct {
	Min  float64
	Max  float64
	Mean float64
}

// Summary condenses a Set for the dashboard.
type Summary struct {
	Count       int
	On          int
	Off         int
	First       time.Time
	Last        time.Time
	Temperature Stats
	Oxygen      Stats
	Humidity    Stats
	PH          Stats
}

// OnRatio is the share of ticks that asked for aeration.
func (s Summary) OnRatio() float64 {
	if s.Count == 0 {
		return 0
	}
	return float64(s.On) / float64(s.Count)
}

// Bucket holds the mean reading of every record in [Start, Start+width).
type Bucket struct {
	Start   time.Time
	Count   int
	On      int
	Reading logic.Reading
}

// Summary computes the set's summary. Zero Set gives zero Summary.
func (s Set) Summary() Summary {
	var sum Summary
	if len(s) == 0 {
		return sum
	}

	acc := [4]accumulator{}
	for i := range acc {
		acc[i] = newAccumulator()
	}
	for _, rec := range s {
		switch rec.Decision {
		case logic.DecisionOn:
			sum.On++
		case logic.DecisionOff:
			sum.Off++
		}
		for i, v := range fields(rec.Reading) {
			acc[i].add(v)
		}
	}

	sum.Count = len(s)
	sum.First = s[0].Timestamp
	sum.Last = s[len(s)-1].Timestamp
	sum.Temperature = acc[0].stats()
	sum.Oxygen = acc[1].stats()
	sum.Humidity = acc[2].stats()
	sum.PH = acc[3].stats()
	return sum
}

// Bucket groups records by timestamp truncated to width on the record's own
// wall clock, so a 24h bucket runs from local midnight to midnight. Each
// field is averaged. The Set must be sorted, as Loader.Load returns it.
func (s Set) Bucket(width time.Duration) []Bucket {
	if len(s) == 0 || width <= 0 {
		return nil
	}

	var (
		out []Bucket
		acc [4]float64
	)
	flush := func() {
		b := &out[len(out)-1]
		n := float64(b.Count)
		b.Reading = logic.Reading{
			Temperature: round2(acc[0] / n),
			Oxygen:      round2(acc[1] / n),
			Humidity:    round2(acc[2] / n),
			PH:          round2(acc[3] / n),
		}
		acc = [4]float64{}
	}

	for _, rec := range s {
		start := truncateLocal(rec.Timestamp, width)
		if len(out) == 0 || !out[len(out)-1].Start.Equal(start) {
			if len(out) > 0 {
				flush()
			}
			out = append(out, Bucket{Start: start})
		}
		b := &out[len(out)-1]
		b.Count++
		if rec.Decision == logic.DecisionOn {
			b.On++
		}
		for i, v := range fields(rec.Reading) {
			acc[i] += v
		}
	}
	flush()
	return out
}

func truncateLocal(t time.Time, width time.Duration) time.Time {
	_, offset := t.Zone()
	shift := time.Duration(offset) * time.Second
	return t.Add(shift).Truncate(width).Add(-shift)
}

type accumulator struct {
	min, max, sum float64
	n             int
}

func newAccumulator() accumulator {
	return accumulator{min: math.Inf(1), max: math.Inf(-1)}
}

func (a *accumulator) add(v float64) {
	a.min = math.Min(a.min, v)
	a.max = math.Max(a.max, v)
	a.sum += v
	a.n++
}

func (a accumulator) stats() Stats {
	return Stats{Min: a.min, Max: a.max, Mean: round2(a.sum / float64(a.n))}
}

func fields(r logic.Reading) [4]float64 {
	return [4]float64{r.Temperature, r.Oxygen, r.Humidity, r.PH}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
