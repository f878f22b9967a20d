package logic

// Rule maps the current reading to an actuation decision. Implementations take
// only the current Reading so the loop never depends on controller state.
type Rule interface {
	Decide(r Reading) Decision
}

// Thresholds is the strict-inequality aeration rule: aeration runs only when
// oxygen is low, the pile is hot and it is dry enough to take air.
type Thresholds struct {
	OxygenBelow      float64 `yaml:"oxygen_below"`
	TemperatureAbove float64 `yaml:"temperature_above"`
	HumidityBelow    float64 `yaml:"humidity_below"`
}

// DefaultThresholds is O2 < 10 %, T > 40 °C, RH < 50 %.
var DefaultThresholds = Thresholds{
	OxygenBelow:      10,
	TemperatureAbove: 40,
	HumidityBelow:    50,
}

// Decide returns ON iff every comparison holds. Ties go to OFF.
func (t Thresholds) Decide(r Reading) Decision {
	if r.Oxygen < t.OxygenBelow && r.Temperature > t.TemperatureAbove && r.Humidity < t.HumidityBelow {
		return DecisionOn
	}
	return DecisionOff
}

// Decide applies DefaultThresholds.
func Decide(r Reading) Decision {
	return DefaultThresholds.Decide(r)
}
