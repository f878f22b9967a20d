// Package logic contains pure business logic for the aeration control demo.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import (
	"fmt"
	"time"
)

// Decision is the binary actuation output: whether aeration should run.
type Decision string

const (
	DecisionOn  Decision = "ON"
	DecisionOff Decision = "OFF"
)

// ParseDecision converts the logged status literal back into a Decision.
func ParseDecision(s string) (Decision, error) {
	switch Decision(s) {
	case DecisionOn:
		return DecisionOn, nil
	case DecisionOff:
		return DecisionOff, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Reading is one simulated sensor sample.
type Reading struct {
	Temperature float64 // °C
	Oxygen      float64 // %
	Humidity    float64 // %
	PH          float64
}

// String formats the reading for log lines.
func (r Reading) String() string {
	return fmt.Sprintf("T=%.2f°C O2=%.2f%% RH=%.2f%% pH=%.2f", r.Temperature, r.Oxygen, r.Humidity, r.PH)
}

// Record is one logged tick: the reading, the decision made for it and when.
type Record struct {
	Timestamp time.Time
	Reading   Reading
	Decision  Decision
}

// Counts tracks decisions and log failures since startup.
type Counts struct {
	On          int
	Off         int
	LogFailures int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    Counts
}
