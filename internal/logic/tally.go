package logic

import "time"

// Tally accumulates decision counts and paces heartbeats.
type Tally struct {
	startTime     time.Time
	lastHeartbeat time.Time
	counts        Counts
}

// NewTally creates a Tally. The startTime is used for calculating uptime in
// heartbeat events.
func NewTally(startTime time.Time) *Tally {
	return &Tally{
		startTime:     startTime,
		lastHeartbeat: startTime,
	}
}

// Observe counts one decision.
func (t *Tally) Observe(d Decision) {
	switch d {
	case DecisionOn:
		t.counts.On++
	case DecisionOff:
		t.counts.Off++
	}
}

// LogFailed counts one failed append.
func (t *Tally) LogFailed() {
	t.counts.LogFailures++
}

// Counts returns a copy of the current counts.
func (t *Tally) Counts() Counts {
	return t.counts
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if the interval has not elapsed or
// if interval is <= 0 (disabled).
func (t *Tally) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}

	if now.Sub(t.lastHeartbeat) < interval {
		return nil
	}

	t.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(t.startTime),
		Counts:    t.counts,
	}
}
