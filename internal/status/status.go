// Package status provides a thread-safe status tracker for the aeration daemon.
// It is read by HTTP handlers and used to build MQTT system events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/landfill-aeration/internal/history"
	"github.com/sweeney/landfill-aeration/internal/logic"
)

// Config contains daemon configuration for display.
type Config struct {
	SiteID            string
	IntervalMs        int64
	HistoryIntervalMs int64
	HeartbeatMs       int64
	Thresholds        logic.Thresholds
	LogTarget         string // CSV path or "mysql:<table>"
	Broker            string
	WSBroker          string // Websocket broker URL for browser MQTT (empty = disabled)
	HTTPAddr          string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	RunID         string
	Latest        *logic.Record
	Counts        logic.Counts
	History       *history.Summary
	HistoryAt     time.Time
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Aeration returns the latest decision, or "UNKNOWN" before the first tick.
func (s Snapshot) Aeration() string {
	if s.Latest == nil {
		return "UNKNOWN"
	}
	return string(s.Latest.Decision)
}

// Tracker holds mutable daemon state behind an RWMutex. It satisfies the
// monitoring loop's presenter contract so the dashboard sees every tick.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot

	// Now is the clock used by Snapshot; defaults to time.Now.
	Now func() time.Time
}

// NewTracker creates a Tracker with the given run ID, start time and config.
func NewTracker(runID string, startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			RunID:     runID,
			StartTime: startTime,
			Config:    cfg,
		},
		Now: time.Now,
	}
}

// PublishLive stores the latest record. It never fails.
func (t *Tracker) PublishLive(rec logic.Record) error {
	t.mu.Lock()
	t.snap.Latest = &rec
	t.mu.Unlock()
	return nil
}

// PublishHistory stores a summary of the freshly loaded history.
func (t *Tracker) PublishHistory(set history.Set) error {
	sum := set.Summary()
	t.mu.Lock()
	t.snap.History = &sum
	t.snap.HistoryAt = t.Now()
	t.mu.Unlock()
	return nil
}

// SetCounts replaces the decision and failure counts.
// Called from the monitoring loop after every tick.
func (t *Tracker) SetCounts(c logic.Counts) {
	t.mu.Lock()
	t.snap.Counts = c
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	if s.Latest != nil {
		latest := *s.Latest
		s.Latest = &latest
	}
	if s.History != nil {
		sum := *s.History
		s.History = &sum
	}
	t.mu.RUnlock()
	s.Now = t.Now()
	return s
}
