// Package monitor runs the periodic sense, decide, log and publish cycle.
package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/landfill-aeration/internal/actuator"
	"github.com/sweeney/landfill-aeration/internal/history"
	"github.com/sweeney/landfill-aeration/internal/logic"
	"github.com/sweeney/landfill-aeration/internal/metrics"
	"github.com/sweeney/landfill-aeration/internal/sensor"
)

// DefaultInterval is the pause between ticks.
const DefaultInterval = 2 * time.Second

// Presenter receives every record and every reloaded history. These are the
// loop's only outward calls.
type Presenter interface {
	PublishLive(rec logic.Record) error
	PublishHistory(set history.Set) error
}

// Appender is the write side of the log store.
type Appender interface {
	Append(rec logic.Record) error
}

// HistorySource reloads the log for a history refresh.
type HistorySource interface {
	Load() history.Set
}

// Loop owns one monitoring cycle. It is driven by a single goroutine; no
// field may be changed after Run starts.
type Loop struct {
	source    sensor.Source
	rule      logic.Rule
	log       Appender
	presenter Presenter
	logger    *zap.SugaredLogger

	// Optional collaborators.
	Actuator actuator.Actuator
	History  HistorySource
	Metrics  *metrics.Recorder

	// Now is the clock; defaults to time.Now.
	Now func() time.Time

	// Heartbeat is the heartbeat interval; <= 0 disables heartbeats.
	Heartbeat   time.Duration
	OnHeartbeat func(logic.HeartbeatData)

	// OnTick, if set, receives the running counts after every completed tick.
	OnTick func(logic.Counts)

	tally *logic.Tally
	last  time.Time
}

// New creates a Loop. A nil rule uses logic.DefaultThresholds and a nil
// logger discards output.
func New(source sensor.Source, rule logic.Rule, log Appender, presenter Presenter, logger *zap.SugaredLogger) *Loop {
	if rule == nil {
		rule = logic.DefaultThresholds
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Loop{
		source:    source,
		rule:      rule,
		log:       log,
		presenter: presenter,
		logger:    logger,
		Now:       time.Now,
	}
}

// Counts returns the decision and failure counts so far.
func (l *Loop) Counts() logic.Counts {
	if l.tally == nil {
		return logic.Counts{}
	}
	return l.tally.Counts()
}

// Run processes ticks until ctx is cancelled. Cancellation is only observed
// between ticks, so an append in progress always completes. historyTick may
// be nil to disable history refreshes.
func (l *Loop) Run(ctx context.Context, tick, historyTick <-chan time.Time) error {
	l.start()
	l.logger.Infow("monitoring loop running", "heartbeat", l.Heartbeat)

	for {
		select {
		case <-ctx.Done():
			l.logger.Infow("monitoring loop stopped", "counts", l.tally.Counts())
			return nil
		case <-tick:
			l.Tick()
		case <-historyTick:
			l.RefreshHistory()
		}
	}
}

func (l *Loop) start() {
	if l.tally == nil {
		l.tally = logic.NewTally(l.Now())
	}
}

// clock returns Now, clamped so timestamps never go backwards.
func (l *Loop) clock() time.Time {
	t := l.Now()
	if t.Before(l.last) {
		l.logger.Warnw("clock stepped backwards, reusing last timestamp", "now", t, "last", l.last)
		t = l.last
	}
	l.last = t
	return t
}

// Tick runs one cycle. A sensor error skips the tick and is returned; every
// later failure is logged and the tick carries on.
func (l *Loop) Tick() (logic.Record, error) {
	l.start()

	reading, err := l.source.Next()
	if err != nil {
		l.logger.Warnw("sensor read failed, skipping tick", "err", err)
		l.Metrics.SensorError()
		return logic.Record{}, err
	}

	rec := logic.Record{
		Timestamp: l.clock(),
		Reading:   reading,
		Decision:  l.rule.Decide(reading),
	}
	l.logger.Debugw("tick", "reading", rec.Reading.String(), "decision", rec.Decision)

	if l.Actuator != nil {
		if err := l.Actuator.Set(rec.Decision); err != nil {
			l.logger.Warnw("actuator set failed", "decision", rec.Decision, "err", err)
			l.Metrics.ActuatorError()
		}
	}

	if err := l.log.Append(rec); err != nil {
		l.logger.Warnw("log append failed", "err", err)
		l.Metrics.LogWriteFailed()
		l.tally.LogFailed()
	}

	l.tally.Observe(rec.Decision)
	l.Metrics.ObserveRecord(rec)

	if err := l.presenter.PublishLive(rec); err != nil {
		l.logger.Warnw("publish live failed", "err", err)
		l.Metrics.PublishFailed("live")
	}

	if l.OnTick != nil {
		l.OnTick(l.tally.Counts())
	}

	if hb := l.tally.CheckHeartbeat(rec.Timestamp, l.Heartbeat); hb != nil {
		l.logger.Infow("heartbeat", "uptime", hb.Uptime, "on", hb.Counts.On, "off", hb.Counts.Off, "log_failures", hb.Counts.LogFailures)
		if l.OnHeartbeat != nil {
			l.OnHeartbeat(*hb)
		}
	}

	return rec, nil
}

// RefreshHistory reloads the log and hands it to the presenter. It is a
// no-op without a HistorySource.
func (l *Loop) RefreshHistory() {
	if l.History == nil {
		return
	}
	set := l.History.Load()
	if err := l.presenter.PublishHistory(set); err != nil {
		l.logger.Warnw("publish history failed", "records", len(set), "err", err)
		l.Metrics.PublishFailed("history")
	}
}
