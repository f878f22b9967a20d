package status

import (
	"fmt"
	"time"

	"github.com/segmentio/encoding/json"

	"github.com/sweeney/landfill-aeration/internal/history"
	"github.com/sweeney/landfill-aeration/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	RunID         string       `json:"run_id"`
	SiteID        string       `json:"site_id"`
	Aeration      string       `json:"aeration"`
	Latest        *RecordJSON  `json:"latest,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"counts"`
	History       *SummaryJSON `json:"history,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of decision counts.
type CountsJSON struct {
	On          int `json:"on"`
	Off         int `json:"off"`
	LogFailures int `json:"log_failures"`
}

// ThresholdsJSON is the JSON representation of the actuation rule.
type ThresholdsJSON struct {
	OxygenBelow      float64 `json:"oxygen_below"`
	TemperatureAbove float64 `json:"temperature_above"`
	HumidityBelow    float64 `json:"humidity_below"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	IntervalMs        int64          `json:"interval_ms"`
	HistoryIntervalMs int64          `json:"history_interval_ms"`
	HeartbeatMs       int64          `json:"heartbeat_ms"`
	Thresholds        ThresholdsJSON `json:"thresholds"`
	Log               string         `json:"log"`
	Broker            string         `json:"broker"`
	WSBroker          string         `json:"ws_broker,omitempty"`
	HTTPAddr          string         `json:"http_addr"`
}

// RecordJSON is the wire form of one logged tick. It is shared by the
// dashboard, MQTT and Kafka payloads.
type RecordJSON struct {
	Timestamp   string  `json:"timestamp"`
	Temperature float64 `json:"temperature"`
	Oxygen      float64 `json:"oxygen"`
	Humidity    float64 `json:"humidity"`
	PH          float64 `json:"ph"`
	Status      string  `json:"status"`
}

// NewRecordJSON converts a record; the timestamp is RFC3339 in UTC.
func NewRecordJSON(rec logic.Record) RecordJSON {
	return RecordJSON{
		Timestamp:   rec.Timestamp.UTC().Format(time.RFC3339),
		Temperature: rec.Reading.Temperature,
		Oxygen:      rec.Reading.Oxygen,
		Humidity:    rec.Reading.Humidity,
		PH:          rec.Reading.PH,
		Status:      string(rec.Decision),
	}
}

// StatsJSON is the JSON representation of history.Stats.
type StatsJSON struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
}

// SummaryJSON is the JSON representation of a history summary.
type SummaryJSON struct {
	Count       int       `json:"count"`
	On          int       `json:"on"`
	Off         int       `json:"off"`
	OnRatio     float64   `json:"on_ratio"`
	First       string    `json:"first,omitempty"`
	Last        string    `json:"last,omitempty"`
	Temperature StatsJSON `json:"temperature"`
	Oxygen      StatsJSON `json:"oxygen"`
	Humidity    StatsJSON `json:"humidity"`
	PH          StatsJSON `json:"ph"`
}

// NewSummaryJSON converts a summary. An empty summary has no first/last.
func NewSummaryJSON(sum history.Summary) SummaryJSON {
	out := SummaryJSON{
		Count:       sum.Count,
		On:          sum.On,
		Off:         sum.Off,
		OnRatio:     sum.OnRatio(),
		Temperature: StatsJSON(sum.Temperature),
		Oxygen:      StatsJSON(sum.Oxygen),
		Humidity:    StatsJSON(sum.Humidity),
		PH:          StatsJSON(sum.PH),
	}
	if sum.Count > 0 {
		out.First = sum.First.UTC().Format(time.RFC3339)
		out.Last = sum.Last.UTC().Format(time.RFC3339)
	}
	return out
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		RunID:         snap.RunID,
		SiteID:        snap.Config.SiteID,
		Aeration:      snap.Aeration(),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			On:          snap.Counts.On,
			Off:         snap.Counts.Off,
			LogFailures: snap.Counts.LogFailures,
		},
		Config: ConfigJSON{
			IntervalMs:        snap.Config.IntervalMs,
			HistoryIntervalMs: snap.Config.HistoryIntervalMs,
			HeartbeatMs:       snap.Config.HeartbeatMs,
			Thresholds: ThresholdsJSON{
				OxygenBelow:      snap.Config.Thresholds.OxygenBelow,
				TemperatureAbove: snap.Config.Thresholds.TemperatureAbove,
				HumidityBelow:    snap.Config.Thresholds.HumidityBelow,
			},
			Log:      snap.Config.LogTarget,
			Broker:   snap.Config.Broker,
			WSBroker: snap.Config.WSBroker,
			HTTPAddr: snap.Config.HTTPAddr,
		},
	}
	if snap.Latest != nil {
		rec := NewRecordJSON(*snap.Latest)
		inner.Latest = &rec
	}
	if snap.History != nil {
		sum := NewSummaryJSON(*snap.History)
		inner.History = &sum
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) ([]byte, error) {
	data, err := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode status: %w", err)
	}
	return data, nil
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) ([]byte, error) {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, err := json.Marshal(StatusJSON{Status: inner})
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", event, err)
	}
	return data, nil
}
