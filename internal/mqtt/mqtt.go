// Package mqtt publishes aeration readings, history summaries and system
// lifecycle events, with an abstraction for testing.
package mqtt

import (
	"time"

	"github.com/segmentio/encoding/json"

	"github.com/sweeney/landfill-aeration/internal/history"
	"github.com/sweeney/landfill-aeration/internal/logic"
	"github.com/sweeney/landfill-aeration/internal/status"
)

// TopicReadings carries one message per monitoring tick.
const TopicReadings = "landfill/aeration/readings"

// TopicHistory carries the retained summary of the full log.
const TopicHistory = "landfill/aeration/history"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "landfill/aeration/system"

// Publisher publishes aeration data to MQTT.
type Publisher interface {
	// PublishLive sends the latest record to the broker.
	// Returns error if publishing fails (should not crash the process).
	PublishLive(rec logic.Record) error

	// PublishHistory sends a summary of the reloaded log.
	PublishHistory(set history.Set) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload is the live reading message.
type Payload struct {
	Aeration status.RecordJSON `json:"aeration"`
}

// FormatPayload creates the JSON payload for one record.
func FormatPayload(rec logic.Record) ([]byte, error) {
	return json.Marshal(Payload{Aeration: status.NewRecordJSON(rec)})
}

// HistoryPayload is the history summary message.
type HistoryPayload struct {
	History status.SummaryJSON `json:"history"`
}

// FormatHistoryPayload summarises the set into a JSON payload.
func FormatHistoryPayload(set history.Set) ([]byte, error) {
	return json.Marshal(HistoryPayload{History: status.NewSummaryJSON(set.Summary())})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
