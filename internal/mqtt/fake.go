package mqtt

import (
	"github.com/sweeney/landfill-aeration/internal/history"
	"github.com/sweeney/landfill-aeration/internal/logic"
)

// FakePublisher records published messages for test assertions.
type FakePublisher struct {
	// Records contains every live record that was published.
	Records []logic.Record

	// Payloads contains the JSON payloads for live records.
	Payloads [][]byte

	// Histories contains every history set that was published.
	Histories []history.Set

	// HistoryPayloads contains the JSON payloads for history summaries.
	HistoryPayloads [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// PublishError, if set, will be returned by PublishLive and PublishHistory.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// PublishLive records the live record.
func (f *FakePublisher) PublishLive(rec logic.Record) error {
	if f.PublishError != nil {
		return f.PublishError
	}

	payload, err := FormatPayload(rec)
	if err != nil {
		return err
	}
	f.Records = append(f.Records, rec)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishHistory records the history set.
func (f *FakePublisher) PublishHistory(set history.Set) error {
	if f.PublishError != nil {
		return f.PublishError
	}

	payload, err := FormatHistoryPayload(set)
	if err != nil {
		return err
	}
	f.Histories = append(f.Histories, set)
	f.HistoryPayloads = append(f.HistoryPayloads, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	return f.Connected
}
