// Package store provides the append-only aeration log.
//
// Each record is written in a single append and never rewritten. Readers
// rebuild the full history on every call and skip rows they cannot parse
// rather than failing the whole read.
package store

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/sweeney/landfill-aeration/internal/logic"
)

// TimeLayout is the timestamp column format, local time, second precision.
const TimeLayout = "2006-01-02 15:04:05"

// Columns is the fixed column order. It must never change: old rows are
// decoded positionally.
var Columns = []string{"timestamp", "temperature", "oxygen", "humidity", "pH", "status"}

// Store persists records and reads them back in write order.
type Store interface {
	// Append durably records exactly one record.
	Append(rec logic.Record) error
	// ReadAll returns every well-formed record. A store that does not exist
	// yet yields an empty slice and no error.
	ReadAll() ([]logic.Record, error)
}

// LogWriteError is returned when a record could not be appended.
type LogWriteError struct {
	Target string
	Err    error
}

func (e *LogWriteError) Error() string {
	return fmt.Sprintf("append to %s: %v", e.Target, e.Err)
}

func (e *LogWriteError) Unwrap() error { return e.Err }

// MalformedRowError describes a row that was skipped during ReadAll.
type MalformedRowError struct {
	Line int
	Raw  string
	Err  error
}

func (e *MalformedRowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *MalformedRowError) Unwrap() error { return e.Err }

// SkipFunc is notified of every skipped row.
type SkipFunc func(err *MalformedRowError)

// formatRow renders a record in column order.
func formatRow(rec logic.Record) []string {
	return []string{
		rec.Timestamp.Local().Format(TimeLayout),
		formatFloat(rec.Reading.Temperature),
		formatFloat(rec.Reading.Oxygen),
		formatFloat(rec.Reading.Humidity),
		formatFloat(rec.Reading.PH),
		string(rec.Decision),
	}
}

// parseRow decodes one row in column order. Fractional seconds after the
// seconds field are accepted, which covers logs written with microseconds.
func parseRow(fields []string) (logic.Record, error) {
	if len(fields) != len(Columns) {
		return logic.Record{}, fmt.Errorf("expected %d columns, got %d", len(Columns), len(fields))
	}

	ts, err := time.ParseInLocation(TimeLayout, fields[0], time.Local)
	if err != nil {
		return logic.Record{}, fmt.Errorf("timestamp: %w", err)
	}

	var vals [4]float64
	for i := range vals {
		v, err := strconv.ParseFloat(fields[i+1], 64)
		if err != nil {
			return logic.Record{}, fmt.Errorf("%s: %w", Columns[i+1], err)
		}
		if err := checkFinite(Columns[i+1], v); err != nil {
			return logic.Record{}, err
		}
		vals[i] = v
	}

	d, err := logic.ParseDecision(fields[5])
	if err != nil {
		return logic.Record{}, err
	}

	return logic.Record{
		Timestamp: ts,
		Reading: logic.Reading{
			Temperature: vals[0],
			Oxygen:      vals[1],
			Humidity:    vals[2],
			PH:          vals[3],
		},
		Decision: d,
	}, nil
}

// checkFinite rejects NaN and infinities; they cannot be rendered as JSON.
func checkFinite(column string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%s: non-finite value %v", column, v)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
