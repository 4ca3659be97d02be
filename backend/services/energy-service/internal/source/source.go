// Package source produces readings from a serial-attached meter or a synthetic generator.
package source

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gridcast/backend/services/energy-service/internal/models"
)

// FieldCount is the number of comma-separated fields in one meter record:
// station, voltage, current, power, energy, frequency, power factor.
const FieldCount = 7

const delimiter = ","

var (
	// ErrFieldCount reports a record that does not split into FieldCount fields.
	ErrFieldCount = errors.New("source: unexpected field count")
	// ErrMalformed reports a record whose fields cannot be parsed.
	ErrMalformed = errors.New("source: malformed record")
)

// Status tells the acquisition loop what a tick produced.
type Status int

const (
	// StatusReading means Result.Reading holds a new sample.
	StatusReading Status = iota
	// StatusSkipped means nothing usable arrived this tick; not an error.
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusReading:
		return "reading"
	case StatusSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result is the outcome of one successful poll. Failed polls return an error instead.
type Result struct {
	Status  Status
	Reading models.Reading
	Reason  string
}

// Produced wraps a new sample.
func Produced(r models.Reading) Result {
	return Result{Status: StatusReading, Reading: r}
}

// Skipped records why a tick yielded nothing.
func Skipped(reason string) Result {
	return Result{Status: StatusSkipped, Reason: reason}
}

// Source is polled once per acquisition tick.
type Source interface {
	Next(ctx context.Context, sequenceID int64) (Result, error)
	Close() error
}

// FormatData converts the fields of one meter record into a Reading stamped with
// the configured station, the given sequence id and the acquisition time.
func FormatData(sequenceID int64, station string, fields []string, now time.Time) (models.Reading, error) {
	if len(fields) != FieldCount {
		return models.Reading{}, fmt.Errorf("%w: got %d, want %d", ErrFieldCount, len(fields), FieldCount)
	}
	if strings.TrimSpace(fields[0]) == "" {
		return models.Reading{}, fmt.Errorf("%w: empty station field", ErrMalformed)
	}

	var values [FieldCount - 1]float64
	for i := range values {
		raw := strings.TrimSpace(fields[i+1])
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return models.Reading{}, fmt.Errorf("%w: field %d %q", ErrMalformed, i+1, raw)
		}
		values[i] = v
	}

	return models.Reading{
		StationID:   station,
		SequenceID:  sequenceID,
		Timestamp:   now,
		Voltage:     values[0],
		Current:     values[1],
		Power:       values[2],
		Energy:      values[3],
		Frequency:   values[4],
		PowerFactor: values[5],
	}, nil
}

// ParseLine splits a newline-terminated record and formats it.
func ParseLine(sequenceID int64, station, line string, now time.Time) (models.Reading, error) {
	line = strings.TrimSpace(line)
	return FormatData(sequenceID, station, strings.Split(line, delimiter), now)
}
