package repository

import (
	"database/sql"
	"time"

	"gridcast/backend/services/energy-service/internal/models"
)

const readingColumns = `"Process_ID", "ID", "Timestamp", "Voltage", "Current", "Power", "Energy", "Frequency", "PF"`

type rowScanner interface {
	Scan(dest ...any) error
}

// scanReading tolerates NULL measurement columns; they read back as zero.
func scanReading(row rowScanner) (models.Reading, error) {
	var (
		station sql.NullString
		id      sql.NullInt64
		ts      time.Time
	)
	var voltage, current, power, energy, freq, pf sql.NullFloat64
	if err := row.Scan(&station, &id, &ts, &voltage, &current, &power, &energy, &freq, &pf); err != nil {
		return models.Reading{}, err
	}
	return models.Reading{
		StationID:   station.String,
		SequenceID:  id.Int64,
		Timestamp:   wallClock(ts),
		Voltage:     voltage.Float64,
		Current:     current.Float64,
		Power:       power.Float64,
		Energy:      energy.Float64,
		Frequency:   freq.Float64,
		PowerFactor: pf.Float64,
	}, nil
}

// wallClock reinterprets a TIMESTAMP WITHOUT TIME ZONE value, which the driver
// returns in UTC, as local wall-clock time.
func wallClock(t time.Time) time.Time {
	if t.Location() != time.UTC {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.Local)
}

func collect(rows *sql.Rows) ([]models.Reading, error) {
	defer rows.Close()

	var out []models.Reading
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
