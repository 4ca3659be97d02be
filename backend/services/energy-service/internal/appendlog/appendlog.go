// Package appendlog writes every reading to a per-day, per-station CSV file that acts
// as the system of record when the staging database is unreachable.
package appendlog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gridcast/backend/services/energy-service/internal/models"
	"gridcast/backend/services/energy-service/internal/partition"
)

// TimestampLayout is how timestamps are written to the log.
const TimestampLayout = "2006-01-02 15:04:05.000000"

// Header lists the columns in file order.
var Header = []string{"Process_ID", "ID", "Timestamp", "Voltage", "Current", "Power", "Energy", "Frequency", "PF"}

// Log appends readings to CSV partitions under a directory.
type Log struct {
	dir string
}

// New returns a log rooted at dir, creating the directory if needed.
func New(dir string) (*Log, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("appendlog: create dir: %w", err)
	}
	return &Log{dir: dir}, nil
}

// Path returns the file a station's partition is written to.
func (l *Log) Path(key partition.Key, station string) string {
	return filepath.Join(l.dir, key.LogFile(station))
}

// EnsurePartition creates the partition file with its header if it does not exist yet.
func (l *Log) EnsurePartition(key partition.Key, station string) (bool, error) {
	path := l.Path(key, station)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("appendlog: create %s: %w", path, err)
	}
	defer f.Close()

	if err := writeRows(f, Header); err != nil {
		return false, fmt.Errorf("appendlog: write header %s: %w", path, err)
	}
	return true, nil
}

// Append writes one row to the reading's partition, adding the header when the
// file is new or empty. Duplicate deliveries produce duplicate rows.
func (l *Log) Append(r models.Reading) error {
	path := l.Path(partition.For(r.Timestamp), r.StationID)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("appendlog: open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("appendlog: stat %s: %w", path, err)
	}

	rows := [][]string{Record(r)}
	if info.Size() == 0 {
		rows = append([][]string{Header}, rows...)
	}
	if err := writeRows(f, rows...); err != nil {
		return fmt.Errorf("appendlog: write %s: %w", path, err)
	}
	return nil
}

// Record renders a reading in Header order.
func Record(r models.Reading) []string {
	return []string{
		r.StationID,
		strconv.FormatInt(r.SequenceID, 10),
		r.Timestamp.Format(TimestampLayout),
		models.FormatFixed(r.Voltage, models.VoltageScale),
		models.FormatFixed(r.Current, models.CurrentScale),
		models.FormatFixed(r.Power, models.PowerScale),
		models.FormatFixed(r.Energy, models.EnergyScale),
		models.FormatFixed(r.Frequency, models.FrequencyScale),
		models.FormatFixed(r.PowerFactor, models.PowerFactorScale),
	}
}

func writeRows(f *os.File, rows ...[]string) error {
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	return f.Sync()
}
