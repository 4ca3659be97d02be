// Package partition maps calendar dates to the storage units that hold one day of readings.
package partition

import (
	"errors"
	"fmt"
	"time"
)

const (
	layout      = "02_01_06"
	tablePrefix = "temp_data_table_"
	fileSuffix  = "_temp.csv"
)

// ErrInvalidKey reports a string that is not a dd_mm_yy partition key.
var ErrInvalidKey = errors.New("partition: invalid key")

// Key identifies one day's partition, rendered dd_mm_yy.
type Key string

// For derives the partition key from the local calendar date of t.
func For(t time.Time) Key {
	return Key(t.Format(layout))
}

// Parse validates a dd_mm_yy key.
func Parse(s string) (Key, error) {
	if _, err := time.ParseInLocation(layout, s, time.Local); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}
	return Key(s), nil
}

// Date returns local midnight of the partition's day.
func (k Key) Date() (time.Time, error) {
	t, err := time.ParseInLocation(layout, string(k), time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidKey, string(k))
	}
	return t, nil
}

// Next returns the key of the following day.
func (k Key) Next() (Key, error) {
	day, err := k.Date()
	if err != nil {
		return "", err
	}
	return For(day.AddDate(0, 0, 1)), nil
}

// Table is the staging table name for the partition.
func (k Key) Table() string {
	return tablePrefix + string(k)
}

// LogFile is the append-log file name for a station's partition.
func (k Key) LogFile(station string) string {
	return station + "_" + string(k) + fileSuffix
}

func (k Key) String() string {
	return string(k)
}
