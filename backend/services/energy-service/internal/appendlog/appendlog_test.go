package appendlog

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridcast/backend/services/energy-service/internal/models"
	"gridcast/backend/services/energy-service/internal/partition"
)

func sampleReading(seq int64, ts time.Time) models.Reading {
	return models.Reading{
		StationID:   "station01",
		SequenceID:  seq,
		Timestamp:   ts,
		Voltage:     220.0,
		Current:     0.02,
		Power:       1.2,
		Energy:      0.003,
		Frequency:   50.0,
		PowerFactor: 0.99,
	}
}

func readAll(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestAppendWritesHeaderOnce(t *testing.T) {
	log, err := New(t.TempDir())
	require.NoError(t, err)

	ts := time.Date(2024, 11, 13, 10, 0, 0, 0, time.Local)
	require.NoError(t, log.Append(sampleReading(1, ts)))
	require.NoError(t, log.Append(sampleReading(2, ts.Add(time.Second))))

	path := log.Path(partition.For(ts), "station01")
	assert.Equal(t, "station01_13_11_24_temp.csv", filepath.Base(path))

	rows := readAll(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, Header, rows[0])
	assert.Equal(t, []string{"station01", "1", "2024-11-13 10:00:00.000000", "220.00", "0.02", "1.20", "0.003", "50.00", "0.99"}, rows[1])
	assert.Equal(t, "2", rows[2][1])
}

func TestAppendKeepsDuplicates(t *testing.T) {
	log, err := New(t.TempDir())
	require.NoError(t, err)

	ts := time.Date(2024, 11, 13, 10, 0, 0, 0, time.Local)
	r := sampleReading(1, ts)
	require.NoError(t, log.Append(r))
	require.NoError(t, log.Append(r))

	rows := readAll(t, log.Path(partition.For(ts), "station01"))
	assert.Len(t, rows, 3)
	assert.Equal(t, rows[1], rows[2])
}

func TestAppendRotatesAtMidnight(t *testing.T) {
	log, err := New(t.TempDir())
	require.NoError(t, err)

	late := time.Date(2024, 11, 13, 23, 59, 59, 0, time.Local)
	early := late.Add(2 * time.Second)
	require.NoError(t, log.Append(sampleReading(1, late)))
	require.NoError(t, log.Append(sampleReading(2, early)))

	first := readAll(t, log.Path(partition.For(late), "station01"))
	second := readAll(t, log.Path(partition.For(early), "station01"))
	assert.Len(t, first, 2)
	assert.Len(t, second, 2)
	assert.Equal(t, Header, second[0])
}

func TestEnsurePartitionIsIdempotent(t *testing.T) {
	log, err := New(t.TempDir())
	require.NoError(t, err)

	key := partition.Key("13_11_24")
	created, err := log.EnsurePartition(key, "station01")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = log.EnsurePartition(key, "station01")
	require.NoError(t, err)
	assert.False(t, created)

	ts := time.Date(2024, 11, 13, 9, 0, 0, 0, time.Local)
	require.NoError(t, log.Append(sampleReading(1, ts)))

	rows := readAll(t, log.Path(key, "station01"))
	require.Len(t, rows, 2)
	assert.Equal(t, Header, rows[0])
}

func TestAppendReportsUnwritableDirectory(t *testing.T) {
	dir := t.TempDir()
	log, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(dir))

	err = log.Append(sampleReading(1, time.Now()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "appendlog: open")
}
