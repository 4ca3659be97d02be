package service

import (
	"context"
	"sync"
	"time"

	"gridcast/backend/services/energy-service/internal/forecast"
	"gridcast/backend/services/energy-service/internal/models"
	"gridcast/backend/services/energy-service/internal/partition"
	"gridcast/backend/services/energy-service/internal/source"
)

type step struct {
	result source.Result
	err    error
}

// scriptedSource replays steps and then reports skipped ticks.
type scriptedSource struct {
	steps  []step
	seqs   []int64
	after  func()
	closed bool
}

func (s *scriptedSource) Next(_ context.Context, seq int64) (source.Result, error) {
	s.seqs = append(s.seqs, seq)
	if len(s.steps) == 0 {
		if s.after != nil {
			s.after()
		}
		return source.Skipped("exhausted"), nil
	}
	st := s.steps[0]
	s.steps = s.steps[1:]
	if st.err == nil && st.result.Status == source.StatusReading {
		st.result.Reading.SequenceID = seq
	}
	return st.result, st.err
}

func (s *scriptedSource) Close() error {
	s.closed = true
	return nil
}

type fakeLog struct {
	ensured   []partition.Key
	appended  []models.Reading
	ensureErr error
	appendErr error
}

func (f *fakeLog) EnsurePartition(key partition.Key, _ string) (bool, error) {
	if f.ensureErr != nil {
		return false, f.ensureErr
	}
	f.ensured = append(f.ensured, key)
	return true, nil
}

func (f *fakeLog) Append(r models.Reading) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appended = append(f.appended, r)
	return nil
}

type fakeStaging struct {
	mu        sync.Mutex
	ensured   []partition.Key
	inserted  []models.Reading
	recent    []models.Reading
	ensureErr error
	insertErr error
	readErr   error
	reads     []partition.Key
}

func (f *fakeStaging) EnsurePartition(_ context.Context, key partition.Key) (bool, error) {
	if f.ensureErr != nil {
		return false, f.ensureErr
	}
	f.ensured = append(f.ensured, key)
	return true, nil
}

func (f *fakeStaging) Insert(_ context.Context, r models.Reading) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, r)
	return nil
}

func (f *fakeStaging) ReadRecent(_ context.Context, key partition.Key, _ string, limit int) ([]models.Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads = append(f.reads, key)
	if f.readErr != nil {
		return nil, f.readErr
	}
	out := append([]models.Reading(nil), f.recent...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakePublisher struct {
	published []models.Reading
	err       error
}

func (f *fakePublisher) Publish(_ context.Context, r models.Reading) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, r)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

type fakeRecorder struct {
	ticks map[string]int
	sinks map[string]int
}

func newRecorder() *fakeRecorder {
	return &fakeRecorder{ticks: map[string]int{}, sinks: map[string]int{}}
}

func (f *fakeRecorder) Tick(outcome string)     { f.ticks[outcome]++ }
func (f *fakeRecorder) SinkFailure(sink string) { f.sinks[sink]++ }

type fakeHistorical struct {
	rows     []models.Reading
	stations []string
	err      error
	loads    int
}

func (f *fakeHistorical) LoadAll(context.Context) ([]models.Reading, error) {
	f.loads++
	return f.rows, f.err
}

func (f *fakeHistorical) Stations(context.Context) ([]string, error) {
	return f.stations, f.err
}

// sumModel predicts the sum of the features.
type sumModel struct{ calls int }

func (m *sumModel) NumFeatures() int { return forecast.NumFeatures }

func (m *sumModel) Predict(rows [][]float64) ([]float64, error) {
	m.calls++
	out := make([]float64, len(rows))
	for i, row := range rows {
		for _, v := range row {
			out[i] += v
		}
	}
	return out, nil
}

func reading(ts time.Time, energy float64) models.Reading {
	return models.Reading{
		StationID:   "station01",
		Timestamp:   ts,
		Voltage:     225,
		Current:     0.03,
		Power:       2,
		Energy:      energy,
		Frequency:   50,
		PowerFactor: 0.9,
	}
}

func produced(ts time.Time) step {
	return step{result: source.Produced(reading(ts, 0.5))}
}
