package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gridcast/backend/services/energy-service/internal/forecast"
	"gridcast/backend/services/energy-service/internal/models"
	"gridcast/backend/services/energy-service/internal/partition"
	"gridcast/backend/services/energy-service/internal/repository"
)

type memCache struct {
	entries map[string][]forecast.Point
	getErr  error
	saves   int
}

func newMemCache() *memCache { return &memCache{entries: map[string][]forecast.Point{}} }

func (c *memCache) key(station string, last time.Time) string {
	return fmt.Sprintf("%s:%d", station, last.Unix())
}

func (c *memCache) Get(_ context.Context, station string, last time.Time) ([]forecast.Point, bool, error) {
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	p, ok := c.entries[c.key(station, last)]
	return p, ok, nil
}

func (c *memCache) Save(_ context.Context, station string, last time.Time, points []forecast.Point) error {
	c.saves++
	c.entries[c.key(station, last)] = points
	return nil
}

type countingObserver struct {
	hits, misses, forecasts int
}

func (o *countingObserver) ForecastDuration(time.Duration) { o.forecasts++ }
func (o *countingObserver) CacheHit()                      { o.hits++ }
func (o *countingObserver) CacheMiss()                     { o.misses++ }

var noon = time.Date(2024, 3, 10, 12, 0, 0, 0, time.Local)

// newestFirst mimics the staging store ordering.
func newestFirst(n int) []models.Reading {
	out := make([]models.Reading, n)
	for i := range out {
		out[i] = reading(noon.Add(-time.Duration(i)*time.Minute), 0.5)
	}
	return out
}

func newDashboard(staging *fakeStaging, hist *fakeHistorical, opts ...DashboardOption) *DashboardService {
	opts = append([]DashboardOption{WithClock(func() time.Time { return noon })}, opts...)
	return NewDashboardService(staging, hist, &sumModel{}, zap.NewNop(), opts...)
}

func TestRealTimeSnapshot(t *testing.T) {
	staging := &fakeStaging{recent: newestFirst(3)}
	svc := newDashboard(staging, &fakeHistorical{})

	snap, err := svc.RealTime(context.Background(), "station01")
	require.NoError(t, err)

	assert.Equal(t, ModeRealTime, snap.Mode)
	assert.Equal(t, []partition.Key{"10_03_24"}, staging.reads)
	require.Len(t, snap.Readings, 3)
	assert.True(t, snap.Readings[0].Timestamp.Before(snap.Readings[2].Timestamp))
	require.Len(t, snap.Predictions, 3)
	assert.Equal(t, snap.Readings[1].Timestamp, snap.Predictions[1].Timestamp)
	require.Len(t, snap.Forecast, forecast.Steps)
	assert.Equal(t, noon.Add(time.Hour), snap.Forecast[11].Timestamp)

	require.NotNil(t, snap.Current)
	assert.Equal(t, noon, snap.Current.Timestamp)
	require.NotNil(t, snap.NextHour)
	assert.Equal(t, snap.Forecast[11].PredictedEnergy, *snap.NextHour)
	require.NotNil(t, snap.EnergyChange)
	assert.InDelta(t, (*snap.NextHour-0.5)/0.5*100, *snap.EnergyChange, 1e-9)
}

func TestRealTimeWindowLimit(t *testing.T) {
	staging := &fakeStaging{recent: newestFirst(10)}
	svc := newDashboard(staging, &fakeHistorical{}, WithWindow(4))

	snap, err := svc.RealTime(context.Background(), repository.AllStations)
	require.NoError(t, err)
	assert.Len(t, snap.Readings, 4)
	assert.Equal(t, noon, snap.Readings[3].Timestamp)
}

func TestRealTimeDegradesToEmpty(t *testing.T) {
	for name, readErr := range map[string]error{
		"store down":        errors.New("connection refused"),
		"partition missing": repository.ErrPartitionMissing,
	} {
		t.Run(name, func(t *testing.T) {
			svc := newDashboard(&fakeStaging{readErr: readErr}, &fakeHistorical{})

			snap, err := svc.RealTime(context.Background(), "station01")
			require.NoError(t, err)
			assert.NotNil(t, snap.Readings)
			assert.Empty(t, snap.Readings)
			assert.Empty(t, snap.Forecast)
			assert.Nil(t, snap.Current)
			assert.Nil(t, snap.NextHour)
		})
	}
}

func TestRealTimeZeroEnergyHasNoChange(t *testing.T) {
	staging := &fakeStaging{recent: []models.Reading{reading(noon, 0)}}
	svc := newDashboard(staging, &fakeHistorical{})

	snap, err := svc.RealTime(context.Background(), "station01")
	require.NoError(t, err)
	assert.NotNil(t, snap.NextHour)
	assert.Nil(t, snap.EnergyChange)
}

func TestRealTimeSchemaErrorSurfaces(t *testing.T) {
	staging := &fakeStaging{recent: newestFirst(2)}
	svc := NewDashboardService(staging, &fakeHistorical{}, nil, zap.NewNop())

	_, err := svc.RealTime(context.Background(), "station01")
	assert.ErrorIs(t, err, forecast.ErrFeatureSchema)
}

func TestHistoricalRange(t *testing.T) {
	other := reading(noon, 0.9)
	other.StationID = "station02"
	rows := []models.Reading{
		reading(time.Date(2024, 3, 8, 23, 59, 59, 0, time.Local), 0.1),
		reading(time.Date(2024, 3, 9, 0, 0, 0, 0, time.Local), 0.4),
		other,
		reading(noon, 0.6),
		reading(time.Date(2024, 3, 10, 23, 59, 59, 0, time.Local), 0.7),
		reading(time.Date(2024, 3, 11, 0, 0, 0, 0, time.Local), 0.8),
	}
	hist := &fakeHistorical{rows: rows}
	svc := newDashboard(&fakeStaging{}, hist)

	start := time.Date(2024, 3, 9, 15, 0, 0, 0, time.Local)
	end := time.Date(2024, 3, 10, 8, 0, 0, 0, time.Local)
	snap, err := svc.Historical(context.Background(), "station01", start, end)
	require.NoError(t, err)

	assert.Equal(t, 1, hist.loads)
	assert.Equal(t, ModeHistorical, snap.Mode)
	require.Len(t, snap.Readings, 3)
	assert.Equal(t, 0.4, snap.Readings[0].Energy)
	assert.Equal(t, 0.6, snap.Readings[1].Energy)
	assert.Equal(t, 0.7, snap.Readings[2].Energy)
	assert.Len(t, snap.Predictions, 3)
	assert.Len(t, snap.Forecast, forecast.Steps)
}

func TestHistoricalOverallKeepsEveryStation(t *testing.T) {
	other := reading(noon.Add(time.Minute), 0.9)
	other.StationID = "station02"
	hist := &fakeHistorical{rows: []models.Reading{reading(noon, 0.6), other}}
	svc := newDashboard(&fakeStaging{}, hist)

	snap, err := svc.Historical(context.Background(), repository.AllStations, noon, noon)
	require.NoError(t, err)
	require.Len(t, snap.Readings, 2)
	assert.Equal(t, "station02", snap.Readings[1].StationID)

	snap, err = svc.Historical(context.Background(), "station03", noon, noon)
	require.NoError(t, err)
	assert.Empty(t, snap.Readings)
}

func TestHistoricalRejectsInvertedRange(t *testing.T) {
	svc := newDashboard(&fakeStaging{}, &fakeHistorical{})

	_, err := svc.Historical(context.Background(), "station01", noon, noon.AddDate(0, 0, -1))
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = svc.Historical(context.Background(), "station01", noon, noon.Add(-time.Hour))
	assert.NoError(t, err)
}

func TestHistoricalDegradesToEmpty(t *testing.T) {
	svc := newDashboard(&fakeStaging{}, &fakeHistorical{err: errors.New("timeout")})

	snap, err := svc.Historical(context.Background(), "station01", noon, noon)
	require.NoError(t, err)
	assert.Empty(t, snap.Readings)
}

func TestStations(t *testing.T) {
	svc := newDashboard(&fakeStaging{}, &fakeHistorical{stations: []string{"station01", "station02"}})
	assert.Equal(t, []string{"Overall", "station01", "station02"}, svc.Stations(context.Background()))

	svc = newDashboard(&fakeStaging{}, &fakeHistorical{err: errors.New("down")})
	assert.Equal(t, []string{"Overall"}, svc.Stations(context.Background()))
}

func TestForecastCacheAside(t *testing.T) {
	cache := newMemCache()
	obs := &countingObserver{}
	model := &sumModel{}
	svc := NewDashboardService(&fakeStaging{recent: newestFirst(5)}, &fakeHistorical{}, model, zap.NewNop(),
		WithClock(func() time.Time { return noon }), WithForecastCache(cache), WithObserver(obs))

	first, err := svc.Forecast(context.Background(), "station01")
	require.NoError(t, err)
	require.Len(t, first, forecast.Steps)
	assert.Equal(t, forecast.Steps, model.calls)
	assert.Equal(t, 1, cache.saves)
	assert.Equal(t, 1, obs.misses)

	second, err := svc.Forecast(context.Background(), "station01")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, forecast.Steps, model.calls)
	assert.Equal(t, 1, obs.hits)
	assert.Equal(t, 1, obs.forecasts)
}

func TestRealTimeIgnoresMalformedCachedForecast(t *testing.T) {
	cache := newMemCache()
	cache.entries[cache.key("station01", noon)] = []forecast.Point{}
	obs := &countingObserver{}
	svc := newDashboard(&fakeStaging{recent: newestFirst(3)}, &fakeHistorical{}, WithForecastCache(cache), WithObserver(obs))

	var snap Snapshot
	require.NotPanics(t, func() {
		var err error
		snap, err = svc.RealTime(context.Background(), "station01")
		require.NoError(t, err)
	})
	assert.Len(t, snap.Forecast, forecast.Steps)
	require.NotNil(t, snap.NextHour)
	assert.Equal(t, 0, obs.hits)
	assert.Equal(t, 1, obs.misses)
	assert.Len(t, cache.entries[cache.key("station01", noon)], forecast.Steps)
}

func TestForecastFallsBackWhenCacheFails(t *testing.T) {
	cache := newMemCache()
	cache.getErr = errors.New("redis down")
	svc := newDashboard(&fakeStaging{recent: newestFirst(1)}, &fakeHistorical{}, WithForecastCache(cache))

	points, err := svc.Forecast(context.Background(), "station01")
	require.NoError(t, err)
	assert.Len(t, points, forecast.Steps)
}

func TestForecastWithoutData(t *testing.T) {
	svc := newDashboard(&fakeStaging{}, &fakeHistorical{})

	points, err := svc.Forecast(context.Background(), "station01")
	require.NoError(t, err)
	assert.NotNil(t, points)
	assert.Empty(t, points)
}
