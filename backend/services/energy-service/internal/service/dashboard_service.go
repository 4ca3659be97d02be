package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"gridcast/backend/services/energy-service/internal/forecast"
	"gridcast/backend/services/energy-service/internal/models"
	"gridcast/backend/services/energy-service/internal/partition"
	"gridcast/backend/services/energy-service/internal/repository"
)

// DefaultWindow is the number of recent readings in a real-time snapshot.
const DefaultWindow = 120

// Snapshot modes.
const (
	ModeRealTime   = "realtime"
	ModeHistorical = "historical"
)

// ErrInvalidRange is returned when a historical range starts after it ends.
var ErrInvalidRange = errors.New("dashboard: start date after end date")

// Snapshot is everything the dashboard renders for one station and mode.
// Readings are oldest first; Predictions align with them one to one.
type Snapshot struct {
	Station      string           `json:"station"`
	Mode         string           `json:"mode"`
	Readings     []models.Reading `json:"readings"`
	Predictions  []forecast.Point `json:"predictions"`
	Forecast     []forecast.Point `json:"forecast"`
	Current      *models.Reading  `json:"current,omitempty"`
	NextHour     *float64         `json:"next_hour_energy,omitempty"`
	EnergyChange *float64         `json:"energy_change_pct,omitempty"`
	GeneratedAt  time.Time        `json:"generated_at"`
}

// StagingReader is the read side of the staging store.
type StagingReader interface {
	ReadRecent(ctx context.Context, key partition.Key, station string, limit int) ([]models.Reading, error)
}

// HistoricalReader reads the historical table.
type HistoricalReader interface {
	LoadAll(ctx context.Context) ([]models.Reading, error)
	Stations(ctx context.Context) ([]string, error)
}

// ForecastStore caches forecasts by station and seeding reading.
type ForecastStore interface {
	Get(ctx context.Context, station string, last time.Time) ([]forecast.Point, bool, error)
	Save(ctx context.Context, station string, last time.Time, points []forecast.Point) error
}

// ForecastObserver receives forecast timings and cache counters.
type ForecastObserver interface {
	ForecastDuration(d time.Duration)
	CacheHit()
	CacheMiss()
}

// DashboardService serves the read path. Store failures degrade to empty results.
type DashboardService struct {
	staging    StagingReader
	historical HistoricalReader
	model      forecast.Regressor
	cache      ForecastStore
	observer   ForecastObserver
	window     int
	logger     *zap.Logger
	now        func() time.Time
}

// DashboardOption customizes a DashboardService.
type DashboardOption func(*DashboardService)

// WithForecastCache enables cache-aside forecasting.
func WithForecastCache(cache ForecastStore) DashboardOption {
	return func(s *DashboardService) { s.cache = cache }
}

// WithObserver records forecast metrics.
func WithObserver(o ForecastObserver) DashboardOption {
	return func(s *DashboardService) { s.observer = o }
}

// WithWindow overrides DefaultWindow.
func WithWindow(n int) DashboardOption {
	return func(s *DashboardService) {
		if n > 0 {
			s.window = n
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) DashboardOption {
	return func(s *DashboardService) { s.now = now }
}

// NewDashboardService returns service instance.
func NewDashboardService(staging StagingReader, historical HistoricalReader, model forecast.Regressor, logger *zap.Logger, opts ...DashboardOption) *DashboardService {
	s := &DashboardService{
		staging:    staging,
		historical: historical,
		model:      model,
		window:     DefaultWindow,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stations lists the selectable stations, AllStations first.
func (s *DashboardService) Stations(ctx context.Context) []string {
	out := []string{repository.AllStations}
	ids, err := s.historical.Stations(ctx)
	if err != nil {
		s.logger.Warn("failed to load stations", zap.Error(err))
		return out
	}
	return append(out, ids...)
}

// RealTime builds a snapshot from today's staging partition.
func (s *DashboardService) RealTime(ctx context.Context, station string) (Snapshot, error) {
	readings := s.recent(ctx, station)
	return s.snapshot(ctx, ModeRealTime, station, readings)
}

// Historical builds a snapshot over the local calendar days [start, end]. The table is
// read in full and filtered here by station and day.
func (s *DashboardService) Historical(ctx context.Context, station string, start, end time.Time) (Snapshot, error) {
	from := startOfDay(start)
	to := startOfDay(end).AddDate(0, 0, 1)
	if from.After(startOfDay(end)) {
		return Snapshot{}, ErrInvalidRange
	}

	all, err := s.historical.LoadAll(ctx)
	if err != nil {
		s.logger.Warn("historical store unavailable", zap.String("station", station), zap.Error(err))
		all = nil
	}
	return s.snapshot(ctx, ModeHistorical, station, filterRange(all, station, from, to))
}

// Forecast returns the twelve-step forecast seeded by the station's latest reading.
func (s *DashboardService) Forecast(ctx context.Context, station string) ([]forecast.Point, error) {
	readings := s.recent(ctx, station)
	if len(readings) == 0 {
		return []forecast.Point{}, nil
	}
	return s.forecast(ctx, station, readings)
}

func (s *DashboardService) recent(ctx context.Context, station string) []models.Reading {
	key := partition.For(s.now())
	readings, err := s.staging.ReadRecent(ctx, key, station, s.window)
	if err != nil {
		if errors.Is(err, repository.ErrPartitionMissing) {
			s.logger.Debug("no staging partition yet", zap.String("table", key.Table()))
		} else {
			s.logger.Warn("staging store unavailable", zap.String("station", station), zap.Error(err))
		}
		return nil
	}
	return models.Ascending(readings)
}

func (s *DashboardService) snapshot(ctx context.Context, mode, station string, readings []models.Reading) (Snapshot, error) {
	snap := Snapshot{
		Station:     station,
		Mode:        mode,
		Readings:    []models.Reading{},
		Predictions: []forecast.Point{},
		Forecast:    []forecast.Point{},
		GeneratedAt: s.now(),
	}
	if len(readings) == 0 {
		return snap, nil
	}
	snap.Readings = readings

	predictions, err := forecast.PredictAtPoints(s.model, readings)
	if err != nil {
		return Snapshot{}, fmt.Errorf("dashboard: predict: %w", err)
	}
	snap.Predictions = predictions

	ahead, err := s.forecast(ctx, station, readings)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Forecast = ahead

	current := readings[len(readings)-1]
	snap.Current = &current
	next := ahead[len(ahead)-1].PredictedEnergy
	snap.NextHour = &next
	if pct, ok := forecast.EnergyChange(current.Energy, next); ok {
		snap.EnergyChange = &pct
	}
	return snap, nil
}

func (s *DashboardService) forecast(ctx context.Context, station string, readings []models.Reading) ([]forecast.Point, error) {
	last := readings[len(readings)-1].Timestamp
	if s.cache != nil {
		points, ok, err := s.cache.Get(ctx, station, last)
		switch {
		case err != nil:
			s.logger.Warn("forecast cache unavailable", zap.Error(err))
		case ok && len(points) == forecast.Steps:
			s.observe(func(o ForecastObserver) { o.CacheHit() })
			return points, nil
		case ok:
			s.logger.Warn("ignoring malformed cached forecast", zap.String("station", station), zap.Int("points", len(points)))
			s.observe(func(o ForecastObserver) { o.CacheMiss() })
		default:
			s.observe(func(o ForecastObserver) { o.CacheMiss() })
		}
	}

	start := time.Now()
	points, err := forecast.ForecastAhead(s.model, readings)
	if err != nil {
		return nil, fmt.Errorf("dashboard: forecast: %w", err)
	}
	elapsed := time.Since(start)
	s.observe(func(o ForecastObserver) { o.ForecastDuration(elapsed) })

	if s.cache != nil {
		if err := s.cache.Save(ctx, station, last, points); err != nil {
			s.logger.Warn("failed to cache forecast", zap.Error(err))
		}
	}
	return points, nil
}

func (s *DashboardService) observe(fn func(ForecastObserver)) {
	if s.observer != nil {
		fn(s.observer)
	}
}

// filterRange keeps the readings of station within [from, to), preserving order.
// station "" or AllStations keeps every station.
func filterRange(readings []models.Reading, station string, from, to time.Time) []models.Reading {
	all := station == "" || strings.EqualFold(station, repository.AllStations)
	var out []models.Reading
	for _, r := range readings {
		if !all && r.StationID != station {
			continue
		}
		if r.Timestamp.Before(from) || !r.Timestamp.Before(to) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
