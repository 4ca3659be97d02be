package source

import (
	"context"
	"math/rand/v2"
	"time"

	"gridcast/backend/services/energy-service/internal/models"
)

type span struct {
	lo, hi float64
	places int32
}

var (
	voltageSpan     = span{220, 230, models.VoltageScale}
	currentSpan     = span{0.01, 0.05, models.CurrentScale}
	powerSpan       = span{0, 5, models.PowerScale}
	energySpan      = span{0, 1, models.EnergyScale}
	frequencySpan   = span{49.8, 50.2, models.FrequencyScale}
	powerFactorSpan = span{0, 1, models.PowerFactorScale}
)

// MockSource synthesizes plausible readings for demos and tests without hardware.
type MockSource struct {
	station  string
	interval time.Duration
	rnd      *rand.Rand
	now      func() time.Time
}

// NewMockSource builds a generator. interval paces ticks; zero disables pacing.
// A nil rnd draws from a randomly seeded PCG.
func NewMockSource(station string, interval time.Duration, rnd *rand.Rand) *MockSource {
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &MockSource{
		station:  station,
		interval: interval,
		rnd:      rnd,
		now:      time.Now,
	}
}

// Next waits for the pacing interval and returns a synthetic reading.
func (m *MockSource) Next(ctx context.Context, sequenceID int64) (Result, error) {
	if m.interval > 0 {
		timer := time.NewTimer(m.interval)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	return Produced(models.Reading{
		StationID:   m.station,
		SequenceID:  sequenceID,
		Timestamp:   m.now(),
		Voltage:     m.draw(voltageSpan),
		Current:     m.draw(currentSpan),
		Power:       m.draw(powerSpan),
		Energy:      m.draw(energySpan),
		Frequency:   m.draw(frequencySpan),
		PowerFactor: m.draw(powerFactorSpan),
	}), nil
}

func (m *MockSource) draw(s span) float64 {
	return models.Round(s.lo+m.rnd.Float64()*(s.hi-s.lo), s.places)
}

// Close is a no-op.
func (m *MockSource) Close() error { return nil }
