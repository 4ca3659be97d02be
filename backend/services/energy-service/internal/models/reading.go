package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Reading is one sensor sample as captured by the acquisition loop.
type Reading struct {
	StationID   string    `db:"Process_ID" json:"station_id"`
	SequenceID  int64     `db:"ID" json:"sequence_id"`
	Timestamp   time.Time `db:"Timestamp" json:"timestamp"`
	Voltage     float64   `db:"Voltage" json:"voltage"`
	Current     float64   `db:"Current" json:"current"`
	Power       float64   `db:"Power" json:"power"`
	Energy      float64   `db:"Energy" json:"energy"`
	Frequency   float64   `db:"Frequency" json:"frequency"`
	PowerFactor float64   `db:"PF" json:"power_factor"`
}

// Column scales of the staging table; CSV rows use the same precision.
const (
	VoltageScale     = 2
	CurrentScale     = 2
	PowerScale       = 2
	EnergyScale      = 3
	FrequencyScale   = 2
	PowerFactorScale = 2
)

// Round returns the value rounded half away from zero to the given number of decimals.
func Round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// FormatFixed renders the value with exactly the given number of decimals.
func FormatFixed(v float64, places int32) string {
	return decimal.NewFromFloat(v).StringFixed(places)
}

// Normalized returns a copy with every measurement rounded to its column scale.
func (r Reading) Normalized() Reading {
	r.Voltage = Round(r.Voltage, VoltageScale)
	r.Current = Round(r.Current, CurrentScale)
	r.Power = Round(r.Power, PowerScale)
	r.Energy = Round(r.Energy, EnergyScale)
	r.Frequency = Round(r.Frequency, FrequencyScale)
	r.PowerFactor = Round(r.PowerFactor, PowerFactorScale)
	return r
}

// Ascending reverses a newest-first slice in place and returns it.
func Ascending(readings []Reading) []Reading {
	for i, j := 0, len(readings)-1; i < j; i, j = i+1, j-1 {
		readings[i], readings[j] = readings[j], readings[i]
	}
	return readings
}
