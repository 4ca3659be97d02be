// Package forecast turns a single-step energy regressor into point predictions and
// a recursive twelve-step, five-minute forecast.
package forecast

import (
	"errors"
	"fmt"
	"time"

	"gridcast/backend/services/energy-service/internal/models"
)

const (
	// NumFeatures is the width of the model input.
	NumFeatures = 5
	// Steps is the number of future points ForecastAhead produces.
	Steps = 12
	// StepInterval separates consecutive forecast points.
	StepInterval = 5 * time.Minute
)

// FeatureNames lists the model inputs in order.
var FeatureNames = []string{"Voltage", "Current", "Power", "Frequency", "PF"}

var (
	// ErrEmptyWindow is returned when there are no readings to predict from.
	ErrEmptyWindow = errors.New("forecast: empty reading window")
	// ErrFeatureSchema marks a mismatch between the model and the feature layout.
	ErrFeatureSchema = errors.New("forecast: feature schema mismatch")
)

// Regressor predicts one energy value per feature row.
type Regressor interface {
	Predict(rows [][]float64) ([]float64, error)
	NumFeatures() int
}

// Point is one predicted energy value.
type Point struct {
	Timestamp       time.Time `json:"timestamp"`
	PredictedEnergy float64   `json:"predicted_energy"`
}

// Features extracts the model input of a reading. Energy is the target and never an input.
func Features(r models.Reading) []float64 {
	return []float64{r.Voltage, r.Current, r.Power, r.Frequency, r.PowerFactor}
}

// PredictAtPoints predicts every reading independently and aligns the result to the
// readings' timestamps.
func PredictAtPoints(model Regressor, readings []models.Reading) ([]Point, error) {
	if len(readings) == 0 {
		return nil, ErrEmptyWindow
	}
	if err := checkSchema(model); err != nil {
		return nil, err
	}

	rows := make([][]float64, len(readings))
	for i, r := range readings {
		rows[i] = Features(r)
	}
	preds, err := predict(model, rows)
	if err != nil {
		return nil, err
	}

	out := make([]Point, len(readings))
	for i, r := range readings {
		out[i] = Point{Timestamp: r.Timestamp, PredictedEnergy: preds[i]}
	}
	return out, nil
}

// ForecastAhead rolls the model forward Steps times from the last reading.
//
// The state carried between steps is the last reading's five features. The model
// never sees energy as an input, so each step's prediction is not fed back and the
// state is identical at every step: a deterministic model yields the same value
// Steps times. This mirrors the trained feature schema and is intentional.
func ForecastAhead(model Regressor, readings []models.Reading) ([]Point, error) {
	if len(readings) == 0 {
		return nil, ErrEmptyWindow
	}
	if err := checkSchema(model); err != nil {
		return nil, err
	}

	last := readings[len(readings)-1]
	state := Features(last)

	out := make([]Point, 0, Steps)
	for i := 1; i <= Steps; i++ {
		preds, err := predict(model, [][]float64{append([]float64(nil), state...)})
		if err != nil {
			return nil, fmt.Errorf("forecast: step %d: %w", i, err)
		}
		out = append(out, Point{
			Timestamp:       last.Timestamp.Add(time.Duration(i) * StepInterval),
			PredictedEnergy: preds[0],
		})
	}
	return out, nil
}

// EnergyChange is the percent difference between the predicted and current energy.
// ok is false when current is zero.
func EnergyChange(current, predicted float64) (pct float64, ok bool) {
	if current == 0 {
		return 0, false
	}
	return (predicted - current) / current * 100, true
}

func checkSchema(model Regressor) error {
	if model == nil {
		return fmt.Errorf("%w: no model loaded", ErrFeatureSchema)
	}
	if n := model.NumFeatures(); n != NumFeatures {
		return fmt.Errorf("%w: model expects %d features, have %d", ErrFeatureSchema, n, NumFeatures)
	}
	return nil
}

func predict(model Regressor, rows [][]float64) ([]float64, error) {
	preds, err := model.Predict(rows)
	if err != nil {
		return nil, err
	}
	if len(preds) != len(rows) {
		return nil, fmt.Errorf("%w: model returned %d predictions for %d rows", ErrFeatureSchema, len(preds), len(rows))
	}
	return preds, nil
}
