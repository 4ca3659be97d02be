package forecast

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
)

// Model kinds understood by LoadModel.
const (
	KindLinear       = "linear"
	KindRandomForest = "random_forest"
)

// artifact is the on-disk model document exported by the offline training job.
type artifact struct {
	Kind         string      `json:"kind"`
	Features     []string    `json:"features,omitempty"`
	Intercept    float64     `json:"intercept,omitempty"`
	Coefficients []float64   `json:"coefficients,omitempty"`
	Trees        []*treeSpec `json:"trees,omitempty"`
}

type treeSpec struct {
	Nodes []node `json:"nodes"`
}

// node follows scikit-learn's flattened tree layout: a leaf has Left == -1.
type node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
}

// LoadModel reads a model artifact from path.
func LoadModel(path string) (Regressor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("forecast: read model: %w", err)
	}
	return ParseModel(data)
}

// ParseModel decodes a JSON model artifact.
func ParseModel(data []byte) (Regressor, error) {
	var a artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("forecast: decode model: %w", err)
	}
	if len(a.Features) > 0 && !slices.Equal(a.Features, FeatureNames) {
		return nil, fmt.Errorf("%w: artifact features %v, want %v", ErrFeatureSchema, a.Features, FeatureNames)
	}

	switch a.Kind {
	case KindLinear:
		return NewLinearModel(a.Intercept, a.Coefficients)
	case KindRandomForest:
		return newForest(a.Trees)
	default:
		return nil, fmt.Errorf("forecast: unknown model kind %q", a.Kind)
	}
}

// LinearModel is intercept + coefficients·x.
type LinearModel struct {
	intercept    float64
	coefficients []float64
}

// NewLinearModel builds a linear regressor.
func NewLinearModel(intercept float64, coefficients []float64) (*LinearModel, error) {
	if len(coefficients) == 0 {
		return nil, errors.New("forecast: linear model without coefficients")
	}
	return &LinearModel{intercept: intercept, coefficients: slices.Clone(coefficients)}, nil
}

func (m *LinearModel) NumFeatures() int { return len(m.coefficients) }

func (m *LinearModel) Predict(rows [][]float64) ([]float64, error) {
	out := make([]float64, len(rows))
	for i, row := range rows {
		if len(row) != len(m.coefficients) {
			return nil, fmt.Errorf("%w: row %d has %d features, want %d", ErrFeatureSchema, i, len(row), len(m.coefficients))
		}
		sum := m.intercept
		for j, c := range m.coefficients {
			sum += c * row[j]
		}
		out[i] = sum
	}
	return out, nil
}

// ForestModel averages regression trees.
type ForestModel struct {
	trees    []*treeSpec
	features int
}

func newForest(trees []*treeSpec) (*ForestModel, error) {
	if len(trees) == 0 {
		return nil, errors.New("forecast: random forest without trees")
	}
	features := 0
	for ti, t := range trees {
		if t == nil || len(t.Nodes) == 0 {
			return nil, fmt.Errorf("forecast: tree %d is empty", ti)
		}
		for ni, n := range t.Nodes {
			if n.Left == -1 {
				continue
			}
			if n.Left <= ni || n.Right <= ni || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
				return nil, fmt.Errorf("forecast: tree %d node %d has invalid children", ti, ni)
			}
			if n.Feature < 0 {
				return nil, fmt.Errorf("forecast: tree %d node %d has negative feature", ti, ni)
			}
			features = max(features, n.Feature+1)
		}
	}
	// Trees that split on fewer columns still consume the full row.
	return &ForestModel{trees: trees, features: max(features, NumFeatures)}, nil
}

func (m *ForestModel) NumFeatures() int { return m.features }

func (m *ForestModel) Predict(rows [][]float64) ([]float64, error) {
	out := make([]float64, len(rows))
	for i, row := range rows {
		if len(row) != m.features {
			return nil, fmt.Errorf("%w: row %d has %d features, want %d", ErrFeatureSchema, i, len(row), m.features)
		}
		var sum float64
		for _, t := range m.trees {
			sum += t.eval(row)
		}
		out[i] = sum / float64(len(m.trees))
	}
	return out, nil
}

func (t *treeSpec) eval(row []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Left == -1 {
			return n.Value
		}
		if row[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}
