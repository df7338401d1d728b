package model

import (
	"context"
	"fmt"

	"mlserve-backend/internal/dataset"
)

// LinearModel is the artifact produced by SGDTrainer: a linear regressor
// over the materialized feature columns.
type LinearModel struct {
	Columns []string  `json:"columns"`
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
}

func (m *LinearModel) String() string {
	return fmt.Sprintf("LinearModel(columns=%v, weights=%v, bias=%v)", m.Columns, m.Weights, m.Bias)
}

func (m *LinearModel) score(row []float64) float64 {
	prediction := m.Bias
	for i, w := range m.Weights {
		prediction += w * row[i]
	}
	return prediction
}

// SGDTrainer fits a LinearModel by stochastic gradient descent on squared
// error. Training inputs carry the records (each with a "target" value)
// plus the declared hyperparameters "epochs" and "learning_rate".
type SGDTrainer struct {
	provider dataset.Provider
}

func NewSGDTrainer(provider dataset.Provider) *SGDTrainer {
	return &SGDTrainer{provider: provider}
}

func (t *SGDTrainer) Hyperparameters() map[string]ParamType {
	return map[string]ParamType{
		"epochs":        IntParam,
		"learning_rate": FloatParam,
	}
}

func (t *SGDTrainer) Train(ctx context.Context, inputs map[string]any) (any, map[string]any, error) {
	records, err := dataset.ToRecords(inputs["records"])
	if err != nil {
		return nil, nil, fmt.Errorf("invalid training records: %w", err)
	}

	epochs, err := intInput(inputs, "epochs", 10)
	if err != nil {
		return nil, nil, err
	}
	learningRate, err := floatInput(inputs, "learning_rate", 0.01)
	if err != nil {
		return nil, nil, err
	}

	features, targets, err := t.split(records)
	if err != nil {
		return nil, nil, err
	}

	linear := &LinearModel{
		Columns: features.Columns,
		Weights: make([]float64, len(features.Columns)),
	}

	var mse float64
	for epoch := 0; epoch < epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		mse = 0
		for i, row := range features.Rows {
			residual := linear.score(row) - targets[i]
			mse += residual * residual

			step := learningRate * residual
			for j := range linear.Weights {
				linear.Weights[j] -= step * row[j]
			}
			linear.Bias -= step
		}
		mse /= float64(len(features.Rows))
	}

	metrics := map[string]any{
		"mse":     mse,
		"epochs":  epochs,
		"samples": len(features.Rows),
	}

	return linear, metrics, nil
}

func (t *SGDTrainer) split(records []map[string]any) (dataset.Features, []float64, error) {
	targets := make([]float64, len(records))
	stripped := make([]map[string]any, len(records))

	for i, record := range records {
		raw, ok := record["target"]
		if !ok {
			return dataset.Features{}, nil, fmt.Errorf("training record %d is missing 'target'", i)
		}
		target, ok := asFloat(raw)
		if !ok {
			return dataset.Features{}, nil, fmt.Errorf("training record %d has non-numeric 'target'", i)
		}
		targets[i] = target

		rest := make(map[string]any, len(record)-1)
		for column, value := range record {
			if column != "target" {
				rest[column] = value
			}
		}
		stripped[i] = rest
	}

	features, err := t.provider.MaterializeFeatures(stripped)
	if err != nil {
		return dataset.Features{}, nil, err
	}

	return features, targets, nil
}

// LinearPredictor scores assembled predict inputs against the LinearModel
// carried under the "model" key.
type LinearPredictor struct {
	provider dataset.Provider
}

func NewLinearPredictor(provider dataset.Provider) *LinearPredictor {
	return &LinearPredictor{provider: provider}
}

func (p *LinearPredictor) Predict(ctx context.Context, inputs map[string]any) (any, error) {
	linear, ok := inputs["model"].(*LinearModel)
	if !ok {
		return nil, fmt.Errorf("predict inputs carry no local model artifact")
	}

	features, err := p.features(inputs)
	if err != nil {
		return nil, err
	}
	if len(features.Columns) != len(linear.Columns) {
		return nil, fmt.Errorf("feature columns %v do not match trained columns %v", features.Columns, linear.Columns)
	}

	predictions := make([]float64, len(features.Rows))
	for i, row := range features.Rows {
		predictions[i] = linear.score(row)
	}

	return predictions, nil
}

func (p *LinearPredictor) features(inputs map[string]any) (dataset.Features, error) {
	if raw, ok := inputs["features"]; ok {
		if features, ok := raw.(dataset.Features); ok {
			return features, nil
		}
		records, err := dataset.ToRecords(raw)
		if err != nil {
			return dataset.Features{}, fmt.Errorf("invalid features: %w", err)
		}
		return p.provider.MaterializeFeatures(records)
	}

	if raw, ok := inputs["records"]; ok {
		records, err := dataset.ToRecords(raw)
		if err != nil {
			return dataset.Features{}, fmt.Errorf("invalid records: %w", err)
		}
		return p.provider.MaterializeFeatures(records)
	}

	return dataset.Features{}, fmt.Errorf("predict inputs carry neither 'features' nor 'records'")
}

func intInput(inputs map[string]any, key string, fallback int) (int, error) {
	raw, ok := inputs[key]
	if !ok {
		return fallback, nil
	}
	value, ok := asFloat(raw)
	if !ok {
		return 0, fmt.Errorf("input %q is not an integer", key)
	}
	return int(value), nil
}

func floatInput(inputs map[string]any, key string, fallback float64) (float64, error) {
	raw, ok := inputs[key]
	if !ok {
		return fallback, nil
	}
	value, ok := asFloat(raw)
	if !ok {
		return 0, fmt.Errorf("input %q is not numeric", key)
	}
	return value, nil
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
