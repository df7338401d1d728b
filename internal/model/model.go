package model

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ParamType is the declared type of a model hyperparameter. Declared
// hyperparameters shape the accepted input schema of the train endpoint at
// service construction time.
type ParamType string

const (
	IntParam    ParamType = "int"
	FloatParam  ParamType = "float"
	StringParam ParamType = "string"
	BoolParam   ParamType = "bool"
)

// ErrNotTrained is returned when a locally sourced model is requested before
// any local train has succeeded.
var ErrNotTrained = errors.New("trained model not found")

// Trainer is the local training hook of a model handle. It returns the
// trained model artifact and its metrics.
type Trainer interface {
	Train(ctx context.Context, inputs map[string]any) (any, map[string]any, error)
}

// Predictor is the local scoring hook. The assembled inputs always carry the
// resolved model under key "model".
type Predictor interface {
	Predict(ctx context.Context, inputs map[string]any) (any, error)
}

type Config struct {
	// Name is the base workflow name, e.g. "digits" resolves the train
	// workflow "digits.train".
	Name string

	Hyperparameters map[string]ParamType

	Trainer   Trainer
	Predictor Predictor
}

// Handle is the in-process representation of a trainable, servable model:
// its workflow bindings, hyperparameter declaration, local execution hooks,
// and the latest locally trained model.
type Handle struct {
	name            string
	hyperparameters map[string]ParamType
	trainer         Trainer
	predictor       Predictor

	mu            sync.RWMutex
	latestModel   any
	latestMetrics map[string]any
	trained       bool
}

func NewHandle(cfg Config) *Handle {
	return &Handle{
		name:            cfg.Name,
		hyperparameters: cfg.Hyperparameters,
		trainer:         cfg.Trainer,
		predictor:       cfg.Predictor,
	}
}

func (h *Handle) Name() string { return h.name }

func (h *Handle) Hyperparameters() map[string]ParamType { return h.hyperparameters }

// Workflow name resolution; a caller-supplied model name overrides the
// handle's own.
func (h *Handle) TrainWorkflowName(override string) string {
	return workflowName(h.name, override, "train")
}

func (h *Handle) PredictWorkflowName(override string) string {
	return workflowName(h.name, override, "predict")
}

func (h *Handle) PredictFromFeaturesWorkflowName(override string) string {
	return workflowName(h.name, override, "predict_from_features")
}

func workflowName(name, override, operation string) string {
	if override != "" {
		name = override
	}
	return fmt.Sprintf("%s.%s", name, operation)
}

// Train runs the local training hook and, on success, installs the artifact
// and metrics as the latest local model. The pair is updated atomically:
// readers never observe a model from one train and metrics from another.
func (h *Handle) Train(ctx context.Context, inputs map[string]any) (any, map[string]any, error) {
	if h.trainer == nil {
		return nil, nil, fmt.Errorf("model %s has no local trainer configured", h.name)
	}

	artifact, metrics, err := h.trainer.Train(ctx, inputs)
	if err != nil {
		return nil, nil, fmt.Errorf("local training of %s failed: %w", h.name, err)
	}

	h.mu.Lock()
	h.latestModel = artifact
	h.latestMetrics = metrics
	h.trained = true
	h.mu.Unlock()

	return artifact, metrics, nil
}

func (h *Handle) Predict(ctx context.Context, inputs map[string]any) (any, error) {
	if h.predictor == nil {
		return nil, fmt.Errorf("model %s has no local predictor configured", h.name)
	}

	predictions, err := h.predictor.Predict(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("local prediction with %s failed: %w", h.name, err)
	}

	return predictions, nil
}

// LatestModel returns the most recent locally trained artifact and its
// metrics, or ErrNotTrained if no local train has succeeded.
func (h *Handle) LatestModel() (any, map[string]any, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.trained {
		return nil, nil, ErrNotTrained
	}
	return h.latestModel, h.latestMetrics, nil
}
