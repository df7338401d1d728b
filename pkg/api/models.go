package api

import (
	"time"

	"github.com/google/uuid"
)

// Query parameters accepted by the train endpoint. Structured inputs travel
// in the request body (see TrainBody).
type TrainParams struct {
	Local     bool   `schema:"local"`
	ModelName string `schema:"model_name"`
}

type TrainBody struct {
	Inputs map[string]any `json:"inputs"`
}

type TrainResponse struct {
	RunId        uuid.UUID      `json:"run_id"`
	TrainedModel string         `json:"trained_model"`
	Metrics      map[string]any `json:"metrics"`
}

const (
	ModelSourceRemote = "remote"
	ModelSourceLocal  = "local"

	LatestModelVersion = "latest"
)

type PredictParams struct {
	Local        bool   `schema:"local"`
	ModelName    string `schema:"model_name"`
	ModelVersion string `schema:"model_version"`
	ModelSource  string `schema:"model_source"`
}

// Exactly one of Inputs and Features may be set; requests carrying both, or
// neither, are rejected before any execution is dispatched.
type PredictBody struct {
	Inputs   map[string]any   `json:"inputs,omitempty"`
	Features []map[string]any `json:"features,omitempty"`
}

type LabelParams struct {
	SessionId string `schema:"session_id"`
	BatchSize int    `schema:"batch_size"`
	Submit    bool   `schema:"submit"`
}

type LabelBody struct {
	ReaderInputs map[string]any   `json:"reader_inputs,omitempty"`
	Submission   []map[string]any `json:"submission,omitempty"`
}

type LabelBatchResponse struct {
	Batch           []map[string]any `json:"batch"`
	SessionComplete bool             `json:"session_complete"`
}

type LabelSubmitResponse struct {
	Success         bool `json:"success"`
	SessionComplete bool `json:"session_complete"`
}

type TrainingRun struct {
	Id           uuid.UUID      `json:"id"`
	ModelName    string         `json:"model_name"`
	WorkflowName string         `json:"workflow_name"`
	Mode         string         `json:"mode"`
	Status       string         `json:"status"`
	CreationTime time.Time      `json:"creation_time"`
	Metrics      map[string]any `json:"metrics,omitempty"`
	Error        string         `json:"error,omitempty"`
}
