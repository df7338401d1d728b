package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"mlserve-backend/internal/database"
	"mlserve-backend/internal/dataset"
	"mlserve-backend/internal/labelling"
	"mlserve-backend/internal/model"
	"mlserve-backend/internal/remote"
	"mlserve-backend/internal/storage"
	"mlserve-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const landingPage = `
<html>
	<head>
		<title>mlserve</title>
	</head>
	<body>
		<h1>mlserve</h1>
		<p>The easiest way to build and deploy models</p>
	</body>
</html>
`

// ModelService exposes a model handle's lifecycle operations as HTTP
// endpoints: train, predict, and interactive labelling.
type ModelService struct {
	db       *gorm.DB
	handle   *model.Handle
	gateway  remote.Gateway
	provider dataset.Provider
	sessions *labelling.Manager

	// Optional artifact persistence for local trains.
	artifacts      storage.Provider
	artifactBucket string

	trainSchema *TrainSchema
}

func NewModelService(
	db *gorm.DB,
	handle *model.Handle,
	gateway remote.Gateway,
	provider dataset.Provider,
	sessions *labelling.Manager,
	artifacts storage.Provider,
	artifactBucket string,
) *ModelService {
	return &ModelService{
		db:             db,
		handle:         handle,
		gateway:        gateway,
		provider:       provider,
		sessions:       sessions,
		artifacts:      artifacts,
		artifactBucket: artifactBucket,
		trainSchema:    NewTrainSchema(handle.Hyperparameters()),
	}
}

// register binds a handler under an explicitly named verb. Only GET, POST,
// and PUT are supported; anything else is a configuration error surfaced at
// startup, never at request time.
func register(r chi.Router, method, path string, handler http.HandlerFunc) error {
	switch method {
	case http.MethodGet:
		r.Get(path, handler)
	case http.MethodPost:
		r.Post(path, handler)
	case http.MethodPut:
		r.Put(path, handler)
	default:
		return fmt.Errorf("endpoints only support GET, POST, and PUT methods: found %s", method)
	}
	return nil
}

func (s *ModelService) RegisterTrainRoute(r chi.Router, method, path string) error {
	return register(r, method, path, RestHandler(s.Train))
}

func (s *ModelService) RegisterPredictRoute(r chi.Router, method, path string) error {
	return register(r, method, path, RestHandler(s.Predict))
}

func (s *ModelService) RegisterLabelRoute(r chi.Router, method, path string) error {
	return register(r, method, path, RestHandler(s.Label))
}

// AddRoutes registers the default endpoint layout. The verbs used here are
// always supported, so registration cannot fail.
func (s *ModelService) AddRoutes(r chi.Router) {
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(landingPage)) //nolint:errcheck
	})
	r.Get("/health", RestHandler(func(r *http.Request) (any, error) { return nil, nil }))

	s.RegisterTrainRoute(r, http.MethodPost, "/train")     //nolint:errcheck
	s.RegisterPredictRoute(r, http.MethodPost, "/predict") //nolint:errcheck
	s.RegisterLabelRoute(r, http.MethodPost, "/label")     //nolint:errcheck

	r.Route("/runs", func(r chi.Router) {
		r.Get("/", RestHandler(s.ListRuns))
		r.Get("/{run_id}", RestHandler(s.GetRun))
	})
}

func (s *ModelService) Train(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[api.TrainParams](r)
	if err != nil {
		return nil, err
	}
	body, err := ParseRequest[api.TrainBody](r)
	if err != nil {
		return nil, err
	}

	if err := s.trainSchema.Validate(body.Inputs); err != nil {
		return nil, err
	}

	ctx := r.Context()

	mode := database.ModeRemote
	if params.Local {
		mode = database.ModeLocal
	}
	workflowName := s.handle.TrainWorkflowName(params.ModelName)

	run := &database.TrainingRun{
		Id:              uuid.New(),
		ModelName:       s.modelName(params.ModelName),
		WorkflowName:    workflowName,
		Mode:            mode,
		Status:          database.RunRunning,
		CreationTime:    time.Now().UTC(),
		Hyperparameters: database.MarshalJSON(body.Inputs),
	}
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		slog.Error("error creating training run record", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to create training run record")
	}

	var rendered string
	var metrics map[string]any
	var artifactPath string

	if params.Local {
		artifact, trainedMetrics, err := s.handle.Train(ctx, body.Inputs)
		if err != nil {
			database.FailTrainingRun(ctx, s.db, run.Id, err) //nolint:errcheck
			return nil, CodedErrorf(http.StatusInternalServerError, "local training failed: %v", err)
		}
		rendered = fmt.Sprintf("%v", artifact)
		metrics = trainedMetrics
		artifactPath = s.storeArtifact(ctx, run.Id, artifact)
	} else {
		rendered, metrics, err = s.trainRemote(ctx, workflowName, body.Inputs)
		if err != nil {
			database.FailTrainingRun(ctx, s.db, run.Id, err) //nolint:errcheck
			return nil, err
		}
	}

	database.CompleteTrainingRun(ctx, s.db, run.Id, metrics, artifactPath) //nolint:errcheck

	slog.Info("training run finished", "run_id", run.Id, "mode", mode, "workflow", workflowName)
	return api.TrainResponse{RunId: run.Id, TrainedModel: rendered, Metrics: metrics}, nil
}

func (s *ModelService) trainRemote(ctx context.Context, workflowName string, inputs map[string]any) (string, map[string]any, error) {
	wf, err := s.gateway.FetchWorkflow(ctx, workflowName, "")
	if err != nil {
		return "", nil, CodedErrorf(http.StatusBadGateway, "failed to resolve train workflow: %v", err)
	}

	execution, err := s.gateway.Execute(ctx, wf, inputs, true)
	if err != nil {
		return "", nil, CodedErrorf(http.StatusBadGateway, "remote training failed: %v", err)
	}

	trainedModel, err := remote.Output(execution, "trained_model")
	if err != nil {
		return "", nil, CodedErrorf(http.StatusBadGateway, "remote training produced no model: %v", err)
	}
	rawMetrics, err := remote.Output(execution, "metrics")
	if err != nil {
		return "", nil, CodedErrorf(http.StatusBadGateway, "remote training produced no metrics: %v", err)
	}
	metrics, ok := rawMetrics.(map[string]any)
	if !ok {
		return "", nil, CodedErrorf(http.StatusBadGateway, "remote training returned malformed metrics (%T)", rawMetrics)
	}

	return fmt.Sprintf("%v", trainedModel), metrics, nil
}

// storeArtifact persists the artifact rendering alongside the run record.
// Persistence failures are logged, not surfaced: the train itself succeeded.
func (s *ModelService) storeArtifact(ctx context.Context, runId uuid.UUID, artifact any) string {
	if s.artifacts == nil {
		return ""
	}

	data := database.MarshalJSON(artifact)
	if data == nil {
		return ""
	}

	key := fmt.Sprintf("runs/%s.json", runId)
	if err := s.artifacts.PutObject(ctx, s.artifactBucket, key, bytes.NewReader(data)); err != nil {
		slog.Error("error storing model artifact", "run_id", runId, "error", err)
		return ""
	}

	return fmt.Sprintf("%s/%s", s.artifactBucket, key)
}

func (s *ModelService) Predict(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[api.PredictParams](r)
	if err != nil {
		return nil, err
	}
	body, err := ParseRequest[api.PredictBody](r)
	if err != nil {
		return nil, err
	}

	if params.ModelVersion == "" {
		params.ModelVersion = api.LatestModelVersion
	}
	if params.ModelSource == "" {
		params.ModelSource = api.ModelSourceRemote
	}
	if params.ModelSource != api.ModelSourceRemote && params.ModelSource != api.ModelSourceLocal {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "model_source must be %q or %q: found %q", api.ModelSourceRemote, api.ModelSourceLocal, params.ModelSource)
	}

	// A request carrying both is ambiguous about which should win, so it is
	// rejected rather than silently preferring one.
	if body.Inputs != nil && body.Features != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "supply either inputs or features, not both")
	}
	if body.Inputs == nil && body.Features == nil {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "one of inputs or features is required")
	}

	version := ""
	if params.ModelVersion != api.LatestModelVersion {
		version = params.ModelVersion
	}

	ctx := r.Context()

	scoringModel, err := s.resolveModel(ctx, params, version)
	if err != nil {
		return nil, err
	}

	workflowInputs := map[string]any{"model": scoringModel}
	var workflowName string

	if body.Inputs != nil {
		for key, value := range body.Inputs {
			workflowInputs[key] = value
		}
		workflowName = s.handle.PredictWorkflowName(params.ModelName)
	} else {
		features, err := s.provider.MaterializeFeatures(body.Features)
		if err != nil {
			return nil, CodedErrorf(http.StatusUnprocessableEntity, "invalid features: %v", err)
		}
		workflowInputs["features"] = features
		workflowName = s.handle.PredictFromFeaturesWorkflowName(params.ModelName)
	}

	if params.Local {
		predictions, err := s.handle.Predict(ctx, workflowInputs)
		if err != nil {
			return nil, CodedErrorf(http.StatusInternalServerError, "local prediction failed: %v", err)
		}
		return predictions, nil
	}

	wf, err := s.gateway.FetchWorkflow(ctx, workflowName, version)
	if err != nil {
		return nil, CodedErrorf(http.StatusBadGateway, "failed to resolve predict workflow: %v", err)
	}
	execution, err := s.gateway.Execute(ctx, wf, workflowInputs, true)
	if err != nil {
		return nil, CodedErrorf(http.StatusBadGateway, "remote prediction failed: %v", err)
	}
	predictions, err := remote.Output(execution, "o0")
	if err != nil {
		return nil, CodedErrorf(http.StatusBadGateway, "remote prediction produced no output: %v", err)
	}

	return predictions, nil
}

// resolveModel finds the model artifact to score with: the output of the
// most recent successful remote training execution, or the locally cached
// latest model.
func (s *ModelService) resolveModel(ctx context.Context, params api.PredictParams, version string) (any, error) {
	if params.ModelSource == api.ModelSourceLocal {
		artifact, _, err := s.handle.LatestModel()
		if errors.Is(err, model.ErrNotTrained) {
			return nil, CodedErrorf(http.StatusInternalServerError, "trained model not found")
		}
		if err != nil {
			return nil, CodedErrorf(http.StatusInternalServerError, "error loading latest model: %v", err)
		}
		return artifact, nil
	}

	workflowName := s.handle.TrainWorkflowName(params.ModelName)

	wf, err := s.gateway.FetchWorkflow(ctx, workflowName, version)
	if err != nil {
		return nil, CodedErrorf(http.StatusBadGateway, "failed to resolve train workflow: %v", err)
	}

	executions, err := s.gateway.ListExecutions(ctx, wf.Project, wf.Domain, 1,
		[]remote.Filter{
			remote.Equal("launch_plan.name", wf.Name),
			remote.Equal("phase", remote.PhaseSucceeded),
		},
		remote.Sort{Key: "created_at", Direction: remote.Descending},
	)
	if err != nil {
		return nil, CodedErrorf(http.StatusBadGateway, "failed to list training executions: %v", err)
	}
	if len(executions) == 0 {
		return nil, CodedErrorf(http.StatusInternalServerError, "no successful training execution found for workflow %s", workflowName)
	}

	latest := executions[0]
	if err := s.gateway.Sync(ctx, latest); err != nil {
		return nil, CodedErrorf(http.StatusBadGateway, "failed to sync training execution: %v", err)
	}

	artifact, err := remote.Output(latest, "trained_model")
	if err != nil {
		return nil, CodedErrorf(http.StatusBadGateway, "training execution %s has no trained model output: %v", latest.Id, err)
	}

	return artifact, nil
}

func (s *ModelService) Label(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[api.LabelParams](r)
	if err != nil {
		return nil, err
	}
	if params.SessionId == "" {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "session_id is required")
	}
	if params.BatchSize == 0 {
		params.BatchSize = 3
	}
	if params.BatchSize < 0 {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "batch_size must be positive: found %d", params.BatchSize)
	}

	body, err := ParseRequest[api.LabelBody](r)
	if err != nil {
		return nil, err
	}

	ctx := r.Context()

	if params.Submit {
		if err := s.sessions.Submit(ctx, params.SessionId, body.Submission); err != nil {
			if errors.Is(err, labelling.ErrNoSubmissionExpected) {
				return nil, CodedError(http.StatusBadRequest, err)
			}
			return nil, CodedErrorf(http.StatusInternalServerError, "error accepting submission: %v", err)
		}
		return api.LabelSubmitResponse{Success: true, SessionComplete: false}, nil
	}

	batch, complete, err := s.sessions.NextBatch(ctx, params.SessionId, params.BatchSize, body.ReaderInputs)
	if err != nil {
		switch {
		case errors.Is(err, labelling.ErrSubmissionPending):
			return nil, CodedError(http.StatusBadRequest, err)
		case errors.Is(err, labelling.ErrReaderInputsRequired):
			return nil, CodedError(http.StatusUnprocessableEntity, err)
		default:
			return nil, CodedErrorf(http.StatusInternalServerError, "error advancing labelling session: %v", err)
		}
	}

	return api.LabelBatchResponse{Batch: batch, SessionComplete: complete}, nil
}

func (s *ModelService) ListRuns(r *http.Request) (any, error) {
	var runs []database.TrainingRun
	if err := s.db.WithContext(r.Context()).Order("creation_time DESC").Find(&runs).Error; err != nil {
		slog.Error("error listing training runs", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving training runs")
	}

	return convertTrainingRuns(runs), nil
}

func (s *ModelService) GetRun(r *http.Request) (any, error) {
	runId, err := URLParamUUID(r, "run_id")
	if err != nil {
		return nil, err
	}

	var run database.TrainingRun
	if err := s.db.WithContext(r.Context()).First(&run, "id = ?", runId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "training run not found")
		}
		slog.Error("error getting training run", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving training run record")
	}

	return convertTrainingRun(run), nil
}

func (s *ModelService) modelName(override string) string {
	if override != "" {
		return override
	}
	return s.handle.Name()
}
