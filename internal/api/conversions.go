package api

import (
	"encoding/json"
	"log/slog"

	"mlserve-backend/internal/database"
	"mlserve-backend/pkg/api"
)

func convertTrainingRun(run database.TrainingRun) api.TrainingRun {
	converted := api.TrainingRun{
		Id:           run.Id,
		ModelName:    run.ModelName,
		WorkflowName: run.WorkflowName,
		Mode:         run.Mode,
		Status:       run.Status,
		CreationTime: run.CreationTime,
	}

	if run.Metrics != nil {
		if err := json.Unmarshal(run.Metrics, &converted.Metrics); err != nil {
			slog.Error("error unmarshaling run metrics", "run_id", run.Id, "error", err)
		}
	}
	if run.Error.Valid {
		converted.Error = run.Error.String
	}

	return converted
}

func convertTrainingRuns(runs []database.TrainingRun) []api.TrainingRun {
	converted := make([]api.TrainingRun, len(runs))
	for i, run := range runs {
		converted[i] = convertTrainingRun(run)
	}
	return converted
}
