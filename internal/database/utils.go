package database

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func CompleteTrainingRun(ctx context.Context, txn *gorm.DB, runId uuid.UUID, metrics map[string]any, artifactPath string) error {
	updates := map[string]any{
		"status":          RunCompleted,
		"completion_time": time.Now().UTC(),
	}
	if metrics != nil {
		data, err := json.Marshal(metrics)
		if err != nil {
			slog.Error("error marshaling run metrics", "run_id", runId, "error", err)
		} else {
			updates["metrics"] = datatypes.JSON(data)
		}
	}
	if artifactPath != "" {
		updates["artifact_path"] = artifactPath
	}

	if err := txn.WithContext(ctx).Model(&TrainingRun{Id: runId}).Updates(updates).Error; err != nil {
		slog.Error("error completing training run", "run_id", runId, "error", err)
		return err
	}
	return nil
}

func FailTrainingRun(ctx context.Context, txn *gorm.DB, runId uuid.UUID, cause error) error {
	updates := map[string]any{
		"status":          RunFailed,
		"completion_time": time.Now().UTC(),
		"error":           cause.Error(),
	}

	if err := txn.WithContext(ctx).Model(&TrainingRun{Id: runId}).Updates(updates).Error; err != nil {
		slog.Error("error failing training run", "run_id", runId, "error", err)
		return err
	}
	return nil
}

func MarshalJSON(value any) datatypes.JSON {
	if value == nil {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		slog.Error("error marshaling json column", "error", err)
		return nil
	}
	return datatypes.JSON(data)
}
