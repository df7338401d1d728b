package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	RunRunning   string = "RUNNING"
	RunCompleted string = "COMPLETED"
	RunFailed    string = "FAILED"
)

const (
	ModeLocal  string = "local"
	ModeRemote string = "remote"
)

// TrainingRun records a single dispatch of the train operation, local or
// remote, together with its outcome.
type TrainingRun struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	ModelName    string `gorm:"not null"`
	WorkflowName string `gorm:"not null"`
	Mode         string `gorm:"size:10;not null"`
	Status       string `gorm:"size:20;not null"`

	CreationTime   time.Time
	CompletionTime sql.NullTime

	Hyperparameters datatypes.JSON
	Metrics         datatypes.JSON
	ArtifactPath    sql.NullString
	Error           sql.NullString
}

// LabelSession mirrors the lifecycle of an in-memory labelling session so
// the audit trail survives eviction and restarts.
type LabelSession struct {
	SessionId string `gorm:"primaryKey"`

	BatchSize     int
	BatchesServed int  `gorm:"default:0"`
	Complete      bool `gorm:"default:false"`

	CreationTime time.Time
}

type LabelSubmission struct {
	Id        uuid.UUID `gorm:"type:uuid;primaryKey"`
	SessionId string    `gorm:"index;not null"`

	Payload   datatypes.JSON `gorm:"not null"`
	CreatedAt time.Time
}
