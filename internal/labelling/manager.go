package labelling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mlserve-backend/internal/database"
	"mlserve-backend/internal/dataset"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Protocol-sequencing violations. Session state is left unchanged when
// either is returned.
var (
	// ErrSubmissionPending rejects a batch request while labels for the
	// current batch are still outstanding.
	ErrSubmissionPending = errors.New("awaiting labels from current batch")

	// ErrNoSubmissionExpected rejects a submission when no batch is awaiting
	// labels (none requested yet, already submitted, or session complete).
	ErrNoSubmissionExpected = errors.New("labels already submitted for current batch")

	// ErrReaderInputsRequired rejects the first request of a session when it
	// carries no reader inputs to initialize the computation from.
	ErrReaderInputsRequired = errors.New("reader_inputs is required to initialize a labelling session")
)

// Manager owns the labelling session table and enforces the strict
// alternation between batch delivery and submission acceptance. Accepted
// submissions and session lifecycle changes are persisted for audit.
type Manager struct {
	store    Store
	provider dataset.Provider
	db       *gorm.DB
}

func NewManager(store Store, provider dataset.Provider, db *gorm.DB) *Manager {
	return &Manager{store: store, provider: provider, db: db}
}

func (m *Manager) resolve(ctx context.Context, id string, batchSize int, readerInputs map[string]any) (*Session, error) {
	if session, ok := m.store.Get(id); ok {
		return session, nil
	}

	if readerInputs == nil {
		return nil, ErrReaderInputsRequired
	}

	// The computation is built before touching the store so the store lock
	// never covers provider or database work.
	computation, err := m.provider.OpenLabellingSession(id, batchSize, readerInputs)
	if err != nil {
		return nil, fmt.Errorf("error initializing labelling session %s: %w", id, err)
	}

	session, created, err := m.store.Create(id, NewSession(id, computation))
	if err != nil {
		return nil, err
	}
	if !created {
		return session, nil
	}

	record := database.LabelSession{
		SessionId:    id,
		BatchSize:    batchSize,
		CreationTime: time.Now().UTC(),
	}
	if err := m.db.WithContext(ctx).Create(&record).Error; err != nil {
		slog.Error("error recording labelling session", "session_id", id, "error", err)
	}

	slog.Info("initialized labelling session", "session_id", id, "batch_size", batchSize)
	return session, nil
}

// NextBatch advances the session's computation one step. It returns the next
// batch, or complete=true once the computation is exhausted; exhaustion is
// terminal and every later call reports it idempotently.
func (m *Manager) NextBatch(ctx context.Context, id string, batchSize int, readerInputs map[string]any) (dataset.Batch, bool, error) {
	session, err := m.resolve(ctx, id, batchSize, readerInputs)
	if err != nil {
		return nil, false, err
	}

	session.mu.Lock()
	defer session.mu.Unlock()
	session.touch()

	if session.complete {
		return nil, true, nil
	}
	if session.awaitingSubmission {
		return nil, false, ErrSubmissionPending
	}

	batch, ok, err := session.computation.Advance()
	if err != nil {
		return nil, false, fmt.Errorf("error advancing labelling session %s: %w", id, err)
	}

	if !ok {
		session.complete = true
		m.markComplete(ctx, id)
		return nil, true, nil
	}

	session.awaitingSubmission = true
	m.countBatch(ctx, id)

	return batch, false, nil
}

// Submit delivers the labels for the batch yielded by the previous NextBatch
// and resumes the suspended computation.
func (m *Manager) Submit(ctx context.Context, id string, submission []map[string]any) error {
	session, ok := m.store.Get(id)
	if !ok {
		return ErrNoSubmissionExpected
	}

	session.mu.Lock()
	defer session.mu.Unlock()
	session.touch()

	if !session.awaitingSubmission {
		return ErrNoSubmissionExpected
	}

	if err := session.computation.Resume(submission); err != nil {
		return fmt.Errorf("error resuming labelling session %s: %w", id, err)
	}
	session.awaitingSubmission = false

	record := database.LabelSubmission{
		Id:        uuid.New(),
		SessionId: id,
		Payload:   database.MarshalJSON(submission),
		CreatedAt: time.Now().UTC(),
	}
	if err := m.db.WithContext(ctx).Create(&record).Error; err != nil {
		slog.Error("error recording label submission", "session_id", id, "error", err)
	}

	return nil
}

func (m *Manager) countBatch(ctx context.Context, id string) {
	err := m.db.WithContext(ctx).Model(&database.LabelSession{SessionId: id}).
		Update("batches_served", gorm.Expr("batches_served + 1")).Error
	if err != nil {
		slog.Error("error counting served batch", "session_id", id, "error", err)
	}
}

func (m *Manager) markComplete(ctx context.Context, id string) {
	err := m.db.WithContext(ctx).Model(&database.LabelSession{SessionId: id}).
		Update("complete", true).Error
	if err != nil {
		slog.Error("error marking labelling session complete", "session_id", id, "error", err)
	}

	slog.Info("labelling session complete", "session_id", id)
}
