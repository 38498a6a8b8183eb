package scheduler

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mainseq/ci-engine/internal/database"
)

// dateLayout is the ISO calendar-day format batch cursors are stored in.
const dateLayout = "2006-01-02"

// BatchState is one declarative unit of historical work with a resume cursor.
// Invariant: StartDate ≤ CurrentDate ≤ EndDate while running; CurrentDate
// moves past EndDate on completion.
type BatchState struct {
	BatchID        string `json:"batch_id"`
	StartDate      string `json:"start_date"`
	EndDate        string `json:"end_date"`
	CurrentDate    string `json:"current_date"`
	TotalProcessed int    `json:"total_processed"`
	TotalFailed    int    `json:"total_failed"`
	Completed      bool   `json:"completed"`
	ErrorCount     int    `json:"error_count"`
	LastError      string `json:"last_error,omitempty"`
}

// MainState is the scheduler's long-lived processing state.
type MainState struct {
	LastSuccessfulRun string         `json:"last_successful_run,omitempty"`
	LastCheckpoint    string         `json:"last_checkpoint,omitempty"`
	TotalProcessed    int            `json:"total_processed"`
	TotalSucceeded    int            `json:"total_succeeded"`
	TotalFailed       int            `json:"total_failed"`
	CheckpointData    map[string]any `json:"checkpoint_data,omitempty"`
}

// StateManager provides durable, resumable state for batches and recordings.
type StateManager struct {
	db  *database.DB
	log zerolog.Logger
}

// NewStateManager wires the state manager.
func NewStateManager(db *database.DB, log zerolog.Logger) *StateManager {
	return &StateManager{db: db, log: log.With().Str("component", "state").Logger()}
}

func batchKey(batchID string) string { return "batch_" + batchID }

// CreateBatch persists a new batch with the cursor at its start date.
func (s *StateManager) CreateBatch(ctx context.Context, batchID string, start, end time.Time) (*BatchState, error) {
	batch := &BatchState{
		BatchID:     batchID,
		StartDate:   start.UTC().Format(dateLayout),
		EndDate:     end.UTC().Format(dateLayout),
		CurrentDate: start.UTC().Format(dateLayout),
	}
	data, err := json.Marshal(batch)
	if err != nil {
		return nil, err
	}
	if err := s.db.PutCheckpoint(ctx, batchKey(batchID), data, true); err != nil {
		return nil, err
	}
	s.log.Info().Str("batch_id", batchID).Str("start", batch.StartDate).Str("end", batch.EndDate).Msg("batch created")
	return batch, nil
}

// LoadBatch returns the stored snapshot, or nil when absent.
func (s *StateManager) LoadBatch(ctx context.Context, batchID string) (*BatchState, error) {
	data, err := s.db.GetCheckpoint(ctx, batchKey(batchID))
	if err != nil || data == nil {
		return nil, err
	}
	var batch BatchState
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, err
	}
	return &batch, nil
}

// UpdateBatch overwrites the persisted snapshot and refreshes the checkpoint.
func (s *StateManager) UpdateBatch(ctx context.Context, batch *BatchState) error {
	data, err := json.Marshal(batch)
	if err != nil {
		return err
	}
	return s.db.PutCheckpoint(ctx, batchKey(batch.BatchID), data, !batch.Completed)
}

// CompleteBatch marks the batch finished and inactive.
func (s *StateManager) CompleteBatch(ctx context.Context, batch *BatchState) error {
	batch.Completed = true
	if err := s.UpdateBatch(ctx, batch); err != nil {
		return err
	}
	s.log.Info().Str("batch_id", batch.BatchID).Int("processed", batch.TotalProcessed).Msg("batch completed")
	return nil
}

// ActiveBatches lists incomplete batches.
func (s *StateManager) ActiveBatches(ctx context.Context) ([]BatchState, error) {
	blobs, err := s.db.ActiveCheckpoints(ctx, "batch_")
	if err != nil {
		return nil, err
	}
	var out []BatchState
	for key, data := range blobs {
		var batch BatchState
		if err := json.Unmarshal(data, &batch); err != nil {
			s.log.Warn().Str("key", key).Err(err).Msg("unreadable batch checkpoint")
			continue
		}
		out = append(out, batch)
	}
	return out, nil
}

// SaveRecordingCheckpoint finalizes one stage for a recording.
func (s *StateManager) SaveRecordingCheckpoint(ctx context.Context, recordingID, stage string, success bool, errText string) error {
	return s.db.SaveStageCheckpoint(ctx, recordingID, stage, success, errText)
}

// PendingRecordings lists recordings eligible for a stage.
func (s *StateManager) PendingRecordings(ctx context.Context, stage string, limit int) ([]database.PendingRecording, error) {
	return s.db.PendingRecordings(ctx, stage, limit)
}

// ResetFailedRecordings returns failed stages to pending within the retry
// budget.
func (s *StateManager) ResetFailedRecordings(ctx context.Context, maxAge time.Duration, maxRetries int) (int, error) {
	n, err := s.db.ResetFailedRecordings(ctx, maxAge, maxRetries)
	if err == nil && n > 0 {
		s.log.Info().Int("reset", n).Msg("failed recordings reset for retry")
	}
	return n, err
}

// ProcessingSummary aggregates recording state.
func (s *StateManager) ProcessingSummary(ctx context.Context) (*database.ProcessingSummary, error) {
	return s.db.GetProcessingSummary(ctx)
}

// CleanupOldStates deletes inactive states older than the age.
func (s *StateManager) CleanupOldStates(ctx context.Context, age time.Duration) (int, error) {
	return s.db.CleanupOldStates(ctx, age)
}

// LoadMainState reads the scheduler's long-lived state.
func (s *StateManager) LoadMainState(ctx context.Context) (*MainState, error) {
	data, err := s.db.GetStateValue(ctx, database.StateKeyMain)
	if err != nil {
		return nil, err
	}
	st := &MainState{}
	if data != nil {
		if err := json.Unmarshal(data, st); err != nil {
			return nil, err
		}
	}
	return st, nil
}

// SaveMainState persists the scheduler's long-lived state.
func (s *StateManager) SaveMainState(ctx context.Context, st *MainState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.db.PutStateValue(ctx, database.StateKeyMain, data)
}

// ParseBatchDate parses a stored cursor date.
func ParseBatchDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, strings.TrimSpace(s))
}
