package database

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// FailedItem is a recording past its retry budget, excluded from automatic
// processing until a manual reset.
type FailedItem struct {
	RecordingID  string
	Stage        string
	Reason       string
	LastError    string
	AttemptCount int
	FirstAttempt time.Time
	LastAttempt  time.Time
}

// PromoteToFailed records a terminal failure. Subsequent promotions for the
// same recording update the attempt count and last error.
func (db *DB) PromoteToFailed(ctx context.Context, recordingID, stage, reason, lastError string, attempts int) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO failed_items (recording_id, stage, reason, last_error, attempt_count)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (recording_id) DO UPDATE SET
			stage = EXCLUDED.stage,
			reason = EXCLUDED.reason,
			last_error = EXCLUDED.last_error,
			attempt_count = EXCLUDED.attempt_count,
			last_attempt = NOW()
	`, recordingID, stage, reason, lastError, attempts)
	return err
}

// GetFailedItem returns the failed-item record, or nil when absent.
func (db *DB) GetFailedItem(ctx context.Context, recordingID string) (*FailedItem, error) {
	var f FailedItem
	var lastErr *string
	err := db.Pool.QueryRow(ctx, `
		SELECT recording_id, stage, reason, last_error, attempt_count, first_attempt, last_attempt
		FROM failed_items WHERE recording_id = $1
	`, recordingID).Scan(&f.RecordingID, &f.Stage, &f.Reason, &lastErr, &f.AttemptCount, &f.FirstAttempt, &f.LastAttempt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if lastErr != nil {
		f.LastError = *lastErr
	}
	return &f, nil
}

// ManualResetFailedItem removes a recording from the failed set and returns
// its failed stage to pending so the next pass re-attempts it.
func (db *DB) ManualResetFailedItem(ctx context.Context, recordingID string) (bool, error) {
	var stage string
	err := db.Pool.QueryRow(ctx,
		`DELETE FROM failed_items WHERE recording_id = $1 RETURNING stage`, recordingID,
	).Scan(&stage)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if stageColumns[stage] {
		_, err = db.Pool.Exec(ctx, `
			UPDATE recordings
			SET `+stage+`_status = 'pending', `+stage+`_error = NULL,
			    retry_count = 0, last_updated = NOW()
			WHERE recording_id = $1
		`, recordingID)
	}
	return true, err
}

// FailedItemCount returns the size of the failed set.
func (db *DB) FailedItemCount(ctx context.Context) (int, error) {
	var n int
	err := db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM failed_items`).Scan(&n)
	return n, err
}
