package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Stage names. A recording advances download → transcription → upload; each
// stage column walks pending → in_progress → completed|failed.
const (
	StageDownload      = "download"
	StageTranscription = "transcription"
	StageUpload        = "upload"
)

const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusSkipped    = "skipped"
)

var stageColumns = map[string]bool{
	StageDownload:      true,
	StageTranscription: true,
	StageUpload:        true,
}

// RecordingRow is one telephony call with its per-stage processing state.
type RecordingRow struct {
	RecordingID   string
	CallID        string
	SessionID     string
	CallStartTime time.Time
	Duration      float64
	Direction     string
	RecordingType string
	FromNumber    string
	FromName      string
	FromExtension string
	ToNumber      string
	ToName        string
	ToExtension   string

	DownloadStatus      string
	TranscriptionStatus string
	UploadStatus        string
	RetryCount          int

	LocalAudioPath    *string
	ArchiveFileID     *string
	AudioDeleted      bool
	AudioDeletionTime *time.Time

	WordCount  *int
	Confidence *float64
	Language   *string

	LastUpdated time.Time
}

// InsertRecording persists a newly discovered recording with all stages pending.
// Returns false without error when the recording id already exists.
func (db *DB) InsertRecording(ctx context.Context, r *RecordingRow) (bool, error) {
	tag, err := db.Pool.Exec(ctx, `
		INSERT INTO recordings (
			recording_id, call_id, session_id, call_start_time, duration_seconds,
			direction, recording_type,
			from_number, from_name, from_extension,
			to_number, to_name, to_extension
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (recording_id) DO NOTHING
	`,
		r.RecordingID, r.CallID, r.SessionID, r.CallStartTime, r.Duration,
		r.Direction, r.RecordingType,
		r.FromNumber, r.FromName, r.FromExtension,
		r.ToNumber, r.ToName, r.ToExtension,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// GetRecording returns a recording row, or nil when absent.
func (db *DB) GetRecording(ctx context.Context, recordingID string) (*RecordingRow, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT recording_id, call_id, session_id, call_start_time, duration_seconds,
		       direction, recording_type,
		       from_number, from_name, from_extension,
		       to_number, to_name, to_extension,
		       download_status, transcription_status, upload_status, retry_count,
		       local_audio_path, archive_file_id, audio_deleted, audio_deletion_time,
		       word_count, confidence, language, last_updated
		FROM recordings WHERE recording_id = $1
	`, recordingID)

	var r RecordingRow
	err := row.Scan(
		&r.RecordingID, &r.CallID, &r.SessionID, &r.CallStartTime, &r.Duration,
		&r.Direction, &r.RecordingType,
		&r.FromNumber, &r.FromName, &r.FromExtension,
		&r.ToNumber, &r.ToName, &r.ToExtension,
		&r.DownloadStatus, &r.TranscriptionStatus, &r.UploadStatus, &r.RetryCount,
		&r.LocalAudioPath, &r.ArchiveFileID, &r.AudioDeleted, &r.AudioDeletionTime,
		&r.WordCount, &r.Confidence, &r.Language, &r.LastUpdated,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// RecordingExists reports whether a recording id is already persisted.
func (db *DB) RecordingExists(ctx context.Context, recordingID string) (bool, error) {
	var exists bool
	err := db.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM recordings WHERE recording_id = $1)`, recordingID,
	).Scan(&exists)
	return exists, err
}

// SessionExists reports whether any recording carries the given provider session id.
func (db *DB) SessionExists(ctx context.Context, sessionID string) (bool, error) {
	if sessionID == "" {
		return false, nil
	}
	var exists bool
	err := db.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM recordings WHERE session_id = $1)`, sessionID,
	).Scan(&exists)
	return exists, err
}

// NearMatchExists reports whether a recording with the same parties and
// duration starts within 5 seconds of the given time. Catches the same call
// reported under distinct provider ids.
func (db *DB) NearMatchExists(ctx context.Context, start time.Time, from, to string, duration float64) (bool, error) {
	var exists bool
	err := db.Pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM recordings
			WHERE from_number = $2 AND to_number = $3 AND duration_seconds = $4
			  AND call_start_time BETWEEN $1::timestamptz - interval '5 seconds'
			                          AND $1::timestamptz + interval '5 seconds'
		)
	`, start, from, to, duration).Scan(&exists)
	return exists, err
}

// CompletedIDsForDay returns recording ids with upload_status=completed whose
// call started on the given UTC calendar day. Used for per-day dedup.
func (db *DB) CompletedIDsForDay(ctx context.Context, day time.Time) (map[string]bool, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	rows, err := db.Pool.Query(ctx, `
		SELECT recording_id FROM recordings
		WHERE call_start_time >= $1 AND call_start_time < $2
		  AND upload_status = 'completed'
	`, dayStart, dayStart.Add(24*time.Hour))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// KnownIDsSince returns all recording ids created after the cutoff. Feeds the
// adapters' advisory in-memory dedup cache.
func (db *DB) KnownIDsSince(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT recording_id FROM recordings WHERE created_at >= $1`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ClaimStage transitions one stage pending → in_progress for a specific
// recording, tagging the claiming worker. Returns false when another worker
// won the claim (or the stage was not pending).
func (db *DB) ClaimStage(ctx context.Context, recordingID, stage, workerID string) (bool, error) {
	if !stageColumns[stage] {
		return false, fmt.Errorf("unknown stage %q", stage)
	}
	tag, err := db.Pool.Exec(ctx, fmt.Sprintf(`
		UPDATE recordings
		SET %[1]s_status = 'in_progress',
		    %[1]s_attempts = %[1]s_attempts + 1,
		    claimed_by = $2,
		    last_updated = NOW()
		WHERE recording_id = $1 AND %[1]s_status = 'pending'
	`, stage), recordingID, workerID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SaveStageCheckpoint finalizes a claimed stage as completed or failed.
func (db *DB) SaveStageCheckpoint(ctx context.Context, recordingID, stage string, success bool, errText string) error {
	if !stageColumns[stage] {
		return fmt.Errorf("unknown stage %q", stage)
	}
	status := StatusCompleted
	var errVal *string
	var completedAt *time.Time
	if success {
		now := time.Now().UTC()
		completedAt = &now
	} else {
		status = StatusFailed
		if errText != "" {
			errVal = &errText
		}
	}
	_, err := db.Pool.Exec(ctx, fmt.Sprintf(`
		UPDATE recordings
		SET %[1]s_status = $2,
		    %[1]s_error = $3,
		    %[1]s_completed_at = $4,
		    claimed_by = NULL,
		    last_updated = NOW()
		WHERE recording_id = $1
	`, stage), recordingID, status, errVal, completedAt)
	return err
}

// PendingRecording is the light view returned by PendingRecordings.
type PendingRecording struct {
	RecordingID string
	RetryCount  int
	LastUpdated time.Time
}

// PendingRecordings lists recordings eligible for a stage, excluding anything
// already promoted to failed_items. Stage prerequisites follow the pipeline
// order: transcription needs a completed download, upload a completed
// transcription.
func (db *DB) PendingRecordings(ctx context.Context, stage string, limit int) ([]PendingRecording, error) {
	var where string
	switch stage {
	case StageDownload:
		where = `download_status = 'pending'`
	case StageTranscription:
		where = `download_status = 'completed' AND transcription_status = 'pending'`
	case StageUpload:
		where = `transcription_status = 'completed' AND upload_status = 'pending'`
	default:
		return nil, fmt.Errorf("unknown stage %q", stage)
	}

	rows, err := db.Pool.Query(ctx, fmt.Sprintf(`
		SELECT r.recording_id, r.retry_count, r.last_updated
		FROM recordings r
		LEFT JOIN failed_items f ON f.recording_id = r.recording_id
		WHERE %s AND f.recording_id IS NULL
		ORDER BY r.call_start_time
		LIMIT $1
	`, where), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PendingRecording
	for rows.Next() {
		var p PendingRecording
		if err := rows.Scan(&p.RecordingID, &p.RetryCount, &p.LastUpdated); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ResetFailedRecordings moves each failed stage back to pending for
// recordings older than maxAge with retry budget remaining. Only the failed
// stage is touched, preserving monotonicity of the others.
func (db *DB) ResetFailedRecordings(ctx context.Context, maxAge time.Duration, maxRetries int) (int, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	total := 0
	for _, stage := range []string{StageDownload, StageTranscription, StageUpload} {
		tag, err := db.Pool.Exec(ctx, fmt.Sprintf(`
			UPDATE recordings
			SET %[1]s_status = 'pending',
			    %[1]s_error = NULL,
			    retry_count = retry_count + 1,
			    last_updated = NOW()
			WHERE %[1]s_status = 'failed'
			  AND last_updated < $1
			  AND retry_count < $2
		`, stage), cutoff, maxRetries)
		if err != nil {
			return total, err
		}
		total += int(tag.RowsAffected())
	}
	return total, nil
}

// SetLocalAudioPath records where the downloaded media landed on disk.
func (db *DB) SetLocalAudioPath(ctx context.Context, recordingID, path string) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE recordings SET local_audio_path = $2, last_updated = NOW()
		WHERE recording_id = $1
	`, recordingID, path)
	return err
}

// MarkAudioDeleted records the terminal resource release performed by the
// secure storage handler.
func (db *DB) MarkAudioDeleted(ctx context.Context, recordingID, archiveFileID string) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE recordings
		SET audio_deleted = TRUE,
		    audio_deletion_time = NOW(),
		    archive_file_id = $2,
		    local_audio_path = NULL,
		    last_updated = NOW()
		WHERE recording_id = $1
	`, recordingID, archiveFileID)
	return err
}

// SetTranscriptStats denormalizes transcript statistics onto the recording row.
func (db *DB) SetTranscriptStats(ctx context.Context, recordingID string, wordCount int, confidence float64, language string) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE recordings
		SET word_count = $2, confidence = $3, language = $4, last_updated = NOW()
		WHERE recording_id = $1
	`, recordingID, wordCount, confidence, language)
	return err
}

// StageCounts is the per-stage breakdown in ProcessingSummary.
type StageCounts struct {
	Download      int `json:"download"`
	Transcription int `json:"transcription"`
	Upload        int `json:"upload"`
}

// ProcessingSummary aggregates recording state for the status surface.
type ProcessingSummary struct {
	TotalRecordings int         `json:"total_recordings"`
	Completed       int         `json:"completed"`
	Pending         StageCounts `json:"pending"`
	Failed          StageCounts `json:"failed"`
	ActiveBatches   int         `json:"active_batches"`
}

// GetProcessingSummary aggregates counts entirely in SQL.
func (db *DB) GetProcessingSummary(ctx context.Context) (*ProcessingSummary, error) {
	var s ProcessingSummary
	err := db.Pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE upload_status = 'completed'),
			COUNT(*) FILTER (WHERE download_status = 'pending'),
			COUNT(*) FILTER (WHERE download_status = 'completed' AND transcription_status = 'pending'),
			COUNT(*) FILTER (WHERE transcription_status = 'completed' AND upload_status = 'pending'),
			COUNT(*) FILTER (WHERE download_status = 'failed'),
			COUNT(*) FILTER (WHERE transcription_status = 'failed'),
			COUNT(*) FILTER (WHERE upload_status = 'failed')
		FROM recordings
	`).Scan(
		&s.TotalRecordings, &s.Completed,
		&s.Pending.Download, &s.Pending.Transcription, &s.Pending.Upload,
		&s.Failed.Download, &s.Failed.Transcription, &s.Failed.Upload,
	)
	if err != nil {
		return nil, err
	}

	err = db.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM processing_state
		WHERE state_key LIKE 'batch_%' AND is_active
	`).Scan(&s.ActiveBatches)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
