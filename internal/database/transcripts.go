package database

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// TranscriptSegment is one timed span of a transcript with the ASR provider's
// quality signals.
type TranscriptSegment struct {
	Start            float64 `json:"start"`
	End              float64 `json:"end"`
	Text             string  `json:"text"`
	AvgLogprob       float64 `json:"avg_logprob"`
	CompressionRatio float64 `json:"compression_ratio"`
	NoSpeechProb     float64 `json:"no_speech_prob"`
	Speaker          string  `json:"speaker,omitempty"`
}

// TranscriptRow is the persisted transcript for one recording.
type TranscriptRow struct {
	RecordingID         string
	Text                string
	Language            string
	LanguageProbability float64
	WordCount           int
	Confidence          float64
	DurationSeconds     float64
	ProcessingSeconds   float64
	CustomerName        *string
	EmployeeName        *string
	Segments            []TranscriptSegment
	CreatedAt           time.Time
}

// UpsertTranscript stores the transcript for a recording, replacing any prior
// one (re-transcription overwrites).
func (db *DB) UpsertTranscript(ctx context.Context, t *TranscriptRow) error {
	segments, err := json.Marshal(t.Segments)
	if err != nil {
		return err
	}
	_, err = db.Pool.Exec(ctx, `
		INSERT INTO transcripts (
			recording_id, transcript_text, language, language_probability,
			word_count, confidence, duration_seconds, processing_seconds,
			customer_name, employee_name, segments
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (recording_id) DO UPDATE SET
			transcript_text = EXCLUDED.transcript_text,
			language = EXCLUDED.language,
			language_probability = EXCLUDED.language_probability,
			word_count = EXCLUDED.word_count,
			confidence = EXCLUDED.confidence,
			duration_seconds = EXCLUDED.duration_seconds,
			processing_seconds = EXCLUDED.processing_seconds,
			customer_name = EXCLUDED.customer_name,
			employee_name = EXCLUDED.employee_name,
			segments = EXCLUDED.segments
	`,
		t.RecordingID, t.Text, t.Language, t.LanguageProbability,
		t.WordCount, t.Confidence, t.DurationSeconds, t.ProcessingSeconds,
		t.CustomerName, t.EmployeeName, segments,
	)
	return err
}

// GetTranscript returns the transcript for a recording, or nil when absent.
func (db *DB) GetTranscript(ctx context.Context, recordingID string) (*TranscriptRow, error) {
	var t TranscriptRow
	var segments json.RawMessage
	err := db.Pool.QueryRow(ctx, `
		SELECT recording_id, transcript_text, language, language_probability,
		       word_count, confidence, duration_seconds, processing_seconds,
		       customer_name, employee_name, segments, created_at
		FROM transcripts WHERE recording_id = $1
	`, recordingID).Scan(
		&t.RecordingID, &t.Text, &t.Language, &t.LanguageProbability,
		&t.WordCount, &t.Confidence, &t.DurationSeconds, &t.ProcessingSeconds,
		&t.CustomerName, &t.EmployeeName, &segments, &t.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(segments, &t.Segments); err != nil {
		return nil, err
	}
	return &t, nil
}

// TranscriptsWithoutEmbedding lists recording ids with a non-trivial
// transcript and no embedding row yet. Transcripts under minChars are
// excluded from embedding ingest.
func (db *DB) TranscriptsWithoutEmbedding(ctx context.Context, minChars, limit int) ([]string, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT t.recording_id
		FROM transcripts t
		LEFT JOIN transcript_embeddings e ON e.recording_id = t.recording_id
		WHERE e.recording_id IS NULL
		  AND length(t.transcript_text) >= $1
		ORDER BY t.created_at
		LIMIT $2
	`, minChars, limit)
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
