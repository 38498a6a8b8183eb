package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	pgvector "github.com/pgvector/pgvector-go"
)

// EmbeddingRow is the stored representative vector for one transcript plus
// its filterable facets.
type EmbeddingRow struct {
	RecordingID       string
	Embedding         []float32
	TranscriptText    string
	CustomerName      *string
	EmployeeName      *string
	CallDate          *time.Time
	DurationSeconds   *float64
	WordCount         *int
	CustomerSentiment *string
	CallQualityScore  *float64
	SatisfactionScore *float64
	CallType          *string
	IssueCategory     *string
	Summary           *string
	KeyTopics         []string
	EmbeddingModel    string
}

// UpsertEmbedding stores the vector and facets, replacing any prior row for
// the recording.
func (db *DB) UpsertEmbedding(ctx context.Context, r *EmbeddingRow) error {
	topics := r.KeyTopics
	if topics == nil {
		topics = []string{}
	}
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO transcript_embeddings (
			recording_id, embedding, transcript_text,
			customer_name, employee_name, call_date, duration_seconds, word_count,
			customer_sentiment, call_quality_score, satisfaction_score,
			call_type, issue_category, summary, key_topics, embedding_model
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (recording_id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			transcript_text = EXCLUDED.transcript_text,
			customer_name = EXCLUDED.customer_name,
			employee_name = EXCLUDED.employee_name,
			call_date = EXCLUDED.call_date,
			duration_seconds = EXCLUDED.duration_seconds,
			word_count = EXCLUDED.word_count,
			customer_sentiment = EXCLUDED.customer_sentiment,
			call_quality_score = EXCLUDED.call_quality_score,
			satisfaction_score = EXCLUDED.satisfaction_score,
			call_type = EXCLUDED.call_type,
			issue_category = EXCLUDED.issue_category,
			summary = EXCLUDED.summary,
			key_topics = EXCLUDED.key_topics,
			embedding_model = EXCLUDED.embedding_model,
			updated_at = NOW()
	`,
		r.RecordingID, pgvector.NewVector(r.Embedding), r.TranscriptText,
		r.CustomerName, r.EmployeeName, r.CallDate, r.DurationSeconds, r.WordCount,
		r.CustomerSentiment, r.CallQualityScore, r.SatisfactionScore,
		r.CallType, r.IssueCategory, r.Summary, topics, r.EmbeddingModel,
	)
	return err
}

// EmbeddingExists reports whether a recording already has an embedding row.
func (db *DB) EmbeddingExists(ctx context.Context, recordingID string) (bool, error) {
	var exists bool
	err := db.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM transcript_embeddings WHERE recording_id = $1)`, recordingID,
	).Scan(&exists)
	return exists, err
}

// SearchFilter narrows semantic search by facet columns.
type SearchFilter struct {
	Employee   string
	Customer   string
	Sentiment  string
	DateFrom   *time.Time
	DateTo     *time.Time
	MinQuality *float64
}

// SearchHit is one semantic-search result. Similarity is 1 − cosine distance.
type SearchHit struct {
	RecordingID       string   `json:"recording_id"`
	Similarity        float64  `json:"similarity"`
	CustomerName      *string  `json:"customer_name,omitempty"`
	EmployeeName      *string  `json:"employee_name,omitempty"`
	CallDate          *string  `json:"call_date,omitempty"`
	CustomerSentiment *string  `json:"customer_sentiment,omitempty"`
	CallQualityScore  *float64 `json:"call_quality_score,omitempty"`
	Summary           *string  `json:"summary,omitempty"`
	CallType          *string  `json:"call_type,omitempty"`
}

// SearchEmbeddings ranks rows by cosine distance to the query vector under
// the facet filters. The same vector parameter is used in both SELECT and
// ORDER BY, so the ranking and the reported similarity always agree.
func (db *DB) SearchEmbeddings(ctx context.Context, queryVec []float32, filter SearchFilter, limit int) ([]SearchHit, error) {
	vec := pgvector.NewVector(queryVec)
	args := []any{vec}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var conds []string
	if filter.Employee != "" {
		conds = append(conds, "employee_name ILIKE "+next("%"+filter.Employee+"%"))
	}
	if filter.Customer != "" {
		conds = append(conds, "customer_name ILIKE "+next("%"+filter.Customer+"%"))
	}
	if filter.Sentiment != "" {
		conds = append(conds, "customer_sentiment = "+next(filter.Sentiment))
	}
	if filter.DateFrom != nil {
		conds = append(conds, "call_date >= "+next(*filter.DateFrom))
	}
	if filter.DateTo != nil {
		conds = append(conds, "call_date <= "+next(*filter.DateTo))
	}
	if filter.MinQuality != nil {
		conds = append(conds, "call_quality_score >= "+next(*filter.MinQuality))
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	args = append(args, limit)
	limitArg := fmt.Sprintf("$%d", len(args))

	q := fmt.Sprintf(`
		SELECT recording_id,
		       1 - (embedding <=> $1) AS similarity,
		       customer_name, employee_name, call_date::text,
		       customer_sentiment, call_quality_score, summary, call_type
		FROM transcript_embeddings
		%s
		ORDER BY embedding <=> $1
		LIMIT %s
	`, where, limitArg)

	rows, err := db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var h SearchHit
		if err := rows.Scan(
			&h.RecordingID, &h.Similarity,
			&h.CustomerName, &h.EmployeeName, &h.CallDate,
			&h.CustomerSentiment, &h.CallQualityScore, &h.Summary, &h.CallType,
		); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
