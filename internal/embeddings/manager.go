package embeddings

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/rs/zerolog"

	"github.com/mainseq/ci-engine/internal/database"
)

// MinTranscriptChars excludes trivial transcripts from embedding ingest.
const MinTranscriptChars = 100

// Embedder produces one vector per input text. The production implementation
// wraps the provider's embeddings endpoint.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// OpenAIEmbedder calls the provider embeddings endpoint.
type OpenAIEmbedder struct {
	client oai.Client
	model  string
	dim    int
}

// NewOpenAIEmbedder creates the embedder. baseURL may be empty for the
// provider default.
func NewOpenAIEmbedder(apiKey, baseURL, model string, dim int) *OpenAIEmbedder {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: 20 * time.Second}),
	}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	return &OpenAIEmbedder{
		client: oai.NewClient(reqOpts...),
		model:  model,
		dim:    dim,
	}
}

func (e *OpenAIEmbedder) Model() string { return e.model }

// Embed returns the vector for one text, checked against the configured
// dimensionality.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, oai.EmbeddingNewParams{
		Model: e.model,
		Input: oai.EmbeddingNewParamsInputUnion{
			OfString: param.NewOpt(text),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embeddings: empty response")
	}
	raw := resp.Data[0].Embedding
	if e.dim > 0 && len(raw) != e.dim {
		return nil, fmt.Errorf("embeddings: got %d dimensions, want %d", len(raw), e.dim)
	}
	vec := make([]float32, len(raw))
	for i, x := range raw {
		vec[i] = float32(x)
	}
	return vec, nil
}

// Manager ingests transcripts into embedding rows and answers semantic
// search queries.
type Manager struct {
	db       *database.DB
	embedder Embedder
	log      zerolog.Logger
}

// NewManager wires the embeddings subsystem.
func NewManager(db *database.DB, embedder Embedder, log zerolog.Logger) *Manager {
	return &Manager{
		db:       db,
		embedder: embedder,
		log:      log.With().Str("component", "embeddings").Logger(),
	}
}

// Facets are the filterable metadata snapshot stored with the vector.
type Facets struct {
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
}

// EnhancedText builds the embedding input: canonical header lines followed
// by the transcript body.
func EnhancedText(f Facets, transcript string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Customer: %s\n", orUnknown(f.CustomerName))
	fmt.Fprintf(&b, "Employee: %s\n", orUnknown(f.EmployeeName))
	if f.CallDate != nil {
		fmt.Fprintf(&b, "Date: %s\n", f.CallDate.Format("2006-01-02"))
	} else {
		b.WriteString("Date: \n")
	}
	fmt.Fprintf(&b, "Sentiment: %s\n", orEmpty(f.CustomerSentiment))
	fmt.Fprintf(&b, "Call Type: %s\n", orEmpty(f.CallType))
	fmt.Fprintf(&b, "Issue: %s\n", orEmpty(f.IssueCategory))
	fmt.Fprintf(&b, "Summary: %s\n", orEmpty(f.Summary))
	b.WriteString("\nTranscript:\n")
	b.WriteString(transcript)
	return b.String()
}

func orUnknown(s *string) string {
	if s == nil || *s == "" {
		return "Unknown"
	}
	return *s
}

func orEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// IngestTranscript builds the enhanced text, embeds it (chunked with overlap
// and averaged when over the provider budget), and upserts the row. Returns
// false when the transcript is too short to embed.
func (m *Manager) IngestTranscript(ctx context.Context, recordingID, transcript string, f Facets) (bool, error) {
	if len(transcript) < MinTranscriptChars {
		m.log.Debug().Str("recording_id", recordingID).Msg("transcript below embedding minimum, skipped")
		return false, nil
	}

	enhanced := EnhancedText(f, transcript)

	var vec []float32
	var err error
	if len(enhanced) <= MaxEnhancedLen {
		vec, err = m.embedder.Embed(ctx, enhanced)
	} else {
		vec, err = m.embedChunked(ctx, f, transcript, enhanced)
	}
	if err != nil {
		return false, err
	}

	row := &database.EmbeddingRow{
		RecordingID:       recordingID,
		Embedding:         vec,
		TranscriptText:    transcript,
		CustomerName:      f.CustomerName,
		EmployeeName:      f.EmployeeName,
		CallDate:          f.CallDate,
		DurationSeconds:   f.DurationSeconds,
		WordCount:         f.WordCount,
		CustomerSentiment: f.CustomerSentiment,
		CallQualityScore:  f.CallQualityScore,
		SatisfactionScore: f.SatisfactionScore,
		CallType:          f.CallType,
		IssueCategory:     f.IssueCategory,
		Summary:           f.Summary,
		KeyTopics:         f.KeyTopics,
		EmbeddingModel:    m.embedder.Model(),
	}
	if err := m.db.UpsertEmbedding(ctx, row); err != nil {
		return false, err
	}
	return true, nil
}

// embedChunked separates the metadata prefix from the body, chunks the body
// with overlap, embeds each chunk with the prefix, and averages the vectors.
// When the remaining body budget is too small for meaningful chunks, the
// enhanced text is truncated and embedded once.
func (m *Manager) embedChunked(ctx context.Context, f Facets, transcript, enhanced string) ([]float32, error) {
	prefix := EnhancedText(f, "")
	bodyBudget := MaxEnhancedLen - len(prefix)

	if bodyBudget <= MinBodyBudget {
		return m.embedder.Embed(ctx, enhanced[:MaxEnhancedLen])
	}

	chunks := OverlapChunks(transcript, bodyBudget, ChunkOverlap)
	vectors := make([][]float32, 0, len(chunks))
	for i, chunk := range chunks {
		vec, err := m.embedder.Embed(ctx, prefix+chunk)
		if err != nil {
			return nil, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		vectors = append(vectors, vec)
	}
	mean := MeanVector(vectors)
	if mean == nil {
		return nil, fmt.Errorf("no chunk embeddings produced")
	}
	m.log.Debug().Int("chunks", len(chunks)).Msg("averaged chunked embedding")
	return mean, nil
}

// IngestPending embeds every transcript that lacks an embedding row.
func (m *Manager) IngestPending(ctx context.Context, limit int) (processed, failed int, err error) {
	ids, err := m.db.TranscriptsWithoutEmbedding(ctx, MinTranscriptChars, limit)
	if err != nil {
		return 0, 0, err
	}

	for _, id := range ids {
		t, err := m.db.GetTranscript(ctx, id)
		if err != nil || t == nil {
			failed++
			continue
		}
		rec, err := m.db.GetRecording(ctx, id)
		if err != nil {
			failed++
			continue
		}

		f := Facets{
			CustomerName: t.CustomerName,
			EmployeeName: t.EmployeeName,
		}
		if rec != nil {
			d := rec.CallStartTime
			f.CallDate = &d
			dur := rec.Duration
			f.DurationSeconds = &dur
		}
		wc := t.WordCount
		f.WordCount = &wc

		ok, err := m.IngestTranscript(ctx, id, t.Text, f)
		if err != nil {
			failed++
			m.log.Warn().Err(err).Str("recording_id", id).Msg("embedding ingest failed")
			continue
		}
		if ok {
			processed++
		}
	}
	return processed, failed, nil
}

// Search embeds the query and ranks stored vectors under the facet filters.
func (m *Manager) Search(ctx context.Context, query string, filter database.SearchFilter, limit int) ([]database.SearchHit, error) {
	if limit <= 0 {
		limit = 10
	}
	vec, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}
	return m.db.SearchEmbeddings(ctx, vec, filter, limit)
}
