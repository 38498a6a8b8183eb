package embeddings

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeEmbedder struct {
	dim   int
	calls []string
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls = append(f.calls, text)
	vec := make([]float32, f.dim)
	for i := range vec {
		vec[i] = float32(len(text) % 7)
	}
	return vec, nil
}

func (f *fakeEmbedder) Model() string { return "fake-embedding" }

func TestEnhancedTextHeader(t *testing.T) {
	customer := "ACME Corp"
	sentiment := "negative"
	date := time.Date(2025, 9, 21, 0, 0, 0, 0, time.UTC)

	text := EnhancedText(Facets{
		CustomerName:      &customer,
		CustomerSentiment: &sentiment,
		CallDate:          &date,
	}, "the transcript body")

	for _, want := range []string{
		"Customer: ACME Corp",
		"Employee: Unknown",
		"Date: 2025-09-21",
		"Sentiment: negative",
		"Transcript:\nthe transcript body",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("enhanced text missing %q:\n%s", want, text)
		}
	}
}

func TestEmbedChunkedAveragesAndKeepsDim(t *testing.T) {
	fe := &fakeEmbedder{dim: 1536}
	m := &Manager{embedder: fe, log: zerolog.Nop()}

	long := strings.Repeat("The customer asked about invoices. ", 200)
	vec, err := m.embedChunked(context.Background(), Facets{}, long, EnhancedText(Facets{}, long))
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != 1536 {
		t.Errorf("averaged dim = %d, want 1536", len(vec))
	}
	if len(fe.calls) < 2 {
		t.Errorf("chunked embed calls = %d, want several", len(fe.calls))
	}

	// Every chunk call carries the metadata prefix.
	for i, call := range fe.calls {
		if !strings.HasPrefix(call, "Customer: Unknown") {
			t.Errorf("call %d missing metadata prefix", i)
		}
		if len(call) > MaxEnhancedLen+ChunkOverlap {
			t.Errorf("call %d length %d far exceeds budget", i, len(call))
		}
	}
}
