package embeddings

import (
	"math"
	"strings"
	"testing"
)

func TestOverlapChunksShortText(t *testing.T) {
	chunks := OverlapChunks("short text", 900, ChunkOverlap)
	if len(chunks) != 1 || chunks[0] != "short text" {
		t.Errorf("chunks = %v, want single passthrough", chunks)
	}

	if chunks := OverlapChunks("   ", 900, ChunkOverlap); chunks != nil {
		t.Errorf("whitespace-only chunks = %v, want nil", chunks)
	}
}

func TestOverlapChunksOverlap(t *testing.T) {
	// Sentences so break-boundary preference has something to find.
	var b strings.Builder
	for i := 0; i < 120; i++ {
		b.WriteString("The customer asked about billing. ")
	}
	text := b.String()

	maxLen := 400
	chunks := OverlapChunks(text, maxLen, ChunkOverlap)
	if len(chunks) < 2 {
		t.Fatalf("chunks = %d, want several", len(chunks))
	}

	for i, c := range chunks {
		if len(c) > maxLen {
			t.Errorf("chunk %d length %d exceeds max %d", i, len(c), maxLen)
		}
	}

	// Consecutive chunks share at least the overlap: the tail of chunk i
	// reappears at the head of chunk i+1.
	for i := 1; i < len(chunks); i++ {
		tail := chunks[i-1][len(chunks[i-1])-ChunkOverlap:]
		if !strings.HasPrefix(chunks[i], tail) {
			t.Errorf("chunk %d does not start with previous chunk's overlap", i)
		}
	}

	// Nothing is lost: stripping each chunk's overlap prefix reconstructs
	// the original text.
	var rebuilt strings.Builder
	rebuilt.WriteString(chunks[0])
	for i := 1; i < len(chunks); i++ {
		rebuilt.WriteString(chunks[i][ChunkOverlap:])
	}
	if rebuilt.String() != text {
		t.Error("chunks do not reconstruct the original text")
	}
}

func TestOverlapChunksPrefersBreaks(t *testing.T) {
	// A break right inside the lookback window should terminate the chunk.
	text := strings.Repeat("x", 350) + ". " + strings.Repeat("y", 400)
	chunks := OverlapChunks(text, 400, ChunkOverlap)
	if len(chunks) < 2 {
		t.Fatalf("chunks = %d, want at least 2", len(chunks))
	}
	if !strings.HasSuffix(chunks[0], ". ") && !strings.HasSuffix(chunks[0], ".") {
		t.Errorf("first chunk does not end at sentence break: ...%q", chunks[0][len(chunks[0])-10:])
	}
}

func TestMeanVector(t *testing.T) {
	vecs := [][]float32{
		{1, 2, 3},
		{3, 4, 5},
	}
	mean := MeanVector(vecs)
	want := []float32{2, 3, 4}
	if len(mean) != 3 {
		t.Fatalf("dim = %d, want 3", len(mean))
	}
	for i := range want {
		if math.Abs(float64(mean[i]-want[i])) > 1e-6 {
			t.Errorf("mean[%d] = %f, want %f", i, mean[i], want[i])
		}
	}
}

func TestMeanVectorPreservesDimensionality(t *testing.T) {
	single := [][]float32{make([]float32, 1536)}
	if got := MeanVector(single); len(got) != 1536 {
		t.Errorf("single-shot dim = %d, want 1536", len(got))
	}

	many := [][]float32{make([]float32, 1536), make([]float32, 1536), make([]float32, 1536)}
	if got := MeanVector(many); len(got) != 1536 {
		t.Errorf("averaged dim = %d, want 1536", len(got))
	}

	if got := MeanVector(nil); got != nil {
		t.Errorf("empty input = %v, want nil", got)
	}
}

func TestMeanVectorSkipsMismatched(t *testing.T) {
	vecs := [][]float32{
		{2, 2},
		{4, 4},
		{1, 2, 3}, // wrong dimensionality, skipped
	}
	mean := MeanVector(vecs)
	if len(mean) != 2 || mean[0] != 3 || mean[1] != 3 {
		t.Errorf("mean = %v, want [3 3]", mean)
	}
}
