// Package embeddings produces one representative vector per transcript and
// serves filtered nearest-neighbour search over them.
package embeddings

import "strings"

// Chunking bounds: the provider's token-bounded character budget, the
// minimum body worth chunking, and the overlap carried between chunks.
const (
	MaxEnhancedLen = 1028
	MinBodyBudget  = 128
	ChunkOverlap   = 128
	breakLookback  = 100
)

var breakSeqs = []string{". ", "! ", "? ", "\n", ": ", "; "}

// OverlapChunks splits text into chunks of at most maxLen characters with at
// least `overlap` characters carried between consecutive chunks, preferring
// natural break boundaries within the final breakLookback characters of each
// window.
func OverlapChunks(text string, maxLen, overlap int) []string {
	if len(text) <= maxLen {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + maxLen
		if end >= len(text) {
			if chunk := text[start:]; strings.TrimSpace(chunk) != "" {
				chunks = append(chunks, chunk)
			}
			break
		}

		// Look backward from the window end for a sentence-ish break.
		chunkEnd := end
		for i := 0; i < breakLookback && chunkEnd-i > start+1; i++ {
			pos := chunkEnd - i
			if isBreak(text, pos) {
				chunkEnd = pos
				break
			}
		}

		if chunk := text[start:chunkEnd]; strings.TrimSpace(chunk) != "" {
			chunks = append(chunks, chunk)
		}

		next := chunkEnd - overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks
}

func isBreak(text string, pos int) bool {
	if pos < 1 || pos+1 > len(text) {
		return false
	}
	window := text[pos-1:]
	for _, seq := range breakSeqs {
		if strings.HasPrefix(window, seq) {
			return true
		}
	}
	return false
}

// MeanVector averages vectors component-wise into one representative vector.
// All inputs must share one dimensionality; mismatches are skipped.
func MeanVector(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	sum := make([]float64, dim)
	n := 0
	for _, v := range vectors {
		if len(v) != dim {
			continue
		}
		for i, x := range v {
			sum[i] += float64(x)
		}
		n++
	}
	if n == 0 {
		return nil
	}
	out := make([]float32, dim)
	for i := range sum {
		out[i] = float32(sum[i] / float64(n))
	}
	return out
}
