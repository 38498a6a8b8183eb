package transcribe

import (
	"math"
	"strings"
)

// Confidence penalty thresholds, matching the ASR engine's own filtering
// defaults.
const (
	compressionRatioThreshold = 2.4
	logprobThreshold          = -1.0
	noSpeechThreshold         = 0.6
)

// Normalize applies the full text post-processing pass: collapse repeated
// n-gram runs, then canonical substitutions. The pass is idempotent.
func Normalize(text string) string {
	return fixCommonErrors(CollapseRepetitions(text, 3))
}

// CollapseRepetitions deduplicates any 1–10-token sequence repeated at least
// threshold times in a row down to a single occurrence. ASR engines emit
// these runs on silence and noise.
func CollapseRepetitions(text string, threshold int) string {
	words := strings.Fields(text)
	var cleaned []string

	i := 0
	for i < len(words) {
		collapsed := false
		for seqLen := 1; seqLen <= 10 && i+seqLen <= len(words); seqLen++ {
			seq := words[i : i+seqLen]
			count := 1
			j := i + seqLen
			for j+seqLen <= len(words) && equalTokens(words[j:j+seqLen], seq) {
				count++
				j += seqLen
			}
			if count >= threshold {
				cleaned = append(cleaned, seq...)
				i = j
				collapsed = true
				break
			}
		}
		if !collapsed {
			cleaned = append(cleaned, words[i])
			i++
		}
	}
	return strings.Join(cleaned, " ")
}

func equalTokens(a, b []string) bool {
	for k := range a {
		if a[k] != b[k] {
			return false
		}
	}
	return true
}

var replacements = [][2]string{
	{" gonna ", " going to "},
	{" wanna ", " want to "},
	{" gotta ", " got to "},
}

func fixCommonErrors(text string) string {
	for _, r := range replacements {
		text = strings.ReplaceAll(text, r[0], r[1])
	}
	for strings.Contains(text, "  ") {
		text = strings.ReplaceAll(text, "  ", " ")
	}
	return strings.TrimSpace(text)
}

// ComputeConfidence scores a transcript from its segments: the token-weighted
// mean of exp(avg_logprob), minus fixed penalties for segments past the
// compression-ratio (+0.05), logprob (+0.03), and no-speech (+0.02)
// thresholds, clamped to [0, 1].
func ComputeConfidence(segments []Segment) float64 {
	if len(segments) == 0 {
		return 0
	}

	var totalProb float64
	var totalTokens int
	for _, s := range segments {
		n := len(s.Tokens)
		if n == 0 {
			// Fall back to word count when the provider omits tokens.
			n = len(strings.Fields(s.Text))
		}
		if n == 0 {
			continue
		}
		totalProb += math.Exp(s.AvgLogprob) * float64(n)
		totalTokens += n
	}
	if totalTokens == 0 {
		return 0
	}
	confidence := totalProb / float64(totalTokens)

	var penalty float64
	for _, s := range segments {
		if s.CompressionRatio > compressionRatioThreshold {
			penalty += 0.05
		}
		if s.AvgLogprob < logprobThreshold {
			penalty += 0.03
		}
		if s.NoSpeechProb > noSpeechThreshold {
			penalty += 0.02
		}
	}

	confidence -= penalty
	return math.Max(0, math.Min(1, confidence))
}

// StitchChunks merges chunked ASR responses: segment timestamps offset by
// each chunk's start, texts joined with a single space, and language picked
// by probability-weighted vote across chunks.
func StitchChunks(results []*Response, offsets []float64) *Response {
	if len(results) == 0 {
		return &Response{}
	}
	if len(results) == 1 {
		return results[0]
	}

	var texts []string
	var segments []Segment
	langWeights := make(map[string]float64)
	var duration float64

	for i, r := range results {
		if r == nil {
			continue
		}
		if t := strings.TrimSpace(r.Text); t != "" {
			texts = append(texts, t)
		}
		for _, s := range r.Segments {
			s.Start += offsets[i]
			s.End += offsets[i]
			segments = append(segments, s)
		}
		if r.Language != "" {
			langWeights[r.Language] += r.LanguageProbability
		}
		if end := offsets[i] + r.Duration; end > duration {
			duration = end
		}
	}

	bestLang := ""
	var bestWeight float64
	for lang, w := range langWeights {
		if w > bestWeight {
			bestLang, bestWeight = lang, w
		}
	}

	var langProb float64
	if bestLang != "" {
		langProb = bestWeight / float64(len(results))
	}

	return &Response{
		Text:                strings.Join(texts, " "),
		Language:            bestLang,
		LanguageProbability: langProb,
		Duration:            duration,
		Segments:            segments,
	}
}
