package insights

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/mainseq/ci-engine/internal/database"
	"github.com/mainseq/ci-engine/internal/llm"
)

const layer6Prompt = `Analyze this meeting for learning effectiveness:

TRANSCRIPT:
%s

MEETING TYPE: %s

Score the learning dynamics and return JSON:
{
  "learning_score": 0.0,
  "learning_rationale": "",
  "entropy_delta": {"score": 0.0, "novel_concepts": [], "complexity_level": "low|medium|high"},
  "coherence_delta": {"score": 0.0, "understanding_indicators": [], "confusion_indicators": []},
  "emotional_engagement": {"score": 0.0, "engagement_type": "intellectual|emotional|practical|mixed"},
  "phase_alignment": {"score": 0.0, "challenge_level": "too_easy|appropriate|too_hard", "pacing": "too_slow|appropriate|too_fast"},
  "learning_state": "aha_zone|overwhelmed|bored|disengaged|building|struggling",
  "knowledge_transfer_rate": 0.0,
  "host_teaching_effectiveness": {"score": 0, "strengths": [], "improvements": []},
  "participant_learning_indicators": [{"participant": "", "learning_state": "", "engagement_level": 0.0}],
  "lambda_adjustments": {"recommended_pacing": "slower|maintain|faster", "recommended_depth": "less_detail|maintain|more_detail", "recommended_interaction": "less|maintain|more"},
  "coaching_recommendations": [{"for": "host|participant|all", "recommendation": "", "rationale": ""}]
}

All component scores are 0.0-1.0 except phase_alignment.score which is -1.0 to 1.0
and host_teaching_effectiveness.score which is 0-100.
Return ONLY valid JSON, no additional text.`

type scored struct {
	Score float64 `json:"score"`
}

type scoredInt struct {
	Score int `json:"score"`
}

// Layer6Result is the learning-intelligence output.
type Layer6Result struct {
	LearningScore         *float64        `json:"learning_score"`
	EntropyDelta          scored          `json:"entropy_delta"`
	CoherenceDelta        scored          `json:"coherence_delta"`
	EmotionalEngagement   scored          `json:"emotional_engagement"`
	PhaseAlignment        scored          `json:"phase_alignment"`
	LearningState         string          `json:"learning_state"`
	KnowledgeTransferRate float64         `json:"knowledge_transfer_rate"`
	TeachingEffectiveness scoredInt       `json:"host_teaching_effectiveness"`
	LambdaAdjustments     json.RawMessage `json:"lambda_adjustments"`
	CoachingRecs          json.RawMessage `json:"coaching_recommendations"`
}

func defaultLayer6() Layer6Result {
	return Layer6Result{
		EntropyDelta:          scored{0.5},
		CoherenceDelta:        scored{0.5},
		EmotionalEngagement:   scored{0.5},
		PhaseAlignment:        scored{0},
		LearningState:         "building",
		KnowledgeTransferRate: 0.5,
		TeachingEffectiveness: scoredInt{50},
	}
}

// learningScore computes L = ΔS · ΔC · wₑ · cos(|φ| · π/2), clamped to [0, 1].
// Perfect phase alignment (φ = 0) contributes cos(0) = 1; full misalignment
// zeroes the product.
func learningScore(entropy, coherence, engagement, phase float64) float64 {
	phaseFactor := math.Cos(math.Abs(phase) * math.Pi / 2)
	l := entropy * coherence * engagement * phaseFactor
	return math.Max(0, math.Min(1, l))
}

func (p *Processor) runLayer6(ctx context.Context, m *database.MeetingRow) error {
	prompt := fmt.Sprintf(layer6Prompt,
		truncateTranscript(deref(m.TranscriptText), 15000),
		m.MeetingType,
	)

	content, err := p.llm.Complete(ctx, llm.CompleteRequest{
		Task:        llm.TaskBusinessInsights,
		Prompt:      prompt,
		MaxTokens:   3000,
		Temperature: 0.4,
	})
	if err != nil {
		return err
	}

	result := defaultLayer6()
	raw, outcome := ExtractJSON(content)
	if outcome == ParseOK {
		if err := json.Unmarshal(raw, &result); err != nil {
			result = defaultLayer6()
			raw = json.RawMessage(`{}`)
		}
	} else {
		p.log.Warn().Int64("meeting_id", m.ID).Msg("layer 6 returned non-JSON, using defaults")
		raw = json.RawMessage(`{}`)
	}

	score := learningScore(
		result.EntropyDelta.Score,
		result.CoherenceDelta.Score,
		result.EmotionalEngagement.Score,
		result.PhaseAlignment.Score,
	)
	if result.LearningScore != nil {
		score = *result.LearningScore
	}

	row := &database.LearningRow{
		MeetingID:               m.ID,
		LearningScore:           &score,
		EntropyDelta:            &result.EntropyDelta.Score,
		CoherenceDelta:          &result.CoherenceDelta.Score,
		EmotionalEngagement:     &result.EmotionalEngagement.Score,
		PhaseAlignment:          &result.PhaseAlignment.Score,
		LearningState:           &result.LearningState,
		KnowledgeTransferRate:   &result.KnowledgeTransferRate,
		TeachingEffectiveness:   &result.TeachingEffectiveness.Score,
		PacingAdjustments:       result.LambdaAdjustments,
		CoachingRecommendations: result.CoachingRecs,
		Details:                 raw,
	}
	if err := p.db.UpsertLearning(ctx, row); err != nil {
		return err
	}
	return p.db.SetLayerComplete(ctx, m.ID, 6, true)
}
