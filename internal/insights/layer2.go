package insights

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mainseq/ci-engine/internal/database"
	"github.com/mainseq/ci-engine/internal/llm"
)

const layer2Prompt = `Analyze the sentiment and customer health indicators in this meeting:

TRANSCRIPT:
%s

MEETING TYPE: %s

Return JSON:
{
  "nps_score": 0,
  "nps_confidence": 0.0,
  "nps_rationale": "",
  "churn_risk_level": "none|low|medium|high|critical",
  "churn_risk_score": 0.0,
  "churn_indicators": [],
  "customer_health_score": 0,
  "health_indicators": {"engagement": 0, "satisfaction": 0, "product_fit": 0, "relationship": 0},
  "expansion_signals": [{"signal": "", "type": "upsell|cross-sell|referral|renewal", "strength": "strong|moderate|weak"}],
  "sentiment_positive": 0.0,
  "sentiment_negative": 0.0,
  "sentiment_neutral": 0.0,
  "emotional_moments": [{"moment": "", "emotion": "frustration|excitement|confusion|satisfaction", "quote": ""}],
  "meeting_quality_score": 0,
  "quality_factors": {"clarity": 0, "productivity": 0, "engagement": 0, "outcomes": 0},
  "topics": [],
  "key_concerns": []
}

sentiment_positive, sentiment_negative and sentiment_neutral must sum to 1.
Return ONLY valid JSON, no additional text.`

// Layer2Result is the sentiment and customer-health output.
type Layer2Result struct {
	NPSScore            int             `json:"nps_score"`
	NPSConfidence       float64         `json:"nps_confidence"`
	ChurnRiskLevel      string          `json:"churn_risk_level"`
	ChurnRiskScore      float64         `json:"churn_risk_score"`
	CustomerHealthScore int             `json:"customer_health_score"`
	ExpansionSignals    json.RawMessage `json:"expansion_signals"`
	SentimentPositive   float64         `json:"sentiment_positive"`
	SentimentNegative   float64         `json:"sentiment_negative"`
	SentimentNeutral    float64         `json:"sentiment_neutral"`
	MeetingQualityScore int             `json:"meeting_quality_score"`
	Topics              json.RawMessage `json:"topics"`
}

func defaultLayer2() Layer2Result {
	return Layer2Result{
		NPSScore:            5,
		NPSConfidence:       0.5,
		ChurnRiskLevel:      "low",
		ChurnRiskScore:      0.2,
		CustomerHealthScore: 70,
		SentimentPositive:   0.33,
		SentimentNegative:   0.33,
		SentimentNeutral:    0.34,
		MeetingQualityScore: 5,
	}
}

func (p *Processor) runLayer2(ctx context.Context, m *database.MeetingRow) error {
	prompt := fmt.Sprintf(layer2Prompt,
		truncateTranscript(deref(m.TranscriptText), 12000),
		m.MeetingType,
	)

	content, err := p.llm.Complete(ctx, llm.CompleteRequest{
		Task:        llm.TaskSentimentAnalysis,
		Prompt:      prompt,
		MaxTokens:   2000,
		Temperature: 0.3,
	})
	if err != nil {
		return err
	}

	result := defaultLayer2()
	raw, outcome := ExtractJSON(content)
	if outcome == ParseOK {
		if err := json.Unmarshal(raw, &result); err != nil {
			result = defaultLayer2()
			raw = json.RawMessage(`{}`)
		}
	} else {
		p.log.Warn().Int64("meeting_id", m.ID).Msg("layer 2 returned non-JSON, using defaults")
		raw = json.RawMessage(`{}`)
	}

	row := &database.InsightRow{
		MeetingID:           m.ID,
		NPSScore:            &result.NPSScore,
		NPSConfidence:       &result.NPSConfidence,
		ChurnRiskLevel:      &result.ChurnRiskLevel,
		ChurnRiskScore:      &result.ChurnRiskScore,
		CustomerHealthScore: &result.CustomerHealthScore,
		SentimentPositive:   result.SentimentPositive,
		SentimentNegative:   result.SentimentNegative,
		SentimentNeutral:    result.SentimentNeutral,
		MeetingQualityScore: &result.MeetingQualityScore,
		ExpansionSignals:    result.ExpansionSignals,
		Topics:              result.Topics,
		Details:             raw,
	}
	if err := p.db.UpsertInsight(ctx, row); err != nil {
		return err
	}
	return p.db.SetLayerComplete(ctx, m.ID, 2, true)
}
