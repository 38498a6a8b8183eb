package insights

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mainseq/ci-engine/internal/database"
	"github.com/mainseq/ci-engine/internal/llm"
)

const layer5Prompt = `Compute advanced call metrics for this meeting:

TRANSCRIPT:
%s

MEETING TYPE: %s

Return JSON:
{
  "speaking_time": {"host_percent": 0, "participants_percent": 0},
  "talk_listen_ratio": 0.0,
  "blueprint_score": 0,
  "blueprint_components": {
    "value_articulation": 0,
    "objection_handling": 0,
    "urgency_creation": 0,
    "trust_building": 0,
    "close_attempts": 0
  },
  "competitive_mentions": [{"competitor": "", "context": ""}],
  "deal_value_mentioned": "",
  "deal_currency": "",
  "contract_length_mentioned": "",
  "budget_indicators": [],
  "technical_depth": "low|medium|high",
  "decision_dynamics": {"decision_maker_present": false, "blockers": []}
}

blueprint_score is 0-100 combining the five components.
Return ONLY valid JSON, no additional text.`

// Layer5Result is the advanced-metrics output.
type Layer5Result struct {
	SpeakingTime        json.RawMessage `json:"speaking_time"`
	TalkListenRatio     float64         `json:"talk_listen_ratio"`
	BlueprintScore      int             `json:"blueprint_score"`
	CompetitiveMentions json.RawMessage `json:"competitive_mentions"`
	DealValueMentioned  string          `json:"deal_value_mentioned"`
	DealCurrency        string          `json:"deal_currency"`
	ContractLength      string          `json:"contract_length_mentioned"`
}

func defaultLayer5() Layer5Result {
	return Layer5Result{TalkListenRatio: 1.0, BlueprintScore: 50}
}

func (p *Processor) runLayer5(ctx context.Context, m *database.MeetingRow) error {
	prompt := fmt.Sprintf(layer5Prompt,
		truncateTranscript(deref(m.TranscriptText), 12000),
		m.MeetingType,
	)

	content, err := p.llm.Complete(ctx, llm.CompleteRequest{
		Task:        llm.TaskSalesAnalysis,
		Prompt:      prompt,
		MaxTokens:   2000,
		Temperature: 0.2,
	})
	if err != nil {
		return err
	}

	result := defaultLayer5()
	raw, outcome := ExtractJSON(content)
	if outcome == ParseOK {
		if err := json.Unmarshal(raw, &result); err != nil {
			result = defaultLayer5()
			raw = json.RawMessage(`{}`)
		}
	} else {
		p.log.Warn().Int64("meeting_id", m.ID).Msg("layer 5 returned non-JSON, using defaults")
		raw = json.RawMessage(`{}`)
	}

	row := &database.AdvancedMetricsRow{
		MeetingID:           m.ID,
		BlueprintScore:      &result.BlueprintScore,
		TalkListenRatio:     &result.TalkListenRatio,
		DealValue:           &result.DealValueMentioned,
		DealCurrency:        &result.DealCurrency,
		ContractLength:      &result.ContractLength,
		SpeakingTime:        result.SpeakingTime,
		CompetitiveMentions: result.CompetitiveMentions,
		Details:             raw,
	}
	if err := p.db.UpsertAdvancedMetrics(ctx, row); err != nil {
		return err
	}
	return p.db.SetLayerComplete(ctx, m.ID, 5, true)
}
