package insights

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mainseq/ci-engine/internal/database"
	"github.com/mainseq/ci-engine/internal/llm"
)

const layer4Prompt = `Generate actionable recommendations from this meeting:

TRANSCRIPT:
%s

MEETING TYPE: %s

Return JSON:
{
  "host_coaching": [{"point": "", "rationale": ""}],
  "sales_recommendations": [],
  "customer_success_actions": [],
  "process_improvements": [],
  "knowledge_gaps": [],
  "follow_up_priority": "low|medium|high|urgent",
  "follow_up_deadline": "",
  "suggested_follow_up_message": "",
  "risk_mitigations": []
}

Return ONLY valid JSON, no additional text.`

// Layer4Result is the recommendations output.
type Layer4Result struct {
	HostCoaching           json.RawMessage `json:"host_coaching"`
	SalesRecommendations   json.RawMessage `json:"sales_recommendations"`
	CustomerSuccessActions json.RawMessage `json:"customer_success_actions"`
	ProcessImprovements    json.RawMessage `json:"process_improvements"`
	FollowUpPriority       string          `json:"follow_up_priority"`
	FollowUpDeadline       string          `json:"follow_up_deadline"`
}

func defaultLayer4() Layer4Result {
	return Layer4Result{FollowUpPriority: "medium"}
}

func (p *Processor) runLayer4(ctx context.Context, m *database.MeetingRow) error {
	prompt := fmt.Sprintf(layer4Prompt,
		truncateTranscript(deref(m.TranscriptText), 10000),
		m.MeetingType,
	)

	content, err := p.llm.Complete(ctx, llm.CompleteRequest{
		Task:        llm.TaskBusinessInsights,
		Prompt:      prompt,
		MaxTokens:   2000,
		Temperature: 0.4,
	})
	if err != nil {
		return err
	}

	result := defaultLayer4()
	raw, outcome := ExtractJSON(content)
	if outcome == ParseOK {
		if err := json.Unmarshal(raw, &result); err != nil {
			result = defaultLayer4()
			raw = json.RawMessage(`{}`)
		}
	} else {
		p.log.Warn().Int64("meeting_id", m.ID).Msg("layer 4 returned non-JSON, using defaults")
		raw = json.RawMessage(`{}`)
	}

	row := &database.RecommendationRow{
		MeetingID:            m.ID,
		FollowUpPriority:     &result.FollowUpPriority,
		FollowUpDeadline:     &result.FollowUpDeadline,
		HostCoaching:         result.HostCoaching,
		SalesRecommendations: result.SalesRecommendations,
		SuccessActions:       result.CustomerSuccessActions,
		ProcessImprovements:  result.ProcessImprovements,
		Details:              raw,
	}
	if err := p.db.UpsertRecommendation(ctx, row); err != nil {
		return err
	}
	return p.db.SetLayerComplete(ctx, m.ID, 4, true)
}
