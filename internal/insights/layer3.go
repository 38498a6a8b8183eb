package insights

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mainseq/ci-engine/internal/database"
	"github.com/mainseq/ci-engine/internal/llm"
)

const layer3Prompt = `Analyze the meeting outcomes and resolution effectiveness:

TRANSCRIPT:
%s

MEETING TYPE: %s

Return JSON:
{
  "objectives_met_score": 0,
  "objectives_met_details": "",
  "stated_objectives": [],
  "achieved_objectives": [],
  "unmet_objectives": [],
  "fcr_achieved": false,
  "fcr_details": "",
  "escalation_required": false,
  "escalation_reason": "",
  "escalation_to": "",
  "loop_closure_score": 0,
  "open_loops": [],
  "closed_loops": [],
  "action_item_quality_score": 0,
  "action_items_analysis": [{"item": "", "owner": "", "deadline": null, "clarity_score": 0, "measurable": false}],
  "decisions_made": [{"decision": "", "context": "", "impact": "", "stakeholders": []}],
  "unresolved_issues": [{"issue": "", "blocker": "", "next_step": ""}],
  "follow_up_required": false,
  "follow_up_items": []
}

Return ONLY valid JSON, no additional text.`

// Layer3Result is the resolution and outcomes output.
type Layer3Result struct {
	ObjectivesMetScore     int             `json:"objectives_met_score"`
	FCRAchieved            bool            `json:"fcr_achieved"`
	EscalationRequired     bool            `json:"escalation_required"`
	EscalationTo           string          `json:"escalation_to"`
	LoopClosureScore       int             `json:"loop_closure_score"`
	ActionItemQualityScore int             `json:"action_item_quality_score"`
	DecisionsMade          json.RawMessage `json:"decisions_made"`
	UnresolvedIssues       json.RawMessage `json:"unresolved_issues"`
	FollowUpRequired       bool            `json:"follow_up_required"`
}

func defaultLayer3() Layer3Result {
	return Layer3Result{
		ObjectivesMetScore:     50,
		LoopClosureScore:       50,
		ActionItemQualityScore: 50,
	}
}

func (p *Processor) runLayer3(ctx context.Context, m *database.MeetingRow) error {
	prompt := fmt.Sprintf(layer3Prompt,
		truncateTranscript(deref(m.TranscriptText), 12000),
		m.MeetingType,
	)

	content, err := p.llm.Complete(ctx, llm.CompleteRequest{
		Task:        llm.TaskSupportAnalysis,
		Prompt:      prompt,
		MaxTokens:   2000,
		Temperature: 0.3,
	})
	if err != nil {
		return err
	}

	result := defaultLayer3()
	raw, outcome := ExtractJSON(content)
	if outcome == ParseOK {
		if err := json.Unmarshal(raw, &result); err != nil {
			result = defaultLayer3()
			raw = json.RawMessage(`{}`)
		}
	} else {
		p.log.Warn().Int64("meeting_id", m.ID).Msg("layer 3 returned non-JSON, using defaults")
		raw = json.RawMessage(`{}`)
	}

	row := &database.ResolutionRow{
		MeetingID:              m.ID,
		ObjectivesMetScore:     &result.ObjectivesMetScore,
		FCRAchieved:            &result.FCRAchieved,
		EscalationRequired:     &result.EscalationRequired,
		EscalationTo:           &result.EscalationTo,
		LoopClosureScore:       &result.LoopClosureScore,
		ActionItemQualityScore: &result.ActionItemQualityScore,
		FollowUpRequired:       &result.FollowUpRequired,
		Decisions:              result.DecisionsMade,
		UnresolvedIssues:       result.UnresolvedIssues,
		Details:                raw,
	}
	if err := p.db.UpsertResolution(ctx, row); err != nil {
		return err
	}
	return p.db.SetLayerComplete(ctx, m.ID, 3, true)
}
