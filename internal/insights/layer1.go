package insights

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mainseq/ci-engine/internal/database"
	"github.com/mainseq/ci-engine/internal/llm"
)

const layer1Prompt = `Analyze this meeting transcript and extract entities:

TRANSCRIPT:
%s

EXISTING PARTICIPANTS:
%s

SUMMARY (if available):
%s

Extract and return JSON with:
{
  "meeting_type": "sales|support|training|interview|internal|external",
  "meeting_purpose": "brief description of meeting purpose",
  "participants": [{"name": "", "role": "", "company": "", "is_host": false, "is_external": false}],
  "companies_mentioned": [{"name": "", "context": "", "is_customer": false, "is_competitor": false}],
  "deal_signals": [{"signal_type": "budget|timeline|authority|need", "quote": "", "strength": "strong|moderate|weak"}],
  "competitor_mentions": [],
  "products_discussed": [],
  "key_dates": [],
  "crm_matches": {"potential_contacts": [], "potential_companies": []}
}

Return ONLY valid JSON, no additional text.`

// Layer1Result is the entity-extraction output.
type Layer1Result struct {
	MeetingType        string            `json:"meeting_type"`
	MeetingPurpose     string            `json:"meeting_purpose"`
	Participants       []json.RawMessage `json:"participants"`
	CompaniesMentioned []json.RawMessage `json:"companies_mentioned"`
	DealSignals        []json.RawMessage `json:"deal_signals"`
	CompetitorMentions []string          `json:"competitor_mentions"`
	ProductsDiscussed  []string          `json:"products_discussed"`
	KeyDates           []string          `json:"key_dates"`
	CRMMatches         json.RawMessage   `json:"crm_matches"`
}

func defaultLayer1() Layer1Result {
	return Layer1Result{
		MeetingType: "other",
		CRMMatches:  json.RawMessage(`{}`),
	}
}

func (p *Processor) runLayer1(ctx context.Context, m *database.MeetingRow) error {
	transcript := truncateTranscript(deref(m.TranscriptText), 15000)
	summary := truncateTranscript(deref(m.Summary), 2000)
	if summary == "" {
		summary = "Not available"
	}

	prompt := fmt.Sprintf(layer1Prompt, transcript, string(m.Participants), summary)

	result := defaultLayer1()
	content, err := p.llm.Complete(ctx, llm.CompleteRequest{
		Task:        llm.TaskCustomerExtraction,
		Prompt:      prompt,
		MaxTokens:   2000,
		Temperature: 0.2,
	})
	if err != nil {
		return err
	}
	if outcome := DecodeResponse(content, &result); outcome != ParseOK {
		p.log.Warn().Int64("meeting_id", m.ID).Msg("layer 1 returned non-JSON, using defaults")
		result = defaultLayer1()
	}

	if err := p.db.SetMeetingClassification(ctx, m.ID, result.MeetingType, result.CRMMatches); err != nil {
		return err
	}
	return p.db.SetLayerComplete(ctx, m.ID, 1, true)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
