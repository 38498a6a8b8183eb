package insights

import (
	"encoding/json"
	"testing"
)

func TestExtractJSONDirect(t *testing.T) {
	raw, outcome := ExtractJSON(`{"meeting_type": "sales"}`)
	if outcome != ParseOK {
		t.Fatalf("outcome = %v, want ParseOK", outcome)
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil || m["meeting_type"] != "sales" {
		t.Errorf("parsed = %v, err %v", m, err)
	}
}

func TestExtractJSONFenced(t *testing.T) {
	content := "Here is the analysis:\n```json\n{\"nps_score\": 8}\n```\nLet me know if you need more."
	raw, outcome := ExtractJSON(content)
	if outcome != ParseOK {
		t.Fatalf("outcome = %v, want ParseOK", outcome)
	}
	var m map[string]int
	if err := json.Unmarshal(raw, &m); err != nil || m["nps_score"] != 8 {
		t.Errorf("parsed = %v, err %v", m, err)
	}
}

func TestExtractJSONBraceSpan(t *testing.T) {
	content := `Sure! The result is {"churn_risk_level": "low"} as requested.`
	raw, outcome := ExtractJSON(content)
	if outcome != ParseOK {
		t.Fatalf("outcome = %v, want ParseOK", outcome)
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil || m["churn_risk_level"] != "low" {
		t.Errorf("parsed = %v, err %v", m, err)
	}
}

func TestExtractJSONEmpty(t *testing.T) {
	if _, outcome := ExtractJSON(""); outcome != ParseEmpty {
		t.Errorf("outcome = %v, want ParseEmpty", outcome)
	}
	if _, outcome := ExtractJSON("   \n  "); outcome != ParseEmpty {
		t.Errorf("whitespace outcome = %v, want ParseEmpty", outcome)
	}
}

func TestExtractJSONMalformed(t *testing.T) {
	inputs := []string{
		"I could not analyze this meeting.",
		`{"unterminated": `,
		"```json\nnot json\n```",
	}
	for _, in := range inputs {
		if _, outcome := ExtractJSON(in); outcome != ParseMalformed {
			t.Errorf("ExtractJSON(%q) outcome = %v, want ParseMalformed", in, outcome)
		}
	}
}

func TestDecodeResponseKeepsDefaultsOnFailure(t *testing.T) {
	out := struct {
		NPSScore int `json:"nps_score"`
	}{NPSScore: 5}

	if outcome := DecodeResponse("garbage", &out); outcome != ParseMalformed {
		t.Fatalf("outcome = %v", outcome)
	}
	if out.NPSScore != 5 {
		t.Errorf("defaults clobbered: %d", out.NPSScore)
	}

	if outcome := DecodeResponse(`{"nps_score": 9}`, &out); outcome != ParseOK {
		t.Fatalf("outcome = %v", outcome)
	}
	if out.NPSScore != 9 {
		t.Errorf("nps = %d, want 9", out.NPSScore)
	}
}

func TestTruncateTranscript(t *testing.T) {
	long := make([]byte, 20000)
	for i := range long {
		long[i] = 'a'
	}
	if got := truncateTranscript(string(long), 15000); len(got) != 15000 {
		t.Errorf("truncated length = %d, want 15000", len(got))
	}
	if got := truncateTranscript("short", 15000); got != "short" {
		t.Errorf("short text modified: %q", got)
	}
}
