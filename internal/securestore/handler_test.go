package securestore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mainseq/ci-engine/internal/database"
)

type recordingAuditor struct {
	entries []AuditEntry
}

func (r *recordingAuditor) Append(_ context.Context, e AuditEntry) error {
	r.entries = append(r.entries, e)
	return nil
}

func (r *recordingAuditor) countOutcome(outcome string) int {
	n := 0
	for _, e := range r.entries {
		if e.Outcome == outcome {
			n++
		}
	}
	return n
}

func newTestHandler(audit Auditor) *Handler {
	return &Handler{
		audit:  audit,
		log:    zerolog.Nop(),
		remove: os.Remove,
		stat:   os.Stat,
	}
}

func stagedAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "REC-1.wav")
	if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDeleteWithVerification(t *testing.T) {
	audit := &recordingAuditor{}
	h := newTestHandler(audit)
	path := stagedAudio(t)

	if err := h.deleteWithVerification(context.Background(), "REC-1", &path); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("audio still exists after deletion")
	}
	if audit.countOutcome(OutcomeSuccess) != 1 {
		t.Errorf("success audit entries = %d, want 1", audit.countOutcome(OutcomeSuccess))
	}
}

func TestDeleteRetriesOnce(t *testing.T) {
	audit := &recordingAuditor{}
	h := newTestHandler(audit)
	path := stagedAudio(t)

	failures := 1
	h.remove = func(p string) error {
		if failures > 0 {
			failures--
			return errors.New("unlink: device busy")
		}
		return os.Remove(p)
	}

	if err := h.deleteWithVerification(context.Background(), "REC-1", &path); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("audio still exists after retry")
	}
	if audit.countOutcome(OutcomeRetried) != 1 {
		t.Errorf("retry audit entries = %d, want 1", audit.countOutcome(OutcomeRetried))
	}
	if audit.countOutcome(OutcomeSuccess) != 1 {
		t.Errorf("success audit entries = %d, want 1", audit.countOutcome(OutcomeSuccess))
	}
}

func TestDeletePersistentFailure(t *testing.T) {
	audit := &recordingAuditor{}
	h := newTestHandler(audit)
	path := stagedAudio(t)

	h.remove = func(string) error { return errors.New("unlink: permission denied") }

	err := h.deleteWithVerification(context.Background(), "REC-1", &path)
	var de *DeletionError
	if !errors.As(err, &de) {
		t.Fatalf("expected DeletionError, got %v", err)
	}
	if de.Path != path {
		t.Errorf("DeletionError path = %q, want %q", de.Path, path)
	}
	if audit.countOutcome(OutcomeFailure) != 1 {
		t.Errorf("failure audit entries = %d, want 1", audit.countOutcome(OutcomeFailure))
	}
}

func TestDeleteAlreadyAbsent(t *testing.T) {
	audit := &recordingAuditor{}
	h := newTestHandler(audit)
	path := filepath.Join(t.TempDir(), "gone.wav")

	if err := h.deleteWithVerification(context.Background(), "REC-1", &path); err != nil {
		t.Fatal(err)
	}
	if audit.countOutcome(OutcomePartial) != 1 {
		t.Errorf("partial audit entries = %d, want 1", audit.countOutcome(OutcomePartial))
	}
}

func TestChainHash(t *testing.T) {
	e := AuditEntry{
		OccurredAt: time.Date(2025, 9, 21, 15, 30, 0, 0, time.UTC),
		Action:     "delete-audio",
		Subject:    "REC-1",
		Outcome:    OutcomeSuccess,
	}

	h1 := ChainHash("", e)
	h2 := ChainHash("", e)
	if h1 != h2 {
		t.Error("chain hash not deterministic")
	}

	// Linking to a different predecessor changes the hash.
	if ChainHash(h1, e) == h1 {
		t.Error("chained hash should differ from tip")
	}

	// Any field edit breaks the chain.
	tampered := e
	tampered.Outcome = OutcomeFailure
	if ChainHash("", tampered) == h1 {
		t.Error("tampered entry produced identical hash")
	}
}

func TestMarkdownReport(t *testing.T) {
	rec := &database.RecordingRow{
		RecordingID:   "REC-1",
		CallStartTime: time.Date(2025, 9, 21, 15, 30, 0, 0, time.UTC),
		Duration:      120,
		Direction:     "inbound",
		FromNumber:    "+15550001111",
		ToNumber:      "+15550002222",
	}
	tr := &database.TranscriptRow{
		Text:       "hello thanks for calling",
		Language:   "en",
		WordCount:  4,
		Confidence: 0.93,
		Segments: []database.TranscriptSegment{
			{Start: 0, End: 65, Text: "hello thanks for calling", Speaker: "agent"},
		},
	}

	report := string(MarkdownReport(rec, tr))
	for _, want := range []string{"REC-1", "+15550001111", "agent", "[0:00 – 1:05]"} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q", want)
		}
	}
}

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		secs float64
		want string
	}{
		{0, "0:00"},
		{65, "1:05"},
		{3661, "1:01:01"},
	}
	for _, tt := range tests {
		if got := formatTimestamp(tt.secs); got != tt.want {
			t.Errorf("formatTimestamp(%f) = %q, want %q", tt.secs, got, tt.want)
		}
	}
}
