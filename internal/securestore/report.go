package securestore

import (
	"fmt"
	"strings"
	"time"

	"github.com/mainseq/ci-engine/internal/database"
)

// MarkdownReport renders the human-readable transcript report stored next to
// the JSON artefact.
func MarkdownReport(rec *database.RecordingRow, t *database.TranscriptRow) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "# Call Transcript — %s\n\n", rec.RecordingID)
	fmt.Fprintf(&b, "| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| Start | %s |\n", rec.CallStartTime.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "| Duration | %.0f s |\n", rec.Duration)
	fmt.Fprintf(&b, "| Direction | %s |\n", rec.Direction)
	fmt.Fprintf(&b, "| From | %s %s |\n", rec.FromNumber, rec.FromName)
	fmt.Fprintf(&b, "| To | %s %s |\n", rec.ToNumber, rec.ToName)
	fmt.Fprintf(&b, "| Language | %s |\n", t.Language)
	fmt.Fprintf(&b, "| Words | %d |\n", t.WordCount)
	fmt.Fprintf(&b, "| Confidence | %.2f |\n\n", t.Confidence)

	b.WriteString("## Transcript\n\n")
	if len(t.Segments) > 0 {
		for _, s := range t.Segments {
			speaker := s.Speaker
			if speaker == "" {
				speaker = "—"
			}
			fmt.Fprintf(&b, "**[%s – %s] %s:** %s\n\n",
				formatTimestamp(s.Start), formatTimestamp(s.End), speaker, strings.TrimSpace(s.Text))
		}
	} else {
		b.WriteString(t.Text)
		b.WriteString("\n")
	}

	return []byte(b.String())
}

func formatTimestamp(secs float64) string {
	d := time.Duration(secs * float64(time.Second))
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
