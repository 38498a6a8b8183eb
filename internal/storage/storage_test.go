package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestArchiveFolder(t *testing.T) {
	ts := time.Date(2025, 9, 21, 15, 30, 0, 0, time.UTC)
	tests := []struct {
		kind string
		want string
	}{
		{KindAudio, "2025/09-Sep/Audio"},
		{KindMetadata, "2025/09-Sep/Metadata"},
		{KindTranscripts, "2025/09-Sep/Transcripts"},
	}
	for _, tt := range tests {
		if got := ArchiveFolder(ts, tt.kind); got != tt.want {
			t.Errorf("ArchiveFolder(%s) = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestLocalArchiveLayout(t *testing.T) {
	root := t.TempDir()
	la := NewLocalArchive(root, zerolog.Nop())
	callTime := time.Date(2025, 9, 21, 15, 30, 0, 0, time.UTC)

	jsonPath, err := la.WriteTranscriptJSON("REC-1", callTime, map[string]string{"text": "hello"})
	if err != nil {
		t.Fatal(err)
	}
	wantJSON := filepath.Join(root, "transcriptions", "json", "2025", "09", "21", "REC-1.json")
	if jsonPath != wantJSON {
		t.Errorf("json path = %q, want %q", jsonPath, wantJSON)
	}
	if _, err := os.Stat(jsonPath); err != nil {
		t.Errorf("json file missing: %v", err)
	}

	mdPath, err := la.WriteTranscriptMarkdown("REC-1", callTime, []byte("# Transcript"))
	if err != nil {
		t.Fatal(err)
	}
	wantMD := filepath.Join(root, "transcriptions", "md", "2025", "09", "21", "REC-1.md")
	if mdPath != wantMD {
		t.Errorf("md path = %q, want %q", mdPath, wantMD)
	}

	insightsPath, err := la.WriteInsights("REC-1", map[string]int{"layers": 6})
	if err != nil {
		t.Fatal(err)
	}
	wantInsights := filepath.Join(root, "transcriptions", "insights", "REC-1_insights.json")
	if insightsPath != wantInsights {
		t.Errorf("insights path = %q, want %q", insightsPath, wantInsights)
	}
}

func TestWriteFileAtomicNoPartials(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")
	if err := writeFileAtomic(path, []byte("data")); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "data" {
		t.Errorf("content = %q, err %v", data, err)
	}
}
