package ingest

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestIDCache(t *testing.T) {
	c := NewIDCache()
	if c.Has("REC-1") {
		t.Error("empty cache should not contain REC-1")
	}
	c.Add("REC-1")
	if !c.Has("REC-1") {
		t.Error("cache should contain REC-1 after Add")
	}
	if c.Size() != 1 {
		t.Errorf("Size = %d, want 1", c.Size())
	}

	// Adding the same id twice is idempotent.
	c.Add("REC-1")
	if c.Size() != 1 {
		t.Errorf("Size after duplicate Add = %d, want 1", c.Size())
	}
}

func TestStagedFileDedup(t *testing.T) {
	dir := t.TempDir()
	d := &Deduper{stagingDir: dir}

	if d.stagedFileExists("REC-1") {
		t.Error("no staged file yet")
	}

	if err := os.WriteFile(filepath.Join(dir, "REC-1.mp3"), []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !d.stagedFileExists("REC-1") {
		t.Error("staged file should be detected")
	}

	// Zero-byte files don't count as staged.
	if err := os.WriteFile(filepath.Join(dir, "REC-2.wav"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if d.stagedFileExists("REC-2") {
		t.Error("empty staged file should not count")
	}
}

func TestContentHashStable(t *testing.T) {
	start := time.Date(2025, 9, 21, 15, 30, 0, 0, time.UTC)
	h1 := contentHash("Weekly Sync", "Host@Example.com", start, 1800)
	h2 := contentHash("Weekly Sync", "host@example.com", start, 1800)
	if h1 != h2 {
		t.Error("content hash should be case-insensitive on host email")
	}
	h3 := contentHash("Weekly Sync", "host@example.com", start.Add(time.Hour), 1800)
	if h1 == h3 {
		t.Error("different start times should produce different hashes")
	}
}

func TestParticipantDuration(t *testing.T) {
	join := time.Date(2025, 9, 21, 15, 0, 0, 0, time.UTC)
	leave := join.Add(45 * time.Minute)

	if d := participantDuration(&join, &leave); d == nil || *d != 2700 {
		t.Errorf("participantDuration = %v, want 2700", d)
	}
	if d := participantDuration(nil, &leave); d != nil {
		t.Error("missing join time should yield nil")
	}
	if d := participantDuration(&join, nil); d != nil {
		t.Error("missing leave time should yield nil")
	}
	if d := participantDuration(&leave, &join); d != nil {
		t.Error("leave before join should yield nil")
	}
}

func TestNormalizeDirection(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Inbound", "inbound"},
		{"Outbound", "outbound"},
		{"Internal", "internal"},
		{"", "internal"},
	}
	for _, tt := range tests {
		if got := normalizeDirection(tt.in); got != tt.want {
			t.Errorf("normalizeDirection(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoadWatermarkDefault(t *testing.T) {
	w, err := LoadWatermark(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatal(err)
	}
	lookback := time.Since(w.LastCheck)
	if lookback < 6*24*time.Hour || lookback > 8*24*time.Hour {
		t.Errorf("default watermark lookback = %s, want ~7d", lookback)
	}
}

func TestSaveJSONRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "wm.json")
	in := &Watermark{LastCheck: time.Date(2025, 9, 21, 0, 0, 0, 0, time.UTC), TotalChecked: 5}
	if err := SaveJSON(path, in); err != nil {
		t.Fatal(err)
	}
	out, err := LoadWatermark(path)
	if err != nil {
		t.Fatal(err)
	}
	if !out.LastCheck.Equal(in.LastCheck) || out.TotalChecked != 5 {
		t.Errorf("round trip mismatch: %+v", out)
	}
}
