package config

import (
	"testing"
	"time"
)

func TestParseScheduleTime(t *testing.T) {
	tests := []struct {
		in      string
		hour    int
		minute  int
		wantErr bool
	}{
		{"02:00", 2, 0, false},
		{"23:59", 23, 59, false},
		{"0:5", 0, 5, false},
		{"24:00", 0, 0, true},
		{"12:60", 0, 0, true},
		{"noon", 0, 0, true},
		{"12", 0, 0, true},
		{"12:00:00", 0, 0, true},
	}
	for _, tt := range tests {
		h, m, err := ParseScheduleTime(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseScheduleTime(%q) expected error, got %d:%d", tt.in, h, m)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseScheduleTime(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if h != tt.hour || m != tt.minute {
			t.Errorf("ParseScheduleTime(%q) = %d:%d, want %d:%d", tt.in, h, m, tt.hour, tt.minute)
		}
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			DailyScheduleTime: "02:00",
			BatchSize:         50,
			WorkerCount:       4,
			EmbeddingDim:      1536,
			ChunkDuration:     30 * time.Minute,
			ChunkOverlap:      2 * time.Second,
			RCClientID:        "cid",
		}
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	c := base()
	c.DailyScheduleTime = "25:00"
	if err := c.Validate(); err == nil {
		t.Error("expected error for bad schedule time")
	}

	c = base()
	c.WorkerCount = 0
	if err := c.Validate(); err == nil {
		t.Error("expected error for zero workers")
	}

	c = base()
	c.ChunkOverlap = c.ChunkDuration
	if err := c.Validate(); err == nil {
		t.Error("expected error when overlap >= chunk duration")
	}

	c = base()
	c.RCClientID = ""
	if err := c.Validate(); err == nil {
		t.Error("expected error when no ingestion source configured")
	}
}

func TestInternalDomainSet(t *testing.T) {
	c := &Config{InternalDomains: "Example.com, corp.example.net ,"}
	set := c.InternalDomainSet()
	if !set["example.com"] || !set["corp.example.net"] {
		t.Errorf("domain set = %v, want lowercase entries", set)
	}
	if len(set) != 2 {
		t.Errorf("domain set size = %d, want 2", len(set))
	}
}

func TestCustomVocabulary(t *testing.T) {
	c := &Config{ASRCustomVocab: "ACME, churn , NPS"}
	got := c.CustomVocabulary()
	want := []string{"ACME", "churn", "NPS"}
	if len(got) != len(want) {
		t.Fatalf("vocabulary = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("vocabulary[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	c = &Config{}
	if v := c.CustomVocabulary(); v != nil {
		t.Errorf("empty vocabulary = %v, want nil", v)
	}
}
