package transcribe

import (
	"math"
	"testing"
	"time"
)

func TestPlanChunksSingleShot(t *testing.T) {
	chunkDur := 30 * time.Minute
	overlap := 2 * time.Second

	// Just under the bound: single chunk covering everything.
	chunks := PlanChunks(chunkDur-time.Second, chunkDur, overlap)
	if len(chunks) != 1 {
		t.Fatalf("chunks = %d, want 1", len(chunks))
	}
	if chunks[0].Offset != 0 || chunks[0].Length != chunkDur-time.Second {
		t.Errorf("single chunk = %+v", chunks[0])
	}

	// Exactly at the bound is still single-shot.
	if got := PlanChunks(chunkDur, chunkDur, overlap); len(got) != 1 {
		t.Errorf("at-bound chunks = %d, want 1", len(got))
	}
}

func TestPlanChunksLongAudio(t *testing.T) {
	chunkDur := 30 * time.Minute
	overlap := 2 * time.Second
	duration := chunkDur + time.Minute

	chunks := PlanChunks(duration, chunkDur, overlap)
	wantN := int(math.Ceil(float64(duration) / float64(chunkDur-overlap)))
	if len(chunks) != wantN {
		t.Fatalf("chunks = %d, want %d", len(chunks), wantN)
	}

	// Consecutive chunks overlap by exactly the configured amount.
	for i := 1; i < len(chunks); i++ {
		prevEnd := chunks[i-1].Offset + chunks[i-1].Length
		gap := chunks[i].Offset - prevEnd
		if i < len(chunks) && chunks[i-1].Length == chunkDur && gap != -overlap {
			t.Errorf("chunk %d overlap = %s, want %s", i, -gap, overlap)
		}
	}

	// Last chunk ends exactly at the total duration.
	last := chunks[len(chunks)-1]
	if last.Offset+last.Length != duration {
		t.Errorf("coverage ends at %s, want %s", last.Offset+last.Length, duration)
	}
}

func TestIsVideo(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/data/audio_queue/REC-1.mp4", true},
		{"/data/audio_queue/REC-1.MOV", true},
		{"/data/audio_queue/REC-1.mp3", false},
		{"/data/audio_queue/REC-1.wav", false},
	}
	for _, tt := range tests {
		if got := IsVideo(tt.path); got != tt.want {
			t.Errorf("IsVideo(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
