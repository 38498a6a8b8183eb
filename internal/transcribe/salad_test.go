package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testClient(t *testing.T, srv *httptest.Server) (*SaladClient, *[]time.Duration) {
	t.Helper()
	c := NewSaladClient(srv.URL, "test-key", "full", zerolog.Nop())
	var slept []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return c, &slept
}

func TestSubmitRetryAfter(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n <= 2 {
			w.Header().Set("Retry-After", "30")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "job-1"})
	}))
	defer srv.Close()

	c, slept := testClient(t, srv)
	jobID, err := c.Submit(context.Background(), "https://example.com/a.wav", SubmitOpts{IdempotencyTag: "REC-1"})
	if err != nil {
		t.Fatal(err)
	}
	if jobID != "job-1" {
		t.Errorf("job id = %q, want job-1", jobID)
	}
	if calls.Load() != 3 {
		t.Errorf("submit attempts = %d, want 3", calls.Load())
	}
	if len(*slept) != 2 {
		t.Fatalf("sleeps = %d, want 2", len(*slept))
	}
	for _, d := range *slept {
		if d != 30*time.Second {
			t.Errorf("honoured Retry-After = %s, want 30s", d)
		}
	}
}

func TestSubmitSendsIdempotencyTag(t *testing.T) {
	var got submitRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]string{"id": "job-2"})
	}))
	defer srv.Close()

	c, _ := testClient(t, srv)
	_, err := c.Submit(context.Background(), "https://example.com/a.wav", SubmitOpts{
		Language:       "en",
		InitialPrompt:  "support call",
		IdempotencyTag: "REC-42",
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.Metadata.IdempotencyTag != "REC-42" {
		t.Errorf("idempotency tag = %q, want REC-42", got.Metadata.IdempotencyTag)
	}
	if got.Engine != "full" {
		t.Errorf("engine = %q, want full", got.Engine)
	}
	if got.InitialPrompt != "support call" {
		t.Errorf("initial prompt = %q", got.InitialPrompt)
	}
}

func TestSubmitServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, _ := testClient(t, srv)
	_, err := c.Submit(context.Background(), "https://example.com/a.wav", SubmitOpts{})
	var te *TransientError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransientError, got %v", err)
	}
	if te.Status != 500 {
		t.Errorf("status = %d, want 500", te.Status)
	}
}

func TestWaitForJobPollsToCompletion(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := polls.Add(1)
		switch {
		case n == 1:
			json.NewEncoder(w).Encode(map[string]any{"status": "queued"})
		case n == 2:
			json.NewEncoder(w).Encode(map[string]any{"status": "running"})
		default:
			json.NewEncoder(w).Encode(map[string]any{
				"status": "succeeded",
				"output": map[string]any{
					"text":     "hello world",
					"language": "en",
					"language_probability": 0.97,
					"duration": 12.5,
					"segments": []map[string]any{
						{"start": 0, "end": 12.5, "text": "hello world", "avg_logprob": -0.1},
					},
				},
			})
		}
	}))
	defer srv.Close()

	c, slept := testClient(t, srv)
	resp, err := c.WaitForJob(context.Background(), "job-1", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Text != "hello world" {
		t.Errorf("text = %q", resp.Text)
	}
	if resp.Language != "en" || resp.LanguageProbability != 0.97 {
		t.Errorf("language = %q (%f)", resp.Language, resp.LanguageProbability)
	}
	if len(resp.Segments) != 1 {
		t.Errorf("segments = %d, want 1", len(resp.Segments))
	}
	// Back-off doubles from the 2s base.
	if len(*slept) < 2 || (*slept)[0] != 2*time.Second || (*slept)[1] != 4*time.Second {
		t.Errorf("backoff sequence = %v", *slept)
	}
}

func TestWaitForJobFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"status": "failed", "error": "bad audio"})
	}))
	defer srv.Close()

	c, _ := testClient(t, srv)
	if _, err := c.WaitForJob(context.Background(), "job-1", time.Minute); err == nil {
		t.Fatal("expected failure error")
	}
}

func TestNormalizeState(t *testing.T) {
	tests := []struct{ in, want string }{
		{"queued", StateQueued},
		{"pending", StateQueued},
		{"RUNNING", StateRunning},
		{"succeeded", StateSucceeded},
		{"completed", StateSucceeded},
		{"failed", StateFailed},
		{"mystery", StateRunning},
	}
	for _, tt := range tests {
		if got := normalizeState(tt.in); got != tt.want {
			t.Errorf("normalizeState(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
