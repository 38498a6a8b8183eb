package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// SaladClient is the submit-and-poll ASR provider client.
type SaladClient struct {
	baseURL string
	apiKey  string
	engine  string
	http    *http.Client
	log     zerolog.Logger

	// sleep is swapped in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSaladClient creates the ASR client.
func NewSaladClient(baseURL, apiKey, engine string, log zerolog.Logger) *SaladClient {
	return &SaladClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		engine:  engine,
		http:    &http.Client{Timeout: 60 * time.Second},
		log:     log.With().Str("component", "asr").Logger(),
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func (c *SaladClient) Name() string   { return "salad" }
func (c *SaladClient) Engine() string { return c.engine }

type submitRequest struct {
	AudioURL         string   `json:"audio_url"`
	Engine           string   `json:"engine"`
	Language         string   `json:"language,omitempty"`
	InitialPrompt    string   `json:"initial_prompt,omitempty"`
	Diarization      bool     `json:"diarization,omitempty"`
	Summarize        bool     `json:"summarize,omitempty"`
	CustomVocabulary []string `json:"custom_vocabulary,omitempty"`
	Metadata         struct {
		IdempotencyTag string `json:"idempotency_tag"`
	} `json:"metadata"`
}

type submitResponse struct {
	ID string `json:"id"`
}

// Submit creates one transcription job. Rate-limit (429) responses honour the
// provider's Retry-After and retry in place; other transient failures are the
// caller's retry policy.
func (c *SaladClient) Submit(ctx context.Context, audioURL string, opts SubmitOpts) (string, error) {
	body := submitRequest{
		AudioURL:         audioURL,
		Engine:           opts.Engine,
		Language:         opts.Language,
		InitialPrompt:    opts.InitialPrompt,
		Diarization:      opts.Diarization,
		Summarize:        opts.Summarization,
		CustomVocabulary: opts.CustomVocabulary,
	}
	if body.Engine == "" {
		body.Engine = c.engine
	}
	body.Metadata.IdempotencyTag = opts.IdempotencyTag

	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/jobs", bytes.NewReader(payload))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.http.Do(req)
		if err != nil {
			return "", fmt.Errorf("asr submit: %w", err)
		}
		respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		if err != nil {
			return "", fmt.Errorf("read submit response: %w", err)
		}

		switch {
		case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
			var sr submitResponse
			if err := json.Unmarshal(respBody, &sr); err != nil {
				return "", fmt.Errorf("decode submit response: %w", err)
			}
			if sr.ID == "" {
				return "", fmt.Errorf("asr submit returned empty job id")
			}
			return sr.ID, nil
		case resp.StatusCode == http.StatusTooManyRequests:
			wait := retryAfter(resp.Header.Get("Retry-After"))
			c.log.Warn().Dur("retry_after", wait).Msg("asr rate limited on submit")
			if err := c.sleep(ctx, wait); err != nil {
				return "", err
			}
		case resp.StatusCode >= 500:
			return "", &TransientError{Op: "submit", Status: resp.StatusCode}
		default:
			return "", fmt.Errorf("asr submit failed (status %d): %s", resp.StatusCode, truncate(string(respBody), 300))
		}
	}
}

func retryAfter(h string) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 60 * time.Second
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

// TransientError marks a retryable provider failure (5xx).
type TransientError struct {
	Op     string
	Status int
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("asr %s transient failure (status %d)", e.Op, e.Status)
}

type pollResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
	Output *struct {
		Text     string  `json:"text"`
		Language string  `json:"language"`
		LangProb float64 `json:"language_probability"`
		Duration float64 `json:"duration"`
		Segments []Segment `json:"segments"`
	} `json:"output"`
}

// Poll fetches a job's status once.
func (c *SaladClient) Poll(ctx context.Context, jobID string) (*JobStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/jobs/"+jobID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("asr poll: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read poll response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		wait := retryAfter(resp.Header.Get("Retry-After"))
		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
		return &JobStatus{State: StateRunning}, nil
	case resp.StatusCode >= 500:
		return nil, &TransientError{Op: "poll", Status: resp.StatusCode}
	default:
		return nil, fmt.Errorf("asr poll failed (status %d)", resp.StatusCode)
	}

	var pr pollResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return nil, fmt.Errorf("decode poll response: %w", err)
	}

	js := &JobStatus{State: normalizeState(pr.Status), Error: pr.Error}
	if js.State == StateSucceeded {
		if pr.Output == nil {
			return nil, fmt.Errorf("asr job succeeded without output")
		}
		js.Response = &Response{
			Text:                pr.Output.Text,
			Language:            pr.Output.Language,
			LanguageProbability: pr.Output.LangProb,
			Duration:            pr.Output.Duration,
			Segments:            pr.Output.Segments,
		}
	}
	return js, nil
}

func normalizeState(s string) string {
	switch strings.ToLower(s) {
	case "queued", "pending", "created":
		return StateQueued
	case "running", "started", "processing":
		return StateRunning
	case "succeeded", "completed":
		return StateSucceeded
	case "failed", "error":
		return StateFailed
	default:
		return StateRunning
	}
}

// WaitForJob polls with exponential back-off (2s base, doubling, 30s cap)
// until the job reaches a terminal state or maxWait elapses.
func (c *SaladClient) WaitForJob(ctx context.Context, jobID string, maxWait time.Duration) (*Response, error) {
	deadline := time.Now().Add(maxWait)
	interval := 2 * time.Second

	for {
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("asr job %s timed out after %s", jobID, maxWait)
		}

		status, err := c.Poll(ctx, jobID)
		if err != nil {
			var te *TransientError
			if errors.As(err, &te) {
				// Transient poll failures keep waiting; the job itself is fine.
				c.log.Warn().Err(err).Str("job_id", jobID).Msg("transient poll failure")
			} else {
				return nil, err
			}
		} else {
			switch status.State {
			case StateSucceeded:
				return status.Response, nil
			case StateFailed:
				return nil, fmt.Errorf("asr job %s failed: %s", jobID, status.Error)
			}
		}

		if err := c.sleep(ctx, interval); err != nil {
			return nil, err
		}
		if interval < 30*time.Second {
			interval *= 2
			if interval > 30*time.Second {
				interval = 30 * time.Second
			}
		}
	}
}
