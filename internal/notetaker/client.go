package notetaker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// keySpacing keeps each API key under the provider's 60 calls/min limit.
const keySpacing = time.Second

// Client talks to the notetaker provider with a single employee's API key.
// Requests on one client are serialized with a 1 s spacing; employees are
// synced concurrently with one client each.
type Client struct {
	baseURL  string
	apiKey   string
	http     *http.Client
	log      zerolog.Logger
	lastCall time.Time
}

// NewClient creates a per-key client. apiKey is the already-decrypted secret
// and must not outlive the sync.
func NewClient(baseURL, apiKey string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     log.With().Str("component", "notetaker").Logger(),
	}
}

// Meeting is one notetaker meeting summary record.
type Meeting struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	MeetingType  string    `json:"meeting_type"`
	Platform     string    `json:"platform"`
	CreatedAt    time.Time `json:"created_at"`
	StartTime    time.Time `json:"scheduled_start_time"`
	EndTime      time.Time `json:"scheduled_end_time"`
	Participants []struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"participants"`
	HasRecording bool `json:"has_recording"`
}

type meetingsPage struct {
	Items      []Meeting `json:"items"`
	NextCursor string    `json:"next_cursor"`
}

// pace enforces the per-key spacing before each request.
func (c *Client) pace(ctx context.Context) error {
	wait := keySpacing - time.Since(c.lastCall)
	if wait > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	c.lastCall = time.Now()
	return nil
}

// get performs one paced authenticated request. notFoundOK turns a 404 into
// (nil, nil) for the endpoints that legitimately lack data.
func (c *Client) get(ctx context.Context, path string, query url.Values, notFoundOK bool) ([]byte, error) {
	if err := c.pace(ctx); err != nil {
		return nil, err
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusNotFound && notFoundOK:
		return nil, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		retry := 60 * time.Second
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			retry = time.Duration(secs) * time.Second
		}
		return nil, fmt.Errorf("rate limited on %s, retry after %s", path, retry)
	default:
		return nil, fmt.Errorf("GET %s failed (status %d)", path, resp.StatusCode)
	}
}

// ListMeetings enumerates meetings created after the watermark, following
// cursors until exhausted.
func (c *Client) ListMeetings(ctx context.Context, createdAfter time.Time) ([]Meeting, error) {
	var out []Meeting

	cursor := ""
	for {
		q := url.Values{"limit": {"50"}}
		if !createdAfter.IsZero() {
			q.Set("created_after", createdAfter.UTC().Format(time.RFC3339))
		}
		if cursor != "" {
			q.Set("cursor", cursor)
		}

		body, err := c.get(ctx, "/meetings", q, false)
		if err != nil {
			return out, err
		}
		var pg meetingsPage
		if err := json.Unmarshal(body, &pg); err != nil {
			return out, fmt.Errorf("decode meetings: %w", err)
		}
		out = append(out, pg.Items...)

		if pg.NextCursor == "" {
			break
		}
		cursor = pg.NextCursor
	}
	return out, nil
}

// TranscriptResult carries a fetched transcript. Empty marks a provider 404,
// which is tolerated and stored as an empty transcript with a flag.
type TranscriptResult struct {
	Text  string
	Empty bool
}

type transcriptJSON struct {
	Transcript []struct {
		Speaker string `json:"speaker_name"`
		Text    string `json:"text"`
	} `json:"transcript"`
}

// GetTranscript fetches a meeting's full transcript, flattened to
// "Speaker: text" lines.
func (c *Client) GetTranscript(ctx context.Context, meetingID string) (*TranscriptResult, error) {
	body, err := c.get(ctx, "/meetings/"+url.PathEscape(meetingID)+"/transcript", nil, true)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return &TranscriptResult{Empty: true}, nil
	}

	var t transcriptJSON
	if err := json.Unmarshal(body, &t); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	var b strings.Builder
	for _, line := range t.Transcript {
		if line.Speaker != "" {
			b.WriteString(line.Speaker)
			b.WriteString(": ")
		}
		b.WriteString(line.Text)
		b.WriteByte('\n')
	}
	return &TranscriptResult{Text: strings.TrimSpace(b.String())}, nil
}

// GetSummary fetches the provider-generated meeting summary. 404 yields "".
func (c *Client) GetSummary(ctx context.Context, meetingID string) (string, error) {
	body, err := c.get(ctx, "/meetings/"+url.PathEscape(meetingID)+"/summary", nil, true)
	if err != nil || body == nil {
		return "", err
	}
	var s struct {
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal(body, &s); err != nil {
		return "", fmt.Errorf("decode summary: %w", err)
	}
	return s.Summary, nil
}

// GetActionItems fetches the provider's action items. 404 yields an empty list.
func (c *Client) GetActionItems(ctx context.Context, meetingID string) (json.RawMessage, error) {
	body, err := c.get(ctx, "/meetings/"+url.PathEscape(meetingID)+"/action-items", nil, true)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return json.RawMessage(`[]`), nil
	}
	var items struct {
		ActionItems json.RawMessage `json:"action_items"`
	}
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("decode action items: %w", err)
	}
	if items.ActionItems == nil {
		return json.RawMessage(`[]`), nil
	}
	return items.ActionItems, nil
}
