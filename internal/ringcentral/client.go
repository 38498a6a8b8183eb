package ringcentral

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// pageSleep is the pause between paginated fetches to keep headroom under the
// provider rate limits.
const pageSleep = 500 * time.Millisecond

// Client is the telephony provider API client. All calls authenticate with a
// short-lived access token from Auth; a 401 triggers exactly one token
// refresh and retry.
type Client struct {
	auth      *Auth
	serverURL string
	http      *http.Client
	log       zerolog.Logger
}

// NewClient creates the provider client.
func NewClient(auth *Auth, serverURL string, log zerolog.Logger) *Client {
	return &Client{
		auth:      auth,
		serverURL: strings.TrimRight(serverURL, "/"),
		http:      &http.Client{Timeout: 60 * time.Second},
		log:       log.With().Str("component", "ringcentral").Logger(),
	}
}

// RateLimitError carries the provider-requested backoff from a 429 response.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// RetryAfterOf extracts the backoff from an error chain, or 0.
func RetryAfterOf(err error) time.Duration {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle.RetryAfter
	}
	return 0
}

// getJSON performs an authenticated GET and decodes the JSON response into out.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	body, err := c.get(ctx, path, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	refreshed := false
	for {
		token, err := c.auth.AccessToken(ctx)
		if err != nil {
			return nil, err
		}

		u := c.serverURL + path
		if len(query) > 0 {
			u += "?" + query.Encode()
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("GET %s: %w", path, err)
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return body, nil
		case resp.StatusCode == http.StatusUnauthorized && !refreshed:
			// Refresh once and retry once; a second 401 is permanent.
			c.auth.Invalidate()
			refreshed = true
			continue
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, &RateLimitError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
		default:
			return nil, fmt.Errorf("GET %s failed (status %d): %s", path, resp.StatusCode, truncate(string(body), 300))
		}
	}
}

// parseRetryAfter reads a Retry-After header in seconds, falling back to 60s.
func parseRetryAfter(h string) time.Duration {
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

// DownloadRecording streams a call recording's content to destPath.
func (c *Client) DownloadRecording(ctx context.Context, recordingID, destPath string) error {
	uri := c.serverURL + "/restapi/v1.0/account/~/recording/" + url.PathEscape(recordingID) + "/content"
	return c.DownloadTo(ctx, uri, destPath)
}

// DownloadTo streams an authenticated media URI to destPath. The provider
// hands back either an SDK-authenticated downloadUri or a presigned
// mediaLink; both accept a Bearer header.
func (c *Client) DownloadTo(ctx context.Context, mediaURI, destPath string) error {
	token, err := c.auth.AccessToken(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURI, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return &RateLimitError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return fmt.Errorf("download failed (status %d)", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}

	// Write via a temp name so a partial download never looks complete.
	tmp := destPath + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("stream download: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, destPath)
}
