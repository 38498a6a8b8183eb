package ringcentral

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Auth exchanges a long-lived JWT for short-lived access tokens and refreshes
// them transparently before expiry.
type Auth struct {
	clientID     string
	clientSecret string
	jwt          string
	serverURL    string
	client       *http.Client

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

// NewAuth creates the JWT auth handler. No network call is made until the
// first AccessToken request.
func NewAuth(clientID, clientSecret, jwt, serverURL string) *Auth {
	return &Auth{
		clientID:     clientID,
		clientSecret: clientSecret,
		jwt:          jwt,
		serverURL:    strings.TrimRight(serverURL, "/"),
		client:       &http.Client{Timeout: 30 * time.Second},
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// AccessToken returns a valid access token, exchanging the JWT when the
// cached one is missing or within a minute of expiry.
func (a *Auth) AccessToken(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.accessToken != "" && time.Until(a.expiresAt) > time.Minute {
		return a.accessToken, nil
	}
	return a.exchangeLocked(ctx)
}

// Invalidate drops the cached token so the next call re-exchanges. Used by
// the client's 401 refresh-once policy.
func (a *Auth) Invalidate() {
	a.mu.Lock()
	a.accessToken = ""
	a.mu.Unlock()
}

func (a *Auth) exchangeLocked(ctx context.Context) (string, error) {
	form := url.Values{
		"grant_type": {"urn:ietf:params:oauth:grant-type:jwt-bearer"},
		"assertion":  {a.jwt},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.serverURL+"/restapi/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(a.clientID, a.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token exchange: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token exchange failed (status %d): %s", resp.StatusCode, string(body))
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token exchange returned empty access token")
	}

	a.accessToken = tok.AccessToken
	a.expiresAt = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return a.accessToken, nil
}
