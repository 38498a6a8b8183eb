// Package alerts fans operational alerts out to the configured channels with
// four priorities and a rate-limited history.
package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Priority orders alerts from routine to critical.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	default:
		return "critical"
	}
}

// Alert is one operational notification.
type Alert struct {
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Priority  Priority       `json:"priority"`
	Component string         `json:"component"`
	Details   map[string]any `json:"details,omitempty"`
	At        time.Time      `json:"at"`
}

// Options configures the manager. Log is always on; email and webhook
// activate when their settings are present.
type Options struct {
	WebhookURL string
	EmailTo    string
	EmailFrom  string
	SMTPAddr   string
	Log        zerolog.Logger

	// RateWindow suppresses identical (component, title) pairs repeating
	// within the window. Defaults to 10 minutes.
	RateWindow time.Duration
	// HistorySize bounds the in-memory history. Defaults to 200.
	HistorySize int
}

// Manager dispatches alerts.
type Manager struct {
	opts Options
	log  zerolog.Logger
	http *http.Client

	mu       sync.Mutex
	lastSent map[string]time.Time
	history  []Alert
}

// NewManager creates the alert manager.
func NewManager(opts Options) *Manager {
	if opts.RateWindow == 0 {
		opts.RateWindow = 10 * time.Minute
	}
	if opts.HistorySize == 0 {
		opts.HistorySize = 200
	}
	return &Manager{
		opts:     opts,
		log:      opts.Log.With().Str("component", "alerts").Logger(),
		http:     &http.Client{Timeout: 10 * time.Second},
		lastSent: make(map[string]time.Time),
	}
}

// Send dispatches one alert to every configured channel. Duplicate alerts
// inside the rate window are dropped; critical alerts are never dropped.
func (m *Manager) Send(ctx context.Context, a Alert) {
	if a.At.IsZero() {
		a.At = time.Now().UTC()
	}

	key := a.Component + "|" + a.Title
	m.mu.Lock()
	if last, ok := m.lastSent[key]; ok && a.Priority < PriorityCritical && time.Since(last) < m.opts.RateWindow {
		m.mu.Unlock()
		m.log.Debug().Str("title", a.Title).Msg("alert rate-limited")
		return
	}
	m.lastSent[key] = a.At
	m.history = append(m.history, a)
	if len(m.history) > m.opts.HistorySize {
		m.history = m.history[len(m.history)-m.opts.HistorySize:]
	}
	m.mu.Unlock()

	// Log channel is always on.
	ev := m.log.Warn()
	if a.Priority >= PriorityHigh {
		ev = m.log.Error()
	}
	ev.Str("title", a.Title).
		Str("priority", a.Priority.String()).
		Str("alert_component", a.Component).
		Msg(a.Message)

	if m.opts.WebhookURL != "" {
		if err := m.postWebhook(ctx, a); err != nil {
			m.log.Warn().Err(err).Msg("webhook alert failed")
		}
	}
	if m.opts.EmailTo != "" && m.opts.SMTPAddr != "" {
		if err := m.sendEmail(a); err != nil {
			m.log.Warn().Err(err).Msg("email alert failed")
		}
	}
}

// History returns a copy of the recent alerts, newest last.
func (m *Manager) History() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Alert, len(m.history))
	copy(out, m.history)
	return out
}

func (m *Manager) postWebhook(ctx context.Context, a Alert) error {
	payload, err := json.Marshal(map[string]any{
		"text": fmt.Sprintf("[%s] %s — %s", strings.ToUpper(a.Priority.String()), a.Title, a.Message),
		"alert": a,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.opts.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.http.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	return nil
}

func (m *Manager) sendEmail(a Alert) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: [%s] %s\r\n\r\n%s\r\n",
		m.opts.EmailFrom, m.opts.EmailTo, strings.ToUpper(a.Priority.String()), a.Title, a.Message)
	return smtp.SendMail(m.opts.SMTPAddr, nil, m.opts.EmailFrom, []string{m.opts.EmailTo}, []byte(msg))
}
