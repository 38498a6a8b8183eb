// Package securestore persists transcript artefacts to local and remote
// archives and then deletes the original audio with verification and a
// tamper-evident audit trail.
package securestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mainseq/ci-engine/internal/database"
)

// AuditEntry is one row of the audit trail. Entries are hash-chained:
// entry_hash covers the entry's fields plus the previous entry's hash, so
// any retroactive edit breaks the chain.
type AuditEntry struct {
	OccurredAt time.Time       `json:"occurred_at"`
	Action     string          `json:"action"`
	Subject    string          `json:"subject"`
	Outcome    string          `json:"outcome"`
	Detail     json.RawMessage `json:"detail,omitempty"`
}

// Audit outcomes.
const (
	OutcomeSuccess = "success"
	OutcomePartial = "partial"
	OutcomeFailure = "failure"
	OutcomeRetried = "retried"
)

// ChainHash computes an entry's hash over its fields and the previous hash.
func ChainHash(prevHash string, e AuditEntry) string {
	h := sha256.New()
	h.Write([]byte(prevHash))
	h.Write([]byte(e.OccurredAt.UTC().Format(time.RFC3339Nano)))
	h.Write([]byte(e.Action))
	h.Write([]byte(e.Subject))
	h.Write([]byte(e.Outcome))
	h.Write(e.Detail)
	return hex.EncodeToString(h.Sum(nil))
}

// AuditLog appends hash-chained entries to the audit_log table.
type AuditLog struct {
	db  *database.DB
	log zerolog.Logger

	mu       sync.Mutex
	lastHash string
	loaded   bool
}

// NewAuditLog creates the audit writer.
func NewAuditLog(db *database.DB, log zerolog.Logger) *AuditLog {
	return &AuditLog{db: db, log: log.With().Str("component", "audit").Logger()}
}

// Append records one entry, linking it to the chain tip.
func (a *AuditLog) Append(ctx context.Context, e AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	if e.Detail == nil {
		e.Detail = json.RawMessage(`{}`)
	}

	if !a.loaded {
		var tip *string
		err := a.db.Pool.QueryRow(ctx,
			`SELECT entry_hash FROM audit_log ORDER BY id DESC LIMIT 1`,
		).Scan(&tip)
		if err == nil && tip != nil {
			a.lastHash = *tip
		}
		a.loaded = true
	}

	entryHash := ChainHash(a.lastHash, e)
	_, err := a.db.Pool.Exec(ctx, `
		INSERT INTO audit_log (occurred_at, action, subject, outcome, detail, prev_hash, entry_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.OccurredAt, e.Action, e.Subject, e.Outcome, e.Detail, a.lastHash, entryHash)
	if err != nil {
		return err
	}
	a.lastHash = entryHash

	a.log.Info().
		Str("action", e.Action).
		Str("subject", e.Subject).
		Str("outcome", e.Outcome).
		Msg("audit entry")
	return nil
}
