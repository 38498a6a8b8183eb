// Package ingest discovers recordings and meetings from the upstream
// providers and enqueues them as pending work, with strict deduplication.
package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mainseq/ci-engine/internal/database"
)

// Duplicate reasons, reported by the adapters and surfaced in sync summaries.
const (
	DupNone      = ""
	DupLocalFile = "local-file"
	DupRecordID  = "record-duplicate"
	DupSessionID = "session-duplicate"
	DupNearMatch = "near-match"
)

// IDCache is the advisory in-memory set of known recording ids, loaded once
// at startup from the last 30 days. It short-circuits the obvious duplicates;
// the database checks remain authoritative.
type IDCache struct {
	mu  sync.RWMutex
	ids map[string]bool
}

// NewIDCache builds an empty cache.
func NewIDCache() *IDCache {
	return &IDCache{ids: make(map[string]bool)}
}

// Load fills the cache from the persistence layer.
func (c *IDCache) Load(ctx context.Context, db *database.DB) error {
	ids, err := db.KnownIDsSince(ctx, time.Now().UTC().AddDate(0, 0, -30))
	if err != nil {
		return err
	}
	c.mu.Lock()
	for _, id := range ids {
		c.ids[id] = true
	}
	c.mu.Unlock()
	return nil
}

// Has reports whether the id was seen. Misses are expected for anything older
// than the load window.
func (c *IDCache) Has(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ids[id]
}

// Add marks an id as seen.
func (c *IDCache) Add(id string) {
	c.mu.Lock()
	c.ids[id] = true
	c.mu.Unlock()
}

// Size returns the number of cached ids.
func (c *IDCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ids)
}

// Deduper applies the four-layer duplicate check, first hit wins:
//  1. a staged local file for the recording id,
//  2. a persisted record with the same recording id,
//  3. a persisted record with the same session id,
//  4. a persisted record matching (start±5s, from, to, duration).
type Deduper struct {
	db         *database.DB
	cache      *IDCache
	stagingDir string
}

// NewDeduper wires the dedup layers.
func NewDeduper(db *database.DB, cache *IDCache, stagingDir string) *Deduper {
	return &Deduper{db: db, cache: cache, stagingDir: stagingDir}
}

// Check returns the duplicate reason for a candidate, or DupNone.
func (d *Deduper) Check(ctx context.Context, recordingID, sessionID string, start time.Time, from, to string, duration float64) (string, error) {
	if d.stagedFileExists(recordingID) {
		return DupLocalFile, nil
	}

	if d.cache != nil && d.cache.Has(recordingID) {
		return DupRecordID, nil
	}
	exists, err := d.db.RecordingExists(ctx, recordingID)
	if err != nil {
		return DupNone, err
	}
	if exists {
		return DupRecordID, nil
	}

	exists, err = d.db.SessionExists(ctx, sessionID)
	if err != nil {
		return DupNone, err
	}
	if exists {
		return DupSessionID, nil
	}

	exists, err = d.db.NearMatchExists(ctx, start, from, to, duration)
	if err != nil {
		return DupNone, err
	}
	if exists {
		return DupNearMatch, nil
	}

	return DupNone, nil
}

func (d *Deduper) stagedFileExists(recordingID string) bool {
	if d.stagingDir == "" {
		return false
	}
	matches, err := filepath.Glob(filepath.Join(d.stagingDir, recordingID+".*"))
	if err != nil {
		return false
	}
	for _, m := range matches {
		if fi, err := os.Stat(m); err == nil && !fi.IsDir() && fi.Size() > 0 {
			return true
		}
	}
	return false
}
