package ingest

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mainseq/ci-engine/internal/database"
	"github.com/mainseq/ci-engine/internal/ringcentral"
)

// TelephonyAdapter turns provider call-log entries into pending recordings.
type TelephonyAdapter struct {
	db       *database.DB
	client   *ringcentral.Client
	dedup    *Deduper
	cache    *IDCache
	stateDir string
	log      zerolog.Logger
}

// NewTelephonyAdapter wires the telephony ingestion adapter.
func NewTelephonyAdapter(db *database.DB, client *ringcentral.Client, dedup *Deduper, cache *IDCache, stateDir string, log zerolog.Logger) *TelephonyAdapter {
	return &TelephonyAdapter{
		db:       db,
		client:   client,
		dedup:    dedup,
		cache:    cache,
		stateDir: stateDir,
		log:      log.With().Str("component", "ingest-telephony").Logger(),
	}
}

// normalizeDirection maps provider direction strings onto the closed set.
func normalizeDirection(d string) string {
	switch strings.ToLower(d) {
	case "inbound":
		return "inbound"
	case "outbound":
		return "outbound"
	default:
		return "internal"
	}
}

func normalizeRecordingType(t string) string {
	if strings.EqualFold(t, "ondemand") || strings.EqualFold(t, "on_demand") {
		return "on_demand"
	}
	return "automatic"
}

// SyncWindow discovers recordings in [start, end], dedups, and queues the new
// ones as pending. Returns the ingestion outcome.
func (a *TelephonyAdapter) SyncWindow(ctx context.Context, start, end time.Time) (*CheckSummary, error) {
	summary := &CheckSummary{
		CheckedAt:  time.Now().UTC(),
		WindowFrom: start,
		WindowTo:   end,
	}

	records, err := a.client.FetchRecordings(ctx, start, end)
	if err != nil {
		summary.Errors = append(summary.Errors, err.Error())
		a.writeSummary(summary)
		return summary, err
	}
	summary.Found = len(records)

	for _, rec := range records {
		reason, err := a.dedup.Check(ctx, rec.RecordingID, rec.SessionID, rec.StartTime, rec.FromNumber, rec.ToNumber, rec.Duration)
		if err != nil {
			summary.Errors = append(summary.Errors, err.Error())
			continue
		}
		if reason != DupNone {
			summary.Duplicates++
			a.log.Debug().
				Str("recording_id", rec.RecordingID).
				Str("reason", reason).
				Msg("duplicate skipped")
			continue
		}

		inserted, err := a.db.InsertRecording(ctx, &database.RecordingRow{
			RecordingID:   rec.RecordingID,
			CallID:        rec.ID,
			SessionID:     rec.SessionID,
			CallStartTime: rec.StartTime,
			Duration:      rec.Duration,
			Direction:     normalizeDirection(rec.Direction),
			RecordingType: normalizeRecordingType(rec.RecordingType),
			FromNumber:    rec.FromNumber,
			FromName:      rec.FromName,
			FromExtension: rec.FromExtension,
			ToNumber:      rec.ToNumber,
			ToName:        rec.ToName,
			ToExtension:   rec.ToExtension,
		})
		if err != nil {
			summary.Errors = append(summary.Errors, err.Error())
			continue
		}
		if inserted {
			summary.Queued++
			if a.cache != nil {
				a.cache.Add(rec.RecordingID)
			}
		} else {
			// Uniqueness constraint caught what the pre-checks missed.
			summary.Duplicates++
		}
	}

	a.writeSummary(summary)
	a.log.Info().
		Int("found", summary.Found).
		Int("queued", summary.Queued).
		Int("duplicates", summary.Duplicates).
		Msg("telephony sync complete")
	return summary, nil
}

func (a *TelephonyAdapter) writeSummary(summary *CheckSummary) {
	if a.stateDir == "" {
		return
	}
	if err := SaveJSON(filepath.Join(a.stateDir, "check_summary.json"), summary); err != nil {
		a.log.Warn().Err(err).Msg("failed to write check summary")
	}
	wm := Watermark{
		LastCheck:       summary.CheckedAt,
		TotalDownloaded: summary.Queued,
		TotalChecked:    summary.Found,
	}
	if err := SaveJSON(filepath.Join(a.stateDir, "last_check.json"), &wm); err != nil {
		a.log.Warn().Err(err).Msg("failed to write watermark")
	}
}
