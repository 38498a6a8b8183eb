package ingest

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mainseq/ci-engine/internal/database"
	"github.com/mainseq/ci-engine/internal/notetaker"
)

// NotetakerAdapter syncs meetings for every active employee. Employees run
// concurrently; requests under one API key stay serialized inside the
// per-key client to respect the provider's 60 calls/min/key limit.
type NotetakerAdapter struct {
	db              *database.DB
	cipher          *notetaker.KeyCipher
	baseURL         string
	internalDomains map[string]bool
	maxConcurrent   int
	log             zerolog.Logger
}

// NewNotetakerAdapter wires the notetaker ingestion adapter.
func NewNotetakerAdapter(db *database.DB, cipher *notetaker.KeyCipher, baseURL string, internalDomains map[string]bool, log zerolog.Logger) *NotetakerAdapter {
	return &NotetakerAdapter{
		db:              db,
		cipher:          cipher,
		baseURL:         baseURL,
		internalDomains: internalDomains,
		maxConcurrent:   4,
		log:             log.With().Str("component", "ingest-notetaker").Logger(),
	}
}

// NotetakerSyncStats is the outcome of one full-estate sync.
type NotetakerSyncStats struct {
	Employees         int
	MeetingsFound     int
	MeetingsSaved     int
	DuplicatesSkipped int
	EmptyTranscripts  int
	Errors            []string
}

// SyncAll iterates every active employee concurrently.
func (a *NotetakerAdapter) SyncAll(ctx context.Context) (*NotetakerSyncStats, error) {
	employees, err := a.db.ActiveNotetakerEmployees(ctx)
	if err != nil {
		return nil, err
	}

	stats := &NotetakerSyncStats{Employees: len(employees)}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.maxConcurrent)

	for _, emp := range employees {
		emp := emp
		g.Go(func() error {
			es, err := a.syncEmployee(ctx, emp)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				stats.Errors = append(stats.Errors, emp.Email+": "+err.Error())
				return nil // one employee's failure never aborts the estate sync
			}
			stats.MeetingsFound += es.MeetingsFound
			stats.MeetingsSaved += es.MeetingsSaved
			stats.DuplicatesSkipped += es.DuplicatesSkipped
			stats.EmptyTranscripts += es.EmptyTranscripts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	a.log.Info().
		Int("employees", stats.Employees).
		Int("found", stats.MeetingsFound).
		Int("saved", stats.MeetingsSaved).
		Int("duplicates", stats.DuplicatesSkipped).
		Msg("notetaker sync complete")
	return stats, nil
}

func (a *NotetakerAdapter) syncEmployee(ctx context.Context, emp database.NotetakerEmployee) (*NotetakerSyncStats, error) {
	apiKey, err := a.cipher.Decrypt(emp.APIKeyEncrypted)
	if err != nil {
		return nil, err
	}
	client := notetaker.NewClient(a.baseURL, apiKey, a.log)

	createdAfter := time.Time{}
	if emp.LastSyncedAt != nil {
		createdAfter = *emp.LastSyncedAt
	}

	meetings, err := client.ListMeetings(ctx, createdAfter)
	if err != nil {
		return nil, err
	}

	stats := &NotetakerSyncStats{MeetingsFound: len(meetings)}
	newestID := emp.LastSyncedID

	for _, m := range meetings {
		if m.ID == emp.LastSyncedID {
			continue
		}
		saved, empty, err := a.saveMeeting(ctx, client, emp, m)
		if err != nil {
			a.log.Warn().Err(err).Str("meeting_id", m.ID).Str("employee", emp.Email).Msg("meeting sync failed")
			continue
		}
		if !saved {
			stats.DuplicatesSkipped++
			continue
		}
		stats.MeetingsSaved++
		if empty {
			stats.EmptyTranscripts++
		}
		newestID = m.ID
	}

	if stats.MeetingsSaved > 0 {
		if err := a.db.UpdateSyncWatermark(ctx, emp.Email, newestID); err != nil {
			a.log.Warn().Err(err).Str("employee", emp.Email).Msg("watermark update failed")
		}
	}
	return stats, nil
}

func (a *NotetakerAdapter) saveMeeting(ctx context.Context, client *notetaker.Client, emp database.NotetakerEmployee, m notetaker.Meeting) (saved, emptyTranscript bool, err error) {
	exists, err := a.db.MeetingExists(ctx, database.SourceNotetaker, m.ID)
	if err != nil {
		return false, false, err
	}
	if exists {
		return false, false, nil
	}

	hash := contentHash(m.Title, emp.Email, m.StartTime, m.EndTime.Sub(m.StartTime).Seconds())
	hashDup, err := a.db.MeetingHashExists(ctx, hash)
	if err != nil {
		return false, false, err
	}
	if hashDup {
		return false, false, nil
	}

	// Transcript and summary are separate fetches; a transcript 404 is
	// tolerated and recorded as an empty transcript with a flag.
	transcript, err := client.GetTranscript(ctx, m.ID)
	if err != nil {
		return false, false, err
	}
	summary, err := client.GetSummary(ctx, m.ID)
	if err != nil {
		return false, false, err
	}
	actionItems, err := client.GetActionItems(ctx, m.ID)
	if err != nil {
		return false, false, err
	}

	participantsJSON, _ := json.Marshal(m.Participants)
	rawJSON, _ := json.Marshal(m)

	startTime, endTime := m.StartTime, m.EndTime
	text := transcript.Text
	sum := summary
	row := &database.MeetingRow{
		RecordingID:     m.ID,
		Source:          database.SourceNotetaker,
		ContentHash:     hash,
		Title:           m.Title,
		MeetingType:     database.NormalizeMeetingType(m.MeetingType),
		Platform:        m.Platform,
		HostName:        emp.Name,
		HostEmail:       emp.Email,
		StartTime:       &startTime,
		EndTime:         &endTime,
		Duration:        endTime.Sub(startTime).Seconds(),
		ParticipantCnt:  len(m.Participants),
		HasRecording:    m.HasRecording,
		TranscriptText:  &text,
		TranscriptEmpty: transcript.Empty,
		Summary:         &sum,
		Participants:    participantsJSON,
		ActionItems:     actionItems,
		RawProvider:     rawJSON,
	}

	meetingID, err := a.db.InsertMeeting(ctx, row)
	if err != nil {
		return false, false, err
	}
	if meetingID == 0 {
		return false, false, nil
	}
	return true, transcript.Empty, nil
}
