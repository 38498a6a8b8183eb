package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mainseq/ci-engine/internal/database"
	"github.com/mainseq/ci-engine/internal/ringcentral"
)

// VideoAdapter turns provider video meetings into meeting rows, enriching
// participants from the pre-cached extension directory.
type VideoAdapter struct {
	db              *database.DB
	client          *ringcentral.Client
	internalDomains map[string]bool
	log             zerolog.Logger
}

// NewVideoAdapter wires the video ingestion adapter.
func NewVideoAdapter(db *database.DB, client *ringcentral.Client, internalDomains map[string]bool, log zerolog.Logger) *VideoAdapter {
	return &VideoAdapter{
		db:              db,
		client:          client,
		internalDomains: internalDomains,
		log:             log.With().Str("component", "ingest-video").Logger(),
	}
}

// VideoSyncStats is the outcome of one video sync pass.
type VideoSyncStats struct {
	MeetingsFound     int
	MeetingsSaved     int
	DuplicatesSkipped int
	RecordingFallback int
	Errors            []string
}

// contentHash fingerprints a meeting by its invariant facts, catching the
// same meeting surfaced under distinct provider ids.
func contentHash(title, hostEmail string, start time.Time, duration float64) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d|%.0f", title, strings.ToLower(hostEmail), start.Unix(), duration)))
	return hex.EncodeToString(h[:])
}

// classifyByDomains pre-classifies a meeting as internal when every
// participant email is on a configured internal domain, external otherwise;
// "other" when no internal domains are configured or no emails are known.
// Layer 1 refines this later.
func (a *VideoAdapter) classifyByDomains(emails []string) string {
	if len(a.internalDomains) == 0 || len(emails) == 0 {
		return "other"
	}
	for _, e := range emails {
		if !a.isInternal(e) {
			return "external"
		}
	}
	return "internal"
}

func (a *VideoAdapter) isInternal(email string) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}
	return a.internalDomains[strings.ToLower(email[at+1:])]
}

// participantDuration computes in-meeting time when both timestamps are present.
func participantDuration(join, leave *time.Time) *float64 {
	if join == nil || leave == nil || leave.Before(*join) {
		return nil
	}
	d := leave.Sub(*join).Seconds()
	return &d
}

// SyncWindow discovers video meetings in [start, end]. When meeting history
// is empty but account recordings exist, it falls back to synthesizing a
// meeting row per recording.
func (a *VideoAdapter) SyncWindow(ctx context.Context, start, end time.Time) (*VideoSyncStats, error) {
	stats := &VideoSyncStats{}

	// Pre-cache the extension directory once per sync.
	extCache, err := a.client.FetchAllExtensions(ctx)
	if err != nil {
		a.log.Warn().Err(err).Msg("extension pre-cache failed, enrichment degraded")
		extCache = nil
	}

	meetings, err := a.client.FetchVideoMeetings(ctx, start, end)
	if err != nil {
		stats.Errors = append(stats.Errors, err.Error())
		return stats, err
	}
	stats.MeetingsFound = len(meetings)

	if len(meetings) == 0 {
		return a.syncFromAccountRecordings(ctx, extCache, stats)
	}

	for _, m := range meetings {
		if err := a.saveMeeting(ctx, m, extCache, stats); err != nil {
			stats.Errors = append(stats.Errors, err.Error())
		}
	}

	a.log.Info().
		Int("found", stats.MeetingsFound).
		Int("saved", stats.MeetingsSaved).
		Int("duplicates", stats.DuplicatesSkipped).
		Msg("video sync complete")
	return stats, nil
}

func (a *VideoAdapter) saveMeeting(ctx context.Context, m ringcentral.VideoMeeting, extCache *ringcentral.ExtensionCache, stats *VideoSyncStats) error {
	exists, err := a.db.MeetingExists(ctx, database.SourceTelephonyVideo, m.ID)
	if err != nil {
		return err
	}
	if exists {
		stats.DuplicatesSkipped++
		return nil
	}

	hash := contentHash(m.Title, m.HostEmail, m.StartTime, m.Duration)
	hashDup, err := a.db.MeetingHashExists(ctx, hash)
	if err != nil {
		return err
	}
	if hashDup {
		stats.DuplicatesSkipped++
		return nil
	}

	hostPhone := ""
	if extCache != nil && m.HostExtensionID != "" {
		if ext, ok := extCache.Get(m.HostExtensionID); ok {
			hostPhone = ext.BusinessPhone
		}
	}

	var emails []string
	for _, p := range m.Participants {
		if p.Email != "" {
			emails = append(emails, p.Email)
		}
	}

	participantsJSON, _ := json.Marshal(m.Participants)
	rawJSON, _ := json.Marshal(m)

	startTime, endTime := m.StartTime, m.EndTime
	row := &database.MeetingRow{
		RecordingID:     m.ID,
		Source:          database.SourceTelephonyVideo,
		ContentHash:     hash,
		Title:           m.Title,
		MeetingType:     a.classifyByDomains(emails),
		Platform:        "rcvideo",
		HostName:        m.HostName,
		HostEmail:       m.HostEmail,
		HostExtensionID: m.HostExtensionID,
		HostPhone:       hostPhone,
		StartTime:       &startTime,
		EndTime:         &endTime,
		Duration:        m.Duration,
		ParticipantCnt:  len(m.Participants),
		HasRecording:    len(m.Recordings) > 0,
		Participants:    participantsJSON,
		RawProvider:     rawJSON,
	}

	meetingID, err := a.db.InsertMeeting(ctx, row)
	if err != nil {
		return err
	}
	if meetingID == 0 {
		stats.DuplicatesSkipped++
		return nil
	}
	stats.MeetingsSaved++

	for _, p := range m.Participants {
		mp := &database.MeetingParticipant{
			MeetingID:   meetingID,
			Name:        p.Name,
			Email:       p.Email,
			ExtensionID: p.ExtensionID,
			IsExternal:  !a.isInternal(p.Email),
			JoinTime:    p.JoinTime,
			LeaveTime:   p.LeaveTime,
			Duration:    participantDuration(p.JoinTime, p.LeaveTime),
		}
		if at := strings.LastIndex(p.Email, "@"); at >= 0 {
			mp.EmailDomain = strings.ToLower(p.Email[at+1:])
		}
		if extCache != nil && p.ExtensionID != "" {
			if ext, ok := extCache.Get(p.ExtensionID); ok {
				mp.ExtensionNumber = ext.ExtensionNumber
				mp.Phone = ext.BusinessPhone
				mp.Company = ext.Company
				mp.Department = ext.Department
				mp.Title = ext.JobTitle
			}
		}
		if err := a.db.InsertParticipant(ctx, mp); err != nil {
			a.log.Warn().Err(err).Int64("meeting_id", meetingID).Msg("participant insert failed")
		}
	}
	return nil
}

// syncFromAccountRecordings lists account-level recordings directly and
// synthesizes one meeting row per recording, with host info enriched from
// the extension cache.
func (a *VideoAdapter) syncFromAccountRecordings(ctx context.Context, extCache *ringcentral.ExtensionCache, stats *VideoSyncStats) (*VideoSyncStats, error) {
	recs, err := a.client.FetchAccountRecordings(ctx, 100)
	if err != nil {
		stats.Errors = append(stats.Errors, err.Error())
		return stats, err
	}

	for _, rec := range recs {
		exists, err := a.db.MeetingExists(ctx, database.SourceTelephonyVideo, rec.MeetingID)
		if err != nil {
			stats.Errors = append(stats.Errors, err.Error())
			continue
		}
		if exists {
			stats.DuplicatesSkipped++
			continue
		}

		hostPhone := ""
		if extCache != nil && rec.HostExtensionID != "" {
			if ext, ok := extCache.Get(rec.HostExtensionID); ok {
				hostPhone = ext.BusinessPhone
			}
		}

		rawJSON, _ := json.Marshal(rec)
		startTime := rec.StartTime
		meetingID, err := a.db.InsertMeeting(ctx, &database.MeetingRow{
			RecordingID:     rec.MeetingID,
			Source:          database.SourceTelephonyVideo,
			ContentHash:     contentHash(rec.Title, rec.HostEmail, rec.StartTime, rec.Duration),
			Title:           rec.Title,
			MeetingType:     "other",
			Platform:        "rcvideo",
			HostName:        rec.HostName,
			HostEmail:       rec.HostEmail,
			HostExtensionID: rec.HostExtensionID,
			HostPhone:       hostPhone,
			StartTime:       &startTime,
			Duration:        rec.Duration,
			HasRecording:    true,
			RawProvider:     rawJSON,
		})
		if err != nil {
			stats.Errors = append(stats.Errors, err.Error())
			continue
		}
		if meetingID == 0 {
			stats.DuplicatesSkipped++
			continue
		}
		stats.MeetingsSaved++
		stats.RecordingFallback++
	}

	a.log.Info().
		Int("saved", stats.MeetingsSaved).
		Int("fallback", stats.RecordingFallback).
		Msg("account-recording fallback sync complete")
	return stats, nil
}
