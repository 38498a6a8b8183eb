package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Meeting sources.
const (
	SourceTelephonyVideo = "telephony-video"
	SourceNotetaker      = "notetaker"
)

// MeetingTypes is the closed classification set. Anything else the analysis
// layer emits is mapped to "other".
var MeetingTypes = map[string]bool{
	"sales":     true,
	"support":   true,
	"training":  true,
	"interview": true,
	"internal":  true,
	"external":  true,
	"other":     true,
}

// NormalizeMeetingType maps an open-ended classification onto the closed set.
func NormalizeMeetingType(t string) string {
	if MeetingTypes[t] {
		return t
	}
	return "other"
}

// MeetingRow is one video meeting from either provider.
type MeetingRow struct {
	ID              int64
	RecordingID     string
	Source          string
	ContentHash     string
	Title           string
	MeetingType     string
	Platform        string
	HostName        string
	HostEmail       string
	HostExtensionID string
	HostPhone       string
	StartTime       *time.Time
	EndTime         *time.Time
	Duration        float64
	ParticipantCnt  int
	HasRecording    bool

	TranscriptText  *string
	TranscriptEmpty bool
	Summary         *string
	Participants    json.RawMessage
	ActionItems     json.RawMessage
	RawProvider     json.RawMessage

	LayerComplete [6]bool
	CreatedAt     time.Time
}

// MeetingParticipant is one attendee, enriched from the extension directory
// when the provider exposes it.
type MeetingParticipant struct {
	MeetingID       int64
	Name            string
	Email           string
	EmailDomain     string
	IsExternal      bool
	ExtensionID     string
	ExtensionNumber string
	Phone           string
	Company         string
	Department      string
	Title           string
	JoinTime        *time.Time
	LeaveTime       *time.Time
	Duration        *float64
}

// InsertMeeting persists a newly discovered meeting. Returns (0, nil) when
// the (source, recording_id) pair already exists.
func (db *DB) InsertMeeting(ctx context.Context, m *MeetingRow) (int64, error) {
	participants := m.Participants
	if participants == nil {
		participants = json.RawMessage(`[]`)
	}
	actionItems := m.ActionItems
	if actionItems == nil {
		actionItems = json.RawMessage(`[]`)
	}
	raw := m.RawProvider
	if raw == nil {
		raw = json.RawMessage(`{}`)
	}

	var id int64
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO video_meetings (
			recording_id, source, content_hash, title, meeting_type, platform,
			host_name, host_email, host_extension_id, host_phone,
			start_time, end_time, duration_seconds, participant_count, has_recording,
			transcript_text, transcript_empty, summary,
			participants_json, action_items_json, raw_provider_json
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		          $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		ON CONFLICT (source, recording_id) DO NOTHING
		RETURNING id
	`,
		m.RecordingID, m.Source, m.ContentHash, m.Title, NormalizeMeetingType(m.MeetingType), m.Platform,
		m.HostName, m.HostEmail, m.HostExtensionID, m.HostPhone,
		m.StartTime, m.EndTime, m.Duration, m.ParticipantCnt, m.HasRecording,
		m.TranscriptText, m.TranscriptEmpty, m.Summary,
		participants, actionItems, raw,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return id, err
}

// InsertParticipant adds one attendee row for a meeting.
func (db *DB) InsertParticipant(ctx context.Context, p *MeetingParticipant) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO meeting_participants (
			meeting_id, name, email, email_domain, is_external,
			extension_id, extension_number, phone, company, department, title,
			join_time, leave_time, duration_seconds
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		p.MeetingID, p.Name, p.Email, p.EmailDomain, p.IsExternal,
		p.ExtensionID, p.ExtensionNumber, p.Phone, p.Company, p.Department, p.Title,
		p.JoinTime, p.LeaveTime, p.Duration,
	)
	return err
}

// MeetingExists reports whether a (source, recording_id) pair is persisted.
func (db *DB) MeetingExists(ctx context.Context, source, recordingID string) (bool, error) {
	var exists bool
	err := db.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM video_meetings WHERE source = $1 AND recording_id = $2)`,
		source, recordingID,
	).Scan(&exists)
	return exists, err
}

// MeetingHashExists reports whether any meeting carries the content hash.
func (db *DB) MeetingHashExists(ctx context.Context, hash string) (bool, error) {
	if hash == "" {
		return false, nil
	}
	var exists bool
	err := db.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM video_meetings WHERE content_hash = $1)`, hash,
	).Scan(&exists)
	return exists, err
}

// SetMeetingTranscript stores the transcript and summary fetched for a
// meeting. transcriptEmpty marks a provider 404 on the transcript endpoint.
func (db *DB) SetMeetingTranscript(ctx context.Context, meetingID int64, transcript, summary string, transcriptEmpty bool) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE video_meetings
		SET transcript_text = $2, summary = $3, transcript_empty = $4, updated_at = NOW()
		WHERE id = $1
	`, meetingID, transcript, summary, transcriptEmpty)
	return err
}

// PendingMeetingsForLayer selects meetings ready for the given analysis layer:
// predecessor complete (or a transcript present, for layer 1) and the layer
// itself incomplete.
func (db *DB) PendingMeetingsForLayer(ctx context.Context, layer, limit int) ([]MeetingRow, error) {
	if layer < 1 || layer > 6 {
		return nil, fmt.Errorf("layer out of range: %d", layer)
	}

	var where string
	if layer == 1 {
		where = `transcript_text IS NOT NULL AND NOT layer1_complete`
	} else {
		where = fmt.Sprintf(`layer%d_complete AND NOT layer%d_complete`, layer-1, layer)
	}

	rows, err := db.Pool.Query(ctx, fmt.Sprintf(`
		SELECT id, recording_id, source, content_hash, title, meeting_type, platform,
		       host_name, host_email, host_extension_id, host_phone,
		       start_time, end_time, duration_seconds, participant_count, has_recording,
		       transcript_text, transcript_empty, summary,
		       participants_json, action_items_json, raw_provider_json,
		       layer1_complete, layer2_complete, layer3_complete,
		       layer4_complete, layer5_complete, layer6_complete,
		       created_at
		FROM video_meetings
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $1
	`, where), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MeetingRow
	for rows.Next() {
		var m MeetingRow
		if err := rows.Scan(
			&m.ID, &m.RecordingID, &m.Source, &m.ContentHash, &m.Title, &m.MeetingType, &m.Platform,
			&m.HostName, &m.HostEmail, &m.HostExtensionID, &m.HostPhone,
			&m.StartTime, &m.EndTime, &m.Duration, &m.ParticipantCnt, &m.HasRecording,
			&m.TranscriptText, &m.TranscriptEmpty, &m.Summary,
			&m.Participants, &m.ActionItems, &m.RawProvider,
			&m.LayerComplete[0], &m.LayerComplete[1], &m.LayerComplete[2],
			&m.LayerComplete[3], &m.LayerComplete[4], &m.LayerComplete[5],
			&m.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SetLayerComplete flips a meeting's layer-completion flag.
func (db *DB) SetLayerComplete(ctx context.Context, meetingID int64, layer int, complete bool) error {
	if layer < 1 || layer > 6 {
		return fmt.Errorf("layer out of range: %d", layer)
	}
	_, err := db.Pool.Exec(ctx, fmt.Sprintf(`
		UPDATE video_meetings SET layer%d_complete = $2, updated_at = NOW()
		WHERE id = $1
	`, layer), meetingID, complete)
	return err
}

// SetMeetingClassification writes layer 1's meeting-type decision and CRM
// match hints back onto the meeting row.
func (db *DB) SetMeetingClassification(ctx context.Context, meetingID int64, meetingType string, crmMatches json.RawMessage) error {
	if crmMatches == nil {
		crmMatches = json.RawMessage(`{}`)
	}
	_, err := db.Pool.Exec(ctx, `
		UPDATE video_meetings
		SET meeting_type = $2, crm_matches_json = $3, updated_at = NOW()
		WHERE id = $1
	`, meetingID, NormalizeMeetingType(meetingType), crmMatches)
	return err
}
