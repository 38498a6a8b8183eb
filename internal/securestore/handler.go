package securestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/mainseq/ci-engine/internal/database"
	"github.com/mainseq/ci-engine/internal/storage"
)

// RemoteArchive is the remote tier contract the handler needs: upload,
// follow-up existence verification, and nothing else.
type RemoteArchive interface {
	Upload(ctx context.Context, folder, name string, data []byte, contentType string) (string, error)
	Exists(ctx context.Context, key string) bool
}

// DeletionError marks the critical case: the audio still exists after the
// retry. It surfaces as a high-priority alert and aborts the daily pass.
type DeletionError struct {
	Path string
}

func (e *DeletionError) Error() string {
	return fmt.Sprintf("audio deletion failed after retry: %s", e.Path)
}

// Auditor records audit entries. AuditLog is the production implementation.
type Auditor interface {
	Append(ctx context.Context, e AuditEntry) error
}

// Handler runs the post-transcription storage sequence: archive locally,
// archive remotely with verification, then delete the audio and verify the
// deletion. Every outcome lands in the audit log.
type Handler struct {
	db     *database.DB
	local  *storage.LocalArchive
	remote RemoteArchive
	audit  Auditor
	log    zerolog.Logger

	// Filesystem hooks, swapped in tests.
	remove func(string) error
	stat   func(string) (os.FileInfo, error)
}

// NewHandler wires the secure storage handler. remote may be nil when no
// remote archive is configured; audio is then retained (deletion requires a
// verified remote copy).
func NewHandler(db *database.DB, local *storage.LocalArchive, remote RemoteArchive, audit Auditor, log zerolog.Logger) *Handler {
	return &Handler{
		db:     db,
		local:  local,
		remote: remote,
		audit:  audit,
		log:    log.With().Str("component", "securestore").Logger(),
		remove: os.Remove,
		stat:   os.Stat,
	}
}

// Result reports what the handler accomplished for one recording.
type Result struct {
	ArchiveFileID    string
	AudioDeleted     bool
	DeletionVerified bool
	LocalJSONPath    string
	LocalMDPath      string
}

// ProcessTranscription archives a recording's transcript and deletes its
// audio. The audio is removed only after both archive writes succeed and the
// remote object verifiably exists.
func (h *Handler) ProcessTranscription(ctx context.Context, rec *database.RecordingRow, transcript *database.TranscriptRow) (*Result, error) {
	res := &Result{}
	subject := rec.RecordingID

	doc := transcriptDocument(rec, transcript)

	jsonPath, err := h.local.WriteTranscriptJSON(rec.RecordingID, rec.CallStartTime, doc)
	if err != nil {
		h.auditOutcome(ctx, "archive-local", subject, OutcomeFailure, err.Error())
		return res, fmt.Errorf("local json archive: %w", err)
	}
	res.LocalJSONPath = jsonPath

	mdPath, err := h.local.WriteTranscriptMarkdown(rec.RecordingID, rec.CallStartTime, MarkdownReport(rec, transcript))
	if err != nil {
		h.auditOutcome(ctx, "archive-local", subject, OutcomeFailure, err.Error())
		return res, fmt.Errorf("local md archive: %w", err)
	}
	res.LocalMDPath = mdPath

	if h.remote == nil {
		h.auditOutcome(ctx, "archive-remote", subject, OutcomePartial, "no remote archive configured, audio retained")
		return res, fmt.Errorf("no remote archive configured")
	}

	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return res, err
	}
	folder := storage.ArchiveFolder(rec.CallStartTime, storage.KindTranscripts)
	archiveID, err := h.remote.Upload(ctx, folder, rec.RecordingID+".json", payload, "application/json")
	if err != nil {
		h.auditOutcome(ctx, "archive-remote", subject, OutcomeFailure, err.Error())
		return res, fmt.Errorf("remote archive: %w", err)
	}

	metaFolder := storage.ArchiveFolder(rec.CallStartTime, storage.KindMetadata)
	meta, _ := json.MarshalIndent(callMetadata(rec), "", "  ")
	if _, err := h.remote.Upload(ctx, metaFolder, rec.RecordingID+"_meta.json", meta, "application/json"); err != nil {
		h.log.Warn().Err(err).Str("recording_id", subject).Msg("metadata upload failed")
	}

	// An upload id alone is not proof of persistence. Verify by metadata
	// fetch before anything is deleted.
	if !h.remote.Exists(ctx, archiveID) {
		h.auditOutcome(ctx, "archive-remote", subject, OutcomeFailure, "uploaded object not found on verification")
		return res, fmt.Errorf("remote archive verification failed for %s", archiveID)
	}
	res.ArchiveFileID = archiveID
	h.auditOutcome(ctx, "archive-remote", subject, OutcomeSuccess, archiveID)

	if err := h.deleteWithVerification(ctx, subject, rec.LocalAudioPath); err != nil {
		return res, err
	}
	res.AudioDeleted = true
	res.DeletionVerified = true

	if err := h.db.MarkAudioDeleted(ctx, rec.RecordingID, archiveID); err != nil {
		return res, err
	}

	h.auditOutcome(ctx, "process-transcription", subject, OutcomeSuccess, archiveID)
	return res, nil
}

// deleteWithVerification removes the audio, re-stats to verify, retries the
// deletion once, and escalates to a DeletionError when the file survives.
func (h *Handler) deleteWithVerification(ctx context.Context, subject string, audioPath *string) error {
	if audioPath == nil || *audioPath == "" {
		h.auditOutcome(ctx, "delete-audio", subject, OutcomePartial, "no local audio path recorded")
		return nil
	}
	path := *audioPath

	if _, err := h.stat(path); os.IsNotExist(err) {
		h.auditOutcome(ctx, "delete-audio", subject, OutcomePartial, "audio already absent")
		return nil
	}

	err := h.remove(path)
	if err == nil {
		if _, statErr := h.stat(path); os.IsNotExist(statErr) {
			h.auditOutcome(ctx, "delete-audio", subject, OutcomeSuccess, filepath.Base(path))
			return nil
		}
	}

	// One retry, audited.
	h.auditOutcome(ctx, "delete-audio", subject, OutcomeRetried, errText(err))
	if err := h.remove(path); err == nil {
		if _, statErr := h.stat(path); os.IsNotExist(statErr) {
			h.auditOutcome(ctx, "delete-audio", subject, OutcomeSuccess, filepath.Base(path)+" (retry)")
			return nil
		}
	}

	h.auditOutcome(ctx, "delete-audio", subject, OutcomeFailure, path)
	return &DeletionError{Path: path}
}

func errText(err error) string {
	if err == nil {
		return "deletion reported success but file still present"
	}
	return err.Error()
}

func (h *Handler) auditOutcome(ctx context.Context, action, subject, outcome, detail string) {
	if h.audit == nil {
		return
	}
	d, _ := json.Marshal(map[string]string{"detail": detail})
	if err := h.audit.Append(ctx, AuditEntry{
		OccurredAt: time.Now().UTC(),
		Action:     action,
		Subject:    subject,
		Outcome:    outcome,
		Detail:     d,
	}); err != nil {
		h.log.Error().Err(err).Str("action", action).Msg("audit append failed")
	}
}

func callMetadata(rec *database.RecordingRow) map[string]any {
	return map[string]any{
		"recording_id":    rec.RecordingID,
		"call_id":         rec.CallID,
		"session_id":      rec.SessionID,
		"call_start_time": rec.CallStartTime.UTC().Format(time.RFC3339),
		"duration":        rec.Duration,
		"direction":       rec.Direction,
		"from_number":     rec.FromNumber,
		"to_number":       rec.ToNumber,
	}
}

func transcriptDocument(rec *database.RecordingRow, t *database.TranscriptRow) map[string]any {
	return map[string]any{
		"recording_id":         rec.RecordingID,
		"call":                 callMetadata(rec),
		"text":                 t.Text,
		"language":             t.Language,
		"language_probability": t.LanguageProbability,
		"word_count":           t.WordCount,
		"confidence":           t.Confidence,
		"duration_seconds":     t.DurationSeconds,
		"segments":             t.Segments,
	}
}
