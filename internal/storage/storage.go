// Package storage persists transcript artefacts to a local archive tree and
// an S3-compatible remote archive, and publishes staged audio for the ASR
// provider to fetch.
package storage

import (
	"fmt"
	"time"
)

// ArchiveFolder returns the remote folder for an artefact kind, laid out as
// Y/MM-Mon/{Audio|Metadata|Transcripts}.
func ArchiveFolder(t time.Time, kind string) string {
	return fmt.Sprintf("%d/%02d-%s/%s", t.Year(), int(t.Month()), t.Format("Jan"), kind)
}

// Artefact kinds within an archive month folder.
const (
	KindAudio       = "Audio"
	KindMetadata    = "Metadata"
	KindTranscripts = "Transcripts"
)
