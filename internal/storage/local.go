package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// LocalArchive writes transcript artefacts into the on-disk archive tree:
//
//	<root>/transcriptions/json/<YYYY>/<MM>/<DD>/<recording_id>.json
//	<root>/transcriptions/md/<YYYY>/<MM>/<DD>/<recording_id>.md
//	<root>/transcriptions/insights/<recording_id>_insights.json
type LocalArchive struct {
	root string
	log  zerolog.Logger
}

// NewLocalArchive creates the local tier rooted at dataDir.
func NewLocalArchive(dataDir string, log zerolog.Logger) *LocalArchive {
	return &LocalArchive{
		root: dataDir,
		log:  log.With().Str("component", "local-archive").Logger(),
	}
}

func (l *LocalArchive) datedPath(kind, recordingID, ext string, t time.Time) string {
	return filepath.Join(l.root, "transcriptions", kind,
		fmt.Sprintf("%04d", t.Year()),
		fmt.Sprintf("%02d", int(t.Month())),
		fmt.Sprintf("%02d", t.Day()),
		recordingID+ext)
}

// WriteTranscriptJSON stores the transcript document, returning its path.
func (l *LocalArchive) WriteTranscriptJSON(recordingID string, callTime time.Time, doc any) (string, error) {
	path := l.datedPath("json", recordingID, ".json", callTime)
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", err
	}
	return path, writeFileAtomic(path, data)
}

// WriteTranscriptMarkdown stores the derived Markdown report.
func (l *LocalArchive) WriteTranscriptMarkdown(recordingID string, callTime time.Time, report []byte) (string, error) {
	path := l.datedPath("md", recordingID, ".md", callTime)
	return path, writeFileAtomic(path, report)
}

// WriteInsights stores a recording's combined insight document.
func (l *LocalArchive) WriteInsights(recordingID string, doc any) (string, error) {
	path := filepath.Join(l.root, "transcriptions", "insights", recordingID+"_insights.json")
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", err
	}
	return path, writeFileAtomic(path, data)
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
