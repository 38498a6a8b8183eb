package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Audio validation bounds.
const (
	MaxAudioBytes      = 500 * 1024 * 1024
	MinAudioDuration   = 1 * time.Second
	MaxAudioDuration   = 7200 * time.Second
	targetSampleRate   = 16000
)

var supportedFormats = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".m4a":  true,
	".mp4":  true,
	".webm": true,
	".ogg":  true,
	".flac": true,
	".mov":  true,
}

var videoFormats = map[string]bool{
	".mp4":  true,
	".webm": true,
	".mov":  true,
}

// AudioTool wraps the external media binaries for probing, extraction, and
// chunk slicing.
type AudioTool struct {
	ffmpeg  string
	ffprobe string
}

// NewAudioTool configures the external binaries.
func NewAudioTool(ffmpegPath, ffprobePath string) *AudioTool {
	return &AudioTool{ffmpeg: ffmpegPath, ffprobe: ffprobePath}
}

// IsVideo reports whether the file extension marks a video container.
func IsVideo(path string) bool {
	return videoFormats[strings.ToLower(filepath.Ext(path))]
}

// InvalidAudioError marks a permanent validation failure; callers fail the
// stage immediately without retry.
type InvalidAudioError struct{ Reason string }

func (e *InvalidAudioError) Error() string { return "invalid audio: " + e.Reason }

// Validate checks the file against the supported set and size/duration
// bounds, returning its duration.
func (t *AudioTool) Validate(ctx context.Context, path string) (time.Duration, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, &InvalidAudioError{Reason: fmt.Sprintf("file not found: %s", path)}
	}
	if fi.Size() == 0 {
		return 0, &InvalidAudioError{Reason: "file is empty"}
	}
	if fi.Size() > MaxAudioBytes {
		return 0, &InvalidAudioError{Reason: fmt.Sprintf("file too large (%d bytes > %d)", fi.Size(), MaxAudioBytes)}
	}
	if !supportedFormats[strings.ToLower(filepath.Ext(path))] {
		return 0, &InvalidAudioError{Reason: fmt.Sprintf("unsupported format %q", filepath.Ext(path))}
	}

	dur, err := t.Duration(ctx, path)
	if err != nil {
		return 0, &InvalidAudioError{Reason: fmt.Sprintf("unreadable media: %v", err)}
	}
	if dur < MinAudioDuration {
		return dur, &InvalidAudioError{Reason: fmt.Sprintf("duration %.1fs below minimum %.0fs", dur.Seconds(), MinAudioDuration.Seconds())}
	}
	if dur > MaxAudioDuration {
		return dur, &InvalidAudioError{Reason: fmt.Sprintf("duration %.1fs above maximum %.0fs", dur.Seconds(), MaxAudioDuration.Seconds())}
	}
	return dur, nil
}

// Duration probes the media duration.
func (t *AudioTool) Duration(ctx context.Context, path string) (time.Duration, error) {
	out, err := exec.CommandContext(ctx, t.ffprobe,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		path,
	).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}

	var probe struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(out, &probe); err != nil {
		return 0, fmt.Errorf("decode ffprobe output: %w", err)
	}
	secs, err := strconv.ParseFloat(probe.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", probe.Format.Duration, err)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// ExtractAudio converts a video container to mono 16 kHz WAV in destDir,
// returning the temp file path. The caller owns cleanup.
func (t *AudioTool) ExtractAudio(ctx context.Context, videoPath, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}
	base := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	outPath := filepath.Join(destDir, base+"_audio.wav")

	cmd := exec.CommandContext(ctx, t.ffmpeg,
		"-y",
		"-i", videoPath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(targetSampleRate),
		"-ac", "1",
		outPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		os.Remove(outPath)
		return "", fmt.Errorf("ffmpeg extract: %w: %s", err, truncate(string(out), 300))
	}
	return outPath, nil
}

// SliceChunk cuts [offset, offset+length] into a WAV chunk file in destDir.
func (t *AudioTool) SliceChunk(ctx context.Context, srcPath, destDir string, index int, offset, length time.Duration) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}
	base := strings.TrimSuffix(filepath.Base(srcPath), filepath.Ext(srcPath))
	outPath := filepath.Join(destDir, fmt.Sprintf("%s_chunk%03d.wav", base, index))

	cmd := exec.CommandContext(ctx, t.ffmpeg,
		"-y",
		"-ss", fmt.Sprintf("%.3f", offset.Seconds()),
		"-t", fmt.Sprintf("%.3f", length.Seconds()),
		"-i", srcPath,
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(targetSampleRate),
		"-ac", "1",
		outPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		os.Remove(outPath)
		return "", fmt.Errorf("ffmpeg slice: %w: %s", err, truncate(string(out), 300))
	}
	return outPath, nil
}

// Chunk describes one slice of a long recording.
type Chunk struct {
	Index  int
	Offset time.Duration
	Length time.Duration
}

// PlanChunks splits a duration into sequential chunks of chunkDur with the
// given overlap. Durations at or under chunkDur take the single-shot path
// (one chunk covering everything). Chunk count for longer audio is
// ceil(duration / (chunkDur − overlap)).
func PlanChunks(duration, chunkDur, overlap time.Duration) []Chunk {
	if duration <= chunkDur {
		return []Chunk{{Index: 0, Offset: 0, Length: duration}}
	}

	stride := chunkDur - overlap
	n := int(math.Ceil(float64(duration) / float64(stride)))

	chunks := make([]Chunk, 0, n)
	for i := 0; i < n; i++ {
		offset := time.Duration(i) * stride
		length := chunkDur
		if offset+length > duration {
			length = duration - offset
		}
		if length <= 0 {
			break
		}
		chunks = append(chunks, Chunk{Index: i, Offset: offset, Length: length})
	}
	return chunks
}
