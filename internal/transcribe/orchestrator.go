package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mainseq/ci-engine/internal/database"
)

// MediaPublisher makes a staged audio file reachable by the ASR provider.
// The archive store implements it: upload, then a short-lived public link.
type MediaPublisher interface {
	PublishAudio(ctx context.Context, localPath, name string) (url string, err error)
}

// OrchestratorOptions configures the transcription orchestrator.
type OrchestratorOptions struct {
	DB        *database.DB
	Provider  Provider
	Publisher MediaPublisher
	Tool      *AudioTool
	TempDir   string

	Language         string
	InitialPrompt    string
	Diarization      bool
	Summarization    bool
	CustomVocabulary []string

	MaxWait       time.Duration
	MaxAttempts   int
	ChunkDuration time.Duration
	ChunkOverlap  time.Duration

	Log zerolog.Logger
}

// Orchestrator runs the full per-recording transcription pipeline. The
// idempotency tag on every submission equals the recording id (suffixed per
// chunk), so at most one provider job exists per recording unit.
type Orchestrator struct {
	opts OrchestratorOptions
	log  zerolog.Logger
}

// NewOrchestrator wires the pipeline.
func NewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 3
	}
	if opts.MaxWait == 0 {
		opts.MaxWait = 30 * time.Minute
	}
	if opts.ChunkDuration == 0 {
		opts.ChunkDuration = 30 * time.Minute
	}
	if opts.ChunkOverlap == 0 {
		opts.ChunkOverlap = 2 * time.Second
	}
	return &Orchestrator{
		opts: opts,
		log:  opts.Log.With().Str("component", "transcribe").Logger(),
	}
}

// Transcribe resolves the staged media for a recording, runs the ASR
// pipeline, and persists the transcript. Idempotent: a recording that
// already has a transcript returns it unchanged.
func (o *Orchestrator) Transcribe(ctx context.Context, recordingID string) (*database.TranscriptRow, error) {
	start := time.Now()

	if existing, err := o.opts.DB.GetTranscript(ctx, recordingID); err != nil {
		return nil, err
	} else if existing != nil {
		o.log.Debug().Str("recording_id", recordingID).Msg("transcript already present")
		return existing, nil
	}

	rec, err := o.opts.DB.GetRecording(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("recording %s not found", recordingID)
	}
	if rec.LocalAudioPath == nil || *rec.LocalAudioPath == "" {
		return nil, &InvalidAudioError{Reason: "no staged media for " + recordingID}
	}
	mediaPath := *rec.LocalAudioPath

	var tempFiles []string
	defer func() {
		for _, f := range tempFiles {
			os.Remove(f)
		}
	}()

	audioPath := mediaPath
	if IsVideo(mediaPath) {
		extracted, err := o.opts.Tool.ExtractAudio(ctx, mediaPath, o.opts.TempDir)
		if err != nil {
			return nil, fmt.Errorf("audio extraction: %w", err)
		}
		tempFiles = append(tempFiles, extracted)
		audioPath = extracted
	}

	duration, err := o.opts.Tool.Validate(ctx, audioPath)
	if err != nil {
		return nil, err
	}

	chunks := PlanChunks(duration, o.opts.ChunkDuration, o.opts.ChunkOverlap)

	results := make([]*Response, len(chunks))
	offsets := make([]float64, len(chunks))
	for _, ch := range chunks {
		chunkPath := audioPath
		if len(chunks) > 1 {
			sliced, err := o.opts.Tool.SliceChunk(ctx, audioPath, o.opts.TempDir, ch.Index, ch.Offset, ch.Length)
			if err != nil {
				return nil, fmt.Errorf("chunk %d: %w", ch.Index, err)
			}
			tempFiles = append(tempFiles, sliced)
			chunkPath = sliced
		}

		tag := recordingID
		if len(chunks) > 1 {
			tag = fmt.Sprintf("%s-chunk%03d", recordingID, ch.Index)
		}

		resp, err := o.transcribeFile(ctx, chunkPath, tag)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", ch.Index, err)
		}
		results[ch.Index] = resp
		offsets[ch.Index] = ch.Offset.Seconds()
	}

	merged := StitchChunks(results, offsets)
	merged.Text = Normalize(merged.Text)

	confidence := ComputeConfidence(merged.Segments)
	wordCount := len(strings.Fields(merged.Text))

	segments := make([]database.TranscriptSegment, 0, len(merged.Segments))
	for _, s := range merged.Segments {
		segments = append(segments, database.TranscriptSegment{
			Start:            s.Start,
			End:              s.End,
			Text:             s.Text,
			AvgLogprob:       s.AvgLogprob,
			CompressionRatio: s.CompressionRatio,
			NoSpeechProb:     s.NoSpeechProb,
			Speaker:          s.Speaker,
		})
	}

	row := &database.TranscriptRow{
		RecordingID:         recordingID,
		Text:                merged.Text,
		Language:            merged.Language,
		LanguageProbability: merged.LanguageProbability,
		WordCount:           wordCount,
		Confidence:          confidence,
		DurationSeconds:     duration.Seconds(),
		ProcessingSeconds:   time.Since(start).Seconds(),
		Segments:            segments,
	}
	if err := o.opts.DB.UpsertTranscript(ctx, row); err != nil {
		return nil, fmt.Errorf("persist transcript: %w", err)
	}
	if err := o.opts.DB.SetTranscriptStats(ctx, recordingID, wordCount, confidence, merged.Language); err != nil {
		return nil, err
	}

	o.log.Info().
		Str("recording_id", recordingID).
		Int("words", wordCount).
		Float64("confidence", confidence).
		Int("chunks", len(chunks)).
		Dur("elapsed", time.Since(start)).
		Msg("transcription complete")
	return row, nil
}

// transcribeFile publishes one audio file and runs submit → poll → result,
// retrying transient failures with exponential back-off up to the attempt cap.
func (o *Orchestrator) transcribeFile(ctx context.Context, path, tag string) (*Response, error) {
	audioURL, err := o.opts.Publisher.PublishAudio(ctx, path, filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("publish audio: %w", err)
	}

	opts := SubmitOpts{
		Engine:           o.opts.Provider.Engine(),
		Language:         o.opts.Language,
		InitialPrompt:    o.opts.InitialPrompt,
		Diarization:      o.opts.Diarization,
		Summarization:    o.opts.Summarization,
		CustomVocabulary: o.opts.CustomVocabulary,
		IdempotencyTag:   tag,
	}

	backoff := time.Second
	var lastErr error
	for attempt := 1; attempt <= o.opts.MaxAttempts; attempt++ {
		jobID, err := o.opts.Provider.Submit(ctx, audioURL, opts)
		if err == nil {
			var resp *Response
			resp, err = o.opts.Provider.WaitForJob(ctx, jobID, o.opts.MaxWait)
			if err == nil {
				return resp, nil
			}
		}

		var invalid *InvalidAudioError
		var transient *TransientError
		switch {
		case errors.As(err, &invalid):
			return nil, err // permanent input failure, no retry
		case errors.As(err, &transient), errors.Is(err, context.DeadlineExceeded):
			lastErr = err
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			lastErr = err
		}

		if attempt < o.opts.MaxAttempts {
			o.log.Warn().Err(err).Str("tag", tag).Int("attempt", attempt).Msg("asr attempt failed, backing off")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > 60*time.Second {
				backoff = 60 * time.Second
			}
		}
	}
	return nil, fmt.Errorf("asr failed after %d attempts: %w", o.opts.MaxAttempts, lastErr)
}
