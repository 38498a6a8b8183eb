package scheduler

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/mainseq/ci-engine/internal/database"
	"github.com/mainseq/ci-engine/internal/metrics"
	"github.com/mainseq/ci-engine/internal/ringcentral"
	"github.com/mainseq/ci-engine/internal/securestore"
	"github.com/mainseq/ci-engine/internal/transcribe"
)

// itemDeadline bounds one recording's end-to-end processing.
const itemDeadline = 5 * time.Minute

// Pipeline runs one recording through download → transcribe → upload. Each
// stage claims the recording (pending → in_progress) so no two workers share
// an item, then checkpoints the outcome.
type Pipeline struct {
	db         *database.DB
	state      *StateManager
	rc         *ringcentral.Client
	transcribe *transcribe.Orchestrator
	store      *securestore.Handler
	stagingDir string
	maxRetries int
	log        zerolog.Logger
}

// NewPipeline wires the per-recording pipeline.
func NewPipeline(db *database.DB, state *StateManager, rc *ringcentral.Client, orch *transcribe.Orchestrator, store *securestore.Handler, stagingDir string, maxRetries int, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		db:         db,
		state:      state,
		rc:         rc,
		transcribe: orch,
		store:      store,
		stagingDir: stagingDir,
		maxRetries: maxRetries,
		log:        log.With().Str("component", "pipeline").Logger(),
	}
}

// ProcessRecording runs the full pipeline for one recording under the
// per-item deadline. Analysis layers run in a separate pass.
func (p *Pipeline) ProcessRecording(ctx context.Context, recordingID, workerID string) *StageError {
	ctx, cancel := context.WithTimeout(ctx, itemDeadline)
	defer cancel()

	start := time.Now()
	defer func() {
		metrics.RecordingDuration.Observe(time.Since(start).Seconds())
		metrics.RecordingsProcessedTotal.Inc()
	}()

	for _, stage := range []string{database.StageDownload, database.StageTranscription, database.StageUpload} {
		if se := p.runStage(ctx, recordingID, stage, workerID); se != nil {
			return se
		}
	}
	return nil
}

// runStage claims and executes one stage. A stage that is not pending (done
// already, or claimed by another worker) is skipped without error.
func (p *Pipeline) runStage(ctx context.Context, recordingID, stage, workerID string) *StageError {
	claimed, err := p.db.ClaimStage(ctx, recordingID, stage, workerID)
	if err != nil {
		return ClassifyStageError(stage, err)
	}
	if !claimed {
		return nil
	}

	start := time.Now()
	var stageErr error
	switch stage {
	case database.StageDownload:
		if p.rc == nil {
			stageErr = fmt.Errorf("no telephony client configured")
		} else {
			stageErr = p.download(ctx, recordingID)
		}
	case database.StageTranscription:
		if p.transcribe == nil {
			stageErr = fmt.Errorf("transcription not configured")
		} else {
			_, stageErr = p.transcribe.Transcribe(ctx, recordingID)
		}
	case database.StageUpload:
		stageErr = p.upload(ctx, recordingID)
	}
	elapsed := time.Since(start).Seconds()

	if stageErr != nil {
		se := ClassifyStageError(stage, stageErr)
		metrics.ObserveStage(stage, elapsed, false)
		if err := p.state.SaveRecordingCheckpoint(ctx, recordingID, stage, false, se.Message); err != nil {
			p.log.Error().Err(err).Str("recording_id", recordingID).Msg("checkpoint write failed")
		}
		p.promoteIfExhausted(ctx, recordingID, stage, se)
		return se
	}

	metrics.ObserveStage(stage, elapsed, true)
	if err := p.state.SaveRecordingCheckpoint(ctx, recordingID, stage, true, ""); err != nil {
		return ClassifyStageError(stage, err)
	}
	return nil
}

// promoteIfExhausted moves a recording to the failed-items table once its
// retry budget is spent, excluding it from future automatic passes.
func (p *Pipeline) promoteIfExhausted(ctx context.Context, recordingID, stage string, se *StageError) {
	rec, err := p.db.GetRecording(ctx, recordingID)
	if err != nil || rec == nil {
		return
	}
	if se.Recovery == RecoveryFail || rec.RetryCount >= p.maxRetries-1 {
		attempts := rec.RetryCount + 1
		if err := p.db.PromoteToFailed(ctx, recordingID, stage, se.Kind.String(), se.Message, attempts); err != nil {
			p.log.Error().Err(err).Str("recording_id", recordingID).Msg("failed-item promotion failed")
			return
		}
		p.log.Warn().
			Str("recording_id", recordingID).
			Str("stage", stage).
			Int("attempts", attempts).
			Msg("recording promoted to failed items")
	}
}

func (p *Pipeline) download(ctx context.Context, recordingID string) error {
	dest := filepath.Join(p.stagingDir, recordingID+".mp3")
	if err := p.rc.DownloadRecording(ctx, recordingID, dest); err != nil {
		return err
	}
	return p.db.SetLocalAudioPath(ctx, recordingID, dest)
}

func (p *Pipeline) upload(ctx context.Context, recordingID string) error {
	rec, err := p.db.GetRecording(ctx, recordingID)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("recording %s not found", recordingID)
	}
	transcript, err := p.db.GetTranscript(ctx, recordingID)
	if err != nil {
		return err
	}
	if transcript == nil {
		return fmt.Errorf("no transcript for %s", recordingID)
	}
	_, err = p.store.ProcessTranscription(ctx, rec, transcript)
	return err
}
