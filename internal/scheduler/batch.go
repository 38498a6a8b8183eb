package scheduler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mainseq/ci-engine/internal/database"
	"github.com/mainseq/ci-engine/internal/ingest"
)

// batchPause is the headroom sleep between inner batches.
const batchPause = time.Second

// BatchProcessor walks a date range end-to-end with bounded concurrency,
// persistent progress, and resume.
type BatchProcessor struct {
	db       *database.DB
	state    *StateManager
	adapter  *ingest.TelephonyAdapter
	pipeline *Pipeline

	workers   int
	batchSize int
	log       zerolog.Logger

	stopped atomic.Bool
}

// NewBatchProcessor wires the processor.
func NewBatchProcessor(db *database.DB, state *StateManager, adapter *ingest.TelephonyAdapter, pipeline *Pipeline, workers, batchSize int, log zerolog.Logger) *BatchProcessor {
	if workers < 1 {
		workers = 1
	}
	if batchSize < 1 {
		batchSize = 50
	}
	return &BatchProcessor{
		db:        db,
		state:     state,
		adapter:   adapter,
		pipeline:  pipeline,
		workers:   workers,
		batchSize: batchSize,
		log:       log.With().Str("component", "batch").Logger(),
	}
}

// Stop requests cooperative cancellation; workers finish their current item.
func (b *BatchProcessor) Stop() { b.stopped.Store(true) }

// Result is the outcome of a date-range run.
type Result struct {
	BatchID        string   `json:"batch_id"`
	TotalProcessed int      `json:"total_processed"`
	TotalSucceeded int      `json:"total_succeeded"`
	TotalFailed    int      `json:"total_failed"`
	Errors         []string `json:"errors,omitempty"`
}

// Progress is handed to the optional callback after every date.
type Progress struct {
	CurrentDate string
	Processed   int
	Succeeded   int
	Failed      int
}

// ProgressFunc receives progress updates.
type ProgressFunc func(Progress)

func newBatchID() string {
	var b [8]byte
	rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// ProcessDateRange processes recordings day by day. With resumeBatchID the
// run continues an existing batch from its cursor; otherwise a new batch is
// created. The batch row is persisted after every date, so a crash resumes
// at the last incomplete day.
func (b *BatchProcessor) ProcessDateRange(ctx context.Context, start, end time.Time, resumeBatchID string, progress ProgressFunc) (*Result, error) {
	b.stopped.Store(false)

	var batch *BatchState
	var err error
	if resumeBatchID != "" {
		batch, err = b.state.LoadBatch(ctx, resumeBatchID)
		if err != nil {
			return nil, err
		}
		if batch == nil {
			return nil, fmt.Errorf("batch %s not found", resumeBatchID)
		}
		b.log.Info().Str("batch_id", resumeBatchID).Str("resume_from", batch.CurrentDate).Msg("resuming batch")
	} else {
		batch, err = b.state.CreateBatch(ctx, newBatchID(), start, end)
		if err != nil {
			return nil, err
		}
	}

	result := &Result{BatchID: batch.BatchID}

	current, err := ParseBatchDate(batch.CurrentDate)
	if err != nil {
		return nil, fmt.Errorf("batch cursor: %w", err)
	}
	endDate, err := ParseBatchDate(batch.EndDate)
	if err != nil {
		return nil, fmt.Errorf("batch end: %w", err)
	}

	for !current.After(endDate) && !b.stopped.Load() && ctx.Err() == nil {
		day := current
		stats, dayErr := b.processDate(ctx, day)

		result.TotalProcessed += stats.processed
		result.TotalSucceeded += stats.succeeded
		result.TotalFailed += stats.failed
		batch.TotalProcessed += stats.processed
		batch.TotalFailed += stats.failed

		if dayErr != nil {
			batch.ErrorCount++
			batch.LastError = dayErr.Error()
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", day.Format(dateLayout), dayErr))
			var se *StageError
			if errors.As(dayErr, &se) && se.Recovery == RecoveryAbortRun {
				if err := b.state.UpdateBatch(ctx, batch); err != nil {
					b.log.Error().Err(err).Msg("batch checkpoint failed")
				}
				return result, dayErr
			}
			if batch.ErrorCount > 5 {
				b.log.Error().Str("batch_id", batch.BatchID).Msg("too many errors, stopping batch")
				break
			}
		}

		current = current.AddDate(0, 0, 1)
		batch.CurrentDate = current.Format(dateLayout)

		if err := b.state.UpdateBatch(ctx, batch); err != nil {
			b.log.Error().Err(err).Msg("batch checkpoint failed")
		}

		if progress != nil {
			progress(Progress{
				CurrentDate: day.Format(dateLayout),
				Processed:   result.TotalProcessed,
				Succeeded:   result.TotalSucceeded,
				Failed:      result.TotalFailed,
			})
		}
	}

	if current.After(endDate) {
		if err := b.state.CompleteBatch(ctx, batch); err != nil {
			b.log.Error().Err(err).Msg("batch completion failed")
		}
	}
	return result, nil
}

type dayStats struct {
	processed int
	succeeded int
	failed    int
}

// processDate ingests one calendar day and fans the new pending recordings
// out across the worker pool. Recordings already fully processed are
// excluded up front.
func (b *BatchProcessor) processDate(ctx context.Context, day time.Time) (dayStats, error) {
	var stats dayStats

	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24*time.Hour - time.Second)

	found := 0
	if b.adapter != nil {
		summary, err := b.adapter.SyncWindow(ctx, dayStart, dayEnd)
		if err != nil {
			return stats, err
		}
		found = summary.Found
	}

	completed, err := b.db.CompletedIDsForDay(ctx, dayStart)
	if err != nil {
		return stats, err
	}

	pending, err := b.state.PendingRecordings(ctx, database.StageDownload, b.batchSize*10)
	if err != nil {
		return stats, err
	}

	var work []string
	for _, p := range pending {
		if !completed[p.RecordingID] {
			work = append(work, p.RecordingID)
		}
	}
	if len(work) == 0 {
		b.log.Debug().Str("date", dayStart.Format(dateLayout)).Int("found", found).Msg("no new recordings")
		return stats, nil
	}

	b.log.Info().Str("date", dayStart.Format(dateLayout)).Int("recordings", len(work)).Msg("processing day")

	var mu sync.Mutex
	for i := 0; i < len(work); i += b.batchSize {
		if b.stopped.Load() || ctx.Err() != nil {
			break
		}

		chunk := work[i:min(i+b.batchSize, len(work))]

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(b.workers)
		for w, id := range chunk {
			id := id
			workerID := fmt.Sprintf("worker-%d", w%b.workers)
			g.Go(func() error {
				if b.stopped.Load() {
					return nil
				}
				se := b.pipeline.ProcessRecording(gctx, id, workerID)
				mu.Lock()
				stats.processed++
				if se == nil {
					stats.succeeded++
				} else {
					stats.failed++
				}
				mu.Unlock()
				if se != nil && se.Recovery == RecoveryAbortRun {
					return se
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return stats, err
		}

		// Headroom for provider rate limits between inner batches.
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-time.After(batchPause):
		}
	}
	return stats, nil
}

// ProcessFailedRecordings resets eligible failures and drives each stage's
// now-pending set through the workers.
func (b *BatchProcessor) ProcessFailedRecordings(ctx context.Context, maxRetries int) (*Result, error) {
	reset, err := b.state.ResetFailedRecordings(ctx, 24*time.Hour, maxRetries)
	if err != nil {
		return nil, err
	}
	result := &Result{}
	if reset == 0 {
		return result, nil
	}

	for _, stage := range []string{database.StageDownload, database.StageTranscription, database.StageUpload} {
		pending, err := b.state.PendingRecordings(ctx, stage, b.batchSize)
		if err != nil {
			return result, err
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(b.workers)
		var mu sync.Mutex
		for w, p := range pending {
			id := p.RecordingID
			workerID := fmt.Sprintf("retry-worker-%d", w%b.workers)
			g.Go(func() error {
				se := b.pipeline.ProcessRecording(gctx, id, workerID)
				mu.Lock()
				result.TotalProcessed++
				if se == nil {
					result.TotalSucceeded++
				} else {
					result.TotalFailed++
					result.Errors = append(result.Errors, se.Error())
				}
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return result, err
		}
	}
	return result, nil
}
