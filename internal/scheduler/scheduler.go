package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/mainseq/ci-engine/internal/alerts"
	"github.com/mainseq/ci-engine/internal/embeddings"
	"github.com/mainseq/ci-engine/internal/health"
	"github.com/mainseq/ci-engine/internal/ingest"
	"github.com/mainseq/ci-engine/internal/insights"
	"github.com/mainseq/ci-engine/internal/metrics"
)

// RunStats tracks one daily pass.
type RunStats struct {
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time,omitempty"`
	TotalRecordings int       `json:"total_recordings"`
	Succeeded       int       `json:"succeeded"`
	Failed          int       `json:"failed"`
	Errors          []string  `json:"errors,omitempty"`
}

// Options configures the scheduler.
type Options struct {
	State     *StateManager
	Batch     *BatchProcessor
	Insights  *insights.Processor
	Embed     *embeddings.Manager
	Video     *ingest.VideoAdapter
	Notetaker *ingest.NotetakerAdapter
	Health    *health.Checker
	Alerts    *alerts.Manager

	ScheduleHour   int
	ScheduleMinute int
	HistoricalDays int
	AnalysisLimit  int
	StateDir       string
	Log            zerolog.Logger
}

// Scheduler supervises daily processing on a one-minute tick, plus an hourly
// health probe and a five-minute metrics tick. Only one daily run is active
// at a time.
type Scheduler struct {
	opts Options
	log  zerolog.Logger

	running      atomic.Bool
	dailyActive  atomic.Bool
	cancel       context.CancelFunc
	done         chan struct{}
	lastDailyDay atomic.Value // string YYYY-MM-DD of last daily trigger

	mu           sync.Mutex
	currentStats *RunStats
}

// New creates the scheduler.
func New(opts Options) *Scheduler {
	if opts.AnalysisLimit == 0 {
		opts.AnalysisLimit = 25
	}
	return &Scheduler{
		opts: opts,
		log:  opts.Log.With().Str("component", "scheduler").Logger(),
	}
}

// Start launches the supervising loop. Idempotent: a running scheduler is
// left alone.
func (s *Scheduler) Start() {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Warn().Msg("scheduler already running")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(ctx)
	s.log.Info().
		Int("hour", s.opts.ScheduleHour).
		Int("minute", s.opts.ScheduleMinute).
		Msg("scheduler started")
}

// Stop requests cooperative shutdown and waits for the loop to exit.
// In-flight stage work finishes its current item.
func (s *Scheduler) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	s.opts.Batch.Stop()
	s.cancel()
	<-s.done
	s.log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	lastHealth := time.Time{}
	lastMetrics := time.Time{}

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			now = now.UTC()

			if s.shouldRunDaily(now) {
				s.lastDailyDay.Store(now.Format(dateLayout))
				go s.RunDailyProcessing(ctx)
			}
			if now.Sub(lastHealth) >= time.Hour {
				lastHealth = now
				s.runHealthCheck(ctx)
			}
			if now.Sub(lastMetrics) >= 5*time.Minute {
				lastMetrics = now
				s.collectMetrics(ctx)
			}
		}
	}
}

// shouldRunDaily reports whether the daily run fires at this tick: the
// configured wall-clock minute has been reached today and no run has
// triggered today. An overlapping run skips the trigger.
func (s *Scheduler) shouldRunDaily(now time.Time) bool {
	if s.dailyActive.Load() {
		return false
	}
	if now.Hour() != s.opts.ScheduleHour || now.Minute() != s.opts.ScheduleMinute {
		return false
	}
	if last, ok := s.lastDailyDay.Load().(string); ok && last == now.Format(dateLayout) {
		return false
	}
	return true
}

// RunDailyProcessing performs one full daily pass: health gate, resume
// window computation, per-day batch processing with checkpoints, ingestion
// of video estates, the analysis cascade, and embedding ingest.
func (s *Scheduler) RunDailyProcessing(ctx context.Context) {
	if !s.dailyActive.CompareAndSwap(false, true) {
		s.log.Warn().Msg("daily run already active, skipping")
		return
	}
	defer s.dailyActive.Store(false)

	stats := &RunStats{StartTime: time.Now().UTC()}
	s.setCurrentStats(stats)
	defer s.setCurrentStats(nil)

	// Unhealthy systems skip the pass entirely; the checkpoint makes the
	// next run cover the gap.
	report := s.opts.Health.Check(ctx)
	if report.Blocks() {
		s.log.Error().Str("status", report.Status).Msg("system unhealthy, skipping daily run")
		s.opts.Alerts.Send(ctx, alerts.Alert{
			Title:     "Daily Run Skipped",
			Message:   fmt.Sprintf("health status %s blocked the daily pass", report.Status),
			Priority:  alerts.PriorityHigh,
			Component: "scheduler",
		})
		return
	}

	state, err := s.opts.State.LoadMainState(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("cannot load processing state")
		return
	}

	start, end := s.dailyWindow(state, time.Now().UTC())
	s.log.Info().
		Str("start", start.Format(dateLayout)).
		Str("end", end.Format(dateLayout)).
		Msg("daily processing window")

	result, err := s.opts.Batch.ProcessDateRange(ctx, start, end, "", func(p Progress) {
		s.mu.Lock()
		stats.TotalRecordings = p.Processed
		stats.Succeeded = p.Succeeded
		stats.Failed = p.Failed
		s.mu.Unlock()
	})
	if err != nil {
		stats.Errors = append(stats.Errors, err.Error())
		s.opts.Alerts.Send(ctx, alerts.Alert{
			Title:     "Daily Processing Failed",
			Message:   err.Error(),
			Priority:  alerts.PriorityHigh,
			Component: "scheduler",
		})
	} else {
		stats.TotalRecordings = result.TotalProcessed
		stats.Succeeded = result.TotalSucceeded
		stats.Failed = result.TotalFailed
		stats.Errors = append(stats.Errors, result.Errors...)
	}

	s.syncVideoEstates(ctx, start, end, stats)
	s.runAnalysis(ctx, stats)

	stats.EndTime = time.Now().UTC()

	// Update long-lived state only when the pass ran to completion.
	if err == nil {
		state.LastSuccessfulRun = stats.EndTime.Format(time.RFC3339)
		state.TotalProcessed += stats.TotalRecordings
		state.TotalSucceeded += stats.Succeeded
		state.TotalFailed += stats.Failed
		if err := s.opts.State.SaveMainState(ctx, state); err != nil {
			s.log.Error().Err(err).Msg("cannot save processing state")
		}
	}

	if s.opts.StateDir != "" {
		if err := ingest.SaveJSON(s.opts.StateDir+"/processing_summary.json", stats); err != nil {
			s.log.Warn().Err(err).Msg("cannot write processing summary")
		}
	}

	metrics.DailyRunsTotal.Inc()
	metrics.DailyRunDuration.Observe(stats.EndTime.Sub(stats.StartTime).Seconds())
	s.sendCompletionAlert(ctx, stats)
}

// dailyWindow computes [start, end] for the pass: resume from the last
// successful run's date, or the historical lookback on first run. End is
// today.
func (s *Scheduler) dailyWindow(state *MainState, now time.Time) (time.Time, time.Time) {
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if state.LastSuccessfulRun != "" {
		if last, err := time.Parse(time.RFC3339, state.LastSuccessfulRun); err == nil {
			start := time.Date(last.Year(), last.Month(), last.Day(), 0, 0, 0, 0, time.UTC)
			if start.After(end) {
				start = end
			}
			return start, end
		}
	}
	return end.AddDate(0, 0, -s.opts.HistoricalDays), end
}

func (s *Scheduler) syncVideoEstates(ctx context.Context, start, end time.Time, stats *RunStats) {
	if s.opts.Video != nil {
		if _, err := s.opts.Video.SyncWindow(ctx, start, end.Add(24*time.Hour)); err != nil {
			stats.Errors = append(stats.Errors, "video sync: "+err.Error())
		}
	}
	if s.opts.Notetaker != nil {
		if _, err := s.opts.Notetaker.SyncAll(ctx); err != nil {
			stats.Errors = append(stats.Errors, "notetaker sync: "+err.Error())
		}
	}
}

func (s *Scheduler) runAnalysis(ctx context.Context, stats *RunStats) {
	if s.opts.Insights != nil {
		if cascade, err := s.opts.Insights.ProcessPending(ctx, s.opts.AnalysisLimit); err != nil {
			stats.Errors = append(stats.Errors, "cascade: "+err.Error())
		} else {
			for i, ls := range cascade.PerLayer {
				layer := fmt.Sprintf("%d", i+1)
				metrics.LayerOutcomesTotal.WithLabelValues(layer, "success").Add(float64(ls.Completed))
				metrics.LayerOutcomesTotal.WithLabelValues(layer, "failure").Add(float64(ls.Failed))
			}
		}
	}
	if s.opts.Embed != nil {
		processed, failed, err := s.opts.Embed.IngestPending(ctx, s.opts.AnalysisLimit*4)
		if err != nil {
			stats.Errors = append(stats.Errors, "embeddings: "+err.Error())
		}
		metrics.EmbeddingsIngestedTotal.Add(float64(processed))
		if failed > 0 {
			s.log.Warn().Int("failed", failed).Msg("embedding ingest failures")
		}
	}
}

// ProcessHistorical runs the daily algorithm over an explicit window.
func (s *Scheduler) ProcessHistorical(ctx context.Context, start, end time.Time) (*Result, error) {
	if !s.dailyActive.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("a processing run is already active")
	}
	defer s.dailyActive.Store(false)

	stats := &RunStats{StartTime: time.Now().UTC()}
	s.setCurrentStats(stats)
	defer s.setCurrentStats(nil)

	result, err := s.opts.Batch.ProcessDateRange(ctx, start, end, "", nil)
	if err != nil {
		return nil, err
	}
	s.syncVideoEstates(ctx, start, end, stats)
	s.runAnalysis(ctx, stats)

	stats.EndTime = time.Now().UTC()
	s.sendCompletionAlert(ctx, stats)
	return result, nil
}

func (s *Scheduler) runHealthCheck(ctx context.Context) {
	report := s.opts.Health.Check(ctx)
	if report.Blocks() {
		s.opts.Alerts.Send(ctx, alerts.Alert{
			Title:     "System Health " + report.Status,
			Message:   fmt.Sprintf("components: %v", report.Components),
			Priority:  alerts.PriorityHigh,
			Component: "health",
		})
	}
}

func (s *Scheduler) collectMetrics(ctx context.Context) {
	// Queue depths are read at scrape time by the collector; this tick only
	// logs them for operators tailing the log.
	summary, err := s.opts.State.ProcessingSummary(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("metrics tick failed")
		return
	}
	s.log.Debug().
		Int("pending_download", summary.Pending.Download).
		Int("pending_transcription", summary.Pending.Transcription).
		Int("pending_upload", summary.Pending.Upload).
		Msg("queue depths")
}

func (s *Scheduler) sendCompletionAlert(ctx context.Context, stats *RunStats) {
	priority := alerts.PriorityLow
	if stats.Failed > 0 {
		priority = alerts.PriorityMedium
	}
	if len(stats.Errors) > 5 {
		priority = alerts.PriorityHigh
	}

	s.opts.Alerts.Send(ctx, alerts.Alert{
		Title: "Daily Processing Complete",
		Message: fmt.Sprintf("%d recordings: %d succeeded, %d failed, %d errors in %s",
			stats.TotalRecordings, stats.Succeeded, stats.Failed, len(stats.Errors),
			stats.EndTime.Sub(stats.StartTime).Round(time.Second)),
		Priority:  priority,
		Component: "scheduler",
		Details: map[string]any{
			"total":     stats.TotalRecordings,
			"succeeded": stats.Succeeded,
			"failed":    stats.Failed,
		},
	})
}

func (s *Scheduler) setCurrentStats(stats *RunStats) {
	s.mu.Lock()
	s.currentStats = stats
	s.mu.Unlock()
}

// Status is the scheduler's live snapshot.
type Status struct {
	Running           bool      `json:"running"`
	DailyScheduleTime string    `json:"daily_schedule_time"`
	LastSuccessfulRun string    `json:"last_successful_run,omitempty"`
	TotalProcessed    int       `json:"total_processed"`
	TotalSucceeded    int       `json:"total_succeeded"`
	TotalFailed       int       `json:"total_failed"`
	CurrentStats      *RunStats `json:"current_stats,omitempty"`
}

// GetStatus snapshots the scheduler state.
func (s *Scheduler) GetStatus(ctx context.Context) (*Status, error) {
	state, err := s.opts.State.LoadMainState(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	var current *RunStats
	if s.currentStats != nil {
		cp := *s.currentStats
		current = &cp
	}
	s.mu.Unlock()

	return &Status{
		Running:           s.running.Load(),
		DailyScheduleTime: fmt.Sprintf("%02d:%02d", s.opts.ScheduleHour, s.opts.ScheduleMinute),
		LastSuccessfulRun: state.LastSuccessfulRun,
		TotalProcessed:    state.TotalProcessed,
		TotalSucceeded:    state.TotalSucceeded,
		TotalFailed:       state.TotalFailed,
		CurrentStats:      current,
	}, nil
}

// QueueDepths implements the metrics collector's QueueStats.
func (s *Scheduler) QueueDepths(ctx context.Context) (int, int, int, error) {
	summary, err := s.opts.State.ProcessingSummary(ctx)
	if err != nil {
		return 0, 0, 0, err
	}
	return summary.Pending.Download, summary.Pending.Transcription, summary.Pending.Upload, nil
}

// WorkerCount implements the metrics collector's QueueStats.
func (s *Scheduler) WorkerCount() int { return s.opts.Batch.workers }

var _ metrics.QueueStats = (*Scheduler)(nil)
