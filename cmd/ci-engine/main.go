package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/mainseq/ci-engine/internal/alerts"
	"github.com/mainseq/ci-engine/internal/api"
	"github.com/mainseq/ci-engine/internal/config"
	"github.com/mainseq/ci-engine/internal/database"
	"github.com/mainseq/ci-engine/internal/embeddings"
	"github.com/mainseq/ci-engine/internal/health"
	"github.com/mainseq/ci-engine/internal/ingest"
	"github.com/mainseq/ci-engine/internal/insights"
	"github.com/mainseq/ci-engine/internal/llm"
	"github.com/mainseq/ci-engine/internal/metrics"
	"github.com/mainseq/ci-engine/internal/notetaker"
	"github.com/mainseq/ci-engine/internal/ringcentral"
	"github.com/mainseq/ci-engine/internal/scheduler"
	"github.com/mainseq/ci-engine/internal/securestore"
	"github.com/mainseq/ci-engine/internal/storage"
	"github.com/mainseq/ci-engine/internal/transcribe"
)

// version, commit, and buildTime are injected at build time via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	var overrides config.Overrides
	var showVersion bool
	flag.StringVar(&overrides.EnvFile, "env-file", "", "Path to .env file (default: .env)")
	flag.StringVar(&overrides.HTTPAddr, "listen", "", "HTTP listen address (overrides HTTP_ADDR)")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
	flag.StringVar(&overrides.DatabaseURL, "database-url", "", "PostgreSQL connection URL (overrides DATABASE_URL)")
	flag.StringVar(&overrides.DataDir, "data-dir", "", "Data directory (overrides DATA_DIR)")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("%s (commit=%s, built=%s)\n", version, commit, buildTime)
		os.Exit(0)
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("invalid config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().
		Str("version", version).
		Str("commit", commit).
		Str("built", buildTime).
		Msg("ci-engine starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	db, err := database.Connect(ctx, cfg.DatabaseURL, log.With().Str("component", "database").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.InitSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("schema initialization failed")
	}

	// Archive tiers
	localArchive := storage.NewLocalArchive(cfg.DataDir, log)
	var remoteArchive *storage.S3Archive
	if cfg.Archive.Enabled() {
		remoteArchive, err = storage.NewS3Archive(cfg.Archive, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize remote archive")
		}
		if err := remoteArchive.HeadBucket(ctx); err != nil {
			log.Fatal().Err(err).Msg("archive bucket unreachable")
		}
		log.Info().Str("bucket", cfg.Archive.Bucket).Msg("remote archive ready")
	} else {
		log.Warn().Msg("no remote archive configured; audio will be retained")
	}

	// Telephony provider
	var rcClient *ringcentral.Client
	if cfg.RCClientID != "" {
		auth := ringcentral.NewAuth(cfg.RCClientID, cfg.RCClientSecret, cfg.RCJWT, cfg.RCServerURL)
		rcClient = ringcentral.NewClient(auth, cfg.RCServerURL, log)
	}

	// Ingestion
	idCache := ingest.NewIDCache()
	if err := idCache.Load(ctx, db); err != nil {
		log.Warn().Err(err).Msg("dedup cache load failed, continuing with cold cache")
	} else {
		log.Info().Int("ids", idCache.Size()).Msg("dedup cache loaded")
	}
	deduper := ingest.NewDeduper(db, idCache, cfg.StagingDir)

	stateDir := cfg.DataDir + "/scheduler"
	var telephony *ingest.TelephonyAdapter
	var video *ingest.VideoAdapter
	if rcClient != nil {
		telephony = ingest.NewTelephonyAdapter(db, rcClient, deduper, idCache, stateDir, log)
		video = ingest.NewVideoAdapter(db, rcClient, cfg.InternalDomainSet(), log)
	}

	var notetakerAdapter *ingest.NotetakerAdapter
	if cfg.NotetakerEncryptionKey != "" {
		cipher, err := notetaker.NewKeyCipher(cfg.NotetakerEncryptionKey)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid notetaker encryption key")
		}
		notetakerAdapter = ingest.NewNotetakerAdapter(db, cipher, cfg.NotetakerBaseURL, cfg.InternalDomainSet(), log)
	}

	// Transcription
	var orchestrator *transcribe.Orchestrator
	if cfg.ASRBaseURL != "" && remoteArchive != nil {
		asr := transcribe.NewSaladClient(cfg.ASRBaseURL, cfg.ASRAPIKey, cfg.ASREngine, log)
		orchestrator = transcribe.NewOrchestrator(transcribe.OrchestratorOptions{
			DB:               db,
			Provider:         asr,
			Publisher:        remoteArchive,
			Tool:             transcribe.NewAudioTool(cfg.FFmpegPath, cfg.FFprobePath),
			TempDir:          cfg.StagingDir + "/tmp",
			Language:         cfg.ASRLanguage,
			InitialPrompt:    cfg.ASRInitialPrompt,
			Diarization:      cfg.ASRDiarization,
			Summarization:    cfg.ASRSummarization,
			CustomVocabulary: cfg.CustomVocabulary(),
			MaxWait:          cfg.ASRMaxWait,
			MaxAttempts:      cfg.ASRMaxAttempts,
			ChunkDuration:    cfg.ChunkDuration,
			ChunkOverlap:     cfg.ChunkOverlap,
			Log:              log,
		})
		log.Info().Str("engine", cfg.ASREngine).Msg("transcription enabled")
	} else {
		log.Warn().Msg("transcription disabled (ASR_BASE_URL or remote archive missing)")
	}

	// Secure storage
	audit := securestore.NewAuditLog(db, log)
	var remote securestore.RemoteArchive
	if remoteArchive != nil {
		remote = remoteArchive
	}
	secureHandler := securestore.NewHandler(db, localArchive, remote, audit, log)

	// Analysis
	llm.DefaultRoute.Model = cfg.LLMModel
	llmClient := llm.New(llm.Options{
		APIKey:   cfg.LLMAPIKey,
		BaseURL:  cfg.LLMBaseURL,
		Referer:  cfg.LLMReferer,
		AppTitle: cfg.LLMAppTitle,
		Log:      log,
	})
	cascade := insights.NewProcessor(db, llmClient, cfg.AnalysisWorkers, log)

	embedder := embeddings.NewOpenAIEmbedder(cfg.EmbeddingAPIKey, cfg.EmbeddingBaseURL, cfg.EmbeddingModel, cfg.EmbeddingDim)
	embedManager := embeddings.NewManager(db, embedder, log)

	// Monitoring
	alertManager := alerts.NewManager(alerts.Options{
		WebhookURL: cfg.AlertWebhookURL,
		EmailTo:    cfg.AlertEmailTo,
		EmailFrom:  cfg.AlertEmailFrom,
		SMTPAddr:   cfg.AlertSMTPAddr,
		Log:        log,
	})
	healthChecker := health.NewChecker(db, cfg.StagingDir, nil, log)

	// Scheduler stack
	stateManager := scheduler.NewStateManager(db, log)
	pipeline := scheduler.NewPipeline(db, stateManager, rcClient, orchestrator, secureHandler, cfg.StagingDir, cfg.MaxRetries, log)
	batchProcessor := scheduler.NewBatchProcessor(db, stateManager, telephony, pipeline, cfg.WorkerCount, cfg.BatchSize, log)

	hour, minute, _ := config.ParseScheduleTime(cfg.DailyScheduleTime)
	sched := scheduler.New(scheduler.Options{
		State:          stateManager,
		Batch:          batchProcessor,
		Insights:       cascade,
		Embed:          embedManager,
		Video:          video,
		Notetaker:      notetakerAdapter,
		Health:         healthChecker,
		Alerts:         alertManager,
		ScheduleHour:   hour,
		ScheduleMinute: minute,
		HistoricalDays: cfg.HistoricalDays,
		StateDir:       stateDir,
		Log:            log,
	})

	prometheus.MustRegister(metrics.NewCollector(db.Pool, sched))

	sched.Start()
	defer sched.Stop()

	// HTTP surface
	server := api.New(api.Options{
		Addr:         cfg.HTTPAddr,
		AuthToken:    cfg.AuthToken,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		DB:           db,
		Scheduler:    sched,
		State:        stateManager,
		Search:       embedManager,
		Health:       healthChecker,
		Alerts:       alertManager,
		Log:          log,
	})

	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("http server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown incomplete")
	}
}
