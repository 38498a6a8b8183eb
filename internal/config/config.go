package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`

	DataDir    string `env:"DATA_DIR" envDefault:"./data"`
	StagingDir string `env:"STAGING_DIR"` // defaults to <DATA_DIR>/audio_queue

	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	AuthToken    string        `env:"AUTH_TOKEN"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Scheduler
	DailyScheduleTime string `env:"DAILY_SCHEDULE_TIME" envDefault:"02:00"` // HH:MM wall clock
	BatchSize         int    `env:"BATCH_SIZE" envDefault:"50"`
	MaxRetries        int    `env:"MAX_RETRIES" envDefault:"3"`
	HistoricalDays    int    `env:"HISTORICAL_DAYS" envDefault:"60"`
	WorkerCount       int    `env:"WORKER_COUNT" envDefault:"4"`
	AnalysisWorkers   int    `env:"ANALYSIS_WORKERS" envDefault:"2"`

	// Telephony provider (JWT auth flow)
	RCClientID     string `env:"RC_CLIENT_ID"`
	RCClientSecret string `env:"RC_CLIENT_SECRET"`
	RCJWT          string `env:"RC_JWT_TOKEN"`
	RCServerURL    string `env:"RC_SERVER_URL" envDefault:"https://platform.ringcentral.com"`

	// Notetaker provider
	NotetakerBaseURL       string `env:"NOTETAKER_BASE_URL" envDefault:"https://api.fathom.ai/external/v1"`
	NotetakerEncryptionKey string `env:"NOTETAKER_ENCRYPTION_KEY"` // base64 AES-256 key for the credential store

	// Internal-participant classification
	InternalDomains string `env:"INTERNAL_DOMAINS"` // comma-separated email domains

	// ASR provider (submit-and-poll)
	ASRBaseURL       string        `env:"ASR_BASE_URL"`
	ASRAPIKey        string        `env:"ASR_API_KEY"`
	ASREngine        string        `env:"ASR_ENGINE" envDefault:"full"`
	ASRLanguage      string        `env:"ASR_LANGUAGE" envDefault:"en"`
	ASRInitialPrompt string        `env:"ASR_INITIAL_PROMPT"`
	ASRDiarization   bool          `env:"ASR_ENABLE_DIARIZATION" envDefault:"false"`
	ASRSummarization bool          `env:"ASR_ENABLE_SUMMARIZATION" envDefault:"false"`
	ASRCustomVocab   string        `env:"ASR_CUSTOM_VOCABULARY"` // comma-separated terms
	ASRMaxWait       time.Duration `env:"ASR_MAX_WAIT" envDefault:"30m"`
	ASRMaxAttempts   int           `env:"ASR_MAX_ATTEMPTS" envDefault:"3"`
	ChunkDuration    time.Duration `env:"ASR_CHUNK_DURATION" envDefault:"30m"`
	ChunkOverlap     time.Duration `env:"ASR_CHUNK_OVERLAP" envDefault:"2s"`
	FFmpegPath       string        `env:"FFMPEG_PATH" envDefault:"ffmpeg"`
	FFprobePath      string        `env:"FFPROBE_PATH" envDefault:"ffprobe"`

	// Archive storage (S3-compatible)
	Archive ArchiveConfig `envPrefix:"ARCHIVE_"`

	// Embeddings
	EmbeddingBaseURL string `env:"EMBEDDING_BASE_URL"` // empty = provider default
	EmbeddingAPIKey  string `env:"EMBEDDING_API_KEY"`
	EmbeddingModel   string `env:"EMBEDDING_MODEL" envDefault:"text-embedding-ada-002"`
	EmbeddingDim     int    `env:"EMBEDDING_DIM" envDefault:"1536"`

	// LLM routing
	LLMBaseURL  string `env:"LLM_BASE_URL" envDefault:"https://openrouter.ai/api/v1"`
	LLMAPIKey   string `env:"LLM_API_KEY"`
	LLMModel    string `env:"LLM_MODEL" envDefault:"deepseek/deepseek-chat"` // default fallback route
	LLMReferer  string `env:"LLM_HTTP_REFERER"`
	LLMAppTitle string `env:"LLM_APP_TITLE"`

	// Alerts
	AlertWebhookURL string `env:"ALERT_WEBHOOK_URL"`
	AlertEmailTo    string `env:"ALERT_EMAIL_TO"`
	AlertEmailFrom  string `env:"ALERT_EMAIL_FROM"`
	AlertSMTPAddr   string `env:"ALERT_SMTP_ADDR"` // host:port
}

// ArchiveConfig configures the S3-compatible remote archive tier.
type ArchiveConfig struct {
	Endpoint      string        `env:"ENDPOINT"`
	Region        string        `env:"REGION" envDefault:"us-east-1"`
	Bucket        string        `env:"BUCKET"`
	Prefix        string        `env:"PREFIX"`
	AccessKey     string        `env:"ACCESS_KEY"`
	SecretKey     string        `env:"SECRET_KEY"`
	PresignExpiry time.Duration `env:"PRESIGN_EXPIRY" envDefault:"1h"`
}

// Enabled reports whether a remote archive tier is configured.
func (a ArchiveConfig) Enabled() bool { return a.Bucket != "" }

// Validate checks cross-field requirements that struct tags cannot express.
func (c *Config) Validate() error {
	if _, _, err := ParseScheduleTime(c.DailyScheduleTime); err != nil {
		return fmt.Errorf("DAILY_SCHEDULE_TIME: %w", err)
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("WORKER_COUNT must be >= 1, got %d", c.WorkerCount)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("BATCH_SIZE must be >= 1, got %d", c.BatchSize)
	}
	if c.EmbeddingDim < 1 {
		return fmt.Errorf("EMBEDDING_DIM must be >= 1, got %d", c.EmbeddingDim)
	}
	if c.ChunkOverlap >= c.ChunkDuration {
		return fmt.Errorf("ASR_CHUNK_OVERLAP (%s) must be shorter than ASR_CHUNK_DURATION (%s)", c.ChunkOverlap, c.ChunkDuration)
	}
	if c.RCClientID == "" && c.NotetakerEncryptionKey == "" {
		return fmt.Errorf("at least one ingestion source must be configured (RC_CLIENT_ID or NOTETAKER_ENCRYPTION_KEY)")
	}
	return nil
}

// ParseScheduleTime parses an HH:MM wall-clock string.
func ParseScheduleTime(s string) (hour, minute int, err error) {
	if strings.Count(s, ":") != 1 {
		return 0, 0, fmt.Errorf("want HH:MM, got %q", s)
	}
	if _, err := fmt.Sscanf(s, "%d:%d", &hour, &minute); err != nil {
		return 0, 0, fmt.Errorf("want HH:MM, got %q", s)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("out of range: %q", s)
	}
	return hour, minute, nil
}

// InternalDomainSet returns the configured internal email domains, lowercased.
func (c *Config) InternalDomainSet() map[string]bool {
	set := make(map[string]bool)
	for _, d := range strings.Split(c.InternalDomains, ",") {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			set[d] = true
		}
	}
	return set
}

// CustomVocabulary splits the comma-separated ASR vocabulary option.
func (c *Config) CustomVocabulary() []string {
	if c.ASRCustomVocab == "" {
		return nil
	}
	var out []string
	for _, t := range strings.Split(c.ASRCustomVocab, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile     string
	HTTPAddr    string
	LogLevel    string
	DatabaseURL string
	DataDir     string
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.DatabaseURL != "" {
		cfg.DatabaseURL = overrides.DatabaseURL
	}
	if overrides.DataDir != "" {
		cfg.DataDir = overrides.DataDir
	}

	if cfg.StagingDir == "" {
		cfg.StagingDir = cfg.DataDir + "/audio_queue"
	}

	return cfg, nil
}
