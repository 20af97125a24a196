package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Backends.
const (
	StoreSupabase = "supabase"
	StorePostgres = "postgres"
	StoreMemory   = "memory"

	QueueLocal = "local"
	QueueAMQP  = "amqp"
)

// Config is the environment of both binaries.
type Config struct {
	Environment string `validate:"required"`
	LogLevel    string `validate:"oneof=trace debug info warn warning error fatal panic"`
	LogFormat   string `validate:"oneof=json text"`

	HTTPAddr       string `validate:"required"`
	MetricsAddr    string `validate:"required"`
	GRPCHealthAddr string `validate:"required"`
	CORSOrigins    string

	StoreBackend       string `validate:"oneof=supabase postgres memory"`
	SupabaseURL        string `validate:"required_if=StoreBackend supabase"`
	SupabaseServiceKey string `validate:"required_if=StoreBackend supabase"`
	SupabaseJWTSecret  string
	DatabaseURL        string `validate:"required_if=StoreBackend postgres"`
	DBAutoMigrate      bool
	ConnectTimeout     time.Duration `validate:"gt=0"`

	QueueBackend string `validate:"oneof=local amqp"`
	AMQPURL      string `validate:"required_if=QueueBackend amqp"`
	AMQPQueue    string `validate:"required"`
	AMQPPrefetch int    `validate:"gte=1"`

	WorkerCount     int `validate:"gte=1"`
	WorkerQueueSize int `validate:"gte=0"`

	YtDlpPath       string `validate:"required"`
	FFmpegLocation  string
	DownloadTimeout time.Duration `validate:"gte=0"`
	WorkDir         string        `validate:"required"`

	OpenAIAPIKey        string `validate:"required"`
	OpenAIBaseURL       string `validate:"required,url"`
	TranscribeModel     string `validate:"required"`
	TranscribeLanguage  string
	TranscribeTimeout   time.Duration `validate:"gt=0"`
	TranscribeMaxBytes  int64         `validate:"gt=0"`
	QuestionModel       string        `validate:"required"`
	QuestionTemperature float64       `validate:"gte=0,lte=2"`
	QuestionMaxTokens   int           `validate:"gt=0"`
	QuestionConcurrency int           `validate:"gte=1"`
	DefaultMaxSegments  int           `validate:"gte=0"`
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds and validates a Config from a lookup function.
func FromEnv(getenv func(string) string) (*Config, error) {
	e := env{get: getenv}
	environment := e.str("ENVIRONMENT", "local")
	logFormat := "json"
	if environment == "local" {
		logFormat = "text"
	}
	cfg := &Config{
		Environment: environment,
		LogLevel:    strings.ToLower(e.str("LOG_LEVEL", "info")),
		LogFormat:   strings.ToLower(e.str("LOG_FORMAT", logFormat)),

		HTTPAddr:       e.str("HTTP_ADDR", ":8080"),
		MetricsAddr:    e.str("METRICS_ADDR", ":9090"),
		GRPCHealthAddr: e.str("GRPC_HEALTH_ADDR", ":50051"),
		CORSOrigins:    e.str("CORS_ORIGINS", "*"),

		StoreBackend:       strings.ToLower(e.str("STORE_BACKEND", StoreSupabase)),
		SupabaseURL:        strings.TrimRight(e.str("SUPABASE_URL", ""), "/"),
		SupabaseServiceKey: e.str("SUPABASE_SERVICE_KEY", ""),
		SupabaseJWTSecret:  e.str("SUPABASE_JWT_SECRET", ""),
		DatabaseURL:        e.str("DATABASE_URL", ""),
		DBAutoMigrate:      e.boolean("DB_AUTO_MIGRATE", false),
		ConnectTimeout:     e.duration("CONNECT_TIMEOUT", time.Minute),

		QueueBackend: strings.ToLower(e.str("QUEUE_BACKEND", QueueLocal)),
		AMQPURL:      e.str("AMQP_URL", ""),
		AMQPQueue:    e.str("AMQP_QUEUE", "video_processing_queue"),
		AMQPPrefetch: e.integer("AMQP_PREFETCH", 2),

		WorkerCount:     e.integer("WORKER_COUNT", 4),
		WorkerQueueSize: e.integer("WORKER_QUEUE_SIZE", 100),

		YtDlpPath:       e.str("YTDLP_PATH", "yt-dlp"),
		FFmpegLocation:  e.str("FFMPEG_LOCATION", ""),
		DownloadTimeout: e.duration("DOWNLOAD_TIMEOUT", 15*time.Minute),
		WorkDir:         e.str("WORK_DIR", filepath.Join(os.TempDir(), "quizmaker")),

		OpenAIAPIKey:        e.str("OPENAI_API_KEY", ""),
		OpenAIBaseURL:       strings.TrimRight(e.str("OPENAI_BASE_URL", "https://api.openai.com/v1"), "/"),
		TranscribeModel:     e.str("TRANSCRIBE_MODEL", "whisper-1"),
		TranscribeLanguage:  e.str("TRANSCRIBE_LANGUAGE", "en"),
		TranscribeTimeout:   e.duration("TRANSCRIBE_TIMEOUT", 5*time.Minute),
		TranscribeMaxBytes:  int64(e.integer("TRANSCRIBE_MAX_BYTES", 25*1024*1024)),
		QuestionModel:       e.str("QUESTION_MODEL", "gpt-3.5-turbo"),
		QuestionTemperature: e.float("QUESTION_TEMPERATURE", 0.7),
		QuestionMaxTokens:   e.integer("QUESTION_MAX_TOKENS", 500),
		QuestionConcurrency: e.integer("QUESTION_CONCURRENCY", 1),
		DefaultMaxSegments:  e.integer("DEFAULT_MAX_SEGMENTS", 3),
	}
	if len(e.errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(e.errs, "; "))
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultSegments is the max_segments value stored on new videos; nil lets
// the segmenter size segments by word count.
func (c *Config) DefaultSegments() *int {
	if c.DefaultMaxSegments <= 0 {
		return nil
	}
	n := c.DefaultMaxSegments
	return &n
}

type env struct {
	get  func(string) string
	errs []string
}

func (e *env) str(key, def string) string {
	if v := strings.TrimSpace(e.get(key)); v != "" {
		return v
	}
	return def
}

func (e *env) integer(key string, def int) int {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: %q is not an integer", key, v))
		return def
	}
	return n
}

func (e *env) float(key string, def float64) float64 {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: %q is not a number", key, v))
		return def
	}
	return f
}

func (e *env) boolean(key string, def bool) bool {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: %q is not a boolean", key, v))
		return def
	}
	return b
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: %q is not a duration", key, v))
		return def
	}
	return d
}
