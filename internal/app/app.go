// Package app wires configuration into the components shared by both
// binaries.
package app

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ksandoe/quizmaker/internal/config"
	"github.com/ksandoe/quizmaker/internal/llm"
	"github.com/ksandoe/quizmaker/internal/metrics"
	"github.com/ksandoe/quizmaker/internal/middleware"
	"github.com/ksandoe/quizmaker/internal/pipeline"
	"github.com/ksandoe/quizmaker/internal/questions"
	"github.com/ksandoe/quizmaker/internal/store"
	"github.com/ksandoe/quizmaker/internal/transcribe"
	"github.com/ksandoe/quizmaker/internal/ytdlp"
)

// OpenStore builds the configured store. The returned close func is never nil.
func OpenStore(ctx context.Context, cfg *config.Config, log *logrus.Entry) (store.Store, func(), error) {
	log = log.WithField("store", cfg.StoreBackend)
	switch cfg.StoreBackend {
	case config.StoreMemory:
		log.Warn("Using in-memory store; data is lost on restart")
		return store.NewMemoryStore(), func() {}, nil

	case config.StorePostgres:
		db, err := store.OpenPostgres(ctx, cfg.DatabaseURL, cfg.ConnectTimeout, log)
		if err != nil {
			return nil, nil, err
		}
		if cfg.DBAutoMigrate {
			if err := store.Migrate(ctx, db); err != nil {
				db.Close()
				return nil, nil, err
			}
			log.Info("Database schema applied")
		}
		return store.NewPostgresStore(db, log), func() { db.Close() }, nil

	case config.StoreSupabase:
		client, err := config.NewSupabaseClient(cfg)
		if err != nil {
			return nil, nil, err
		}
		log.Info("Supabase client initialized")
		return store.NewSupabaseStore(client, log), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

// NewVerifier checks tokens locally when a JWT secret is configured and asks
// the Supabase auth API otherwise.
func NewVerifier(cfg *config.Config) (middleware.TokenVerifier, error) {
	if cfg.SupabaseJWTSecret != "" {
		return middleware.NewJWTVerifier(cfg.SupabaseJWTSecret), nil
	}
	client, err := config.NewSupabaseClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("token verification needs SUPABASE_JWT_SECRET or a Supabase client: %w", err)
	}
	return middleware.NewSupabaseVerifier(client), nil
}

// NewOrchestrator builds the pipeline with its provider clients.
func NewOrchestrator(cfg *config.Config, st store.Store, rec *metrics.Pipeline, log *logrus.Entry) *pipeline.Orchestrator {
	downloader := ytdlp.NewDownloader(ytdlp.Config{
		BinaryPath:     cfg.YtDlpPath,
		FFmpegLocation: cfg.FFmpegLocation,
		Timeout:        cfg.DownloadTimeout,
	}, log.WithField("component", "ytdlp"))

	transcriber := transcribe.NewClient(transcribe.Config{
		BaseURL:  cfg.OpenAIBaseURL,
		APIKey:   cfg.OpenAIAPIKey,
		Model:    cfg.TranscribeModel,
		Language: cfg.TranscribeLanguage,
		MaxBytes: cfg.TranscribeMaxBytes,
		Timeout:  cfg.TranscribeTimeout,
	}, log.WithField("component", "transcribe"))

	completer := llm.NewClient(llm.Config{
		BaseURL:     cfg.OpenAIBaseURL,
		APIKey:      cfg.OpenAIAPIKey,
		Model:       cfg.QuestionModel,
		Temperature: cfg.QuestionTemperature,
		MaxTokens:   cfg.QuestionMaxTokens,
	})
	generator := questions.NewGenerator(st, completer, rec, log.WithField("component", "questions"))

	return pipeline.New(pipeline.Config{
		WorkDir:             cfg.WorkDir,
		QuestionConcurrency: cfg.QuestionConcurrency,
	}, st, downloader, transcriber, generator, rec, log.WithField("component", "pipeline"))
}
