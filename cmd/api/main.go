// Command api serves the quizmaker HTTP API.
//
// @title Quizmaker API
// @version 1.0
// @description Turns YouTube videos into multiple-choice quizzes.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	fiberSwagger "github.com/swaggo/fiber-swagger"
	_ "go.uber.org/automaxprocs"
	"golang.org/x/sync/errgroup"

	_ "github.com/ksandoe/quizmaker/docs"
	"github.com/ksandoe/quizmaker/internal/app"
	"github.com/ksandoe/quizmaker/internal/config"
	"github.com/ksandoe/quizmaker/internal/handlers"
	"github.com/ksandoe/quizmaker/internal/metrics"
	"github.com/ksandoe/quizmaker/internal/middleware"
	"github.com/ksandoe/quizmaker/internal/queue"
	"github.com/ksandoe/quizmaker/internal/store"
	"github.com/ksandoe/quizmaker/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	log := config.ServiceLogger(cfg, "api")

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("API stopped with error")
	}
	log.Info("API shut down gracefully")
}

func run(cfg *config.Config, log *logrus.Entry) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := app.OpenStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	verifier, err := app.NewVerifier(cfg)
	if err != nil {
		return err
	}

	reg := metrics.NewRegistry()
	publisher, shutdownQueue, err := newPublisher(ctx, cfg, st, reg, log)
	if err != nil {
		return err
	}
	defer shutdownQueue()

	h := handlers.NewApplicationHandler(st, publisher, log.WithField("component", "handlers"), cfg.DefaultSegments())

	srv := fiber.New(fiber.Config{
		AppName:               "quizmaker-api",
		DisableStartupMessage: true,
	})
	srv.Use(recover.New())
	srv.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
	srv.Use(middleware.RequestLogger(log.WithField("component", "http")))

	srv.Get("/metrics", adaptor.HTTPHandler(metrics.Handler(reg)))
	srv.Get("/swagger/*", fiberSwagger.WrapHandler)
	h.Register(srv, middleware.Auth(verifier, log.WithField("component", "auth")))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", cfg.HTTPAddr).Info("Starting API server")
		return srv.Listen(cfg.HTTPAddr)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down API server")
		return srv.ShutdownWithTimeout(shutdownTimeout)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// newPublisher returns the queue the handlers publish to. In local mode the
// pipelines run on a worker pool inside this process.
func newPublisher(ctx context.Context, cfg *config.Config, st store.Store, reg *prometheus.Registry, log *logrus.Entry) (queue.Publisher, func(), error) {
	switch cfg.QueueBackend {
	case config.QueueAMQP:
		conn, err := queue.Dial(ctx, cfg.AMQPURL, cfg.ConnectTimeout, log)
		if err != nil {
			return nil, nil, err
		}
		pub, err := queue.NewAMQPPublisher(conn, cfg.AMQPQueue, log.WithField("component", "queue"))
		if err != nil {
			conn.Close()
			return nil, nil, err
		}
		return pub, func() {
			pub.Close()
			conn.Close()
		}, nil
	}

	orchestrator := app.NewOrchestrator(cfg, st, metrics.NewPipeline(reg), log)
	dispatcher := worker.NewDispatcher(cfg.WorkerCount, cfg.WorkerQueueSize, log.WithField("component", "dispatcher"))
	metrics.RegisterQueueDepth(reg, dispatcher.QueueDepth)
	dispatcher.OnDrop = queue.FailDropped(st, log.WithField("component", "dispatcher"))
	// Pipelines outlive the signal context so in-flight runs can finish.
	dispatcher.Run(context.WithoutCancel(ctx))

	pub := queue.NewLocalPublisher(dispatcher, orchestrator, log.WithField("component", "queue"))
	return pub, dispatcher.Stop, nil
}
