// Command processor consumes video jobs from RabbitMQ and runs the quiz
// pipeline on a bounded worker pool.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/sirupsen/logrus"
	_ "go.uber.org/automaxprocs"
	"golang.org/x/sync/errgroup"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/ksandoe/quizmaker/internal/app"
	"github.com/ksandoe/quizmaker/internal/config"
	"github.com/ksandoe/quizmaker/internal/grpchealth"
	"github.com/ksandoe/quizmaker/internal/metrics"
	"github.com/ksandoe/quizmaker/internal/queue"
	"github.com/ksandoe/quizmaker/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	probe := flag.Bool("probe", false, "check the gRPC health endpoint and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	log := config.ServiceLogger(cfg, "processor")

	if *probe {
		if err := runProbe(cfg.GRPCHealthAddr); err != nil {
			log.WithError(err).Error("Health probe failed")
			os.Exit(1)
		}
		return
	}

	log.Info("Starting Video Processor...")
	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("Video Processor stopped with error")
	}
	log.Info("Video Processor shut down gracefully.")
}

func runProbe(addr string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	status, err := grpchealth.Probe(ctx, addr, grpchealth.ServiceName)
	if err != nil {
		return err
	}
	if status != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("status %s", status)
	}
	return nil
}

func run(cfg *config.Config, log *logrus.Entry) error {
	if cfg.QueueBackend != config.QueueAMQP {
		return errors.New("processor needs QUEUE_BACKEND=amqp; with the local backend the api runs pipelines itself")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := app.OpenStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	reg := metrics.NewRegistry()
	orchestrator := app.NewOrchestrator(cfg, st, metrics.NewPipeline(reg), log)

	// No OnDrop hook: jobs dropped at shutdown were never acked, so the
	// broker redelivers them.
	dispatcher := worker.NewDispatcher(cfg.WorkerCount, cfg.WorkerQueueSize, log.WithField("component", "dispatcher"))
	metrics.RegisterQueueDepth(reg, dispatcher.QueueDepth)
	dispatcher.Run(context.WithoutCancel(ctx))

	conn, err := queue.Dial(ctx, cfg.AMQPURL, cfg.ConnectTimeout, log)
	if err != nil {
		dispatcher.Stop()
		return err
	}
	consumer := queue.NewAMQPConsumer(conn, cfg.AMQPQueue, cfg.AMQPPrefetch, dispatcher, orchestrator, log.WithField("component", "consumer"))
	health := grpchealth.NewServer(log.WithField("component", "grpc"))

	metricsSrv := fiber.New(fiber.Config{DisableStartupMessage: true})
	metricsSrv.Get("/metrics", adaptor.HTTPHandler(metrics.Handler(reg)))
	metricsSrv.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":  "ok",
			"message": "Video Processor is healthy",
		})
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		health.SetServing(true)
		defer health.SetServing(false)
		return consumer.Run(gctx)
	})
	g.Go(func() error {
		return health.ListenAndServe(gctx, cfg.GRPCHealthAddr)
	})
	g.Go(func() error {
		log.WithField("addr", cfg.MetricsAddr).Info("Starting metrics server")
		return metricsSrv.Listen(cfg.MetricsAddr)
	})
	g.Go(func() error {
		<-gctx.Done()
		return metricsSrv.ShutdownWithTimeout(shutdownTimeout)
	})
	err = g.Wait()

	log.Info("Shutting down Video Processor...")
	// Jobs still running ack on a closed channel; the broker redelivers them
	// and the pipeline skips videos that are no longer pending.
	dispatcher.Stop()
	if cerr := conn.Close(); cerr != nil {
		log.WithError(cerr).Warn("Failed to close AMQP connection")
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
