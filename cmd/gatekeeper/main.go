// Command gatekeeper starts the ingestion service.
//
// It exposes the upload-request surface (POST /api/v1/documents) and the
// read-only status query surface (GET /api/v1/documents/{id}), and consumes
// blob-available notifications from the storage-events topic. Both paths
// create the document record and enqueue a dispatch message for the
// extractor.
//
// Usage:
//
//	go run ./cmd/gatekeeper [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/internal/gatekeeper"
	gkconsumer "github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/internal/gatekeeper/consumer"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/internal/gatekeeper/handler"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/internal/store"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/blob"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/redis"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting gatekeeper service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to postgres")

	cache, err := redis.NewClient(cfg.Redis)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer cache.Close()
	slog.Info("connected to redis")

	blobs, err := blob.NewGCS(ctx, cfg.Blob.Bucket)
	if err != nil {
		slog.Error("failed to open blob store", "error", err)
		os.Exit(1)
	}
	defer blobs.Close()

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentDispatch)
	defer producer.Close()
	slog.Info("kafka producer initialized", "topic", cfg.Kafka.Topics.DocumentDispatch)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdownMetrics(shutdownCtx)
		}()
	}

	records := store.NewCached(store.New(db), cache, cfg.Redis.CacheTTL, m)
	service := gatekeeper.New(records, producer, blobs, cfg.Blob, m)
	h := handler.New(service, records)

	checker := health.NewChecker()
	checker.Register("postgres", health.PingCheck(db.Ping))
	checker.Register("redis", health.PingCheck(cache.Ping))
	checker.Register("kafka", health.PingCheck(func(ctx context.Context) error {
		return kafka.Ping(ctx, cfg.Kafka.Brokers)
	}))

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/documents", h.Upload)
	mux.HandleFunc("GET /api/v1/documents/{id}", h.GetDocument)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var root http.Handler = mux
	root = middleware.Timeout(cfg.Server.WriteTimeout)(root)
	if m != nil {
		root = middleware.Metrics(m)(root)
	}
	root = middleware.RequestID()(root)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      root,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	storageConsumer := kafka.NewConsumer(
		cfg.Kafka,
		cfg.Kafka.Topics.StorageEvents,
		gkconsumer.HandleMessage(service),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return storageConsumer.Start(gctx)
	})
	g.Go(func() error {
		slog.Info("gatekeeper service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("gatekeeper service error", "error", err)
		os.Exit(1)
	}
	slog.Info("gatekeeper service stopped")
}
