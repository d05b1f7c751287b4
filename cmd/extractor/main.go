// Command extractor starts the extraction worker service.
//
// It consumes dispatch messages from the document-dispatch topic, runs the
// extraction state machine for each document (idempotency re-check, blob
// fetch, OCR, entity recognition, terminal transition), and periodically
// requeues documents whose PROCESSING lease has gone stale.
//
// Usage:
//
//	go run ./cmd/extractor [-config configs/development.yaml]
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

	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/internal/entities"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/internal/extractor"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/internal/ocr"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/internal/reconciler"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/internal/store"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/blob"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/resilience"
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
	slog.Info("starting extractor service",
		"topic", cfg.Kafka.Topics.DocumentDispatch,
		"group", cfg.Kafka.ConsumerGroup,
	)

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

	checker := health.NewChecker()
	checker.Register("postgres", health.PingCheck(db.Ping))
	checker.Register("redis", health.PingCheck(cache.Ping))
	checker.Register("kafka", health.PingCheck(func(ctx context.Context) error {
		return kafka.Ping(ctx, cfg.Kafka.Brokers)
	}))

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, func(mux *http.ServeMux) {
			mux.HandleFunc("GET /health/live", checker.LiveHandler())
			mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
		})
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdownMetrics(shutdownCtx)
		}()
	}

	httpClient := &http.Client{Timeout: cfg.Services.RequestTimeout}
	ocrClient := ocr.NewClient(cfg.Services.OCRURL, httpClient)
	entityClient := entities.NewClient(cfg.Services.EntitiesURL, cfg.Services.LanguageCode, httpClient)
	if m != nil {
		breakerGauge := func(name string, state resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
		}
		ocrClient.OnBreakerStateChange(breakerGauge)
		entityClient.OnBreakerStateChange(breakerGauge)
	}

	records := store.NewCached(store.New(db), cache, cfg.Redis.CacheTTL, m)
	worker := extractor.New(records, blobs, ocrClient, entityClient, cfg.Extractor.StaleAfter, m)
	dispatchConsumer := kafka.NewConsumer(
		cfg.Kafka,
		cfg.Kafka.Topics.DocumentDispatch,
		extractor.HandleMessage(worker, cfg.Extractor.InvocationTimeout),
	)
	sweeper := reconciler.New(records, producer, cfg.Extractor, m)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return dispatchConsumer.Start(gctx)
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("extractor service error", "error", err)
		os.Exit(1)
	}
	slog.Info("extractor service stopped")
}
