// Package reconciler re-enqueues documents abandoned mid-flight. An
// invocation that times out leaves its record in PROCESSING with an aging
// lease; the sweep finds those records and publishes fresh dispatch messages
// so a worker can take the lease over.
package reconciler

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/resilience"
)

// StaleLister finds stuck PROCESSING records.
type StaleLister interface {
	StaleProcessing(ctx context.Context, olderThan time.Duration, limit int) ([]document.DispatchMessage, error)
}

// BatchDispatcher republishes dispatch messages.
type BatchDispatcher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Reconciler periodically requeues stale PROCESSING documents.
type Reconciler struct {
	store      StaleLister
	dispatcher BatchDispatcher
	cfg        config.ExtractorConfig
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// New creates a Reconciler. metrics may be nil.
func New(store StaleLister, dispatcher BatchDispatcher, cfg config.ExtractorConfig, m *metrics.Metrics) *Reconciler {
	return &Reconciler{
		store:      store,
		dispatcher: dispatcher,
		cfg:        cfg,
		metrics:    m,
		logger:     logger.WithComponent("reconciler"),
	}
}

// Run sweeps on the configured interval until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	r.logger.Info("reconciler started",
		"sweep_interval", r.cfg.SweepInterval,
		"stale_after", r.cfg.StaleAfter,
	)
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopping", "reason", ctx.Err())
			return nil
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				r.logger.Error("sweep failed", "error", err)
			}
		}
	}
}

// Sweep performs a single pass: list stale PROCESSING records and requeue
// their dispatch messages. A record stays in PROCESSING; the worker's lease
// takeover is what moves it forward.
func (r *Reconciler) Sweep(ctx context.Context) error {
	stale, err := r.store.StaleProcessing(ctx, r.cfg.StaleAfter, r.cfg.SweepBatchSize)
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}

	events := make([]kafka.Event, 0, len(stale))
	for _, msg := range stale {
		events = append(events, kafka.Event{Key: msg.DocumentID, Value: msg})
	}

	err = resilience.Retry(ctx, "requeue-stale", resilience.RetryConfig{}, func() error {
		return r.dispatcher.PublishBatch(ctx, events)
	})
	if err != nil {
		return err
	}

	r.logger.Info("requeued stale documents", "count", len(stale))
	if r.metrics != nil {
		r.metrics.StaleRequeuedTotal.Add(float64(len(stale)))
	}
	return nil
}
