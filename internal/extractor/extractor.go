// Package extractor runs the per-document extraction state machine:
// idempotency re-check, PROCESSING acquisition, blob fetch, OCR, entity
// recognition, terminal transition. Every invocation is stateless; all
// coordination between racing invocations happens through the record store's
// conditional writes.
package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/internal/ocr"
	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/metrics"
)

// fallbackErrorMessage is recorded when a failure carries no description.
const fallbackErrorMessage = "document processing failed"

// RecordStore is the slice of the record store the worker needs.
type RecordStore interface {
	Get(ctx context.Context, id string) (*document.Document, error)
	AcquireProcessing(ctx context.Context, id string, staleAfter time.Duration) error
	MarkProcessed(ctx context.Context, id string, result, entities json.RawMessage) error
	MarkFailed(ctx context.Context, id string, message string) error
}

// BlobFetcher reads raw document bytes.
type BlobFetcher interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// OCRClient invokes the OCR extraction service.
type OCRClient interface {
	Analyze(ctx context.Context, data []byte) (*ocr.AnalyzeResult, error)
}

// EntityClient invokes the entity-recognition service.
type EntityClient interface {
	Detect(ctx context.Context, text string) (json.RawMessage, error)
}

// Worker executes one extraction per dispatch message.
type Worker struct {
	store      RecordStore
	blobs      BlobFetcher
	ocr        OCRClient
	entities   EntityClient
	staleAfter time.Duration
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// New creates a Worker. metrics may be nil.
func New(store RecordStore, blobs BlobFetcher, ocrClient OCRClient, entityClient EntityClient, staleAfter time.Duration, m *metrics.Metrics) *Worker {
	return &Worker{
		store:      store,
		blobs:      blobs,
		ocr:        ocrClient,
		entities:   entityClient,
		staleAfter: staleAfter,
		metrics:    m,
		logger:     logger.WithComponent("extraction-worker"),
	}
}

// Process runs the state machine for one dispatch message. A nil return means
// the message is finished with: the document reached a terminal state, or the
// invocation collapsed to a no-op (already processed, lost the acquisition
// race, unknown identity). A non-nil return means no durable outcome was
// recorded and the message should be redelivered.
func (w *Worker) Process(ctx context.Context, msg document.DispatchMessage) error {
	if msg.DocumentID == "" || msg.SourceKey == "" {
		w.logger.Warn("malformed dispatch message skipped", "message", msg)
		return nil
	}
	ctx = logger.WithDocumentID(ctx, msg.DocumentID)
	log := logger.FromContext(ctx)

	// Idempotency re-check. Delivery is at-least-once, so a duplicate
	// invocation is expected; once the first reached PROCESSED every later
	// one collapses to a no-op before any dependency call.
	doc, err := w.store.Get(ctx, msg.DocumentID)
	if err != nil {
		if errors.Is(err, apperrors.ErrRecordNotFound) {
			log.Warn("no record for dispatched document, skipping")
			w.countOutcome("skipped")
			return nil
		}
		return err
	}
	if doc.Status == document.StatusProcessed {
		log.Info("document already processed, skipping")
		w.countOutcome("skipped")
		return nil
	}

	// Conditional acquisition gates the window between the re-check above
	// and the work below: of two racing invocations exactly one flips the
	// record to PROCESSING, the other observes a conflict and exits.
	if err := w.store.AcquireProcessing(ctx, msg.DocumentID, w.staleAfter); err != nil {
		if errors.Is(err, apperrors.ErrStatusConflict) {
			log.Info("lost processing acquisition, skipping")
			w.countOutcome("conflict")
			return nil
		}
		return err
	}

	result, entities, err := w.extract(ctx, msg.SourceKey)
	if err != nil {
		w.fail(ctx, msg.DocumentID, err)
		w.countOutcome("error")
		return nil
	}

	if err := w.store.MarkProcessed(ctx, msg.DocumentID, result, entities); err != nil {
		if errors.Is(err, apperrors.ErrStatusConflict) {
			// Another writer reached a terminal state first; ours is the
			// redundant duplicate and its output is discarded.
			log.Warn("terminal write lost to concurrent invocation")
			w.countOutcome("conflict")
			return nil
		}
		log.Error("failed to record processed state", "error", err)
		return err
	}
	log.Info("document processed")
	w.countOutcome("processed")
	return nil
}

// extract performs the dependency calls: fetch, OCR, entity recognition.
func (w *Worker) extract(ctx context.Context, sourceKey string) (result, entities json.RawMessage, err error) {
	start := time.Now()
	data, err := w.blobs.Get(ctx, sourceKey)
	w.observeStage("fetch", start)
	if err != nil {
		return nil, nil, err
	}

	start = time.Now()
	analyzed, err := w.ocr.Analyze(ctx, data)
	w.observeStage("extract", start)
	if err != nil {
		return nil, nil, err
	}
	text := ocr.Flatten(analyzed.Elements)

	start = time.Now()
	detected, err := w.entities.Detect(ctx, text)
	w.observeStage("recognize", start)
	if err != nil {
		return nil, nil, err
	}
	return analyzed.Raw, detected, nil
}

// fail records the terminal ERROR state. This is best effort: a failure to
// write the failure is logged and swallowed, ending the invocation.
func (w *Worker) fail(ctx context.Context, id string, cause error) {
	log := logger.FromContext(ctx)
	message := fallbackErrorMessage
	if cause != nil && cause.Error() != "" {
		message = cause.Error()
	}
	log.Error("extraction failed", "error", cause)
	if err := w.store.MarkFailed(ctx, id, message); err != nil {
		log.Error("failed to record error state", "error", err)
	}
}

func (w *Worker) countOutcome(outcome string) {
	if w.metrics != nil {
		w.metrics.ExtractionsTotal.WithLabelValues(outcome).Inc()
	}
}

func (w *Worker) observeStage(stage string, start time.Time) {
	if w.metrics != nil {
		w.metrics.ExtractionDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}
