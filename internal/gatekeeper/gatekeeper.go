// Package gatekeeper turns blob-available signals and upload requests into
// exactly one UPLOADED record and an enqueued dispatch message per document
// identity. The existence check here is best effort; the extraction worker's
// re-check against the record store is the correctness backstop.
package gatekeeper

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/metrics"
	"github.com/google/uuid"
)

// RecordStore is the slice of the record store the gatekeeper needs.
type RecordStore interface {
	Create(ctx context.Context, doc *document.Document) error
	Get(ctx context.Context, id string) (*document.Document, error)
}

// Dispatcher publishes dispatch messages to the queue.
type Dispatcher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// URLSigner issues signed upload URLs for the upload-request surface.
type URLSigner interface {
	SignedUploadURL(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
}

// Service implements the ingestion gatekeeper.
type Service struct {
	store      RecordStore
	dispatcher Dispatcher
	signer     URLSigner
	cfg        config.BlobConfig
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// New creates a Service. metrics may be nil.
func New(store RecordStore, dispatcher Dispatcher, signer URLSigner, cfg config.BlobConfig, m *metrics.Metrics) *Service {
	return &Service{
		store:      store,
		dispatcher: dispatcher,
		signer:     signer,
		cfg:        cfg,
		metrics:    m,
		logger:     logger.WithComponent("gatekeeper"),
	}
}

// HandleStorageEvent processes a blob-available notification: derive the
// identity from the key, create the UPLOADED record if it does not exist, and
// enqueue a dispatch message. Store and queue errors are logged and the
// signal is dropped; redelivery of the notification owns the retry.
func (s *Service) HandleStorageEvent(ctx context.Context, ev document.StorageEvent) {
	log := logger.FromContext(ctx)
	if ev.Key == "" {
		log.Warn("storage event without object key dropped", "bucket", ev.Bucket)
		return
	}

	id, ok := DocumentIDFromKey(ev.Key)
	if !ok {
		id = uuid.NewString()
		log.Info("storage key outside expected shape, minted fresh identity",
			"key", ev.Key,
			"document_id", id,
		)
	}
	ctx = logger.WithDocumentID(ctx, id)
	log = logger.FromContext(ctx)

	// Best-effort duplicate check. Two racing signals can both miss here;
	// the atomic create below is what actually guarantees a single record.
	existing, err := s.store.Get(ctx, id)
	if err != nil && !errors.Is(err, apperrors.ErrRecordNotFound) {
		log.Error("existence check failed, dropping storage event", "error", err)
		return
	}
	sourceKey := ev.Key
	if existing != nil {
		sourceKey = existing.SourceKey
		log.Info("document record already exists, skipping create")
		if s.metrics != nil {
			s.metrics.DuplicateSignals.Inc()
		}
	} else {
		doc := &document.Document{
			ID:         id,
			SourceKey:  ev.Key,
			UploadTime: time.Now().UTC(),
		}
		if err := s.store.Create(ctx, doc); err != nil {
			if errors.Is(err, apperrors.ErrRecordExists) {
				// Lost the create race to a concurrent signal; not an error.
				log.Info("concurrent create detected, continuing to enqueue")
				if s.metrics != nil {
					s.metrics.DuplicateSignals.Inc()
				}
			} else {
				log.Error("record create failed, dropping storage event", "error", err)
				return
			}
		} else {
			log.Info("document record created", "source_key", ev.Key)
			if s.metrics != nil {
				s.metrics.DocumentsIngested.WithLabelValues("storage").Inc()
			}
		}
	}

	if err := s.enqueue(ctx, id, sourceKey); err != nil {
		log.Error("dispatch enqueue failed, dropping storage event", "error", err)
	}
}

// RequestUpload mints a fresh identity for an explicit upload request,
// creates the UPLOADED record, issues a signed upload URL, and enqueues a
// dispatch message. The blob does not exist yet; the dispatch either finds it
// once uploaded or records an ERROR, and the storage event fired by the
// upload re-enqueues through HandleStorageEvent.
func (s *Service) RequestUpload(ctx context.Context, req *document.UploadRequest) (*document.UploadResponse, error) {
	if err := ValidateUploadRequest(req); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	ctx = logger.WithDocumentID(ctx, id)
	log := logger.FromContext(ctx)
	sourceKey := SourceKey(s.cfg.UploadSource, id, req.FileName)

	doc := &document.Document{
		ID:          id,
		SourceKey:   sourceKey,
		FileName:    req.FileName,
		ContentType: req.ContentType,
		UploadTime:  time.Now().UTC(),
	}
	if err := s.store.Create(ctx, doc); err != nil {
		log.Error("record create failed", "error", err)
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.DocumentsIngested.WithLabelValues("api").Inc()
	}

	url, err := s.signer.SignedUploadURL(ctx, sourceKey, req.ContentType, s.cfg.SignedURLTTL)
	if err != nil {
		log.Error("signing upload url failed", "error", err)
		return nil, apperrors.New(apperrors.ErrDependency, http.StatusBadGateway, "signing upload url failed")
	}

	if err := s.enqueue(ctx, id, sourceKey); err != nil {
		// The record exists; the storage event from the eventual upload
		// re-enters the enqueue path, so the request still succeeds.
		log.Error("dispatch enqueue failed", "error", err)
	}

	log.Info("upload slot issued", "source_key", sourceKey)
	return &document.UploadResponse{
		DocumentID:         id,
		PresignedUploadURL: url,
		SourceKey:          sourceKey,
	}, nil
}

func (s *Service) enqueue(ctx context.Context, id, sourceKey string) error {
	return s.dispatcher.Publish(ctx, kafka.Event{
		Key: id,
		Value: document.DispatchMessage{
			DocumentID: id,
			SourceKey:  sourceKey,
		},
	})
}
