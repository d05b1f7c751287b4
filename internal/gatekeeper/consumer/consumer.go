// Package consumer adapts blob-available notifications from the
// storage-events topic into gatekeeper calls.
package consumer

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/internal/gatekeeper"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/logger"
)

// HandleMessage returns a Kafka MessageHandler that feeds storage events to
// the gatekeeper. The gatekeeper drops failures internally, so the handler
// always commits: retry of ingest signals belongs to the event producer, not
// this consumer group.
func HandleMessage(service *gatekeeper.Service) kafka.MessageHandler {
	log := logger.WithComponent("storage-event-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		ev, err := kafka.DecodeJSON[document.StorageEvent](value)
		if err != nil {
			log.Error("failed to decode storage event",
				"error", err,
				"key", string(key),
			)
			return nil
		}
		log.Debug("storage event received", "bucket", ev.Bucket, "object_key", ev.Key)
		service.HandleStorageEvent(ctx, ev)
		return nil
	}
}
