package extractor

import (
	"context"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/resilience"
)

// HandleMessage returns a Kafka MessageHandler that runs the worker once per
// delivered dispatch message, under the invocation wall-clock budget.
// Undecodable messages are logged and committed; a worker error (no durable
// outcome recorded) propagates so the message is redelivered.
func HandleMessage(worker *Worker, invocationTimeout time.Duration) kafka.MessageHandler {
	log := logger.WithComponent("dispatch-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		msg, err := kafka.DecodeJSON[document.DispatchMessage](value)
		if err != nil {
			log.Error("failed to decode dispatch message",
				"error", err,
				"key", string(key),
			)
			return nil
		}
		log.Debug("dispatch message received", "document_id", msg.DocumentID)
		return resilience.WithTimeout(ctx, invocationTimeout, "extraction", func(ctx context.Context) error {
			return worker.Process(ctx, msg)
		})
	}
}
