// Package document defines the document record, its lifecycle statuses, and
// the wire payloads exchanged between the pipeline services.
package document

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the lifecycle state of a document record. It only ever moves
// forward: UPLOADED -> PROCESSING -> PROCESSED | ERROR.
type Status string

const (
	StatusUploaded   Status = "UPLOADED"
	StatusProcessing Status = "PROCESSING"
	StatusProcessed  Status = "PROCESSED"
	StatusError      Status = "ERROR"
)

// ParseStatus converts a stored string into a Status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusUploaded, StatusProcessing, StatusProcessed, StatusError:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown document status %q", s)
}

// Terminal reports whether no further pipeline transitions are expected from
// this status. PROCESSED is strictly terminal; ERROR is terminal for the run
// that wrote it but may be reprocessed by a queue redelivery.
func (s Status) Terminal() bool {
	return s == StatusProcessed || s == StatusError
}

// CanTransitionTo reports whether moving from s to next preserves the
// forward-only ordering of the lifecycle.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusUploaded:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusProcessed || next == StatusError
	case StatusError:
		// Redelivery retry path: a failed document may be picked up again.
		return next == StatusProcessing
	default:
		return false
	}
}

// Document is the durable status record, one per document identity. The
// record is created once in UPLOADED and never deleted; only status and the
// status-scoped fields below change afterwards.
type Document struct {
	ID                  string          `json:"documentId"`
	SourceKey           string          `json:"sourceKey"`
	FileName            string          `json:"fileName,omitempty"`
	ContentType         string          `json:"contentType,omitempty"`
	Status              Status          `json:"status"`
	UploadTime          time.Time       `json:"uploadTime"`
	ProcessingStartedAt *time.Time      `json:"processingStartedAt,omitempty"`
	ProcessedTime       *time.Time      `json:"processedTime,omitempty"`
	ExtractionResult    json.RawMessage `json:"extractionResult,omitempty"`
	Entities            json.RawMessage `json:"entities,omitempty"`
	ErrorMessage        string          `json:"errorMessage,omitempty"`
}

// DispatchMessage is the payload published to the dispatch topic. One message
// triggers one extraction worker invocation; delivery is at-least-once, so
// the worker re-checks the record before doing any work.
type DispatchMessage struct {
	DocumentID string `json:"documentId"`
	SourceKey  string `json:"sourceKey"`
}

// StorageEvent is the blob-available notification consumed from the
// storage-events topic.
type StorageEvent struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// UploadRequest is the JSON body accepted by the upload-request surface.
type UploadRequest struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
}

// UploadResponse is returned to the caller after an upload slot is issued.
type UploadResponse struct {
	DocumentID         string `json:"documentId"`
	PresignedUploadURL string `json:"presignedUploadUrl"`
	SourceKey          string `json:"sourceKey"`
}
