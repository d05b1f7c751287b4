// Package handler exposes the gatekeeper's HTTP surfaces: the upload-request
// endpoint and the read-only status query endpoint.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/internal/gatekeeper"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/logger"
)

type Handler struct {
	service *gatekeeper.Service
	records store.Getter
	logger  *slog.Logger
}

func New(service *gatekeeper.Service, records store.Getter) *Handler {
	return &Handler{
		service: service,
		records: records,
		logger:  logger.WithComponent("gatekeeper-handler"),
	}
}

// Upload handles POST /api/v1/documents: issue an identity and a signed
// upload URL, create the record, and enqueue the dispatch.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req document.UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	resp, err := h.service.RequestUpload(ctx, &req)
	if err != nil {
		var validationErr *gatekeeper.ValidationError
		if errors.As(err, &validationErr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": validationErr.Fields,
			})
			return
		}
		statusCode := apperrors.HTTPStatusCode(err)
		log.Error("upload request failed", "error", err, "status_code", statusCode)
		h.writeError(w, statusCode, "upload request failed")
		return
	}
	log.Info("upload accepted", "document_id", resp.DocumentID)
	h.writeJSON(w, http.StatusCreated, resp)
}

// GetDocument handles GET /api/v1/documents/{id}: return the full document
// record.
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "document id is required")
		return
	}

	doc, err := h.records.Get(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrRecordNotFound) {
			h.writeError(w, http.StatusNotFound, "document not found")
			return
		}
		logger.FromContext(ctx).Error("status query failed", "document_id", id, "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "status query failed")
		return
	}
	h.writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
