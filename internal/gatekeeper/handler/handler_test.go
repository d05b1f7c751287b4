package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/internal/gatekeeper"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/kafka"
)

type fakeStore struct {
	docs map[string]*document.Document
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: make(map[string]*document.Document)}
}

func (f *fakeStore) Create(ctx context.Context, doc *document.Document) error {
	if _, ok := f.docs[doc.ID]; ok {
		return apperrors.ErrRecordExists
	}
	copied := *doc
	copied.Status = document.StatusUploaded
	f.docs[doc.ID] = &copied
	return nil
}

func (f *fakeStore) Get(ctx context.Context, id string) (*document.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, apperrors.ErrRecordNotFound
	}
	copied := *doc
	return &copied, nil
}

type fakeDispatcher struct {
	events []kafka.Event
}

func (f *fakeDispatcher) Publish(ctx context.Context, event kafka.Event) error {
	f.events = append(f.events, event)
	return nil
}

type fakeSigner struct{}

func (f *fakeSigner) SignedUploadURL(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	return "https://storage.example.com/signed/" + key, nil
}

func newTestHandler(records *fakeStore) *Handler {
	service := gatekeeper.New(records, &fakeDispatcher{}, &fakeSigner{}, config.BlobConfig{
		Bucket:       "test-bucket",
		UploadSource: "api",
		SignedURLTTL: 15 * time.Minute,
	}, nil)
	return New(service, records)
}

func TestUploadIssuesSlot(t *testing.T) {
	records := newFakeStore()
	h := newTestHandler(records)

	body := strings.NewReader(`{"fileName":"invoice.pdf","contentType":"application/pdf"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
	rec := httptest.NewRecorder()
	h.Upload(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d, body %s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	var resp document.UploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.DocumentID == "" {
		t.Error("response is missing a document id")
	}
	if !strings.Contains(resp.PresignedUploadURL, resp.SourceKey) {
		t.Errorf("signed URL %q does not reference source key %q", resp.PresignedUploadURL, resp.SourceKey)
	}
	if _, ok := records.docs[resp.DocumentID]; !ok {
		t.Error("no record created for issued document id")
	}
}

func TestUploadValidationFailure(t *testing.T) {
	h := newTestHandler(newFakeStore())

	body := strings.NewReader(`{"fileName":"","contentType":""}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
	rec := httptest.NewRecorder()
	h.Upload(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	var resp struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if _, ok := resp.Fields["fileName"]; !ok {
		t.Error("validation response is missing the fileName field error")
	}
}

func TestUploadRejectsMalformedBody(t *testing.T) {
	h := newTestHandler(newFakeStore())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.Upload(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestGetDocumentReturnsRecord(t *testing.T) {
	records := newFakeStore()
	records.docs["doc-123"] = &document.Document{
		ID:        "doc-123",
		SourceKey: "uploads/direct/doc-123/scan.pdf",
		Status:    document.StatusProcessed,
	}
	h := newTestHandler(records)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/documents/{id}", h.GetDocument)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/doc-123", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var doc document.Document
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if doc.ID != "doc-123" || doc.Status != document.StatusProcessed {
		t.Errorf("got document %+v", doc)
	}
}

func TestGetDocumentNotFound(t *testing.T) {
	h := newTestHandler(newFakeStore())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/documents/{id}", h.GetDocument)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/missing", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
