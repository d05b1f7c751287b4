package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/internal/document"
	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/redis"
)

type memRecorder struct {
	docs map[string]*document.Document
	gets int
}

func newMemRecorder() *memRecorder {
	return &memRecorder{docs: make(map[string]*document.Document)}
}

func (m *memRecorder) Get(ctx context.Context, id string) (*document.Document, error) {
	m.gets++
	doc, ok := m.docs[id]
	if !ok {
		return nil, apperrors.ErrRecordNotFound
	}
	copied := *doc
	return &copied, nil
}

func (m *memRecorder) Create(ctx context.Context, doc *document.Document) error {
	if _, ok := m.docs[doc.ID]; ok {
		return apperrors.ErrRecordExists
	}
	copied := *doc
	copied.Status = document.StatusUploaded
	m.docs[doc.ID] = &copied
	return nil
}

func (m *memRecorder) AcquireProcessing(ctx context.Context, id string, staleAfter time.Duration) error {
	doc, ok := m.docs[id]
	if !ok || doc.Status == document.StatusProcessed || doc.Status == document.StatusProcessing {
		return apperrors.ErrStatusConflict
	}
	doc.Status = document.StatusProcessing
	return nil
}

func (m *memRecorder) MarkProcessed(ctx context.Context, id string, result, entities json.RawMessage) error {
	doc, ok := m.docs[id]
	if !ok || doc.Status != document.StatusProcessing {
		return apperrors.ErrStatusConflict
	}
	doc.Status = document.StatusProcessed
	doc.ExtractionResult = result
	doc.Entities = entities
	return nil
}

func (m *memRecorder) MarkFailed(ctx context.Context, id string, message string) error {
	doc, ok := m.docs[id]
	if !ok || doc.Status != document.StatusProcessing {
		return apperrors.ErrStatusConflict
	}
	doc.Status = document.StatusError
	doc.ErrorMessage = message
	return nil
}

func (m *memRecorder) StaleProcessing(ctx context.Context, olderThan time.Duration, limit int) ([]document.DispatchMessage, error) {
	return nil, nil
}

type memKV struct {
	entries map[string]string
	failing bool
}

func newMemKV() *memKV {
	return &memKV{entries: make(map[string]string)}
}

func (m *memKV) Get(ctx context.Context, key string) (string, error) {
	if m.failing {
		return "", errors.New("connection refused")
	}
	v, ok := m.entries[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memKV) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.failing {
		return errors.New("connection refused")
	}
	m.entries[key] = string(value.([]byte))
	return nil
}

func (m *memKV) Del(ctx context.Context, keys ...string) error {
	if m.failing {
		return errors.New("connection refused")
	}
	for _, key := range keys {
		delete(m.entries, key)
	}
	return nil
}

func TestCachedGetCachesTerminalRecords(t *testing.T) {
	records := newMemRecorder()
	records.docs["doc-1"] = &document.Document{ID: "doc-1", Status: document.StatusProcessed}
	cached := NewCached(records, newMemKV(), time.Minute, nil)

	for i := 0; i < 2; i++ {
		doc, err := cached.Get(context.Background(), "doc-1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if doc.Status != document.StatusProcessed {
			t.Fatalf("status = %s", doc.Status)
		}
	}
	if records.gets != 1 {
		t.Errorf("store reads = %d, want 1 (second read should hit the cache)", records.gets)
	}
}

func TestCachedGetDoesNotCacheInFlightRecords(t *testing.T) {
	records := newMemRecorder()
	records.docs["doc-1"] = &document.Document{ID: "doc-1", Status: document.StatusProcessing}
	cached := NewCached(records, newMemKV(), time.Minute, nil)

	for i := 0; i < 2; i++ {
		if _, err := cached.Get(context.Background(), "doc-1"); err != nil {
			t.Fatalf("Get failed: %v", err)
		}
	}
	if records.gets != 2 {
		t.Errorf("store reads = %d, want 2 (in-flight records must not be cached)", records.gets)
	}
}

func TestTransitionsInvalidateCache(t *testing.T) {
	records := newMemRecorder()
	kv := newMemKV()
	cached := NewCached(records, kv, time.Minute, nil)
	ctx := context.Background()

	if err := cached.Create(ctx, &document.Document{ID: "doc-1", SourceKey: "uploads/direct/doc-1/a.pdf"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := cached.AcquireProcessing(ctx, "doc-1", time.Minute); err != nil {
		t.Fatalf("AcquireProcessing failed: %v", err)
	}
	if err := cached.MarkFailed(ctx, "doc-1", "ocr unavailable"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	// The ERROR record is terminal and gets cached on read.
	doc, err := cached.Get(ctx, "doc-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if doc.Status != document.StatusError {
		t.Fatalf("status = %s, want %s", doc.Status, document.StatusError)
	}
	if len(kv.entries) != 1 {
		t.Fatalf("cache entries = %d, want 1", len(kv.entries))
	}

	// A retry takeover must evict the stale ERROR entry immediately.
	if err := cached.AcquireProcessing(ctx, "doc-1", time.Minute); err != nil {
		t.Fatalf("retry AcquireProcessing failed: %v", err)
	}
	if len(kv.entries) != 0 {
		t.Fatal("cached ERROR entry survived the retry takeover")
	}
	doc, err = cached.Get(ctx, "doc-1")
	if err != nil {
		t.Fatalf("Get after retry failed: %v", err)
	}
	if doc.Status != document.StatusProcessing {
		t.Errorf("status = %s, want %s", doc.Status, document.StatusProcessing)
	}

	if err := cached.MarkProcessed(ctx, "doc-1", json.RawMessage(`{}`), json.RawMessage(`[]`)); err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}
	doc, err = cached.Get(ctx, "doc-1")
	if err != nil {
		t.Fatalf("Get after MarkProcessed failed: %v", err)
	}
	if doc.Status != document.StatusProcessed {
		t.Errorf("status = %s, want %s", doc.Status, document.StatusProcessed)
	}
}

func TestFailedTransitionLeavesCacheAlone(t *testing.T) {
	records := newMemRecorder()
	records.docs["doc-1"] = &document.Document{ID: "doc-1", Status: document.StatusProcessed}
	kv := newMemKV()
	cached := NewCached(records, kv, time.Minute, nil)
	ctx := context.Background()

	if _, err := cached.Get(ctx, "doc-1"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if err := cached.AcquireProcessing(ctx, "doc-1", time.Minute); !errors.Is(err, apperrors.ErrStatusConflict) {
		t.Fatalf("AcquireProcessing on PROCESSED = %v, want ErrStatusConflict", err)
	}
	if len(kv.entries) != 1 {
		t.Error("rejected transition evicted the cache entry")
	}
}

func TestCachedGetDegradesWhenCacheUnavailable(t *testing.T) {
	records := newMemRecorder()
	records.docs["doc-1"] = &document.Document{ID: "doc-1", Status: document.StatusProcessed}
	cached := NewCached(records, &memKV{failing: true}, time.Minute, nil)

	doc, err := cached.Get(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("Get failed with cache down: %v", err)
	}
	if doc.Status != document.StatusProcessed {
		t.Errorf("status = %s", doc.Status)
	}
}
