package gatekeeper

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/kafka"
)

type fakeStore struct {
	docs      map[string]*document.Document
	getErr    error
	createErr error
	creates   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: make(map[string]*document.Document)}
}

func (f *fakeStore) Create(ctx context.Context, doc *document.Document) error {
	f.creates++
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.docs[doc.ID]; ok {
		return apperrors.ErrRecordExists
	}
	copied := *doc
	copied.Status = document.StatusUploaded
	f.docs[doc.ID] = &copied
	return nil
}

func (f *fakeStore) Get(ctx context.Context, id string) (*document.Document, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	doc, ok := f.docs[id]
	if !ok {
		return nil, apperrors.ErrRecordNotFound
	}
	copied := *doc
	return &copied, nil
}

type fakeDispatcher struct {
	events []kafka.Event
	err    error
}

func (f *fakeDispatcher) Publish(ctx context.Context, event kafka.Event) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

type fakeSigner struct {
	err error
}

func (f *fakeSigner) SignedUploadURL(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "https://storage.example.com/" + key + "?sig=test", nil
}

func newService(store *fakeStore, dispatcher *fakeDispatcher, signer *fakeSigner) *Service {
	return New(store, dispatcher, signer, config.BlobConfig{
		Bucket:       "test-bucket",
		UploadSource: "api",
		SignedURLTTL: 15 * time.Minute,
	}, nil)
}

func dispatchPayload(t *testing.T, ev kafka.Event) document.DispatchMessage {
	t.Helper()
	msg, ok := ev.Value.(document.DispatchMessage)
	if !ok {
		t.Fatalf("event value is %T, want DispatchMessage", ev.Value)
	}
	return msg
}

func TestHandleStorageEventCreatesRecordAndEnqueues(t *testing.T) {
	store := newFakeStore()
	dispatcher := &fakeDispatcher{}
	svc := newService(store, dispatcher, &fakeSigner{})

	svc.HandleStorageEvent(context.Background(), document.StorageEvent{
		Bucket: "test-bucket",
		Key:    "uploads/direct/doc-123/file.pdf",
	})

	doc, ok := store.docs["doc-123"]
	if !ok {
		t.Fatal("record for doc-123 not created")
	}
	if doc.Status != document.StatusUploaded {
		t.Errorf("status = %s, want UPLOADED", doc.Status)
	}
	if doc.SourceKey != "uploads/direct/doc-123/file.pdf" {
		t.Errorf("sourceKey = %q", doc.SourceKey)
	}
	if len(dispatcher.events) != 1 {
		t.Fatalf("enqueued %d messages, want 1", len(dispatcher.events))
	}
	msg := dispatchPayload(t, dispatcher.events[0])
	if msg.DocumentID != "doc-123" || msg.SourceKey != "uploads/direct/doc-123/file.pdf" {
		t.Errorf("dispatch payload = %+v", msg)
	}
}

func TestHandleStorageEventDuplicateSignal(t *testing.T) {
	store := newFakeStore()
	dispatcher := &fakeDispatcher{}
	svc := newService(store, dispatcher, &fakeSigner{})
	ev := document.StorageEvent{Bucket: "test-bucket", Key: "uploads/direct/doc-123/file.pdf"}

	svc.HandleStorageEvent(context.Background(), ev)
	svc.HandleStorageEvent(context.Background(), ev)

	if len(store.docs) != 1 {
		t.Fatalf("have %d records, want exactly 1", len(store.docs))
	}
	// At-least-once is acceptable: the second delivery still enqueues.
	if len(dispatcher.events) != 2 {
		t.Fatalf("enqueued %d messages, want 2", len(dispatcher.events))
	}
}

func TestHandleStorageEventLostCreateRaceStillEnqueues(t *testing.T) {
	store := newFakeStore()
	// Existence check misses, then create loses the race.
	store.getErr = apperrors.ErrRecordNotFound
	store.createErr = apperrors.ErrRecordExists
	dispatcher := &fakeDispatcher{}
	svc := newService(store, dispatcher, &fakeSigner{})

	svc.HandleStorageEvent(context.Background(), document.StorageEvent{
		Key: "uploads/direct/doc-123/file.pdf",
	})

	if len(dispatcher.events) != 1 {
		t.Fatalf("enqueued %d messages, want 1", len(dispatcher.events))
	}
}

func TestHandleStorageEventUnparseableKeyMintsIdentity(t *testing.T) {
	store := newFakeStore()
	dispatcher := &fakeDispatcher{}
	svc := newService(store, dispatcher, &fakeSigner{})

	svc.HandleStorageEvent(context.Background(), document.StorageEvent{
		Key: "random/object.bin",
	})

	if len(store.docs) != 1 {
		t.Fatalf("have %d records, want 1", len(store.docs))
	}
	for id, doc := range store.docs {
		if id == "" {
			t.Error("minted identity is empty")
		}
		if doc.SourceKey != "random/object.bin" {
			t.Errorf("sourceKey = %q", doc.SourceKey)
		}
	}
	if len(dispatcher.events) != 1 {
		t.Fatalf("enqueued %d messages, want 1", len(dispatcher.events))
	}
}

func TestHandleStorageEventStoreErrorDropsSignal(t *testing.T) {
	store := newFakeStore()
	store.getErr = errors.New("store unavailable")
	dispatcher := &fakeDispatcher{}
	svc := newService(store, dispatcher, &fakeSigner{})

	svc.HandleStorageEvent(context.Background(), document.StorageEvent{
		Key: "uploads/direct/doc-123/file.pdf",
	})

	if store.creates != 0 {
		t.Error("create attempted despite failed existence check")
	}
	if len(dispatcher.events) != 0 {
		t.Error("message enqueued despite dropped signal")
	}
}

func TestHandleStorageEventEmptyKeyDropped(t *testing.T) {
	store := newFakeStore()
	dispatcher := &fakeDispatcher{}
	svc := newService(store, dispatcher, &fakeSigner{})

	svc.HandleStorageEvent(context.Background(), document.StorageEvent{Bucket: "b"})

	if len(store.docs) != 0 || len(dispatcher.events) != 0 {
		t.Error("empty-key event was not dropped")
	}
}

func TestRequestUpload(t *testing.T) {
	store := newFakeStore()
	dispatcher := &fakeDispatcher{}
	svc := newService(store, dispatcher, &fakeSigner{})

	resp, err := svc.RequestUpload(context.Background(), &document.UploadRequest{
		FileName:    "invoice.pdf",
		ContentType: "application/pdf",
	})
	if err != nil {
		t.Fatalf("RequestUpload failed: %v", err)
	}
	if resp.DocumentID == "" {
		t.Error("no document identity issued")
	}
	if resp.PresignedUploadURL == "" {
		t.Error("no signed upload url issued")
	}
	wantKey := fmt.Sprintf("uploads/api/%s/invoice.pdf", resp.DocumentID)
	if resp.SourceKey != wantKey {
		t.Errorf("sourceKey = %q, want %q", resp.SourceKey, wantKey)
	}

	doc, ok := store.docs[resp.DocumentID]
	if !ok {
		t.Fatal("record not created")
	}
	if doc.Status != document.StatusUploaded {
		t.Errorf("status = %s, want UPLOADED", doc.Status)
	}
	if doc.FileName != "invoice.pdf" || doc.ContentType != "application/pdf" {
		t.Errorf("metadata not captured: %+v", doc)
	}

	if len(dispatcher.events) != 1 {
		t.Fatalf("enqueued %d messages, want 1", len(dispatcher.events))
	}
	msg := dispatchPayload(t, dispatcher.events[0])
	if msg.DocumentID != resp.DocumentID || msg.SourceKey != wantKey {
		t.Errorf("dispatch payload = %+v", msg)
	}
}

func TestRequestUploadValidation(t *testing.T) {
	store := newFakeStore()
	dispatcher := &fakeDispatcher{}
	svc := newService(store, dispatcher, &fakeSigner{})

	cases := []document.UploadRequest{
		{FileName: "", ContentType: "application/pdf"},
		{FileName: "a/b.pdf", ContentType: "application/pdf"},
		{FileName: "file.pdf", ContentType: ""},
	}
	for _, req := range cases {
		_, err := svc.RequestUpload(context.Background(), &req)
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Errorf("RequestUpload(%+v): got %v, want ValidationError", req, err)
		}
	}
	if store.creates != 0 {
		t.Error("rejected requests mutated state")
	}
	if len(dispatcher.events) != 0 {
		t.Error("rejected requests enqueued messages")
	}
}

func TestValidationErrorMapsToBadRequest(t *testing.T) {
	svc := newService(newFakeStore(), &fakeDispatcher{}, &fakeSigner{})

	_, err := svc.RequestUpload(context.Background(), &document.UploadRequest{})
	if !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("validation error does not unwrap to ErrInvalidInput: %v", err)
	}
	if code := apperrors.HTTPStatusCode(err); code != 400 {
		t.Errorf("HTTPStatusCode = %d, want 400", code)
	}
}

func TestRequestUploadSignerFailure(t *testing.T) {
	store := newFakeStore()
	svc := newService(store, &fakeDispatcher{}, &fakeSigner{err: errors.New("credentials expired")})

	_, err := svc.RequestUpload(context.Background(), &document.UploadRequest{
		FileName:    "invoice.pdf",
		ContentType: "application/pdf",
	})
	if !errors.Is(err, apperrors.ErrDependency) {
		t.Fatalf("signer failure = %v, want ErrDependency", err)
	}
	if code := apperrors.HTTPStatusCode(err); code != 502 {
		t.Errorf("HTTPStatusCode = %d, want 502", code)
	}
}

func TestRequestUploadEnqueueFailureStillSucceeds(t *testing.T) {
	store := newFakeStore()
	dispatcher := &fakeDispatcher{err: errors.New("broker down")}
	svc := newService(store, dispatcher, &fakeSigner{})

	resp, err := svc.RequestUpload(context.Background(), &document.UploadRequest{
		FileName:    "invoice.pdf",
		ContentType: "application/pdf",
	})
	if err != nil {
		t.Fatalf("RequestUpload failed: %v", err)
	}
	if _, ok := store.docs[resp.DocumentID]; !ok {
		t.Error("record not created")
	}
}
