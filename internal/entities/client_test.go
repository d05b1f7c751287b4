package entities

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/errors"
)

func TestDetectSendsTextAndLanguage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/detect" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req detectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if req.Text != "Invoice #42" || req.LanguageCode != "de" {
			t.Errorf("request = %+v", req)
		}
		w.Write([]byte(`{"entities":[{"type":"OTHER","text":"Invoice"}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "de", srv.Client())
	raw, err := client.Detect(context.Background(), "Invoice #42")
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(raw) == 0 {
		t.Error("raw payload not returned")
	}
}

func TestDetectServerErrorIsDependencyError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", srv.Client())
	if _, err := client.Detect(context.Background(), "text"); !errors.Is(err, apperrors.ErrDependency) {
		t.Fatalf("error = %v, want ErrDependency", err)
	}
}

func TestDetectDeadlineIsTimeoutError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	client := NewClient(srv.URL, "", srv.Client())
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	if _, err := client.Detect(ctx, "text"); !errors.Is(err, apperrors.ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
}
