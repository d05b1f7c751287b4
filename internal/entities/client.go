// Package entities provides the client for the entity-recognition service.
package entities

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/resilience"
)

type detectRequest struct {
	Text         string `json:"text"`
	LanguageCode string `json:"languageCode"`
}

// Client calls the entity-recognition service over HTTP, behind a circuit
// breaker.
type Client struct {
	baseURL      string
	languageCode string
	http         *http.Client
	breaker      *resilience.CircuitBreaker
	logger       *slog.Logger
}

// NewClient creates a Client for the given base URL and language code.
// languageCode defaults to "en".
func NewClient(baseURL, languageCode string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if languageCode == "" {
		languageCode = "en"
	}
	return &Client{
		baseURL:      baseURL,
		languageCode: languageCode,
		http:         httpClient,
		breaker:      resilience.NewCircuitBreaker("entities", resilience.CircuitBreakerConfig{}),
		logger:       logger.WithComponent("entities-client"),
	}
}

// OnBreakerStateChange registers a callback for circuit breaker state
// transitions, used to export the breaker state as a gauge.
func (c *Client) OnBreakerStateChange(fn func(name string, state resilience.State)) {
	c.breaker.OnStateChange(fn)
}

// Detect runs entity recognition over the flattened text and returns the raw
// response payload, which is persisted verbatim on the document record.
func (c *Client) Detect(ctx context.Context, text string) (json.RawMessage, error) {
	var result json.RawMessage
	err := c.breaker.Execute(func() error {
		var err error
		result, err = c.detect(ctx, text)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) detect(ctx context.Context, text string) (json.RawMessage, error) {
	payload, err := json.Marshal(detectRequest{Text: text, LanguageCode: c.languageCode})
	if err != nil {
		return nil, fmt.Errorf("encoding detect request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/detect", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building detect request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: calling entity service: %v", apperrors.ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: calling entity service: %v", apperrors.ErrDependency, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading entity response: %v", apperrors.ErrDependency, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: entity service returned %d", apperrors.ErrDependency, resp.StatusCode)
	}
	c.logger.Debug("entity detection completed", "text_len", len(text))
	return json.RawMessage(body), nil
}
