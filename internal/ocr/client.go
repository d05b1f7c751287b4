// Package ocr provides the client for the OCR extraction service and the
// flattening of its output into a single text blob.
package ocr

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

// Element is one unit of OCR output. Only elements of kind "line" carry text
// that the pipeline keeps.
type Element struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

// AnalyzeResult is the decoded OCR response together with the raw payload,
// which is persisted verbatim on the document record.
type AnalyzeResult struct {
	Elements []Element
	Raw      json.RawMessage
}

type analyzeResponse struct {
	Elements []Element `json:"elements"`
}

// Client calls the OCR extraction service over HTTP. Calls go through a
// circuit breaker so a failing upstream trips fast instead of holding every
// invocation for the full request timeout.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

// NewClient creates a Client for the given base URL.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: baseURL,
		http:    httpClient,
		breaker: resilience.NewCircuitBreaker("ocr", resilience.CircuitBreakerConfig{}),
		logger:  logger.WithComponent("ocr-client"),
	}
}

// OnBreakerStateChange registers a callback for circuit breaker state
// transitions, used to export the breaker state as a gauge.
func (c *Client) OnBreakerStateChange(fn func(name string, state resilience.State)) {
	c.breaker.OnStateChange(fn)
}

// Analyze submits the document bytes and returns the OCR elements plus the
// raw response payload.
func (c *Client) Analyze(ctx context.Context, data []byte) (*AnalyzeResult, error) {
	var result *AnalyzeResult
	err := c.breaker.Execute(func() error {
		var err error
		result, err = c.analyze(ctx, data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) analyze(ctx context.Context, data []byte) (*AnalyzeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/analyze", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("building analyze request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: calling ocr service: %v", apperrors.ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: calling ocr service: %v", apperrors.ErrDependency, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading ocr response: %v", apperrors.ErrDependency, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: ocr service returned %d: %s", apperrors.ErrDependency, resp.StatusCode, truncate(body, 256))
	}

	var decoded analyzeResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("%w: decoding ocr response: %v", apperrors.ErrDependency, err)
	}
	c.logger.Debug("ocr analyze completed", "elements", len(decoded.Elements), "bytes", len(data))
	return &AnalyzeResult{
		Elements: decoded.Elements,
		Raw:      json.RawMessage(body),
	}, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
