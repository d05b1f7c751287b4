package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/redis"
)

// Getter is the read side of the record store.
type Getter interface {
	Get(ctx context.Context, id string) (*document.Document, error)
}

// Recorder is the full record store surface the cache decorates.
type Recorder interface {
	Getter
	Create(ctx context.Context, doc *document.Document) error
	AcquireProcessing(ctx context.Context, id string, staleAfter time.Duration) error
	MarkProcessed(ctx context.Context, id string, result, entities json.RawMessage) error
	MarkFailed(ctx context.Context, id string, message string) error
	StaleProcessing(ctx context.Context, olderThan time.Duration, limit int) ([]document.DispatchMessage, error)
}

// KV is the slice of the Redis client the cache needs.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// CachedStore decorates the record store with a Redis cache for reads. Only
// records in a terminal state are cached, since in-flight statuses change
// within seconds, and every transition that goes through the decorator
// invalidates the entry. Cache failures degrade to direct store access.
type CachedStore struct {
	store   Recorder
	cache   KV
	ttl     time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewCached wraps store with a Redis cache. metrics may be nil.
func NewCached(store Recorder, cache KV, ttl time.Duration, m *metrics.Metrics) *CachedStore {
	return &CachedStore{
		store:   store,
		cache:   cache,
		ttl:     ttl,
		metrics: m,
		logger:  logger.WithComponent("record-cache"),
	}
}

func cacheKey(id string) string {
	return "doc:" + id
}

// Get returns the cached record if present, falling back to the store. A
// fetched record is cached only once it is terminal.
func (c *CachedStore) Get(ctx context.Context, id string) (*document.Document, error) {
	if cached, err := c.cache.Get(ctx, cacheKey(id)); err == nil {
		var doc document.Document
		if err := json.Unmarshal([]byte(cached), &doc); err == nil {
			if c.metrics != nil {
				c.metrics.CacheHitsTotal.Inc()
			}
			return &doc, nil
		}
		c.logger.Warn("dropping undecodable cache entry", "document_id", id)
		c.Invalidate(ctx, id)
	} else if !redis.IsNilError(err) {
		c.logger.Warn("cache read failed, falling back to store", "document_id", id, "error", err)
	}
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}

	doc, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Status.Terminal() {
		if encoded, err := json.Marshal(doc); err == nil {
			if err := c.cache.Set(ctx, cacheKey(id), encoded, c.ttl); err != nil {
				c.logger.Warn("cache write failed", "document_id", id, "error", err)
			}
		}
	}
	return doc, nil
}

// Create inserts the record and drops any cached entry for the identity.
func (c *CachedStore) Create(ctx context.Context, doc *document.Document) error {
	if err := c.store.Create(ctx, doc); err != nil {
		return err
	}
	c.Invalidate(ctx, doc.ID)
	return nil
}

// AcquireProcessing delegates the CAS transition and invalidates on success,
// so a cached ERROR entry cannot outlive a retry takeover.
func (c *CachedStore) AcquireProcessing(ctx context.Context, id string, staleAfter time.Duration) error {
	if err := c.store.AcquireProcessing(ctx, id, staleAfter); err != nil {
		return err
	}
	c.Invalidate(ctx, id)
	return nil
}

// MarkProcessed delegates the terminal write and invalidates the entry.
func (c *CachedStore) MarkProcessed(ctx context.Context, id string, result, entities json.RawMessage) error {
	if err := c.store.MarkProcessed(ctx, id, result, entities); err != nil {
		return err
	}
	c.Invalidate(ctx, id)
	return nil
}

// MarkFailed delegates the terminal write and invalidates the entry.
func (c *CachedStore) MarkFailed(ctx context.Context, id string, message string) error {
	if err := c.store.MarkFailed(ctx, id, message); err != nil {
		return err
	}
	c.Invalidate(ctx, id)
	return nil
}

// StaleProcessing passes through to the store; the sweep never reads through
// the cache.
func (c *CachedStore) StaleProcessing(ctx context.Context, olderThan time.Duration, limit int) ([]document.DispatchMessage, error) {
	return c.store.StaleProcessing(ctx, olderThan, limit)
}

// Invalidate drops the cached entry for a document, if any.
func (c *CachedStore) Invalidate(ctx context.Context, id string) {
	if err := c.cache.Del(ctx, cacheKey(id)); err != nil {
		c.logger.Warn("cache invalidation failed", "document_id", id, "error", err)
	}
}
