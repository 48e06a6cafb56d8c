// Package embedcache keeps a small recency-ordered cache of query embeddings.
package embedcache

import (
	"context"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/relnote/internal/model"
	appErr "github.com/xxxsen/relnote/internal/pkg/errors"
	"github.com/xxxsen/relnote/internal/pkg/timeutil"
)

const DefaultCapacity = 20

// Store persists cache entries. Get and Oldest return errors.ErrNotFound when
// there is nothing to return.
type Store interface {
	Get(ctx context.Context, key string) (*model.EmbeddingCache, error)
	Touch(ctx context.Context, key string, atime int64) error
	Count(ctx context.Context) (int, error)
	Oldest(ctx context.Context) (*model.EmbeddingCache, error)
	Delete(ctx context.Context, key string) error
	Save(ctx context.Context, item *model.EmbeddingCache) error
	DeleteBefore(ctx context.Context, cutoff int64) (int64, error)
}

type Cache struct {
	store    Store
	capacity int
	now      func() int64
}

type Option func(c *Cache)

// WithClock replaces the millisecond clock used for access times.
func WithClock(now func() int64) Option {
	return func(c *Cache) {
		c.now = now
	}
}

func New(store Store, capacity int, opts ...Option) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &Cache{
		store:    store,
		capacity: capacity,
		now:      timeutil.NowMilli,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func NormalizeKey(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

func (c *Cache) Capacity() int {
	return c.capacity
}

// Get returns a copy of the cached vector and refreshes its access time.
func (c *Cache) Get(ctx context.Context, text string) ([]float32, bool) {
	key := NormalizeKey(text)
	if key == "" {
		return nil, false
	}
	logger := logutil.GetLogger(ctx).With(zap.String("key", key))
	item, err := c.store.Get(ctx, key)
	if err != nil {
		if !appErr.IsNotFound(err) {
			logger.Warn("read embedding cache failed", zap.Error(err))
		}
		return nil, false
	}
	if len(item.Embedding) == 0 {
		return nil, false
	}
	if err := c.store.Touch(ctx, key, c.now()); err != nil {
		logger.Warn("refresh embedding cache entry failed", zap.Error(err))
	}
	logger.Debug("embedding cache hit")
	return cloneEmbedding(item.Embedding), true
}

// Put stores vec under text. When the cache is full and text is a new key the
// single entry with the oldest access time is evicted first; overwriting an
// existing key never evicts.
func (c *Cache) Put(ctx context.Context, text string, vec []float32) error {
	key := NormalizeKey(text)
	if key == "" || len(vec) == 0 {
		return nil
	}
	logger := logutil.GetLogger(ctx).With(zap.String("key", key))
	if _, err := c.store.Get(ctx, key); err != nil {
		if !appErr.IsNotFound(err) {
			logger.Warn("read embedding cache failed", zap.Error(err))
		}
		c.evictOldest(ctx, logger)
	}
	return c.store.Save(ctx, &model.EmbeddingCache{
		Key:       key,
		Embedding: cloneEmbedding(vec),
		Atime:     c.now(),
	})
}

func (c *Cache) evictOldest(ctx context.Context, logger *zap.Logger) {
	cnt, err := c.store.Count(ctx)
	if err != nil {
		logger.Warn("count embedding cache failed", zap.Error(err))
		return
	}
	if cnt < c.capacity {
		return
	}
	oldest, err := c.store.Oldest(ctx)
	if err != nil {
		if !appErr.IsNotFound(err) {
			logger.Warn("find oldest embedding cache entry failed", zap.Error(err))
		}
		return
	}
	if err := c.store.Delete(ctx, oldest.Key); err != nil {
		logger.Warn("evict embedding cache entry failed", zap.String("evict", oldest.Key), zap.Error(err))
		return
	}
	logger.Debug("evicted embedding cache entry", zap.String("evict", oldest.Key))
}

// Cleanup drops entries not accessed since cutoff (unix ms).
func (c *Cache) Cleanup(ctx context.Context, cutoff int64) (int64, error) {
	return c.store.DeleteBefore(ctx, cutoff)
}

func cloneEmbedding(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}
