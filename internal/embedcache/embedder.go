package embedcache

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/relnote/internal/ai"
)

// WrapCacheToEmbedder serves repeated query texts from c.
func WrapCacheToEmbedder(e ai.IEmbedder, c *Cache) ai.IEmbedder {
	if e == nil || c == nil {
		return e
	}
	return &cacheEmbedder{next: e, cache: c}
}

type cacheEmbedder struct {
	next  ai.IEmbedder
	cache *Cache
}

func (d *cacheEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	if vec, ok := d.cache.Get(ctx, text); ok {
		return vec, nil
	}
	res, err := d.next.Embed(ctx, text, taskType)
	if err != nil {
		return nil, err
	}
	if err := d.cache.Put(ctx, text, res); err != nil {
		logutil.GetLogger(ctx).Warn("failed to cache embedding", zap.Error(err))
	}
	return res, nil
}

func (d *cacheEmbedder) ModelName() string {
	return d.next.ModelName()
}
