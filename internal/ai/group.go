package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// ErrDimensionMismatch is returned by a fallback provider whose vectors do not
// match the dimension already produced by the group.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

type EmbedderEntry struct {
	Name     string
	Embedder IEmbedder
}

// fallbackEmbedder asks its entries in order. The first vector it returns pins
// the dimension; later vectors of another size are rejected so stored and
// query vectors stay comparable.
type fallbackEmbedder struct {
	items []EmbedderEntry
	dim   atomic.Int64
}

// NewGroupEmbedder tries each entry in order until one succeeds. A single
// entry is returned as is.
func NewGroupEmbedder(items []EmbedderEntry) IEmbedder {
	live := make([]EmbedderEntry, 0, len(items))
	for _, item := range items {
		if item.Embedder != nil {
			live = append(live, item)
		}
	}
	switch len(live) {
	case 0:
		return nil
	case 1:
		return live[0].Embedder
	}
	return &fallbackEmbedder{items: live}
}

func (g *fallbackEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	var lastErr error
	for i, item := range g.items {
		logger := logutil.GetLogger(ctx).With(zap.Int("index", i), zap.String("embedder", item.Name))
		vec, err := item.Embedder.Embed(ctx, text, taskType)
		if err == nil {
			err = g.checkDim(len(vec))
		}
		if err == nil {
			if i > 0 {
				logger.Info("served by fallback embedder")
			}
			return vec, nil
		}
		if errors.Is(err, ErrEmptyText) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
		logger.Warn("embedder failed, try next", zap.Error(err))
	}
	return nil, lastErr
}

func (g *fallbackEmbedder) checkDim(n int) error {
	if n == 0 {
		return nil
	}
	if g.dim.CompareAndSwap(0, int64(n)) {
		return nil
	}
	if want := g.dim.Load(); want != int64(n) {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, n, want)
	}
	return nil
}

func (g *fallbackEmbedder) ModelName() string {
	names := make([]string, 0, len(g.items))
	for _, item := range g.items {
		if item.Name != "" {
			names = append(names, item.Name)
		}
	}
	return strings.Join(names, "|")
}
