package embedcache

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/xxxsen/relnote/internal/model"
	appErr "github.com/xxxsen/relnote/internal/pkg/errors"
)

const minMemoryCeiling = 1024

type memoryStore struct {
	mu    sync.Mutex
	items *lru.Cache[string, model.EmbeddingCache]
}

// NewMemoryStore keeps entries in process. The lru ceiling only guards memory
// when the cache is misconfigured; eviction order is decided by Cache.
func NewMemoryStore(capacity int) (Store, error) {
	ceiling := capacity * 4
	if ceiling < minMemoryCeiling {
		ceiling = minMemoryCeiling
	}
	items, err := lru.New[string, model.EmbeddingCache](ceiling)
	if err != nil {
		return nil, err
	}
	return &memoryStore{items: items}, nil
}

func (s *memoryStore) Get(ctx context.Context, key string) (*model.EmbeddingCache, error) {
	item, ok := s.items.Peek(key)
	if !ok {
		return nil, appErr.ErrNotFound
	}
	item.Embedding = cloneEmbedding(item.Embedding)
	return &item, nil
}

func (s *memoryStore) Touch(ctx context.Context, key string, atime int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items.Peek(key)
	if !ok {
		return nil
	}
	item.Atime = atime
	s.items.Add(key, item)
	return nil
}

func (s *memoryStore) Count(ctx context.Context) (int, error) {
	return s.items.Len(), nil
}

// Oldest scans for the smallest atime; ties go to the least recently written.
func (s *memoryStore) Oldest(ctx context.Context) (*model.EmbeddingCache, error) {
	var (
		oldest model.EmbeddingCache
		found  bool
	)
	for _, item := range s.items.Values() {
		if !found || item.Atime < oldest.Atime {
			oldest = item
			found = true
		}
	}
	if !found {
		return nil, appErr.ErrNotFound
	}
	return &model.EmbeddingCache{Key: oldest.Key, Atime: oldest.Atime}, nil
}

func (s *memoryStore) Delete(ctx context.Context, key string) error {
	s.items.Remove(key)
	return nil
}

func (s *memoryStore) Save(ctx context.Context, item *model.EmbeddingCache) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items.Add(item.Key, model.EmbeddingCache{
		Key:       item.Key,
		Embedding: cloneEmbedding(item.Embedding),
		Atime:     item.Atime,
	})
	return nil
}

func (s *memoryStore) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for _, key := range s.items.Keys() {
		item, ok := s.items.Peek(key)
		if ok && item.Atime < cutoff {
			s.items.Remove(key)
			removed++
		}
	}
	return removed, nil
}
