package embedcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/xxxsen/relnote/internal/model"
	appErr "github.com/xxxsen/relnote/internal/pkg/errors"
)

// redisStore keeps vectors in a hash and access times in a sorted set so the
// oldest entry is a single ZRANGE away.
type redisStore struct {
	client    redis.UniversalClient
	vectorKey string
	atimeKey  string
}

func NewRedisStore(client redis.UniversalClient, prefix string) Store {
	if prefix == "" {
		prefix = "relnote:embed_cache"
	}
	return &redisStore{
		client:    client,
		vectorKey: prefix + ":vectors",
		atimeKey:  prefix + ":atime",
	}
}

func (s *redisStore) Get(ctx context.Context, key string) (*model.EmbeddingCache, error) {
	raw, err := s.client.HGet(ctx, s.vectorKey, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, appErr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	item := &model.EmbeddingCache{Key: key}
	if err := json.Unmarshal([]byte(raw), &item.Embedding); err != nil {
		return nil, fmt.Errorf("decode cached embedding: %w", err)
	}
	score, err := s.client.ZScore(ctx, s.atimeKey, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	item.Atime = int64(score)
	return item, nil
}

func (s *redisStore) Touch(ctx context.Context, key string, atime int64) error {
	return s.client.ZAddXX(ctx, s.atimeKey, redis.Z{Score: float64(atime), Member: key}).Err()
}

func (s *redisStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.ZCard(ctx, s.atimeKey).Result()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *redisStore) Oldest(ctx context.Context) (*model.EmbeddingCache, error) {
	items, err := s.client.ZRangeWithScores(ctx, s.atimeKey, 0, 0).Result()
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, appErr.ErrNotFound
	}
	key, ok := items[0].Member.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected member type %T", items[0].Member)
	}
	return &model.EmbeddingCache{Key: key, Atime: int64(items[0].Score)}, nil
}

func (s *redisStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, s.vectorKey, key)
		pipe.ZRem(ctx, s.atimeKey, key)
		return nil
	})
	return err
}

func (s *redisStore) Save(ctx context.Context, item *model.EmbeddingCache) error {
	raw, err := json.Marshal(item.Embedding)
	if err != nil {
		return fmt.Errorf("encode embedding: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.vectorKey, item.Key, string(raw))
		pipe.ZAdd(ctx, s.atimeKey, redis.Z{Score: float64(item.Atime), Member: item.Key})
		return nil
	})
	return err
}

func (s *redisStore) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	keys, err := s.client.ZRangeByScore(ctx, s.atimeKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	members := make([]interface{}, 0, len(keys))
	for _, k := range keys {
		members = append(members, k)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, s.vectorKey, keys...)
		pipe.ZRem(ctx, s.atimeKey, members...)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int64(len(keys)), nil
}
