package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/relnote/internal/ai"
	"github.com/xxxsen/relnote/internal/config"
	"github.com/xxxsen/relnote/internal/db"
	"github.com/xxxsen/relnote/internal/embedcache"
	"github.com/xxxsen/relnote/internal/pkg/background"
	"github.com/xxxsen/relnote/internal/repo"
	"github.com/xxxsen/relnote/internal/service"
)

// app holds the wired components shared by the subcommands.
type app struct {
	cfg      *config.Config
	db       *sqlx.DB
	redis    redis.UniversalClient
	tracker  *background.Tracker
	cache    *embedcache.Cache
	notes    *service.NoteService
	search   *service.SearchService
	noteRepo *repo.NoteRepo
	userRepo *repo.UserRepo
}

func newApp(cfg *config.Config) (*app, error) {
	conn, err := db.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.ApplyMigrations(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	a := &app{
		cfg:      cfg,
		db:       conn,
		tracker:  background.NewTracker(),
		noteRepo: repo.NewNoteRepo(conn),
		userRepo: repo.NewUserRepo(conn),
	}

	embedder, err := ai.BuildEmbedder(embedOptions(cfg.Embed))
	if err != nil {
		_ = a.close()
		return nil, fmt.Errorf("init embedder: %w", err)
	}
	store, err := a.cacheStore()
	if err != nil {
		_ = a.close()
		return nil, fmt.Errorf("init embed cache: %w", err)
	}
	a.cache = embedcache.New(store, cfg.EmbedCache.Capacity)

	resolver := service.NewResolver(embedder, a.noteRepo, a.tracker)
	related := service.NewRelatedCache(a.noteRepo, a.tracker)
	ranker := service.NewRanker(resolver, related, cfg.Search.ResolveConcurrency)
	a.search = service.NewSearchService(a.noteRepo, a.userRepo, resolver, ranker, related,
		embedcache.WrapCacheToEmbedder(embedder, a.cache), service.SearchOptions{
			Threshold:         *cfg.Search.Threshold,
			DefaultMaxResults: cfg.Search.DefaultMaxResults,
		})
	a.notes = service.NewNoteService(a.noteRepo, a.userRepo, resolver, a.tracker)
	logutil.GetLogger(context.Background()).Info("components initialized",
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("embed_model", embedder.ModelName()),
		zap.String("embed_cache", cfg.EmbedCache.Store),
		zap.Int("embed_cache_capacity", a.cache.Capacity()),
	)
	return a, nil
}

func embedOptions(cfg config.EmbedConfig) ai.EmbedOptions {
	specs := make([]ai.ProviderSpec, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		specs = append(specs, ai.ProviderSpec{Name: p.Name, Model: p.Model, Args: p.Config})
	}
	return ai.EmbedOptions{
		Providers:      specs,
		Attempts:       cfg.Attempts,
		RetryDelay:     time.Duration(cfg.RetryDelayMs) * time.Millisecond,
		Timeout:        time.Duration(cfg.TimeoutSec) * time.Second,
		RateLimitQPS:   cfg.RateLimitQPS,
		RateLimitBurst: cfg.RateLimitBurst,
	}
}

func (a *app) cacheStore() (embedcache.Store, error) {
	switch a.cfg.EmbedCache.Store {
	case "memory":
		return embedcache.NewMemoryStore(a.cfg.EmbedCache.Capacity)
	case "redis":
		a.redis = redis.NewClient(&redis.Options{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		return embedcache.NewRedisStore(a.redis, a.cfg.Redis.Prefix), nil
	default:
		return repo.NewEmbeddingCacheRepo(a.db), nil
	}
}

// drain waits for outstanding background writes, bounded by timeout.
func (a *app) drain(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	logger := logutil.GetLogger(ctx)
	if pending := a.tracker.Pending(); pending > 0 {
		logger.Info("waiting for background writes", zap.Int("pending", pending))
	}
	if err := a.tracker.Wait(ctx); err != nil {
		logger.Warn("background writes not drained", zap.Int("pending", a.tracker.Pending()), zap.Error(err))
	}
}

func (a *app) close() error {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	return a.db.Close()
}
