package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/relnote/internal/model"
	"github.com/xxxsen/relnote/internal/pkg/dbutil"
	appErr "github.com/xxxsen/relnote/internal/pkg/errors"
)

type EmbeddingCacheRepo struct {
	db *sqlx.DB
}

func NewEmbeddingCacheRepo(db *sqlx.DB) *EmbeddingCacheRepo {
	return &EmbeddingCacheRepo{db: db}
}

func (r *EmbeddingCacheRepo) Get(ctx context.Context, key string) (*model.EmbeddingCache, error) {
	const query = `SELECT cache_key, embedding, atime FROM embedding_cache WHERE cache_key = ?`
	sqlStr, args := dbutil.Finalize(r.db, query, []interface{}{key})
	var (
		item      model.EmbeddingCache
		embedding pgvector.Vector
	)
	err := r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&item.Key, &embedding, &item.Atime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	item.Embedding = embedding.Slice()
	return &item, nil
}

func (r *EmbeddingCacheRepo) Touch(ctx context.Context, key string, atime int64) error {
	where := map[string]interface{}{"cache_key": key}
	update := map[string]interface{}{"atime": atime}
	sqlStr, args, err := builder.BuildUpdate("embedding_cache", where, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(r.db, sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *EmbeddingCacheRepo) Count(ctx context.Context) (int, error) {
	var cnt int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM embedding_cache`).Scan(&cnt); err != nil {
		return 0, err
	}
	return cnt, nil
}

// Oldest returns the key and atime of the least recently used entry.
func (r *EmbeddingCacheRepo) Oldest(ctx context.Context) (*model.EmbeddingCache, error) {
	where := map[string]interface{}{
		"_orderby": "atime asc, cache_key asc",
		"_limit":   []uint{0, 1},
	}
	sqlStr, args, err := builder.BuildSelect("embedding_cache", where, []string{"cache_key", "atime"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(r.db, sqlStr, args)
	var item model.EmbeddingCache
	err = r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&item.Key, &item.Atime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *EmbeddingCacheRepo) Delete(ctx context.Context, key string) error {
	sqlStr, args, err := builder.BuildDelete("embedding_cache", map[string]interface{}{"cache_key": key})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(r.db, sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *EmbeddingCacheRepo) Save(ctx context.Context, item *model.EmbeddingCache) error {
	const query = `
		INSERT INTO embedding_cache (cache_key, embedding, atime)
		VALUES (?, ?, ?)
		ON CONFLICT (cache_key) DO UPDATE SET
			embedding = excluded.embedding,
			atime = excluded.atime
	`
	sqlStr, args := dbutil.Finalize(r.db, query, []interface{}{item.Key, pgvector.NewVector(item.Embedding), item.Atime})
	_, err := r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *EmbeddingCacheRepo) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	const query = `DELETE FROM embedding_cache WHERE atime < ?`
	sqlStr, args := dbutil.Finalize(r.db, query, []interface{}{cutoff})
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
