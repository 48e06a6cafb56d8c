package service

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/xxxsen/relnote/internal/model"
	"github.com/xxxsen/relnote/internal/pkg/timeutil"
	"github.com/xxxsen/relnote/internal/pkg/vecmath"
)

// Ranker orders candidate notes by their best field similarity to a query.
type Ranker struct {
	resolver    *Resolver
	related     *RelatedCache
	concurrency int
	now         func() int64
}

// NewRanker creates a ranker; concurrency caps parallel resolution and is
// unlimited when not positive.
func NewRanker(resolver *Resolver, related *RelatedCache, concurrency int) *Ranker {
	return &Ranker{
		resolver:    resolver,
		related:     related,
		concurrency: concurrency,
		now:         timeutil.NowMilli,
	}
}

// Rank keeps candidates scoring strictly above threshold, best first, at
// most limit of them (all when limit is not positive). With a non-empty
// excludeID that note is skipped and the result becomes its related list,
// stored in the background.
func (r *Ranker) Rank(ctx context.Context, query [][]float32, candidates []*model.Note, excludeID string, limit int, threshold float64) []model.NoteSummary {
	res := r.rank(ctx, query, candidates, excludeID, limit, threshold)
	if excludeID != "" {
		r.related.SaveAsync(ctx, excludeID, res, r.now())
	}
	return res
}

// RankAndPersist is Rank with the related list write awaited.
func (r *Ranker) RankAndPersist(ctx context.Context, query [][]float32, candidates []*model.Note, excludeID string, limit int, threshold float64) ([]model.NoteSummary, error) {
	res := r.rank(ctx, query, candidates, excludeID, limit, threshold)
	if excludeID == "" {
		return res, nil
	}
	return res, r.related.Save(ctx, excludeID, res, r.now())
}

type scoredNote struct {
	note  *model.Note
	score float64
	ok    bool
}

func (r *Ranker) rank(ctx context.Context, query [][]float32, candidates []*model.Note, excludeID string, limit int, threshold float64) []model.NoteSummary {
	scored := make([]scoredNote, len(candidates))
	var g errgroup.Group
	if r.concurrency > 0 {
		g.SetLimit(r.concurrency)
	}
	for i, note := range candidates {
		if note == nil || (excludeID != "" && note.ID == excludeID) {
			continue
		}
		g.Go(func() error {
			vecs := r.resolver.Resolve(ctx, note)
			scored[i] = scoredNote{
				note:  note,
				score: vecmath.MaxFieldSimilarity(vecs.Slice(), query),
				ok:    true,
			}
			return nil
		})
	}
	_ = g.Wait()

	kept := make([]scoredNote, 0, len(scored))
	for _, item := range scored {
		if item.ok && item.score > threshold {
			kept = append(kept, item)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].score > kept[j].score
	})
	if limit > 0 && len(kept) > limit {
		kept = kept[:limit]
	}
	out := make([]model.NoteSummary, 0, len(kept))
	for _, item := range kept {
		out = append(out, model.NoteSummary{ID: item.note.ID, Title: item.note.Title})
	}
	return out
}
