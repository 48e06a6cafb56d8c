package service

import (
	"context"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/relnote/internal/ai"
	"github.com/xxxsen/relnote/internal/config"
	"github.com/xxxsen/relnote/internal/model"
	appErr "github.com/xxxsen/relnote/internal/pkg/errors"
	"github.com/xxxsen/relnote/internal/repo"
)

type SearchOptions struct {
	Threshold         float64
	DefaultMaxResults int
}

type SearchService struct {
	notes         *repo.NoteRepo
	users         *repo.UserRepo
	resolver      *Resolver
	ranker        *Ranker
	related       *RelatedCache
	queryEmbedder ai.IEmbedder
	opts          SearchOptions
}

// NewSearchService wires the search flows. queryEmbedder embeds ad hoc query
// text and is expected to be backed by the embedding cache.
func NewSearchService(notes *repo.NoteRepo, users *repo.UserRepo, resolver *Resolver, ranker *Ranker,
	related *RelatedCache, queryEmbedder ai.IEmbedder, opts SearchOptions) *SearchService {
	if opts.DefaultMaxResults <= 0 {
		opts.DefaultMaxResults = config.DefaultMaxResults
	}
	return &SearchService{
		notes:         notes,
		users:         users,
		resolver:      resolver,
		ranker:        ranker,
		related:       related,
		queryEmbedder: queryEmbedder,
		opts:          opts,
	}
}

// TextSearch returns notes containing queryText, then fills the remaining
// slots with the notes semantically closest to it.
func (s *SearchService) TextSearch(ctx context.Context, userID, queryText string, maxResults int) ([]model.NoteSummary, error) {
	results := make([]model.NoteSummary, 0)
	query := strings.TrimSpace(queryText)
	if userID == "" || query == "" {
		return results, nil
	}
	if maxResults <= 0 {
		maxResults = s.opts.DefaultMaxResults
	}
	logger := logutil.GetLogger(ctx).With(zap.String("user_id", userID))
	notes, err := s.notes.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(notes) == 0 {
		logger.Debug("text search without notes")
		return results, nil
	}

	needle := strings.ToLower(queryText)
	seen := make(map[string]struct{})
	for _, note := range notes {
		if containsFold(note.Title, needle) || containsFold(note.Comment, needle) || containsFold(note.Snippet, needle) {
			results = append(results, model.NoteSummary{ID: note.ID, Title: note.Title})
			seen[note.ID] = struct{}{}
		}
	}
	if len(results) >= maxResults {
		return results[:maxResults], nil
	}

	vec, err := s.queryEmbedder.Embed(ctx, query, ai.TaskTypeQuery)
	if err != nil || len(vec) == 0 {
		logger.Warn("embed search query failed, return text matches only", zap.Error(err))
		return results, nil
	}
	similar := s.ranker.Rank(ctx, [][]float32{vec}, notes, "", maxResults-len(results), s.opts.Threshold)
	for _, item := range similar {
		if _, ok := seen[item.ID]; ok {
			continue
		}
		seen[item.ID] = struct{}{}
		results = append(results, item)
	}
	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return results, nil
}

// NoteSearch returns the notes related to noteID, served from the related
// cache while it is fresh.
func (s *SearchService) NoteSearch(ctx context.Context, userID, noteID string, maxResults int, threshold *float64) ([]model.NoteSummary, error) {
	empty := make([]model.NoteSummary, 0)
	if userID == "" || noteID == "" {
		return empty, nil
	}
	if maxResults <= 0 {
		maxResults = s.opts.DefaultMaxResults
	}
	th := s.opts.Threshold
	if threshold != nil {
		th = *threshold
	}
	logger := logutil.GetLogger(ctx).With(zap.String("user_id", userID), zap.String("note_id", noteID))
	notes, err := s.notes.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	var note *model.Note
	for _, n := range notes {
		if n.ID == noteID {
			note = n
			break
		}
	}
	if note == nil {
		logger.Warn("note search target not found")
		return empty, nil
	}
	if !note.HasText() {
		return empty, nil
	}
	owner, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if !appErr.IsNotFound(err) {
			logger.Warn("load note owner failed, skip related cache", zap.Error(err))
		}
		owner = nil
	}
	res, err := s.related.GetOrCompute(ctx, note, owner, func(ctx context.Context) ([]model.NoteSummary, error) {
		if len(notes) <= 1 {
			return empty, nil
		}
		vecs, err := s.resolver.ResolveAndPersist(ctx, note)
		if err != nil {
			logger.Warn("persist note embeddings failed", zap.Error(err))
		}
		return s.ranker.Rank(ctx, vecs.Slice(), notes, noteID, maxResults, th), nil
	})
	if err != nil {
		return nil, err
	}
	if len(res) > maxResults {
		res = res[:maxResults]
	}
	return res, nil
}

func containsFold(text, lowerNeedle string) bool {
	if text == "" {
		return false
	}
	return strings.Contains(strings.ToLower(text), lowerNeedle)
}
