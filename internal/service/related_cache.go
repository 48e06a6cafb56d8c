package service

import (
	"context"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/relnote/internal/model"
	"github.com/xxxsen/relnote/internal/pkg/background"
	"github.com/xxxsen/relnote/internal/repo"
)

// RelatedCache serves a note's stored related list while nothing the owner
// owns has changed since it was computed.
type RelatedCache struct {
	notes   *repo.NoteRepo
	tracker *background.Tracker
}

func NewRelatedCache(notes *repo.NoteRepo, tracker *background.Tracker) *RelatedCache {
	return &RelatedCache{notes: notes, tracker: tracker}
}

// IsFresh reports whether the stored related list of note can be served.
func IsFresh(note *model.Note, owner *model.User) bool {
	if note == nil || owner == nil || len(note.Related) == 0 {
		return false
	}
	return owner.ActivityMtime < note.RelatedMtime
}

func (c *RelatedCache) GetOrCompute(ctx context.Context, note *model.Note, owner *model.User,
	recompute func(ctx context.Context) ([]model.NoteSummary, error)) ([]model.NoteSummary, error) {
	if IsFresh(note, owner) {
		logutil.GetLogger(ctx).Debug("related list served from cache",
			zap.String("note_id", note.ID),
			zap.Int64("activity_mtime", owner.ActivityMtime),
			zap.Int64("related_mtime", note.RelatedMtime))
		return note.Related, nil
	}
	return recompute(ctx)
}

func (c *RelatedCache) Save(ctx context.Context, noteID string, related []model.NoteSummary, ts int64) error {
	if err := c.notes.UpdateRelated(ctx, noteID, related, ts); err != nil {
		return fmt.Errorf("save related list of note %s: %w", noteID, err)
	}
	return nil
}

func (c *RelatedCache) SaveAsync(ctx context.Context, noteID string, related []model.NoteSummary, ts int64) {
	c.tracker.Go(ctx, "save_related", func(ctx context.Context) error {
		return c.Save(ctx, noteID, related, ts)
	})
}
