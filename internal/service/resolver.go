package service

import (
	"context"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/relnote/internal/ai"
	"github.com/xxxsen/relnote/internal/model"
	"github.com/xxxsen/relnote/internal/pkg/background"
	"github.com/xxxsen/relnote/internal/pkg/htmltext"
	"github.com/xxxsen/relnote/internal/repo"
)

// Resolver produces the three field embeddings of a note, reusing stored
// vectors and computing the missing ones.
type Resolver struct {
	embedder ai.IEmbedder
	notes    *repo.NoteRepo
	tracker  *background.Tracker
}

func NewResolver(embedder ai.IEmbedder, notes *repo.NoteRepo, tracker *background.Tracker) *Resolver {
	return &Resolver{
		embedder: embedder,
		notes:    notes,
		tracker:  tracker,
	}
}

// Resolve returns the note vectors in field order. Newly computed vectors are
// written back in the background.
func (r *Resolver) Resolve(ctx context.Context, note *model.Note) model.NoteVectors {
	vecs, dirty := r.resolve(ctx, note)
	if len(dirty) > 0 {
		noteID, mtime := note.ID, note.Mtime
		r.tracker.Go(ctx, "persist_embeddings", func(ctx context.Context) error {
			return r.persist(ctx, noteID, mtime, dirty)
		})
	}
	return vecs
}

// ResolveAndPersist is Resolve with the write awaited.
func (r *Resolver) ResolveAndPersist(ctx context.Context, note *model.Note) (model.NoteVectors, error) {
	vecs, dirty := r.resolve(ctx, note)
	if len(dirty) == 0 {
		return vecs, nil
	}
	return vecs, r.persist(ctx, note.ID, note.Mtime, dirty)
}

func (r *Resolver) resolve(ctx context.Context, note *model.Note) (model.NoteVectors, map[model.NoteField][]float32) {
	var vecs model.NoteVectors
	dirty := make(map[model.NoteField][]float32)
	for i := 0; i < model.NoteFieldCount; i++ {
		field := model.NoteField(i)
		text := note.Text(field)
		if text == "" {
			continue
		}
		if stored := note.Vector(field); len(stored) > 0 {
			vecs[field] = stored
			continue
		}
		if field == model.NoteFieldSnippet {
			text = htmltext.CleanSnippet(text)
		}
		vec, err := r.embedder.Embed(ctx, text, ai.TaskTypeDocument)
		if err != nil || len(vec) == 0 {
			logutil.GetLogger(ctx).Warn("embed note field failed",
				zap.String("note_id", note.ID), zap.String("field", field.String()), zap.Error(err))
			continue
		}
		vecs[field] = vec
		dirty[field] = vec
	}
	return vecs, dirty
}

func (r *Resolver) persist(ctx context.Context, noteID string, mtime int64, dirty map[model.NoteField][]float32) error {
	written, err := r.notes.UpdateEmbeddings(ctx, noteID, mtime, dirty)
	if err != nil {
		return fmt.Errorf("persist embeddings of note %s: %w", noteID, err)
	}
	if !written {
		logutil.GetLogger(ctx).Debug("note changed before embeddings were stored, discard",
			zap.String("note_id", noteID))
	}
	return nil
}
