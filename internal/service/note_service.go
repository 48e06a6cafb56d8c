package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/relnote/internal/model"
	"github.com/xxxsen/relnote/internal/pkg/background"
	appErr "github.com/xxxsen/relnote/internal/pkg/errors"
	"github.com/xxxsen/relnote/internal/pkg/timeutil"
	"github.com/xxxsen/relnote/internal/repo"
)

type NoteInput struct {
	Title   string
	Snippet string
	Comment string
	URL     string
}

func (in NoteInput) text(f model.NoteField) string {
	switch f {
	case model.NoteFieldTitle:
		return in.Title
	case model.NoteFieldSnippet:
		return in.Snippet
	case model.NoteFieldComment:
		return in.Comment
	}
	return ""
}

// NoteService stores notes and keeps their embeddings and the owner activity
// clock in step with every change.
type NoteService struct {
	notes    *repo.NoteRepo
	users    *repo.UserRepo
	resolver *Resolver
	tracker  *background.Tracker
	now      func() int64
}

func NewNoteService(notes *repo.NoteRepo, users *repo.UserRepo, resolver *Resolver, tracker *background.Tracker) *NoteService {
	return &NoteService{
		notes:    notes,
		users:    users,
		resolver: resolver,
		tracker:  tracker,
		now:      timeutil.NowMilli,
	}
}

// EnsureOwner registers userID with a fresh activity clock unless it exists.
func (s *NoteService) EnsureOwner(ctx context.Context, userID, name string) error {
	now := s.now()
	created, err := s.users.Ensure(ctx, &model.User{
		ID:            userID,
		Name:          name,
		ActivityMtime: now,
		Ctime:         now,
		Mtime:         now,
	})
	if err != nil {
		return fmt.Errorf("ensure owner: %w", err)
	}
	if created {
		logutil.GetLogger(ctx).Info("owner registered", zap.String("user_id", userID))
	}
	return nil
}

func (s *NoteService) Create(ctx context.Context, userID string, input NoteInput) (*model.Note, error) {
	input = trimInput(input)
	if userID == "" {
		return nil, appErr.ErrUnauthorized
	}
	if input.Title == "" && input.Snippet == "" && input.Comment == "" && input.URL == "" {
		return nil, appErr.ErrInvalid
	}
	if err := s.EnsureOwner(ctx, userID, ""); err != nil {
		return nil, err
	}
	now := s.now()
	note := &model.Note{
		ID:      newID(),
		UserID:  userID,
		Title:   input.Title,
		Snippet: input.Snippet,
		Comment: input.Comment,
		URL:     input.URL,
		State:   repo.NoteStateNormal,
		Ctime:   now,
		Mtime:   now,
	}
	if err := s.notes.Create(ctx, note); err != nil {
		return nil, err
	}
	s.touchOwner(ctx, userID, now)
	s.embedAsync(ctx, note)
	return note, nil
}

// Update rewrites the note. Changed text fields lose their stored vectors
// and are embedded again; only text changes move the owner activity clock.
func (s *NoteService) Update(ctx context.Context, userID, noteID string, input NoteInput) (*model.Note, error) {
	input = trimInput(input)
	note, err := s.notes.GetByID(ctx, userID, noteID)
	if err != nil {
		return nil, err
	}
	var stale []model.NoteField
	for i := 0; i < model.NoteFieldCount; i++ {
		f := model.NoteField(i)
		if input.text(f) != note.Text(f) {
			stale = append(stale, f)
			note.SetVector(f, nil)
		}
	}
	now := s.now()
	note.Title = input.Title
	note.Snippet = input.Snippet
	note.Comment = input.Comment
	note.URL = input.URL
	note.Mtime = now
	if err := s.notes.Update(ctx, note, stale); err != nil {
		return nil, err
	}
	if len(stale) > 0 {
		s.touchOwner(ctx, userID, now)
	}
	s.embedAsync(ctx, note)
	return note, nil
}

func (s *NoteService) Delete(ctx context.Context, userID, noteID string) error {
	now := s.now()
	if err := s.notes.Delete(ctx, userID, noteID, now); err != nil {
		return err
	}
	s.touchOwner(ctx, userID, now)
	return nil
}

func (s *NoteService) Get(ctx context.Context, userID, noteID string) (*model.Note, error) {
	return s.notes.GetByID(ctx, userID, noteID)
}

func (s *NoteService) List(ctx context.Context, userID string) ([]*model.Note, error) {
	return s.notes.ListByUser(ctx, userID)
}

// Backfill embeds up to batch notes whose vectors are missing and reports
// how many were processed without a storage error.
func (s *NoteService) Backfill(ctx context.Context, batch int) (int, error) {
	notes, err := s.notes.ListMissingEmbeddings(ctx, "", batch)
	if err != nil {
		return 0, fmt.Errorf("list notes missing embeddings: %w", err)
	}
	done := 0
	for _, note := range notes {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}
		if _, err := s.resolver.ResolveAndPersist(ctx, note); err != nil {
			logutil.GetLogger(ctx).Error("backfill note embeddings failed", zap.String("note_id", note.ID), zap.Error(err))
			continue
		}
		done++
	}
	return done, nil
}

// Reembed drops and recomputes the vectors of every live note, optionally
// restricted to one owner.
func (s *NoteService) Reembed(ctx context.Context, userID string, batch int) (int, error) {
	if batch <= 0 {
		batch = 100
	}
	cleared := map[model.NoteField][]float32{
		model.NoteFieldTitle:   nil,
		model.NoteFieldSnippet: nil,
		model.NoteFieldComment: nil,
	}
	done := 0
	for offset := uint(0); ; offset += uint(batch) {
		notes, err := s.notes.ListAll(ctx, userID, uint(batch), offset)
		if err != nil {
			return done, err
		}
		for _, note := range notes {
			if _, err := s.notes.UpdateEmbeddings(ctx, note.ID, note.Mtime, cleared); err != nil {
				return done, err
			}
			for f := range cleared {
				note.SetVector(f, nil)
			}
			if _, err := s.resolver.ResolveAndPersist(ctx, note); err != nil {
				return done, err
			}
			done++
		}
		if len(notes) < batch {
			return done, nil
		}
	}
}

func (s *NoteService) touchOwner(ctx context.Context, userID string, ts int64) {
	if err := s.users.TouchActivity(ctx, userID, ts); err != nil {
		logutil.GetLogger(ctx).Error("bump owner activity failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *NoteService) embedAsync(ctx context.Context, note *model.Note) {
	snapshot := *note
	s.tracker.Go(ctx, "embed_note", func(ctx context.Context) error {
		_, err := s.resolver.ResolveAndPersist(ctx, &snapshot)
		return err
	})
}

func trimInput(in NoteInput) NoteInput {
	in.Title = strings.TrimSpace(in.Title)
	in.Snippet = strings.TrimSpace(in.Snippet)
	in.Comment = strings.TrimSpace(in.Comment)
	in.URL = strings.TrimSpace(in.URL)
	return in
}
