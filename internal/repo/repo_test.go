package repo

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/relnote/internal/config"
	"github.com/xxxsen/relnote/internal/db"
	"github.com/xxxsen/relnote/internal/model"
	appErr "github.com/xxxsen/relnote/internal/pkg/errors"
)

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	conn, err := db.Open(config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	require.NoError(t, db.ApplyMigrations(conn))
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func newNote(id, userID, title string, ctime int64) *model.Note {
	return &model.Note{
		ID:     id,
		UserID: userID,
		Title:  title,
		State:  NoteStateNormal,
		Ctime:  ctime,
		Mtime:  ctime,
	}
}

func TestNoteRepoRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := NewNoteRepo(openTestDB(t))

	note := newNote("n1", "u1", "flutter layouts", 100)
	note.Snippet = "<p>Rows and columns</p>"
	note.TitleVector = []float32{0.5, 0.25, -1}
	require.NoError(t, r.Create(ctx, note))
	require.ErrorIs(t, r.Create(ctx, note), appErr.ErrConflict)

	got, err := r.GetByID(ctx, "u1", "n1")
	require.NoError(t, err)
	require.Equal(t, "flutter layouts", got.Title)
	require.Equal(t, "<p>Rows and columns</p>", got.Snippet)
	require.Equal(t, []float32{0.5, 0.25, -1}, got.TitleVector)
	require.Empty(t, got.SnippetVector)
	require.Empty(t, got.CommentVector)
	require.Empty(t, got.Related)

	_, err = r.GetByID(ctx, "u2", "n1")
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestNoteRepoListAndDelete(t *testing.T) {
	ctx := context.Background()
	r := NewNoteRepo(openTestDB(t))
	require.NoError(t, r.Create(ctx, newNote("b", "u1", "second", 200)))
	require.NoError(t, r.Create(ctx, newNote("a", "u1", "first", 100)))
	require.NoError(t, r.Create(ctx, newNote("c", "u2", "other", 50)))

	notes, err := r.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, notes, 2)
	require.Equal(t, "a", notes[0].ID)
	require.Equal(t, "b", notes[1].ID)


	require.NoError(t, r.Delete(ctx, "u1", "a", 300))
	require.ErrorIs(t, r.Delete(ctx, "u1", "a", 300), appErr.ErrNotFound)
	notes, err = r.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, notes, 1)

	page, err := r.ListAll(ctx, "", 10, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, "c", page[0].ID)
}

func TestNoteRepoUpdateEmbeddingsMerges(t *testing.T) {
	ctx := context.Background()
	r := NewNoteRepo(openTestDB(t))
	note := newNote("n1", "u1", "title", 100)
	note.Comment = "comment"
	note.TitleVector = []float32{1, 0}
	require.NoError(t, r.Create(ctx, note))

	ok, err := r.UpdateEmbeddings(ctx, "n1", 100, map[model.NoteField][]float32{
		model.NoteFieldComment: {0, 1},
	})
	require.NoError(t, err)
	require.True(t, ok)

	got, err := r.GetByID(ctx, "u1", "n1")
	require.NoError(t, err)
	require.Equal(t, []float32{1, 0}, got.TitleVector)
	require.Equal(t, []float32{0, 1}, got.CommentVector)

	// stale writer: the note moved on since mtime 100 was read
	got.Title = "new title"
	got.Mtime = 200
	require.NoError(t, r.Update(ctx, got, []model.NoteField{model.NoteFieldTitle}))
	ok, err = r.UpdateEmbeddings(ctx, "n1", 100, map[model.NoteField][]float32{
		model.NoteFieldTitle: {9, 9},
	})
	require.NoError(t, err)
	require.False(t, ok)

	got, err = r.GetByID(ctx, "u1", "n1")
	require.NoError(t, err)
	require.Equal(t, "new title", got.Title)
	require.Empty(t, got.TitleVector)
	require.Equal(t, []float32{0, 1}, got.CommentVector)
}

func TestNoteRepoRelated(t *testing.T) {
	ctx := context.Background()
	r := NewNoteRepo(openTestDB(t))
	require.NoError(t, r.Create(ctx, newNote("n1", "u1", "title", 100)))

	related := []model.NoteSummary{{ID: "n2", Title: "two"}, {ID: "n3", Title: "three"}}
	require.NoError(t, r.UpdateRelated(ctx, "n1", related, 500))

	got, err := r.GetByID(ctx, "u1", "n1")
	require.NoError(t, err)
	require.Equal(t, related, got.Related)
	require.Equal(t, int64(500), got.RelatedMtime)
	require.Equal(t, int64(100), got.Mtime)

	require.ErrorIs(t, r.UpdateRelated(ctx, "missing", related, 1), appErr.ErrNotFound)
}

func TestNoteRepoListMissingEmbeddings(t *testing.T) {
	ctx := context.Background()
	r := NewNoteRepo(openTestDB(t))

	done := newNote("done", "u1", "title", 100)
	done.TitleVector = []float32{1}
	require.NoError(t, r.Create(ctx, done))
	require.NoError(t, r.Create(ctx, newNote("todo", "u1", "title", 200)))
	empty := newNote("empty", "u1", "", 300)
	require.NoError(t, r.Create(ctx, empty))
	require.NoError(t, r.Create(ctx, newNote("other", "u2", "title", 400)))

	notes, err := r.ListMissingEmbeddings(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	require.Equal(t, "todo", notes[0].ID)
	require.Equal(t, "other", notes[1].ID)

	notes, err = r.ListMissingEmbeddings(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, notes, 1)
}

func TestUserRepo(t *testing.T) {
	ctx := context.Background()
	r := NewUserRepo(openTestDB(t))

	created, err := r.Ensure(ctx, &model.User{ID: "u1", Name: "ann", ActivityMtime: 10, Ctime: 10, Mtime: 10})
	require.NoError(t, err)
	require.True(t, created)
	created, err = r.Ensure(ctx, &model.User{ID: "u1", Name: "other", ActivityMtime: 99, Ctime: 99, Mtime: 99})
	require.NoError(t, err)
	require.False(t, created)

	u, err := r.GetByID(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "ann", u.Name)
	require.Equal(t, int64(10), u.ActivityMtime)

	require.NoError(t, r.TouchActivity(ctx, "u1", 50))
	require.NoError(t, r.TouchActivity(ctx, "u1", 20))
	u, err = r.GetByID(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(50), u.ActivityMtime)

	_, err = r.GetByID(ctx, "missing")
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestEmbeddingCacheRepo(t *testing.T) {
	ctx := context.Background()
	r := NewEmbeddingCacheRepo(openTestDB(t))

	_, err := r.Oldest(ctx)
	require.ErrorIs(t, err, appErr.ErrNotFound)

	require.NoError(t, r.Save(ctx, &model.EmbeddingCache{Key: "a", Embedding: []float32{1, 2}, Atime: 10}))
	require.NoError(t, r.Save(ctx, &model.EmbeddingCache{Key: "b", Embedding: []float32{3, 4}, Atime: 20}))

	item, err := r.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, []float32{1, 2}, item.Embedding)
	require.Equal(t, int64(10), item.Atime)

	oldest, err := r.Oldest(ctx)
	require.NoError(t, err)
	require.Equal(t, "a", oldest.Key)

	require.NoError(t, r.Touch(ctx, "a", 30))
	oldest, err = r.Oldest(ctx)
	require.NoError(t, err)
	require.Equal(t, "b", oldest.Key)

	// overwrite keeps a single row
	require.NoError(t, r.Save(ctx, &model.EmbeddingCache{Key: "b", Embedding: []float32{5}, Atime: 40}))
	cnt, err := r.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, cnt)

	removed, err := r.DeleteBefore(ctx, 35)
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	require.NoError(t, r.Delete(ctx, "b"))
	_, err = r.Get(ctx, "b")
	require.ErrorIs(t, err, appErr.ErrNotFound)
}
