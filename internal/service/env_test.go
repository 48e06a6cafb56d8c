package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/relnote/internal/ai"
	"github.com/xxxsen/relnote/internal/config"
	"github.com/xxxsen/relnote/internal/db"
	"github.com/xxxsen/relnote/internal/model"
	"github.com/xxxsen/relnote/internal/pkg/background"
	"github.com/xxxsen/relnote/internal/repo"
)

type fakeEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	calls   []string
}

func newFakeEmbedder(vectors map[string][]float32) *fakeEmbedder {
	return &fakeEmbedder{vectors: vectors}
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, text)
	v, ok := f.vectors[text]
	if !ok {
		return nil, fmt.Errorf("%w: no vector for %q", ai.ErrProviderUnavailable, text)
	}
	return append([]float32(nil), v...), nil
}

func (f *fakeEmbedder) ModelName() string { return "fake" }

func (f *fakeEmbedder) set(text string, v []float32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vectors[text] = v
}

func (f *fakeEmbedder) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeEmbedder) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

type testEnv struct {
	notes    *repo.NoteRepo
	users    *repo.UserRepo
	tracker  *background.Tracker
	embedder *fakeEmbedder
	resolver *Resolver
	related  *RelatedCache
	ranker   *Ranker
	search   *SearchService
	noteSvc  *NoteService
}

func newTestEnv(t *testing.T, vectors map[string][]float32) *testEnv {
	t.Helper()
	conn, err := db.Open(config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "service.db")})
	require.NoError(t, err)
	require.NoError(t, db.ApplyMigrations(conn))
	t.Cleanup(func() { _ = conn.Close() })

	env := &testEnv{
		notes:    repo.NewNoteRepo(conn),
		users:    repo.NewUserRepo(conn),
		tracker:  background.NewTracker(),
		embedder: newFakeEmbedder(vectors),
	}
	env.resolver = NewResolver(env.embedder, env.notes, env.tracker)
	env.related = NewRelatedCache(env.notes, env.tracker)
	env.ranker = NewRanker(env.resolver, env.related, 0)
	env.search = NewSearchService(env.notes, env.users, env.resolver, env.ranker, env.related, env.embedder, SearchOptions{
		Threshold:         config.DefaultThreshold,
		DefaultMaxResults: config.DefaultMaxResults,
	})
	env.noteSvc = NewNoteService(env.notes, env.users, env.resolver, env.tracker)
	t.Cleanup(func() { _ = env.tracker.Wait(context.Background()) })
	return env
}

func (e *testEnv) wait(t *testing.T) {
	t.Helper()
	require.NoError(t, e.tracker.Wait(context.Background()))
}

func (e *testEnv) addOwner(t *testing.T, userID string, activity int64) {
	t.Helper()
	_, err := e.users.Ensure(context.Background(), &model.User{ID: userID, ActivityMtime: activity, Ctime: activity, Mtime: activity})
	require.NoError(t, err)
}

func (e *testEnv) addNote(t *testing.T, userID, id, title string, ctime int64) *model.Note {
	t.Helper()
	note := &model.Note{
		ID:     id,
		UserID: userID,
		Title:  title,
		State:  repo.NoteStateNormal,
		Ctime:  ctime,
		Mtime:  ctime,
	}
	require.NoError(t, e.notes.Create(context.Background(), note))
	return note
}

type counterClock struct {
	now atomic.Int64
}

func (c *counterClock) next() int64 {
	return c.now.Add(1000)
}

func summaryIDs(items []model.NoteSummary) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	return ids
}
