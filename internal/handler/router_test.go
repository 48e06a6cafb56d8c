package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/xxxsen/common/webapi"

	"github.com/xxxsen/relnote/internal/config"
	"github.com/xxxsen/relnote/internal/db"
	"github.com/xxxsen/relnote/internal/handler"
	"github.com/xxxsen/relnote/internal/middleware"
	"github.com/xxxsen/relnote/internal/model"
	"github.com/xxxsen/relnote/internal/pkg/background"
	"github.com/xxxsen/relnote/internal/pkg/errcode"
	"github.com/xxxsen/relnote/internal/pkg/jwt"
	"github.com/xxxsen/relnote/internal/repo"
	"github.com/xxxsen/relnote/internal/service"
)

var testSecret = []byte("test-secret")

type staticEmbedder map[string][]float32

func (s staticEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	v, ok := s[text]
	if !ok {
		return nil, fmt.Errorf("no vector for %q", text)
	}
	return append([]float32(nil), v...), nil
}

func (s staticEmbedder) ModelName() string { return "static" }

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type testServer struct {
	router  http.Handler
	tracker *background.Tracker
}

func setupRouter(t *testing.T, vectors staticEmbedder) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := db.Open(config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "handler.db")})
	require.NoError(t, err)
	require.NoError(t, db.ApplyMigrations(conn))
	t.Cleanup(func() { _ = conn.Close() })

	notes := repo.NewNoteRepo(conn)
	users := repo.NewUserRepo(conn)
	tracker := background.NewTracker()
	t.Cleanup(func() { _ = tracker.Wait(context.Background()) })

	resolver := service.NewResolver(vectors, notes, tracker)
	related := service.NewRelatedCache(notes, tracker)
	ranker := service.NewRanker(resolver, related, 0)
	search := service.NewSearchService(notes, users, resolver, ranker, related, vectors, service.SearchOptions{
		Threshold:         config.DefaultThreshold,
		DefaultMaxResults: config.DefaultMaxResults,
	})
	noteSvc := service.NewNoteService(notes, users, resolver, tracker)

	deps := handler.RouterDeps{
		Notes:          handler.NewNoteHandler(noteSvc),
		Search:         handler.NewSearchHandler(search),
		JWTSecret:      testSecret,
		RequestTimeout: 10 * time.Second,
	}
	engine, err := webapi.NewEngine(
		"/api/v1",
		"",
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(nil),
		),
	)
	require.NoError(t, err)
	return &testServer{router: engine, tracker: tracker}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) envelope {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	s.router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &env))
	return env
}

func (s *testServer) createNote(t *testing.T, token, title string) string {
	t.Helper()
	env := s.do(t, http.MethodPost, "/api/v1/notes", token, map[string]string{"title": title})
	require.Equal(t, 0, env.Code)
	var note model.Note
	require.NoError(t, json.Unmarshal(env.Data, &note))
	require.NotEmpty(t, note.ID)
	return note.ID
}

func summaries(t *testing.T, env envelope) []string {
	t.Helper()
	require.Equal(t, 0, env.Code)
	var items []model.NoteSummary
	require.NoError(t, json.Unmarshal(env.Data, &items))
	require.NotNil(t, items)
	titles := make([]string, 0, len(items))
	for _, item := range items {
		titles = append(titles, item.Title)
	}
	return titles
}

func userToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := jwt.GenerateToken(userID, "", testSecret, time.Hour)
	require.NoError(t, err)
	return token
}

func TestSearchWithoutIdentityReturnsEmpty(t *testing.T) {
	srv := setupRouter(t, staticEmbedder{})

	env := srv.do(t, http.MethodPost, "/api/v1/search/text", "", map[string]interface{}{"searchText": "flutter", "maxResults": 5})
	require.Empty(t, summaries(t, env))
	require.JSONEq(t, "[]", string(env.Data))

	env = srv.do(t, http.MethodPost, "/api/v1/search/note", "garbage", map[string]interface{}{"noteId": "n1"})
	require.Empty(t, summaries(t, env))
}

func TestNoteRoutesRequireIdentity(t *testing.T) {
	srv := setupRouter(t, staticEmbedder{})
	env := srv.do(t, http.MethodGet, "/api/v1/notes", "", nil)
	require.Equal(t, errcode.ErrUnauthorized, env.Code)
}

func TestSearchWithIdentity(t *testing.T) {
	srv := setupRouter(t, staticEmbedder{
		"Flutter tips":  {1, 0},
		"Cooking pasta": {0, 1},
		"Dart language": {0.9, 0.1},
		"flutter":       {1, 0},
	})
	token := userToken(t, "u1")
	flutterID := srv.createNote(t, token, "Flutter tips")
	srv.createNote(t, token, "Cooking pasta")
	srv.createNote(t, token, "Dart language")
	require.NoError(t, srv.tracker.Wait(context.Background()))

	env := srv.do(t, http.MethodPost, "/api/v1/search/text", token, map[string]interface{}{"searchText": "flutter", "maxResults": 5})
	require.Equal(t, []string{"Flutter tips", "Dart language"}, summaries(t, env))

	env = srv.do(t, http.MethodPost, "/api/v1/search/note", token, map[string]interface{}{"noteId": flutterID, "maxResults": 5})
	require.Equal(t, []string{"Dart language"}, summaries(t, env))

	other := userToken(t, "u2")
	env = srv.do(t, http.MethodPost, "/api/v1/search/note", other, map[string]interface{}{"noteId": flutterID})
	require.Empty(t, summaries(t, env))
}

func TestNoteCRUD(t *testing.T) {
	srv := setupRouter(t, staticEmbedder{"first": {1, 0}, "second": {0, 1}})
	token := userToken(t, "u1")
	id := srv.createNote(t, token, "first")

	env := srv.do(t, http.MethodPut, "/api/v1/notes/"+id, token, map[string]string{"title": "second"})
	require.Equal(t, 0, env.Code)

	env = srv.do(t, http.MethodGet, "/api/v1/notes/"+id, token, nil)
	require.Equal(t, 0, env.Code)
	var note model.Note
	require.NoError(t, json.Unmarshal(env.Data, &note))
	require.Equal(t, "second", note.Title)

	env = srv.do(t, http.MethodGet, "/api/v1/notes/"+id, userToken(t, "u2"), nil)
	require.Equal(t, errcode.ErrNotFound, env.Code)

	env = srv.do(t, http.MethodDelete, "/api/v1/notes/"+id, token, nil)
	require.Equal(t, 0, env.Code)

	env = srv.do(t, http.MethodGet, "/api/v1/notes", token, nil)
	require.Equal(t, 0, env.Code)
	var notes []model.Note
	require.NoError(t, json.Unmarshal(env.Data, &notes))
	require.Empty(t, notes)

	env = srv.do(t, http.MethodPost, "/api/v1/notes", token, map[string]string{})
	require.Equal(t, errcode.ErrInvalid, env.Code)
}
