package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHuggingFaceEmbed(t *testing.T) {
	var gotAuth, gotPath string
	var gotReq huggingFaceRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_, _ = w.Write([]byte(`[0.1, 0.2, 0.3]`))
	}))
	defer srv.Close()

	p := NewHuggingFaceEmbedProvider(srv.URL, StaticCredential("hf-key"), srv.Client())
	vec, err := NewEmbedder(p, DefaultHuggingFaceModel).Embed(context.Background(), "flutter", TaskTypeQuery)
	require.NoError(t, err)
	require.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	require.Equal(t, "Bearer hf-key", gotAuth)
	require.Equal(t, "/"+DefaultHuggingFaceModel, gotPath)
	require.Equal(t, "flutter", gotReq.Inputs)
	require.True(t, gotReq.Options.WaitForModel)
}

func TestHuggingFaceFailureClasses(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		transient bool
	}{
		{name: "model loading", status: http.StatusOK, body: `{"error": "Model is currently loading", "estimated_time": 20}`, transient: true},
		{name: "malformed body", status: http.StatusOK, body: `not json`, transient: true},
		{name: "throttled", status: http.StatusTooManyRequests, body: `{}`, transient: true},
		{name: "server error", status: http.StatusServiceUnavailable, body: `{"error": "loading"}`, transient: true},
		{name: "bad request", status: http.StatusBadRequest, body: `{"error": "bad input"}`, transient: false},
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"error": "invalid token"}`, transient: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()
			p := NewHuggingFaceEmbedProvider(srv.URL, nil, srv.Client())
			_, err := p.Embed(context.Background(), "", "text", TaskTypeDocument)
			require.Error(t, err)
			require.Equal(t, tt.transient, IsTransient(err))
		})
	}
}

func TestHuggingFaceTokenVectorsArePooled(t *testing.T) {
	vec, err := parseHuggingFaceVector([]byte(`[[1, 2], [3, 4]]`))
	require.NoError(t, err)
	require.Equal(t, []float32{2, 3}, vec)

	_, err = parseHuggingFaceVector([]byte(`[[1, 2], [3]]`))
	require.True(t, IsTransient(err))
}

func TestHuggingFaceNetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()
	p := NewHuggingFaceEmbedProvider(url, nil, nil)
	_, err := p.Embed(context.Background(), "", "text", TaskTypeDocument)
	require.True(t, IsTransient(err))
}

func TestEmbedderRejectsEmptyText(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(`[1]`))
	}))
	defer srv.Close()
	e := NewEmbedder(NewHuggingFaceEmbedProvider(srv.URL, nil, srv.Client()), DefaultHuggingFaceModel)
	_, err := e.Embed(context.Background(), "   ", TaskTypeDocument)
	require.ErrorIs(t, err, ErrEmptyText)
	require.Equal(t, 0, calls)
}

func TestOpenAIEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)
		require.Equal(t, "Bearer sk", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data": [{"embedding": [0.5, 0.5]}]}`))
	}))
	defer srv.Close()
	p := NewOpenAIEmbedProvider(srv.URL, StaticCredential("sk"), srv.Client())
	vec, err := p.Embed(context.Background(), "text-embedding-3-small", "hello", TaskTypeQuery)
	require.NoError(t, err)
	require.Equal(t, []float32{0.5, 0.5}, vec)

	_, err = NewOpenAIEmbedProvider(srv.URL, nil, srv.Client()).Embed(context.Background(), "m", "hello", "")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestRegistry(t *testing.T) {
	for _, name := range []string{"huggingface", "openai", "openrouter", "gemini"} {
		p, err := NewEmbedProvider(name, json.RawMessage(`{"api_key": "k"}`))
		require.NoError(t, err)
		require.Equal(t, name, p.Name())
	}
	_, err := NewEmbedProvider("nope", nil)
	require.Error(t, err)
	_, err = NewEmbedProvider("", nil)
	require.Error(t, err)
}
