package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeassist/retrieval"
)

func TestRetrieveDecodesResults(t *testing.T) {
	var got searchRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "br", r.Header.Get("Content-Encoding"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		body, err := io.ReadAll(brotli.NewReader(r.Body))
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))

		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"path": "pkg/a.go", "content": "func A() {}", "start_line": 3, "end_line": 5, "score": 0.9},
				{"path": "", "content": "dropped"},
			},
		})
	}))
	defer server.Close()

	r := New(Config{URL: server.URL, APIKey: "secret", MaxResults: 7})

	snippets, err := r.Retrieve(context.Background(), retrieval.Options{
		Query:      "func A",
		LanguageID: "go",
		FilePath:   "cmd/main.go",
	})

	require.NoError(t, err)
	require.Len(t, snippets, 1)
	assert.Equal(t, "pkg/a.go", snippets[0].FilePath)
	assert.Equal(t, "func A() {}", snippets[0].Content)
	assert.Equal(t, 3, snippets[0].StartLine)
	assert.Equal(t, 0.9, snippets[0].Score)

	assert.Equal(t, "func A", got.Query)
	assert.Equal(t, "go", got.LanguageID)
	assert.Equal(t, "cmd/main.go", got.FilePath)
	assert.Equal(t, 7, got.Limit)
}

func TestRetrieveFallsBackToPrefixQuery(t *testing.T) {
	var got searchRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(brotli.NewReader(r.Body))
		json.Unmarshal(body, &got)
		w.Write([]byte(`{"results":[]}`))
	}))
	defer server.Close()

	r := New(Config{URL: server.URL})

	_, err := r.Retrieve(context.Background(), retrieval.Options{
		Prefix: "line1\nline2",
	})

	require.NoError(t, err)
	assert.Equal(t, "line1\nline2", got.Query)
}

func TestRetrieveEmptyQueryAndPrefix(t *testing.T) {
	r := New(Config{URL: "http://unused.invalid"})

	snippets, err := r.Retrieve(context.Background(), retrieval.Options{})

	require.NoError(t, err)
	assert.Empty(t, snippets)
}

func TestRetrieveServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "index rebuilding", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	r := New(Config{URL: server.URL})

	_, err := r.Retrieve(context.Background(), retrieval.Options{Query: "q"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestRetrieveHonorsContextCancellation(t *testing.T) {
	blocked := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-blocked
	}))
	defer server.Close()
	defer close(blocked)

	r := New(Config{URL: server.URL})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Retrieve(ctx, retrieval.Options{Query: "q"})

	require.Error(t, err)
}
