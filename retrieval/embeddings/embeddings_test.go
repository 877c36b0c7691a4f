package embeddings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate/entities/models"
)

func response(rows []any) *models.GraphQLResponse {
	return &models.GraphQLResponse{
		Data: map[string]models.JSONObject{
			"Get": map[string]any{ClassName: rows},
		},
	}
}

func TestParseSnippetsPreservesOrderAndCertainty(t *testing.T) {
	resp := response([]any{
		map[string]any{
			"filePath":    "a.go",
			"content":     "func A() {}",
			"startLine":   float64(10),
			"endLine":     float64(14),
			"_additional": map[string]any{"certainty": 0.93},
		},
		map[string]any{
			"filePath":    "b.go",
			"content":     "func B() {}",
			"startLine":   float64(1),
			"endLine":     float64(4),
			"_additional": map[string]any{"certainty": 0.71},
		},
	})

	snippets, err := parseSnippets(resp)

	require.NoError(t, err)
	require.Len(t, snippets, 2)
	assert.Equal(t, "a.go", snippets[0].FilePath)
	assert.Equal(t, 10, snippets[0].StartLine)
	assert.Equal(t, 0.93, snippets[0].Score)
	assert.Equal(t, "b.go", snippets[1].FilePath)
}

func TestParseSnippetsDropsIncompleteRows(t *testing.T) {
	resp := response([]any{
		map[string]any{"filePath": "", "content": "orphan"},
		map[string]any{"filePath": "ok.go", "content": ""},
		"not even an object",
		map[string]any{"filePath": "keep.go", "content": "kept"},
	})

	snippets, err := parseSnippets(resp)

	require.NoError(t, err)
	require.Len(t, snippets, 1)
	assert.Equal(t, "keep.go", snippets[0].FilePath)
}

func TestParseSnippetsEmptyResponse(t *testing.T) {
	snippets, err := parseSnippets(&models.GraphQLResponse{Data: map[string]models.JSONObject{}})

	require.NoError(t, err)
	assert.Empty(t, snippets)
}

func TestIsSupportedForLanguageID(t *testing.T) {
	open := New(nil, Config{})
	bound := New(nil, Config{Languages: []string{"go", "python"}})

	assert.True(t, open.IsSupportedForLanguageID("rust"))
	assert.True(t, bound.IsSupportedForLanguageID("python"))
	assert.False(t, bound.IsSupportedForLanguageID("rust"))
}
