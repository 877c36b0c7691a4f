// Package embeddings implements the vector-similarity retriever over a
// Weaviate index of pre-chunked code snippets.
package embeddings

import (
	"context"
	"fmt"
	"strings"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"codeassist/retrieval"
	"codeassist/types"
	"codeassist/utils"
)

// ClassName is the Weaviate class holding indexed code chunks.
const ClassName = "CodeSnippet"

// Config configures the embeddings retriever.
type Config struct {
	// Workspace scopes queries to one indexed workspace.
	Workspace string
	// MaxResults is the retriever's own result cap.
	MaxResults int
	// Languages restricts the retriever to indexed languages. Empty means
	// all languages are supported.
	Languages []string
}

// Retriever queries Weaviate nearText search for snippets semantically close
// to the text around the cursor.
type Retriever struct {
	client *weaviate.Client
	config Config
}

var _ retrieval.Retriever = (*Retriever)(nil)

// New creates an embeddings retriever over an existing Weaviate client.
func New(client *weaviate.Client, config Config) *Retriever {
	if config.MaxResults <= 0 {
		config.MaxResults = 10
	}
	return &Retriever{client: client, config: config}
}

// Identifier implements retrieval.Retriever.
func (r *Retriever) Identifier() string { return "embeddings" }

// IsSupportedForLanguageID implements retrieval.Retriever.
func (r *Retriever) IsSupportedForLanguageID(languageID string) bool {
	if len(r.config.Languages) == 0 {
		return true
	}
	for _, l := range r.config.Languages {
		if l == languageID {
			return true
		}
	}
	return false
}

// Dispose implements retrieval.Retriever.
func (r *Retriever) Dispose() {}

// Retrieve implements retrieval.Retriever. The query text is the tail of the
// prefix window (or the explicit query when present); ranking comes back
// from the index as certainty and is preserved as the native order.
func (r *Retriever) Retrieve(ctx context.Context, opts retrieval.Options) ([]types.ContextSnippet, error) {
	query := opts.Query
	if query == "" {
		tail := utils.LastLines(opts.Prefix, 10)
		if len(tail) == 0 {
			return nil, nil
		}
		query = strings.Join(tail, "\n")
	}

	where := filters.Where().
		WithPath([]string{"workspace"}).
		WithOperator(filters.Equal).
		WithValueString(r.config.Workspace)

	nearText := r.client.GraphQL().NearTextArgBuilder().
		WithConcepts([]string{query})

	fields := []graphql.Field{
		{Name: "filePath"},
		{Name: "content"},
		{Name: "startLine"},
		{Name: "endLine"},
		{Name: "language"},
		{Name: "_additional { certainty }"},
	}

	result, err := r.client.GraphQL().Get().
		WithClassName(ClassName).
		WithFields(fields...).
		WithWhere(where).
		WithNearText(nearText).
		WithLimit(r.config.MaxResults).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("embeddings search: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("embeddings search: %s", result.Errors[0].Message)
	}

	return parseSnippets(result)
}

// parseSnippets converts the GraphQL response into snippets, preserving the
// index's ranking order.
func parseSnippets(result *models.GraphQLResponse) ([]types.ContextSnippet, error) {
	get, ok := result.Data["Get"].(map[string]any)
	if !ok {
		return nil, nil
	}
	rows, ok := get[ClassName].([]any)
	if !ok {
		return nil, nil
	}

	snippets := make([]types.ContextSnippet, 0, len(rows))
	for _, row := range rows {
		obj, ok := row.(map[string]any)
		if !ok {
			continue
		}
		s := types.ContextSnippet{
			FilePath:  asString(obj["filePath"]),
			Content:   asString(obj["content"]),
			StartLine: asInt(obj["startLine"]),
			EndLine:   asInt(obj["endLine"]),
		}
		if s.FilePath == "" || s.Content == "" {
			continue
		}
		if add, ok := obj["_additional"].(map[string]any); ok {
			s.Score = asFloat(add["certainty"])
		}
		snippets = append(snippets, s)
	}
	return snippets, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asFloat(v any) float64 {
	f, _ := v.(float64)
	return f
}

func asInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return 0
}
