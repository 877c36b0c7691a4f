// Package remote implements the retriever backed by a server-side search
// index. Requests are brotli-compressed JSON; a slow or failing server
// yields an empty result set, never a stuck mixer.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/andybalholm/brotli"

	"codeassist/logger"
	"codeassist/retrieval"
	"codeassist/types"
	"codeassist/utils"
)

// Config configures the remote search retriever.
type Config struct {
	// URL is the search endpoint.
	URL string
	// APIKey authenticates requests when set.
	APIKey string
	// MaxResults is the server-side result cap per request.
	MaxResults int
	// TimeoutMs is the HTTP client timeout in milliseconds (0 = rely on the
	// per-request context only).
	TimeoutMs int
}

// searchRequest is the wire format of one search call.
type searchRequest struct {
	Query      string `json:"query"`
	LanguageID string `json:"language_id,omitempty"`
	FilePath   string `json:"file_path,omitempty"`
	Limit      int    `json:"limit"`
}

// searchResponse is the wire format of the server's ranked results.
type searchResponse struct {
	Results []struct {
		Path      string  `json:"path"`
		Content   string  `json:"content"`
		StartLine int     `json:"start_line"`
		EndLine   int     `json:"end_line"`
		Score     float64 `json:"score"`
	} `json:"results"`
}

// Retriever queries the remote search index.
type Retriever struct {
	httpClient *http.Client
	config     Config
}

var _ retrieval.Retriever = (*Retriever)(nil)

// New creates a remote search retriever.
func New(config Config) *Retriever {
	if config.MaxResults <= 0 {
		config.MaxResults = 10
	}
	timeout := time.Duration(0)
	if config.TimeoutMs > 0 {
		timeout = time.Duration(config.TimeoutMs) * time.Millisecond
	}
	return &Retriever{
		httpClient: &http.Client{Timeout: timeout},
		config:     config,
	}
}

// Identifier implements retrieval.Retriever.
func (r *Retriever) Identifier() string { return "remote-search" }

// IsSupportedForLanguageID implements retrieval.Retriever. The server index
// covers all languages it indexed; filtering happens server-side.
func (r *Retriever) IsSupportedForLanguageID(string) bool { return true }

// Dispose implements retrieval.Retriever.
func (r *Retriever) Dispose() {
	r.httpClient.CloseIdleConnections()
}

// Retrieve implements retrieval.Retriever.
func (r *Retriever) Retrieve(ctx context.Context, opts retrieval.Options) ([]types.ContextSnippet, error) {
	defer logger.Trace("remote.Retrieve")()

	query := opts.Query
	if query == "" {
		tail := utils.LastLines(opts.Prefix, 10)
		if len(tail) == 0 {
			return nil, nil
		}
		query = joinLines(tail)
	}

	resp, err := r.search(ctx, &searchRequest{
		Query:      query,
		LanguageID: opts.LanguageID,
		FilePath:   opts.FilePath,
		Limit:      r.config.MaxResults,
	})
	if err != nil {
		return nil, err
	}

	snippets := make([]types.ContextSnippet, 0, len(resp.Results))
	for _, res := range resp.Results {
		if res.Path == "" || res.Content == "" {
			continue
		}
		snippets = append(snippets, types.ContextSnippet{
			FilePath:  res.Path,
			Content:   res.Content,
			StartLine: res.StartLine,
			EndLine:   res.EndLine,
			Score:     res.Score,
		})
	}
	return snippets, nil
}

func (r *Retriever) search(ctx context.Context, req *searchRequest) (*searchResponse, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	// Compress with brotli (quality 1 for speed)
	var compressedBuf bytes.Buffer
	brotliWriter := brotli.NewWriterLevel(&compressedBuf, 1)
	if _, err := brotliWriter.Write(jsonData); err != nil {
		return nil, fmt.Errorf("failed to compress request: %w", err)
	}
	if err := brotliWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to close brotli writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", r.config.URL, &compressedBuf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Content-Encoding", "br")
	if r.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+r.config.APIKey)
	}

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var apiResp searchResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &apiResp, nil
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}
