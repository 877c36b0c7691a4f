// Package llm adapts an OpenAI-compatible chat endpoint into the fixup
// edit generator.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"

	"codeassist/fixup"
	"codeassist/logger"
)

const systemPrompt = "You are a code editing assistant. Rewrite the code in " +
	"<selection> according to the user's instruction. Reply with only the " +
	"replacement code, no prose and no markdown fences."

// Config holds the chat endpoint settings.
type Config struct {
	BaseURL     string  `json:"base_url"`
	APIKey      string  `json:"api_key"`
	Model       string  `json:"model"`
	Temperature float32 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

// Client streams edit generations from an OpenAI-compatible API.
type Client struct {
	client *openai.Client
	config Config
}

// New builds a client. BaseURL overrides the default OpenAI endpoint, which
// makes self-hosted gateways work with the same code path.
func New(config Config) (*Client, error) {
	if config.Model == "" {
		return nil, fmt.Errorf("llm: model is required")
	}
	cc := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		cc.BaseURL = config.BaseURL
	}
	return &Client{client: openai.NewClientWithConfig(cc), config: config}, nil
}

// GenerateEdit implements fixup.Generator. The returned channel is closed
// when the stream finishes; a cancelled ctx surfaces as a context error on
// the channel.
func (c *Client) GenerateEdit(ctx context.Context, req fixup.EditRequest) (<-chan fixup.StreamDelta, error) {
	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
		Stream:      true,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(req)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("llm: open stream: %w", err)
	}

	out := make(chan fixup.StreamDelta)
	go func() {
		defer close(out)
		defer stream.Close()
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				logger.Error("llm stream recv: %v", err)
				select {
				case out <- fixup.StreamDelta{Err: err}:
				case <-ctx.Done():
				}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			select {
			case out <- fixup.StreamDelta{Text: delta}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func buildPrompt(req fixup.EditRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "File: %s\n", req.FilePath)
	if req.LanguageID != "" {
		fmt.Fprintf(&b, "Language: %s\n", req.LanguageID)
	}
	if req.Preceding != "" {
		fmt.Fprintf(&b, "<before>\n%s\n</before>\n", req.Preceding)
	}
	fmt.Fprintf(&b, "<selection>\n%s\n</selection>\n", req.Selection)
	if req.Following != "" {
		fmt.Fprintf(&b, "<after>\n%s\n</after>\n", req.Following)
	}
	fmt.Fprintf(&b, "Instruction: %s", req.Instruction)
	return b.String()
}
