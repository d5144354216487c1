package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Completer sends a prompt to a text-generation service and returns the
// generated text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// OpenAIConfig configures an OpenAI-compatible chat completion endpoint.
type OpenAIConfig struct {
	BaseURL     string
	Keys        []string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// OpenAICompleter is a Completer backed by an OpenAI-compatible API.
// Each call uses the next API key from its rotator.
type OpenAICompleter struct {
	clients     []*openai.Client
	rotator     *CredentialRotator
	model       string
	temperature float32
	maxTokens   int
}

// NewOpenAI creates a completer with one API client per key.
func NewOpenAI(cfg OpenAIConfig) *OpenAICompleter {
	rotator := NewCredentialRotator(cfg.Keys...)
	keys := rotator.keys
	if len(keys) == 0 {
		// Local servers such as Ollama accept any key.
		keys = []string{"none"}
		rotator = NewCredentialRotator(keys...)
	}

	clients := make([]*openai.Client, len(keys))
	for i, key := range keys {
		config := openai.DefaultConfig(key)
		if cfg.BaseURL != "" {
			config.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
		}
		if cfg.Timeout > 0 {
			config.HTTPClient = &http.Client{Timeout: cfg.Timeout}
		}
		clients[i] = openai.NewClientWithConfig(config)
	}

	return &OpenAICompleter{
		clients:     clients,
		rotator:     rotator,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

// Complete sends prompt as a single user message.
func (c *OpenAICompleter) Complete(ctx context.Context, prompt string) (string, error) {
	return c.complete(ctx, prompt, c.maxTokens)
}

func (c *OpenAICompleter) complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	idx, _ := c.rotator.Next()
	resp, err := c.clients[idx].CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: c.temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM returned no choices: %w", ErrInvalidReply)
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("LLM returned empty content: %w", ErrInvalidReply)
	}

	slog.Debug("LLM response", "key_index", idx, "tokens", resp.Usage.TotalTokens)
	return content, nil
}

// Ping checks that the endpoint answers a minimal request.
func (c *OpenAICompleter) Ping(ctx context.Context) error {
	_, err := c.complete(ctx, "Hello", 10)
	return err
}
