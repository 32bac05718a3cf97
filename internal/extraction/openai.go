package extraction

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"kvittering/internal/receipt"
)

const (
	// DefaultBaseURL is the HuggingFace OpenAI-compatible router.
	DefaultBaseURL = "https://router.huggingface.co/v1"
	// DefaultModel is the instruct model used for receipt parsing.
	DefaultModel = "Qwen/Qwen3-Next-80B-A3B-Instruct:novita"
)

// OpenAICompleter talks to any OpenAI-compatible chat completion endpoint.
type OpenAICompleter struct {
	client *openai.Client
	model  string
}

// NewOpenAICompleter creates a completer for an OpenAI-compatible API.
// Empty baseURL and model fall back to the HuggingFace router defaults.
func NewOpenAICompleter(apiKey, baseURL, model string) (*OpenAICompleter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("completion api key is required")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL

	return &OpenAICompleter{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}, nil
}

// Complete sends the prompt as a single user-role message and returns the
// first choice's message content.
func (c *OpenAICompleter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("creating chat completion: %w", err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", receipt.ErrEmptyReply
	}
	return resp.Choices[0].Message.Content, nil
}

// Close closes the completer (no-op for the HTTP client)
func (c *OpenAICompleter) Close() error {
	return nil
}
