package extraction

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"kvittering/internal/receipt"
)

// GeminiCompleter implements the Completer interface using Google Gemini
type GeminiCompleter struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiCompleter creates a new Gemini-backed completer.
func NewGeminiCompleter(apiKey string, modelName string) (*GeminiCompleter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &GeminiCompleter{
		client: client,
		model:  client.GenerativeModel(modelName),
	}, nil
}

// Complete sends the prompt and concatenates the text parts of the first
// candidate.
func (g *GeminiCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("generating content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil ||
		len(resp.Candidates[0].Content.Parts) == 0 {
		return "", receipt.ErrEmptyReply
	}

	var reply strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			reply.WriteString(string(text))
		}
	}
	if strings.TrimSpace(reply.String()) == "" {
		return "", receipt.ErrEmptyReply
	}
	return reply.String(), nil
}

// Close closes the Gemini client
func (g *GeminiCompleter) Close() error {
	return g.client.Close()
}
