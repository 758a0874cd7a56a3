package extraction

import (
	"context"
	"encoding/base64"

	"github.com/sashabaranov/go-openai"

	"github.com/eshaffer321/ledgerbook/internal/domain/ledger"
)

// ChatClient is the part of *openai.Client the extractor uses.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIConfig holds configuration for the OpenAI backend
type OpenAIConfig struct {
	Model       string
	Temperature float32
}

// DefaultOpenAIConfig returns default configuration
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		Model:       openai.GPT4o,
		Temperature: 0.1,
	}
}

// OpenAIExtractor sends screenshots to a vision chat model.
type OpenAIExtractor struct {
	client ChatClient
	config OpenAIConfig
}

// NewOpenAIExtractor wraps client. Pass openai.NewClient(apiKey) in production.
func NewOpenAIExtractor(client ChatClient, cfg OpenAIConfig) *OpenAIExtractor {
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIConfig().Model
	}
	return &OpenAIExtractor{client: client, config: cfg}
}

func (e *OpenAIExtractor) Name() string { return "openai" }

// Extract implements Extractor.
func (e *OpenAIExtractor) Extract(ctx context.Context, img Image, kind ledger.SourceKind) ([]map[string]any, error) {
	dataURL := "data:" + img.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.config.Model,
		Temperature: e.config.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: Prompt(kind)},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: openai.ImageURLDetailHigh,
						},
					},
				},
			},
		},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}
	return parseTransactions(resp.Choices[0].Message.Content)
}
