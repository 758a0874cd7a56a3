package extraction

import (
	"context"

	"google.golang.org/genai"

	"github.com/eshaffer321/ledgerbook/internal/domain/ledger"
)

const DefaultGeminiModel = "gemini-2.5-flash"

// ContentGenerator is satisfied by (*genai.Client).Models.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiExtractor sends screenshots to a Gemini model as inline data.
type GeminiExtractor struct {
	models ContentGenerator
	model  string
}

func NewGeminiExtractor(models ContentGenerator, model string) *GeminiExtractor {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiExtractor{models: models, model: model}
}

func (e *GeminiExtractor) Name() string { return "gemini" }

// Extract implements Extractor.
func (e *GeminiExtractor) Extract(ctx context.Context, img Image, kind ledger.SourceKind) ([]map[string]any, error) {
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: Prompt(kind)},
				{
					InlineData: &genai.Blob{
						MIMEType: img.MIMEType,
						Data:     img.Data,
					},
				},
			},
		},
	}

	resp, err := e.models.GenerateContent(ctx, e.model, contents, nil)
	if err != nil {
		return nil, err
	}
	return parseTransactions(resp.Text())
}
