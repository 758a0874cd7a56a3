package extraction

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"github.com/eshaffer321/ledgerbook/internal/infrastructure/config"
)

// Open builds the configured backend. It returns ErrDisabled for backend
// "none" or when the backend's API key is missing.
func Open(ctx context.Context, cfg *config.Config) (Extractor, error) {
	ec := cfg.Extraction
	switch ec.Backend {
	case "", "openai":
		key := cfg.GetAPIKey(ec.OpenAIAPIKey, "OPENAI_API_KEY")
		if key == "" {
			return nil, ErrDisabled
		}
		oc := DefaultOpenAIConfig()
		if ec.Model != "" {
			oc.Model = ec.Model
		}
		return NewOpenAIExtractor(openai.NewClient(key), oc), nil
	case "gemini":
		key := cfg.GetAPIKey(ec.GeminiAPIKey, "GEMINI_API_KEY", "GOOGLE_API_KEY")
		if key == "" {
			return nil, ErrDisabled
		}
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:      key,
			Backend:     genai.BackendGeminiAPI,
			HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
		})
		if err != nil {
			return nil, fmt.Errorf("create genai client: %w", err)
		}
		return NewGeminiExtractor(client.Models, ec.Model), nil
	case "none":
		return nil, ErrDisabled
	default:
		return nil, fmt.Errorf("unknown extraction backend %q", ec.Backend)
	}
}
