package detector

import (
	"fmt"
	"strings"

	"github.com/technosupport/camwatch/internal/config"
)

// New builds the configured backend. It returns nil, nil for "none".
func New(cfg config.DetectorConfig, ann Annotator) (Detector, error) {
	switch strings.ToLower(cfg.Backend) {
	case "gemini", "":
		return NewGemini(GeminiConfig{
			APIKey:   cfg.GeminiAPIKey,
			Model:    cfg.GeminiModel,
			Endpoint: cfg.GeminiEndpoint,
			Timeout:  cfg.Timeout(),
		}, ann), nil
	case "openai", "local_gemma3":
		return NewOpenAICompatible(OpenAIConfig{
			BaseURL: cfg.OpenAIURL,
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			Timeout: cfg.Timeout(),
		}, ann), nil
	case "none":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown detector backend %q", cfg.Backend)
}
