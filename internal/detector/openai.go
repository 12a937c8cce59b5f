package detector

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const DefaultOpenAIModel = "gemma3"

type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// OpenAICompatible talks to any server exposing /v1/chat/completions with
// image_url content parts, such as a local multimodal model.
type OpenAICompatible struct {
	cfg       OpenAIConfig
	client    *http.Client
	annotator Annotator
}

func NewOpenAICompatible(cfg OpenAIConfig, ann Annotator) *OpenAICompatible {
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &OpenAICompatible{
		cfg:       cfg,
		client:    &http.Client{Timeout: cfg.Timeout},
		annotator: ann,
	}
}

func (o *OpenAICompatible) Name() string { return "openai" }

type chatContent struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []chatContent `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (o *OpenAICompatible) Detect(ctx context.Context, image []byte) (Result, error) {
	if o.cfg.BaseURL == "" {
		return Result{}, fmt.Errorf("%w: no model server URL", ErrDetectorUnavailable)
	}

	body := chatRequest{
		Model: o.cfg.Model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []chatContent{
				{Type: "text", Text: Prompt},
				{Type: "image_url", ImageURL: &imageURL{URL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image)}},
			},
		}},
		Temperature: 0.1,
		MaxTokens:   100,
	}

	var headers map[string]string
	if o.cfg.APIKey != "" {
		headers = map[string]string{"Authorization": "Bearer " + o.cfg.APIKey}
	}

	var out chatResponse
	url := strings.TrimRight(o.cfg.BaseURL, "/") + "/v1/chat/completions"
	if err := doJSON(ctx, o.client, url, headers, body, &out); err != nil {
		return Result{}, fmt.Errorf("openai-compatible: %w", err)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return Result{}, fmt.Errorf("openai-compatible: %w", ErrEmptyResponse)
	}
	return buildResult(image, out.Choices[0].Message.Content, o.annotator), nil
}
