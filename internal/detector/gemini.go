package detector

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultGeminiModel    = "gemini-2.0-flash-001"
	DefaultGeminiEndpoint = "https://generativelanguage.googleapis.com/v1beta"
)

type GeminiConfig struct {
	APIKey   string
	Model    string
	Endpoint string
	Timeout  time.Duration
}

// Gemini calls the generateContent REST method with the image inline.
type Gemini struct {
	cfg       GeminiConfig
	client    *http.Client
	annotator Annotator
}

func NewGemini(cfg GeminiConfig, ann Annotator) *Gemini {
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultGeminiEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Gemini{
		cfg:       cfg,
		client:    &http.Client{Timeout: cfg.Timeout},
		annotator: ann,
	}
}

func (g *Gemini) Name() string { return "gemini" }

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (g *Gemini) Detect(ctx context.Context, image []byte) (Result, error) {
	if g.cfg.APIKey == "" {
		return Result{}, fmt.Errorf("%w: GEMINI_API_KEY not set", ErrDetectorUnavailable)
	}

	body := geminiRequest{Contents: []geminiContent{{Parts: []geminiPart{
		{Text: Prompt},
		{InlineData: &geminiInlineData{MimeType: "image/jpeg", Data: base64.StdEncoding.EncodeToString(image)}},
	}}}}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		strings.TrimRight(g.cfg.Endpoint, "/"), url.PathEscape(g.cfg.Model), url.QueryEscape(g.cfg.APIKey))

	var out geminiResponse
	if err := doJSON(ctx, g.client, endpoint, nil, body, &out); err != nil {
		return Result{}, fmt.Errorf("gemini: %w", err)
	}

	var text strings.Builder
	if len(out.Candidates) > 0 {
		for _, p := range out.Candidates[0].Content.Parts {
			text.WriteString(p.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return Result{}, fmt.Errorf("gemini: %w", ErrEmptyResponse)
	}
	return buildResult(image, text.String(), g.annotator), nil
}
