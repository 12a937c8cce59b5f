package detector

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/technosupport/camwatch/internal/config"
)

type markAnnotator struct{}

func (markAnnotator) Annotate(data []byte, text string) ([]byte, error) {
	return append([]byte("["+text+"]"), data...), nil
}

type failingAnnotator struct{}

func (failingAnnotator) Annotate(data []byte, text string) ([]byte, error) {
	return nil, errors.New("cannot decode")
}

func TestParseAnswer(t *testing.T) {
	cases := map[string]bool{
		"yes":              true,
		"Yes.":             true,
		"  YES\n":          true,
		"no":               false,
		"No, nobody.":      false,
		"I cannot tell":    false,
		"":                 false,
		"yes, one person.": true,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseAnswer(in), "%q", in)
	}
}

func TestBuildResult_AnnotatesOnlyPositives(t *testing.T) {
	img := []byte("jpeg")

	res := buildResult(img, "yes", markAnnotator{})
	assert.True(t, res.Present)
	assert.Equal(t, "[PERSON DETECTED]jpeg", string(res.Annotated))
	assert.Equal(t, "yes", res.RawText)

	res = buildResult(img, "no", markAnnotator{})
	assert.False(t, res.Present)
	assert.Equal(t, img, res.Annotated)

	res = buildResult(img, "yes", failingAnnotator{})
	assert.True(t, res.Present)
	assert.Equal(t, img, res.Annotated)
}

func TestGemini_Detect(t *testing.T) {
	var gotPath, gotKey string
	var gotBody geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Yes"},{"text":"\n"}]}}]}`))
	}))
	defer srv.Close()

	g := NewGemini(GeminiConfig{APIKey: "k1", Endpoint: srv.URL + "/v1beta"}, markAnnotator{})
	res, err := g.Detect(context.Background(), []byte{0xff, 0xd8})
	require.NoError(t, err)

	assert.True(t, res.Present)
	assert.Equal(t, "Yes\n", res.RawText)
	assert.Equal(t, "/v1beta/models/gemini-2.0-flash-001:generateContent", gotPath)
	assert.Equal(t, "k1", gotKey)
	require.Len(t, gotBody.Contents, 1)
	require.Len(t, gotBody.Contents[0].Parts, 2)
	assert.Equal(t, Prompt, gotBody.Contents[0].Parts[0].Text)
	assert.Equal(t, "image/jpeg", gotBody.Contents[0].Parts[1].InlineData.MimeType)
	assert.Equal(t, "/9g=", gotBody.Contents[0].Parts[1].InlineData.Data)
}

func TestGemini_Failures(t *testing.T) {
	g := NewGemini(GeminiConfig{}, nil)
	_, err := g.Detect(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, ErrDetectorUnavailable)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "empty") {
			w.Write([]byte(`{"candidates":[]}`))
			return
		}
		http.Error(w, `{"error":"quota"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	g = NewGemini(GeminiConfig{APIKey: "k", Endpoint: srv.URL}, nil)
	_, err = g.Detect(context.Background(), []byte("x"))
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "status=429")
	}

	g = NewGemini(GeminiConfig{APIKey: "k", Endpoint: srv.URL + "/empty"}, nil)
	_, err = g.Detect(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestOpenAICompatible_Detect(t *testing.T) {
	var gotAuth string
	var gotBody chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"no"}}]}`))
	}))
	defer srv.Close()

	o := NewOpenAICompatible(OpenAIConfig{BaseURL: srv.URL + "/", APIKey: "tok"}, markAnnotator{})
	res, err := o.Detect(context.Background(), []byte{0xff, 0xd8})
	require.NoError(t, err)

	assert.False(t, res.Present)
	assert.Equal(t, "no", res.RawText)
	assert.Equal(t, []byte{0xff, 0xd8}, res.Annotated)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "gemma3", gotBody.Model)
	assert.InDelta(t, 0.1, gotBody.Temperature, 1e-9)
	assert.Equal(t, 100, gotBody.MaxTokens)
	require.Len(t, gotBody.Messages, 1)
	require.Len(t, gotBody.Messages[0].Content, 2)
	assert.Equal(t, "text", gotBody.Messages[0].Content[0].Type)
	assert.Equal(t, "data:image/jpeg;base64,/9g=", gotBody.Messages[0].Content[1].ImageURL.URL)
}

func TestOpenAICompatible_NoAuthHeaderWithoutKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	o := NewOpenAICompatible(OpenAIConfig{BaseURL: srv.URL}, nil)
	_, err := o.Detect(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestNew(t *testing.T) {
	d, err := New(config.DetectorConfig{Backend: "gemini"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "gemini", d.Name())

	d, err = New(config.DetectorConfig{Backend: "local_gemma3", OpenAIURL: "http://x"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "openai", d.Name())

	d, err = New(config.DetectorConfig{Backend: "none"}, nil)
	require.NoError(t, err)
	assert.Nil(t, d)

	_, err = New(config.DetectorConfig{Backend: "clairvoyant"}, nil)
	assert.Error(t, err)
}
