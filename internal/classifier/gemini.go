package classifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"
)

// Gemini identifies plants with Google's Gemini vision models.
type Gemini struct {
	client *genai.Client
	model  string
}

// GeminiConfig configures NewGemini.
type GeminiConfig struct {
	APIKey string
	Model  string
	// BaseURL overrides the API endpoint. Tests point it at httptest.
	BaseURL    string
	HTTPClient *http.Client
}

// NewGemini creates a Gemini client.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &Gemini{client: client, model: cfg.Model}, nil
}

// Name implements Classifier.
func (g *Gemini) Name() string { return "gemini" }

// Classify implements Classifier.
func (g *Gemini) Classify(ctx context.Context, img *Image) (*Result, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText("Identify this plant."),
			genai.NewPartFromBytes(img.Data, img.MIMEType),
		}, genai.RoleUser),
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(visionPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		Temperature:       genai.Ptr[float32](0.2),
		MaxOutputTokens:   600,
	})
	if err != nil {
		return nil, g.wrapError(err)
	}

	text := result.Text()
	if text == "" {
		return nil, &APIError{Provider: g.Name(), StatusCode: http.StatusOK, Message: "empty answer"}
	}
	return parseVisionAnswer(g.Name(), text)
}

func (g *Gemini) wrapError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{Provider: g.Name(), StatusCode: apiErr.Code, Message: apiErr.Message, Err: err}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return &APIError{Provider: g.Name(), StatusCode: apiErrPtr.Code, Message: apiErrPtr.Message, Err: err}
	}
	return &APIError{Provider: g.Name(), Message: "generate content failed", Err: err}
}
