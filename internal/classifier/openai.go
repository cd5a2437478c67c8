package classifier

import (
	"context"
	"net/http"
	"strings"
)

// DefaultOpenAIBaseURL is the OpenAI API root.
const DefaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAI identifies plants with a vision-capable chat completion model.
type OpenAI struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// NewOpenAI creates an OpenAI vision client.
func NewOpenAI(apiKey, baseURL, model string, client *http.Client) *OpenAI {
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAI{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  client,
	}
}

// Name implements Classifier.
func (o *OpenAI) Name() string { return "openai" }

type openAIRequest struct {
	Model          string               `json:"model"`
	Messages       []openAIMessage      `json:"messages"`
	MaxTokens      int                  `json:"max_tokens"`
	Temperature    float64              `json:"temperature"`
	ResponseFormat openAIResponseFormat `json:"response_format"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type openAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Classify implements Classifier.
func (o *OpenAI) Classify(ctx context.Context, img *Image) (*Result, error) {
	req := openAIRequest{
		Model: o.model,
		Messages: []openAIMessage{
			{Role: "system", Content: visionPrompt},
			{Role: "user", Content: []openAIContentPart{
				{Type: "text", Text: "Identify this plant."},
				{Type: "image_url", ImageURL: &openAIImageURL{URL: img.DataURL(), Detail: "low"}},
			}},
		},
		MaxTokens:      600,
		Temperature:    0.2,
		ResponseFormat: openAIResponseFormat{Type: "json_object"},
	}

	var resp openAIResponse
	err := postJSON(ctx, o.client, o.Name(), o.baseURL+"/chat/completions",
		map[string]string{"Authorization": "Bearer " + o.apiKey},
		req, &resp,
	)
	if err != nil {
		return nil, err
	}

	if resp.Error != nil {
		return nil, &APIError{Provider: o.Name(), StatusCode: http.StatusOK, Message: resp.Error.Message}
	}
	if len(resp.Choices) == 0 {
		return nil, &APIError{Provider: o.Name(), StatusCode: http.StatusOK, Message: "no completion returned"}
	}

	return parseVisionAnswer(o.Name(), resp.Choices[0].Message.Content)
}
