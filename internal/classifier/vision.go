package classifier

import (
	"encoding/json"
	"fmt"
	"strings"
)

// visionPrompt asks a general vision model for a strict JSON answer.
const visionPrompt = `You are a botanist. Identify the plant in the photo.
Reply with a single JSON object and nothing else, using exactly these keys:
{"is_plant": true|false,
 "scientific_name": "Genus species",
 "common_names": ["most common first"],
 "family": "botanical family",
 "description": "two or three sentences for a hobby gardener",
 "origin": "native range",
 "type": "e.g. Houseplant, Shrub, Tree, Succulent, Herb",
 "confidence": 0.0-1.0}
If the photo shows no plant, reply {"is_plant": false}.`

type visionAnswer struct {
	IsPlant        *bool    `json:"is_plant"`
	ScientificName string   `json:"scientific_name"`
	CommonNames    []string `json:"common_names"`
	Family         string   `json:"family"`
	Description    string   `json:"description"`
	Origin         string   `json:"origin"`
	Type           string   `json:"type"`
	Confidence     float64  `json:"confidence"`
}

// parseVisionAnswer turns a model's text reply into a Result.
func parseVisionAnswer(provider, text string) (*Result, error) {
	body := strings.TrimSpace(text)
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(body, "```")
	body = strings.TrimSpace(body)

	if start, end := strings.IndexByte(body, '{'), strings.LastIndexByte(body, '}'); start >= 0 && end > start {
		body = body[start : end+1]
	}

	var answer visionAnswer
	if err := json.Unmarshal([]byte(body), &answer); err != nil {
		return nil, &APIError{Provider: provider, StatusCode: 200, Message: fmt.Sprintf("unparseable answer: %s", truncate(text, 120)), Err: err}
	}

	if (answer.IsPlant != nil && !*answer.IsPlant) || strings.TrimSpace(answer.ScientificName) == "" {
		return nil, ErrNoPlantDetected
	}

	confidence := answer.Confidence
	if confidence > 1 {
		confidence /= 100 // some models answer in percent
	}
	if confidence < 0 {
		confidence = 0
	}

	return &Result{
		Provider:       provider,
		ScientificName: strings.TrimSpace(answer.ScientificName),
		CommonNames:    answer.CommonNames,
		Probability:    confidence,
		Family:         answer.Family,
		Description:    answer.Description,
		Origin:         answer.Origin,
		Type:           answer.Type,
	}, nil
}
