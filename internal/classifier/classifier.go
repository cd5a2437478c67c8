// Package classifier talks to third-party plant identification services.
package classifier

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for classification.
var (
	// ErrNoPlantDetected means the provider answered but found no plant.
	ErrNoPlantDetected = errors.New("no plant identified")
	// ErrAllProvidersFailed wraps the per-provider failures of a Chain.
	ErrAllProvidersFailed = errors.New("all classifier providers failed")
)

// Classifier identifies the plant in an image.
type Classifier interface {
	Name() string
	Classify(ctx context.Context, img *Image) (*Result, error)
}

// Result is a provider-neutral identification.
type Result struct {
	Provider       string   `json:"provider"`
	ScientificName string   `json:"scientificName"`
	CommonNames    []string `json:"commonNames,omitempty"`
	Probability    float64  `json:"probability"` // 0..1
	Family         string   `json:"family,omitempty"`
	Description    string   `json:"description,omitempty"`
	Origin         string   `json:"origin,omitempty"`
	Type           string   `json:"type,omitempty"`
}

// APIError is a failed upstream call.
type APIError struct {
	Provider   string
	StatusCode int // 0 for transport failures
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the same request may succeed later.
func (e *APIError) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode == 429 || e.StatusCode >= 500
}

// IsRetryable reports whether err is an *APIError worth retrying.
func IsRetryable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Retryable()
}
