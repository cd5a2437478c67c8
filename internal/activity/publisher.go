// Package activity records species sightings for popularity stats.
package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/florascope/florascope/internal/metrics"
	"github.com/florascope/florascope/internal/model"
)

const (
	// StreamKey is the Redis stream for sightings.
	StreamKey = "stream:sightings"

	// DeadLetterStreamKey is the Redis stream for poison messages.
	DeadLetterStreamKey = "stream:sightings:dlq"

	// MaxStreamLen is the approximate max length of the stream.
	MaxStreamLen = 100000

	// PublishTimeout is the max time to wait for Redis publish.
	PublishTimeout = 100 * time.Millisecond

	maxNameLength = 200
)

// Recorder accepts sightings from the identify flow.
// Implementations must not block the caller on slow backends.
type Recorder interface {
	Record(ctx context.Context, sighting model.Sighting)
}

// SightingPayload is the compact stream format.
type SightingPayload struct {
	ScientificName string `json:"sn"`
	CommonName     string `json:"cn,omitempty"`
	Family         string `json:"f,omitempty"`
	SeenAt         int64  `json:"t"` // Unix milliseconds
}

// NewPayload converts a sighting to its stream format, trimming long names.
func NewPayload(s model.Sighting) SightingPayload {
	return SightingPayload{
		ScientificName: truncate(strings.TrimSpace(s.ScientificName), maxNameLength),
		CommonName:     truncate(strings.TrimSpace(s.CommonName), maxNameLength),
		Family:         truncate(strings.TrimSpace(s.Family), maxNameLength),
		SeenAt:         s.SeenAt.UnixMilli(),
	}
}

// Sighting converts the payload back to the model.
func (p SightingPayload) Sighting() model.Sighting {
	return model.Sighting{
		ScientificName: p.ScientificName,
		CommonName:     p.CommonName,
		Family:         p.Family,
		SeenAt:         time.UnixMilli(p.SeenAt).UTC(),
	}
}

// Validate checks payload fields read back from the stream.
func (p SightingPayload) Validate() error {
	if p.ScientificName == "" {
		return fmt.Errorf("scientific name is required")
	}
	if len(p.ScientificName) > maxNameLength || len(p.CommonName) > maxNameLength || len(p.Family) > maxNameLength {
		return fmt.Errorf("name too long")
	}
	if p.SeenAt <= 0 {
		return fmt.Errorf("seen_at must be set")
	}
	return nil
}

// Publisher enqueues sightings to a Redis stream.
type Publisher struct {
	redis   *redis.Client
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewPublisher creates a new sighting publisher.
func NewPublisher(client *redis.Client, logger *slog.Logger, recorder metrics.Recorder) *Publisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Publisher{
		redis:   client,
		logger:  logger.With("component", "activity.publisher"),
		metrics: recorder,
	}
}

// Publish adds a sighting to the stream synchronously.
func (p *Publisher) Publish(ctx context.Context, payload SightingPayload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal sighting: %w", err)
	}

	result, err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: MaxStreamLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{
			"payload": string(data),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}

	return result, nil
}

// Record publishes without blocking the caller.
// Errors are logged but not returned.
func (p *Publisher) Record(_ context.Context, sighting model.Sighting) {
	payload := NewPayload(sighting)
	if payload.ScientificName == "" {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), PublishTimeout)
		defer cancel()

		streamID, err := p.Publish(ctx, payload)
		if err != nil {
			p.logger.Warn("failed to publish sighting",
				"scientific_name", payload.ScientificName,
				"error", err,
			)
			p.metrics.IncSightingPublished("dropped")
			return
		}

		p.logger.Debug("sighting published",
			"scientific_name", payload.ScientificName,
			"stream_id", streamID,
		)
		p.metrics.IncSightingPublished("success")
	}()
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
