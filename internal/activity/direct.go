package activity

import (
	"context"
	"log/slog"
	"time"

	"github.com/florascope/florascope/internal/metrics"
	"github.com/florascope/florascope/internal/model"
)

// DirectWriteTimeout bounds a synchronous sighting write.
const DirectWriteTimeout = 2 * time.Second

// Store persists aggregated sightings.
type Store interface {
	RecordSightings(ctx context.Context, counts map[model.SightingKey]*model.SpeciesCount) error
}

// Direct writes each sighting straight to the store.
// It is used when Redis is not configured.
type Direct struct {
	store   Store
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewDirect creates a synchronous recorder.
func NewDirect(store Store, logger *slog.Logger, recorder metrics.Recorder) *Direct {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Direct{
		store:   store,
		logger:  logger.With("component", "activity.direct"),
		metrics: recorder,
	}
}

// Record stores one sighting. Failures are logged, never returned.
func (d *Direct) Record(ctx context.Context, sighting model.Sighting) {
	payload := NewPayload(sighting)
	if payload.ScientificName == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DirectWriteTimeout)
	defer cancel()

	counts := model.AggregateSightings([]model.Sighting{payload.Sighting()})
	if err := d.store.RecordSightings(ctx, counts); err != nil {
		d.logger.Warn("failed to record sighting",
			"scientific_name", payload.ScientificName,
			"error", err,
		)
		d.metrics.IncSightingProcessed("failed")
		return
	}
	d.metrics.IncSightingProcessed("success")
}
