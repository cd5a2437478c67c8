package service

import (
	"context"
	"fmt"
	"time"

	"github.com/florascope/florascope/internal/model"
	"github.com/florascope/florascope/internal/repository"
)

// Popular species window bounds.
const (
	DefaultStatsDays  = 7
	MaxStatsDays      = 90
	DefaultStatsLimit = 10
	MaxStatsLimit     = 50
)

// StatsService serves aggregate sighting statistics.
type StatsService struct {
	store repository.Store
	now   func() time.Time
}

// NewStatsService creates a new StatsService.
func NewStatsService(store repository.Store) *StatsService {
	return &StatsService{store: store, now: utcNow}
}

// PopularSpeciesOutput is the ranking plus the window it covers.
type PopularSpeciesOutput struct {
	Since   time.Time
	Days    int
	Species []model.SpeciesCount
}

// PopularSpecies returns the most identified species over the last days
// UTC calendar days, today included. Out of range arguments are clamped.
func (s *StatsService) PopularSpecies(ctx context.Context, days, limit int) (*PopularSpeciesOutput, error) {
	if days <= 0 {
		days = DefaultStatsDays
	}
	if days > MaxStatsDays {
		days = MaxStatsDays
	}
	if limit <= 0 {
		limit = DefaultStatsLimit
	}
	if limit > MaxStatsLimit {
		limit = MaxStatsLimit
	}

	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	since := today.AddDate(0, 0, -(days - 1))

	species, err := s.store.TopSpecies(ctx, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load species stats: %w", err)
	}
	if species == nil {
		species = []model.SpeciesCount{}
	}
	return &PopularSpeciesOutput{Since: since, Days: days, Species: species}, nil
}
