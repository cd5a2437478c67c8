package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/florascope/florascope/internal/model"
)

// RecordSightings adds aggregated counts to species_daily_stats in one batch.
func (r *Repository) RecordSightings(ctx context.Context, counts map[model.SightingKey]*model.SpeciesCount) error {
	if len(counts) == 0 {
		return nil
	}

	query := `
		INSERT INTO species_daily_stats (day, scientific_name, common_name, family, sightings, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (day, scientific_name) DO UPDATE SET
			sightings = species_daily_stats.sightings + EXCLUDED.sightings,
			common_name = COALESCE(NULLIF(EXCLUDED.common_name, ''), species_daily_stats.common_name),
			family = COALESCE(NULLIF(EXCLUDED.family, ''), species_daily_stats.family),
			updated_at = NOW()
	`

	batch := &pgx.Batch{}
	for key, c := range counts {
		day, err := time.Parse(model.DayLayout, key.Day)
		if err != nil {
			return fmt.Errorf("invalid sighting day %q: %w", key.Day, err)
		}
		batch.Queue(query, day, key.ScientificName, c.CommonName, c.Family, c.Sightings)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < len(counts); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch upsert sighting %d: %w", i, err)
		}
	}

	return nil
}

// TopSpecies returns the most sighted species since the given day.
func (r *Repository) TopSpecies(ctx context.Context, since time.Time, limit int) ([]model.SpeciesCount, error) {
	query := `
		SELECT scientific_name,
		       (ARRAY_AGG(common_name ORDER BY day DESC))[1],
		       (ARRAY_AGG(family ORDER BY day DESC))[1],
		       SUM(sightings)::BIGINT AS total
		FROM species_daily_stats
		WHERE day >= $1
		GROUP BY scientific_name
		ORDER BY total DESC, scientific_name ASC
		LIMIT $2
	`

	y, m, d := since.UTC().Date()
	rows, err := r.pool.Query(ctx, query, time.Date(y, m, d, 0, 0, 0, 0, time.UTC), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top species: %w", err)
	}
	defer rows.Close()

	out := make([]model.SpeciesCount, 0, limit)
	for rows.Next() {
		var c model.SpeciesCount
		if err := rows.Scan(&c.ScientificName, &c.CommonName, &c.Family, &c.Sightings); err != nil {
			return nil, fmt.Errorf("failed to scan species count: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating species counts: %w", err)
	}

	return out, nil
}
