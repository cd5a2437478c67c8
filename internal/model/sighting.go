package model

import "time"

// Sighting is one identified species event, used for popularity stats.
type Sighting struct {
	ScientificName string    `json:"scientificName"`
	CommonName     string    `json:"commonName"`
	Family         string    `json:"family,omitempty"`
	SeenAt         time.Time `json:"seenAt"`
}

// SpeciesCount is an aggregated sighting total over a period.
type SpeciesCount struct {
	ScientificName string `json:"scientificName"`
	CommonName     string `json:"commonName"`
	Family         string `json:"family,omitempty"`
	Sightings      int64  `json:"sightings"`
}

// SightingKey groups sightings for daily aggregation.
type SightingKey struct {
	Day            string
	ScientificName string
}

// AggregateSightings folds sightings into per-day, per-species counts.
// The returned map's values carry the most recent names seen for the key.
func AggregateSightings(sightings []Sighting) map[SightingKey]*SpeciesCount {
	out := make(map[SightingKey]*SpeciesCount)
	for _, s := range sightings {
		if s.ScientificName == "" {
			continue
		}
		key := SightingKey{Day: s.SeenAt.UTC().Format(DayLayout), ScientificName: s.ScientificName}
		c, ok := out[key]
		if !ok {
			c = &SpeciesCount{ScientificName: s.ScientificName}
			out[key] = c
		}
		c.Sightings++
		if s.CommonName != "" {
			c.CommonName = s.CommonName
		}
		if s.Family != "" {
			c.Family = s.Family
		}
	}
	return out
}
