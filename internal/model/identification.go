// Package model defines domain entities for the application.
package model

import "time"

// Defaults applied when a provider leaves a descriptive field empty.
const (
	DefaultDescription = "No description available"
	DefaultOrigin      = "Unknown"
	DefaultPlantType   = "Plant"
)

// Identification is one stored plant identification.
// JSON names are camelCase to match the mobile client.
type Identification struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	ImageURL       string    `json:"imageUrl"`
	ImageDigest    string    `json:"-"`
	ScientificName string    `json:"scientificName"`
	CommonName     string    `json:"commonName"`
	CommonNames    []string  `json:"commonNames,omitempty"`
	Confidence     int       `json:"confidence"` // percent, 0..100
	Family         string    `json:"family,omitempty"`
	Description    string    `json:"description"`
	Origin         string    `json:"origin"`
	Type           string    `json:"type"`
	Provider       string    `json:"provider"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ApplyDefaults fills the descriptive fields the client always renders.
func (i *Identification) ApplyDefaults() {
	if i.CommonName == "" {
		if len(i.CommonNames) > 0 && i.CommonNames[0] != "" {
			i.CommonName = i.CommonNames[0]
		} else {
			i.CommonName = i.ScientificName
		}
	}
	if i.Description == "" {
		i.Description = DefaultDescription
	}
	if i.Origin == "" {
		i.Origin = DefaultOrigin
	}
	if i.Type == "" {
		i.Type = DefaultPlantType
	}
}

// ConfidencePercent converts a 0..1 probability to a clamped integer percentage.
func ConfidencePercent(probability float64) int {
	p := int(probability*100 + 0.5)
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
