// Package imagestore decides where an identification's imageUrl points.
package imagestore

import (
	"context"

	"github.com/florascope/florascope/internal/classifier"
)

// Store persists an uploaded image and returns the URL clients load it from.
type Store interface {
	Save(ctx context.Context, userID string, img *classifier.Image) (string, error)
}

// Inline embeds the image in the record as a data URL.
type Inline struct{}

// Save implements Store.
func (Inline) Save(_ context.Context, _ string, img *classifier.Image) (string, error) {
	return img.DataURL(), nil
}

// ObjectKey is the object path for a user's image. The digest makes
// re-uploads of the same photo idempotent.
func ObjectKey(userID string, img *classifier.Image) string {
	return "identifications/" + userID + "/" + img.Digest + img.Extension()
}
