package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/florascope/florascope/internal/model"
)

const identificationColumns = `id, user_id, image_url, image_digest, scientific_name, common_name,
	common_names, confidence, family, description, origin, plant_type, provider, created_at`

// CreateIdentification inserts a new identification.
func (r *Repository) CreateIdentification(ctx context.Context, ident *model.Identification) error {
	query := `
		INSERT INTO identifications (` + identificationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	commonNames := ident.CommonNames
	if commonNames == nil {
		commonNames = []string{}
	}

	_, err := r.pool.Exec(ctx, query,
		ident.ID,
		ident.UserID,
		ident.ImageURL,
		ident.ImageDigest,
		ident.ScientificName,
		ident.CommonName,
		pq.Array(commonNames),
		ident.Confidence,
		ident.Family,
		ident.Description,
		ident.Origin,
		ident.Type,
		ident.Provider,
		ident.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrIdentificationExists
		}
		return fmt.Errorf("failed to create identification: %w", err)
	}

	return nil
}

// ListIdentificationsByUser returns a user's most recent identifications.
func (r *Repository) ListIdentificationsByUser(ctx context.Context, userID string, limit int) ([]*model.Identification, error) {
	query := `
		SELECT ` + identificationColumns + `
		FROM identifications
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list identifications: %w", err)
	}
	defer rows.Close()

	idents := make([]*model.Identification, 0, limit)
	for rows.Next() {
		ident, err := scanIdentification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan identification: %w", err)
		}
		idents = append(idents, ident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating identifications: %w", err)
	}

	return idents, nil
}

func scanIdentification(row pgx.Row) (*model.Identification, error) {
	var ident model.Identification
	err := row.Scan(
		&ident.ID,
		&ident.UserID,
		&ident.ImageURL,
		&ident.ImageDigest,
		&ident.ScientificName,
		&ident.CommonName,
		pq.Array(&ident.CommonNames),
		&ident.Confidence,
		&ident.Family,
		&ident.Description,
		&ident.Origin,
		&ident.Type,
		&ident.Provider,
		&ident.CreatedAt,
	)
	return &ident, err
}
