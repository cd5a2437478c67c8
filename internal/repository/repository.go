// Package repository provides the persistence layer: a Store interface with
// an in-memory implementation and a PostgreSQL one.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/florascope/florascope/internal/model"
	"github.com/florascope/florascope/migrations"
)

// Common errors for repository operations.
var (
	ErrUsageNotFound        = errors.New("usage not found")
	ErrIdentificationExists = errors.New("identification already exists")
	ErrCustomerTaken        = errors.New("stripe customer already linked to another user")
)

// UsageMutator changes a usage record in place. Returning an error aborts
// the update and leaves the stored record untouched.
type UsageMutator func(u *model.UserUsage) error

// Store is the persistence contract used by the services.
type Store interface {
	CreateIdentification(ctx context.Context, ident *model.Identification) error
	// ListIdentificationsByUser returns at most limit records, newest first.
	ListIdentificationsByUser(ctx context.Context, userID string, limit int) ([]*model.Identification, error)

	GetUsage(ctx context.Context, userID string) (*model.UserUsage, error)
	// UpdateUsage runs fn on the user's record under a per-user lock,
	// creating the record first when it does not exist.
	UpdateUsage(ctx context.Context, userID string, fn UsageMutator) (*model.UserUsage, error)
	GetUsageByStripeCustomer(ctx context.Context, customerID string) (*model.UserUsage, error)

	RecordSightings(ctx context.Context, counts map[model.SightingKey]*model.SpeciesCount) error
	// TopSpecies sums daily sightings on or after since, most seen first.
	TopSpecies(ctx context.Context, since time.Time, limit int) ([]model.SpeciesCount, error)

	Ping(ctx context.Context) error
	Close()
}

// Pool defaults. Identify requests hold a connection for the quota
// transaction only, never across the classifier call.
const (
	defaultMaxConns        = 10
	defaultMinConns        = 2
	defaultMaxConnIdleTime = 5 * time.Minute
	applicationName        = "florascope-api"
)

// Repository is the PostgreSQL Store.
type Repository struct {
	pool *pgxpool.Pool
}

var _ Store = (*Repository)(nil)

// New opens a pool against databaseURL and pings it. Pool settings given in
// the URL (pool_max_conns and friends) win over the defaults.
func New(ctx context.Context, databaseURL string) (*Repository, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if !strings.Contains(databaseURL, "pool_max_conns") {
		cfg.MaxConns = defaultMaxConns
	}
	if !strings.Contains(databaseURL, "pool_min_conns") {
		cfg.MinConns = defaultMinConns
	}
	cfg.MaxConnIdleTime = defaultMaxConnIdleTime
	if _, ok := cfg.ConnConfig.RuntimeParams["application_name"]; !ok {
		cfg.ConnConfig.RuntimeParams["application_name"] = applicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Repository{pool: pool}, nil
}

// Migrate applies the embedded schema.
func (r *Repository) Migrate(ctx context.Context) error {
	return migrations.Apply(ctx, r.pool)
}

// Ping satisfies handler.HealthChecker.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *Repository) Close() {
	r.pool.Close()
}

// Pool exposes the pool to integration test helpers.
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

// isUniqueViolation reports SQLSTATE 23505. Duplicate identification ids and
// a Stripe customer linked twice both surface this way.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
