// Package catalog holds the dental service offerings a booking selects
// from.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrServiceNotFound is returned for unknown service ids.
var ErrServiceNotFound = errors.New("catalog: service not found")

// Service is one bookable dental service.
type Service struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	EstimatedMinutes int    `json:"estimated_minutes"`
	PriceCents       int64  `json:"price_cents"`
	Active           bool   `json:"active"`
}

// DB is the query subset the repository needs; pgxmock satisfies it.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides service catalog lookups.
type Repository struct {
	db DB
}

// NewRepository creates a repository backed by a pgx pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("catalog: pgx pool required")
	}
	return &Repository{db: pool}
}

// NewRepositoryWithDB allows injecting a mock database for testing.
func NewRepositoryWithDB(db DB) *Repository {
	return &Repository{db: db}
}

// GetByID loads one service.
func (r *Repository) GetByID(ctx context.Context, id string) (*Service, error) {
	query := `
		SELECT id, name, estimated_minutes, price_cents, active
		FROM services
		WHERE id = $1
	`
	var s Service
	err := r.db.QueryRow(ctx, query, id).Scan(&s.ID, &s.Name, &s.EstimatedMinutes, &s.PriceCents, &s.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrServiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: select service: %w", err)
	}
	return &s, nil
}

// ListActive returns the bookable services.
func (r *Repository) ListActive(ctx context.Context) ([]Service, error) {
	query := `
		SELECT id, name, estimated_minutes, price_cents, active
		FROM services
		WHERE active = TRUE
		ORDER BY name
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("catalog: list services: %w", err)
	}
	defer rows.Close()

	var out []Service
	for rows.Next() {
		var s Service
		if err := rows.Scan(&s.ID, &s.Name, &s.EstimatedMinutes, &s.PriceCents, &s.Active); err != nil {
			return nil, fmt.Errorf("catalog: scan service: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
