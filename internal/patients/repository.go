// Package patients resolves user accounts to patient records and their
// HMO enrollments for booking validation.
package patients

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Sentinel errors surfaced to the booking transaction.
var (
	ErrNoLinkedPatient = errors.New("patients: user has no linked patient record")
	ErrHMONotFound     = errors.New("patients: hmo record not found")
)

// Patient is the clinic-side identity for a user account.
type Patient struct {
	ID        string  `json:"id"`
	UserID    *string `json:"user_id"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Email     string  `json:"email"`
	Phone     string  `json:"phone"`
}

// HMO is one enrollment belonging to a patient. Effective and expiry
// dates are both optional; an unset bound does not constrain validity.
type HMO struct {
	ID            string     `json:"id"`
	PatientID     string     `json:"patient_id"`
	Provider      string     `json:"provider"`
	MemberNumber  string     `json:"member_number"`
	EffectiveDate *time.Time `json:"effective_date"`
	ExpiryDate    *time.Time `json:"expiry_date"`
}

// CoversDate reports whether the enrollment is valid on the given date.
func (h HMO) CoversDate(date time.Time) bool {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	if h.EffectiveDate != nil && h.EffectiveDate.After(day) {
		return false
	}
	if h.ExpiryDate != nil && h.ExpiryDate.Before(day) {
		return false
	}
	return true
}

// DB is the query subset the repository needs; pgxmock satisfies it.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides patient and HMO lookups.
type Repository struct {
	db DB
}

// NewRepository creates a repository backed by a pgx pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("patients: pgx pool required")
	}
	return &Repository{db: pool}
}

// NewRepositoryWithDB allows injecting a mock database for testing.
func NewRepositoryWithDB(db DB) *Repository {
	return &Repository{db: db}
}

// PatientForUser resolves the single patient linked to a user account.
func (r *Repository) PatientForUser(ctx context.Context, userID string) (*Patient, error) {
	query := `
		SELECT id, user_id, first_name, last_name, COALESCE(email, ''), COALESCE(phone, '')
		FROM patients
		WHERE user_id = $1
	`
	var p Patient
	err := r.db.QueryRow(ctx, query, userID).Scan(&p.ID, &p.UserID, &p.FirstName, &p.LastName, &p.Email, &p.Phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoLinkedPatient
	}
	if err != nil {
		return nil, fmt.Errorf("patients: select by user: %w", err)
	}
	return &p, nil
}

// GetHMO loads one HMO enrollment.
func (r *Repository) GetHMO(ctx context.Context, id string) (*HMO, error) {
	query := `
		SELECT id, patient_id, provider, COALESCE(member_number, ''), effective_date, expiry_date
		FROM patient_hmos
		WHERE id = $1
	`
	var h HMO
	err := r.db.QueryRow(ctx, query, id).Scan(&h.ID, &h.PatientID, &h.Provider, &h.MemberNumber, &h.EffectiveDate, &h.ExpiryDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrHMONotFound
	}
	if err != nil {
		return nil, fmt.Errorf("patients: select hmo: %w", err)
	}
	return &h, nil
}

// ListHMOs returns all enrollments for a patient.
func (r *Repository) ListHMOs(ctx context.Context, patientID string) ([]HMO, error) {
	query := `
		SELECT id, patient_id, provider, COALESCE(member_number, ''), effective_date, expiry_date
		FROM patient_hmos
		WHERE patient_id = $1
		ORDER BY provider
	`
	rows, err := r.db.Query(ctx, query, patientID)
	if err != nil {
		return nil, fmt.Errorf("patients: list hmos: %w", err)
	}
	defer rows.Close()

	var out []HMO
	for rows.Next() {
		var h HMO
		if err := rows.Scan(&h.ID, &h.PatientID, &h.Provider, &h.MemberNumber, &h.EffectiveDate, &h.ExpiryDate); err != nil {
			return nil, fmt.Errorf("patients: scan hmo: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
