package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when an appointment id or reference does not
// exist.
var ErrNotFound = errors.New("appointments: not found")

// uniqueViolation is the Postgres error code backing the reference-code
// constraint.
const uniqueViolation = "23505"

// DB is the pool subset the repository needs; pgxmock satisfies it.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Querier is the subset shared by the pool and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository provides appointment persistence.
type Repository struct {
	db DB
}

// NewRepository creates a repository backed by a pgx pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	return &Repository{db: pool}
}

// NewRepositoryWithDB allows injecting a mock database for testing.
func NewRepositoryWithDB(db DB) *Repository {
	return &Repository{db: db}
}

// DB exposes the underlying handle for the transactional service paths.
func (r *Repository) DB() DB { return r.db }

const appointmentColumns = `
	id, patient_id, service_id, patient_hmo_id, date, time_slot,
	reference_code, status, payment_method, payment_status,
	COALESCE(notes, ''), reminded_at, canceled_at, created_at
`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID, &a.PatientID, &a.ServiceID, &a.PatientHMOID, &a.Date, &a.TimeSlot,
		&a.ReferenceCode, &a.Status, &a.PaymentMethod, &a.PaymentStatus,
		&a.Notes, &a.RemindedAt, &a.CanceledAt, &a.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("appointments: scan row: %w", err)
	}
	return &a, nil
}

// GetByID loads one appointment.
func (r *Repository) GetByID(ctx context.Context, id string) (*Appointment, error) {
	return getByID(ctx, r.db, id, false)
}

func getByID(ctx context.Context, q Querier, id string, forUpdate bool) (*Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	return scanAppointment(q.QueryRow(ctx, query, id))
}

// GetByReference loads one appointment by its booking reference,
// matching case-insensitively.
func (r *Repository) GetByReference(ctx context.Context, code string) (*Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE reference_code = UPPER($1)`
	return scanAppointment(r.db.QueryRow(ctx, query, code))
}

// ListForUser returns the appointments belonging to a user's linked
// patient, newest first.
func (r *Repository) ListForUser(ctx context.Context, userID string) ([]Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE patient_id = (SELECT id FROM patients WHERE user_id = $1)
		ORDER BY date DESC, time_slot DESC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("appointments: list for user: %w", err)
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// ListForDate returns a date's appointments for staff review, optionally
// filtered by status.
func (r *Repository) ListForDate(ctx context.Context, date time.Time, status string) ([]Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE date = $1 AND ($2 = '' OR status = $2)
		ORDER BY time_slot
	`
	rows, err := r.db.Query(ctx, query, date, status)
	if err != nil {
		return nil, fmt.Errorf("appointments: list for date: %w", err)
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// referenceExistsTx checks a candidate code inside the booking
// transaction before insert; the unique index remains the backstop.
func referenceExistsTx(ctx context.Context, q Querier, code string) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE reference_code = $1)`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("appointments: check reference: %w", err)
	}
	return exists, nil
}

// insertTx writes the new appointment row inside the booking transaction.
func insertTx(ctx context.Context, q Querier, a *Appointment) error {
	query := `
		INSERT INTO appointments (
			id, patient_id, service_id, patient_hmo_id, date, time_slot,
			reference_code, status, payment_method, payment_status, notes
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at
	`
	err := q.QueryRow(ctx, query,
		a.ID, a.PatientID, a.ServiceID, a.PatientHMOID, a.Date, a.TimeSlot,
		a.ReferenceCode, a.Status, a.PaymentMethod, a.PaymentStatus, a.Notes,
	).Scan(&a.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return errReferenceCollision
		}
		return fmt.Errorf("appointments: insert: %w", err)
	}
	return nil
}

var errReferenceCollision = errors.New("appointments: reference code collision")

// RejectPending moves a pending appointment to rejected, appending the
// reason to any existing notes.
func (r *Repository) RejectPending(ctx context.Context, id, reason string) error {
	ct, err := r.db.Exec(ctx, `
		UPDATE appointments
		SET status = 'rejected',
		    notes = CASE WHEN notes IS NULL OR notes = '' THEN $2 ELSE notes || E'\n' || $2 END
		WHERE id = $1 AND status = 'pending'
	`, id, reason)
	if err != nil {
		return fmt.Errorf("appointments: reject: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return r.transitionFailure(ctx, id)
	}
	return nil
}

// CancelPending cancels a pending appointment on behalf of its owning
// patient.
func (r *Repository) CancelPending(ctx context.Context, id, userID string, at time.Time) error {
	ct, err := r.db.Exec(ctx, `
		UPDATE appointments
		SET status = 'cancelled', canceled_at = $3
		WHERE id = $1
		  AND status = 'pending'
		  AND patient_id = (SELECT id FROM patients WHERE user_id = $2)
	`, id, userID, at)
	if err != nil {
		return fmt.Errorf("appointments: cancel: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return r.cancelFailure(ctx, id, userID)
	}
	return nil
}

// transitionFailure distinguishes "missing" from "already processed"
// after a zero-row conditional update.
func (r *Repository) transitionFailure(ctx context.Context, id string) error {
	existing, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return reject(ReasonAlreadyProcessed, "appointment %s was already processed", existing.ReferenceCode)
}

func (r *Repository) cancelFailure(ctx context.Context, id, userID string) error {
	existing, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	var ownerID string
	err = r.db.QueryRow(ctx, `SELECT id FROM patients WHERE user_id = $1`, userID).Scan(&ownerID)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && ownerID != existing.PatientID) {
		return reject(ReasonForbidden, "appointment does not belong to this account")
	}
	if err != nil {
		return fmt.Errorf("appointments: resolve owner: %w", err)
	}
	return reject(ReasonAlreadyProcessed, "appointment %s was already processed", existing.ReferenceCode)
}
