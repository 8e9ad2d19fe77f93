// Package notify records user-facing notifications in the database and
// delivers the targeted ones by email. Writes happen inside the caller's
// transaction so a notification can never outlive a rolled-back booking
// or closure.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smilepoint/clinic-server/internal/appointments"
)

// Notification kinds.
const (
	KindClosureBroadcast  = "closure_broadcast"
	KindClosureTargeted   = "closure_targeted"
	KindAppointmentBooked = "appointment_booked"
	KindAppointmentStatus = "appointment_status"
)

// Notification is one stored notice. A nil UserID marks a broadcast row
// shown to everyone; targeted rows are additionally emailed.
type Notification struct {
	ID          uuid.UUID  `json:"id"`
	Kind        string     `json:"kind"`
	Date        *time.Time `json:"-"`
	UserID      *string    `json:"-"`
	Message     string     `json:"message"`
	CreatedAt   time.Time  `json:"created_at"`
	DeliveredAt *time.Time `json:"-"`
}

// PendingEmail is a targeted notification joined with the recipient's
// patient record for delivery.
type PendingEmail struct {
	ID      uuid.UUID
	Kind    string
	Message string
	Email   string
	ToName  string
}

// DB is the pool subset the store needs; pgxmock satisfies it.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store persists notifications.
type Store struct {
	db DB
}

// NewStore creates a store backed by a pgx pool.
func NewStore(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("notify: pgx pool required")
	}
	return &Store{db: pool}
}

// NewStoreWithDB allows injecting a mock database for testing.
func NewStoreWithDB(db DB) *Store {
	return &Store{db: db}
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertNotification(ctx context.Context, q execer, kind string, date *time.Time, userID *string, message string) error {
	query := `
		INSERT INTO notifications (id, kind, date, user_id, message)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := q.Exec(ctx, query, uuid.New(), kind, date, userID, message); err != nil {
		return fmt.Errorf("notify: insert notification: %w", err)
	}
	return nil
}

// BroadcastClosureTx records the all-users closure notice inside the
// closure cascade's transaction.
func (s *Store) BroadcastClosureTx(ctx context.Context, tx pgx.Tx, date time.Time, message string) error {
	text := fmt.Sprintf("The clinic is closed on %s.", date.Format("2006-01-02"))
	if message != "" {
		text = fmt.Sprintf("The clinic is closed on %s: %s", date.Format("2006-01-02"), message)
	}
	return insertNotification(ctx, tx, KindClosureBroadcast, &date, nil, text)
}

// NotifyUsersClosureTx records a targeted notice for each patient whose
// appointment the closure rejected.
func (s *Store) NotifyUsersClosureTx(ctx context.Context, tx pgx.Tx, date time.Time, message string, userIDs []string) error {
	text := fmt.Sprintf("Your appointment on %s was cancelled because the clinic is closed.", date.Format("2006-01-02"))
	if message != "" {
		text += " Reason: " + message
	}
	for _, userID := range userIDs {
		id := userID
		if err := insertNotification(ctx, tx, KindClosureTargeted, &date, &id, text); err != nil {
			return err
		}
	}
	return nil
}

// AppointmentBookedTx records the booking confirmation inside the
// booking transaction.
func (s *Store) AppointmentBookedTx(ctx context.Context, q appointments.Querier, a *appointments.Appointment) error {
	userID, err := userForPatient(ctx, q, a.PatientID)
	if err != nil {
		return err
	}
	date := a.Date
	text := fmt.Sprintf("Your appointment request %s for %s at %s was received and is awaiting confirmation.",
		a.ReferenceCode, a.DateString(), a.TimeSlot)
	return insertNotification(ctx, q, KindAppointmentBooked, &date, userID, text)
}

// AppointmentStatusTx records a lifecycle notice (approved, rejected).
func (s *Store) AppointmentStatusTx(ctx context.Context, q appointments.Querier, a *appointments.Appointment, message string) error {
	userID, err := userForPatient(ctx, q, a.PatientID)
	if err != nil {
		return err
	}
	date := a.Date
	return insertNotification(ctx, q, KindAppointmentStatus, &date, userID, message)
}

// userForPatient resolves a patient's user account; unlinked patients
// yield a broadcast-invisible row with no recipient.
func userForPatient(ctx context.Context, q execer, patientID string) (*string, error) {
	var userID *string
	err := q.QueryRow(ctx, `SELECT user_id FROM patients WHERE id = $1`, patientID).Scan(&userID)
	if err != nil {
		return nil, fmt.Errorf("notify: resolve patient user: %w", err)
	}
	return userID, nil
}

// ListForUser returns the user's feed: their targeted notices plus
// broadcasts, newest first. A dated broadcast is effective until the end
// of its date and drops out of the feed afterwards; targeted rows stay.
func (s *Store) ListForUser(ctx context.Context, userID string, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, kind, date, user_id, message, created_at, delivered_at
		FROM notifications
		WHERE user_id = $1
		   OR (user_id IS NULL AND (date IS NULL OR date >= CURRENT_DATE))
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("notify: list for user: %w", err)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.Kind, &n.Date, &n.UserID, &n.Message, &n.CreatedAt, &n.DeliveredAt); err != nil {
			return nil, fmt.Errorf("notify: scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// FetchPendingEmails returns undelivered targeted notifications joined
// with the recipient's contact details.
func (s *Store) FetchPendingEmails(ctx context.Context, limit int32) ([]PendingEmail, error) {
	rows, err := s.db.Query(ctx, `
		SELECT n.id, n.kind, n.message, COALESCE(p.email, ''), COALESCE(p.first_name || ' ' || p.last_name, '')
		FROM notifications n
		JOIN patients p ON p.user_id = n.user_id
		WHERE n.user_id IS NOT NULL AND n.delivered_at IS NULL
		ORDER BY n.created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("notify: fetch pending: %w", err)
	}
	defer rows.Close()

	var out []PendingEmail
	for rows.Next() {
		var p PendingEmail
		if err := rows.Scan(&p.ID, &p.Kind, &p.Message, &p.Email, &p.ToName); err != nil {
			return nil, fmt.Errorf("notify: scan pending: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkDelivered stamps one notification, returning false when another
// worker already delivered it.
func (s *Store) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	ct, err := s.db.Exec(ctx, `
		UPDATE notifications
		SET delivered_at = now()
		WHERE id = $1 AND delivered_at IS NULL
	`, id)
	if err != nil {
		return false, fmt.Errorf("notify: mark delivered: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}
