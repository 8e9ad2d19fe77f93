package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the subset of pgxpool.Pool the schedule repositories need.
// pgxmock satisfies it for tests.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Querier is the read/write subset shared by the pool and pgx.Tx, so the
// same helpers run inside and outside transactions.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// WeeklyRow is the baseline schedule for one weekday (0=Sunday..6=Saturday).
type WeeklyRow struct {
	Weekday   int     `json:"weekday"`
	IsOpen    bool    `json:"is_open"`
	OpenTime  *string `json:"open_time"`
	CloseTime *string `json:"close_time"`
	Note      string  `json:"note"`
}

// OverrideRow is the per-date calendar row. Manual rows may carry hour
// overrides; generated rows carry only a capacity cap and never touch
// hours. IsOpen is nil when the row does not override open state.
type OverrideRow struct {
	Date        time.Time `json:"date"`
	IsOpen      *bool     `json:"is_open"`
	OpenTime    *string   `json:"open_time"`
	CloseTime   *string   `json:"close_time"`
	CapacityCap *int      `json:"capacity_cap"`
	IsGenerated bool      `json:"is_generated"`
	Note        string    `json:"note"`
}

// Dentist is one roster row.
type Dentist struct {
	ID               string     `json:"id"`
	Code             string     `json:"code"`
	Name             string     `json:"name"`
	EmploymentStatus string     `json:"employment_status"`
	ContractEndDate  *time.Time `json:"contract_end_date"`
	WorkingDays      [7]bool    `json:"working_days"`
}

// CountsTowardCapacity reports whether the dentist contributes a chair on
// the given date: active, contract not yet ended, and rostered for that
// weekday.
func CountsTowardCapacity(d Dentist, date time.Time) bool {
	if d.EmploymentStatus != "active" {
		return false
	}
	if d.ContractEndDate != nil && d.ContractEndDate.Before(truncateDate(date)) {
		return false
	}
	return d.WorkingDays[int(date.Weekday())]
}

func truncateDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Repository provides persistence for weekly defaults, calendar overrides
// and the dentist roster.
type Repository struct {
	db DB
}

// NewRepository creates a repository backed by a pgx pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("schedule: pgx pool required")
	}
	return &Repository{db: pool}
}

// NewRepositoryWithDB allows injecting a mock database for testing.
func NewRepositoryWithDB(db DB) *Repository {
	return &Repository{db: db}
}

// DB exposes the underlying handle for services that run transactions.
func (r *Repository) DB() DB { return r.db }

// WeeklyForWeekday returns the weekly default row, or nil when none exists
// (treated as closed by the resolver).
func (r *Repository) WeeklyForWeekday(ctx context.Context, weekday int) (*WeeklyRow, error) {
	return weeklyForWeekday(ctx, r.db, weekday)
}

func weeklyForWeekday(ctx context.Context, q Querier, weekday int) (*WeeklyRow, error) {
	query := `
		SELECT weekday, is_open, open_time, close_time, COALESCE(note, '')
		FROM weekly_schedule
		WHERE weekday = $1
	`
	var row WeeklyRow
	err := q.QueryRow(ctx, query, weekday).Scan(&row.Weekday, &row.IsOpen, &row.OpenTime, &row.CloseTime, &row.Note)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("schedule: select weekly row: %w", err)
	}
	return &row, nil
}

// ListWeekly returns all seven weekday rows that exist, ordered by weekday.
func (r *Repository) ListWeekly(ctx context.Context) ([]WeeklyRow, error) {
	query := `
		SELECT weekday, is_open, open_time, close_time, COALESCE(note, '')
		FROM weekly_schedule
		ORDER BY weekday
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("schedule: list weekly rows: %w", err)
	}
	defer rows.Close()

	var out []WeeklyRow
	for rows.Next() {
		var row WeeklyRow
		if err := rows.Scan(&row.Weekday, &row.IsOpen, &row.OpenTime, &row.CloseTime, &row.Note); err != nil {
			return nil, fmt.Errorf("schedule: scan weekly row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// UpsertWeekly writes one weekday's default hours.
func (r *Repository) UpsertWeekly(ctx context.Context, row WeeklyRow) error {
	query := `
		INSERT INTO weekly_schedule (weekday, is_open, open_time, close_time, note)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (weekday) DO UPDATE
		SET is_open = EXCLUDED.is_open,
		    open_time = EXCLUDED.open_time,
		    close_time = EXCLUDED.close_time,
		    note = EXCLUDED.note
	`
	if _, err := r.db.Exec(ctx, query, row.Weekday, row.IsOpen, row.OpenTime, row.CloseTime, row.Note); err != nil {
		return fmt.Errorf("schedule: upsert weekly row: %w", err)
	}
	return nil
}

// OverrideForDate returns the calendar override row for a date, nil when
// none exists.
func (r *Repository) OverrideForDate(ctx context.Context, date time.Time) (*OverrideRow, error) {
	return overrideForDate(ctx, r.db, date)
}

func overrideForDate(ctx context.Context, q Querier, date time.Time) (*OverrideRow, error) {
	query := `
		SELECT date, is_open, open_time, close_time, capacity_cap, is_generated, COALESCE(note, '')
		FROM calendar_overrides
		WHERE date = $1
	`
	var row OverrideRow
	err := q.QueryRow(ctx, query, truncateDate(date)).Scan(
		&row.Date, &row.IsOpen, &row.OpenTime, &row.CloseTime,
		&row.CapacityCap, &row.IsGenerated, &row.Note,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("schedule: select override row: %w", err)
	}
	return &row, nil
}

// CountAvailableDentists counts roster rows satisfying the capacity
// predicate for the date. The predicate is mirrored in SQL so the count
// stays a single round trip.
func (r *Repository) CountAvailableDentists(ctx context.Context, date time.Time) (int, error) {
	return countAvailableDentists(ctx, r.db, date)
}

func countAvailableDentists(ctx context.Context, q Querier, date time.Time) (int, error) {
	day := truncateDate(date)
	query := `
		SELECT COUNT(*)
		FROM dentists
		WHERE employment_status = 'active'
		  AND (contract_end_date IS NULL OR contract_end_date >= $1)
		  AND working_days[$2] = TRUE
	`
	var count int
	// Postgres arrays are 1-based; weekday 0 (Sunday) lives at index 1.
	if err := q.QueryRow(ctx, query, day, int(day.Weekday())+1).Scan(&count); err != nil {
		return 0, fmt.Errorf("schedule: count dentists: %w", err)
	}
	return count, nil
}

// ListDentists returns the full roster.
func (r *Repository) ListDentists(ctx context.Context) ([]Dentist, error) {
	query := `
		SELECT id, code, name, employment_status, contract_end_date, working_days
		FROM dentists
		ORDER BY code
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("schedule: list dentists: %w", err)
	}
	defer rows.Close()

	var out []Dentist
	for rows.Next() {
		var d Dentist
		var working []bool
		if err := rows.Scan(&d.ID, &d.Code, &d.Name, &d.EmploymentStatus, &d.ContractEndDate, &working); err != nil {
			return nil, fmt.Errorf("schedule: scan dentist: %w", err)
		}
		copy(d.WorkingDays[:], working)
		out = append(out, d)
	}
	return out, rows.Err()
}

// UpdateDentistSchedule updates a dentist's per-weekday working flags and
// employment fields.
func (r *Repository) UpdateDentistSchedule(ctx context.Context, id string, status string, contractEnd *time.Time, workingDays [7]bool) error {
	query := `
		UPDATE dentists
		SET employment_status = $2, contract_end_date = $3, working_days = $4
		WHERE id = $1
	`
	ct, err := r.db.Exec(ctx, query, id, status, contractEnd, workingDays[:])
	if err != nil {
		return fmt.Errorf("schedule: update dentist schedule: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrDentistNotFound
	}
	return nil
}

// ErrDentistNotFound is returned when a roster update targets a missing row.
var ErrDentistNotFound = errors.New("schedule: dentist not found")
