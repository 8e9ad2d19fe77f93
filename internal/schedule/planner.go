package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smilepoint/clinic-server/pkg/logging"
)

// ErrOutsideEditWindow is returned for capacity edits beyond the rolling
// window.
var ErrOutsideEditWindow = errors.New("schedule: date outside the capacity edit window")

// Planner applies admin capacity-cap edits to single dates. It writes
// generated override rows and never converts a manual row's semantics.
type Planner struct {
	repo   *Repository
	logger *logging.Logger
}

// NewPlanner creates a capacity planner.
func NewPlanner(repo *Repository, logger *logging.Logger) *Planner {
	if repo == nil {
		panic("schedule: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Planner{repo: repo, logger: logger}
}

// PlanResult reports the outcome of a capacity edit. Warning is set when
// the new cap sits below the current booking peak; the write still
// succeeded (warn, don't destroy).
type PlanResult struct {
	Warning string
}

// SetDayCapacity sets or clears the capacity cap for one date.
// editWindowDays bounds the rolling window starting today; a 14-day
// window allows [today, today+13].
func (p *Planner) SetDayCapacity(ctx context.Context, date time.Time, capPtr *int, note string, now time.Time, editWindowDays int) (PlanResult, error) {
	day := truncateDate(date)
	today := truncateDate(now)
	if day.Before(today) || day.After(today.AddDate(0, 0, editWindowDays-1)) {
		return PlanResult{}, ErrOutsideEditWindow
	}
	if capPtr != nil && *capPtr < 0 {
		return PlanResult{}, fmt.Errorf("schedule: capacity cap must not be negative")
	}

	tx, err := p.repo.db.Begin(ctx)
	if err != nil {
		return PlanResult{}, fmt.Errorf("schedule: begin capacity edit: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockDate(ctx, tx, day); err != nil {
		return PlanResult{}, err
	}

	existing, err := overrideForDate(ctx, tx, day)
	if err != nil {
		return PlanResult{}, err
	}

	switch {
	case existing != nil && !existing.IsGenerated:
		// Manual override present: touch only the cap, never hours or the
		// human-entered note.
		if _, err := tx.Exec(ctx,
			`UPDATE calendar_overrides SET capacity_cap = $2 WHERE date = $1`,
			day, capPtr,
		); err != nil {
			return PlanResult{}, fmt.Errorf("schedule: update manual override cap: %w", err)
		}
	case capPtr == nil:
		// Clearing the cap removes a generated row entirely; it carried
		// nothing else.
		if existing != nil {
			if _, err := tx.Exec(ctx, `DELETE FROM calendar_overrides WHERE date = $1 AND is_generated = TRUE`, day); err != nil {
				return PlanResult{}, fmt.Errorf("schedule: delete generated row: %w", err)
			}
		}
	default:
		query := `
			INSERT INTO calendar_overrides (date, capacity_cap, is_generated, note)
			VALUES ($1, $2, TRUE, $3)
			ON CONFLICT (date) DO UPDATE
			SET capacity_cap = EXCLUDED.capacity_cap,
			    note = EXCLUDED.note
			WHERE calendar_overrides.is_generated = TRUE
		`
		if _, err := tx.Exec(ctx, query, day, capPtr, note); err != nil {
			return PlanResult{}, fmt.Errorf("schedule: upsert generated row: %w", err)
		}
	}

	var result PlanResult
	if capPtr != nil {
		slots, err := listBookedSlots(ctx, tx, day)
		if err != nil {
			return PlanResult{}, err
		}
		peak := AccumulateUsage(slots, p.logger).Peak()
		if peak > *capPtr {
			result.Warning = fmt.Sprintf(
				"existing bookings already peak at %d concurrent appointments, above the new cap of %d; no appointments were cancelled",
				peak, *capPtr,
			)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return PlanResult{}, fmt.Errorf("schedule: commit capacity edit: %w", err)
	}

	p.logger.Info("capacity cap updated", "date", day.Format("2006-01-02"), "warning", result.Warning != "")
	return result, nil
}

// lockDate serializes all capacity-sensitive writes for one calendar date
// inside the current transaction. Bookings, approvals, closures and
// capacity edits all take the same lock, which closes the
// check-then-insert race.
func lockDate(ctx context.Context, q Querier, date time.Time) error {
	if _, err := q.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtext($1))`,
		"clinic-day:"+date.Format("2006-01-02"),
	); err != nil {
		return fmt.Errorf("schedule: acquire date lock: %w", err)
	}
	return nil
}

// listBookedSlots returns the raw time_slot strings of every capacity-
// occupying appointment on a date.
func listBookedSlots(ctx context.Context, q Querier, date time.Time) ([]string, error) {
	rows, err := q.Query(ctx,
		`SELECT time_slot FROM appointments WHERE date = $1 AND status IN ('pending', 'approved')`,
		truncateDate(date),
	)
	if err != nil {
		return nil, fmt.Errorf("schedule: list booked slots: %w", err)
	}
	defer rows.Close()

	var slots []string
	for rows.Next() {
		var slot string
		if err := rows.Scan(&slot); err != nil {
			return nil, fmt.Errorf("schedule: scan booked slot: %w", err)
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}
