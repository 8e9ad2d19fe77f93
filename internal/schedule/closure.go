package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/smilepoint/clinic-server/internal/observability/metrics"
	"github.com/smilepoint/clinic-server/pkg/logging"
)

// ClosureNotifier writes closure notifications inside the cascade's
// transaction so they commit or roll back with the appointment rejections.
type ClosureNotifier interface {
	BroadcastClosureTx(ctx context.Context, tx pgx.Tx, date time.Time, message string) error
	NotifyUsersClosureTx(ctx context.Context, tx pgx.Tx, date time.Time, message string, userIDs []string) error
}

// Closure executes the closed-date cascade: override upsert, bulk
// rejection of affected bookings and notification emission, all in one
// transaction.
type Closure struct {
	db       DB
	notifier ClosureNotifier
	logger   *logging.Logger
	metrics  *metrics.BookingMetrics
}

// NewClosure creates the closure cascade service.
func NewClosure(db DB, notifier ClosureNotifier, logger *logging.Logger, m *metrics.BookingMetrics) *Closure {
	if db == nil {
		panic("schedule: db required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Closure{db: db, notifier: notifier, logger: logger, metrics: m}
}

// ClosureResult reports how many bookings the cascade auto-rejected.
type ClosureResult struct {
	AutoRejected int
}

// SetClosed closes or reopens a date. Closing rejects every pending and
// approved appointment on the date and emits one broadcast plus targeted
// notifications to every affected patient. Reopening is the mirror write
// with no cascade: previously rejected appointments stay rejected.
func (c *Closure) SetClosed(ctx context.Context, date time.Time, closed bool, message string) (ClosureResult, error) {
	day := truncateDate(date)

	tx, err := c.db.Begin(ctx)
	if err != nil {
		return ClosureResult{}, fmt.Errorf("schedule: begin closure: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockDate(ctx, tx, day); err != nil {
		return ClosureResult{}, err
	}

	existing, err := overrideForDate(ctx, tx, day)
	if err != nil {
		return ClosureResult{}, err
	}

	var result ClosureResult
	if closed {
		result, err = c.close(ctx, tx, day, message, existing)
	} else {
		err = c.reopen(ctx, tx, day, existing)
	}
	if err != nil {
		return ClosureResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return ClosureResult{}, fmt.Errorf("schedule: commit closure: %w", err)
	}

	if closed && c.metrics != nil {
		c.metrics.ObserveClosure(result.AutoRejected)
	}
	c.logger.Info("closure state updated",
		"date", day.Format("2006-01-02"),
		"closed", closed,
		"auto_rejected", result.AutoRejected,
	)
	return result, nil
}

func (c *Closure) close(ctx context.Context, tx pgx.Tx, day time.Time, message string, existing *OverrideRow) (ClosureResult, error) {
	// Closing an already-closed date with the same message is a no-op:
	// nothing left to reject, and re-broadcasting would spam every user.
	if existing != nil && existing.IsOpen != nil && !*existing.IsOpen && existing.Note == message {
		return ClosureResult{}, nil
	}

	query := `
		INSERT INTO calendar_overrides (date, is_open, open_time, close_time, is_generated, note)
		VALUES ($1, FALSE, NULL, NULL, FALSE, $2)
		ON CONFLICT (date) DO UPDATE
		SET is_open = FALSE,
		    open_time = NULL,
		    close_time = NULL,
		    is_generated = FALSE,
		    note = EXCLUDED.note
	`
	if _, err := tx.Exec(ctx, query, day, message); err != nil {
		return ClosureResult{}, fmt.Errorf("schedule: upsert closure override: %w", err)
	}

	// Collect affected bookings before rejecting them so the targeted
	// notifications reach the auto-rejected patients too.
	rows, err := tx.Query(ctx, `
		SELECT DISTINCT p.user_id
		FROM appointments a
		JOIN patients p ON p.id = a.patient_id
		WHERE a.date = $1 AND a.status IN ('pending', 'approved') AND p.user_id IS NOT NULL
	`, day)
	if err != nil {
		return ClosureResult{}, fmt.Errorf("schedule: select affected users: %w", err)
	}
	var userIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return ClosureResult{}, fmt.Errorf("schedule: scan affected user: %w", err)
		}
		userIDs = append(userIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return ClosureResult{}, fmt.Errorf("schedule: iterate affected users: %w", err)
	}

	reason := "Auto-rejected: clinic closed on this date"
	if message != "" {
		reason = fmt.Sprintf("Auto-rejected: clinic closed on this date (%s)", message)
	}
	ct, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = 'rejected',
		    notes = CASE WHEN notes IS NULL OR notes = '' THEN $2 ELSE notes || E'\n' || $2 END
		WHERE date = $1 AND status IN ('pending', 'approved')
	`, day, reason)
	if err != nil {
		return ClosureResult{}, fmt.Errorf("schedule: bulk reject appointments: %w", err)
	}

	if c.notifier != nil {
		if err := c.notifier.BroadcastClosureTx(ctx, tx, day, message); err != nil {
			return ClosureResult{}, err
		}
		if len(userIDs) > 0 {
			if err := c.notifier.NotifyUsersClosureTx(ctx, tx, day, message, userIDs); err != nil {
				return ClosureResult{}, err
			}
		}
	}

	return ClosureResult{AutoRejected: int(ct.RowsAffected())}, nil
}

func (c *Closure) reopen(ctx context.Context, tx pgx.Tx, day time.Time, existing *OverrideRow) error {
	if existing == nil {
		return nil
	}
	if existing.CapacityCap == nil {
		if _, err := tx.Exec(ctx, `DELETE FROM calendar_overrides WHERE date = $1`, day); err != nil {
			return fmt.Errorf("schedule: delete closure override: %w", err)
		}
		return nil
	}
	// Keep the cap, drop the hour override so the weekly default applies
	// again.
	if _, err := tx.Exec(ctx, `
		UPDATE calendar_overrides
		SET is_open = NULL, open_time = NULL, close_time = NULL
		WHERE date = $1
	`, day); err != nil {
		return fmt.Errorf("schedule: clear closure override: %w", err)
	}
	return nil
}
