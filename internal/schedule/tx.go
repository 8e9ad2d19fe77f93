package schedule

import (
	"context"
	"time"
)

// Transaction-scoped entry points for services that make capacity
// decisions and writes inside one transaction (booking insert, approval
// re-check). Callers must hold the date lock before relying on the
// resolved snapshot.

// LockDateTx takes the per-date advisory lock inside the caller's
// transaction.
func LockDateTx(ctx context.Context, q Querier, date time.Time) error {
	return lockDate(ctx, q, date)
}

// ResolveDayTx resolves a DaySchedule using the caller's transaction.
func ResolveDayTx(ctx context.Context, q Querier, date time.Time) (DaySchedule, error) {
	return resolveDay(ctx, q, date)
}

// ListBookedSlotsTx returns the pending/approved time slots for a date
// using the caller's transaction.
func ListBookedSlotsTx(ctx context.Context, q Querier, date time.Time) ([]string, error) {
	return listBookedSlots(ctx, q, date)
}
