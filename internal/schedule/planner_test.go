package schedule

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
)

func newMockPlanner(t *testing.T) (pgxmock.PgxPoolIface, *Planner) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock, NewPlanner(NewRepositoryWithDB(mock), nil)
}

func TestSetDayCapacityOutsideWindow(t *testing.T) {
	_, planner := newMockPlanner(t)

	_, err := planner.SetDayCapacity(context.Background(), monday.AddDate(0, 0, 14), intPtr(2), "", monday, 14)
	if !errors.Is(err, ErrOutsideEditWindow) {
		t.Fatalf("err = %v, want ErrOutsideEditWindow", err)
	}

	_, err = planner.SetDayCapacity(context.Background(), monday.AddDate(0, 0, -1), intPtr(2), "", monday, 14)
	if !errors.Is(err, ErrOutsideEditWindow) {
		t.Fatalf("past date: err = %v, want ErrOutsideEditWindow", err)
	}
}

func TestSetDayCapacityLastWindowDayAllowed(t *testing.T) {
	mock, planner := newMockPlanner(t)
	day := monday.AddDate(0, 0, 13)

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WithArgs("clinic-day:" + day.Format("2006-01-02")).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery("FROM calendar_overrides").WithArgs(day).WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("INSERT INTO calendar_overrides").WithArgs(day, intPtr(2), "maintenance").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("FROM appointments").WithArgs(day).
		WillReturnRows(pgxmock.NewRows([]string{"time_slot"}))
	mock.ExpectCommit()

	result, err := planner.SetDayCapacity(context.Background(), day, intPtr(2), "maintenance", monday, 14)
	if err != nil {
		t.Fatalf("SetDayCapacity: %v", err)
	}
	if result.Warning != "" {
		t.Fatalf("unexpected warning %q", result.Warning)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSetDayCapacityWarnsBelowPeakWithoutCancelling(t *testing.T) {
	mock, planner := newMockPlanner(t)

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WithArgs("clinic-day:" + monday.Format("2006-01-02")).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery("FROM calendar_overrides").WithArgs(monday).WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("INSERT INTO calendar_overrides").WithArgs(monday, intPtr(1), "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("FROM appointments").WithArgs(monday).WillReturnRows(
		pgxmock.NewRows([]string{"time_slot"}).AddRow("09:00-10:00").AddRow("09:30-10:00"))
	mock.ExpectCommit()

	result, err := planner.SetDayCapacity(context.Background(), monday, intPtr(1), "", monday, 14)
	if err != nil {
		t.Fatalf("SetDayCapacity: %v", err)
	}
	if result.Warning == "" {
		t.Fatal("expected a warning when the new cap sits below the booked peak")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSetDayCapacityManualRowKeepsHours(t *testing.T) {
	mock, planner := newMockPlanner(t)

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WithArgs("clinic-day:" + monday.Format("2006-01-02")).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery("FROM calendar_overrides").WithArgs(monday).WillReturnRows(
		pgxmock.NewRows(overrideColumns).AddRow(monday, boolPtr(true), strPtr("10:00"), strPtr("14:00"), nil, false, "special hours"))
	// Manual row: only the cap column changes.
	mock.ExpectExec("UPDATE calendar_overrides SET capacity_cap").WithArgs(monday, intPtr(2)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery("FROM appointments").WithArgs(monday).
		WillReturnRows(pgxmock.NewRows([]string{"time_slot"}))
	mock.ExpectCommit()

	if _, err := planner.SetDayCapacity(context.Background(), monday, intPtr(2), "ignored", monday, 14); err != nil {
		t.Fatalf("SetDayCapacity: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSetDayCapacityClearRemovesGeneratedRow(t *testing.T) {
	mock, planner := newMockPlanner(t)

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WithArgs("clinic-day:" + monday.Format("2006-01-02")).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery("FROM calendar_overrides").WithArgs(monday).WillReturnRows(
		pgxmock.NewRows(overrideColumns).AddRow(monday, nil, nil, nil, intPtr(1), true, ""))
	mock.ExpectExec("DELETE FROM calendar_overrides").WithArgs(monday).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	if _, err := planner.SetDayCapacity(context.Background(), monday, nil, "", monday, 14); err != nil {
		t.Fatalf("SetDayCapacity: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSetDayCapacityRejectsNegativeCap(t *testing.T) {
	_, planner := newMockPlanner(t)
	if _, err := planner.SetDayCapacity(context.Background(), monday, intPtr(-1), "", monday, 14); err == nil {
		t.Fatal("negative cap must be rejected")
	}
}
