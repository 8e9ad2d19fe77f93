package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
)

var (
	overrideColumns = []string{"date", "is_open", "open_time", "close_time", "capacity_cap", "is_generated", "note"}
	weeklyColumns   = []string{"weekday", "is_open", "open_time", "close_time", "note"}
)

// monday is 2025-03-10, a Monday.
var monday = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func newMockResolver(t *testing.T) (pgxmock.PgxPoolIface, *Resolver) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock, NewResolver(NewRepositoryWithDB(mock))
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }
func boolPtr(b bool) *bool    { return &b }

func TestResolveWeeklyDefault(t *testing.T) {
	mock, resolver := newMockResolver(t)

	mock.ExpectQuery("FROM calendar_overrides").WithArgs(monday).WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("FROM weekly_schedule").WithArgs(1).WillReturnRows(
		pgxmock.NewRows(weeklyColumns).AddRow(1, true, strPtr("09:00"), strPtr("17:00"), ""))
	mock.ExpectQuery("FROM dentists").WithArgs(monday, 2).WillReturnRows(
		pgxmock.NewRows([]string{"count"}).AddRow(2))

	day, err := resolver.Resolve(context.Background(), monday)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !day.IsOpen || day.Source != SourceWeekly {
		t.Fatalf("day = %+v, want open weekly", day)
	}
	if day.OpenTime != 540 || day.CloseTime != 1020 {
		t.Fatalf("hours = %d-%d, want 540-1020", day.OpenTime, day.CloseTime)
	}
	if day.EffectiveCapacity != 2 {
		t.Fatalf("EffectiveCapacity = %d, want 2", day.EffectiveCapacity)
	}
	if got := len(day.Grid()); got != 16 {
		t.Fatalf("grid blocks = %d, want 16", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestResolveManualClosureWinsOverWeekly(t *testing.T) {
	mock, resolver := newMockResolver(t)

	mock.ExpectQuery("FROM calendar_overrides").WithArgs(monday).WillReturnRows(
		pgxmock.NewRows(overrideColumns).AddRow(monday, boolPtr(false), nil, nil, nil, false, "Holiday"))
	mock.ExpectQuery("FROM dentists").WithArgs(monday, 2).WillReturnRows(
		pgxmock.NewRows([]string{"count"}).AddRow(3))

	day, err := resolver.Resolve(context.Background(), monday)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if day.IsOpen {
		t.Fatal("manual closure must win over the weekly default")
	}
	if day.Source != SourceManual {
		t.Fatalf("Source = %s, want manual", day.Source)
	}
	if day.EffectiveCapacity != 0 {
		t.Fatalf("EffectiveCapacity = %d, want 0 when closed", day.EffectiveCapacity)
	}
	if day.Note != "Holiday" {
		t.Fatalf("Note = %q", day.Note)
	}
	if day.Grid() != nil {
		t.Fatal("closed day must have an empty grid")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestResolveGeneratedCapLowersCapacity(t *testing.T) {
	mock, resolver := newMockResolver(t)

	// Generated planner row: no open-state override, cap only.
	mock.ExpectQuery("FROM calendar_overrides").WithArgs(monday).WillReturnRows(
		pgxmock.NewRows(overrideColumns).AddRow(monday, nil, nil, nil, intPtr(1), true, "maintenance"))
	mock.ExpectQuery("FROM weekly_schedule").WithArgs(1).WillReturnRows(
		pgxmock.NewRows(weeklyColumns).AddRow(1, true, strPtr("08:00"), strPtr("12:00"), ""))
	mock.ExpectQuery("FROM dentists").WithArgs(monday, 2).WillReturnRows(
		pgxmock.NewRows([]string{"count"}).AddRow(3))

	day, err := resolver.Resolve(context.Background(), monday)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !day.IsOpen || day.Source != SourceGenerated {
		t.Fatalf("day = %+v, want open generated", day)
	}
	if day.EffectiveCapacity != 1 {
		t.Fatalf("EffectiveCapacity = %d, want 1", day.EffectiveCapacity)
	}
	if day.OpenTime != 480 || day.CloseTime != 720 {
		t.Fatalf("hours = %d-%d, weekly hours must survive a cap-only row", day.OpenTime, day.CloseTime)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestResolveCapCannotRaiseCapacity(t *testing.T) {
	mock, resolver := newMockResolver(t)

	mock.ExpectQuery("FROM calendar_overrides").WithArgs(monday).WillReturnRows(
		pgxmock.NewRows(overrideColumns).AddRow(monday, nil, nil, nil, intPtr(5), true, ""))
	mock.ExpectQuery("FROM weekly_schedule").WithArgs(1).WillReturnRows(
		pgxmock.NewRows(weeklyColumns).AddRow(1, true, strPtr("08:00"), strPtr("12:00"), ""))
	mock.ExpectQuery("FROM dentists").WithArgs(monday, 2).WillReturnRows(
		pgxmock.NewRows([]string{"count"}).AddRow(2))

	day, err := resolver.Resolve(context.Background(), monday)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if day.EffectiveCapacity != 2 {
		t.Fatalf("EffectiveCapacity = %d, a cap must never raise the dentist ceiling", day.EffectiveCapacity)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestResolveNoDataMeansClosed(t *testing.T) {
	mock, resolver := newMockResolver(t)

	mock.ExpectQuery("FROM calendar_overrides").WithArgs(monday).WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("FROM weekly_schedule").WithArgs(1).WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("FROM dentists").WithArgs(monday, 2).WillReturnRows(
		pgxmock.NewRows([]string{"count"}).AddRow(0))

	day, err := resolver.Resolve(context.Background(), monday)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if day.IsOpen || day.Source != SourceNone || day.EffectiveCapacity != 0 {
		t.Fatalf("day = %+v, want closed with no source", day)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestResolveOpenWithoutHoursDegradesToClosed(t *testing.T) {
	mock, resolver := newMockResolver(t)

	mock.ExpectQuery("FROM calendar_overrides").WithArgs(monday).WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("FROM weekly_schedule").WithArgs(1).WillReturnRows(
		pgxmock.NewRows(weeklyColumns).AddRow(1, true, nil, nil, ""))
	mock.ExpectQuery("FROM dentists").WithArgs(monday, 2).WillReturnRows(
		pgxmock.NewRows([]string{"count"}).AddRow(2))

	day, err := resolver.Resolve(context.Background(), monday)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if day.IsOpen {
		t.Fatal("open row without hours must resolve as closed")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCountsTowardCapacity(t *testing.T) {
	contractEnd := monday.AddDate(0, 0, -1)
	base := Dentist{
		EmploymentStatus: "active",
		WorkingDays:      [7]bool{false, true, false, false, false, false, false}, // Mondays only
	}

	if !CountsTowardCapacity(base, monday) {
		t.Fatal("active rostered dentist must count")
	}

	inactive := base
	inactive.EmploymentStatus = "inactive"
	if CountsTowardCapacity(inactive, monday) {
		t.Fatal("inactive dentist must not count")
	}

	ended := base
	ended.ContractEndDate = &contractEnd
	if CountsTowardCapacity(ended, monday) {
		t.Fatal("expired contract must not count")
	}

	lastDay := base
	lastDayEnd := monday
	lastDay.ContractEndDate = &lastDayEnd
	if !CountsTowardCapacity(lastDay, monday) {
		t.Fatal("contract ending today still counts today")
	}

	offDay := base
	offDay.WorkingDays = [7]bool{}
	if CountsTowardCapacity(offDay, monday) {
		t.Fatal("dentist not rostered for the weekday must not count")
	}
}
