package schedule

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
)

func newTestHandler(t *testing.T) (pgxmock.PgxPoolIface, *Handler) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	repo := NewRepositoryWithDB(mock)
	return mock, NewHandler(repo, NewResolver(repo), NewPlanner(repo, nil), NewClosure(mock, nil, nil, nil), nil, nil)
}

func TestGetDailySnapshots(t *testing.T) {
	mock, handler := newTestHandler(t)

	// Two days requested: an open Monday and a closed Tuesday.
	mock.ExpectQuery("FROM calendar_overrides").WithArgs(monday).WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("FROM weekly_schedule").WithArgs(1).WillReturnRows(
		pgxmock.NewRows(weeklyColumns).AddRow(1, true, strPtr("09:00"), strPtr("17:00"), ""))
	mock.ExpectQuery("FROM dentists").WithArgs(monday, 2).WillReturnRows(
		pgxmock.NewRows([]string{"count"}).AddRow(2))

	tuesday := monday.AddDate(0, 0, 1)
	mock.ExpectQuery("FROM calendar_overrides").WithArgs(tuesday).WillReturnRows(
		pgxmock.NewRows(overrideColumns).AddRow(tuesday, boolPtr(false), nil, nil, nil, false, "Holiday"))
	mock.ExpectQuery("FROM dentists").WithArgs(tuesday, 3).WillReturnRows(
		pgxmock.NewRows([]string{"count"}).AddRow(2))

	req := httptest.NewRequest(http.MethodGet, "/daily?from=2025-03-10&days=2", nil)
	rec := httptest.NewRecorder()
	handler.CalendarRoutes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var got []dailySnapshot
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("snapshots = %d, want 2", len(got))
	}
	if got[0].IsClosed || got[0].MaxParallel != 2 || got[0].ActiveDentists != 2 {
		t.Fatalf("monday snapshot = %+v", got[0])
	}
	if !got[1].IsClosed || got[1].MaxParallel != 0 || got[1].Note != "Holiday" {
		t.Fatalf("tuesday snapshot = %+v", got[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetDailyRejectsBadRange(t *testing.T) {
	_, handler := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/daily?days=99", nil)
	rec := httptest.NewRecorder()
	handler.CalendarRoutes().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestPutWeeklyValidatesHours(t *testing.T) {
	_, handler := newTestHandler(t)

	body := strings.NewReader(`{"is_open": true, "open_time": "17:00", "close_time": "09:00"}`)
	req := httptest.NewRequest(http.MethodPut, "/weekly/1", body)
	rec := httptest.NewRecorder()
	handler.CalendarRoutes().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422 for inverted hours", rec.Code)
	}
}

func TestPutWeeklyNormalizesSeconds(t *testing.T) {
	mock, handler := newTestHandler(t)

	mock.ExpectExec("INSERT INTO weekly_schedule").
		WithArgs(2, true, strPtr("09:00"), strPtr("17:00"), "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	body := strings.NewReader(`{"is_open": true, "open_time": "09:00:00", "close_time": "17:00:00"}`)
	req := httptest.NewRequest(http.MethodPut, "/weekly/2", body)
	rec := httptest.NewRecorder()
	handler.CalendarRoutes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPutWeeklyRejectsBadWeekday(t *testing.T) {
	_, handler := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPut, "/weekly/7", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	handler.CalendarRoutes().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}
