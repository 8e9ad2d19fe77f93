package appointments

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	_, svc := newTestService(t)
	return NewHandler(svc, svc.repo, nil)
}

func TestPostAppointmentRequiresAuth(t *testing.T) {
	handler := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	handler.PatientRoutes().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestGetSlotsRequiresParams(t *testing.T) {
	handler := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/slots?date=2025-03-10", nil)
	rec := httptest.NewRecorder()
	handler.PatientRoutes().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestWriteFailureStatusMapping(t *testing.T) {
	handler := newTestHandler(t)

	cases := []struct {
		reason RejectReason
		want   int
	}{
		{ReasonBadRequest, http.StatusUnprocessableEntity},
		{ReasonOutsideWindow, http.StatusUnprocessableEntity},
		{ReasonDayClosed, http.StatusUnprocessableEntity},
		{ReasonCapacityFull, http.StatusUnprocessableEntity},
		{ReasonHMOInvalid, http.StatusUnprocessableEntity},
		{ReasonConflict, http.StatusConflict},
		{ReasonAlreadyProcessed, http.StatusUnprocessableEntity},
		{ReasonNotFound, http.StatusNotFound},
		{ReasonForbidden, http.StatusForbidden},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		handler.writeFailure(rec, reject(tc.reason, "refused"), "test")
		if rec.Code != tc.want {
			t.Errorf("reason %s mapped to %d, want %d", tc.reason, rec.Code, tc.want)
		}
	}
}

func TestWriteFailureIncludesFullAt(t *testing.T) {
	handler := newTestHandler(t)

	rec := httptest.NewRecorder()
	handler.writeFailure(rec, &RejectionError{
		Reason:  ReasonCapacityFull,
		Message: "no dentist is free at 10:30",
		FullAt:  "10:30",
	}, "test")

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["full_at"] != "10:30" {
		t.Fatalf("body = %v, want full_at 10:30", body)
	}
}

func TestWriteFailureNotFoundSentinel(t *testing.T) {
	handler := newTestHandler(t)

	rec := httptest.NewRecorder()
	handler.writeFailure(rec, ErrNotFound, "test")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
