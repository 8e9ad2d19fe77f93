package appointments

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/smilepoint/clinic-server/internal/http/middleware"
	"github.com/smilepoint/clinic-server/pkg/logging"
)

// Handler exposes the booking endpoints.
type Handler struct {
	service *Service
	repo    *Repository
	logger  *logging.Logger
}

// NewHandler creates the appointments HTTP handler.
func NewHandler(service *Service, repo *Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, repo: repo, logger: logger}
}

// PatientRoutes returns the authenticated patient router.
func (h *Handler) PatientRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.PostAppointment)
	r.Get("/mine", h.GetMine)
	r.Get("/slots", h.GetSlots)
	r.Post("/{id}/cancel", h.PostCancel)
	return r
}

// AdminRoutes returns the staff router.
func (h *Handler) AdminRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListForDate)
	r.Post("/{id}/approve", h.PostApprove)
	r.Post("/{id}/reject", h.PostReject)
	return r
}

type bookingPayload struct {
	Date          string  `json:"date"`
	Start         string  `json:"start"`
	ServiceID     string  `json:"service_id"`
	PaymentMethod string  `json:"payment_method"`
	PatientHMOID  *string `json:"patient_hmo_id"`
	Notes         string  `json:"notes"`
}

// PostAppointment books an appointment for the authenticated user.
// POST /appointments
func (h *Handler) PostAppointment(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	var payload bookingPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid JSON body")
		return
	}

	appt, err := h.service.Book(r.Context(), BookingRequest{
		UserID:        userID,
		Date:          payload.Date,
		Start:         payload.Start,
		ServiceID:     payload.ServiceID,
		PaymentMethod: payload.PaymentMethod,
		PatientHMOID:  payload.PatientHMOID,
		Notes:         payload.Notes,
	})
	if err != nil {
		h.writeFailure(w, err, "booking failed")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"reference_code": appt.ReferenceCode,
		"appointment":    appointmentView(appt),
	})
}

// GetSlots lists bookable start times for a service on a date.
// GET /appointments/slots?date=2025-03-10&service_id=...
func (h *Handler) GetSlots(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	serviceID := r.URL.Query().Get("service_id")
	if date == "" || serviceID == "" {
		writeError(w, http.StatusUnprocessableEntity, "date and service_id are required")
		return
	}

	slots, err := h.service.AvailableSlots(r.Context(), date, serviceID)
	if err != nil {
		h.writeFailure(w, err, "slot listing failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": slots})
}

// GetMine lists the authenticated user's appointments.
// GET /appointments/mine
func (h *Handler) GetMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	appts, err := h.service.ListMine(r.Context(), userID)
	if err != nil {
		h.writeFailure(w, err, "list appointments failed")
		return
	}
	out := make([]map[string]any, 0, len(appts))
	for i := range appts {
		out = append(out, appointmentView(&appts[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": out})
}

// PostCancel withdraws the caller's pending appointment.
// POST /appointments/{id}/cancel
func (h *Handler) PostCancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	appt, err := h.service.Cancel(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		h.writeFailure(w, err, "cancel failed")
		return
	}
	writeJSON(w, http.StatusOK, appointmentView(appt))
}

// ListForDate returns a date's appointments for staff.
// GET /admin/appointments?date=2025-03-10&status=pending
func (h *Handler) ListForDate(w http.ResponseWriter, r *http.Request) {
	date, err := time.Parse(dateLayout, r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "date must be formatted YYYY-MM-DD")
		return
	}
	status := r.URL.Query().Get("status")

	appts, err := h.repo.ListForDate(r.Context(), date, status)
	if err != nil {
		h.writeFailure(w, err, "list appointments failed")
		return
	}
	out := make([]map[string]any, 0, len(appts))
	for i := range appts {
		out = append(out, appointmentView(&appts[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": out})
}

// PostApprove confirms a pending appointment.
// POST /admin/appointments/{id}/approve
func (h *Handler) PostApprove(w http.ResponseWriter, r *http.Request) {
	appt, err := h.service.Approve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeFailure(w, err, "approve failed")
		return
	}
	writeJSON(w, http.StatusOK, appointmentView(appt))
}

type rejectPayload struct {
	Reason string `json:"reason"`
}

// PostReject declines a pending appointment.
// POST /admin/appointments/{id}/reject
func (h *Handler) PostReject(w http.ResponseWriter, r *http.Request) {
	var payload rejectPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid JSON body")
		return
	}
	appt, err := h.service.Reject(r.Context(), chi.URLParam(r, "id"), payload.Reason)
	if err != nil {
		h.writeFailure(w, err, "reject failed")
		return
	}
	writeJSON(w, http.StatusOK, appointmentView(appt))
}

// appointmentView renders the wire shape; the date joins the payload as a
// plain string.
func appointmentView(a *Appointment) map[string]any {
	return map[string]any{
		"id":             a.ID,
		"patient_id":     a.PatientID,
		"service_id":     a.ServiceID,
		"patient_hmo_id": a.PatientHMOID,
		"date":           a.DateString(),
		"time_slot":      a.TimeSlot,
		"reference_code": a.ReferenceCode,
		"status":         a.Status,
		"payment_method": a.PaymentMethod,
		"payment_status": a.PaymentStatus,
		"notes":          a.Notes,
		"canceled_at":    a.CanceledAt,
		"created_at":     a.CreatedAt,
	}
}

// writeFailure maps rejections to client statuses and everything else to
// an opaque 500.
func (h *Handler) writeFailure(w http.ResponseWriter, err error, logMsg string) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		status := http.StatusUnprocessableEntity
		switch rej.Reason {
		case ReasonConflict:
			status = http.StatusConflict
		case ReasonNotFound:
			status = http.StatusNotFound
		case ReasonForbidden:
			status = http.StatusForbidden
		}
		body := map[string]any{"message": rej.Message, "reason": rej.Reason}
		if rej.FullAt != "" {
			body["full_at"] = rej.FullAt
		}
		writeJSON(w, status, body)
		return
	}
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "appointment not found")
		return
	}
	h.logger.Error(logMsg, "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
