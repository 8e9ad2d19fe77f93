package schedule

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/smilepoint/clinic-server/internal/clinicsettings"
	"github.com/smilepoint/clinic-server/pkg/logging"
)

const dateLayout = "2006-01-02"

// Handler exposes the clinic-calendar and roster admin endpoints.
type Handler struct {
	repo     *Repository
	resolver *Resolver
	planner  *Planner
	closure  *Closure
	settings *clinicsettings.Store
	logger   *logging.Logger
	now      func() time.Time
}

// NewHandler creates the calendar HTTP handler.
func NewHandler(repo *Repository, resolver *Resolver, planner *Planner, closure *Closure, settings *clinicsettings.Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		repo:     repo,
		resolver: resolver,
		planner:  planner,
		closure:  closure,
		settings: settings,
		logger:   logger,
		now:      time.Now,
	}
}

// CalendarRoutes returns the /clinic-calendar router.
func (h *Handler) CalendarRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/daily", h.GetDaily)
	r.Put("/{date}/closure", h.PutClosure)
	r.Put("/day/{date}", h.PutDayCapacity)
	r.Get("/weekly", h.GetWeekly)
	r.Put("/weekly/{weekday}", h.PutWeekly)
	return r
}

// DentistRoutes returns the /dentists router.
func (h *Handler) DentistRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListDentists)
	r.Put("/{id}/schedule", h.PutDentistSchedule)
	return r
}

type dailySnapshot struct {
	Date           string `json:"date"`
	ActiveDentists int    `json:"active_dentists"`
	MaxParallel    int    `json:"max_parallel"`
	IsClosed       bool   `json:"is_closed"`
	Note           string `json:"note"`
}

// GetDaily returns per-day availability snapshots.
// GET /clinic-calendar/daily?from=2025-03-01&days=14
func (h *Handler) GetDaily(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	from := h.now()
	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "from must be formatted YYYY-MM-DD")
			return
		}
		from = parsed
	}
	days := 14
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 62 {
			writeError(w, http.StatusUnprocessableEntity, "days must be between 1 and 62")
			return
		}
		days = parsed
	}

	out := make([]dailySnapshot, 0, days)
	for i := 0; i < days; i++ {
		day, err := h.resolver.Resolve(ctx, from.AddDate(0, 0, i))
		if err != nil {
			h.logger.Error("daily snapshot resolution failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		out = append(out, dailySnapshot{
			Date:           day.Date.Format(dateLayout),
			ActiveDentists: day.DentistCount,
			MaxParallel:    day.EffectiveCapacity,
			IsClosed:       !day.IsOpen,
			Note:           day.Note,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type closureRequest struct {
	Closed  bool   `json:"closed"`
	Message string `json:"message"`
}

// PutClosure closes or reopens one date.
// PUT /clinic-calendar/{date}/closure
func (h *Handler) PutClosure(w http.ResponseWriter, r *http.Request) {
	date, ok := h.parseDateParam(w, r)
	if !ok {
		return
	}
	var req closureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid JSON body")
		return
	}

	result, err := h.closure.SetClosed(r.Context(), date, req.Closed, req.Message)
	if err != nil {
		h.logger.Error("closure cascade failed", "date", date.Format(dateLayout), "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	message := "clinic reopened"
	if req.Closed {
		message = "clinic closed"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":       message,
		"auto_rejected": result.AutoRejected,
	})
}

type dayCapacityRequest struct {
	MaxParallel *int   `json:"max_parallel"`
	Note        string `json:"note"`
}

// PutDayCapacity sets or clears a date's capacity cap.
// PUT /clinic-calendar/day/{date}
func (h *Handler) PutDayCapacity(w http.ResponseWriter, r *http.Request) {
	date, ok := h.parseDateParam(w, r)
	if !ok {
		return
	}
	var req dayCapacityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid JSON body")
		return
	}

	settings, err := h.settings.Snapshot(r.Context())
	if err != nil {
		h.logger.Error("settings snapshot failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	result, err := h.planner.SetDayCapacity(r.Context(), date, req.MaxParallel, req.Note, h.now(), settings.CapacityEditWindowDays)
	if errors.Is(err, ErrOutsideEditWindow) {
		writeError(w, http.StatusUnprocessableEntity, "date is outside the capacity edit window")
		return
	}
	if err != nil {
		h.logger.Error("capacity edit failed", "date", date.Format(dateLayout), "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := map[string]any{"ok": true}
	if result.Warning != "" {
		resp["warning"] = result.Warning
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetWeekly lists the weekday default rows.
// GET /clinic-calendar/weekly
func (h *Handler) GetWeekly(w http.ResponseWriter, r *http.Request) {
	rows, err := h.repo.ListWeekly(r.Context())
	if err != nil {
		h.logger.Error("list weekly failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// PutWeekly updates one weekday's default hours.
// PUT /clinic-calendar/weekly/{weekday}
func (h *Handler) PutWeekly(w http.ResponseWriter, r *http.Request) {
	weekday, err := strconv.Atoi(chi.URLParam(r, "weekday"))
	if err != nil || weekday < 0 || weekday > 6 {
		writeError(w, http.StatusUnprocessableEntity, "weekday must be 0 (Sunday) through 6 (Saturday)")
		return
	}
	var row WeeklyRow
	if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid JSON body")
		return
	}
	row.Weekday = weekday

	if row.IsOpen {
		if row.OpenTime == nil || row.CloseTime == nil {
			writeError(w, http.StatusUnprocessableEntity, "open days require open_time and close_time")
			return
		}
		openMin, err := ParseClock(*row.OpenTime)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "open_time must be formatted HH:MM")
			return
		}
		closeMin, err := ParseClock(*row.CloseTime)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "close_time must be formatted HH:MM")
			return
		}
		if closeMin <= openMin {
			writeError(w, http.StatusUnprocessableEntity, "close_time must be after open_time")
			return
		}
		openAt, closeAt := FormatClock(openMin), FormatClock(closeMin)
		row.OpenTime, row.CloseTime = &openAt, &closeAt
	} else {
		row.OpenTime, row.CloseTime = nil, nil
	}

	if err := h.repo.UpsertWeekly(r.Context(), row); err != nil {
		h.logger.Error("upsert weekly failed", "weekday", weekday, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// ListDentists returns the roster.
// GET /dentists
func (h *Handler) ListDentists(w http.ResponseWriter, r *http.Request) {
	dentists, err := h.repo.ListDentists(r.Context())
	if err != nil {
		h.logger.Error("list dentists failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, dentists)
}

type dentistScheduleRequest struct {
	EmploymentStatus string   `json:"employment_status"`
	ContractEndDate  *string  `json:"contract_end_date"`
	WorkingDays      *[7]bool `json:"working_days"`
}

// PutDentistSchedule updates roster flags for one dentist.
// PUT /dentists/{id}/schedule
func (h *Handler) PutDentistSchedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req dentistScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid JSON body")
		return
	}
	if req.EmploymentStatus != "active" && req.EmploymentStatus != "inactive" {
		writeError(w, http.StatusUnprocessableEntity, "employment_status must be active or inactive")
		return
	}
	if req.WorkingDays == nil {
		writeError(w, http.StatusUnprocessableEntity, "working_days is required")
		return
	}
	var contractEnd *time.Time
	if req.ContractEndDate != nil && *req.ContractEndDate != "" {
		parsed, err := time.Parse(dateLayout, *req.ContractEndDate)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "contract_end_date must be formatted YYYY-MM-DD")
			return
		}
		contractEnd = &parsed
	}

	err := h.repo.UpdateDentistSchedule(r.Context(), id, req.EmploymentStatus, contractEnd, *req.WorkingDays)
	if errors.Is(err, ErrDentistNotFound) {
		writeError(w, http.StatusNotFound, "dentist not found")
		return
	}
	if err != nil {
		h.logger.Error("update dentist schedule failed", "dentist_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) parseDateParam(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	date, err := time.Parse(dateLayout, chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "date must be formatted YYYY-MM-DD")
		return time.Time{}, false
	}
	return date, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
