package patients

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/smilepoint/clinic-server/internal/http/middleware"
	"github.com/smilepoint/clinic-server/pkg/logging"
)

// Handler exposes the authenticated patient-profile endpoints.
type Handler struct {
	repo   *Repository
	logger *logging.Logger
}

// NewHandler creates the patients HTTP handler.
func NewHandler(repo *Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, logger: logger}
}

// Routes returns the /patients/me router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.GetMe)
	r.Get("/hmos", h.ListMyHMOs)
	return r
}

// GetMe returns the caller's linked patient record.
// GET /patients/me
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	patient, err := h.repo.PatientForUser(r.Context(), userID)
	if errors.Is(err, ErrNoLinkedPatient) {
		writeError(w, http.StatusNotFound, "no patient record is linked to this account")
		return
	}
	if err != nil {
		h.logger.Error("patient lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, patient)
}

// ListMyHMOs returns the caller's HMO enrollments.
// GET /patients/me/hmos
func (h *Handler) ListMyHMOs(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	patient, err := h.repo.PatientForUser(r.Context(), userID)
	if errors.Is(err, ErrNoLinkedPatient) {
		writeError(w, http.StatusNotFound, "no patient record is linked to this account")
		return
	}
	if err != nil {
		h.logger.Error("patient lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	hmos, err := h.repo.ListHMOs(r.Context(), patient.ID)
	if err != nil {
		h.logger.Error("hmo listing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if hmos == nil {
		hmos = []HMO{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"hmos": hmos})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
