package notify

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/smilepoint/clinic-server/internal/http/middleware"
	"github.com/smilepoint/clinic-server/pkg/logging"
)

// Handler exposes the authenticated notification feed.
type Handler struct {
	store  *Store
	logger *logging.Logger
}

// NewHandler creates the notifications HTTP handler.
func NewHandler(store *Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, logger: logger}
}

// Routes returns the /notifications router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.GetFeed)
	return r
}

// GetFeed lists the caller's notifications, broadcasts included.
// GET /notifications?limit=20
func (h *Handler) GetFeed(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "authentication required"})
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	notifications, err := h.store.ListForUser(r.Context(), userID, limit)
	if err != nil {
		h.logger.Error("notification feed failed", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "internal server error"})
		return
	}
	if notifications == nil {
		notifications = []Notification{}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{"notifications": notifications})
}
