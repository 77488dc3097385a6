package warning

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// Handler exposes the warning service over HTTP. The monitoring API
// mounts it under /monitoring/warnings.
type Handler struct {
	service Service
}

// NewHandler creates a warning HTTP handler
func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the warning subrouter
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.list)
	r.Post("/{id}/acknowledge", h.acknowledge)
	r.Delete("/", h.clear)
	return r
}

// list returns warnings, optionally filtered by ?severity= or
// ?unacknowledged=true
func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	var warnings []Warning

	switch {
	case r.URL.Query().Get("unacknowledged") == "true":
		warnings = h.service.GetUnacknowledgedWarnings()
	case r.URL.Query().Get("severity") != "":
		warnings = h.service.GetWarningsBySeverity(r.URL.Query().Get("severity"))
	default:
		warnings = h.service.GetAllWarnings()
	}

	writeJSON(w, http.StatusOK, warnings)
}

// acknowledge marks a warning as acknowledged
func (h *Handler) acknowledge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.service.AcknowledgeWarning(id) {
		http.Error(w, "Warning not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "acknowledged", "id": id})
}

// clear removes warnings. Without a filter it removes everything;
// ?olderThanHours=N keeps recent warnings.
func (h *Handler) clear(w http.ResponseWriter, r *http.Request) {
	if v := r.URL.Query().Get("olderThanHours"); v != "" {
		hours, err := strconv.Atoi(v)
		if err != nil || hours <= 0 {
			http.Error(w, "olderThanHours must be a positive integer", http.StatusBadRequest)
			return
		}
		h.service.ClearOldWarnings(hours)
		writeJSON(w, http.StatusOK, map[string]any{"status": "cleared", "olderThanHours": hours})
		return
	}

	h.service.ClearAllWarnings()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
