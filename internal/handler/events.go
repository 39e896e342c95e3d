package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Shivanand-hulikatti/membership-registry/internal/apperr"
	"github.com/Shivanand-hulikatti/membership-registry/internal/model"
)

// CreateEvent handles POST /events
// Creates a new event with the given name, quota and early access window.
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	event, err := h.svc.CreateEvent(r.Context(), caller(r), req.Name, req.Quota, req.EarlyAccessDays)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

// ListEvents handles GET /events
// Returns a JSON array of all events, newest first.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.svc.ListEvents(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	// Return an empty array rather than null for better client compatibility.
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// GetEvent handles GET /events/{id}
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.svc.GetEventRecord(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// CancelEvent handles POST /events/{id}/cancel
func (h *Handler) CancelEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.svc.CancelEvent(r.Context(), caller(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// RegisterToEvent handles POST /events/{id}/register
// Takes a seat for the caller.
func (h *Handler) RegisterToEvent(w http.ResponseWriter, r *http.Request) {
	mark, err := h.svc.RegisterToEvent(r.Context(), caller(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mark)
}

// GetRegistration handles GET /events/{id}/registrations/{identity}
func (h *Handler) GetRegistration(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "id")
	identity := model.Identity(chi.URLParam(r, "identity"))

	registered, err := h.svc.IsRegisteredForEvent(r.Context(), identity, eventID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.RegistrationStatus{
		Identity:   identity,
		EventID:    eventID,
		Registered: registered,
	})
}

// Journal handles GET /journal?after=N&limit=M
// Returns committed domain events in commit order.
func (h *Handler) Journal(w http.ResponseWriter, r *http.Request) {
	after, err := queryInt(r, "after")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	entries, err := h.svc.Journal(r.Context(), after, int(limit))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []model.JournalEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func queryInt(r *http.Request, key string) (int64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, apperr.WithMetadata(apperr.KindInvalidRequest,
			key+" must be a non-negative integer",
			map[string]string{"field": key})
	}
	return n, nil
}
