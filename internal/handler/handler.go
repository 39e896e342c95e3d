// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator"
	"github.com/rs/zerolog"

	"github.com/Shivanand-hulikatti/membership-registry/internal/apperr"
	"github.com/Shivanand-hulikatti/membership-registry/internal/model"
	"github.com/Shivanand-hulikatti/membership-registry/internal/service"
)

// Handler holds all HTTP handlers for the registry API.
type Handler struct {
	svc      *service.Registry
	validate *validator.Validate
	log      zerolog.Logger
}

// New constructs a Handler.
func New(svc *service.Registry, log zerolog.Logger) *Handler {
	return &Handler{
		svc:      svc,
		validate: newValidator(),
		log:      log,
	}
}

// Router builds the full route tree with the global middleware stack.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(Logger(h.log))
	r.Use(CORS)

	r.Get("/health", HealthCheck)

	r.Get("/identities/{identity}/roles", h.GetRoles)
	r.Get("/fees", h.ListFees)
	r.Get("/fees/{tier}", h.GetFee)
	r.Get("/members/{identity}", h.GetMember)
	r.Get("/events", h.ListEvents)
	r.Get("/events/{id}", h.GetEvent)
	r.Get("/events/{id}/registrations/{identity}", h.GetRegistration)
	r.Get("/journal", h.Journal)
	r.Get("/treasury/balances/{identity}", h.GetBalance)

	r.Group(func(r chi.Router) {
		r.Use(RequireIdentity)

		r.Post("/admins", h.AddAdmin)
		r.Put("/fees/{tier}", h.SetFee)
		r.Post("/members", h.RegisterMember)
		r.Post("/members/{identity}/approve", h.ApproveMember)
		r.Post("/members/{identity}/reject", h.RejectMember)
		r.Put("/members/{identity}/role", h.AssignRole)
		r.Post("/events", h.CreateEvent)
		r.Post("/events/{id}/cancel", h.CancelEvent)
		r.Post("/events/{id}/register", h.RegisterToEvent)
	})

	return r
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the error kind to a status code and writes the envelope.
// Internal errors are logged and reported without detail.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)

	body := model.ErrorBody{Code: string(kind), Message: err.Error()}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		body.Message = appErr.Error()
		body.Metadata = appErr.Metadata
	}
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Msg("request failed")
		body = model.ErrorBody{Code: string(apperr.KindInternal), Message: "internal error"}
	}
	writeJSON(w, status, model.ErrorResponse{Error: body})
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindUnauthorized:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindAlreadyExists, apperr.KindAlreadyRegistered,
		apperr.KindInvalidState, apperr.KindAlreadyInactive,
		apperr.KindEventFull, apperr.KindEventNotActive:
		return http.StatusConflict
	case apperr.KindInvalidTier, apperr.KindInvalidQuota, apperr.KindInvalidWindow,
		apperr.KindInvalidRole, apperr.KindInvalidAmount, apperr.KindInvalidName,
		apperr.KindInvalidIdentity, apperr.KindInvalidRequest:
		return http.StatusBadRequest
	case apperr.KindIncorrectPayment:
		return http.StatusUnprocessableEntity
	case apperr.KindTransferFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a size-limited body into dst and validates it.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Wrap(apperr.KindInvalidRequest, "invalid request body", err)
	}
	return h.validateStruct(r.Context(), dst)
}

func caller(r *http.Request) model.Identity {
	id, _ := CallerFrom(r.Context())
	return id
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
