package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Shivanand-hulikatti/membership-registry/internal/apperr"
	"github.com/Shivanand-hulikatti/membership-registry/internal/model"
)

// AddAdmin handles POST /admins
// Grants an administrative role; owner only.
func (h *Handler) AddAdmin(w http.ResponseWriter, r *http.Request) {
	var req model.AddAdminRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	role, err := model.ParseAdminRole(req.Role)
	if err != nil {
		h.writeError(w, r, apperr.Wrap(apperr.KindInvalidRole, "invalid role", err))
		return
	}

	rec, err := h.svc.AddAdmin(r.Context(), caller(r), model.Identity(req.Identity), role)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// GetRoles handles GET /identities/{identity}/roles
func (h *Handler) GetRoles(w http.ResponseWriter, r *http.Request) {
	identity := model.Identity(chi.URLParam(r, "identity"))
	writeJSON(w, http.StatusOK, h.svc.Roles(r.Context(), identity))
}

// ListFees handles GET /fees
// Returns the full schedule keyed by tier.
func (h *Handler) ListFees(w http.ResponseWriter, r *http.Request) {
	fees, err := h.svc.Fees(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fees)
}

// GetFee handles GET /fees/{tier}
func (h *Handler) GetFee(w http.ResponseWriter, r *http.Request) {
	tier, err := tierParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	fee, err := h.svc.GetFee(r.Context(), tier)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.FeeResponse{Tier: tier, Amount: fee})
}

// SetFee handles PUT /fees/{tier}
// Owner or membership admin.
func (h *Handler) SetFee(w http.ResponseWriter, r *http.Request) {
	tier, err := tierParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req model.SetFeeRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.svc.SetFee(r.Context(), caller(r), tier, *req.Amount); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.FeeResponse{Tier: tier, Amount: *req.Amount})
}

func tierParam(r *http.Request) (model.Tier, error) {
	tier, err := model.ParseTier(chi.URLParam(r, "tier"))
	if err != nil {
		return "", apperr.Wrap(apperr.KindInvalidTier, "invalid tier", err)
	}
	return tier, nil
}

// RegisterMember handles POST /members
// The caller registers itself; the amount must equal the tier fee.
func (h *Handler) RegisterMember(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterMemberRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	tier, err := model.ParseTier(req.Tier)
	if err != nil {
		h.writeError(w, r, apperr.Wrap(apperr.KindInvalidTier, "invalid tier", err))
		return
	}

	member, err := h.svc.RegisterMember(r.Context(), caller(r), tier, *req.Amount)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, member)
}

// GetMember handles GET /members/{identity}
func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	member, err := h.svc.GetMemberRecord(r.Context(), model.Identity(chi.URLParam(r, "identity")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

// ApproveMember handles POST /members/{identity}/approve
func (h *Handler) ApproveMember(w http.ResponseWriter, r *http.Request) {
	member, err := h.svc.ApproveRegistration(r.Context(), caller(r), model.Identity(chi.URLParam(r, "identity")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

// RejectMember handles POST /members/{identity}/reject
// Refunds the current tier fee to the member.
func (h *Handler) RejectMember(w http.ResponseWriter, r *http.Request) {
	member, refund, err := h.svc.RejectRegistration(r.Context(), caller(r), model.Identity(chi.URLParam(r, "identity")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.RejectionResponse{Member: member, Refund: refund})
}

// AssignRole handles PUT /members/{identity}/role
// Owner only.
func (h *Handler) AssignRole(w http.ResponseWriter, r *http.Request) {
	var req model.AssignRoleRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	role, err := model.ParseMemberRole(req.Role)
	if err != nil {
		h.writeError(w, r, apperr.Wrap(apperr.KindInvalidRole, "invalid role", err))
		return
	}

	member, err := h.svc.AssignMemberRole(r.Context(), caller(r), model.Identity(chi.URLParam(r, "identity")), role)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

// GetBalance handles GET /treasury/balances/{identity}
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	bal, err := h.svc.Balance(r.Context(), model.Identity(chi.URLParam(r, "identity")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bal)
}
