package model

import "time"

// MemberStatus is the membership approval status.
type MemberStatus string

const (
	MemberStatusPendingApproval MemberStatus = "pending_approval"
	MemberStatusActive          MemberStatus = "active"
	MemberStatusRejected        MemberStatus = "rejected"
)

// Terminal reports whether no transition leaves this status.
func (s MemberStatus) Terminal() bool {
	return s == MemberStatusActive || s == MemberStatusRejected
}

// MemberRecord is the ledger entry created by self-registration.
type MemberRecord struct {
	Identity     Identity     `json:"identity"`
	Tier         Tier         `json:"tier"`
	Status       MemberStatus `json:"status"`
	AssignedRole MemberRole   `json:"assigned_role"`
	RegisteredAt time.Time    `json:"registered_at"`
	// ExpiresAt is informational; nothing transitions on expiry.
	ExpiresAt time.Time `json:"expires_at"`
	// PaidAmount is the fee collected at registration. Refunds use the
	// current schedule, not this value.
	PaidAmount Amount `json:"paid_amount"`
}

// Pending reports whether the record is awaiting a decision.
func (m *MemberRecord) Pending() bool {
	return m.Status == MemberStatusPendingApproval
}
