// Package model defines the core domain types for the membership registry.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Identity is an opaque, externally supplied principal. The registry only
// references identities; it never creates or destroys them.
type Identity string

// Valid reports whether the identity is usable as a key.
func (i Identity) Valid() bool {
	return strings.TrimSpace(string(i)) != ""
}

// AdminRole is the administrative role held in the role directory.
type AdminRole string

const (
	AdminRoleNone       AdminRole = ""
	AdminRoleEvent      AdminRole = "event_admin"
	AdminRoleMembership AdminRole = "membership_admin"
)

// ParseAdminRole accepts only roles that can be granted through AddAdmin.
func ParseAdminRole(s string) (AdminRole, error) {
	switch r := AdminRole(strings.ToLower(strings.TrimSpace(s))); r {
	case AdminRoleEvent, AdminRoleMembership:
		return r, nil
	default:
		return AdminRoleNone, fmt.Errorf("unknown admin role %q", s)
	}
}

// AdminRecord grants an identity one administrative role. It is created
// once and never reassigned.
type AdminRecord struct {
	Identity  Identity  `json:"identity"`
	Role      AdminRole `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// MemberRole is the role assigned to a member record. It is informational
// and independent from the role directory.
type MemberRole string

const (
	MemberRoleMember          MemberRole = "member"
	MemberRoleEventAdmin      MemberRole = "event_admin"
	MemberRoleMembershipAdmin MemberRole = "membership_admin"
)

// ParseMemberRole parses a member role.
func ParseMemberRole(s string) (MemberRole, error) {
	switch r := MemberRole(strings.ToLower(strings.TrimSpace(s))); r {
	case MemberRoleMember, MemberRoleEventAdmin, MemberRoleMembershipAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("unknown member role %q", s)
	}
}

// Tier is a membership category that determines the registration fee.
type Tier string

const (
	TierRegular       Tier = "regular"
	TierGold          Tier = "gold"
	TierVIP           Tier = "vip"
	TierNotApplicable Tier = "not_applicable"
)

// Tiers lists every known tier in display order.
var Tiers = []Tier{TierRegular, TierGold, TierVIP, TierNotApplicable}

// ParseTier parses any known tier, including NotApplicable.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Tiers {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown tier %q", s)
}

// Registrable reports whether members can register with this tier.
func (t Tier) Registrable() bool {
	return t == TierRegular || t == TierGold || t == TierVIP
}

// DefaultFees is the fee schedule used for tiers never set explicitly.
var DefaultFees = map[Tier]Amount{
	TierRegular:       MustParseAmount("0.01"),
	TierGold:          MustParseAmount("0.05"),
	TierVIP:           MustParseAmount("0.1"),
	TierNotApplicable: 0,
}

// DefaultMembershipPeriod is added to the registration time to compute the
// informational expiry date.
const DefaultMembershipPeriod = 30 * 24 * time.Hour

// RegistrationMark records that an identity registered for an event.
type RegistrationMark struct {
	Identity     Identity  `json:"identity"`
	EventID      string    `json:"event_id"`
	RegisteredAt time.Time `json:"registered_at"`
}

// AddAdminRequest is the payload for granting an administrative role.
type AddAdminRequest struct {
	Identity string `json:"identity" validate:"required,identity,max=256"`
	Role     string `json:"role" validate:"required"`
}

// SetFeeRequest is the payload for updating a tier fee.
type SetFeeRequest struct {
	Amount *Amount `json:"amount" validate:"required"`
}

// RegisterMemberRequest is the payload for self-registration.
type RegisterMemberRequest struct {
	Tier   string  `json:"tier" validate:"required"`
	Amount *Amount `json:"amount" validate:"required"`
}

// AssignRoleRequest is the payload for reassigning a member role.
type AssignRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

// CreateEventRequest is the payload for creating a new event.
type CreateEventRequest struct {
	Name            string `json:"name" validate:"required,max=200"`
	Quota           int    `json:"quota"`
	EarlyAccessDays int    `json:"early_access_days"`
}

// FeeResponse is the fee for one tier.
type FeeResponse struct {
	Tier   Tier   `json:"tier"`
	Amount Amount `json:"amount"`
}

// RejectionResponse is the result of rejecting a registration.
type RejectionResponse struct {
	Member MemberRecord `json:"member"`
	Refund Amount       `json:"refund"`
}

// RegistrationStatus answers whether an identity registered for an event.
type RegistrationStatus struct {
	Identity   Identity `json:"identity"`
	EventID    string   `json:"event_id"`
	Registered bool     `json:"registered"`
}

// BalanceResponse reports treasury balances.
type BalanceResponse struct {
	Identity Identity `json:"identity"`
	Balance  Amount   `json:"balance"`
	Held     Amount   `json:"held"`
}

// RoleSummary answers the role predicates for one identity.
type RoleSummary struct {
	Identity          Identity `json:"identity"`
	IsOwner           bool     `json:"is_owner"`
	IsEventAdmin      bool     `json:"is_event_admin"`
	IsMembershipAdmin bool     `json:"is_membership_admin"`
}

// ErrorBody is the error part of the JSON error envelope.
type ErrorBody struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}
