package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// DomainEvent describes a committed state change. Any subscriber may consume it.
type DomainEvent interface {
	Type() string
}

// Event type names.
const (
	TypeAdminAdded       = "admin.added"
	TypeRoleAssigned     = "member.role_assigned"
	TypeMemberRegistered = "member.registered"
	TypeMemberApproved   = "member.approved"
	TypeMemberRejected   = "member.rejected"
	TypeFeeUpdated       = "fee.updated"
	TypeEventCreated     = "event.created"
	TypeEventCancelled   = "event.cancelled"
	TypeEventRegistered  = "event.registered"
)

// AdminAdded is emitted when the owner grants an administrative role.
type AdminAdded struct {
	Identity Identity  `json:"identity"`
	Role     AdminRole `json:"role"`
}

// RoleAssigned is emitted when a member record's role is overwritten.
type RoleAssigned struct {
	Identity Identity   `json:"identity"`
	Role     MemberRole `json:"role"`
}

// MemberRegistered is emitted on self-registration.
type MemberRegistered struct {
	Identity   Identity  `json:"identity"`
	Tier       Tier      `json:"tier"`
	FeePaid    Amount    `json:"fee_paid"`
	ExpiryDate time.Time `json:"expiry_date"`
}

// MemberApproved is emitted when a pending registration is approved.
type MemberApproved struct {
	Identity Identity `json:"identity"`
}

// MemberRejected is emitted when a pending registration is rejected and refunded.
type MemberRejected struct {
	Identity     Identity `json:"identity"`
	RefundAmount Amount   `json:"refund_amount"`
}

// FeeUpdated is emitted when a tier fee is overwritten.
type FeeUpdated struct {
	Caller    Identity `json:"caller"`
	Tier      Tier     `json:"tier"`
	NewAmount Amount   `json:"new_amount"`
}

// EventCreated is emitted when an event is created.
type EventCreated struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Quota           int    `json:"quota"`
	EarlyAccessDays int    `json:"early_access_days"`
}

// EventCancelled is emitted when an event becomes inactive.
type EventCancelled struct {
	ID string `json:"id"`
}

// EventRegistered is emitted when an identity registers for an event.
type EventRegistered struct {
	Identity Identity `json:"identity"`
	EventID  string   `json:"event_id"`
}

func (AdminAdded) Type() string       { return TypeAdminAdded }
func (RoleAssigned) Type() string     { return TypeRoleAssigned }
func (MemberRegistered) Type() string { return TypeMemberRegistered }
func (MemberApproved) Type() string   { return TypeMemberApproved }
func (MemberRejected) Type() string   { return TypeMemberRejected }
func (FeeUpdated) Type() string       { return TypeFeeUpdated }
func (EventCreated) Type() string     { return TypeEventCreated }
func (EventCancelled) Type() string   { return TypeEventCancelled }
func (EventRegistered) Type() string  { return TypeEventRegistered }

// JournalEntry is a committed domain event with its position in commit order.
type JournalEntry struct {
	Seq        int64       `json:"seq"`
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurred_at"`
	Event      DomainEvent `json:"payload"`
}

// DecodeEvent rebuilds a domain event from its type name and JSON payload.
func DecodeEvent(eventType string, payload []byte) (DomainEvent, error) {
	var ev DomainEvent
	switch eventType {
	case TypeAdminAdded:
		ev = &AdminAdded{}
	case TypeRoleAssigned:
		ev = &RoleAssigned{}
	case TypeMemberRegistered:
		ev = &MemberRegistered{}
	case TypeMemberApproved:
		ev = &MemberApproved{}
	case TypeMemberRejected:
		ev = &MemberRejected{}
	case TypeFeeUpdated:
		ev = &FeeUpdated{}
	case TypeEventCreated:
		ev = &EventCreated{}
	case TypeEventCancelled:
		ev = &EventCancelled{}
	case TypeEventRegistered:
		ev = &EventRegistered{}
	default:
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}
	if err := json.Unmarshal(payload, ev); err != nil {
		return nil, fmt.Errorf("decode %s: %w", eventType, err)
	}
	return deref(ev), nil
}

func deref(ev DomainEvent) DomainEvent {
	switch e := ev.(type) {
	case *AdminAdded:
		return *e
	case *RoleAssigned:
		return *e
	case *MemberRegistered:
		return *e
	case *MemberApproved:
		return *e
	case *MemberRejected:
		return *e
	case *FeeUpdated:
		return *e
	case *EventCreated:
		return *e
	case *EventCancelled:
		return *e
	case *EventRegistered:
		return *e
	}
	return ev
}
