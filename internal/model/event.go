package model

import "time"

// EventStatus is the lifecycle status of an event. Active moves to
// Inactive once and never back.
type EventStatus string

const (
	EventActive   EventStatus = "active"
	EventInactive EventStatus = "inactive"
)

// Event represents a capacity-bounded event created by an event admin.
type Event struct {
	ID                    string      `json:"id"`
	Name                  string      `json:"name"`
	Quota                 int         `json:"quota"`
	ParticipantCount      int         `json:"participant_count"`
	VIPParticipantCount   int         `json:"vip_participant_count"`
	EarlyAccessWindowDays int         `json:"early_access_window_days"`
	EarlyAccessStart      time.Time   `json:"early_access_start"`
	Status                EventStatus `json:"status"`
	CreatedBy             Identity    `json:"created_by"`
	CreatedAt             time.Time   `json:"created_at"`
}

// Remaining returns the number of available seats.
func (e *Event) Remaining() int {
	return e.Quota - e.ParticipantCount
}

// IsFull returns true when no seats remain.
func (e *Event) IsFull() bool {
	return e.ParticipantCount >= e.Quota
}

// IsActive reports whether the event accepts registrations.
func (e *Event) IsActive() bool {
	return e.Status == EventActive
}
