package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Shivanand-hulikatti/membership-registry/internal/access"
	"github.com/Shivanand-hulikatti/membership-registry/internal/apperr"
	"github.com/Shivanand-hulikatti/membership-registry/internal/model"
	"github.com/Shivanand-hulikatti/membership-registry/internal/repository"
)

// CreateEvent validates the request and creates an active event with a
// fresh random id. The owner and event admins may call it.
func (r *Registry) CreateEvent(ctx context.Context, caller model.Identity, name string, quota, earlyAccessDays int) (model.Event, error) {
	name = strings.TrimSpace(name)

	var event model.Event
	err := r.update(ctx, "create_event", func(ctx context.Context, u *unit) error {
		if err := r.gate.Authorize(ctx, u.tx, caller, access.CapOwner|access.CapEventAdmin); err != nil {
			return err
		}
		if name == "" {
			return apperr.New(apperr.KindInvalidName, "event name is required")
		}
		if quota <= 0 {
			return apperr.Newf(apperr.KindInvalidQuota, "quota must be a positive integer, got %d", quota)
		}
		if earlyAccessDays <= 0 {
			return apperr.Newf(apperr.KindInvalidWindow, "early access window must be a positive number of days, got %d", earlyAccessDays)
		}

		id := r.newID()
		// A collision means the id source is broken; never retry.
		_, err := u.tx.Event(ctx, id)
		switch {
		case err == nil:
			return apperr.Newf(apperr.KindInternal, "generated event id %s already exists", id)
		case !errors.Is(err, repository.ErrNotFound):
			return fmt.Errorf("check event id %s: %w", id, err)
		}

		event = model.Event{
			ID:                    id,
			Name:                  name,
			Quota:                 quota,
			EarlyAccessWindowDays: earlyAccessDays,
			EarlyAccessStart:      u.now,
			Status:                model.EventActive,
			CreatedBy:             caller,
			CreatedAt:             u.now,
		}
		if err := u.tx.InsertEvent(ctx, event); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperr.Wrap(apperr.KindInternal, fmt.Sprintf("generated event id %s already exists", id), err)
			}
			return err
		}
		return u.emit(ctx, model.EventCreated{
			ID:              id,
			Name:            name,
			Quota:           quota,
			EarlyAccessDays: earlyAccessDays,
		})
	})
	if err != nil {
		return model.Event{}, err
	}

	r.log.Info().
		Str("caller", string(caller)).
		Str("event_id", event.ID).
		Int("quota", quota).
		Msg("event created")
	return event, nil
}

// CancelEvent makes an active event inactive. Existing registrations are
// kept. The owner and event admins may call it.
func (r *Registry) CancelEvent(ctx context.Context, caller model.Identity, eventID string) (model.Event, error) {
	var event model.Event
	err := r.update(ctx, "cancel_event", func(ctx context.Context, u *unit) error {
		if err := r.gate.Authorize(ctx, u.tx, caller, access.CapOwner|access.CapEventAdmin); err != nil {
			return err
		}
		var err error
		event, err = u.tx.Event(ctx, eventID)
		if err != nil {
			return lookupErr(err, "event", eventID)
		}
		if !event.IsActive() {
			return apperr.WithMetadata(apperr.KindAlreadyInactive,
				fmt.Sprintf("event %s is already inactive", eventID),
				map[string]string{"event": eventID})
		}
		event.Status = model.EventInactive
		if err := u.tx.UpdateEvent(ctx, event); err != nil {
			return fmt.Errorf("update event %s: %w", eventID, err)
		}
		return u.emit(ctx, model.EventCancelled{ID: eventID})
	})
	if err != nil {
		return model.Event{}, err
	}

	r.log.Info().
		Str("caller", string(caller)).
		Str("event_id", eventID).
		Msg("event cancelled")
	return event, nil
}

// RegisterToEvent takes a seat for identity. Anyone may call it; the event
// row stays locked from the capacity check until the count is written.
func (r *Registry) RegisterToEvent(ctx context.Context, identity model.Identity, eventID string) (model.RegistrationMark, error) {
	var mark model.RegistrationMark
	err := r.update(ctx, "register_to_event", func(ctx context.Context, u *unit) error {
		if err := requireIdentity(identity, "participant"); err != nil {
			return err
		}
		event, err := u.tx.Event(ctx, eventID)
		if err != nil {
			return lookupErr(err, "event", eventID)
		}
		if !event.IsActive() {
			return apperr.WithMetadata(apperr.KindEventNotActive,
				fmt.Sprintf("event %s is not accepting registrations", eventID),
				map[string]string{"event": eventID})
		}

		registered, err := u.tx.Registered(ctx, identity, eventID)
		if err != nil {
			return fmt.Errorf("check registration: %w", err)
		}
		if registered {
			return apperr.WithMetadata(apperr.KindAlreadyRegistered,
				fmt.Sprintf("%s is already registered for event %s", identity, eventID),
				map[string]string{"identity": string(identity), "event": eventID})
		}
		if event.IsFull() {
			return apperr.WithMetadata(apperr.KindEventFull,
				fmt.Sprintf("event %s is full", eventID),
				map[string]string{"event": eventID, "quota": fmt.Sprint(event.Quota)})
		}

		event.ParticipantCount++
		if err := u.tx.UpdateEvent(ctx, event); err != nil {
			return fmt.Errorf("update event %s: %w", eventID, err)
		}
		mark = model.RegistrationMark{Identity: identity, EventID: eventID, RegisteredAt: u.now}
		if err := u.tx.InsertRegistration(ctx, mark); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperr.Newf(apperr.KindAlreadyRegistered, "%s is already registered for event %s", identity, eventID)
			}
			return err
		}
		return u.emit(ctx, model.EventRegistered{Identity: identity, EventID: eventID})
	})
	if err != nil {
		return model.RegistrationMark{}, err
	}

	r.log.Info().
		Str("identity", string(identity)).
		Str("event_id", eventID).
		Msg("registered for event")
	return mark, nil
}

// GetEventRecord returns a single event by id.
func (r *Registry) GetEventRecord(ctx context.Context, eventID string) (model.Event, error) {
	var event model.Event
	err := r.view(ctx, func(tx repository.Tx) error {
		var err error
		event, err = tx.Event(ctx, eventID)
		return err
	})
	if err != nil {
		return model.Event{}, lookupErr(err, "event", eventID)
	}
	return event, nil
}

// IsRegisteredForEvent reports whether identity holds a registration mark
// for the event. Unknown events report false.
func (r *Registry) IsRegisteredForEvent(ctx context.Context, identity model.Identity, eventID string) (bool, error) {
	var registered bool
	err := r.view(ctx, func(tx repository.Tx) error {
		var err error
		registered, err = tx.Registered(ctx, identity, eventID)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("check registration: %w", err)
	}
	return registered, nil
}

// ListEvents returns all events, newest first.
func (r *Registry) ListEvents(ctx context.Context) ([]model.Event, error) {
	var events []model.Event
	err := r.view(ctx, func(tx repository.Tx) error {
		var err error
		events, err = tx.Events(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}
