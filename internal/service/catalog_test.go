package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/Shivanand-hulikatti/membership-registry/internal/apperr"
	"github.com/Shivanand-hulikatti/membership-registry/internal/model"
)

func (f *fixture) createEvent(t *testing.T, caller model.Identity, quota int) model.Event {
	t.Helper()
	ev, err := f.reg.CreateEvent(context.Background(), caller, "GopherCon", quota, 7)
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	return ev
}

func TestCreateEvent(t *testing.T) {
	f := newFixture(t)
	f.addAdmin(t, "eva", model.AdminRoleEvent)

	ev, err := f.reg.CreateEvent(context.Background(), "eva", "  Meetup  ", 20, 3)
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	if ev.ID != "evt-1" || ev.Name != "Meetup" {
		t.Fatalf("unexpected id/name %q/%q", ev.ID, ev.Name)
	}
	if ev.Status != model.EventActive || ev.ParticipantCount != 0 || ev.VIPParticipantCount != 0 {
		t.Fatalf("unexpected initial state %+v", ev)
	}
	if !ev.EarlyAccessStart.Equal(fixedNow) || ev.CreatedBy != "eva" {
		t.Fatalf("unexpected metadata %+v", ev)
	}
	want := model.EventCreated{ID: "evt-1", Name: "Meetup", Quota: 20, EarlyAccessDays: 3}
	if got, ok := f.lastEvent(t).(model.EventCreated); !ok || got != want {
		t.Fatalf("event = %#v, want %#v", f.lastEvent(t), want)
	}

	stored, err := f.reg.GetEventRecord(context.Background(), ev.ID)
	if err != nil {
		t.Fatalf("GetEventRecord: %v", err)
	}
	if stored.Quota != 20 || stored.EarlyAccessWindowDays != 3 {
		t.Fatalf("unexpected stored event %+v", stored)
	}
}

func TestCreateEventGuards(t *testing.T) {
	f := newFixture(t)
	f.addAdmin(t, "mia", model.AdminRoleMembership)

	tests := []struct {
		name   string
		caller model.Identity
		evName string
		quota  int
		days   int
		want   *apperr.Error
	}{
		{"membership admin", "mia", "x", 1, 1, apperr.ErrUnauthorized},
		{"stranger", "zed", "x", 1, 1, apperr.ErrUnauthorized},
		{"zero quota", owner, "x", 0, 1, apperr.ErrInvalidQuota},
		{"negative quota", owner, "x", -3, 1, apperr.ErrInvalidQuota},
		{"zero window", owner, "x", 1, 0, apperr.ErrInvalidWindow},
		{"blank name", owner, "   ", 1, 1, apperr.ErrInvalidName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.reg.CreateEvent(context.Background(), tt.caller, tt.evName, tt.quota, tt.days)
			assertKind(t, err, tt.want)
		})
	}
	events, _ := f.reg.ListEvents(context.Background())
	if len(events) != 0 {
		t.Fatalf("%d events created by rejected calls", len(events))
	}
}

func TestCreateEventIDCollisionIsInternal(t *testing.T) {
	f := newFixture(t, WithIDGenerator(func() string { return "same" }))
	f.createEvent(t, owner, 1)

	_, err := f.reg.CreateEvent(context.Background(), owner, "Again", 1, 1)
	if apperr.KindOf(err) != apperr.KindInternal {
		t.Fatalf("kind = %s (%v), want INTERNAL", apperr.KindOf(err), err)
	}
	events, _ := f.reg.ListEvents(context.Background())
	if len(events) != 1 || events[0].Name != "GopherCon" {
		t.Fatalf("collision overwrote the existing event: %+v", events)
	}
}

func TestCancelEventIsOneWay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addAdmin(t, "eva", model.AdminRoleEvent)
	ev := f.createEvent(t, "eva", 2)
	if _, err := f.reg.RegisterToEvent(ctx, "carl", ev.ID); err != nil {
		t.Fatalf("RegisterToEvent: %v", err)
	}

	cancelled, err := f.reg.CancelEvent(ctx, owner, ev.ID)
	if err != nil {
		t.Fatalf("CancelEvent: %v", err)
	}
	if cancelled.Status != model.EventInactive {
		t.Fatalf("status = %s", cancelled.Status)
	}
	if got, ok := f.lastEvent(t).(model.EventCancelled); !ok || got.ID != ev.ID {
		t.Fatalf("unexpected event %#v", f.lastEvent(t))
	}

	_, err = f.reg.CancelEvent(ctx, "eva", ev.ID)
	assertKind(t, err, apperr.ErrAlreadyInactive)

	// Existing marks survive cancellation.
	ok, err := f.reg.IsRegisteredForEvent(ctx, "carl", ev.ID)
	if err != nil || !ok {
		t.Fatalf("IsRegisteredForEvent = %v, %v", ok, err)
	}
	_, err = f.reg.RegisterToEvent(ctx, "dora", ev.ID)
	assertKind(t, err, apperr.ErrEventNotActive)
}

func TestCancelEventGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addAdmin(t, "mia", model.AdminRoleMembership)
	ev := f.createEvent(t, owner, 1)

	_, err := f.reg.CancelEvent(ctx, "mia", ev.ID)
	assertKind(t, err, apperr.ErrUnauthorized)
	_, err = f.reg.CancelEvent(ctx, owner, "missing")
	assertKind(t, err, apperr.ErrNotFound)
}

func TestRegisterToEventCapacity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const quota = 3
	ev := f.createEvent(t, owner, quota)

	for i := 1; i <= quota; i++ {
		id := model.Identity(fmt.Sprintf("p%d", i))
		mark, err := f.reg.RegisterToEvent(ctx, id, ev.ID)
		if err != nil {
			t.Fatalf("registration %d: %v", i, err)
		}
		if mark.Identity != id || mark.EventID != ev.ID {
			t.Fatalf("unexpected mark %+v", mark)
		}
	}
	_, err := f.reg.RegisterToEvent(ctx, "late", ev.ID)
	assertKind(t, err, apperr.ErrEventFull)

	stored, _ := f.reg.GetEventRecord(ctx, ev.ID)
	if stored.ParticipantCount != quota {
		t.Fatalf("ParticipantCount = %d, want %d", stored.ParticipantCount, quota)
	}
	if ok, _ := f.reg.IsRegisteredForEvent(ctx, "late", ev.ID); ok {
		t.Fatal("mark written for a full event")
	}
}

func TestRegisterToEventGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.createEvent(t, owner, 5)
	if _, err := f.reg.RegisterToEvent(ctx, "carl", ev.ID); err != nil {
		t.Fatalf("RegisterToEvent: %v", err)
	}

	_, err := f.reg.RegisterToEvent(ctx, "carl", ev.ID)
	assertKind(t, err, apperr.ErrAlreadyRegistered)
	_, err = f.reg.RegisterToEvent(ctx, "carl", "missing")
	assertKind(t, err, apperr.ErrNotFound)
	_, err = f.reg.RegisterToEvent(ctx, "", ev.ID)
	assertKind(t, err, apperr.ErrInvalidIdentity)

	stored, _ := f.reg.GetEventRecord(ctx, ev.ID)
	if stored.ParticipantCount != 1 {
		t.Fatalf("ParticipantCount = %d, want 1", stored.ParticipantCount)
	}
	if got, ok := f.lastEvent(t).(model.EventRegistered); !ok || got.Identity != "carl" {
		t.Fatalf("unexpected event %#v", f.lastEvent(t))
	}
}

func TestConcurrentRegistrationNeverOverbooks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const (
		quota   = 7
		callers = 60
	)
	ev := f.createEvent(t, owner, quota)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		full      int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.reg.RegisterToEvent(ctx, model.Identity(fmt.Sprintf("c%d", i)), ev.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, apperr.ErrEventFull):
				full++
			default:
				t.Errorf("caller %d: unexpected error %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if succeeded != quota || full != callers-quota {
		t.Fatalf("succeeded=%d full=%d, want %d and %d", succeeded, full, quota, callers-quota)
	}
	stored, _ := f.reg.GetEventRecord(ctx, ev.ID)
	if stored.ParticipantCount != quota {
		t.Fatalf("ParticipantCount = %d, want %d", stored.ParticipantCount, quota)
	}
}

func TestListEventsNewestFirst(t *testing.T) {
	f := newFixture(t)
	f.createEvent(t, owner, 1)
	f.createEvent(t, owner, 1)

	events, err := f.reg.ListEvents(context.Background())
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	// Same creation time, so ties break on id.
	if len(events) != 2 || events[0].ID != "evt-1" || events[1].ID != "evt-2" {
		t.Fatalf("unexpected order %+v", events)
	}
}
