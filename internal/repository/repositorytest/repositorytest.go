// Package repositorytest holds the behaviour every repository.Store
// implementation must share.
package repositorytest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/membership-registry/internal/model"
	"github.com/Shivanand-hulikatti/membership-registry/internal/repository"
)

// Factory returns an empty store. It should register cleanup with t.
type Factory func(t *testing.T) repository.Store

var ts = time.Date(2024, 2, 10, 8, 0, 0, 123456000, time.UTC)

// Run executes the contract suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("Admins", func(t *testing.T) { testAdmins(t, newStore(t)) })
	t.Run("Fees", func(t *testing.T) { testFees(t, newStore(t)) })
	t.Run("Members", func(t *testing.T) { testMembers(t, newStore(t)) })
	t.Run("Events", func(t *testing.T) { testEvents(t, newStore(t)) })
	t.Run("Registrations", func(t *testing.T) { testRegistrations(t, newStore(t)) })
	t.Run("Treasury", func(t *testing.T) { testTreasury(t, newStore(t)) })
	t.Run("Journal", func(t *testing.T) { testJournal(t, newStore(t)) })
	t.Run("Rollback", func(t *testing.T) { testRollback(t, newStore(t)) })
}

func update(t *testing.T, s repository.Store, fn func(ctx context.Context, tx repository.Tx) error) {
	t.Helper()
	ctx := context.Background()
	if err := s.Update(ctx, func(tx repository.Tx) error { return fn(ctx, tx) }); err != nil {
		t.Fatalf("Update: %v", err)
	}
}

func view(t *testing.T, s repository.Store, fn func(ctx context.Context, tx repository.Tx) error) {
	t.Helper()
	ctx := context.Background()
	if err := s.View(ctx, func(tx repository.Tx) error { return fn(ctx, tx) }); err != nil {
		t.Fatalf("View: %v", err)
	}
}

func testAdmins(t *testing.T, s repository.Store) {
	rec := model.AdminRecord{Identity: "eva", Role: model.AdminRoleEvent, CreatedAt: ts}
	update(t, s, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.Admin(ctx, "eva"); !errors.Is(err, repository.ErrNotFound) {
			t.Fatalf("Admin before insert: %v, want ErrNotFound", err)
		}
		return tx.InsertAdmin(ctx, rec)
	})

	ctx := context.Background()
	err := s.Update(ctx, func(tx repository.Tx) error {
		return tx.InsertAdmin(ctx, model.AdminRecord{Identity: "eva", Role: model.AdminRoleMembership, CreatedAt: ts})
	})
	if !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("duplicate InsertAdmin: %v, want ErrDuplicate", err)
	}

	view(t, s, func(ctx context.Context, tx repository.Tx) error {
		got, err := tx.Admin(ctx, "eva")
		if err != nil {
			return err
		}
		if got.Role != model.AdminRoleEvent || !got.CreatedAt.Equal(ts) {
			t.Fatalf("Admin = %+v, want %+v", got, rec)
		}
		return nil
	})
}

func testFees(t *testing.T, s repository.Store) {
	view(t, s, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.Fee(ctx, model.TierGold); !errors.Is(err, repository.ErrNotFound) {
			t.Fatalf("Fee before put: %v, want ErrNotFound", err)
		}
		fees, err := tx.Fees(ctx)
		if err != nil {
			return err
		}
		if len(fees) != 0 {
			t.Fatalf("Fees on empty store = %v", fees)
		}
		return nil
	})

	update(t, s, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.PutFee(ctx, model.TierGold, model.MustParseAmount("0.2")); err != nil {
			return err
		}
		return tx.PutFee(ctx, model.TierGold, 0)
	})
	update(t, s, func(ctx context.Context, tx repository.Tx) error {
		return tx.PutFee(ctx, model.TierVIP, model.MustParseAmount("1.5"))
	})

	view(t, s, func(ctx context.Context, tx repository.Tx) error {
		gold, err := tx.Fee(ctx, model.TierGold)
		if err != nil {
			return err
		}
		if gold != 0 {
			t.Fatalf("gold = %s, want 0 after overwrite", gold)
		}
		fees, err := tx.Fees(ctx)
		if err != nil {
			return err
		}
		if len(fees) != 2 || fees[model.TierVIP] != model.MustParseAmount("1.5") {
			t.Fatalf("Fees = %v", fees)
		}
		return nil
	})
}

func testMembers(t *testing.T, s repository.Store) {
	m := model.MemberRecord{
		Identity:     "alice",
		Tier:         model.TierGold,
		Status:       model.MemberStatusPendingApproval,
		AssignedRole: model.MemberRoleMember,
		RegisteredAt: ts,
		ExpiresAt:    ts.Add(model.DefaultMembershipPeriod),
		PaidAmount:   model.MustParseAmount("0.05"),
	}
	update(t, s, func(ctx context.Context, tx repository.Tx) error {
		return tx.InsertMember(ctx, m)
	})

	ctx := context.Background()
	err := s.Update(ctx, func(tx repository.Tx) error { return tx.InsertMember(ctx, m) })
	if !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("duplicate InsertMember: %v, want ErrDuplicate", err)
	}
	err = s.Update(ctx, func(tx repository.Tx) error {
		ghost := m
		ghost.Identity = "ghost"
		return tx.UpdateMember(ctx, ghost)
	})
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("UpdateMember on missing record: %v, want ErrNotFound", err)
	}

	update(t, s, func(ctx context.Context, tx repository.Tx) error {
		got, err := tx.Member(ctx, "alice")
		if err != nil {
			return err
		}
		got.Status = model.MemberStatusActive
		got.AssignedRole = model.MemberRoleEventAdmin
		return tx.UpdateMember(ctx, got)
	})

	view(t, s, func(ctx context.Context, tx repository.Tx) error {
		got, err := tx.Member(ctx, "alice")
		if err != nil {
			return err
		}
		if got.Status != model.MemberStatusActive || got.AssignedRole != model.MemberRoleEventAdmin {
			t.Fatalf("update not persisted: %+v", got)
		}
		if got.Tier != m.Tier || got.PaidAmount != m.PaidAmount {
			t.Fatalf("fields changed: %+v", got)
		}
		if !got.RegisteredAt.Equal(m.RegisteredAt) || !got.ExpiresAt.Equal(m.ExpiresAt) {
			t.Fatalf("timestamps changed: %+v", got)
		}
		if _, err := tx.Member(ctx, "ghost"); !errors.Is(err, repository.ErrNotFound) {
			t.Fatalf("Member(ghost): %v, want ErrNotFound", err)
		}
		return nil
	})
}

func newEvent(id string, created time.Time) model.Event {
	return model.Event{
		ID:                    id,
		Name:                  "event " + id,
		Quota:                 2,
		EarlyAccessWindowDays: 3,
		EarlyAccessStart:      created,
		Status:                model.EventActive,
		CreatedBy:             "eva",
		CreatedAt:             created,
	}
}

func testEvents(t *testing.T, s repository.Store) {
	update(t, s, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.InsertEvent(ctx, newEvent("a", ts)); err != nil {
			return err
		}
		if err := tx.InsertEvent(ctx, newEvent("b", ts.Add(time.Hour))); err != nil {
			return err
		}
		return tx.InsertEvent(ctx, newEvent("c", ts))
	})

	ctx := context.Background()
	err := s.Update(ctx, func(tx repository.Tx) error { return tx.InsertEvent(ctx, newEvent("a", ts)) })
	if !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("duplicate InsertEvent: %v, want ErrDuplicate", err)
	}

	update(t, s, func(ctx context.Context, tx repository.Tx) error {
		ev, err := tx.Event(ctx, "a")
		if err != nil {
			return err
		}
		ev.ParticipantCount = 2
		ev.Status = model.EventInactive
		return tx.UpdateEvent(ctx, ev)
	})

	view(t, s, func(ctx context.Context, tx repository.Tx) error {
		ev, err := tx.Event(ctx, "a")
		if err != nil {
			return err
		}
		if ev.ParticipantCount != 2 || ev.Status != model.EventInactive || ev.Quota != 2 {
			t.Fatalf("update not persisted: %+v", ev)
		}
		if !ev.EarlyAccessStart.Equal(ts) || ev.CreatedBy != "eva" {
			t.Fatalf("fields changed: %+v", ev)
		}
		if _, err := tx.Event(ctx, "zzz"); !errors.Is(err, repository.ErrNotFound) {
			t.Fatalf("Event(zzz): %v, want ErrNotFound", err)
		}

		events, err := tx.Events(ctx)
		if err != nil {
			return err
		}
		var ids []string
		for _, e := range events {
			ids = append(ids, e.ID)
		}
		if len(ids) != 3 || ids[0] != "b" || ids[1] != "a" || ids[2] != "c" {
			t.Fatalf("Events order = %v, want [b a c]", ids)
		}
		return nil
	})
}

func testRegistrations(t *testing.T, s repository.Store) {
	mark := model.RegistrationMark{Identity: "carl", EventID: "e1", RegisteredAt: ts}
	update(t, s, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.InsertEvent(ctx, newEvent("e1", ts)); err != nil {
			return err
		}
		return tx.InsertRegistration(ctx, mark)
	})

	ctx := context.Background()
	err := s.Update(ctx, func(tx repository.Tx) error { return tx.InsertRegistration(ctx, mark) })
	if !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("duplicate InsertRegistration: %v, want ErrDuplicate", err)
	}

	view(t, s, func(ctx context.Context, tx repository.Tx) error {
		ok, err := tx.Registered(ctx, "carl", "e1")
		if err != nil {
			return err
		}
		if !ok {
			t.Fatal("Registered(carl, e1) = false")
		}
		for _, tc := range []struct {
			identity model.Identity
			event    string
		}{{"dora", "e1"}, {"carl", "e2"}} {
			ok, err := tx.Registered(ctx, tc.identity, tc.event)
			if err != nil {
				return err
			}
			if ok {
				t.Fatalf("Registered(%s, %s) = true", tc.identity, tc.event)
			}
		}
		return nil
	})
}

func testTreasury(t *testing.T, s repository.Store) {
	ctx := context.Background()
	amt := model.MustParseAmount

	view(t, s, func(ctx context.Context, tx repository.Tx) error {
		held, err := tx.Held(ctx)
		if err != nil {
			return err
		}
		balance, err := tx.Balance(ctx, "alice")
		if err != nil {
			return err
		}
		if held != 0 || balance != 0 {
			t.Fatalf("fresh store: held=%s balance=%s", held, balance)
		}
		return nil
	})

	update(t, s, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.AddHeld(ctx, amt("0.05")); err != nil {
			return err
		}
		if err := tx.AddBalance(ctx, "alice", amt("0.01")); err != nil {
			return err
		}
		return tx.AddBalance(ctx, "alice", amt("0.02"))
	})

	expect := func(held, alice, bob model.Amount) {
		t.Helper()
		view(t, s, func(ctx context.Context, tx repository.Tx) error {
			gotHeld, err := tx.Held(ctx)
			if err != nil {
				return err
			}
			gotAlice, err := tx.Balance(ctx, "alice")
			if err != nil {
				return err
			}
			gotBob, err := tx.Balance(ctx, "bob")
			if err != nil {
				return err
			}
			if gotHeld != held || gotAlice != alice || gotBob != bob {
				t.Fatalf("held=%s alice=%s bob=%s, want %s %s %s", gotHeld, gotAlice, gotBob, held, alice, bob)
			}
			return nil
		})
	}
	expect(amt("0.05"), amt("0.03"), 0)

	overdraws := map[string]func(tx repository.Tx) error{
		"held":             func(tx repository.Tx) error { return tx.AddHeld(ctx, -amt("1")) },
		"existing balance": func(tx repository.Tx) error { return tx.AddBalance(ctx, "alice", -amt("0.04")) },
		"missing balance":  func(tx repository.Tx) error { return tx.AddBalance(ctx, "bob", -amt("0.01")) },
	}
	for name, fn := range overdraws {
		if err := s.Update(ctx, fn); !errors.Is(err, repository.ErrNegativeBalance) {
			t.Fatalf("overdraw %s: err = %v, want ErrNegativeBalance", name, err)
		}
	}
	expect(amt("0.05"), amt("0.03"), 0)

	update(t, s, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.AddHeld(ctx, -amt("0.05")); err != nil {
			return err
		}
		return tx.AddBalance(ctx, "alice", -amt("0.03"))
	})
	expect(0, 0, 0)
}

func testJournal(t *testing.T, s repository.Store) {
	events := []model.DomainEvent{
		model.AdminAdded{Identity: "eva", Role: model.AdminRoleEvent},
		model.MemberRegistered{Identity: "alice", Tier: model.TierGold, FeePaid: model.MustParseAmount("0.05"), ExpiryDate: ts},
		model.EventCreated{ID: "e1", Name: "Meetup", Quota: 3, EarlyAccessDays: 2},
	}
	var seqs []int64
	update(t, s, func(ctx context.Context, tx repository.Tx) error {
		for _, ev := range events {
			seq, err := tx.AppendJournal(ctx, model.JournalEntry{Type: ev.Type(), OccurredAt: ts, Event: ev})
			if err != nil {
				return err
			}
			seqs = append(seqs, seq)
		}
		return nil
	})
	for i := 1; i < len(seqs); i++ {
		if seqs[i] <= seqs[i-1] {
			t.Fatalf("sequence numbers not increasing: %v", seqs)
		}
	}

	view(t, s, func(ctx context.Context, tx repository.Tx) error {
		all, err := tx.Journal(ctx, 0, 0)
		if err != nil {
			return err
		}
		if len(all) != len(events) {
			t.Fatalf("Journal returned %d entries, want %d", len(all), len(events))
		}
		for i, entry := range all {
			if entry.Seq != seqs[i] || entry.Type != events[i].Type() {
				t.Fatalf("entry %d = seq %d type %s", i, entry.Seq, entry.Type)
			}
			if !entry.OccurredAt.Equal(ts) {
				t.Fatalf("entry %d OccurredAt = %v", i, entry.OccurredAt)
			}
		}
		reg, ok := all[1].Event.(model.MemberRegistered)
		if !ok || reg.FeePaid != model.MustParseAmount("0.05") || !reg.ExpiryDate.Equal(ts) {
			t.Fatalf("payload not decoded: %#v", all[1].Event)
		}

		tail, err := tx.Journal(ctx, seqs[0], 1)
		if err != nil {
			return err
		}
		if len(tail) != 1 || tail[0].Seq != seqs[1] {
			t.Fatalf("Journal(after=%d, limit=1) = %+v", seqs[0], tail)
		}
		none, err := tx.Journal(ctx, seqs[len(seqs)-1], 0)
		if err != nil {
			return err
		}
		if len(none) != 0 {
			t.Fatalf("Journal past the end = %+v", none)
		}
		return nil
	})
}

func testRollback(t *testing.T, s repository.Store) {
	ctx := context.Background()
	boom := errors.New("boom")
	err := s.Update(ctx, func(tx repository.Tx) error {
		if err := tx.InsertAdmin(ctx, model.AdminRecord{Identity: "eva", Role: model.AdminRoleEvent, CreatedAt: ts}); err != nil {
			return err
		}
		if err := tx.InsertEvent(ctx, newEvent("e1", ts)); err != nil {
			return err
		}
		if err := tx.AddHeld(ctx, model.MustParseAmount("0.05")); err != nil {
			return err
		}
		if err := tx.AddBalance(ctx, "eva", model.MustParseAmount("0.01")); err != nil {
			return err
		}
		if _, err := tx.AppendJournal(ctx, model.JournalEntry{
			Type:       model.TypeEventCreated,
			OccurredAt: ts,
			Event:      model.EventCreated{ID: "e1"},
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Update error = %v, want boom", err)
	}

	view(t, s, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.Admin(ctx, "eva"); !errors.Is(err, repository.ErrNotFound) {
			t.Fatalf("admin survived rollback: %v", err)
		}
		if _, err := tx.Event(ctx, "e1"); !errors.Is(err, repository.ErrNotFound) {
			t.Fatalf("event survived rollback: %v", err)
		}
		entries, err := tx.Journal(ctx, 0, 0)
		if err != nil {
			return err
		}
		if len(entries) != 0 {
			t.Fatalf("journal survived rollback: %+v", entries)
		}
		held, err := tx.Held(ctx)
		if err != nil {
			return err
		}
		balance, err := tx.Balance(ctx, "eva")
		if err != nil {
			return err
		}
		if held != 0 || balance != 0 {
			t.Fatalf("treasury survived rollback: held=%s balance=%s", held, balance)
		}
		return nil
	})
}
