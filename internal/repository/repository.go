// Package repository defines persistence for the registry.
//
// Every operation runs inside a Tx obtained from Store.Update (read-write,
// serialised per entity) or Store.View (read-only). Implementations live in
// the memory, postgres and sqlite subpackages and share the contract tests in
// repositorytest.
package repository

import (
	"context"
	"errors"

	"github.com/Shivanand-hulikatti/membership-registry/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert would violate a uniqueness key.
var ErrDuplicate = errors.New("duplicate key")

// ErrNegativeBalance is returned when an adjustment would take the held
// funds or an identity balance below zero.
var ErrNegativeBalance = errors.New("negative balance")

// DefaultJournalLimit caps Journal reads that pass no limit.
const DefaultJournalLimit = 1000

// Store opens transactions.
type Store interface {
	// Update runs fn in a read-write transaction. The transaction commits
	// only when fn returns nil; otherwise nothing fn wrote is kept.
	Update(ctx context.Context, fn func(tx Tx) error) error
	// View runs fn in a read-only transaction.
	View(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// Tx is the set of reads and writes available inside a transaction. Reads
// inside Update lock the returned entity until the transaction ends.
type Tx interface {
	Admin(ctx context.Context, identity model.Identity) (model.AdminRecord, error)
	InsertAdmin(ctx context.Context, rec model.AdminRecord) error

	// Fee returns ErrNotFound for tiers never set explicitly.
	Fee(ctx context.Context, tier model.Tier) (model.Amount, error)
	Fees(ctx context.Context) (map[model.Tier]model.Amount, error)
	PutFee(ctx context.Context, tier model.Tier, amount model.Amount) error

	Member(ctx context.Context, identity model.Identity) (model.MemberRecord, error)
	InsertMember(ctx context.Context, rec model.MemberRecord) error
	UpdateMember(ctx context.Context, rec model.MemberRecord) error

	Event(ctx context.Context, id string) (model.Event, error)
	Events(ctx context.Context) ([]model.Event, error)
	InsertEvent(ctx context.Context, ev model.Event) error
	UpdateEvent(ctx context.Context, ev model.Event) error

	Registered(ctx context.Context, identity model.Identity, eventID string) (bool, error)
	InsertRegistration(ctx context.Context, mark model.RegistrationMark) error

	// Held returns the funds the registry holds for pending members. Inside
	// Update it locks the treasury until the transaction ends.
	Held(ctx context.Context) (model.Amount, error)
	// AddHeld adds delta, which may be negative, to the held funds. It fails
	// with ErrNegativeBalance if the result would drop below zero.
	AddHeld(ctx context.Context, delta model.Amount) error
	// Balance returns the funds paid out to identity; zero if none.
	Balance(ctx context.Context, identity model.Identity) (model.Amount, error)
	// AddBalance adds delta, which may be negative, to identity's balance.
	AddBalance(ctx context.Context, identity model.Identity, delta model.Amount) error

	// AppendJournal records a domain event and returns its sequence
	// number. The entry becomes visible on commit.
	AppendJournal(ctx context.Context, entry model.JournalEntry) (int64, error)
	// Journal returns up to limit entries with Seq greater than after,
	// DefaultJournalLimit when limit is not positive.
	Journal(ctx context.Context, after int64, limit int) ([]model.JournalEntry, error)
}
