// Package service implements the registry's business rules: the role
// directory, the fee schedule, the membership ledger and the event catalog.
//
// Every mutating operation runs in one repository transaction that covers
// the authorization check, the guard checks, the write and the journal
// append. Journalled events are handed to the publisher only after commit.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Shivanand-hulikatti/membership-registry/internal/access"
	"github.com/Shivanand-hulikatti/membership-registry/internal/apperr"
	"github.com/Shivanand-hulikatti/membership-registry/internal/model"
	"github.com/Shivanand-hulikatti/membership-registry/internal/notify"
	"github.com/Shivanand-hulikatti/membership-registry/internal/repository"
	"github.com/Shivanand-hulikatti/membership-registry/internal/treasury"
)

// Treasury moves registration fees in and refunds out through the
// transaction's ledger.
type Treasury interface {
	Collect(ctx context.Context, l treasury.Ledger, from model.Identity, amount model.Amount) error
	Refund(ctx context.Context, l treasury.Ledger, to model.Identity, amount model.Amount) error
}

// Registry orchestrates every registry operation.
type Registry struct {
	store     repository.Store
	gate      access.Gate
	treasury  Treasury
	publisher notify.Publisher
	log       zerolog.Logger
	now       func() time.Time
	newID     func() string
	period    time.Duration
}

// Option configures a Registry.
type Option func(*Registry)

// WithPublisher sets the sink for committed domain events.
func WithPublisher(p notify.Publisher) Option {
	return func(r *Registry) { r.publisher = p }
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(r *Registry) { r.log = log }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithIDGenerator replaces the event id generator.
func WithIDGenerator(fn func() string) Option {
	return func(r *Registry) { r.newID = fn }
}

// WithMembershipPeriod sets the period added to the registration time to
// compute the informational expiry date.
func WithMembershipPeriod(d time.Duration) Option {
	return func(r *Registry) { r.period = d }
}

// New constructs a Registry. The gate fixes the owner identity.
func New(store repository.Store, gate access.Gate, t Treasury, opts ...Option) *Registry {
	r := &Registry{
		store:     store,
		gate:      gate,
		treasury:  t,
		publisher: notify.Multi{},
		log:       zerolog.Nop(),
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
		period:    model.DefaultMembershipPeriod,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// unit collects what one write transaction emitted.
type unit struct {
	tx      repository.Tx
	now     time.Time
	entries []model.JournalEntry
}

func (u *unit) emit(ctx context.Context, ev model.DomainEvent) error {
	entry := model.JournalEntry{Type: ev.Type(), OccurredAt: u.now, Event: ev}
	seq, err := u.tx.AppendJournal(ctx, entry)
	if err != nil {
		return fmt.Errorf("journal %s: %w", ev.Type(), err)
	}
	entry.Seq = seq
	u.entries = append(u.entries, entry)
	return nil
}

// update runs fn in a write transaction. Journalled events are published
// once it commits.
func (r *Registry) update(ctx context.Context, op string, fn func(ctx context.Context, u *unit) error) error {
	var u *unit
	err := r.store.Update(ctx, func(tx repository.Tx) error {
		u = &unit{tx: tx, now: r.now().UTC()}
		return fn(ctx, u)
	})
	if err != nil {
		r.logFailure(op, err)
		return err
	}
	r.dispatch(ctx, u.entries)
	return nil
}

func (r *Registry) view(ctx context.Context, fn func(tx repository.Tx) error) error {
	return r.store.View(ctx, fn)
}

func (r *Registry) dispatch(ctx context.Context, entries []model.JournalEntry) {
	for _, entry := range entries {
		if err := r.publisher.Publish(ctx, entry); err != nil {
			r.log.Warn().Err(err).
				Int64("seq", entry.Seq).
				Str("type", entry.Type).
				Msg("failed to publish domain event")
		}
	}
}

func (r *Registry) logFailure(op string, err error) {
	if apperr.KindOf(err) == apperr.KindInternal {
		r.log.Error().Err(err).Str("op", op).Msg("operation failed")
		return
	}
	r.log.Debug().Err(err).Str("op", op).Str("kind", string(apperr.KindOf(err))).Msg("operation rejected")
}

func requireIdentity(identity model.Identity, what string) error {
	if !identity.Valid() {
		return apperr.Newf(apperr.KindInvalidIdentity, "%s identity is required", what)
	}
	return nil
}

// lookupErr maps repository.ErrNotFound to a NotFound domain error and
// wraps anything else.
func lookupErr(err error, entity, key string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.WithMetadata(apperr.KindNotFound,
			fmt.Sprintf("%s %s not found", entity, key),
			map[string]string{entity: key})
	}
	return fmt.Errorf("load %s %s: %w", entity, key, err)
}

// Balance reports the funds refunded to identity and the balance the
// registry holds.
func (r *Registry) Balance(ctx context.Context, identity model.Identity) (model.BalanceResponse, error) {
	resp := model.BalanceResponse{Identity: identity}
	err := r.view(ctx, func(tx repository.Tx) error {
		var err error
		if resp.Held, err = tx.Held(ctx); err != nil {
			return err
		}
		resp.Balance, err = tx.Balance(ctx, identity)
		return err
	})
	if err != nil {
		return model.BalanceResponse{}, fmt.Errorf("read balance of %s: %w", identity, err)
	}
	return resp, nil
}

// Journal returns committed domain events with a sequence number greater
// than after.
func (r *Registry) Journal(ctx context.Context, after int64, limit int) ([]model.JournalEntry, error) {
	var entries []model.JournalEntry
	err := r.view(ctx, func(tx repository.Tx) error {
		var err error
		entries, err = tx.Journal(ctx, after, limit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	return entries, nil
}
