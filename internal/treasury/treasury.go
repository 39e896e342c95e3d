// Package treasury moves registration fees into the balance the registry
// holds and refunds out of it.
//
// Funds are recorded through the caller's store transaction, so a transfer
// commits or rolls back together with the state change that caused it.
// Identities named with Refuse (or TREASURY_REFUSING at startup) model
// recipients that cannot accept funds: every refund to them fails.
package treasury

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Shivanand-hulikatti/membership-registry/internal/apperr"
	"github.com/Shivanand-hulikatti/membership-registry/internal/model"
	"github.com/Shivanand-hulikatti/membership-registry/internal/repository"
)

// Ledger is the persisted side of the treasury. repository.Tx satisfies it.
type Ledger interface {
	Held(ctx context.Context) (model.Amount, error)
	AddHeld(ctx context.Context, delta model.Amount) error
	Balance(ctx context.Context, identity model.Identity) (model.Amount, error)
	AddBalance(ctx context.Context, identity model.Identity, delta model.Amount) error
}

// Treasury applies transfers to a Ledger. The zero value is not usable;
// call New.
type Treasury struct {
	mu       sync.RWMutex
	refusing map[model.Identity]bool
}

// New returns a treasury that refuses refunds to the given identities.
func New(refusing ...model.Identity) *Treasury {
	t := &Treasury{refusing: map[model.Identity]bool{}}
	for _, id := range refusing {
		t.refusing[id] = true
	}
	return t
}

// Collect moves amount paid by from into the held balance.
func (t *Treasury) Collect(ctx context.Context, l Ledger, from model.Identity, amount model.Amount) error {
	if amount < 0 {
		return apperr.Newf(apperr.KindInvalidAmount, "cannot collect negative amount %s", amount)
	}
	if err := l.AddHeld(ctx, amount); err != nil {
		return fmt.Errorf("collect %s from %s: %w", amount, from, err)
	}
	return nil
}

// Refund pays amount from the held balance to to. It fails with
// TransferFailed when the recipient refuses funds or the held balance cannot
// cover the amount; nothing moves in that case.
func (t *Treasury) Refund(ctx context.Context, l Ledger, to model.Identity, amount model.Amount) error {
	if amount < 0 {
		return apperr.Newf(apperr.KindInvalidAmount, "cannot refund negative amount %s", amount)
	}
	meta := map[string]string{"identity": string(to), "amount": amount.String()}
	if t.refuses(to) {
		return apperr.WithMetadata(apperr.KindTransferFailed,
			fmt.Sprintf("%s does not accept transfers", to), meta)
	}

	held, err := l.Held(ctx)
	if err != nil {
		return fmt.Errorf("read held balance: %w", err)
	}
	if amount > held {
		return apperr.WithMetadata(apperr.KindTransferFailed,
			fmt.Sprintf("held balance %s cannot cover refund of %s", held, amount), meta)
	}

	if err := l.AddHeld(ctx, -amount); err != nil {
		if errors.Is(err, repository.ErrNegativeBalance) {
			return apperr.WithMetadata(apperr.KindTransferFailed, "held balance cannot cover refund", meta)
		}
		return fmt.Errorf("debit held balance: %w", err)
	}
	if err := l.AddBalance(ctx, to, amount); err != nil {
		return fmt.Errorf("credit %s: %w", to, err)
	}
	return nil
}

// Refuse makes every later refund to identity fail.
func (t *Treasury) Refuse(identity model.Identity) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.refusing[identity] = true
}

// Accept clears a previous Refuse.
func (t *Treasury) Accept(identity model.Identity) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.refusing, identity)
}

func (t *Treasury) refuses(identity model.Identity) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.refusing[identity]
}
