package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Shivanand-hulikatti/membership-registry/internal/access"
	"github.com/Shivanand-hulikatti/membership-registry/internal/apperr"
	"github.com/Shivanand-hulikatti/membership-registry/internal/model"
	"github.com/Shivanand-hulikatti/membership-registry/internal/repository"
)

// SetFee overwrites the fee for tier. The owner and membership admins may
// call it; zero is allowed, NotApplicable is fixed at zero.
func (r *Registry) SetFee(ctx context.Context, caller model.Identity, tier model.Tier, amount model.Amount) error {
	err := r.update(ctx, "set_fee", func(ctx context.Context, u *unit) error {
		if err := r.gate.Authorize(ctx, u.tx, caller, access.CapOwner|access.CapMembershipAdmin); err != nil {
			return err
		}
		if !tier.Registrable() {
			return apperr.WithMetadata(apperr.KindInvalidTier,
				fmt.Sprintf("fee for tier %q cannot be set", tier),
				map[string]string{"tier": string(tier)})
		}
		if amount < 0 {
			return apperr.Newf(apperr.KindInvalidAmount, "fee must not be negative, got %s", amount)
		}
		if err := u.tx.PutFee(ctx, tier, amount); err != nil {
			return fmt.Errorf("put fee %s: %w", tier, err)
		}
		return u.emit(ctx, model.FeeUpdated{Caller: caller, Tier: tier, NewAmount: amount})
	})
	if err != nil {
		return err
	}

	r.log.Info().
		Str("caller", string(caller)).
		Str("tier", string(tier)).
		Stringer("amount", amount).
		Msg("fee updated")
	return nil
}

// GetFee returns the current fee for tier, or its default when it was never
// set.
func (r *Registry) GetFee(ctx context.Context, tier model.Tier) (model.Amount, error) {
	if _, err := model.ParseTier(string(tier)); err != nil {
		return 0, apperr.Wrap(apperr.KindInvalidTier, "invalid tier", err)
	}
	var fee model.Amount
	err := r.view(ctx, func(tx repository.Tx) error {
		var err error
		fee, err = currentFee(ctx, tx, tier)
		return err
	})
	if err != nil {
		return 0, err
	}
	return fee, nil
}

// Fees returns the full schedule with defaults filled in.
func (r *Registry) Fees(ctx context.Context) (map[model.Tier]model.Amount, error) {
	schedule := make(map[model.Tier]model.Amount, len(model.Tiers))
	for tier, fee := range model.DefaultFees {
		schedule[tier] = fee
	}
	err := r.view(ctx, func(tx repository.Tx) error {
		set, err := tx.Fees(ctx)
		if err != nil {
			return err
		}
		for tier, fee := range set {
			if tier.Registrable() {
				schedule[tier] = fee
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list fees: %w", err)
	}
	return schedule, nil
}

func currentFee(ctx context.Context, tx repository.Tx, tier model.Tier) (model.Amount, error) {
	if tier == model.TierNotApplicable {
		return 0, nil
	}
	fee, err := tx.Fee(ctx, tier)
	if errors.Is(err, repository.ErrNotFound) {
		return model.DefaultFees[tier], nil
	}
	if err != nil {
		return 0, fmt.Errorf("load fee %s: %w", tier, err)
	}
	return fee, nil
}
