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

// RegisterMember creates a pending member record for identity after checking
// that paid equals the current fee for tier exactly. The payment is held by
// the treasury until the registration is approved or rejected.
func (r *Registry) RegisterMember(ctx context.Context, identity model.Identity, tier model.Tier, paid model.Amount) (model.MemberRecord, error) {
	var member model.MemberRecord
	err := r.update(ctx, "register_member", func(ctx context.Context, u *unit) error {
		if err := requireIdentity(identity, "member"); err != nil {
			return err
		}

		_, err := u.tx.Member(ctx, identity)
		switch {
		case err == nil:
			return alreadyMember(identity)
		case !errors.Is(err, repository.ErrNotFound):
			return fmt.Errorf("load member %s: %w", identity, err)
		}

		if !tier.Registrable() {
			return apperr.WithMetadata(apperr.KindInvalidTier,
				fmt.Sprintf("cannot register with tier %q", tier),
				map[string]string{"tier": string(tier)})
		}
		fee, err := currentFee(ctx, u.tx, tier)
		if err != nil {
			return err
		}
		if paid != fee {
			return apperr.WithMetadata(apperr.KindIncorrectPayment,
				fmt.Sprintf("tier %s requires %s, got %s", tier, fee, paid),
				map[string]string{"tier": string(tier), "required": fee.String(), "paid": paid.String()})
		}

		member = model.MemberRecord{
			Identity:     identity,
			Tier:         tier,
			Status:       model.MemberStatusPendingApproval,
			AssignedRole: model.MemberRoleMember,
			RegisteredAt: u.now,
			ExpiresAt:    u.now.Add(r.period),
			PaidAmount:   paid,
		}
		if err := u.tx.InsertMember(ctx, member); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return alreadyMember(identity)
			}
			return err
		}
		if err := u.emit(ctx, model.MemberRegistered{
			Identity:   identity,
			Tier:       tier,
			FeePaid:    paid,
			ExpiryDate: member.ExpiresAt,
		}); err != nil {
			return err
		}

		if err := r.treasury.Collect(ctx, u.tx, identity, paid); err != nil {
			return fmt.Errorf("collect fee from %s: %w", identity, err)
		}
		return nil
	})
	if err != nil {
		return model.MemberRecord{}, err
	}

	r.log.Info().
		Str("identity", string(identity)).
		Str("tier", string(tier)).
		Stringer("paid", paid).
		Time("expires_at", member.ExpiresAt).
		Msg("member registered")
	return member, nil
}

func alreadyMember(identity model.Identity) error {
	return apperr.WithMetadata(apperr.KindAlreadyRegistered,
		fmt.Sprintf("%s is already registered", identity),
		map[string]string{"identity": string(identity)})
}

// ApproveRegistration activates a pending member. The held fee is retained.
func (r *Registry) ApproveRegistration(ctx context.Context, caller, identity model.Identity) (model.MemberRecord, error) {
	var member model.MemberRecord
	err := r.update(ctx, "approve_registration", func(ctx context.Context, u *unit) error {
		var err error
		member, err = r.pendingMember(ctx, u, caller, identity)
		if err != nil {
			return err
		}
		member.Status = model.MemberStatusActive
		if err := u.tx.UpdateMember(ctx, member); err != nil {
			return fmt.Errorf("update member %s: %w", identity, err)
		}
		return u.emit(ctx, model.MemberApproved{Identity: identity})
	})
	if err != nil {
		return model.MemberRecord{}, err
	}

	r.log.Info().
		Str("caller", string(caller)).
		Str("identity", string(identity)).
		Msg("registration approved")
	return member, nil
}

// RejectRegistration rejects a pending member and refunds the current fee
// for the member's tier. When the refund cannot be delivered the member
// stays pending and nothing moves.
func (r *Registry) RejectRegistration(ctx context.Context, caller, identity model.Identity) (model.MemberRecord, model.Amount, error) {
	var (
		member model.MemberRecord
		refund model.Amount
	)
	err := r.update(ctx, "reject_registration", func(ctx context.Context, u *unit) error {
		var err error
		member, err = r.pendingMember(ctx, u, caller, identity)
		if err != nil {
			return err
		}
		// The refund follows the schedule in force now, which may differ
		// from PaidAmount if the fee changed since registration.
		refund, err = currentFee(ctx, u.tx, member.Tier)
		if err != nil {
			return err
		}

		member.Status = model.MemberStatusRejected
		if err := u.tx.UpdateMember(ctx, member); err != nil {
			return fmt.Errorf("update member %s: %w", identity, err)
		}
		if err := u.emit(ctx, model.MemberRejected{Identity: identity, RefundAmount: refund}); err != nil {
			return err
		}

		if err := r.treasury.Refund(ctx, u.tx, identity, refund); err != nil {
			if apperr.KindOf(err) == apperr.KindTransferFailed {
				return err
			}
			return apperr.Wrap(apperr.KindTransferFailed, fmt.Sprintf("refund to %s failed", identity), err)
		}
		return nil
	})
	if err != nil {
		return model.MemberRecord{}, 0, err
	}

	r.log.Info().
		Str("caller", string(caller)).
		Str("identity", string(identity)).
		Stringer("refund", refund).
		Msg("registration rejected")
	return member, refund, nil
}

// pendingMember authorizes caller as owner or membership admin and loads a
// member that is still awaiting a decision.
func (r *Registry) pendingMember(ctx context.Context, u *unit, caller, identity model.Identity) (model.MemberRecord, error) {
	if err := r.gate.Authorize(ctx, u.tx, caller, access.CapOwner|access.CapMembershipAdmin); err != nil {
		return model.MemberRecord{}, err
	}
	member, err := u.tx.Member(ctx, identity)
	if err != nil {
		return model.MemberRecord{}, lookupErr(err, "member", string(identity))
	}
	if !member.Pending() {
		return model.MemberRecord{}, apperr.WithMetadata(apperr.KindInvalidState,
			fmt.Sprintf("member %s is %s, not pending approval", identity, member.Status),
			map[string]string{"identity": string(identity), "status": string(member.Status)})
	}
	return member, nil
}

// GetMemberRecord returns the member record for identity.
func (r *Registry) GetMemberRecord(ctx context.Context, identity model.Identity) (model.MemberRecord, error) {
	var member model.MemberRecord
	err := r.view(ctx, func(tx repository.Tx) error {
		var err error
		member, err = tx.Member(ctx, identity)
		return err
	})
	if err != nil {
		return model.MemberRecord{}, lookupErr(err, "member", string(identity))
	}
	return member, nil
}
