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

// AddAdmin grants identity an administrative role. Only the owner may call
// it, and an identity can be granted a role once.
func (r *Registry) AddAdmin(ctx context.Context, caller, identity model.Identity, role model.AdminRole) (model.AdminRecord, error) {
	var rec model.AdminRecord
	err := r.update(ctx, "add_admin", func(ctx context.Context, u *unit) error {
		if err := r.gate.Authorize(ctx, u.tx, caller, access.CapOwner); err != nil {
			return err
		}
		if err := requireIdentity(identity, "admin"); err != nil {
			return err
		}
		if role != model.AdminRoleEvent && role != model.AdminRoleMembership {
			return apperr.Newf(apperr.KindInvalidRole, "unknown admin role %q", role)
		}

		_, err := u.tx.Admin(ctx, identity)
		switch {
		case err == nil:
			return alreadyAdmin(identity)
		case !errors.Is(err, repository.ErrNotFound):
			return fmt.Errorf("load admin %s: %w", identity, err)
		}

		rec = model.AdminRecord{Identity: identity, Role: role, CreatedAt: u.now}
		if err := u.tx.InsertAdmin(ctx, rec); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return alreadyAdmin(identity)
			}
			return err
		}
		return u.emit(ctx, model.AdminAdded{Identity: identity, Role: role})
	})
	if err != nil {
		return model.AdminRecord{}, err
	}

	r.log.Info().
		Str("caller", string(caller)).
		Str("identity", string(identity)).
		Str("role", string(role)).
		Msg("admin added")
	return rec, nil
}

func alreadyAdmin(identity model.Identity) error {
	return apperr.WithMetadata(apperr.KindAlreadyExists,
		fmt.Sprintf("%s already holds an admin role", identity),
		map[string]string{"identity": string(identity)})
}

// AssignMemberRole overwrites the role on identity's member record
// regardless of its status. Only the owner may call it.
func (r *Registry) AssignMemberRole(ctx context.Context, caller, identity model.Identity, role model.MemberRole) (model.MemberRecord, error) {
	var member model.MemberRecord
	err := r.update(ctx, "assign_member_role", func(ctx context.Context, u *unit) error {
		if err := r.gate.Authorize(ctx, u.tx, caller, access.CapOwner); err != nil {
			return err
		}
		if _, err := model.ParseMemberRole(string(role)); err != nil {
			return apperr.Wrap(apperr.KindInvalidRole, "invalid member role", err)
		}

		var err error
		member, err = u.tx.Member(ctx, identity)
		if err != nil {
			return lookupErr(err, "member", string(identity))
		}
		member.AssignedRole = role
		if err := u.tx.UpdateMember(ctx, member); err != nil {
			return fmt.Errorf("update member %s: %w", identity, err)
		}
		return u.emit(ctx, model.RoleAssigned{Identity: identity, Role: role})
	})
	if err != nil {
		return model.MemberRecord{}, err
	}

	r.log.Info().
		Str("identity", string(identity)).
		Str("role", string(role)).
		Msg("member role assigned")
	return member, nil
}

// IsOwner reports whether identity is the owner.
func (r *Registry) IsOwner(_ context.Context, identity model.Identity) bool {
	return r.gate.IsOwner(identity)
}

// IsEventAdmin reports whether identity holds the event admin role.
func (r *Registry) IsEventAdmin(ctx context.Context, identity model.Identity) bool {
	return r.adminRole(ctx, identity) == model.AdminRoleEvent
}

// IsMembershipAdmin reports whether identity holds the membership admin role.
func (r *Registry) IsMembershipAdmin(ctx context.Context, identity model.Identity) bool {
	return r.adminRole(ctx, identity) == model.AdminRoleMembership
}

// Roles answers all three role predicates at once.
func (r *Registry) Roles(ctx context.Context, identity model.Identity) model.RoleSummary {
	role := r.adminRole(ctx, identity)
	return model.RoleSummary{
		Identity:          identity,
		IsOwner:           r.gate.IsOwner(identity),
		IsEventAdmin:      role == model.AdminRoleEvent,
		IsMembershipAdmin: role == model.AdminRoleMembership,
	}
}

// adminRole never fails; a store error is logged and reported as no role.
func (r *Registry) adminRole(ctx context.Context, identity model.Identity) model.AdminRole {
	role := model.AdminRoleNone
	err := r.view(ctx, func(tx repository.Tx) error {
		var err error
		role, err = r.gate.Role(ctx, tx, identity)
		return err
	})
	if err != nil {
		r.log.Error().Err(err).Str("identity", string(identity)).Msg("role lookup failed")
		return model.AdminRoleNone
	}
	return role
}
