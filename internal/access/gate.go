// Package access answers who may perform a mutating registry operation.
//
// The role directory itself lives in the repository; the Gate only reads it
// through a RoleReader, which is normally the caller's open transaction so
// that the authorization check and the mutation observe the same state.
package access

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Shivanand-hulikatti/membership-registry/internal/apperr"
	"github.com/Shivanand-hulikatti/membership-registry/internal/model"
	"github.com/Shivanand-hulikatti/membership-registry/internal/repository"
)

// Capability is a set of roles allowed to perform an operation.
type Capability uint8

const (
	CapOwner Capability = 1 << iota
	CapEventAdmin
	CapMembershipAdmin

	// CapAnyone skips the role check entirely.
	CapAnyone Capability = 0
)

// Has reports whether c includes every bit of other.
func (c Capability) Has(other Capability) bool {
	return c&other == other
}

func (c Capability) String() string {
	if c == CapAnyone {
		return "anyone"
	}
	var parts []string
	if c.Has(CapOwner) {
		parts = append(parts, "owner")
	}
	if c.Has(CapEventAdmin) {
		parts = append(parts, "event_admin")
	}
	if c.Has(CapMembershipAdmin) {
		parts = append(parts, "membership_admin")
	}
	return strings.Join(parts, "|")
}

// RoleReader looks up admin records.
type RoleReader interface {
	Admin(ctx context.Context, identity model.Identity) (model.AdminRecord, error)
}

// Gate holds the owner identity fixed at startup.
type Gate struct {
	owner model.Identity
}

// NewGate returns a gate for the given owner.
func NewGate(owner model.Identity) (Gate, error) {
	if !owner.Valid() {
		return Gate{}, fmt.Errorf("owner identity is required")
	}
	return Gate{owner: owner}, nil
}

// Owner returns the owner identity.
func (g Gate) Owner() model.Identity {
	return g.owner
}

// IsOwner reports whether identity is the owner.
func (g Gate) IsOwner(identity model.Identity) bool {
	return identity == g.owner
}

// Role returns the directory role of identity, or AdminRoleNone.
func (g Gate) Role(ctx context.Context, r RoleReader, identity model.Identity) (model.AdminRole, error) {
	rec, err := r.Admin(ctx, identity)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.AdminRoleNone, nil
		}
		return model.AdminRoleNone, fmt.Errorf("lookup admin %s: %w", identity, err)
	}
	return rec.Role, nil
}

// Authorize returns nil when caller holds at least one capability in caps.
// The owner passes whenever caps includes CapOwner.
func (g Gate) Authorize(ctx context.Context, r RoleReader, caller model.Identity, caps Capability) error {
	if caps == CapAnyone {
		return nil
	}
	if caps.Has(CapOwner) && g.IsOwner(caller) {
		return nil
	}
	if caps.Has(CapEventAdmin) || caps.Has(CapMembershipAdmin) {
		role, err := g.Role(ctx, r, caller)
		if err != nil {
			return err
		}
		switch {
		case role == model.AdminRoleEvent && caps.Has(CapEventAdmin):
			return nil
		case role == model.AdminRoleMembership && caps.Has(CapMembershipAdmin):
			return nil
		}
	}
	return apperr.WithMetadata(apperr.KindUnauthorized,
		fmt.Sprintf("%s requires %s", caller, caps),
		map[string]string{"caller": string(caller), "required": caps.String()})
}
