package access

import (
	"context"
	"errors"
	"testing"

	"github.com/Shivanand-hulikatti/membership-registry/internal/apperr"
	"github.com/Shivanand-hulikatti/membership-registry/internal/model"
	"github.com/Shivanand-hulikatti/membership-registry/internal/repository"
)

type directory map[model.Identity]model.AdminRole

func (d directory) Admin(_ context.Context, identity model.Identity) (model.AdminRecord, error) {
	role, ok := d[identity]
	if !ok {
		return model.AdminRecord{}, repository.ErrNotFound
	}
	return model.AdminRecord{Identity: identity, Role: role}, nil
}

type brokenDirectory struct{}

func (brokenDirectory) Admin(context.Context, model.Identity) (model.AdminRecord, error) {
	return model.AdminRecord{}, errors.New("connection refused")
}

func TestNewGateRequiresOwner(t *testing.T) {
	if _, err := NewGate("  "); err == nil {
		t.Fatal("blank owner accepted")
	}
}

func TestAuthorize(t *testing.T) {
	gate, err := NewGate("root")
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	dir := directory{"eva": model.AdminRoleEvent, "mia": model.AdminRoleMembership}

	tests := []struct {
		name   string
		caller model.Identity
		caps   Capability
		allow  bool
	}{
		{"owner only, owner", "root", CapOwner, true},
		{"owner only, event admin", "eva", CapOwner, false},
		{"owner or event admin, event admin", "eva", CapOwner | CapEventAdmin, true},
		{"owner or event admin, membership admin", "mia", CapOwner | CapEventAdmin, false},
		{"owner or membership admin, membership admin", "mia", CapOwner | CapMembershipAdmin, true},
		{"owner or membership admin, owner", "root", CapOwner | CapMembershipAdmin, true},
		{"event admin only, owner", "root", CapEventAdmin, false},
		{"stranger", "zed", CapOwner | CapEventAdmin | CapMembershipAdmin, false},
		{"anyone", "zed", CapAnyone, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := gate.Authorize(context.Background(), dir, tt.caller, tt.caps)
			if tt.allow {
				if err != nil {
					t.Fatalf("Authorize: %v", err)
				}
				return
			}
			if !errors.Is(err, apperr.ErrUnauthorized) {
				t.Fatalf("err = %v, want Unauthorized", err)
			}
		})
	}
}

func TestAuthorizeMetadata(t *testing.T) {
	gate, _ := NewGate("root")
	err := gate.Authorize(context.Background(), directory{}, "zed", CapOwner|CapMembershipAdmin)
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("err = %v, want *apperr.Error", err)
	}
	if appErr.Metadata["caller"] != "zed" || appErr.Metadata["required"] != "owner|membership_admin" {
		t.Fatalf("metadata = %v", appErr.Metadata)
	}
}

func TestAuthorizePropagatesLookupFailure(t *testing.T) {
	gate, _ := NewGate("root")
	err := gate.Authorize(context.Background(), brokenDirectory{}, "eva", CapEventAdmin)
	if err == nil || errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("err = %v, want lookup failure", err)
	}
	if apperr.KindOf(err) != apperr.KindInternal {
		t.Fatalf("kind = %s", apperr.KindOf(err))
	}
}

func TestRole(t *testing.T) {
	gate, _ := NewGate("root")
	role, err := gate.Role(context.Background(), directory{"eva": model.AdminRoleEvent}, "nobody")
	if err != nil || role != model.AdminRoleNone {
		t.Fatalf("Role(nobody) = %q, %v", role, err)
	}
}
