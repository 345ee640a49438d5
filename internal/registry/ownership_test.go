package registry

import (
	"context"
	"errors"
	"testing"
)

type fakeAdmin map[string]bool

func (f fakeAdmin) IsAdmin(userID string) bool { return f[userID] }

func TestOwnership_AddRemoveAndPrivilegeChecks(t *testing.T) {
	ctx := context.Background()
	core, store := newTestCore(fakeAdmin{"root": true})

	if err := store.InitModuleRecord(ctx, moduleInfoFixture("Kb", 1)); err != nil {
		t.Fatalf("InitModuleRecord: %v", err)
	}

	// Admin can add an owner even though nobody owns the module yet.
	if err := core.AddOwner(ctx, "root", "Kb", "alice", true); err != nil {
		t.Fatalf("AddOwner by admin: %v", err)
	}

	// alice holds change-owners, so she can add bob; bob, without it,
	// cannot add another owner.
	if err := core.AddOwner(ctx, "alice", "Kb", "bob", false); err != nil {
		t.Fatalf("AddOwner by alice (has change-owners): %v", err)
	}

	if err := core.AddOwner(ctx, "bob", "Kb", "carol", false); !errors.Is(err, ErrNoSuchPrivilege) {
		t.Fatalf("expected ErrNoSuchPrivilege for bob (no change-owners), got %v", err)
	}

	mods, err := core.GetModulesByOwner(ctx, "bob")
	if err != nil {
		t.Fatalf("GetModulesByOwner: %v", err)
	}
	if len(mods) != 1 || mods[0] != "Kb" {
		t.Fatalf("expected [Kb], got %v", mods)
	}

	if err := core.RemoveOwner(ctx, "carol", "Kb", "bob"); !errors.Is(err, ErrNoSuchPrivilege) {
		t.Fatalf("expected ErrNoSuchPrivilege removing without privilege, got %v", err)
	}
	if err := core.RemoveOwner(ctx, "root", "Kb", "bob"); err != nil {
		t.Fatalf("RemoveOwner by admin: %v", err)
	}
	mods, err = core.GetModulesByOwner(ctx, "bob")
	if err != nil {
		t.Fatalf("GetModulesByOwner after removal: %v", err)
	}
	if len(mods) != 0 {
		t.Fatalf("expected no modules after removal, got %v", mods)
	}
}

func TestCheckAdmin(t *testing.T) {
	core, _ := newTestCore(fakeAdmin{"root": true})
	if err := core.checkAdmin("root"); err != nil {
		t.Fatalf("checkAdmin(root): %v", err)
	}
	if err := core.checkAdmin("nobody"); !errors.Is(err, ErrNoSuchPrivilege) {
		t.Fatalf("expected ErrNoSuchPrivilege, got %v", err)
	}
}
