package registry

import (
	"context"
	"fmt"

	"github.com/typedefdb/tddb/internal/storage"
)

// checkAdmin fails with ErrNoSuchPrivilege unless userID is a global admin.
func (c *Core) checkAdmin(userID string) error {
	if c.admin != nil && c.admin.IsAdmin(userID) {
		return nil
	}
	return fmt.Errorf("%w: %s is not an admin", ErrNoSuchPrivilege, userID)
}

// checkOwnerOrAdmin fails with ErrNoSuchPrivilege unless userID owns module
// (at either privilege level) or is a global admin. Required for any
// mutation that changes module content.
func (c *Core) checkOwnerOrAdmin(ctx context.Context, userID, module string) error {
	if c.admin != nil && c.admin.IsAdmin(userID) {
		return nil
	}
	owners, err := c.store.GetOwnersForModule(ctx, module)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTypeStorage, err)
	}
	for _, o := range owners {
		if o.UserID == userID {
			return nil
		}
	}
	return fmt.Errorf("%w: %s is not an owner of %s", ErrNoSuchPrivilege, userID, module)
}

// checkChangeOwnersOrAdmin fails unless userID is a global admin or an owner
// with the change-owners privilege. Required for any mutation of the owner
// list itself.
func (c *Core) checkChangeOwnersOrAdmin(ctx context.Context, userID, module string) error {
	if c.admin != nil && c.admin.IsAdmin(userID) {
		return nil
	}
	owners, err := c.store.GetOwnersForModule(ctx, module)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTypeStorage, err)
	}
	for _, o := range owners {
		if o.UserID == userID && o.WithChangeOwnersPrivilege {
			return nil
		}
	}
	return fmt.Errorf("%w: %s cannot change owners of %s", ErrNoSuchPrivilege, userID, module)
}

// AddOwner grants ownership of module to userID. Requires change-owners-or-admin.
func (c *Core) AddOwner(ctx context.Context, callerID, module, userID string, withChangeOwners bool) error {
	if err := c.checkChangeOwnersOrAdmin(ctx, callerID, module); err != nil {
		return err
	}
	if err := c.store.AddOwnerToModule(ctx, storage.OwnerRecord{
		ModuleName:                module,
		UserID:                    userID,
		WithChangeOwnersPrivilege: withChangeOwners,
	}); err != nil {
		return fmt.Errorf("%w: %v", ErrTypeStorage, err)
	}
	return nil
}

// RemoveOwner revokes userID's ownership of module. Requires change-owners-or-admin.
func (c *Core) RemoveOwner(ctx context.Context, callerID, module, userID string) error {
	if err := c.checkChangeOwnersOrAdmin(ctx, callerID, module); err != nil {
		return err
	}
	if err := c.store.RemoveOwnerFromModule(ctx, module, userID); err != nil {
		return fmt.Errorf("%w: %v", ErrTypeStorage, err)
	}
	return nil
}

// GetModulesByOwner returns the supported-only modules userID owns.
func (c *Core) GetModulesByOwner(ctx context.Context, userID string) ([]string, error) {
	modules, err := c.store.GetModulesForOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTypeStorage, err)
	}
	var supported []string
	for _, m := range modules {
		ok, err := c.store.SupportedState(ctx, m)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTypeStorage, err)
		}
		if ok {
			supported = append(supported, m)
		}
	}
	return supported, nil
}
