package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/typedefdb/tddb/internal/safego"
	"github.com/typedefdb/tddb/internal/storage"
	"github.com/typedefdb/tddb/internal/telemetry"
)

// checkModuleRegistered fails with ErrNoSuchModule if module has never been
// registered.
func (c *Core) checkModuleRegistered(ctx context.Context, module string) error {
	ok, err := c.store.ModuleExists(ctx, module)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTypeStorage, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSuchModule, module)
	}
	return nil
}

// checkModuleSupported fails with ErrNoSuchModule if module is retired.
func (c *Core) checkModuleSupported(ctx context.Context, module string) error {
	if err := c.checkModuleRegistered(ctx, module); err != nil {
		return err
	}
	ok, err := c.store.SupportedState(ctx, module)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTypeStorage, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s is retired", ErrNoSuchModule, module)
	}
	return nil
}

// RequestModuleRegistration appends (module, userID) to the pending
// registration queue. The read lock
// on the not-yet-existing module name serializes competing requests for the
// same name.
func (c *Core) RequestModuleRegistration(ctx context.Context, module, userID string) error {
	return c.locks.WithReadLock(ctx, module, func(ctx context.Context) error {
		exists, err := c.store.ModuleExists(ctx, module)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTypeStorage, err)
		}
		if exists {
			return fmt.Errorf("%w: %s is already registered", ErrSpecParse, module)
		}
		if err := c.store.AddNewModuleRegistrationRequest(ctx, storage.RegistrationRequest{ModuleName: module, UserID: userID}); err != nil {
			return fmt.Errorf("%w: %v", ErrTypeStorage, err)
		}
		return nil
	})
}

// ApproveModuleRegistrationRequest materializes the bootstrap ModuleVersion
// for a pending request: empty, released, with its requester installed as
// owner-with-change-owners-privilege. Admin only.
func (c *Core) ApproveModuleRegistrationRequest(ctx context.Context, adminID, module string) error {
	if err := c.checkAdmin(adminID); err != nil {
		return err
	}
	return c.locks.WithWriteLock(ctx, module, func(ctx context.Context) error {
		requester, err := c.store.GetOwnerForNewModuleRegistrationRequest(ctx, module)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTypeStorage, err)
		}
		if err := c.autoGenerateModuleInfo(ctx, module); err != nil {
			return err
		}
		if err := c.store.AddOwnerToModule(ctx, storage.OwnerRecord{
			ModuleName:                module,
			UserID:                    requester,
			WithChangeOwnersPrivilege: true,
		}); err != nil {
			return fmt.Errorf("%w: %v", ErrTypeStorage, err)
		}
		if err := c.store.RemoveNewModuleRegistrationRequest(ctx, module); err != nil {
			return fmt.Errorf("%w: %v", ErrTypeStorage, err)
		}
		return nil
	})
}

// autoGenerateModuleInfo creates the bootstrap ModuleInfo: released, no
// spec, no types or funcs.
func (c *Core) autoGenerateModuleInfo(ctx context.Context, module string) error {
	versionTime, err := c.store.GenerateNewModuleVersion(ctx, module)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTypeStorage, err)
	}
	info := storage.ModuleInfo{
		ModuleName:  module,
		VersionTime: versionTime,
		Released:    true,
		Types:       map[string]storage.TypeInfo{},
		Funcs:       map[string]storage.FuncInfo{},
	}
	if err := c.store.InitModuleRecord(ctx, info); err != nil {
		return fmt.Errorf("%w: %v", ErrTypeStorage, err)
	}
	return nil
}

// RefuseModuleRegistrationRequest drops a pending request. Admin only.
func (c *Core) RefuseModuleRegistrationRequest(ctx context.Context, adminID, module string) error {
	if err := c.checkAdmin(adminID); err != nil {
		return err
	}
	if err := c.store.RemoveNewModuleRegistrationRequest(ctx, module); err != nil {
		return fmt.Errorf("%w: %v", ErrTypeStorage, err)
	}
	return nil
}

// PendingRegistrationRequests lists every module registration request
// awaiting admin action. Admin only.
func (c *Core) PendingRegistrationRequests(ctx context.Context, adminID string) ([]storage.RegistrationRequest, error) {
	if err := c.checkAdmin(adminID); err != nil {
		return nil, err
	}
	return c.pendingRegistrationRequests(ctx)
}

func (c *Core) pendingRegistrationRequests(ctx context.Context) ([]storage.RegistrationRequest, error) {
	reqs, err := c.store.GetNewModuleRegistrationRequests(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTypeStorage, err)
	}
	return reqs, nil
}

// MonitorPendingRegistrations runs a background worker that samples the
// pending-registration-request backlog every interval and publishes it as a
// gauge, so operators can alert on requests sitting unreviewed. It blocks
// until ctx is cancelled; callers run it in its own goroutine. This is a
// system metric, not an API response, so it bypasses the admin check that
// guards PendingRegistrationRequests.
func (c *Core) MonitorPendingRegistrations(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			safego.Go(func() {
				reqs, err := c.pendingRegistrationRequests(ctx)
				if err != nil {
					c.log.Error("pending registrations monitor failed", "error", err)
					return
				}
				telemetry.PendingRegistrationRequests.Set(float64(len(reqs)))
			})
		}
	}
}
