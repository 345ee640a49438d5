package registry

import (
	"context"
	"fmt"

	"github.com/typedefdb/tddb/internal/storage"
)

// ReleaseModule promotes every major=0 type/func of the latest committed
// version to 1.0. If no major=0 entities exist, it
// marks the existing latest version released without generating a new
// versionTime.
func (c *Core) ReleaseModule(ctx context.Context, userID, module string) error {
	if err := c.checkOwnerOrAdmin(ctx, userID, module); err != nil {
		return err
	}
	return c.locks.WithWriteLock(ctx, module, func(ctx context.Context) error {
		info, err := c.store.LastModuleVersionIncludingUnreleased(ctx, module)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTypeStorage, err)
		}

		var preReleaseTypes, preReleaseFuncs []string
		for name, t := range info.Types {
			v, err := ParseSemanticVersion(t.TypeVersion)
			if err != nil {
				return err
			}
			if v.Major == 0 {
				preReleaseTypes = append(preReleaseTypes, name)
			}
		}
		for name, f := range info.Funcs {
			v, err := ParseSemanticVersion(f.FuncVersion)
			if err != nil {
				return err
			}
			if v.Major == 0 {
				preReleaseFuncs = append(preReleaseFuncs, name)
			}
		}

		if len(preReleaseTypes) == 0 && len(preReleaseFuncs) == 0 {
			return wrapStorageErr(c.store.SetModuleReleaseVersion(ctx, module, info.VersionTime))
		}

		newVersionTime, err := c.store.GenerateNewModuleVersion(ctx, module)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTypeStorage, err)
		}

		rollback := func(cause error) error {
			c.log.Warn("releaseModule rolling back", "module", module, "versionTime", newVersionTime, "cause", cause)
			if rerr := c.store.RemoveRecordsAtVersion(ctx, module, newVersionTime); rerr != nil {
				c.log.Error("rollback failed", "module", module, "versionTime", newVersionTime, "error", rerr)
			}
			return cause
		}

		newInfo := info
		newInfo.VersionTime = newVersionTime
		newInfo.Released = true
		newInfo.Types = cloneTypeMap(info.Types)
		newInfo.Funcs = cloneFuncMap(info.Funcs)

		for _, name := range preReleaseTypes {
			rel := releaseVersion().String()
			rec, err := c.store.GetTypeParseRecord(ctx, module, name, info.Types[name].TypeVersion)
			if err != nil {
				return rollback(fmt.Errorf("%w: %v", ErrTypeStorage, err))
			}
			schema, err := c.store.GetTypeSchemaRecord(ctx, module, name, info.Types[name].TypeVersion)
			if err != nil {
				return rollback(fmt.Errorf("%w: %v", ErrTypeStorage, err))
			}
			rec.Version = rel
			rec.ModuleVersion = newVersionTime
			schema.TypeVersion = rel
			schema.ModuleVersion = newVersionTime
			if err := c.store.WriteTypeParseRecord(ctx, rec); err != nil {
				return rollback(fmt.Errorf("%w: %v", ErrTypeStorage, err))
			}
			if err := c.store.WriteTypeSchemaRecord(ctx, schema); err != nil {
				return rollback(fmt.Errorf("%w: %v", ErrTypeStorage, err))
			}
			ti := newInfo.Types[name]
			ti.TypeVersion = rel
			newInfo.Types[name] = ti
		}
		for _, name := range preReleaseFuncs {
			rel := releaseVersion().String()
			rec, err := c.store.GetFuncParseRecord(ctx, module, name, info.Funcs[name].FuncVersion)
			if err != nil {
				return rollback(fmt.Errorf("%w: %v", ErrTypeStorage, err))
			}
			rec.Version = rel
			rec.ModuleVersion = newVersionTime
			if err := c.store.WriteFuncParseRecord(ctx, rec); err != nil {
				return rollback(fmt.Errorf("%w: %v", ErrTypeStorage, err))
			}
			fi := newInfo.Funcs[name]
			fi.FuncVersion = rel
			newInfo.Funcs[name] = fi
		}

		if err := c.store.WriteModuleRecord(ctx, newInfo); err != nil {
			return rollback(fmt.Errorf("%w: %v", ErrTypeStorage, err))
		}
		return wrapStorageErr(c.store.SetModuleReleaseVersion(ctx, module, newVersionTime))
	})
}

// StopModuleSupport flips the supported flag off.
// Admin only.
func (c *Core) StopModuleSupport(ctx context.Context, adminID, module string) error {
	if err := c.checkAdmin(adminID); err != nil {
		return err
	}
	return c.locks.WithWriteLock(ctx, module, func(ctx context.Context) error {
		return wrapStorageErr(c.store.ChangeSupportedState(ctx, module, false))
	})
}

// ResumeModuleSupport sets the supported flag back on. Admin only.
func (c *Core) ResumeModuleSupport(ctx context.Context, adminID, module string) error {
	if err := c.checkAdmin(adminID); err != nil {
		return err
	}
	return c.locks.WithWriteLock(ctx, module, func(ctx context.Context) error {
		return wrapStorageErr(c.store.ChangeSupportedState(ctx, module, true))
	})
}

// RemoveModule hard-deletes a module and all its records. Admin only.
func (c *Core) RemoveModule(ctx context.Context, adminID, module string) error {
	if err := c.checkAdmin(adminID); err != nil {
		return err
	}
	return c.locks.WithWriteLock(ctx, module, func(ctx context.Context) error {
		return wrapStorageErr(c.store.RemoveModule(ctx, module))
	})
}

func wrapStorageErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrTypeStorage, err)
}

func cloneTypeMap(m map[string]storage.TypeInfo) map[string]storage.TypeInfo {
	out := make(map[string]storage.TypeInfo, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneFuncMap(m map[string]storage.FuncInfo) map[string]storage.FuncInfo {
	out := make(map[string]storage.FuncInfo, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
