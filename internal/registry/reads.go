package registry

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/typedefdb/tddb/internal/ast"
	"github.com/typedefdb/tddb/internal/storage"
	"github.com/typedefdb/tddb/internal/telemetry"
)

// observeReadPath records how long a named read-path operation took,
// including time spent waiting on the per-module read lock.
func observeReadPath(operation string) func() {
	start := time.Now()
	return func() {
		telemetry.ReadPathDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

// TypeDefIdQuery is the caller-supplied resolution request for
// resolveTypeDefId. Exactly one of MD5, (Major and Minor), or Major-only
// should be set; the zero value ("latest supported version of the latest
// released module") is always valid.
type TypeDefIdQuery struct {
	Module string
	Type   string
	MD5    string
	Major  *int
	Minor  *int
}

// ResolveTypeDefId resolves a TypeDefId under a read lock on q.Module.
func (c *Core) ResolveTypeDefId(ctx context.Context, userID string, q TypeDefIdQuery) (version string, err error) {
	defer observeReadPath("resolveTypeDefId")()
	err = c.locks.WithReadLock(withReadCtx(ctx, userID), q.Module, func(ctx context.Context) error {
		if err := c.checkModuleSupported(ctx, q.Module); err != nil {
			return err
		}
		switch {
		case q.MD5 != "":
			versions, err := c.store.GetTypeVersionsByMD5(ctx, q.Module, q.Type, q.MD5)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrTypeStorage, err)
			}
			if len(versions) == 0 {
				return fmt.Errorf("%w: %s.%s@md5:%s", ErrNoSuchType, q.Module, q.Type, q.MD5)
			}
			version = highestVersion(versions)
			return nil

		case q.Major != nil && q.Minor != nil:
			candidate := SemanticVersion{Major: *q.Major, Minor: *q.Minor}.String()
			exists, err := c.store.CheckTypeSchemaRecordExists(ctx, q.Module, q.Type, candidate)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrTypeStorage, err)
			}
			if !exists {
				return fmt.Errorf("%w: %s.%s-%s", ErrNoSuchType, q.Module, q.Type, candidate)
			}
			version = candidate
			return nil

		case q.Major != nil:
			all, err := c.store.GetAllTypeVersions(ctx, q.Module, q.Type)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrTypeStorage, err)
			}
			best := ""
			var bestV SemanticVersion
			for v, released := range all {
				if !released {
					continue
				}
				sv, err := ParseSemanticVersion(v)
				if err != nil {
					return err
				}
				if sv.Major != *q.Major {
					continue
				}
				if best == "" || bestV.Less(sv) {
					best, bestV = v, sv
				}
			}
			if best == "" {
				return fmt.Errorf("%w: %s.%s-%d.x", ErrNoSuchType, q.Module, q.Type, *q.Major)
			}
			version = best
			return nil

		default:
			info, err := c.store.LastReleasedModuleVersion(ctx, q.Module)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrTypeStorage, err)
			}
			ti, ok := info.Types[q.Type]
			if !ok || !ti.Supported {
				return fmt.Errorf("%w: %s.%s", ErrNoSuchType, q.Module, q.Type)
			}
			version = ti.TypeVersion
			return nil
		}
	})
	return version, err
}

func highestVersion(versions []string) string {
	best := versions[0]
	bestV, _ := ParseSemanticVersion(best)
	for _, v := range versions[1:] {
		sv, err := ParseSemanticVersion(v)
		if err != nil {
			continue
		}
		if bestV.Less(sv) {
			best, bestV = v, sv
		}
	}
	return best
}

// GetModuleInfo returns the latest module snapshot: the latest released
// version for ordinary callers, or the latest including unreleased for
// admins — querying a module's unreleased latest is admin-only.
func (c *Core) GetModuleInfo(ctx context.Context, userID, module string, includeUnreleased bool) (storage.ModuleInfo, error) {
	defer observeReadPath("getModuleInfo")()
	if includeUnreleased {
		if err := c.checkAdmin(userID); err != nil {
			return storage.ModuleInfo{}, err
		}
	}
	var info storage.ModuleInfo
	err := c.locks.WithReadLock(withReadCtx(ctx, userID), module, func(ctx context.Context) error {
		if err := c.checkModuleSupported(ctx, module); err != nil {
			return err
		}
		var err error
		if includeUnreleased {
			info, err = c.store.LastModuleVersionIncludingUnreleased(ctx, module)
		} else {
			info, err = c.store.LastReleasedModuleVersion(ctx, module)
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTypeStorage, err)
		}
		return nil
	})
	return info, err
}

// GetJSONSchemaDocument returns the stored JSON-Schema bytes for a resolved
// type version.
func (c *Core) GetJSONSchemaDocument(ctx context.Context, userID, module, typeName, version string) ([]byte, error) {
	defer observeReadPath("getJSONSchemaDocument")()
	var doc []byte
	err := c.locks.WithReadLock(withReadCtx(ctx, userID), module, func(ctx context.Context) error {
		rec, err := c.store.GetTypeSchemaRecord(ctx, module, typeName, version)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrNoSuchType, err)
		}
		doc = []byte(rec.JSONSchema)
		return nil
	})
	return doc, err
}

// GetTypeParsingDocument returns the compiled Typedef AST for a resolved
// type version.
func (c *Core) GetTypeParsingDocument(ctx context.Context, userID, module, typeName, version string) (*ast.Typedef, error) {
	defer observeReadPath("getTypeParsingDocument")()
	var td *ast.Typedef
	err := c.locks.WithReadLock(withReadCtx(ctx, userID), module, func(ctx context.Context) error {
		rec, err := c.store.GetTypeParseRecord(ctx, module, typeName, version)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrNoSuchType, err)
		}
		td, err = ast.UnmarshalTypedef(rec.TypedefJSON)
		return err
	})
	return td, err
}

// GetFuncParsingDocument returns the compiled Funcdef AST for a resolved
// function version.
func (c *Core) GetFuncParsingDocument(ctx context.Context, userID, module, funcName, version string) (*ast.Funcdef, error) {
	defer observeReadPath("getFuncParsingDocument")()
	var fd *ast.Funcdef
	err := c.locks.WithReadLock(withReadCtx(ctx, userID), module, func(ctx context.Context) error {
		rec, err := c.store.GetFuncParseRecord(ctx, module, funcName, version)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrNoSuchFunc, err)
		}
		fd, err = ast.UnmarshalFuncdef(rec.FuncdefJSON)
		return err
	})
	return fd, err
}

// FindModuleVersionsByMD5 returns every committed versionTime of module
// whose AST hash equals md5.
func (c *Core) FindModuleVersionsByMD5(ctx context.Context, userID, module, md5 string) ([]int64, error) {
	defer observeReadPath("findModuleVersionsByMD5")()
	var out []int64
	err := c.locks.WithReadLock(withReadCtx(ctx, userID), module, func(ctx context.Context) error {
		versions, err := c.store.AllModuleVersions(ctx, module)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTypeStorage, err)
		}
		for vt := range versions {
			info, err := loadModuleInfoAt(ctx, c.store, module, vt)
			if err != nil {
				return err
			}
			if info.MD5 == md5 {
				out = append(out, vt)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
		return nil
	})
	return out, err
}

// ListModules returns every registered module name. Retired modules are
// included only when includeRetired is set. This is not scoped to a single
// module, so it takes no per-module lock.
func (c *Core) ListModules(ctx context.Context, includeRetired bool) ([]string, error) {
	defer observeReadPath("listModules")()
	modules, err := c.store.AllRegisteredModules(ctx, includeRetired)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTypeStorage, err)
	}
	return modules, nil
}

// FindModuleVersionsByTypeVersion returns the module versionTimes whose
// ModuleInfo contains the given exact type version.
func (c *Core) FindModuleVersionsByTypeVersion(ctx context.Context, userID, module, typeName, version string) ([]int64, error) {
	defer observeReadPath("findModuleVersionsByTypeVersion")()
	var out []int64
	err := c.locks.WithReadLock(withReadCtx(ctx, userID), module, func(ctx context.Context) error {
		mvs, err := c.store.GetModuleVersionsForTypeVersion(ctx, module, typeName, version)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTypeStorage, err)
		}
		out = mvs
		return nil
	})
	return out, err
}
