package registry

import (
	"context"
	"fmt"
	"strconv"

	"github.com/typedefdb/tddb/internal/ast"
	"github.com/typedefdb/tddb/internal/storage"
)

// parseVersionTime parses a module's pinned-version token. Modules are keyed
// by an int64 versionTime, not a semantic version, so a pin string
// in moduleVersionRestrictions is the decimal versionTime itself.
func parseVersionTime(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

// loadModuleInfoAt loads a module's ModuleInfo at an exact versionTime. There
// is no dedicated Store method for this beyond
// LastReleased/LastIncludingUnreleased, so adapters are expected to also
// serve arbitrary historical versions through WriteModuleRecord's own
// keyspace; concrete adapters implement this via the same (module,
// versionTime) key their writes use.
func loadModuleInfoAt(ctx context.Context, store storage.Store, module string, versionTime int64) (storage.ModuleInfo, error) {
	if at, ok := store.(historicalModuleLoader); ok {
		return at.LoadModuleInfoAt(ctx, module, versionTime)
	}
	// Fall back: a store without historical lookup can only serve the
	// current head, which is only correct when the requested version is
	// the one currently pointed at.
	info, err := store.LastModuleVersionIncludingUnreleased(ctx, module)
	if err != nil {
		return storage.ModuleInfo{}, fmt.Errorf("%w: %v", ErrTypeStorage, err)
	}
	if info.VersionTime != versionTime {
		return storage.ModuleInfo{}, fmt.Errorf("%w: module %s has no historical-lookup support for version %d", ErrTypeStorage, module, versionTime)
	}
	return info, nil
}

// historicalModuleLoader is an optional Store extension for adapters that can
// serve any committed version, not just the head. The postgres and memory
// adapters both implement it.
type historicalModuleLoader interface {
	LoadModuleInfoAt(ctx context.Context, module string, versionTime int64) (storage.ModuleInfo, error)
}

// moduleInfoToAST reconstructs an *ast.Module skeleton from a committed
// ModuleInfo's type/func name set, for use as an include-closure dependency.
// Cross-module references are resolved by collectRefs against the
// dependency's ModuleInfo type map, so no parse records are loaded here.
func moduleInfoToAST(info storage.ModuleInfo) (*ast.Module, error) {
	m := &ast.Module{Name: info.ModuleName}
	for name, t := range info.Types {
		if !t.Supported {
			continue
		}
		m.Components = append(m.Components, &ast.Typedef{Module: info.ModuleName, Name: name})
	}
	for name, f := range info.Funcs {
		if !f.Supported {
			continue
		}
		m.Components = append(m.Components, &ast.Funcdef{Module: info.ModuleName, Name: name})
	}
	return m, nil
}
