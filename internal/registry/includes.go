package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/typedefdb/tddb/internal/parser"
	"github.com/typedefdb/tddb/internal/storage"
)

// rewriteIncludes scans the header lines (blank lines and `#include <path>`
// directives) of a spec document, rewrites each include to its canonical
// `#include <name.types>` form, and returns the list of direct dependency
// module names. The header ends at the first non-blank, non-include line.
func rewriteIncludes(spec string) (rewritten string, includes []string, err error) {
	lines := strings.Split(spec, "\n")
	var out []string
	headerDone := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !headerDone {
			if trimmed == "" {
				out = append(out, line)
				continue
			}
			if strings.HasPrefix(trimmed, "#include") {
				name, ierr := parseIncludeDirective(trimmed)
				if ierr != nil {
					return "", nil, ierr
				}
				includes = append(includes, name)
				out = append(out, fmt.Sprintf("#include <%s.types>", name))
				continue
			}
			headerDone = true
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n"), includes, nil
}

// parseIncludeDirective extracts the bare module name from a `#include <path>`
// line: drop everything up to the last '/', then drop everything from the
// first '.' onward.
func parseIncludeDirective(line string) (string, error) {
	rest := strings.TrimSpace(strings.TrimPrefix(line, "#include"))
	open := strings.Index(rest, "<")
	closeIdx := strings.Index(rest, ">")
	if open < 0 || closeIdx < 0 || closeIdx < open {
		return "", fmt.Errorf("%w: malformed include directive %q", ErrSpecParse, line)
	}
	path := rest[open+1 : closeIdx]
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		path = path[idx+1:]
	}
	if idx := strings.Index(path, "."); idx >= 0 {
		path = path[:idx]
	}
	if path == "" {
		return "", fmt.Errorf("%w: malformed include directive %q", ErrSpecParse, line)
	}
	return path, nil
}

// includeDependentPath records the chain of includes traversed to reach the
// current module, for cycle and version-pin-mismatch error messages.
type includeDependentPath struct {
	module      string
	versionTime int64
	parent      *includeDependentPath
}

func (p *includeDependentPath) String() string {
	if p == nil {
		return ""
	}
	s := fmt.Sprintf("%s(%d)", p.module, p.versionTime)
	if p.parent != nil {
		return p.parent.String() + "<-" + s
	}
	return s
}

func (p *includeDependentPath) visited(module string) *includeDependentPath {
	for n := p; n != nil; n = n.parent {
		if n.module == module {
			return n
		}
	}
	return nil
}

// resolveIncludeClosure performs depth-first resolution of the include
// closure, loading each dependency's ModuleInfo at the version pinned in
// restrictions or else the latest released version.
// Revisiting a module at a different version, anywhere in the traversal,
// fails with ErrSpecParse.
func resolveIncludeClosure(
	ctx context.Context,
	store storage.Store,
	direct []string,
	restrictions map[string]string,
) (deps map[string]parser.Dependency, includedVersions map[string]int64, depInfos map[string]storage.ModuleInfo, err error) {
	deps = make(map[string]parser.Dependency)
	includedVersions = make(map[string]int64)
	depInfos = make(map[string]storage.ModuleInfo)

	var visit func(module string, path *includeDependentPath) error
	visit = func(module string, path *includeDependentPath) error {
		info, versionTime, err := loadDependencyModuleInfo(ctx, store, module, restrictions)
		if err != nil {
			return err
		}
		if prior := path.visited(module); prior != nil {
			if prior.versionTime != versionTime {
				return fmt.Errorf("%w: module %s included at conflicting versions in %s",
					ErrSpecParse, module, path.String())
			}
			return nil
		}
		if existing, ok := includedVersions[module]; ok && existing != versionTime {
			return fmt.Errorf("%w: module %s included at conflicting versions", ErrSpecParse, module)
		}
		includedVersions[module] = versionTime
		depInfos[module] = info

		mod, err := moduleInfoToAST(info)
		if err != nil {
			return err
		}
		deps[module] = parser.Dependency{Module: mod}

		childPath := &includeDependentPath{module: module, versionTime: versionTime, parent: path}
		for dep := range info.IncludedModules {
			if err := visit(dep, childPath); err != nil {
				return err
			}
		}
		return nil
	}

	for _, m := range direct {
		if verr := visit(m, nil); verr != nil {
			return nil, nil, nil, verr
		}
	}
	return deps, includedVersions, depInfos, nil
}

func loadDependencyModuleInfo(
	ctx context.Context,
	store storage.Store,
	module string,
	restrictions map[string]string,
) (storage.ModuleInfo, int64, error) {
	if pin, ok := restrictions[module]; ok {
		vt, err := parseVersionTime(pin)
		if err != nil {
			return storage.ModuleInfo{}, 0, fmt.Errorf("%w: bad pinned version %q for %s", ErrSpecParse, pin, module)
		}
		versions, err := store.AllModuleVersions(ctx, module)
		if err != nil {
			return storage.ModuleInfo{}, 0, fmt.Errorf("%w: %v", ErrTypeStorage, err)
		}
		if _, ok := versions[vt]; !ok {
			return storage.ModuleInfo{}, 0, fmt.Errorf("%w: pinned version %d not found for module %s", ErrSpecParse, vt, module)
		}
		info, err := loadModuleInfoAt(ctx, store, module, vt)
		if err != nil {
			return storage.ModuleInfo{}, 0, err
		}
		return info, vt, nil
	}
	info, err := store.LastReleasedModuleVersion(ctx, module)
	if err != nil {
		return storage.ModuleInfo{}, 0, fmt.Errorf("%w: %v", ErrTypeStorage, err)
	}
	return info, info.VersionTime, nil
}
