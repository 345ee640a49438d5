package registry

import (
	"fmt"

	"github.com/typedefdb/tddb/internal/ast"
	"github.com/typedefdb/tddb/internal/storage"
)

// typeRef is a lightweight, not-yet-attributed reference discovered while
// walking a component's AST. dep-side attribution (which type/func is doing
// the referencing) is filled in by the caller, once per component.
type typeRef struct {
	refModule  string
	refName    string
	refVersion string // "" means "same module, fill in during commit"
}

// collectRefs walks n, collecting every Typedef reference that is terminal:
// a reference into a different module (version taken from that module's
// already-loaded ModuleInfo), or a reference to a registered type in the
// same module (version filled in later). All other Typedef nodes are local
// aliases and are inlined transparently by recursing into their AliasType,
// looked up from mainModule.
func collectRefs(
	n ast.Node,
	mainModule *ast.Module,
	registered map[string]bool,
	depInfos map[string]storage.ModuleInfo,
) ([]typeRef, error) {
	switch t := n.(type) {
	case nil:
		return nil, nil
	case *ast.Typedef:
		moduleName := t.Module
		if moduleName == "" {
			moduleName = mainModule.Name
		}
		if moduleName != mainModule.Name {
			dep, ok := depInfos[moduleName]
			if !ok {
				return nil, fmt.Errorf("%w: reference to unregistered module %s", ErrSpecParse, moduleName)
			}
			ti, ok := dep.Types[t.Name]
			if !ok || !ti.Supported {
				return nil, fmt.Errorf("%w: reference to unregistered type %s.%s", ErrSpecParse, moduleName, t.Name)
			}
			return []typeRef{{refModule: moduleName, refName: t.Name, refVersion: ti.TypeVersion}}, nil
		}
		if registered[t.Name] {
			return []typeRef{{refModule: moduleName, refName: t.Name, refVersion: ""}}, nil
		}
		local := mainModule.TypedefByName(t.Name)
		if local == nil {
			return nil, fmt.Errorf("%w: unknown local type alias %s", ErrSpecParse, t.Name)
		}
		return collectRefs(local.AliasType, mainModule, registered, depInfos)

	case *ast.List:
		return collectRefs(t.ElementType, mainModule, registered, depInfos)
	case *ast.Mapping:
		return collectRefs(t.ValueType, mainModule, registered, depInfos)
	case *ast.Tuple:
		var out []typeRef
		for _, e := range t.ElementTypes {
			rs, err := collectRefs(e, mainModule, registered, depInfos)
			if err != nil {
				return nil, err
			}
			out = append(out, rs...)
		}
		return out, nil
	case *ast.Struct:
		var out []typeRef
		for _, f := range t.Fields {
			rs, err := collectRefs(f.Type, mainModule, registered, depInfos)
			if err != nil {
				return nil, err
			}
			out = append(out, rs...)
		}
		return out, nil
	case *ast.Scalar, *ast.UnspecifiedObject:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: unknown AST node kind %T", ErrSpecParse, n)
	}
}

// collectFuncRefs gathers refs from every parameter and return type of f.
func collectFuncRefs(
	f *ast.Funcdef,
	mainModule *ast.Module,
	registered map[string]bool,
	depInfos map[string]storage.ModuleInfo,
) ([]typeRef, error) {
	var out []typeRef
	for _, p := range f.Parameters {
		rs, err := collectRefs(p.Type, mainModule, registered, depInfos)
		if err != nil {
			return nil, err
		}
		out = append(out, rs...)
	}
	for _, r := range f.Returns {
		rs, err := collectRefs(r.Type, mainModule, registered, depInfos)
		if err != nil {
			return nil, err
		}
		out = append(out, rs...)
	}
	return out, nil
}
