package registry

import (
	"fmt"

	"github.com/typedefdb/tddb/internal/ast"
)

// findChange implements the structural compatibility diff over the type
// language.
func findChange(oldT, newT ast.Node) (Change, error) {
	switch o := oldT.(type) {
	case *ast.Typedef:
		n, ok := newT.(*ast.Typedef)
		if !ok {
			return NotCompatible, nil
		}
		if o.Name != n.Name {
			return NotCompatible, nil
		}
		return findChange(o.AliasType, n.AliasType)

	case *ast.List:
		n, ok := newT.(*ast.List)
		if !ok {
			return NotCompatible, nil
		}
		return findChange(o.ElementType, n.ElementType)

	case *ast.Mapping:
		n, ok := newT.(*ast.Mapping)
		if !ok {
			return NotCompatible, nil
		}
		// Recurses only into the value type; the key type is always string
		// and is never represented in the AST.
		return findChange(o.ValueType, n.ValueType)

	case *ast.Tuple:
		n, ok := newT.(*ast.Tuple)
		if !ok {
			return NotCompatible, nil
		}
		if len(o.ElementTypes) != len(n.ElementTypes) {
			return NotCompatible, nil
		}
		result := NoChange
		for i := range o.ElementTypes {
			c, err := findChange(o.ElementTypes[i], n.ElementTypes[i])
			if err != nil {
				return NotCompatible, err
			}
			result = joinChanges(result, c)
		}
		return result, nil

	case *ast.Scalar:
		n, ok := newT.(*ast.Scalar)
		if !ok {
			return NotCompatible, nil
		}
		if o.Kind != n.Kind {
			return NotCompatible, nil
		}
		if o.IDReference != n.IDReference {
			return NotCompatible, nil
		}
		return NoChange, nil

	case *ast.UnspecifiedObject:
		if _, ok := newT.(*ast.UnspecifiedObject); !ok {
			return NotCompatible, nil
		}
		return NoChange, nil

	case *ast.Struct:
		n, ok := newT.(*ast.Struct)
		if !ok {
			return NotCompatible, nil
		}
		return findStructChange(o, n)

	default:
		return NotCompatible, fmt.Errorf("%w: unknown AST node kind %T", ErrSpecParse, oldT)
	}
}

// findStructChange implements the struct compatibility rule: every old field
// must survive with the same optionality and a compatible recursive diff;
// fields added only in the new struct are compatible iff optional.
func findStructChange(oldS, newS *ast.Struct) (Change, error) {
	result := NoChange
	seen := make(map[string]bool, len(oldS.Fields))
	for _, of := range oldS.Fields {
		seen[of.Name] = true
		nf := newS.FieldByName(of.Name)
		if nf == nil {
			return NotCompatible, nil
		}
		if nf.Optional != of.Optional {
			return NotCompatible, nil
		}
		c, err := findChange(of.Type, nf.Type)
		if err != nil {
			return NotCompatible, err
		}
		result = joinChanges(result, c)
	}
	for _, nf := range newS.Fields {
		if seen[nf.Name] {
			continue
		}
		if nf.Optional {
			result = joinChanges(result, BackwardCompatible)
		} else {
			return NotCompatible, nil
		}
	}
	return result, nil
}

// findFuncChange diffs a function signature: parameter count and
// return-arity must match; pairwise diff, joined.
func findFuncChange(oldF, newF *ast.Funcdef) (Change, error) {
	if len(oldF.Parameters) != len(newF.Parameters) {
		return NotCompatible, nil
	}
	if len(oldF.Returns) != len(newF.Returns) {
		return NotCompatible, nil
	}
	result := NoChange
	for i := range oldF.Parameters {
		c, err := findChange(oldF.Parameters[i].Type, newF.Parameters[i].Type)
		if err != nil {
			return NotCompatible, err
		}
		result = joinChanges(result, c)
	}
	for i := range oldF.Returns {
		c, err := findChange(oldF.Returns[i].Type, newF.Returns[i].Type)
		if err != nil {
			return NotCompatible, err
		}
		result = joinChanges(result, c)
	}
	return result, nil
}
