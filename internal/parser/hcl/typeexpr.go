package hcl

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"

	"github.com/typedefdb/tddb/internal/ast"
)

// typeExprToNode compiles one type expression into an ast.Node. The bool
// result reports whether the expression was wrapped in optional(...); it is
// only meaningful to callers building a Struct field and is discarded
// everywhere else.
func typeExprToNode(expr hcl.Expression) (ast.Node, bool, error) {
	switch v := expr.(type) {
	case *hclsyntax.FunctionCallExpr:
		return functionTypeToNode(v)

	case *hclsyntax.ScopeTraversalExpr:
		return traversalTypeToNode(v)

	default:
		return nil, false, fmt.Errorf("unsupported expression for type definition: %T", expr)
	}
}

func functionTypeToNode(v *hclsyntax.FunctionCallExpr) (ast.Node, bool, error) {
	switch v.Name {
	case "list":
		if len(v.Args) != 1 {
			return nil, false, fmt.Errorf("list() takes exactly one argument, got %d", len(v.Args))
		}
		elem, _, err := typeExprToNode(v.Args[0])
		if err != nil {
			return nil, false, fmt.Errorf("in list(): %w", err)
		}
		return &ast.List{ElementType: elem}, false, nil

	case "map":
		if len(v.Args) != 1 {
			return nil, false, fmt.Errorf("map() takes exactly one argument, got %d", len(v.Args))
		}
		val, _, err := typeExprToNode(v.Args[0])
		if err != nil {
			return nil, false, fmt.Errorf("in map(): %w", err)
		}
		return &ast.Mapping{ValueType: val}, false, nil

	case "tuple":
		if len(v.Args) == 0 {
			return nil, false, fmt.Errorf("tuple() requires at least one element argument")
		}
		elems := make([]ast.Node, len(v.Args))
		for i, a := range v.Args {
			n, _, err := typeExprToNode(a)
			if err != nil {
				return nil, false, fmt.Errorf("in tuple() element %d: %w", i, err)
			}
			elems[i] = n
		}
		return &ast.Tuple{ElementTypes: elems}, false, nil

	case "struct":
		if len(v.Args) != 1 {
			return nil, false, fmt.Errorf("struct() takes exactly one argument (an object literal), got %d", len(v.Args))
		}
		objExpr, ok := v.Args[0].(*hclsyntax.ObjectConsExpr)
		if !ok {
			return nil, false, fmt.Errorf("the argument to struct() must be an object literal like { name = type, ... }, got %T", v.Args[0])
		}
		fields := make([]ast.StructField, 0, len(objExpr.Items))
		for _, item := range objExpr.Items {
			name, err := objectKeyName(item.KeyExpr)
			if err != nil {
				return nil, false, err
			}
			fieldType, optional, err := typeExprToNode(item.ValueExpr)
			if err != nil {
				return nil, false, fmt.Errorf("in struct field %q: %w", name, err)
			}
			fields = append(fields, ast.StructField{Name: name, Type: fieldType, Optional: optional})
		}
		return &ast.Struct{Fields: fields}, false, nil

	case "optional":
		if len(v.Args) != 1 {
			return nil, false, fmt.Errorf("optional() takes exactly one argument, got %d", len(v.Args))
		}
		inner, _, err := typeExprToNode(v.Args[0])
		if err != nil {
			return nil, false, err
		}
		return inner, true, nil

	case "idref":
		if len(v.Args) != 2 {
			return nil, false, fmt.Errorf("idref() takes exactly two arguments (a scalar type and the reference name), got %d", len(v.Args))
		}
		inner, _, err := typeExprToNode(v.Args[0])
		if err != nil {
			return nil, false, err
		}
		scalar, ok := inner.(*ast.Scalar)
		if !ok {
			return nil, false, fmt.Errorf("idref() first argument must be a scalar type, got %T", inner)
		}
		name, err := literalString(v.Args[1])
		if err != nil {
			return nil, false, fmt.Errorf("idref() reference name: %w", err)
		}
		scalar.IDReference = name
		return scalar, false, nil

	default:
		return nil, false, fmt.Errorf("unknown type constructor %q", v.Name)
	}
}

func traversalTypeToNode(v *hclsyntax.ScopeTraversalExpr) (ast.Node, bool, error) {
	switch len(v.Traversal) {
	case 1:
		name := v.Traversal.RootName()
		if kind, ok := scalarKeyword(name); ok {
			return &ast.Scalar{Kind: kind}, false, nil
		}
		if name == "any" {
			return &ast.UnspecifiedObject{}, false, nil
		}
		// A bare identifier that isn't a keyword is a reference to another
		// typedef declared in this same module; it is resolved against the
		// enclosing Module by the caller, not here.
		return &ast.Typedef{Name: name}, false, nil

	case 2:
		attr, ok := v.Traversal[1].(hcl.TraverseAttr)
		if !ok {
			return nil, false, fmt.Errorf("invalid type reference %q", v.Traversal.RootName())
		}
		return &ast.Typedef{Module: v.Traversal.RootName(), Name: attr.Name}, false, nil

	default:
		return nil, false, fmt.Errorf("invalid type reference: traversal has %d segments", len(v.Traversal))
	}
}

func scalarKeyword(name string) (ast.ScalarKind, bool) {
	switch name {
	case "int":
		return ast.ScalarInt, true
	case "float":
		return ast.ScalarFloat, true
	case "string":
		return ast.ScalarString, true
	case "bool":
		return ast.ScalarBool, true
	default:
		return 0, false
	}
}

func objectKeyName(keyExpr hclsyntax.Expression) (string, error) {
	wrapped := keyExpr
	if oc, ok := keyExpr.(*hclsyntax.ObjectConsKeyExpr); ok {
		wrapped = oc.Wrapped
	}
	switch k := wrapped.(type) {
	case *hclsyntax.ScopeTraversalExpr:
		if len(k.Traversal) == 1 {
			return k.Traversal.RootName(), nil
		}
	case *hclsyntax.TemplateExpr:
		if len(k.Parts) == 1 {
			if lit, ok := k.Parts[0].(*hclsyntax.LiteralValueExpr); ok && lit.Val.Type() == cty.String {
				return lit.Val.AsString(), nil
			}
		}
	}
	return "", fmt.Errorf("struct field names must be simple identifiers or quoted strings")
}

func literalString(expr hcl.Expression) (string, error) {
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return "", diags
	}
	if val.Type() != cty.String {
		return "", fmt.Errorf("expected a string literal, got %s", val.Type().FriendlyName())
	}
	return val.AsString(), nil
}
