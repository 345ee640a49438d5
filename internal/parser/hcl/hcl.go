// Package hcl implements the Parser Port (internal/parser) against an
// HCL-based schema definition language: a single `module "name" { ... }`
// block containing `typedef` and `funcdef` blocks, with type expressions
// built from scalar keywords (`int`, `float`, `string`, `bool`, `any`) and
// the constructor functions `list()`, `map()`, `tuple()`, `struct()`,
// `optional()` and `idref()`.
package hcl

import (
	"fmt"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/typedefdb/tddb/internal/ast"
	"github.com/typedefdb/tddb/internal/parser"
)

// Parser is the HCL-backed parser.Port implementation.
type Parser struct{}

// New constructs a Parser.
func New() *Parser {
	return &Parser{}
}

// Compile implements parser.Port. The result always contains exactly one
// Service with exactly one Module.
func (p *Parser) Compile(spec string, deps map[string]parser.Dependency) (parser.Result, error) {
	hclFile, diags := hclparse.NewParser().ParseHCL([]byte(spec), "spec.hcl")
	if diags.HasErrors() {
		return parser.Result{}, diags
	}

	var root fileRoot
	if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
		return parser.Result{}, diags
	}
	if len(root.Modules) != 1 {
		return parser.Result{}, fmt.Errorf("spec document must contain exactly one module block, got %d", len(root.Modules))
	}

	mod, err := compileModule(root.Modules[0])
	if err != nil {
		return parser.Result{}, err
	}
	if err := validateCrossModuleRefs(mod, deps); err != nil {
		return parser.Result{}, err
	}

	schemas, err := generateJSONSchemas(mod)
	if err != nil {
		return parser.Result{}, err
	}

	return parser.Result{
		Service:     &ast.Service{Modules: []*ast.Module{mod}},
		JSONSchemas: schemas,
	}, nil
}

func compileModule(b *moduleBlock) (*ast.Module, error) {
	mod := &ast.Module{Name: b.Name, Comment: b.Comment}
	for _, td := range b.Typedefs {
		node, _, err := typeExprToNode(td.Type)
		if err != nil {
			return nil, fmt.Errorf("typedef %q: %w", td.Name, err)
		}
		mod.Components = append(mod.Components, &ast.Typedef{Module: b.Name, Name: td.Name, AliasType: node})
	}
	for _, fd := range b.Funcdefs {
		funcdef, err := compileFuncdef(b.Name, fd)
		if err != nil {
			return nil, err
		}
		mod.Components = append(mod.Components, funcdef)
	}
	return mod, nil
}

func compileFuncdef(moduleName string, b *funcdefBlock) (*ast.Funcdef, error) {
	fd := &ast.Funcdef{Module: moduleName, Name: b.Name, Comment: b.Comment}
	for _, p := range b.Params {
		node, _, err := typeExprToNode(p.Type)
		if err != nil {
			return nil, fmt.Errorf("funcdef %q param %q: %w", b.Name, p.Name, err)
		}
		fd.Parameters = append(fd.Parameters, ast.Parameter{Name: p.Name, Type: node})
	}
	for _, r := range b.Returns {
		node, _, err := typeExprToNode(r.Type)
		if err != nil {
			return nil, fmt.Errorf("funcdef %q return %q: %w", b.Name, r.Name, err)
		}
		fd.Returns = append(fd.Returns, ast.Parameter{Name: r.Name, Type: node})
	}
	return fd, nil
}

// validateCrossModuleRefs walks every component of mod and confirms that any
// typedef reference naming a different module resolves to a typedef
// actually present in deps. References within mod itself are left for
// registry.collectRefs to validate against the registered-components set,
// since that requires information (which local names are already committed)
// this package does not have.
func validateCrossModuleRefs(mod *ast.Module, deps map[string]parser.Dependency) error {
	var walk func(n ast.Node) error
	walk = func(n ast.Node) error {
		switch t := n.(type) {
		case nil:
			return nil
		case *ast.Typedef:
			if t.Module == "" || t.Module == mod.Name {
				return nil
			}
			dep, ok := deps[t.Module]
			if !ok || dep.Module == nil {
				return fmt.Errorf("reference to unincluded module %q", t.Module)
			}
			if dep.Module.TypedefByName(t.Name) == nil {
				return fmt.Errorf("reference to undefined type %s.%s", t.Module, t.Name)
			}
			return nil
		case *ast.List:
			return walk(t.ElementType)
		case *ast.Mapping:
			return walk(t.ValueType)
		case *ast.Tuple:
			for _, e := range t.ElementTypes {
				if err := walk(e); err != nil {
					return err
				}
			}
			return nil
		case *ast.Struct:
			for _, f := range t.Fields {
				if err := walk(f.Type); err != nil {
					return err
				}
			}
			return nil
		default:
			return nil
		}
	}

	for _, c := range mod.Components {
		switch comp := c.(type) {
		case *ast.Typedef:
			if err := walk(comp.AliasType); err != nil {
				return fmt.Errorf("typedef %q: %w", comp.Name, err)
			}
		case *ast.Funcdef:
			for _, p := range comp.Parameters {
				if err := walk(p.Type); err != nil {
					return fmt.Errorf("funcdef %q param %q: %w", comp.Name, p.Name, err)
				}
			}
			for _, r := range comp.Returns {
				if err := walk(r.Type); err != nil {
					return fmt.Errorf("funcdef %q return %q: %w", comp.Name, r.Name, err)
				}
			}
		}
	}
	return nil
}
