// Package parser defines the Parser Port: the external collaborator that
// compiles a specification document plus its already-compiled dependencies
// into an AST and a {type -> JSON-Schema} table. Concrete backends live in
// subpackages (hcl).
package parser

import "github.com/typedefdb/tddb/internal/ast"

// Dependency is one already-compiled module the Parser Port may resolve
// `#include` directives against.
type Dependency struct {
	Module *ast.Module
}

// Result is the Parser Port's output for one compiled spec document.
type Result struct {
	Service *ast.Service
	// JSONSchemas maps a type name declared in Service's single module to
	// the exact bytes of its generated JSON-Schema document. These bytes are
	// stored verbatim, never re-serialized.
	JSONSchemas map[string][]byte
}

// Port compiles a spec document. Implementations must return a result
// containing exactly one Service with exactly one Module.
type Port interface {
	Compile(spec string, deps map[string]Dependency) (Result, error)
}
