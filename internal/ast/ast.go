// Package ast defines the structural type language the Type Definition
// Database compiles specification documents into. A Parser Port
// implementation (see internal/parser) produces these nodes; the Version
// Engine (internal/registry) diffs them to classify schema changes.
package ast

// Node is any structural type-language node the compatibility diff can
// recurse into.
type Node interface {
	node()
}

// Typedef is a named alias for another type. Two Typedefs are only
// comparable when their names match; diffing recurses into the aliased type.
type Typedef struct {
	Module    string
	Name      string
	AliasType Node
}

func (*Typedef) node() {}

// List is a homogeneous sequence. The diff recurses into the element type.
type List struct {
	ElementType Node
}

func (*List) node() {}

// Mapping is a string-keyed dictionary. The key type is always string and
// is not represented; the diff recurses only into the value type.
type Mapping struct {
	ValueType Node
}

func (*Mapping) node() {}

// Tuple is a fixed-arity heterogeneous sequence.
type Tuple struct {
	ElementTypes []Node
}

func (*Tuple) node() {}

// ScalarKind enumerates the primitive scalar types the language supports.
type ScalarKind int

const (
	ScalarInt ScalarKind = iota
	ScalarFloat
	ScalarString
	ScalarBool
)

// Scalar is a primitive value, optionally carrying an `@id` reference
// annotation whose text must match byte-for-byte across versions.
type Scalar struct {
	Kind        ScalarKind
	IDReference string // empty when no @id annotation is present
}

func (*Scalar) node() {}

// UnspecifiedObject is the "any JSON value" escape hatch. It is always
// diff-compatible with itself.
type UnspecifiedObject struct{}

func (*UnspecifiedObject) node() {}

// StructField is one named member of a Struct.
type StructField struct {
	Name     string
	Type     Node
	Optional bool
}

// Struct is an ordered set of named, optionally-optional fields.
type Struct struct {
	Fields []StructField
}

func (*Struct) node() {}

// FieldByName returns the field with the given name, or nil.
func (s *Struct) FieldByName(name string) *StructField {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return &s.Fields[i]
		}
	}
	return nil
}

// Parameter is one function parameter or return slot.
type Parameter struct {
	Name string
	Type Node
}

// Funcdef is a function signature: an ordered parameter list and an ordered
// return-type list (multiple return values are allowed).
type Funcdef struct {
	Module     string
	Name       string
	Comment    string
	Parameters []Parameter
	Returns    []Parameter
}

// Component is either a *Typedef or a *Funcdef, matching the type language's
// two top-level declaration kinds.
type Component interface {
	ComponentName() string
}

func (t *Typedef) ComponentName() string { return t.Name }
func (f *Funcdef) ComponentName() string { return f.Name }

// Module is one compiled specification's worth of declarations — the AST
// produced by the Parser Port for a single `module { ... }` block.
type Module struct {
	Name       string
	Comment    string
	Components []Component
}

// Service is the top-level parse unit: a compiled specification document
// must contain exactly one Service with exactly one Module.
type Service struct {
	Modules []*Module
}

// TypedefByName returns the Typedef component with the given name, or nil.
func (m *Module) TypedefByName(name string) *Typedef {
	for _, c := range m.Components {
		if t, ok := c.(*Typedef); ok && t.Name == name {
			return t
		}
	}
	return nil
}

// FuncdefByName returns the Funcdef component with the given name, or nil.
func (m *Module) FuncdefByName(name string) *Funcdef {
	for _, c := range m.Components {
		if f, ok := c.(*Funcdef); ok && f.Name == name {
			return f
		}
	}
	return nil
}

// Clone deep-copies a node so the diff and persistence steps never share
// mutable AST state.
func Clone(n Node) Node {
	switch t := n.(type) {
	case *Typedef:
		return &Typedef{Module: t.Module, Name: t.Name, AliasType: Clone(t.AliasType)}
	case *List:
		return &List{ElementType: Clone(t.ElementType)}
	case *Mapping:
		return &Mapping{ValueType: Clone(t.ValueType)}
	case *Tuple:
		elems := make([]Node, len(t.ElementTypes))
		for i, e := range t.ElementTypes {
			elems[i] = Clone(e)
		}
		return &Tuple{ElementTypes: elems}
	case *Scalar:
		c := *t
		return &c
	case *UnspecifiedObject:
		return &UnspecifiedObject{}
	case *Struct:
		fields := make([]StructField, len(t.Fields))
		for i, f := range t.Fields {
			fields[i] = StructField{Name: f.Name, Type: Clone(f.Type), Optional: f.Optional}
		}
		return &Struct{Fields: fields}
	default:
		return nil
	}
}

// CloneTypedef deep-copies a Typedef component, used before writing its
// parse record so later mutation of the working AST cannot affect what was
// persisted.
func CloneTypedef(t *Typedef) *Typedef {
	return Clone(t).(*Typedef)
}

// CloneFuncdef deep-copies a Funcdef component.
func CloneFuncdef(f *Funcdef) *Funcdef {
	params := make([]Parameter, len(f.Parameters))
	for i, p := range f.Parameters {
		params[i] = Parameter{Name: p.Name, Type: Clone(p.Type)}
	}
	rets := make([]Parameter, len(f.Returns))
	for i, p := range f.Returns {
		rets[i] = Parameter{Name: p.Name, Type: Clone(p.Type)}
	}
	return &Funcdef{Module: f.Module, Name: f.Name, Comment: f.Comment, Parameters: params, Returns: rets}
}
