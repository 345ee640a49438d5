package registry

import (
	"testing"

	"github.com/typedefdb/tddb/internal/ast"
)

func strScalar() *ast.Scalar { return &ast.Scalar{Kind: ast.ScalarString} }
func intScalar() *ast.Scalar { return &ast.Scalar{Kind: ast.ScalarInt} }

func mustChange(t *testing.T, oldT, newT ast.Node) Change {
	t.Helper()
	c, err := findChange(oldT, newT)
	if err != nil {
		t.Fatalf("findChange: %v", err)
	}
	return c
}

func TestFindChange_Scalar(t *testing.T) {
	if got := mustChange(t, strScalar(), strScalar()); got != NoChange {
		t.Fatalf("identical scalars: got %v, want NoChange", got)
	}
	if got := mustChange(t, strScalar(), intScalar()); got != NotCompatible {
		t.Fatalf("kind change: got %v, want NotCompatible", got)
	}
	if got := mustChange(t, &ast.Scalar{Kind: ast.ScalarString, IDReference: "@id"}, strScalar()); got != NotCompatible {
		t.Fatalf("dropped @id: got %v, want NotCompatible", got)
	}
}

func TestFindChange_List(t *testing.T) {
	if got := mustChange(t, &ast.List{ElementType: strScalar()}, &ast.List{ElementType: strScalar()}); got != NoChange {
		t.Fatalf("identical lists: got %v", got)
	}
	if got := mustChange(t, &ast.List{ElementType: strScalar()}, &ast.List{ElementType: intScalar()}); got != NotCompatible {
		t.Fatalf("element type change: got %v", got)
	}
	if got := mustChange(t, &ast.List{ElementType: strScalar()}, &ast.Tuple{}); got != NotCompatible {
		t.Fatalf("kind mismatch: got %v, want NotCompatible", got)
	}
}

func TestFindChange_Struct_AddingOptionalFieldIsCompatible(t *testing.T) {
	oldS := &ast.Struct{Fields: []ast.StructField{
		{Name: "id", Type: strScalar()},
	}}
	newS := &ast.Struct{Fields: []ast.StructField{
		{Name: "id", Type: strScalar()},
		{Name: "note", Type: strScalar(), Optional: true},
	}}
	if got := mustChange(t, oldS, newS); got != BackwardCompatible {
		t.Fatalf("adding optional field: got %v, want BackwardCompatible", got)
	}
}

func TestFindChange_Struct_AddingRequiredFieldIsIncompatible(t *testing.T) {
	oldS := &ast.Struct{Fields: []ast.StructField{
		{Name: "id", Type: strScalar()},
	}}
	newS := &ast.Struct{Fields: []ast.StructField{
		{Name: "id", Type: strScalar()},
		{Name: "note", Type: strScalar(), Optional: false},
	}}
	if got := mustChange(t, oldS, newS); got != NotCompatible {
		t.Fatalf("adding required field: got %v, want NotCompatible", got)
	}
}

func TestFindChange_Struct_RemovingFieldIsIncompatible(t *testing.T) {
	oldS := &ast.Struct{Fields: []ast.StructField{
		{Name: "id", Type: strScalar()},
		{Name: "note", Type: strScalar(), Optional: true},
	}}
	newS := &ast.Struct{Fields: []ast.StructField{
		{Name: "id", Type: strScalar()},
	}}
	if got := mustChange(t, oldS, newS); got != NotCompatible {
		t.Fatalf("removing a field: got %v, want NotCompatible", got)
	}
}

func TestFindChange_Struct_ChangingOptionalityIsIncompatible(t *testing.T) {
	oldS := &ast.Struct{Fields: []ast.StructField{
		{Name: "note", Type: strScalar(), Optional: true},
	}}
	newS := &ast.Struct{Fields: []ast.StructField{
		{Name: "note", Type: strScalar(), Optional: false},
	}}
	if got := mustChange(t, oldS, newS); got != NotCompatible {
		t.Fatalf("optional to required: got %v, want NotCompatible", got)
	}
}

func TestFindChange_Tuple_ArityChangeIsIncompatible(t *testing.T) {
	oldT := &ast.Tuple{ElementTypes: []ast.Node{strScalar()}}
	newT := &ast.Tuple{ElementTypes: []ast.Node{strScalar(), intScalar()}}
	if got := mustChange(t, oldT, newT); got != NotCompatible {
		t.Fatalf("tuple arity change: got %v, want NotCompatible", got)
	}
}

func TestFindChange_Typedef_NameChangeIsIncompatible(t *testing.T) {
	oldT := &ast.Typedef{Module: "Kb", Name: "Genome", AliasType: strScalar()}
	newT := &ast.Typedef{Module: "Kb", Name: "Chromosome", AliasType: strScalar()}
	if got := mustChange(t, oldT, newT); got != NotCompatible {
		t.Fatalf("typedef rename: got %v, want NotCompatible", got)
	}
}

func TestFindChange_UnspecifiedObject(t *testing.T) {
	if got := mustChange(t, &ast.UnspecifiedObject{}, &ast.UnspecifiedObject{}); got != NoChange {
		t.Fatalf("unspecified object: got %v, want NoChange", got)
	}
	if got := mustChange(t, &ast.UnspecifiedObject{}, strScalar()); got != NotCompatible {
		t.Fatalf("kind mismatch: got %v, want NotCompatible", got)
	}
}

func TestFindFuncChange(t *testing.T) {
	oldF := &ast.Funcdef{
		Parameters: []ast.Parameter{{Name: "id", Type: strScalar()}},
		Returns:    []ast.Parameter{{Type: &ast.UnspecifiedObject{}}},
	}
	sameArity := &ast.Funcdef{
		Parameters: []ast.Parameter{{Name: "id", Type: strScalar()}},
		Returns:    []ast.Parameter{{Type: &ast.UnspecifiedObject{}}},
	}
	if c, err := findFuncChange(oldF, sameArity); err != nil || c != NoChange {
		t.Fatalf("identical funcdefs: got %v, %v", c, err)
	}

	extraParam := &ast.Funcdef{
		Parameters: []ast.Parameter{{Name: "id", Type: strScalar()}, {Name: "extra", Type: intScalar()}},
		Returns:    []ast.Parameter{{Type: &ast.UnspecifiedObject{}}},
	}
	if c, err := findFuncChange(oldF, extraParam); err != nil || c != NotCompatible {
		t.Fatalf("parameter count change: got %v, %v, want NotCompatible", c, err)
	}

	paramTypeChange := &ast.Funcdef{
		Parameters: []ast.Parameter{{Name: "id", Type: intScalar()}},
		Returns:    []ast.Parameter{{Type: &ast.UnspecifiedObject{}}},
	}
	if c, err := findFuncChange(oldF, paramTypeChange); err != nil || c != NotCompatible {
		t.Fatalf("parameter type change: got %v, %v, want NotCompatible", c, err)
	}
}
