package ast

import (
	"encoding/json"
	"fmt"
)

// wireNode is the discriminated-union wire format used to persist a Node in
// a ParseRecord and to compute the stable-JSON MD5 the save pipeline uses
// for no-op detection.
type wireNode struct {
	Kind     string      `json:"kind"`
	Module   string      `json:"module,omitempty"`
	Name     string      `json:"name,omitempty"`
	Alias    *wireNode   `json:"alias,omitempty"`
	Element  *wireNode   `json:"element,omitempty"`
	Value    *wireNode   `json:"value,omitempty"`
	Elements []*wireNode `json:"elements,omitempty"`
	Scalar   string      `json:"scalar,omitempty"`
	IDRef    string      `json:"idRef,omitempty"`
	Fields   []wireField `json:"fields,omitempty"`
}

type wireField struct {
	Name     string   `json:"name"`
	Type     wireNode `json:"type"`
	Optional bool     `json:"optional"`
}

var scalarNames = map[ScalarKind]string{
	ScalarInt:    "int",
	ScalarFloat:  "float",
	ScalarString: "string",
	ScalarBool:   "bool",
}

var scalarKinds = map[string]ScalarKind{
	"int":    ScalarInt,
	"float":  ScalarFloat,
	"string": ScalarString,
	"bool":   ScalarBool,
}

func toWire(n Node) *wireNode {
	switch t := n.(type) {
	case nil:
		return nil
	case *Typedef:
		return &wireNode{Kind: "typedef", Module: t.Module, Name: t.Name, Alias: toWire(t.AliasType)}
	case *List:
		return &wireNode{Kind: "list", Element: toWire(t.ElementType)}
	case *Mapping:
		return &wireNode{Kind: "mapping", Value: toWire(t.ValueType)}
	case *Tuple:
		elems := make([]*wireNode, len(t.ElementTypes))
		for i, e := range t.ElementTypes {
			elems[i] = toWire(e)
		}
		return &wireNode{Kind: "tuple", Elements: elems}
	case *Scalar:
		return &wireNode{Kind: "scalar", Scalar: scalarNames[t.Kind], IDRef: t.IDReference}
	case *UnspecifiedObject:
		return &wireNode{Kind: "unspecified"}
	case *Struct:
		fields := make([]wireField, len(t.Fields))
		for i, f := range t.Fields {
			fields[i] = wireField{Name: f.Name, Type: *toWire(f.Type), Optional: f.Optional}
		}
		return &wireNode{Kind: "struct", Fields: fields}
	default:
		panic(fmt.Sprintf("ast: unknown node type %T", n))
	}
}

func fromWire(w *wireNode) (Node, error) {
	if w == nil {
		return nil, nil
	}
	switch w.Kind {
	case "typedef":
		alias, err := fromWire(w.Alias)
		if err != nil {
			return nil, err
		}
		return &Typedef{Module: w.Module, Name: w.Name, AliasType: alias}, nil
	case "list":
		elem, err := fromWire(w.Element)
		if err != nil {
			return nil, err
		}
		return &List{ElementType: elem}, nil
	case "mapping":
		val, err := fromWire(w.Value)
		if err != nil {
			return nil, err
		}
		return &Mapping{ValueType: val}, nil
	case "tuple":
		elems := make([]Node, len(w.Elements))
		for i, e := range w.Elements {
			n, err := fromWire(e)
			if err != nil {
				return nil, err
			}
			elems[i] = n
		}
		return &Tuple{ElementTypes: elems}, nil
	case "scalar":
		kind, ok := scalarKinds[w.Scalar]
		if !ok {
			return nil, fmt.Errorf("ast: unknown scalar kind %q", w.Scalar)
		}
		return &Scalar{Kind: kind, IDReference: w.IDRef}, nil
	case "unspecified":
		return &UnspecifiedObject{}, nil
	case "struct":
		fields := make([]StructField, len(w.Fields))
		for i, f := range w.Fields {
			t, err := fromWire(&f.Type)
			if err != nil {
				return nil, err
			}
			fields[i] = StructField{Name: f.Name, Type: t, Optional: f.Optional}
		}
		return &Struct{Fields: fields}, nil
	default:
		return nil, fmt.Errorf("ast: unknown node kind %q", w.Kind)
	}
}

// MarshalTypedef produces the canonical JSON encoding of a Typedef, used for
// ParseRecord persistence. The module-level MD5 stamp uses MarshalModule.
func MarshalTypedef(t *Typedef) ([]byte, error) {
	return json.Marshal(toWire(t))
}

// UnmarshalTypedef parses a Typedef previously produced by MarshalTypedef.
func UnmarshalTypedef(data []byte) (*Typedef, error) {
	var w wireNode
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	n, err := fromWire(&w)
	if err != nil {
		return nil, err
	}
	td, ok := n.(*Typedef)
	if !ok {
		return nil, fmt.Errorf("ast: parse record is not a typedef")
	}
	return td, nil
}

type wireFuncdef struct {
	Module     string      `json:"module"`
	Name       string      `json:"name"`
	Comment    string      `json:"comment,omitempty"`
	Parameters []wireParam `json:"parameters"`
	Returns    []wireParam `json:"returns"`
}

type wireParam struct {
	Name string   `json:"name,omitempty"`
	Type wireNode `json:"type"`
}

// MarshalFuncdef produces the canonical JSON encoding of a Funcdef.
func MarshalFuncdef(f *Funcdef) ([]byte, error) {
	w := wireFuncdef{Module: f.Module, Name: f.Name, Comment: f.Comment}
	for _, p := range f.Parameters {
		w.Parameters = append(w.Parameters, wireParam{Name: p.Name, Type: *toWire(p.Type)})
	}
	for _, p := range f.Returns {
		w.Returns = append(w.Returns, wireParam{Name: p.Name, Type: *toWire(p.Type)})
	}
	return json.Marshal(w)
}

// UnmarshalFuncdef parses a Funcdef previously produced by MarshalFuncdef.
func UnmarshalFuncdef(data []byte) (*Funcdef, error) {
	var w wireFuncdef
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	f := &Funcdef{Module: w.Module, Name: w.Name, Comment: w.Comment}
	for _, p := range w.Parameters {
		t, err := fromWire(&p.Type)
		if err != nil {
			return nil, err
		}
		f.Parameters = append(f.Parameters, Parameter{Name: p.Name, Type: t})
	}
	for _, p := range w.Returns {
		t, err := fromWire(&p.Type)
		if err != nil {
			return nil, err
		}
		f.Returns = append(f.Returns, Parameter{Name: p.Name, Type: t})
	}
	return f, nil
}

// MarshalModule produces the canonical JSON encoding of a whole module AST,
// used by the save pipeline to compute the module-level MD5").
func MarshalModule(m *Module) ([]byte, error) {
	type wireComponent struct {
		Typedef *wireNode    `json:"typedef,omitempty"`
		Funcdef *wireFuncdef `json:"funcdef,omitempty"`
	}
	out := struct {
		Name       string          `json:"name"`
		Comment    string          `json:"comment,omitempty"`
		Components []wireComponent `json:"components"`
	}{Name: m.Name, Comment: m.Comment}
	for _, c := range m.Components {
		switch v := c.(type) {
		case *Typedef:
			out.Components = append(out.Components, wireComponent{Typedef: toWire(v)})
		case *Funcdef:
			fw := wireFuncdef{Module: v.Module, Name: v.Name, Comment: v.Comment}
			for _, p := range v.Parameters {
				fw.Parameters = append(fw.Parameters, wireParam{Name: p.Name, Type: *toWire(p.Type)})
			}
			for _, p := range v.Returns {
				fw.Returns = append(fw.Returns, wireParam{Name: p.Name, Type: *toWire(p.Type)})
			}
			out.Components = append(out.Components, wireComponent{Funcdef: &fw})
		}
	}
	return json.Marshal(out)
}
