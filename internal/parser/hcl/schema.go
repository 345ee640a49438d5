package hcl

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/typedefdb/tddb/internal/ast"
)

// generateJSONSchemas renders a JSON-Schema document for every typedef
// declared in mod, keyed by type name. There is no ecosystem generator for
// this structural type language in the reference corpus, so the walk below
// is hand-rolled; santhosh-tekuri/jsonschema (internal/jsonschemadoc) is used
// on the consuming side to validate documents that were already generated,
// not to produce them.
func generateJSONSchemas(mod *ast.Module) (map[string][]byte, error) {
	out := make(map[string][]byte, len(mod.Components))
	for _, c := range mod.Components {
		td, ok := c.(*ast.Typedef)
		if !ok {
			continue
		}
		schema, err := nodeToSchema(mod, td.AliasType)
		if err != nil {
			return nil, fmt.Errorf("typedef %q: %w", td.Name, err)
		}
		schema["$schema"] = "http://json-schema.org/draft-07/schema#"
		schema["title"] = fmt.Sprintf("%s.%s", mod.Name, td.Name)
		b, err := json.MarshalIndent(schema, "", "  ")
		if err != nil {
			return nil, err
		}
		out[td.Name] = b
	}
	return out, nil
}

// nodeToSchema renders n as a JSON-Schema fragment. Local aliases (a
// *ast.Typedef whose name resolves to a component declared in mod) are
// inlined; references to types outside this document become a "$ref" using
// the module.name scheme the registry's storage layer recognizes.
func nodeToSchema(mod *ast.Module, n ast.Node) (map[string]interface{}, error) {
	switch t := n.(type) {
	case nil:
		return map[string]interface{}{}, nil

	case *ast.Scalar:
		s := map[string]interface{}{"type": scalarJSONType(t.Kind)}
		if t.IDReference != "" {
			s["x-id-reference"] = t.IDReference
		}
		return s, nil

	case *ast.List:
		elem, err := nodeToSchema(mod, t.ElementType)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"type": "array", "items": elem}, nil

	case *ast.Mapping:
		val, err := nodeToSchema(mod, t.ValueType)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"type": "object", "additionalProperties": val}, nil

	case *ast.Tuple:
		items := make([]map[string]interface{}, len(t.ElementTypes))
		for i, e := range t.ElementTypes {
			s, err := nodeToSchema(mod, e)
			if err != nil {
				return nil, err
			}
			items[i] = s
		}
		return map[string]interface{}{
			"type":     "array",
			"items":    items,
			"minItems": len(items),
			"maxItems": len(items),
		}, nil

	case *ast.Struct:
		props := make(map[string]interface{}, len(t.Fields))
		var required []string
		for _, f := range t.Fields {
			s, err := nodeToSchema(mod, f.Type)
			if err != nil {
				return nil, err
			}
			props[f.Name] = s
			if !f.Optional {
				required = append(required, f.Name)
			}
		}
		schema := map[string]interface{}{"type": "object", "properties": props}
		if len(required) > 0 {
			sort.Strings(required)
			schema["required"] = required
		}
		return schema, nil

	case *ast.UnspecifiedObject:
		return map[string]interface{}{}, nil

	case *ast.Typedef:
		moduleName := t.Module
		if moduleName == "" {
			moduleName = mod.Name
		}
		if moduleName == mod.Name {
			if local := mod.TypedefByName(t.Name); local != nil {
				return nodeToSchema(mod, local.AliasType)
			}
		}
		return map[string]interface{}{"$ref": fmt.Sprintf("tddb:%s.%s", moduleName, t.Name)}, nil

	default:
		return nil, fmt.Errorf("unsupported node kind %T", n)
	}
}

func scalarJSONType(k ast.ScalarKind) string {
	switch k {
	case ast.ScalarInt:
		return "integer"
	case ast.ScalarFloat:
		return "number"
	case ast.ScalarString:
		return "string"
	case ast.ScalarBool:
		return "boolean"
	default:
		return "string"
	}
}
