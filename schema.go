package toolloop

import (
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// schemaError reports a parameter schema that could not be built for a tool.
type schemaError struct {
	tool string
	err  error
}

func (e *schemaError) Error() string {
	return fmt.Sprintf("tool %q: parameter schema: %v", e.tool, e.err)
}

func (e *schemaError) Unwrap() error { return e.err }

// parametersFor generates the parameter schema advertised for a tool taking T.
func parametersFor[T any](tool string, o toolOptions) (map[string]any, error) {
	typeSchemas := make(map[reflect.Type]*jsonschema.Schema, len(o.typeSchemas))
	for t, s := range o.typeSchemas {
		typeSchemas[t] = s.CloneSchemas()
	}
	s, err := jsonschema.For[T](&jsonschema.ForOptions{TypeSchemas: typeSchemas})
	if err != nil {
		return nil, &schemaError{tool: tool, err: err}
	}
	describeFields(s, reflect.TypeFor[T]())
	data, err := json.Marshal(s)
	if err != nil {
		return nil, &schemaError{tool: tool, err: err}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &schemaError{tool: tool, err: err}
	}
	normalizeSchema(m, o.strict)
	return m, nil
}

// declaredParameters copies a caller-supplied schema so later normalization never touches the
// caller's map. A nil schema declares an object without properties.
func declaredParameters(tool string, schema map[string]any, strict bool) (map[string]any, error) {
	if schema == nil {
		schema = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, &schemaError{tool: tool, err: err}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &schemaError{tool: tool, err: err}
	}
	normalizeSchema(m, strict)
	return m, nil
}

// describeFields copies the description and enum struct tags of the top-level fields of typ
// onto the matching properties of s.
func describeFields(s *jsonschema.Schema, typ reflect.Type) {
	for typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	if s == nil || len(s.Properties) == 0 || typ.Kind() != reflect.Struct {
		return
	}
	for i := range typ.NumField() {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		switch name {
		case "-":
			continue
		case "":
			name = field.Name
		}
		prop := s.Properties[name]
		if prop == nil {
			continue
		}
		if desc := field.Tag.Get("description"); desc != "" {
			prop.Description = desc
		}
		if values := field.Tag.Get("enum"); values != "" {
			prop.Enum = nil
			for v := range strings.SplitSeq(values, ",") {
				prop.Enum = append(prop.Enum, strings.TrimSpace(v))
			}
		}
	}
}

// normalizeSchema drops id and $id keywords everywhere. In strict mode every object is closed
// and all of its properties become required.
func normalizeSchema(node map[string]any, strict bool) {
	delete(node, "id")
	delete(node, "$id")
	if props, ok := node["properties"].(map[string]any); ok && strict {
		node["additionalProperties"] = false
		if len(props) > 0 {
			keys := slices.Sorted(maps.Keys(props))
			required := make([]any, len(keys))
			for i, k := range keys {
				required[i] = k
			}
			node["required"] = required
		}
	}
	for _, v := range node {
		switch v := v.(type) {
		case map[string]any:
			normalizeSchema(v, strict)
		case []any:
			for _, item := range v {
				if m, ok := item.(map[string]any); ok {
					normalizeSchema(m, strict)
				}
			}
		}
	}
}
