package tool

import (
	"reflect"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// GenerateSchema creates a JSON Schema for a parameter struct using
// reflection. Field names come from json tags; a field without omitempty
// is required. A description tag becomes the property description.
func GenerateSchema[P any]() *jsonschema.Schema {
	var p P
	t := reflect.TypeOf(p)

	if t == nil {
		return &jsonschema.Schema{Type: "object"}
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return &jsonschema.Schema{Type: "object"}
	}

	return structToSchema(t)
}

func structToSchema(t reflect.Type) *jsonschema.Schema {
	schema := &jsonschema.Schema{
		Type:       "object",
		Properties: make(map[string]*jsonschema.Schema),
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}

		name := field.Name
		omitempty := false
		if jsonTag != "" {
			parts := strings.Split(jsonTag, ",")
			if parts[0] != "" {
				name = parts[0]
			}
			for _, opt := range parts[1:] {
				if opt == "omitempty" {
					omitempty = true
				}
			}
		}

		prop := typeToSchema(field.Type)
		if desc := field.Tag.Get("description"); desc != "" {
			prop.Description = desc
		}
		schema.Properties[name] = prop

		if !omitempty {
			schema.Required = append(schema.Required, name)
		}
	}

	return schema
}

func typeToSchema(t reflect.Type) *jsonschema.Schema {
	if t.Kind() == reflect.Ptr {
		return typeToSchema(t.Elem())
	}

	switch t.Kind() {
	case reflect.String:
		return &jsonschema.Schema{Type: "string"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &jsonschema.Schema{Type: "integer"}
	case reflect.Float32, reflect.Float64:
		return &jsonschema.Schema{Type: "number"}
	case reflect.Bool:
		return &jsonschema.Schema{Type: "boolean"}
	case reflect.Slice, reflect.Array:
		return &jsonschema.Schema{
			Type:  "array",
			Items: typeToSchema(t.Elem()),
		}
	case reflect.Map:
		return &jsonschema.Schema{
			Type:                 "object",
			AdditionalProperties: typeToSchema(t.Elem()),
		}
	case reflect.Struct:
		return structToSchema(t)
	case reflect.Interface:
		return &jsonschema.Schema{}
	default:
		return &jsonschema.Schema{Type: "string"}
	}
}
