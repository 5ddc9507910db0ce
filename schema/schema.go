// Package schema derives OpenAPI schemas from Go types. hubctl uses it to
// publish the shape of event payloads and client options.
package schema

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

const openAPIVersion = "3.1.0"

var timeType = reflect.TypeOf(time.Time{})

// For returns the schema of value's type. Struct fields follow their json
// tags; fields tagged "-" are skipped.
func For(value any) (map[string]any, error) {
	if value == nil {
		return map[string]any{"type": "null"}, nil
	}
	return forType(reflect.TypeOf(value), map[reflect.Type]bool{})
}

func forType(rt reflect.Type, visiting map[reflect.Type]bool) (map[string]any, error) {
	for rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}

	switch rt.Kind() {
	case reflect.Interface:
		return map[string]any{}, nil
	case reflect.Bool:
		return map[string]any{"type": "boolean"}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if rt.PkgPath() == "time" && rt.Name() == "Duration" {
			return map[string]any{"type": "string", "format": "duration"}, nil
		}
		return map[string]any{"type": "integer"}, nil
	case reflect.Float32, reflect.Float64:
		return map[string]any{"type": "number"}, nil
	case reflect.String:
		return map[string]any{"type": "string"}, nil
	case reflect.Struct:
		if rt == timeType {
			return map[string]any{"type": "string", "format": "date-time"}, nil
		}
		return forStruct(rt, visiting)
	case reflect.Map:
		if rt.Key().Kind() != reflect.String {
			return nil, fmt.Errorf("schema: map key type %s unsupported", rt.Key())
		}
		values, err := forType(rt.Elem(), visiting)
		if err != nil {
			return nil, err
		}
		return map[string]any{"type": "object", "additionalProperties": values}, nil
	case reflect.Slice, reflect.Array:
		if rt.Elem().Kind() == reflect.Uint8 {
			return map[string]any{"type": "string", "format": "byte"}, nil
		}
		items, err := forType(rt.Elem(), visiting)
		if err != nil {
			return nil, err
		}
		return map[string]any{"type": "array", "items": items}, nil
	default:
		return nil, fmt.Errorf("schema: kind %s unsupported (%s)", rt.Kind(), rt)
	}
}

func forStruct(rt reflect.Type, visiting map[reflect.Type]bool) (map[string]any, error) {
	if visiting[rt] {
		return nil, fmt.Errorf("schema: recursive type %s unsupported", rt)
	}
	visiting[rt] = true
	defer delete(visiting, rt)

	properties := map[string]any{}
	var required []string
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		name, omitempty, skip := jsonName(field)
		if skip {
			continue
		}
		child, err := forType(field.Type, visiting)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", rt.Name(), field.Name, err)
		}
		properties[name] = child
		if !omitempty && field.Type.Kind() != reflect.Pointer {
			required = append(required, name)
		}
	}

	out := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		sort.Strings(required)
		out["required"] = required
	}
	return out, nil
}

func jsonName(field reflect.StructField) (name string, omitempty, skip bool) {
	name = field.Name
	tag := field.Tag.Get("json")
	if tag == "" {
		return name, false, false
	}
	parts := strings.Split(tag, ",")
	if parts[0] == "-" {
		return "", false, true
	}
	if parts[0] != "" {
		name = parts[0]
	}
	for _, opt := range parts[1:] {
		if opt == "omitempty" || opt == "omitzero" {
			omitempty = true
		}
	}
	return name, omitempty, false
}

// Info is the document's info block.
type Info struct {
	Title       string
	Version     string
	Description string
}

// Document builds an OpenAPI document whose components are derived from
// components, keyed by component name. When body names a component, the
// document also declares a POST operation at path accepting it.
func Document(info Info, path, body string, components map[string]any) (map[string]any, error) {
	names := make([]string, 0, len(components))
	for name := range components {
		names = append(names, name)
	}
	sort.Strings(names)

	schemas := make(map[string]any, len(names))
	for _, name := range names {
		schema, err := For(components[name])
		if err != nil {
			return nil, fmt.Errorf("schema: component %s: %w", name, err)
		}
		schemas[name] = schema
	}

	infoBlock := map[string]any{"title": info.Title, "version": info.Version}
	if info.Description != "" {
		infoBlock["description"] = info.Description
	}

	paths := map[string]any{}
	if body != "" {
		if _, ok := schemas[body]; !ok {
			return nil, fmt.Errorf("schema: body component %q not declared", body)
		}
		paths[path] = map[string]any{
			"post": map[string]any{
				"operationId": "post" + body,
				"requestBody": map[string]any{
					"required": true,
					"content": map[string]any{
						"application/json": map[string]any{
							"schema": map[string]any{"$ref": "#/components/schemas/" + body},
						},
					},
				},
				"responses": map[string]any{
					"200": map[string]any{"description": "accepted"},
				},
			},
		}
	}

	return map[string]any{
		"openapi":    openAPIVersion,
		"info":       infoBlock,
		"paths":      paths,
		"components": map[string]any{"schemas": schemas},
	}, nil
}
