// Package model maps Go structs to table columns. Metadata is parsed once
// per type and cached.
package model

import (
	"fmt"
	"reflect"
	"sync"
	"unicode"
)

// Naming selects how untagged field names become column names.
type Naming int

const (
	// AsIs uses the field name verbatim.
	AsIs Naming = iota
	// SnakeCase converts FirstName to first_name.
	SnakeCase
)

// Description declares where a type is stored. Zero fields fall back to
// the struct name and the registry's default namespace.
type Description struct {
	Namespace string
	Name      string
	Naming    Naming
}

// Describer is implemented by entity types that declare their table.
type Describer interface {
	Description() Description
}

// Model represents table metadata
type Model struct {
	Type      reflect.Type
	Namespace string
	TableName string
	Fields    []*Field
	FieldMap  map[string]*Field
}

var modelCache sync.Map

// Of returns the model of T, which must be a struct type.
func Of[T any]() (*Model, error) {
	return ofType(reflect.TypeFor[T]())
}

// GetModel returns the model metadata for a given value
func GetModel(value any) (*Model, error) {
	if value == nil {
		return nil, fmt.Errorf("value is nil")
	}
	return ofType(reflect.TypeOf(value))
}

func ofType(typ reflect.Type) (*Model, error) {
	if typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("value must be a struct or pointer to struct, got %s", typ.Kind())
	}

	if cached, ok := modelCache.Load(typ); ok {
		return cached.(*Model), nil
	}

	m, err := parseModel(typ)
	if err != nil {
		return nil, err
	}

	actual, _ := modelCache.LoadOrStore(typ, m)
	return actual.(*Model), nil
}

func describe(typ reflect.Type) Description {
	if d, ok := reflect.New(typ).Interface().(Describer); ok {
		return d.Description()
	}
	return Description{}
}

func parseModel(typ reflect.Type) (*Model, error) {
	desc := describe(typ)
	m := &Model{
		Type:      typ,
		Namespace: desc.Namespace,
		TableName: desc.Name,
		FieldMap:  make(map[string]*Field),
	}
	if m.TableName == "" {
		m.TableName = typ.Name()
	}

	for _, structField := range reflect.VisibleFields(typ) {
		if !structField.IsExported() || structField.Anonymous {
			continue
		}

		tag := ParseTag(structField.Tag.Get("persist"))
		if tag.Skip {
			continue
		}

		columnName := tag.Column
		if columnName == "" {
			columnName = structField.Name
			if desc.Naming == SnakeCase {
				columnName = camelToSnake(columnName)
			}
		}
		if prev, dup := m.FieldMap[columnName]; dup {
			return nil, fmt.Errorf("model %s: fields %s and %s both map to column %q",
				typ.Name(), prev.Name, structField.Name, columnName)
		}

		field := &Field{
			Name:     structField.Name,
			Column:   columnName,
			Type:     structField.Type,
			Index:    structField.Index,
			TypeHint: tag.Type,
		}

		m.Fields = append(m.Fields, field)
		m.FieldMap[columnName] = field
	}

	return m, nil
}

// Columns lists the mapped columns in field order.
func (m *Model) Columns() []string {
	cols := make([]string, len(m.Fields))
	for i, f := range m.Fields {
		cols[i] = f.Column
	}
	return cols
}

func camelToSnake(s string) string {
	if s == "ID" {
		return "id"
	}
	var res []rune
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(rune(s[i-1])) || (i+1 < len(s) && unicode.IsLower(rune(s[i+1])))) {
				res = append(res, '_')
			}
			res = append(res, unicode.ToLower(r))
		} else {
			res = append(res, r)
		}
	}
	return string(res)
}
