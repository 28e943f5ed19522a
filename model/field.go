package model

import (
	"fmt"
	"reflect"
)

// Field represents a database column mapped from a struct field
type Field struct {
	Name     string       // Struct field name
	Column   string       // DB column name
	Type     reflect.Type // Field type
	Index    []int        // Struct field index path for fast access
	TypeHint string       // Declared type override from the tag
}

// Get returns the field value of the struct v points to.
func (f *Field) Get(v reflect.Value) any {
	fv := reflect.Indirect(v).FieldByIndex(f.Index)
	if fv.Kind() == reflect.Pointer {
		if fv.IsNil() {
			return nil
		}
		return fv.Elem().Interface()
	}
	return fv.Interface()
}

// Set assigns value to the field of the struct v points to, converting
// driver representations to the field type.
func (f *Field) Set(v reflect.Value, value any) error {
	fv := reflect.Indirect(v).FieldByIndex(f.Index)
	if err := Assign(fv, value); err != nil {
		return fmt.Errorf("model: column %s: %w", f.Column, err)
	}
	return nil
}
