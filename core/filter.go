package core

import (
	"fmt"
	"reflect"
	"slices"
	"sort"

	"github.com/shrek82/persist/schema"
)

// Cond is one column = value condition.
type Cond struct {
	Column string
	Value  any
}

// Filter is an ordered list of conditions, AND-joined. Values bind in
// filter order.
type Filter []Cond

// Where starts a filter.
func Where(column string, value any) Filter {
	return Filter{{Column: column, Value: value}}
}

// And appends a condition.
func (f Filter) And(column string, value any) Filter {
	return append(slices.Clip(f), Cond{Column: column, Value: value})
}

// FilterOf builds a filter from a map, ordered by column name.
func FilterOf(m map[string]any) Filter {
	cols := make([]string, 0, len(m))
	for col := range m {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	f := make(Filter, len(cols))
	for i, col := range cols {
		f[i] = Cond{Column: col, Value: m[col]}
	}
	return f
}

func (f Filter) columns() []string {
	cols := make([]string, len(f))
	for i, c := range f {
		cols[i] = c.Column
	}
	return cols
}

func (f Filter) values() []any {
	vals := make([]any, len(f))
	for i, c := range f {
		vals[i] = c.Value
	}
	return vals
}

// Key addresses a row by primary key columns.
type Key map[string]any

// resolveID turns an id into primary-key ordered values. id may be a
// scalar for single-column keys, a slice or array in key order, or a Key
// or map keyed by column.
func resolveID(d *schema.Descriptor, id any) ([]any, error) {
	pks := d.PrimaryKeys
	if len(pks) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoPrimaryKey, d.QualifiedName())
	}

	var byColumn map[string]any
	switch v := id.(type) {
	case nil:
		return nil, fmt.Errorf("%w: nil", ErrInvalidID)
	case Key:
		byColumn = v
	case map[string]any:
		byColumn = v
	case []byte:
		return single(d, v)
	}
	if byColumn != nil {
		for col := range byColumn {
			if !d.IsPrimaryKey(col) {
				return nil, fmt.Errorf("%w: %q is not a key column of %s", ErrInvalidID, col, d.QualifiedName())
			}
		}
		vals := make([]any, len(pks))
		for i, pk := range pks {
			v, ok := byColumn[pk]
			if !ok {
				return nil, fmt.Errorf("%w: missing key column %q", ErrInvalidID, pk)
			}
			vals[i] = v
		}
		return vals, nil
	}

	rv := reflect.ValueOf(id)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		if rv.Len() != len(pks) {
			return nil, fmt.Errorf("%w: %d values for %d key columns", ErrInvalidID, rv.Len(), len(pks))
		}
		vals := make([]any, rv.Len())
		for i := range vals {
			vals[i] = rv.Index(i).Interface()
		}
		return vals, nil
	}
	return single(d, id)
}

func single(d *schema.Descriptor, id any) ([]any, error) {
	if len(d.PrimaryKeys) != 1 {
		return nil, fmt.Errorf("%w: scalar id for %d key columns", ErrInvalidID, len(d.PrimaryKeys))
	}
	return []any{id}, nil
}

// checkColumns fails with ErrUnknownColumn for any column d lacks.
func checkColumns(d *schema.Descriptor, cols []string) error {
	for _, col := range cols {
		if !d.HasColumn(col) {
			return fmt.Errorf("%w: %q in %s", ErrUnknownColumn, col, d.QualifiedName())
		}
	}
	return nil
}
