package schema

import (
	"fmt"
	"slices"
	"strings"

	"github.com/shrek82/persist/conn"
)

// Key identifies one table.
type Key struct {
	Namespace string
	Table     string
}

func (k Key) String() string { return k.Namespace + "." + k.Table }

// Descriptor is the cached catalog view of one table.
type Descriptor struct {
	Namespace string `msgpack:"namespace"`
	Table     string `msgpack:"table"`
	// Qualified is the dialect's reference to the table, ready to splice
	// into SQL.
	Qualified string `msgpack:"qualified"`
	// Fields lists every column in ordinal order.
	Fields []string `msgpack:"fields"`
	// PrimaryKeys lists the key columns in ordinal order.
	PrimaryKeys []string `msgpack:"primary_keys"`
	// Mandatory lists the non-null columns the engine does not fill in
	// itself: not nullable and not auto-increment.
	Mandatory     []string          `msgpack:"mandatory"`
	Types         map[string]string `msgpack:"types"`
	Nullable      map[string]bool   `msgpack:"nullable"`
	AutoIncrement map[string]bool   `msgpack:"auto_increment"`
}

// QualifiedName returns the table reference used in generated SQL.
func (d *Descriptor) QualifiedName() string { return d.Qualified }

// HasColumn reports whether name is a column of the table.
func (d *Descriptor) HasColumn(name string) bool {
	_, ok := d.Types[name]
	return ok
}

// TypeOf returns the declared type of a column, lower-cased.
func (d *Descriptor) TypeOf(name string) string { return d.Types[name] }

// IsPrimaryKey reports whether name is a key column.
func (d *Descriptor) IsPrimaryKey(name string) bool {
	return slices.Contains(d.PrimaryKeys, name)
}

// Key returns the registry key of the descriptor.
func (d *Descriptor) Key() Key { return Key{Namespace: d.Namespace, Table: d.Table} }

// buildDescriptor folds catalog rows (cn, pk, dt, nl, ai) into a Descriptor.
func buildDescriptor(key Key, qualified string, rows []conn.Row) (*Descriptor, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, key)
	}
	d := &Descriptor{
		Namespace:     key.Namespace,
		Table:         key.Table,
		Qualified:     qualified,
		Fields:        make([]string, 0, len(rows)),
		Types:         make(map[string]string, len(rows)),
		Nullable:      make(map[string]bool, len(rows)),
		AutoIncrement: make(map[string]bool, len(rows)),
	}
	for _, row := range rows {
		name := text(column(row, "cn"))
		if name == "" {
			return nil, fmt.Errorf("schema: %s: catalog row without column name", key)
		}
		d.Fields = append(d.Fields, name)
		d.Types[name] = strings.ToLower(text(column(row, "dt")))
		d.Nullable[name] = yes(column(row, "nl"))
		d.AutoIncrement[name] = yes(column(row, "ai"))
		if yes(column(row, "pk")) {
			d.PrimaryKeys = append(d.PrimaryKeys, name)
		}
		if !d.Nullable[name] && !d.AutoIncrement[name] {
			d.Mandatory = append(d.Mandatory, name)
		}
	}
	return d, nil
}

// column reads a catalog column regardless of the case the driver
// reports aliases in.
func column(row conn.Row, name string) any {
	if v, ok := row[name]; ok {
		return v
	}
	return row[strings.ToUpper(name)]
}

func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

func yes(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case int64:
		return t != 0
	}
	switch strings.ToUpper(strings.TrimSpace(text(v))) {
	case "YES", "Y", "1", "TRUE":
		return true
	}
	return false
}
