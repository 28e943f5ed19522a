package core

import (
	"context"
	"fmt"
	"maps"
	"reflect"
	"slices"

	"github.com/shrek82/persist/conn"
	"github.com/shrek82/persist/convert"
	"github.com/shrek82/persist/effect"
	"github.com/shrek82/persist/schema"
)

// Entity is a record of T with its dirty set: the columns assigned through
// Set since the entity was loaded or last written. Direct writes to
// Value() are not tracked.
type Entity[T any] struct {
	model *Model[T]
	value *T
	extra map[string]any
	dirty []string
}

// Value returns the underlying record.
func (e *Entity[T]) Value() *T { return e.value }

// Extra returns a copy of the columns that have no struct field.
func (e *Entity[T]) Extra() map[string]any { return maps.Clone(e.extra) }

// Get returns the value of a column, from the struct field or the extras.
func (e *Entity[T]) Get(column string) (any, bool) {
	if f, ok := e.model.meta.FieldMap[column]; ok {
		return f.Get(reflect.ValueOf(e.value)), true
	}
	v, ok := e.extra[column]
	return v, ok
}

// Set assigns a column and records it as dirty. Columns without a struct
// field are kept as extras.
func (e *Entity[T]) Set(column string, value any) error {
	if f, ok := e.model.meta.FieldMap[column]; ok {
		if err := f.Set(reflect.ValueOf(e.value), value); err != nil {
			return err
		}
	} else {
		e.extra[column] = value
	}
	if !slices.Contains(e.dirty, column) {
		e.dirty = append(e.dirty, column)
	}
	return nil
}

// Dirty lists the assigned columns in assignment order.
func (e *Entity[T]) Dirty() []string { return slices.Clone(e.dirty) }

func (e *Entity[T]) IsDirty() bool { return len(e.dirty) > 0 }

// MarkClean empties the dirty set.
func (e *Entity[T]) MarkClean() { e.dirty = e.dirty[:0] }

// fields resolves the columns a write touches: the projection, else the
// dirty set, else the mandatory columns; key columns are always included.
// The result follows the table's column order.
func (e *Entity[T]) fields(d *schema.Descriptor, projection []string) ([]string, error) {
	var base []string
	switch {
	case len(projection) > 0:
		if err := checkColumns(d, projection); err != nil {
			return nil, err
		}
		base = projection
	case len(e.dirty) > 0:
		for _, col := range e.dirty {
			if d.HasColumn(col) {
				base = append(base, col)
			}
		}
	default:
		base = d.Mandatory
	}

	want := make(map[string]bool, len(base)+len(d.PrimaryKeys))
	for _, col := range d.PrimaryKeys {
		want[col] = true
	}
	for _, col := range base {
		want[col] = true
	}
	out := make([]string, 0, len(want))
	for _, col := range d.Fields {
		if want[col] {
			out = append(out, col)
		}
	}
	return out, nil
}

// values returns the wire values of cols; a column without a value binds NULL.
func (e *Entity[T]) values(d *schema.Descriptor, cols []string) []any {
	out := make([]any, len(cols))
	for i, col := range cols {
		v, ok := e.Get(col)
		if !ok {
			continue
		}
		typ := d.TypeOf(col)
		if f, ok := e.model.meta.FieldMap[col]; ok && f.TypeHint != "" {
			typ = f.TypeHint
		}
		out[i] = convert.Convert(v, typ)
	}
	return out
}

// keyValues returns the entity's own primary key in key order.
func (e *Entity[T]) keyValues(d *schema.Descriptor) ([]any, error) {
	if len(d.PrimaryKeys) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoPrimaryKey, d.QualifiedName())
	}
	vals := make([]any, len(d.PrimaryKeys))
	for i, pk := range d.PrimaryKeys {
		v, ok := e.Get(pk)
		if !ok || v == nil {
			return nil, fmt.Errorf("%w: key column %q is not set", ErrInvalidID, pk)
		}
		vals[i] = v
	}
	return vals, nil
}

// Save writes the entity with an upsert and clears the dirty set.
func (e *Entity[T]) Save(projection ...string) effect.Effect[*Entity[T]] {
	return withSchema(e.model, func(ctx context.Context, c *conn.Conn, d *schema.Descriptor) (*Entity[T], error) {
		fields, err := e.fields(d, projection)
		if err != nil {
			return nil, err
		}
		if err := runHook(any(e.value), func(h BeforeSaver) error { return h.BeforeSave() }); err != nil {
			return nil, err
		}
		q := e.model.dialect().UpsertSQL(d.QualifiedName(), fields, d.PrimaryKeys)
		c.Logger().Debug("Save query: %s", q)

		if _, err := execute(ctx, c, q, e.values(d, fields)); err != nil {
			return nil, err
		}
		e.MarkClean()
		if err := runHook(any(e.value), func(h AfterSaver) error { return h.AfterSave() }); err != nil {
			return nil, err
		}
		return e, nil
	})
}

// Update writes the selected non-key columns of the row with the
// entity's key and reports rows affected.
func (e *Entity[T]) Update(projection ...string) effect.Effect[int64] {
	return withSchema(e.model, func(ctx context.Context, c *conn.Conn, d *schema.Descriptor) (int64, error) {
		fields, err := e.fields(d, projection)
		if err != nil {
			return 0, err
		}
		set := slices.DeleteFunc(fields, d.IsPrimaryKey)
		if len(set) == 0 {
			return 0, fmt.Errorf("%w: %s", ErrNothingToUpdate, d.QualifiedName())
		}
		keys, err := e.keyValues(d)
		if err != nil {
			return 0, err
		}
		if err := runHook(any(e.value), func(h BeforeUpdater) error { return h.BeforeUpdate() }); err != nil {
			return 0, err
		}

		b := newBuilder(e.model.dialect(), d.QualifiedName())
		q := b.set(set...).where(d.PrimaryKeys...).buildUpdate()
		putBuilder(b)
		c.Logger().Debug("Update query: %s", q)

		args := append(e.values(d, set), bind(d, d.PrimaryKeys, keys)...)
		res, err := execute(ctx, c, q, args)
		if err != nil {
			return 0, err
		}
		e.MarkClean()
		if err := runHook(any(e.value), func(h AfterUpdater) error { return h.AfterUpdate() }); err != nil {
			return 0, err
		}
		return res.RowsAffected, nil
	})
}

// Delete removes the row with the entity's key.
func (e *Entity[T]) Delete() effect.Effect[int64] {
	return effect.FlatMap(e.model.Schema(), func(d *schema.Descriptor) effect.Effect[int64] {
		keys, err := e.keyValues(d)
		if err != nil {
			return effect.Fail[int64](err)
		}
		if err := runHook(any(e.value), func(h BeforeDeleter) error { return h.BeforeDelete() }); err != nil {
			return effect.Fail[int64](err)
		}
		return e.model.DeleteID(keys).Tap(func(int64) error {
			return runHook(any(e.value), func(h AfterDeleter) error { return h.AfterDelete() })
		})
	})
}

// Attach reloads the persisted state of the row with the entity's key.
// The result is a new entity, nil when the row no longer exists.
func (e *Entity[T]) Attach() effect.Effect[*Entity[T]] {
	return effect.FlatMap(e.model.Schema(), func(d *schema.Descriptor) effect.Effect[*Entity[T]] {
		keys, err := e.keyValues(d)
		if err != nil {
			return effect.Fail[*Entity[T]](err)
		}
		return e.model.OpenID(keys)
	})
}
