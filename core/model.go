// Package core compiles entity operations into parameterized SQL. Every
// operation is an effect.Effect, so it runs on whatever connection a
// session supplies and composes with other operations in one transaction.
package core

import (
	"context"
	"fmt"
	"reflect"

	"github.com/shrek82/persist/conn"
	"github.com/shrek82/persist/convert"
	"github.com/shrek82/persist/dialect"
	"github.com/shrek82/persist/effect"
	"github.com/shrek82/persist/model"
	"github.com/shrek82/persist/schema"
)

// ModelOption configures a Model.
type ModelOption func(*schema.Key)

// WithTable overrides the table a model maps to.
func WithTable(namespace, table string) ModelOption {
	return func(k *schema.Key) {
		if namespace != "" {
			k.Namespace = namespace
		}
		if table != "" {
			k.Table = table
		}
	}
}

// Model holds the static operations of entity type T.
type Model[T any] struct {
	reg  *schema.Registry
	meta *model.Model
	key  schema.Key
}

// NewModel binds T to its table. The table defaults to the struct name
// and the namespace to the registry default; a model.Describer on T or a
// WithTable option overrides them.
func NewModel[T any](reg *schema.Registry, opts ...ModelOption) (*Model[T], error) {
	meta, err := model.Of[T]()
	if err != nil {
		return nil, err
	}
	key := schema.Key{Namespace: meta.Namespace, Table: meta.TableName}
	for _, opt := range opts {
		opt(&key)
	}
	if key.Namespace == "" {
		key.Namespace = reg.DefaultNamespace()
	}
	return &Model[T]{reg: reg, meta: meta, key: key}, nil
}

// Key returns the table the model maps to.
func (m *Model[T]) Key() schema.Key { return m.key }

func (m *Model[T]) dialect() dialect.Dialect { return m.reg.Dialect() }

// Schema resolves the table descriptor through the registry.
func (m *Model[T]) Schema() effect.Effect[*schema.Descriptor] {
	return effect.New(func(ctx context.Context, c *conn.Conn) (*schema.Descriptor, error) {
		return m.reg.Get(ctx, c, m.key)
	})
}

// withSchema runs fn once the descriptor is known.
func withSchema[T, U any](m *Model[T], fn func(ctx context.Context, c *conn.Conn, d *schema.Descriptor) (U, error)) effect.Effect[U] {
	return effect.FlatMap(m.Schema(), func(d *schema.Descriptor) effect.Effect[U] {
		return effect.New(func(ctx context.Context, c *conn.Conn) (U, error) {
			return fn(ctx, c, d)
		})
	})
}

// OpenID loads the row with the given key. The entity is nil when no row
// matches. id is a scalar, a slice in key order, or a Key.
func (m *Model[T]) OpenID(id any, projection ...string) effect.Effect[*Entity[T]] {
	return withSchema(m, func(ctx context.Context, c *conn.Conn, d *schema.Descriptor) (*Entity[T], error) {
		args, err := resolveID(d, id)
		if err != nil {
			return nil, err
		}
		if err := checkColumns(d, projection); err != nil {
			return nil, err
		}
		b := newBuilder(m.dialect(), d.QualifiedName())
		q := b.sel(projection...).where(d.PrimaryKeys...).buildSelect()
		putBuilder(b)
		c.Logger().Debug("OpenId query: %s", q)

		rows, err := query(ctx, c, q, bind(d, d.PrimaryKeys, args))
		if err != nil {
			return nil, err
		}
		switch len(rows) {
		case 0:
			return nil, nil
		case 1:
			return m.Load(rows[0])
		}
		return nil, fmt.Errorf("%w: %d rows in %s", ErrNotUnique, len(rows), d.QualifiedName())
	})
}

// ExistsID reports whether a row with the given key exists.
func (m *Model[T]) ExistsID(id any) effect.Effect[bool] {
	return withSchema(m, func(ctx context.Context, c *conn.Conn, d *schema.Descriptor) (bool, error) {
		args, err := resolveID(d, id)
		if err != nil {
			return false, err
		}
		b := newBuilder(m.dialect(), d.QualifiedName())
		q := b.where(d.PrimaryKeys...).buildExists()
		putBuilder(b)
		c.Logger().Debug("Exists query: %s", q)

		rows, err := query(ctx, c, q, bind(d, d.PrimaryKeys, args))
		if err != nil {
			return false, err
		}
		if len(rows) > 1 {
			return false, fmt.Errorf("%w: %d rows in %s", ErrNotUnique, len(rows), d.QualifiedName())
		}
		return len(rows) == 1, nil
	})
}

// FindBy loads every row matching filter. An empty filter matches all rows.
func (m *Model[T]) FindBy(filter Filter, projection ...string) effect.Effect[[]*Entity[T]] {
	return withSchema(m, func(ctx context.Context, c *conn.Conn, d *schema.Descriptor) ([]*Entity[T], error) {
		cols := filter.columns()
		if err := checkColumns(d, cols); err != nil {
			return nil, err
		}
		if err := checkColumns(d, projection); err != nil {
			return nil, err
		}
		b := newBuilder(m.dialect(), d.QualifiedName())
		q := b.sel(projection...).where(cols...).buildSelect()
		putBuilder(b)
		c.Logger().Debug("FindBy query: %s", q)

		rows, err := query(ctx, c, q, bind(d, cols, filter.values()))
		if err != nil {
			return nil, err
		}
		out := make([]*Entity[T], len(rows))
		for i, row := range rows {
			if out[i], err = m.Load(row); err != nil {
				return nil, err
			}
		}
		return out, nil
	})
}

// DeleteID deletes the row with the given key and reports rows affected.
// More than one affected row fails with ErrNotUnique and the delete is
// rolled back: on an idle connection DeleteID runs in its own
// transaction, inside a caller's transaction the caller's rollback undoes it.
func (m *Model[T]) DeleteID(id any) effect.Effect[int64] {
	return withSchema(m, func(ctx context.Context, c *conn.Conn, d *schema.Descriptor) (int64, error) {
		args, err := resolveID(d, id)
		if err != nil {
			return 0, err
		}
		b := newBuilder(m.dialect(), d.QualifiedName())
		q := b.where(d.PrimaryKeys...).buildDelete()
		putBuilder(b)
		c.Logger().Debug("DeleteId query: %s", q)

		own := c.State() == conn.StateIdle
		if own {
			if err := c.Begin(ctx, ""); err != nil {
				return 0, err
			}
		}
		res, err := execute(ctx, c, q, bind(d, d.PrimaryKeys, args))
		if err == nil && res.RowsAffected > 1 {
			err = fmt.Errorf("%w: deleted %d rows from %s", ErrNotUnique, res.RowsAffected, d.QualifiedName())
		}
		if own {
			if err == nil {
				err = c.Commit(ctx)
			}
			if err != nil && c.State() == conn.StateInTransaction {
				if rbErr := c.Rollback(ctx); rbErr != nil {
					c.Logger().Warn("DeleteId rollback failed: %v", rbErr)
				}
			}
		}
		return res.RowsAffected, err
	})
}

// Call invokes the routine <table>_<name> in the model namespace. A
// FUNCTION returns its rows; a PROCEDURE is executed and returns nil.
func (m *Model[T]) Call(name string, args ...any) effect.Effect[[]conn.Row] {
	return withSchema(m, func(ctx context.Context, c *conn.Conn, d *schema.Descriptor) ([]conn.Row, error) {
		routine := d.Table + "_" + name
		kind, err := m.reg.RoutineType(ctx, c, d.Namespace, routine)
		if err != nil {
			return nil, err
		}
		q := m.dialect().CallSQL(m.dialect().QualifiedName(d.Namespace, routine), len(args), kind)
		c.Logger().Debug("Call query: %s", q)

		st, err := c.Prepare(ctx, q)
		if err != nil {
			return nil, err
		}
		defer st.Close()
		if kind == dialect.Function {
			return st.Query(ctx, args...)
		}
		_, err = st.Execute(ctx, args...)
		return nil, err
	})
}

// Exec invokes a routine like Call and discards any result.
func (m *Model[T]) Exec(name string, args ...any) effect.Effect[struct{}] {
	return effect.Map(m.Call(name, args...), func([]conn.Row) struct{} { return struct{}{} })
}

// New wraps a caller-constructed record. Its dirty set starts empty; use
// Set to record assignments. A nil v starts from the zero value.
func (m *Model[T]) New(v *T) *Entity[T] {
	if v == nil {
		v = new(T)
	}
	return &Entity[T]{model: m, value: v, extra: make(map[string]any)}
}

// Load builds a pristine entity from a result row. Columns without a
// struct field are kept as extras.
func (m *Model[T]) Load(row conn.Row) (*Entity[T], error) {
	e := m.New(nil)
	rv := reflect.ValueOf(e.value)
	for col, val := range row {
		if f, ok := m.meta.FieldMap[col]; ok {
			if err := f.Set(rv, val); err != nil {
				return nil, err
			}
			continue
		}
		e.extra[col] = val
	}
	if err := runHook(any(e.value), func(h AfterLoader) error { return h.AfterLoad() }); err != nil {
		return nil, err
	}
	return e, nil
}

// bind converts values for the declared types of cols.
func bind(d *schema.Descriptor, cols []string, vals []any) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = convert.Convert(v, d.TypeOf(cols[i]))
	}
	return out
}

// query runs a read through the statement cache.
func query(ctx context.Context, c *conn.Conn, q string, args []any) ([]conn.Row, error) {
	c.Logger().Debug("Bindings: %v", args)
	st, err := c.Prepare(ctx, q)
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return st.Query(ctx, args...)
}

// execute runs a mutating statement on a freshly prepared handle.
func execute(ctx context.Context, c *conn.Conn, q string, args []any) (conn.Result, error) {
	c.Logger().Debug("Bindings: %v", args)
	st, err := c.ForcePrepare(ctx, q)
	if err != nil {
		return conn.Result{}, err
	}
	defer st.Close()
	return st.Execute(ctx, args...)
}
