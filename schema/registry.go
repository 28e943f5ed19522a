// Package schema introspects table metadata from the engine catalog and
// caches it for the life of the process. Each table costs at most one
// catalog query, even under concurrent first access.
package schema

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/shrek82/persist/conn"
	"github.com/shrek82/persist/dialect"
	"github.com/shrek82/persist/logger"
)

// Option configures a Registry.
type Option func(*Registry)

// WithStore adds a second-level store consulted before the catalog.
func WithStore(s Store) Option {
	return func(r *Registry) { r.store = s }
}

// WithLogger sets the registry logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// Registry caches descriptors by table. Entries are never invalidated;
// schema changes need a restart.
type Registry struct {
	dialect          dialect.Dialect
	defaultNamespace string
	store            Store
	log              logger.Logger

	tables   sync.Map // Key -> *Descriptor
	routines sync.Map // Key -> dialect.RoutineKind
	group    singleflight.Group
	lookups  atomic.Int64
}

// NewRegistry creates an empty registry.
func NewRegistry(d dialect.Dialect, defaultNamespace string, opts ...Option) *Registry {
	r := &Registry{
		dialect:          d,
		defaultNamespace: defaultNamespace,
		log:              logger.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dialect returns the dialect descriptors are built for.
func (r *Registry) Dialect() dialect.Dialect { return r.dialect }

// DefaultNamespace is used for keys without a namespace.
func (r *Registry) DefaultNamespace() string { return r.defaultNamespace }

// Lookups reports how many catalog queries the registry has issued.
func (r *Registry) Lookups() int64 { return r.lookups.Load() }

// Get returns the descriptor for key, querying the catalog through c on
// first use.
func (r *Registry) Get(ctx context.Context, c *conn.Conn, key Key) (*Descriptor, error) {
	key = r.normalize(key)
	if d, ok := r.tables.Load(key); ok {
		return d.(*Descriptor), nil
	}
	v, err, _ := r.group.Do("table:"+key.String(), func() (any, error) {
		if d, ok := r.tables.Load(key); ok {
			return d, nil
		}
		d, err := r.resolve(ctx, c, key)
		if err != nil {
			return nil, err
		}
		r.tables.Store(key, d)
		return d, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Descriptor), nil
}

func (r *Registry) resolve(ctx context.Context, c *conn.Conn, key Key) (*Descriptor, error) {
	if r.store != nil {
		d, ok, err := r.store.Load(ctx, key)
		switch {
		case err != nil:
			r.log.Warn("Schema store load %s failed: %v", key, err)
		case ok:
			r.log.Debug("Schema %s loaded from store", key)
			return d, nil
		}
	}

	st, err := c.Prepare(ctx, r.dialect.ColumnsSQL())
	if err != nil {
		return nil, err
	}
	defer st.Close()
	r.log.Debug("Bindings: [%s %s]", key.Table, key.Namespace)
	r.lookups.Add(1)
	rows, err := st.Query(ctx, key.Table, key.Namespace)
	if err != nil {
		return nil, fmt.Errorf("schema: describe %s: %w", key, err)
	}
	d, err := buildDescriptor(key, r.dialect.QualifiedName(key.Namespace, key.Table), rows)
	if err != nil {
		return nil, err
	}
	r.log.Debug("Schema: %s fields=%v pk=%v", d.Qualified, d.Fields, d.PrimaryKeys)

	if r.store != nil {
		if err := r.store.Save(ctx, key, d); err != nil {
			r.log.Warn("Schema store save %s failed: %v", key, err)
		}
	}
	return d, nil
}

// RoutineType returns whether the routine name in namespace is a
// FUNCTION or a PROCEDURE.
func (r *Registry) RoutineType(ctx context.Context, c *conn.Conn, namespace, name string) (dialect.RoutineKind, error) {
	key := r.normalize(Key{Namespace: namespace, Table: name})
	if k, ok := r.routines.Load(key); ok {
		return k.(dialect.RoutineKind), nil
	}
	query, ok := r.dialect.RoutineSQL()
	if !ok {
		return "", fmt.Errorf("%w: %s (%s has no stored routines)", ErrRoutineNotFound, key, r.dialect.Name())
	}
	v, err, _ := r.group.Do("routine:"+key.String(), func() (any, error) {
		st, err := c.Prepare(ctx, query)
		if err != nil {
			return nil, err
		}
		defer st.Close()
		rows, err := st.Query(ctx, key.Namespace, key.Table)
		if err != nil {
			return nil, fmt.Errorf("schema: routine %s: %w", key, err)
		}
		if len(rows) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrRoutineNotFound, key)
		}
		kind := dialect.RoutineKind(strings.ToUpper(text(column(rows[0], "rt"))))
		if kind != dialect.Function && kind != dialect.Procedure {
			return nil, fmt.Errorf("schema: routine %s has unsupported type %q", key, kind)
		}
		r.routines.Store(key, kind)
		return kind, nil
	})
	if err != nil {
		return "", err
	}
	return v.(dialect.RoutineKind), nil
}

func (r *Registry) normalize(key Key) Key {
	if key.Namespace == "" {
		key.Namespace = r.defaultNamespace
	}
	return key
}
