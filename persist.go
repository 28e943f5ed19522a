// Package persist wires a connection pool, a transactional session and a
// schema registry from one Config. Entity models built on the returned DB
// compile their operations into effects that DB.Transact and DB.Exec run.
package persist

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"

	"github.com/shrek82/persist/config"
	"github.com/shrek82/persist/conn"
	"github.com/shrek82/persist/core"
	"github.com/shrek82/persist/dialect"
	"github.com/shrek82/persist/effect"
	"github.com/shrek82/persist/logger"
	"github.com/shrek82/persist/middleware"
	"github.com/shrek82/persist/pool"
	"github.com/shrek82/persist/schema"
	"github.com/shrek82/persist/session"
)

// Re-export the types callers need to work through a DB.
type (
	Config     = config.Config
	Conn       = conn.Conn
	Row        = conn.Row
	Filter     = core.Filter
	Key        = core.Key
	Descriptor = schema.Descriptor
	PoolStats  = pool.Stats

	Model[T any]  = core.Model[T]
	Entity[T any] = core.Entity[T]
	Effect[T any] = effect.Effect[T]
)

var (
	Where    = core.Where
	FilterOf = core.FilterOf
)

// Errors callers match with errors.Is.
var (
	ErrNotUnique         = core.ErrNotUnique
	ErrUnknownColumn     = core.ErrUnknownColumn
	ErrInvalidID         = core.ErrInvalidID
	ErrNothingToUpdate   = core.ErrNothingToUpdate
	ErrNoPrimaryKey      = core.ErrNoPrimaryKey
	ErrTableNotFound     = schema.ErrTableNotFound
	ErrRoutineNotFound   = schema.ErrRoutineNotFound
	ErrNestedTransaction = conn.ErrNestedTransaction
	ErrNoTransaction     = conn.ErrNoTransaction
	ErrConnClosed        = conn.ErrClosed
	ErrResourceExhausted = pool.ErrResourceExhausted
	ErrPoolClosed        = pool.ErrClosed
	ErrNilEffect         = effect.ErrNilEffect
	ErrCircuitOpen       = middleware.ErrCircuitOpen
)

// Option customises Open beyond what Config covers.
type Option func(*options)

type options struct {
	logger       logger.Logger
	interceptors []conn.Interceptor
	store        schema.Store
}

// WithLogger replaces the logger built from the config.
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithInterceptors appends interceptors after the configured ones.
func WithInterceptors(ics ...conn.Interceptor) Option {
	return func(o *options) { o.interceptors = append(o.interceptors, ics...) }
}

// WithSchemaStore shares descriptors through s instead of the configured store.
func WithSchemaStore(s schema.Store) Option {
	return func(o *options) { o.store = s }
}

// DB is the main entry point. It owns the pool and everything built on it.
type DB struct {
	cfg      config.Config
	log      logger.Logger
	dialect  dialect.Dialect
	factory  *conn.Factory
	pool     *pool.Pool[*conn.Conn]
	session  *session.Session
	registry *schema.Registry
	stats    *middleware.Stats
	closers  []io.Closer
}

// Open validates cfg and builds the runtime. The driver named by
// cfg.Driver must be registered with database/sql by the caller.
func Open(ctx context.Context, cfg config.Config, opts ...Option) (*DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	d, ok := dialect.Get(cfg.Driver)
	if !ok {
		return nil, fmt.Errorf("unknown dialect %s", cfg.Driver)
	}

	log := o.logger
	if log == nil {
		level, err := logger.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, err
		}
		log = logger.NewStdLogger()
		log.SetLevel(level)
		if cfg.LogFormat == string(logger.LogFormatJSON) {
			log.SetFormat(logger.LogFormatJSON)
		}
	}

	db := &DB{
		cfg:     cfg,
		log:     log,
		dialect: d,
		stats:   &middleware.Stats{SlowThreshold: cfg.SlowThreshold},
	}

	interceptors := []conn.Interceptor{db.stats}
	if cfg.CircuitBreaker.Threshold > 0 {
		interceptors = append(interceptors, middleware.NewCircuitBreaker(cfg.CircuitBreaker.Threshold, cfg.CircuitBreaker.ResetTimeout))
	}
	if cfg.SlowThreshold > 0 {
		slow, err := middleware.NewSlowLog(cfg.SlowThreshold, cfg.SlowLogPath)
		if err != nil {
			return nil, err
		}
		db.closers = append(db.closers, slow)
		interceptors = append(interceptors, slow)
	}
	if cfg.Trace {
		interceptors = append(interceptors, middleware.NewTracing(log))
	}
	interceptors = append(interceptors, o.interceptors...)

	factory, err := conn.NewFactory(cfg.Driver, cfg.DSN, conn.Options{
		Dialect:      d,
		CacheSize:    cfg.StatementCacheSize,
		Logger:       log,
		Interceptors: interceptors,
	})
	if err != nil {
		db.closeAll()
		return nil, err
	}
	db.factory = factory
	db.closers = append(db.closers, factory)

	db.pool, err = pool.New[*conn.Conn](factory, pool.Options{
		Min:              cfg.Pool.Min,
		Max:              cfg.Pool.Max,
		IdleTimeout:      cfg.Pool.IdleTimeout,
		EvictionInterval: cfg.Pool.EvictionInterval,
		TestOnBorrow:     cfg.Pool.TestOnBorrow,
		AcquireTimeout:   cfg.Pool.AcquireTimeout,
		Logger:           log,
	})
	if err != nil {
		db.closeAll()
		return nil, err
	}
	db.session = session.New(db.pool, session.Options{Isolation: cfg.Isolation, Dialect: d, Logger: log})

	store := o.store
	if store == nil && cfg.SchemaCache.RedisAddr != "" {
		rs := schema.NewRedisStore(&redis.Options{
			Addr:     cfg.SchemaCache.RedisAddr,
			Password: cfg.SchemaCache.RedisPassword,
			DB:       cfg.SchemaCache.RedisDB,
		}, cfg.SchemaCache.TTL)
		db.closers = append(db.closers, rs)
		if err := rs.Ping(ctx); err != nil {
			db.Close(ctx)
			return nil, fmt.Errorf("schema cache: %w", err)
		}
		store = rs
	}
	regOpts := []schema.Option{schema.WithLogger(log)}
	if store != nil {
		regOpts = append(regOpts, schema.WithStore(store))
	}
	db.registry = schema.NewRegistry(d, cfg.DefaultNamespace, regOpts...)

	if cfg.Pool.Prefill {
		if err := db.pool.Start(ctx); err != nil {
			db.Close(ctx)
			return nil, err
		}
	}
	log.Info("Opened %s pool [%d, %d]", d.Name(), cfg.Pool.Min, cfg.Pool.Max)
	return db, nil
}

// Config returns the configuration the DB was opened with.
func (db *DB) Config() config.Config { return db.cfg }

func (db *DB) Logger() logger.Logger { return db.log }

func (db *DB) Dialect() dialect.Dialect { return db.dialect }

func (db *DB) Session() *session.Session { return db.session }

func (db *DB) Registry() *schema.Registry { return db.registry }

// PoolStats reports pool occupancy.
func (db *DB) PoolStats() pool.Stats { return db.pool.Stats() }

// Stats reports statement counters across all connections.
func (db *DB) Stats() middleware.StatsSnapshot { return db.stats.Snapshot() }

// Retryable reports whether err is a transient engine failure worth
// running the whole transaction again for.
func (db *DB) Retryable(err error) bool { return db.session.Retryable(err) }

// Close drains the pool, waiting for borrowed connections until ctx is
// done, then releases the database handle and any schema cache client.
func (db *DB) Close(ctx context.Context) error {
	var errs []error
	if db.session != nil {
		if err := db.session.Destroy(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := db.closeAll(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (db *DB) closeAll() error {
	var errs []error
	for i := len(db.closers) - 1; i >= 0; i-- {
		if err := db.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	db.closers = nil
	return errors.Join(errs...)
}

// NewModel binds entity type T to its table in db.
func NewModel[T any](db *DB, opts ...core.ModelOption) (*core.Model[T], error) {
	return core.NewModel[T](db.registry, opts...)
}

// Transact runs eff in one transaction on one pooled connection.
func Transact[T any](ctx context.Context, db *DB, eff effect.Effect[T]) (T, error) {
	return session.Transact(ctx, db.session, eff)
}

// Exec runs eff on one pooled connection without a transaction.
func Exec[T any](ctx context.Context, db *DB, eff effect.Effect[T]) (T, error) {
	return session.Exec(ctx, db.session, eff)
}
