// Package conn wraps one dedicated database session. A Conn owns its
// transaction state and a bounded cache of prepared statements. It is
// not safe for concurrent use: exactly one caller holds it at a time,
// which the pool guarantees.
package conn

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/golang/groupcache/lru"
	"github.com/google/uuid"

	"github.com/shrek82/persist/dialect"
	"github.com/shrek82/persist/logger"
)

// State is the transaction state of a connection.
type State int

const (
	StateIdle State = iota
	StateInTransaction
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInTransaction:
		return "in-transaction"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Options configures connections created by New and Factory.
type Options struct {
	// Dialect supplies the transaction statements. Required.
	Dialect dialect.Dialect
	// CacheSize bounds the statement cache. Zero disables caching.
	CacheSize    int
	Logger       logger.Logger
	Interceptors []Interceptor
}

// Conn is one live database session.
type Conn struct {
	id      string
	raw     *sql.Conn
	dialect dialect.Dialect
	log     logger.Logger

	interceptors []Interceptor

	state State
	cache *lru.Cache
	// evictErr holds the close error of the last statement dropped from the cache.
	evictErr error
}

// New takes a dedicated session from db.
func New(ctx context.Context, db *sql.DB, opts Options) (*Conn, error) {
	if opts.Dialect == nil {
		return nil, fmt.Errorf("conn: dialect is required")
	}
	raw, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	c := &Conn{
		id:      uuid.NewString(),
		raw:     raw,
		dialect: opts.Dialect,
		state:   StateIdle,
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	c.log = log.WithFields(map[string]any{"conn": c.id})
	if opts.CacheSize > 0 {
		c.cache = lru.New(opts.CacheSize)
		c.cache.OnEvicted = func(key lru.Key, value any) {
			st := value.(*Stmt)
			c.log.Debug("Evicting `%s` from statement cache", st.query)
			st.closed = true
			c.evictErr = st.raw.Close()
		}
	}
	c.interceptors = opts.Interceptors
	return c, nil
}

// ID identifies the session for logging and identity checks.
func (c *Conn) ID() string { return c.id }

// State returns the current transaction state.
func (c *Conn) State() State { return c.state }

// Dialect returns the dialect the connection was created with.
func (c *Conn) Dialect() dialect.Dialect { return c.dialect }

// Logger returns the connection-scoped logger.
func (c *Conn) Logger() logger.Logger { return c.log }

// CachedStatements reports the number of statements held in the cache.
func (c *Conn) CachedStatements() int {
	if c.cache == nil {
		return 0
	}
	return c.cache.Len()
}

// Begin opens a transaction. A connection already in a transaction fails
// with ErrNestedTransaction and keeps the running transaction.
func (c *Conn) Begin(ctx context.Context, isolation string) error {
	switch c.state {
	case StateClosed:
		return ErrClosed
	case StateInTransaction:
		return ErrNestedTransaction
	}
	for _, q := range c.dialect.BeginSQL(isolation) {
		if err := c.do(ctx, &Op{Kind: OpBegin, SQL: q}, nil); err != nil {
			return err
		}
	}
	c.state = StateInTransaction
	return nil
}

// Commit ends the transaction. A failed COMMIT leaves the connection in
// the transaction so the caller can still roll back.
func (c *Conn) Commit(ctx context.Context) error {
	switch c.state {
	case StateClosed:
		return ErrClosed
	case StateIdle:
		return ErrNoTransaction
	}
	if err := c.do(ctx, &Op{Kind: OpCommit, SQL: c.dialect.CommitSQL()}, nil); err != nil {
		return err
	}
	c.state = StateIdle
	return nil
}

// Rollback abandons the transaction. The connection leaves the
// transaction state whether or not the engine call succeeds.
func (c *Conn) Rollback(ctx context.Context) error {
	switch c.state {
	case StateClosed:
		return ErrClosed
	case StateIdle:
		return ErrNoTransaction
	}
	c.state = StateIdle
	return c.do(ctx, &Op{Kind: OpRollback, SQL: c.dialect.RollbackSQL()}, nil)
}

// Prepare returns the cached statement for query, compiling and caching
// it on a miss. Callers may Close the result; cached handles ignore it.
func (c *Conn) Prepare(ctx context.Context, query string) (*Stmt, error) {
	if c.state == StateClosed {
		return nil, ErrClosed
	}
	if c.cache != nil {
		if v, ok := c.cache.Get(query); ok {
			c.log.Debug("Using `%s` from cache", query)
			return v.(*Stmt), nil
		}
	}
	st, err := c.prepare(ctx, query)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		st.cached = true
		c.cache.Add(query, st)
	}
	return st, nil
}

// ForcePrepare always compiles a fresh statement. A cached statement
// with the same text is closed and dropped first, so mutating statements
// never run on a stale handle. The result is not cached; the caller
// closes it.
func (c *Conn) ForcePrepare(ctx context.Context, query string) (*Stmt, error) {
	if c.state == StateClosed {
		return nil, ErrClosed
	}
	c.log.Debug("Forcing `%s` update", query)
	if c.cache != nil {
		if _, ok := c.cache.Get(query); ok {
			c.evictErr = nil
			c.cache.Remove(query)
			if err := c.evictErr; err != nil {
				c.evictErr = nil
				return nil, fmt.Errorf("conn: closing stale statement: %w", err)
			}
		}
	}
	return c.prepare(ctx, query)
}

func (c *Conn) prepare(ctx context.Context, query string) (*Stmt, error) {
	st := &Stmt{conn: c, query: query}
	err := c.do(ctx, &Op{Kind: OpPrepare, SQL: query}, func(ctx context.Context, _ *Op) error {
		raw, err := c.raw.PrepareContext(ctx, query)
		if err != nil {
			return err
		}
		st.raw = raw
		return nil
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// Ping checks that the session is still alive.
func (c *Conn) Ping(ctx context.Context) error {
	if c.state == StateClosed {
		return ErrClosed
	}
	return c.raw.PingContext(ctx)
}

// Close releases every cached statement and the session. Closing twice is a no-op.
func (c *Conn) Close() error {
	if c.state == StateClosed {
		return nil
	}
	c.state = StateClosed
	var firstErr error
	if c.cache != nil {
		c.evictErr = nil
		// OnEvicted closes each statement as the cache empties.
		for c.cache.Len() > 0 {
			c.cache.RemoveOldest()
			if c.evictErr != nil && firstErr == nil {
				firstErr = c.evictErr
			}
		}
	}
	if err := c.raw.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// do runs op through the interceptor chain. final performs the round
// trip; nil executes the op's SQL directly on the session.
func (c *Conn) do(ctx context.Context, op *Op, final Handler) error {
	op.ConnID = c.id
	if final == nil {
		final = c.exec
	}
	start := time.Now()
	err := chain(c.interceptors, final)(ctx, op)
	if op.Kind != OpPrepare {
		c.log.SQL(op.SQL, time.Since(start), op.Args...)
	}
	return err
}

func (c *Conn) exec(ctx context.Context, op *Op) error {
	res, err := c.raw.ExecContext(ctx, op.SQL, op.Args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil {
		op.RowsAffected = n
	}
	return nil
}
