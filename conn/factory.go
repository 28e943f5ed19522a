package conn

import (
	"context"
	"database/sql"
	"fmt"
)

// Factory creates dedicated connections from one database handle. It
// satisfies pool.Factory[*Conn].
type Factory struct {
	db   *sql.DB
	opts Options
	// owned is set when the factory opened db itself.
	owned bool
}

// NewFactory opens a handle for driver and dsn. Idle sessions are never
// kept by database/sql, so closing a Conn ends its physical session.
func NewFactory(driver, dsn string, opts Options) (*Factory, error) {
	if opts.Dialect == nil {
		return nil, fmt.Errorf("conn: dialect is required")
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("conn: open %s: %w", driver, err)
	}
	db.SetMaxIdleConns(0)
	return &Factory{db: db, opts: opts, owned: true}, nil
}

// FactoryFromDB wraps an existing handle. The caller keeps ownership of db.
func FactoryFromDB(db *sql.DB, opts Options) *Factory {
	return &Factory{db: db, opts: opts}
}

// DB returns the underlying handle.
func (f *Factory) DB() *sql.DB { return f.db }

// Create opens a new connection.
func (f *Factory) Create(ctx context.Context) (*Conn, error) {
	c, err := New(ctx, f.db, f.opts)
	if err != nil {
		return nil, err
	}
	c.log.Debug("Connection opened")
	return c, nil
}

// Destroy closes the connection and its session.
func (f *Factory) Destroy(c *Conn) error {
	c.log.Debug("Connection closed")
	return c.Close()
}

// Validate pings the session. A connection left inside a transaction is
// not reusable and fails validation.
func (f *Factory) Validate(ctx context.Context, c *Conn) error {
	if c.State() != StateIdle {
		return fmt.Errorf("conn: validate: connection is %s", c.State())
	}
	return c.Ping(ctx)
}

// Close releases the handle if the factory opened it.
func (f *Factory) Close() error {
	if !f.owned {
		return nil
	}
	return f.db.Close()
}
