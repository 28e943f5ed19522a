// Package session runs effects against pooled connections, either inside
// a transaction or in auto-commit mode, and decides whether the connection
// goes back to the pool or is destroyed afterwards.
package session

import (
	"context"
	"fmt"

	"github.com/shrek82/persist/conn"
	"github.com/shrek82/persist/dialect"
	"github.com/shrek82/persist/effect"
	"github.com/shrek82/persist/logger"
)

// Pool is the subset of pool.Pool[*conn.Conn] a session needs.
type Pool interface {
	Acquire(ctx context.Context) (*conn.Conn, error)
	Release(c *conn.Conn) error
	Destroy(c *conn.Conn) error
	Drain(ctx context.Context) error
}

// Options configures a Session.
type Options struct {
	// Isolation is passed to every Begin. Empty uses the engine default.
	Isolation string
	// Dialect classifies retryable errors for callers. Optional.
	Dialect dialect.Dialect
	Logger  logger.Logger
}

// Session orchestrates connections from one pool.
type Session struct {
	pool Pool
	opts Options
	log  logger.Logger
}

// New creates a session over p.
func New(p Pool, opts Options) *Session {
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &Session{pool: p, opts: opts, log: log}
}

// Transact runs eff inside a transaction on one connection. On success the
// transaction commits and the connection is released. On failure the
// transaction rolls back and the effect's error is returned; a connection
// whose rollback fails is destroyed rather than released. A panic in eff
// rolls back, destroys the connection and re-panics.
func Transact[T any](ctx context.Context, s *Session, eff effect.Effect[T]) (T, error) {
	var zero T
	c, err := s.pool.Acquire(ctx)
	if err != nil {
		return zero, err
	}
	if err := c.Begin(ctx, s.opts.Isolation); err != nil {
		s.destroy(c)
		return zero, err
	}

	defer func() {
		if p := recover(); p != nil {
			if err := c.Rollback(context.WithoutCancel(ctx)); err != nil {
				s.log.Error("Rollback after panic failed: %v", err)
			}
			s.destroy(c)
			panic(p)
		}
	}()

	v, err := eff.Run(ctx, c)
	if err != nil {
		s.abort(ctx, c, err)
		return zero, err
	}
	if err := c.Commit(ctx); err != nil {
		s.abort(ctx, c, err)
		return zero, err
	}
	s.release(c)
	return v, nil
}

// Exec runs eff on one connection without an explicit transaction. Any
// failure destroys the connection, since auto-commit leaves no rollback
// point to restore it to a known state.
func Exec[T any](ctx context.Context, s *Session, eff effect.Effect[T]) (T, error) {
	var zero T
	c, err := s.pool.Acquire(ctx)
	if err != nil {
		return zero, err
	}

	defer func() {
		if p := recover(); p != nil {
			s.destroy(c)
			panic(p)
		}
	}()

	v, err := eff.Run(ctx, c)
	if err != nil {
		s.destroy(c)
		return zero, err
	}
	s.release(c)
	return v, nil
}

// Destroy drains the pool. It is the shutdown hook of the session.
func (s *Session) Destroy(ctx context.Context) error {
	if err := s.pool.Drain(ctx); err != nil {
		return fmt.Errorf("session: destroy: %w", err)
	}
	return nil
}

// Retryable reports whether err is a transient conflict (deadlock, lock
// timeout, serialization failure) a caller may retry. Sessions never retry
// on their own.
func (s *Session) Retryable(err error) bool {
	return s.opts.Dialect != nil && s.opts.Dialect.IsRetryable(err)
}

// abort rolls back after cause and disposes of the connection.
func (s *Session) abort(ctx context.Context, c *conn.Conn, cause error) {
	if err := c.Rollback(context.WithoutCancel(ctx)); err != nil {
		s.log.Error("Rollback after %v failed: %v", cause, err)
		s.destroy(c)
		return
	}
	s.release(c)
}

func (s *Session) release(c *conn.Conn) {
	if err := s.pool.Release(c); err != nil {
		s.log.Warn("Failed to release connection %s: %v", c.ID(), err)
	}
}

func (s *Session) destroy(c *conn.Conn) {
	s.log.Warn("Destroying connection %s", c.ID())
	if err := s.pool.Destroy(c); err != nil {
		s.log.Warn("Failed to destroy connection %s: %v", c.ID(), err)
	}
}
