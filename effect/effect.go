// Package effect provides deferred computations over a single database
// connection. An Effect describes work; nothing touches the database until
// Run is called with a connection, typically by a session. Composed
// effects run strictly in order against that one connection, which is how
// several entity operations share a transaction.
package effect

import (
	"context"
	"errors"

	"github.com/shrek82/persist/conn"
)

// ErrNilEffect is returned when running the zero Effect.
var ErrNilEffect = errors.New("effect: nil effect")

// Effect yields a T (or fails) given a connection. Effects are values: they
// hold no state and may be run any number of times.
type Effect[T any] struct {
	run func(ctx context.Context, c *conn.Conn) (T, error)
}

// New wraps fn as an Effect.
func New[T any](fn func(ctx context.Context, c *conn.Conn) (T, error)) Effect[T] {
	return Effect[T]{run: fn}
}

// Unit lifts a plain value. It never touches the connection.
func Unit[T any](v T) Effect[T] {
	return New(func(context.Context, *conn.Conn) (T, error) { return v, nil })
}

// Fail is an Effect that always fails with err.
func Fail[T any](err error) Effect[T] {
	return New(func(context.Context, *conn.Conn) (T, error) {
		var zero T
		return zero, err
	})
}

// Run executes the effect against c.
func (e Effect[T]) Run(ctx context.Context, c *conn.Conn) (T, error) {
	if e.run == nil {
		var zero T
		return zero, ErrNilEffect
	}
	return e.run(ctx, c)
}

// Tap runs fn on the value for its side effect and passes the value
// through. An error from fn fails the effect.
func (e Effect[T]) Tap(fn func(T) error) Effect[T] {
	return New(func(ctx context.Context, c *conn.Conn) (T, error) {
		v, err := e.Run(ctx, c)
		if err != nil {
			return v, err
		}
		if err := fn(v); err != nil {
			var zero T
			return zero, err
		}
		return v, nil
	})
}

// Map transforms the eventual value without touching the connection.
func Map[T, U any](e Effect[T], fn func(T) U) Effect[U] {
	return New(func(ctx context.Context, c *conn.Conn) (U, error) {
		v, err := e.Run(ctx, c)
		if err != nil {
			var zero U
			return zero, err
		}
		return fn(v), nil
	})
}

// FlatMap sequences a dependent effect on the same connection.
func FlatMap[T, U any](e Effect[T], fn func(T) Effect[U]) Effect[U] {
	return New(func(ctx context.Context, c *conn.Conn) (U, error) {
		v, err := e.Run(ctx, c)
		if err != nil {
			var zero U
			return zero, err
		}
		return fn(v).Run(ctx, c)
	})
}

// Then runs a, discards its value, then runs b.
func Then[T, U any](a Effect[T], b Effect[U]) Effect[U] {
	return FlatMap(a, func(T) Effect[U] { return b })
}

// Sequence runs effects in order and collects their values. The first
// failure stops the sequence.
func Sequence[T any](effects []Effect[T]) Effect[[]T] {
	return New(func(ctx context.Context, c *conn.Conn) ([]T, error) {
		out := make([]T, len(effects))
		for i, e := range effects {
			v, err := e.Run(ctx, c)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	})
}
