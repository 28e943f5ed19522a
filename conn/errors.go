package conn

import "errors"

var (
	// ErrNestedTransaction is returned by Begin on a connection that already
	// has an active transaction. The engine does not nest transactions;
	// callers needing nested scopes must use savepoints.
	ErrNestedTransaction = errors.New("nested transactions are not supported, use savepoints")
	// ErrNoTransaction is returned by Commit or Rollback without an active transaction.
	ErrNoTransaction = errors.New("no transaction associated with connection")
	// ErrClosed is returned by any operation on a closed connection or statement.
	ErrClosed = errors.New("connection is closed")
)
