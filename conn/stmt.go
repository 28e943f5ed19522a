package conn

import (
	"context"
	"database/sql"
)

// Row is one result row keyed by column name.
type Row map[string]any

// Result summarises a side-effecting statement.
type Result struct {
	RowsAffected int64
	LastInsertID int64
}

// Stmt is a statement compiled on one connection for one query text.
type Stmt struct {
	conn   *Conn
	query  string
	raw    *sql.Stmt
	cached bool
	closed bool
}

// SQL returns the statement text.
func (s *Stmt) SQL() string { return s.query }

// Cached reports whether the statement is owned by the connection cache.
func (s *Stmt) Cached() bool { return s.cached }

// Query runs a row-returning statement and materialises every row.
func (s *Stmt) Query(ctx context.Context, args ...any) ([]Row, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}
	var out []Row
	op := &Op{Kind: OpQuery, SQL: s.query, Args: args}
	err := s.conn.do(ctx, op, func(ctx context.Context, op *Op) error {
		rows, err := s.raw.QueryContext(ctx, op.Args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = scanRows(rows)
		op.RowsReturned = len(out)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Execute runs a side-effecting statement.
func (s *Stmt) Execute(ctx context.Context, args ...any) (Result, error) {
	if err := s.usable(); err != nil {
		return Result{}, err
	}
	var res Result
	op := &Op{Kind: OpExec, SQL: s.query, Args: args}
	err := s.conn.do(ctx, op, func(ctx context.Context, op *Op) error {
		r, err := s.raw.ExecContext(ctx, op.Args...)
		if err != nil {
			return err
		}
		// Not every driver reports both values; missing ones stay zero.
		if n, err := r.RowsAffected(); err == nil {
			res.RowsAffected = n
			op.RowsAffected = n
		}
		if id, err := r.LastInsertId(); err == nil {
			res.LastInsertID = id
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// Close releases an uncached statement. Cached statements stay open
// until the cache evicts them or the connection closes.
func (s *Stmt) Close() error {
	if s.cached || s.closed {
		return nil
	}
	s.closed = true
	return s.raw.Close()
}

func (s *Stmt) usable() error {
	if s.closed || s.conn.state == StateClosed {
		return ErrClosed
	}
	return nil
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	var out []Row
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(columns))
		for i, col := range columns {
			// Drivers may reuse byte buffers between rows.
			if b, ok := values[i].([]byte); ok {
				values[i] = append([]byte(nil), b...)
			}
			row[col] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
