package middleware

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/shrek82/persist/conn"
)

// Stats counts round trips across every connection it is installed on.
type Stats struct {
	// SlowThreshold marks statements as slow; zero disables the count.
	SlowThreshold time.Duration

	queries       atomic.Int64
	execs         atomic.Int64
	transactions  atomic.Int64
	rollbacks     atomic.Int64
	errors        atomic.Int64
	slow          atomic.Int64
	totalDuration atomic.Int64 // nanoseconds
}

// StatsSnapshot is a point-in-time copy of the counters.
type StatsSnapshot struct {
	Queries       int64
	Execs         int64
	Transactions  int64
	Rollbacks     int64
	Errors        int64
	Slow          int64
	TotalDuration time.Duration
}

func (m *Stats) Intercept(ctx context.Context, op *conn.Op, next conn.Handler) error {
	start := time.Now()
	err := next(ctx, op)
	d := time.Since(start)

	switch op.Kind {
	case conn.OpQuery:
		m.queries.Add(1)
	case conn.OpExec:
		m.execs.Add(1)
	case conn.OpBegin:
		m.transactions.Add(1)
	case conn.OpRollback:
		m.rollbacks.Add(1)
	}
	if op.Kind == conn.OpQuery || op.Kind == conn.OpExec {
		m.totalDuration.Add(int64(d))
		if m.SlowThreshold > 0 && d >= m.SlowThreshold {
			m.slow.Add(1)
		}
	}
	if err != nil {
		m.errors.Add(1)
	}
	return err
}

// Snapshot returns the current counters.
func (m *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Queries:       m.queries.Load(),
		Execs:         m.execs.Load(),
		Transactions:  m.transactions.Load(),
		Rollbacks:     m.rollbacks.Load(),
		Errors:        m.errors.Load(),
		Slow:          m.slow.Load(),
		TotalDuration: time.Duration(m.totalDuration.Load()),
	}
}

// Reset zeroes every counter.
func (m *Stats) Reset() {
	for _, c := range []*atomic.Int64{&m.queries, &m.execs, &m.transactions, &m.rollbacks, &m.errors, &m.slow, &m.totalDuration} {
		c.Store(0)
	}
}

// AvgDuration is the mean duration of queries and execs.
func (s StatsSnapshot) AvgDuration() time.Duration {
	n := s.Queries + s.Execs
	if n == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(n)
}

func (s StatsSnapshot) String() string {
	return fmt.Sprintf("queries=%d execs=%d transactions=%d rollbacks=%d errors=%d slow=%d avg=%s",
		s.Queries, s.Execs, s.Transactions, s.Rollbacks, s.Errors, s.Slow, s.AvgDuration())
}
