package middleware

import (
	"context"
	"time"

	"github.com/shrek82/persist/conn"
	"github.com/shrek82/persist/logger"
)

// TraceKey is a context key whose value Tracing attaches to its log entries.
type TraceKey string

const (
	RequestID TraceKey = "request_id"
	UserIP    TraceKey = "user_ip"
	TraceID   TraceKey = "trace_id"
)

// WithTrace stores a tracing value in ctx.
func WithTrace(ctx context.Context, key TraceKey, value any) context.Context {
	return context.WithValue(ctx, key, value)
}

// Tracing logs every round trip with the tracing values found in the
// context, so statements can be matched to the request that issued them.
type Tracing struct {
	log  logger.Logger
	keys []TraceKey
}

// NewTracing logs to l. With no keys it looks for RequestID, UserIP and TraceID.
func NewTracing(l logger.Logger, keys ...TraceKey) *Tracing {
	if len(keys) == 0 {
		keys = []TraceKey{RequestID, UserIP, TraceID}
	}
	return &Tracing{log: l, keys: keys}
}

func (m *Tracing) Intercept(ctx context.Context, op *conn.Op, next conn.Handler) error {
	fields := map[string]any{"conn": op.ConnID, "op": op.Kind.String()}
	for _, k := range m.keys {
		if v := ctx.Value(k); v != nil {
			fields[string(k)] = v
		}
	}

	start := time.Now()
	err := next(ctx, op)
	l := m.log.WithFields(fields)
	if err != nil {
		l.Error("%s failed after %v: %v", op.SQL, time.Since(start), err)
		return err
	}
	l.Debug("%s took %v", op.SQL, time.Since(start))
	return nil
}
