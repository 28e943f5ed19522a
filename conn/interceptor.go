package conn

import "context"

// OpKind classifies a round trip to the engine.
type OpKind int

const (
	OpQuery OpKind = iota
	OpExec
	OpPrepare
	OpBegin
	OpCommit
	OpRollback
)

func (k OpKind) String() string {
	switch k {
	case OpQuery:
		return "query"
	case OpExec:
		return "exec"
	case OpPrepare:
		return "prepare"
	case OpBegin:
		return "begin"
	case OpCommit:
		return "commit"
	case OpRollback:
		return "rollback"
	}
	return "unknown"
}

// Op describes one round trip as seen by interceptors. RowsAffected and
// RowsReturned are filled in once the innermost handler returns.
type Op struct {
	Kind         OpKind
	SQL          string
	Args         []any
	ConnID       string
	RowsAffected int64
	RowsReturned int
}

// Handler performs (or continues) an operation.
type Handler func(ctx context.Context, op *Op) error

// Interceptor wraps every round trip a connection makes. Implementations
// must call next exactly once unless they fail the operation.
type Interceptor interface {
	Intercept(ctx context.Context, op *Op, next Handler) error
}

// InterceptorFunc adapts a function to Interceptor.
type InterceptorFunc func(ctx context.Context, op *Op, next Handler) error

func (f InterceptorFunc) Intercept(ctx context.Context, op *Op, next Handler) error {
	return f(ctx, op, next)
}

func chain(interceptors []Interceptor, final Handler) Handler {
	h := final
	for i := len(interceptors) - 1; i >= 0; i-- {
		ic, next := interceptors[i], h
		h = func(ctx context.Context, op *Op) error {
			return ic.Intercept(ctx, op, next)
		}
	}
	return h
}
