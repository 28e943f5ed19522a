package dialect

import (
	"fmt"
	"strings"
	"sync"
)

// RoutineKind is the catalog classification of a stored routine.
type RoutineKind string

const (
	Function  RoutineKind = "FUNCTION"
	Procedure RoutineKind = "PROCEDURE"
)

// Dialect represents the interface for database-specific SQL generation.
// The query compiler, the schema registry and the connection transaction
// state machine only talk to the engine through the SQL a Dialect returns.
type Dialect interface {
	// Name is the driver name the dialect is registered under.
	Name() string
	// Quote wraps an identifier in database-specific quotes.
	Quote(name string) string
	// Placeholder returns the bind marker for the 1-based argument index.
	Placeholder(index int) string
	// QualifiedName joins namespace and table into a table reference.
	QualifiedName(namespace, table string) string
	// UpsertSQL writes one row, inserting or updating on key conflict.
	// keys is the primary key column list, a subset of columns.
	UpsertSQL(table string, columns, keys []string) string
	// CallSQL invokes a routine with argc bound arguments.
	CallSQL(routine string, argc int, kind RoutineKind) string
	// ColumnsSQL describes a table. It binds (table, namespace) and
	// returns the columns cn, pk, dt, nl, ai, one row per column in
	// ordinal order. pk, nl and ai hold YES or NO.
	ColumnsSQL() string
	// RoutineSQL looks up a routine type. It binds (namespace, name) and
	// returns the column rt. ok is false when the engine has no routines.
	RoutineSQL() (query string, ok bool)
	// BeginSQL returns the statements that open a transaction.
	BeginSQL(isolation string) []string
	CommitSQL() string
	RollbackSQL() string
	// IsRetryable reports whether err is a transient engine failure
	// (deadlock, serialization failure, busy database) that a caller may
	// retry by running its whole transaction again.
	IsRetryable(err error) bool
}

var (
	mu       sync.RWMutex
	dialects = make(map[string]Dialect)
)

// Register registers a new dialect for a given driver name
func Register(name string, d Dialect) {
	mu.Lock()
	defer mu.Unlock()
	dialects[name] = d
}

// Get retrieves a registered dialect by driver name
func Get(name string) (Dialect, bool) {
	mu.RLock()
	defer mu.RUnlock()
	d, ok := dialects[name]
	return d, ok
}

// MustGet is Get for callers that treat a missing dialect as a programming error.
func MustGet(name string) Dialect {
	d, ok := Get(name)
	if !ok {
		panic(fmt.Sprintf("dialect: unknown dialect %q", name))
	}
	return d
}

func placeholders(d Dialect, from, n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(d.Placeholder(from + i))
	}
	return sb.String()
}

func quoteAll(d Dialect, names []string) string {
	var sb strings.Builder
	for i, n := range names {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(d.Quote(n))
	}
	return sb.String()
}

func nonKey(columns, keys []string) []string {
	isKey := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		isKey[k] = struct{}{}
	}
	out := make([]string, 0, len(columns))
	for _, c := range columns {
		if _, ok := isKey[c]; !ok {
			out = append(out, c)
		}
	}
	return out
}

func isolationLevel(isolation string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(isolation), "_", " "))
}
