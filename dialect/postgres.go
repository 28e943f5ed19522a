package dialect

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

// PostgreSQL dialect implementation
type postgres struct{}

func init() {
	Register("postgres", &postgres{})
}

func (d *postgres) Name() string { return "postgres" }

func (d *postgres) Quote(name string) string {
	// PostgreSQL uses double quotes for identifiers
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Placeholder uses $1, $2, $3... for positional arguments.
func (d *postgres) Placeholder(index int) string {
	return "$" + strconv.Itoa(index)
}

func (d *postgres) QualifiedName(namespace, table string) string {
	return d.Quote(namespace) + "." + d.Quote(table)
}

func (d *postgres) UpsertSQL(table string, columns, keys []string) string {
	head := fmt.Sprintf("INSERT INTO %s(%s) VALUES(%s)",
		table, quoteAll(d, columns), placeholders(d, 1, len(columns)))
	if len(keys) == 0 {
		return head
	}
	updates := nonKey(columns, keys)
	if len(updates) == 0 {
		return fmt.Sprintf("%s ON CONFLICT (%s) DO NOTHING", head, quoteAll(d, keys))
	}
	set := make([]string, len(updates))
	for i, c := range updates {
		set[i] = fmt.Sprintf("%s=EXCLUDED.%s", d.Quote(c), d.Quote(c))
	}
	return fmt.Sprintf("%s ON CONFLICT (%s) DO UPDATE SET %s", head, quoteAll(d, keys), strings.Join(set, ","))
}

func (d *postgres) CallSQL(routine string, argc int, kind RoutineKind) string {
	if kind == Function {
		return fmt.Sprintf("SELECT * FROM %s(%s)", routine, placeholders(d, 1, argc))
	}
	return fmt.Sprintf("CALL %s(%s)", routine, placeholders(d, 1, argc))
}

func (d *postgres) ColumnsSQL() string {
	return "SELECT c.column_name cn, " +
		"CASE WHEN k.column_name IS NULL THEN 'NO' ELSE 'YES' END pk, " +
		"c.data_type dt, c.is_nullable nl, " +
		"CASE WHEN c.is_identity = 'YES' OR c.column_default LIKE 'nextval(%' THEN 'YES' ELSE 'NO' END ai " +
		"FROM information_schema.columns c " +
		"LEFT JOIN information_schema.table_constraints tc ON tc.table_schema = c.table_schema " +
		"AND tc.table_name = c.table_name AND tc.constraint_type = 'PRIMARY KEY' " +
		"LEFT JOIN information_schema.key_column_usage k ON k.constraint_name = tc.constraint_name " +
		"AND k.table_schema = c.table_schema AND k.table_name = c.table_name AND k.column_name = c.column_name " +
		"WHERE c.table_name = $1 AND c.table_schema = $2 ORDER BY c.ordinal_position"
}

func (d *postgres) RoutineSQL() (string, bool) {
	return "SELECT upper(routine_type) rt FROM information_schema.routines WHERE routine_schema = $1 AND routine_name = $2", true
}

func (d *postgres) BeginSQL(isolation string) []string {
	if level := isolationLevel(isolation); level != "" {
		return []string{"BEGIN ISOLATION LEVEL " + level}
	}
	return []string{"BEGIN"}
}

func (d *postgres) CommitSQL() string   { return "COMMIT" }
func (d *postgres) RollbackSQL() string { return "ROLLBACK" }

// IsRetryable matches serialization_failure (40001) and deadlock_detected (40P01).
func (d *postgres) IsRetryable(err error) bool {
	var pe *pq.Error
	if !errors.As(err, &pe) {
		return false
	}
	return pe.Code == "40001" || pe.Code == "40P01"
}
