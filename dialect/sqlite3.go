package dialect

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// SQLite dialect implementation. Namespaces map to attached database
// names ("main" for the primary file). SQLite has no stored routines.
type sqlite3Dialect struct{}

func init() {
	Register("sqlite3", &sqlite3Dialect{})
}

func (d *sqlite3Dialect) Name() string { return "sqlite3" }

func (d *sqlite3Dialect) Quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d *sqlite3Dialect) Placeholder(int) string { return "?" }

func (d *sqlite3Dialect) QualifiedName(namespace, table string) string {
	return d.Quote(namespace) + "." + d.Quote(table)
}

func (d *sqlite3Dialect) UpsertSQL(table string, columns, keys []string) string {
	head := fmt.Sprintf("INSERT INTO %s(%s) VALUES(%s)",
		table, quoteAll(d, columns), placeholders(d, 1, len(columns)))
	if len(keys) == 0 {
		return head
	}
	updates := nonKey(columns, keys)
	if len(updates) == 0 {
		return fmt.Sprintf("%s ON CONFLICT(%s) DO NOTHING", head, quoteAll(d, keys))
	}
	set := make([]string, len(updates))
	for i, c := range updates {
		set[i] = fmt.Sprintf("%s=excluded.%s", d.Quote(c), d.Quote(c))
	}
	return fmt.Sprintf("%s ON CONFLICT(%s) DO UPDATE SET %s", head, quoteAll(d, keys), strings.Join(set, ","))
}

func (d *sqlite3Dialect) CallSQL(routine string, argc int, _ RoutineKind) string {
	return fmt.Sprintf("SELECT %s(%s)", routine, placeholders(d, 1, argc))
}

func (d *sqlite3Dialect) ColumnsSQL() string {
	return `SELECT name cn, CASE WHEN pk > 0 THEN 'YES' ELSE 'NO' END pk, lower(type) dt, ` +
		`CASE WHEN "notnull" = 1 OR pk > 0 THEN 'NO' ELSE 'YES' END nl, 'NO' ai ` +
		`FROM pragma_table_info(?, ?) ORDER BY cid`
}

func (d *sqlite3Dialect) RoutineSQL() (string, bool) { return "", false }

func (d *sqlite3Dialect) BeginSQL(isolation string) []string {
	if isolationLevel(isolation) == "SERIALIZABLE" {
		return []string{"BEGIN IMMEDIATE"}
	}
	return []string{"BEGIN"}
}

func (d *sqlite3Dialect) CommitSQL() string   { return "COMMIT" }
func (d *sqlite3Dialect) RollbackSQL() string { return "ROLLBACK" }

// IsRetryable matches SQLITE_BUSY and SQLITE_LOCKED.
func (d *sqlite3Dialect) IsRetryable(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
}
