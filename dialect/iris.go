package dialect

import (
	"fmt"
	"strings"
)

// iris targets InterSystems IRIS and its predecessor Caché, whose SQL
// provides INSERT OR UPDATE and CALL for every routine. It is the
// reference dialect of the query compiler.
type iris struct{}

func init() {
	Register("iris", &iris{})
	Register("cache", &iris{})
}

func (d *iris) Name() string { return "iris" }

// Quote leaves identifiers bare; they come from the catalog verbatim.
func (d *iris) Quote(name string) string { return name }

func (d *iris) Placeholder(int) string { return "?" }

func (d *iris) QualifiedName(namespace, table string) string {
	return namespace + "." + table
}

func (d *iris) UpsertSQL(table string, columns, _ []string) string {
	return fmt.Sprintf("INSERT OR UPDATE INTO %s(%s) VALUES(%s)",
		table, quoteAll(d, columns), placeholders(d, 1, len(columns)))
}

func (d *iris) CallSQL(routine string, argc int, _ RoutineKind) string {
	return fmt.Sprintf("CALL %s(%s)", routine, placeholders(d, 1, argc))
}

func (d *iris) ColumnsSQL() string {
	return "SELECT COLUMN_NAME cn, PRIMARY_KEY pk, DATA_TYPE dt, IS_NULLABLE nl, AUTO_INCREMENT ai " +
		"FROM INFORMATION_SCHEMA.COLUMNS WHERE TABLE_NAME = ? AND TABLE_SCHEMA = ? ORDER BY ORDINAL_POSITION"
}

func (d *iris) RoutineSQL() (string, bool) {
	return "SELECT ROUTINE_TYPE rt FROM INFORMATION_SCHEMA.ROUTINES WHERE SPECIFIC_SCHEMA = ? AND SPECIFIC_NAME = ?", true
}

func (d *iris) BeginSQL(isolation string) []string {
	if level := isolationLevel(isolation); level != "" {
		return []string{"START TRANSACTION ISOLATION LEVEL " + level}
	}
	return []string{"START TRANSACTION"}
}

func (d *iris) CommitSQL() string   { return "COMMIT" }
func (d *iris) RollbackSQL() string { return "ROLLBACK" }

// IsRetryable matches the lock timeout SQLCODEs -110 and -114, which the
// ODBC and native drivers only expose through the message text.
func (d *iris) IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLCODE: <-110>") || strings.Contains(msg, "SQLCODE: <-114>")
}
