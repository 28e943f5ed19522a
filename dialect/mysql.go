package dialect

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// MySQL dialect implementation
type mysqlDialect struct{}

func init() {
	Register("mysql", &mysqlDialect{})
}

func (d *mysqlDialect) Name() string { return "mysql" }

func (d *mysqlDialect) Quote(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (d *mysqlDialect) Placeholder(int) string { return "?" }

func (d *mysqlDialect) QualifiedName(namespace, table string) string {
	return d.Quote(namespace) + "." + d.Quote(table)
}

func (d *mysqlDialect) UpsertSQL(table string, columns, keys []string) string {
	updates := nonKey(columns, keys)
	if len(updates) == 0 && len(keys) > 0 {
		updates = keys[:1]
	}
	set := make([]string, len(updates))
	for i, c := range updates {
		set[i] = fmt.Sprintf("%s=VALUES(%s)", d.Quote(c), d.Quote(c))
	}
	return fmt.Sprintf("INSERT INTO %s(%s) VALUES(%s) ON DUPLICATE KEY UPDATE %s",
		table, quoteAll(d, columns), placeholders(d, 1, len(columns)), strings.Join(set, ","))
}

func (d *mysqlDialect) CallSQL(routine string, argc int, kind RoutineKind) string {
	if kind == Function {
		return fmt.Sprintf("SELECT %s(%s) AS result", routine, placeholders(d, 1, argc))
	}
	return fmt.Sprintf("CALL %s(%s)", routine, placeholders(d, 1, argc))
}

func (d *mysqlDialect) ColumnsSQL() string {
	return "SELECT COLUMN_NAME cn, IF(COLUMN_KEY = 'PRI', 'YES', 'NO') pk, DATA_TYPE dt, IS_NULLABLE nl, " +
		"IF(EXTRA LIKE '%auto_increment%', 'YES', 'NO') ai " +
		"FROM information_schema.COLUMNS WHERE TABLE_NAME = ? AND TABLE_SCHEMA = ? ORDER BY ORDINAL_POSITION"
}

func (d *mysqlDialect) RoutineSQL() (string, bool) {
	return "SELECT ROUTINE_TYPE rt FROM information_schema.ROUTINES WHERE ROUTINE_SCHEMA = ? AND ROUTINE_NAME = ?", true
}

func (d *mysqlDialect) BeginSQL(isolation string) []string {
	if level := isolationLevel(isolation); level != "" {
		return []string{"SET TRANSACTION ISOLATION LEVEL " + level, "START TRANSACTION"}
	}
	return []string{"START TRANSACTION"}
}

func (d *mysqlDialect) CommitSQL() string   { return "COMMIT" }
func (d *mysqlDialect) RollbackSQL() string { return "ROLLBACK" }

// IsRetryable matches ER_LOCK_DEADLOCK (1213) and ER_LOCK_WAIT_TIMEOUT (1205).
func (d *mysqlDialect) IsRetryable(err error) bool {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return false
	}
	return me.Number == 1213 || me.Number == 1205
}
