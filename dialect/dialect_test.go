package dialect

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistered(t *testing.T) {
	for _, name := range []string{"iris", "cache", "mysql", "postgres", "sqlite3"} {
		d, ok := Get(name)
		require.True(t, ok, name)
		require.NotNil(t, d)
	}
	_, ok := Get("oracle")
	assert.False(t, ok)
	assert.Panics(t, func() { MustGet("oracle") })
}

func TestUpsertSQL(t *testing.T) {
	cols := []string{"id", "lastName", "firstName"}
	keys := []string{"id"}

	tests := []struct {
		dialect string
		table   string
		want    string
	}{
		{
			"iris", "Samples.Employee",
			"INSERT OR UPDATE INTO Samples.Employee(id,lastName,firstName) VALUES(?,?,?)",
		},
		{
			"mysql", "`app`.`employee`",
			"INSERT INTO `app`.`employee`(`id`,`lastName`,`firstName`) VALUES(?,?,?) " +
				"ON DUPLICATE KEY UPDATE `lastName`=VALUES(`lastName`),`firstName`=VALUES(`firstName`)",
		},
		{
			"postgres", `"public"."employee"`,
			`INSERT INTO "public"."employee"("id","lastName","firstName") VALUES($1,$2,$3) ` +
				`ON CONFLICT ("id") DO UPDATE SET "lastName"=EXCLUDED."lastName","firstName"=EXCLUDED."firstName"`,
		},
		{
			"sqlite3", `"main"."employee"`,
			`INSERT INTO "main"."employee"("id","lastName","firstName") VALUES(?,?,?) ` +
				`ON CONFLICT("id") DO UPDATE SET "lastName"=excluded."lastName","firstName"=excluded."firstName"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.dialect, func(t *testing.T) {
			assert.Equal(t, tt.want, MustGet(tt.dialect).UpsertSQL(tt.table, cols, keys))
		})
	}
}

func TestUpsertKeysOnly(t *testing.T) {
	cols := []string{"id"}
	assert.Equal(t,
		`INSERT INTO t("id") VALUES(?) ON CONFLICT("id") DO NOTHING`,
		MustGet("sqlite3").UpsertSQL("t", cols, cols))
	assert.Equal(t,
		"INSERT INTO t(`id`) VALUES(?) ON DUPLICATE KEY UPDATE `id`=VALUES(`id`)",
		MustGet("mysql").UpsertSQL("t", cols, cols))
}

func TestCallSQL(t *testing.T) {
	assert.Equal(t, "CALL Samples.Employee_raise(?,?)", MustGet("iris").CallSQL("Samples.Employee_raise", 2, Procedure))
	assert.Equal(t, "CALL Samples.Employee_total()", MustGet("iris").CallSQL("Samples.Employee_total", 0, Function))
	assert.Equal(t, "SELECT * FROM f($1,$2)", MustGet("postgres").CallSQL("f", 2, Function))
	assert.Equal(t, "CALL p($1)", MustGet("postgres").CallSQL("p", 1, Procedure))
	assert.Equal(t, "SELECT f(?) AS result", MustGet("mysql").CallSQL("f", 1, Function))
}

func TestBeginSQL(t *testing.T) {
	assert.Equal(t, []string{"START TRANSACTION"}, MustGet("iris").BeginSQL(""))
	assert.Equal(t, []string{"START TRANSACTION ISOLATION LEVEL READ COMMITTED"}, MustGet("iris").BeginSQL("read_committed"))
	assert.Equal(t, []string{"SET TRANSACTION ISOLATION LEVEL SERIALIZABLE", "START TRANSACTION"}, MustGet("mysql").BeginSQL("serializable"))
	assert.Equal(t, []string{"BEGIN ISOLATION LEVEL REPEATABLE READ"}, MustGet("postgres").BeginSQL("repeatable read"))
	assert.Equal(t, []string{"BEGIN IMMEDIATE"}, MustGet("sqlite3").BeginSQL("SERIALIZABLE"))
	assert.Equal(t, []string{"BEGIN"}, MustGet("sqlite3").BeginSQL(""))
}

func TestRoutineSQL(t *testing.T) {
	_, ok := MustGet("sqlite3").RoutineSQL()
	assert.False(t, ok)
	q, ok := MustGet("iris").RoutineSQL()
	assert.True(t, ok)
	assert.Contains(t, q, "INFORMATION_SCHEMA.ROUTINES")
}

func TestQuoteEscapes(t *testing.T) {
	assert.Equal(t, "`a``b`", MustGet("mysql").Quote("a`b"))
	assert.Equal(t, `"a""b"`, MustGet("postgres").Quote(`a"b`))
	assert.Equal(t, "Employee", MustGet("iris").Quote("Employee"))
}

func TestIsRetryable(t *testing.T) {
	wrap := func(err error) error { return fmt.Errorf("exec: %w", err) }

	assert.True(t, MustGet("mysql").IsRetryable(wrap(&mysql.MySQLError{Number: 1213})))
	assert.False(t, MustGet("mysql").IsRetryable(&mysql.MySQLError{Number: 1062}))

	assert.True(t, MustGet("postgres").IsRetryable(wrap(&pq.Error{Code: "40001"})))
	assert.False(t, MustGet("postgres").IsRetryable(&pq.Error{Code: "23505"}))

	assert.True(t, MustGet("sqlite3").IsRetryable(wrap(sqlite3.Error{Code: sqlite3.ErrBusy})))
	assert.False(t, MustGet("sqlite3").IsRetryable(sqlite3.Error{Code: sqlite3.ErrConstraint}))

	assert.True(t, MustGet("iris").IsRetryable(errors.New("[SQLCODE: <-114>:<One or more matching rows is locked>]")))
	assert.False(t, MustGet("iris").IsRetryable(nil))
}
