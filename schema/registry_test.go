package schema

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shrek82/persist/conn"
	"github.com/shrek82/persist/dialect"
)

var irisColumns = dialect.MustGet("iris").ColumnsSQL()

func mockConn(t *testing.T) (*conn.Conn, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	c, err := conn.New(context.Background(), db, conn.Options{Dialect: dialect.MustGet("iris"), CacheSize: 10})
	require.NoError(t, err)
	return c, mock
}

func employeeColumns() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"cn", "pk", "dt", "nl", "ai"}).
		AddRow("id", "YES", "INTEGER", "NO", "NO").
		AddRow("lastName", "NO", "VARCHAR", "NO", "NO").
		AddRow("firstName", "NO", "VARCHAR", "YES", "NO").
		AddRow("hired", "NO", "DATE", "YES", "NO").
		AddRow("seq", "NO", "INTEGER", "NO", "YES")
}

func TestGetBuildsAndCachesDescriptor(t *testing.T) {
	ctx := context.Background()
	c, mock := mockConn(t)
	reg := NewRegistry(dialect.MustGet("iris"), "SQLUser")

	mock.ExpectPrepare(irisColumns).ExpectQuery().
		WithArgs("EmployeeTest", "SQLUser").
		WillReturnRows(employeeColumns())

	d, err := reg.Get(ctx, c, Key{Table: "EmployeeTest"})
	require.NoError(t, err)
	assert.Equal(t, "SQLUser.EmployeeTest", d.QualifiedName())
	assert.Equal(t, []string{"id", "lastName", "firstName", "hired", "seq"}, d.Fields)
	assert.Equal(t, []string{"id"}, d.PrimaryKeys)
	assert.Equal(t, []string{"id", "lastName"}, d.Mandatory)
	assert.Equal(t, "date", d.TypeOf("hired"))
	assert.True(t, d.HasColumn("seq"))
	assert.False(t, d.HasColumn("salary"))
	assert.True(t, d.IsPrimaryKey("id"))
	assert.True(t, d.AutoIncrement["seq"])

	again, err := reg.Get(ctx, c, Key{Namespace: "SQLUser", Table: "EmployeeTest"})
	require.NoError(t, err)
	assert.Same(t, d, again)
	assert.EqualValues(t, 1, reg.Lookups())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUnknownTable(t *testing.T) {
	ctx := context.Background()
	c, mock := mockConn(t)
	reg := NewRegistry(dialect.MustGet("iris"), "SQLUser")

	ep := mock.ExpectPrepare(irisColumns)
	ep.ExpectQuery().WithArgs("Missing", "Samples").WillReturnRows(sqlmock.NewRows([]string{"cn", "pk", "dt", "nl", "ai"}))
	ep.ExpectQuery().WithArgs("Missing", "Samples").WillReturnRows(sqlmock.NewRows([]string{"cn", "pk", "dt", "nl", "ai"}))

	key := Key{Namespace: "Samples", Table: "Missing"}
	_, err := reg.Get(ctx, c, key)
	require.ErrorIs(t, err, ErrTableNotFound)
	_, err = reg.Get(ctx, c, key)
	require.ErrorIs(t, err, ErrTableNotFound, "failures are not cached")
	assert.EqualValues(t, 2, reg.Lookups())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUsesStore(t *testing.T) {
	ctx := context.Background()
	c, mock := mockConn(t)
	store := NewMemoryStore()
	reg := NewRegistry(dialect.MustGet("iris"), "SQLUser", WithStore(store))

	mock.ExpectPrepare(irisColumns).ExpectQuery().
		WithArgs("EmployeeTest", "SQLUser").
		WillReturnRows(employeeColumns())

	d, err := reg.Get(ctx, c, Key{Table: "EmployeeTest"})
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())

	// A second registry sharing the store skips the catalog.
	other := NewRegistry(dialect.MustGet("iris"), "SQLUser", WithStore(store))
	shared, err := other.Get(ctx, c, Key{Table: "EmployeeTest"})
	require.NoError(t, err)
	assert.Equal(t, d, shared)
	assert.Zero(t, other.Lookups())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRoutineType(t *testing.T) {
	ctx := context.Background()
	c, mock := mockConn(t)
	reg := NewRegistry(dialect.MustGet("iris"), "SQLUser")
	q, _ := dialect.MustGet("iris").RoutineSQL()

	ep := mock.ExpectPrepare(q)
	ep.ExpectQuery().WithArgs("Samples", "Employee_raise").
		WillReturnRows(sqlmock.NewRows([]string{"rt"}).AddRow("PROCEDURE"))
	ep.ExpectQuery().WithArgs("Samples", "Employee_nope").
		WillReturnRows(sqlmock.NewRows([]string{"rt"}))

	kind, err := reg.RoutineType(ctx, c, "Samples", "Employee_raise")
	require.NoError(t, err)
	assert.Equal(t, dialect.Procedure, kind)

	kind, err = reg.RoutineType(ctx, c, "Samples", "Employee_raise")
	require.NoError(t, err)
	assert.Equal(t, dialect.Procedure, kind)

	_, err = reg.RoutineType(ctx, c, "Samples", "Employee_nope")
	require.ErrorIs(t, err, ErrRoutineNotFound)
	require.NoError(t, mock.ExpectationsWereMet())

	_, err = NewRegistry(dialect.MustGet("sqlite3"), "main").RoutineType(ctx, c, "main", "f")
	require.ErrorIs(t, err, ErrRoutineNotFound)
}

func TestConcurrentFirstAccessQueriesOnce(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "schema.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE EmployeeTest (
		id INTEGER PRIMARY KEY,
		lastName TEXT NOT NULL,
		firstName TEXT
	)`)
	require.NoError(t, err)

	d := dialect.MustGet("sqlite3")
	reg := NewRegistry(d, "main")

	const workers = 8
	conns := make([]*conn.Conn, workers)
	for i := range conns {
		conns[i], err = conn.New(ctx, db, conn.Options{Dialect: d, CacheSize: 10})
		require.NoError(t, err)
		defer conns[i].Close()
	}

	var wg sync.WaitGroup
	results := make([]*Descriptor, workers)
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = reg.Get(ctx, conns[i], Key{Table: "EmployeeTest"})
		}()
	}
	wg.Wait()

	for i := range workers {
		require.NoError(t, errs[i])
		assert.Same(t, results[0], results[i])
	}
	assert.EqualValues(t, 1, reg.Lookups())

	desc := results[0]
	assert.Equal(t, `"main"."EmployeeTest"`, desc.QualifiedName())
	assert.Equal(t, []string{"id"}, desc.PrimaryKeys)
	assert.Equal(t, []string{"id", "lastName"}, desc.Mandatory)
	assert.Equal(t, "text", desc.TypeOf("firstName"))
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("PERSIST_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("PERSIST_TEST_REDIS_ADDR not set, skipping Redis tests")
	}
	ctx := context.Background()
	store := NewRedisStore(&redis.Options{Addr: addr}, time.Minute)
	store.Prefix = "persist:test:" + t.Name() + ":"
	defer store.Close()
	require.NoError(t, store.Ping(ctx))

	key := Key{Namespace: "SQLUser", Table: "EmployeeTest"}
	_, ok, err := store.Load(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	want := &Descriptor{
		Namespace:     "SQLUser",
		Table:         "EmployeeTest",
		Qualified:     "SQLUser.EmployeeTest",
		Fields:        []string{"id", "lastName"},
		PrimaryKeys:   []string{"id"},
		Mandatory:     []string{"id", "lastName"},
		Types:         map[string]string{"id": "integer", "lastName": "varchar"},
		Nullable:      map[string]bool{"id": false, "lastName": false},
		AutoIncrement: map[string]bool{"id": false, "lastName": false},
	}
	require.NoError(t, store.Save(ctx, key, want))
	defer store.Client.Del(ctx, store.key(key))

	got, ok, err := store.Load(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)
}
