// Command persist-gen reads table descriptors through the schema registry
// and writes one entity struct per table.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/pflag"

	"github.com/shrek82/persist/conn"
	"github.com/shrek82/persist/dialect"
	"github.com/shrek82/persist/schema"
)

var (
	driverName = pflag.StringP("driver", "d", "sqlite3", "database driver (sqlite3, mysql, postgres)")
	dsn        = pflag.String("dsn", "", "data source name")
	namespace  = pflag.StringP("namespace", "n", "", "schema holding the tables (default: main, public or the current MySQL database)")
	tableName  = pflag.StringP("table", "t", "", "table to generate; empty generates every table in the namespace")
	pkgName    = pflag.String("pkg", "models", "package name of the generated code")
	outDir     = pflag.StringP("out", "o", "./models", "output directory")
	overwrite  = pflag.Bool("overwrite", false, "overwrite existing files")
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	pflag.Parse()

	if *dsn == "" {
		fmt.Fprintln(os.Stderr, "usage: persist-gen --dsn <dsn> [options]")
		pflag.PrintDefaults()
		os.Exit(1)
	}
	if err := run(context.Background()); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context) error {
	d, ok := dialect.Get(*driverName)
	if !ok {
		return fmt.Errorf("unsupported driver: %s", *driverName)
	}

	db, err := sql.Open(*driverName, *dsn)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	c, err := conn.New(ctx, db, conn.Options{Dialect: d})
	if err != nil {
		return err
	}
	defer c.Close()

	ns := *namespace
	if ns == "" {
		if ns, err = defaultNamespace(ctx, db, *driverName); err != nil {
			return err
		}
	}

	tables := []string{*tableName}
	if *tableName == "" {
		if tables, err = fetchAllTables(ctx, db, d, ns); err != nil {
			return fmt.Errorf("listing tables: %w", err)
		}
	}

	if err := os.MkdirAll(*outDir, 0755); err != nil {
		return err
	}

	reg := schema.NewRegistry(d, ns)
	for _, table := range tables {
		desc, err := reg.Get(ctx, c, schema.Key{Namespace: ns, Table: table})
		if err != nil {
			log.Printf("skipping %s: %v", table, err)
			continue
		}
		if err := writeModel(desc); err != nil {
			log.Printf("generating %s: %v", table, err)
		}
	}
	return nil
}

func writeModel(desc *schema.Descriptor) error {
	fileName := filepath.Join(*outDir, strings.ToLower(desc.Table)+".go")
	if _, err := os.Stat(fileName); err == nil && !*overwrite {
		log.Printf("%s exists, skipping (use --overwrite)", fileName)
		return nil
	}

	src, err := generate(*pkgName, desc)
	if err != nil {
		return err
	}
	if err := os.WriteFile(fileName, src, 0644); err != nil {
		return err
	}
	log.Printf("generated %s -> %s", desc.QualifiedName(), fileName)
	return nil
}

func defaultNamespace(ctx context.Context, db *sql.DB, driver string) (string, error) {
	switch driver {
	case "sqlite3":
		return "main", nil
	case "postgres":
		return "public", nil
	case "mysql":
		var name sql.NullString
		if err := db.QueryRowContext(ctx, "SELECT DATABASE()").Scan(&name); err != nil {
			return "", err
		}
		if !name.Valid {
			return "", fmt.Errorf("no database selected in dsn, pass --namespace")
		}
		return name.String, nil
	}
	return "", fmt.Errorf("pass --namespace for driver %s", driver)
}

// fetchAllTables lists the base tables of namespace.
func fetchAllTables(ctx context.Context, db *sql.DB, d dialect.Dialect, namespace string) ([]string, error) {
	var (
		query string
		args  []any
	)
	switch d.Name() {
	case "sqlite3":
		query = fmt.Sprintf("SELECT name FROM %s.sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%%' ORDER BY name", d.Quote(namespace))
	default:
		query = "SELECT table_name FROM information_schema.tables WHERE table_schema = " + d.Placeholder(1) +
			" AND table_type = 'BASE TABLE' ORDER BY table_name"
		args = append(args, namespace)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}
