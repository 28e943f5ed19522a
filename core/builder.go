package core

import (
	"strings"
	"sync"

	"github.com/shrek82/persist/dialect"
)

// sqlBuilder assembles the statements the entity operations need. Every
// identifier it writes has already been checked against a schema
// descriptor; values are always bound.
type sqlBuilder struct {
	dialect    dialect.Dialect // Database-specific dialect
	table      string          // Qualified table reference
	selectCols []string        // Columns to select
	whereCols  []string        // AND-joined equality conditions
	setCols    []string        // UPDATE assignments
	sb         strings.Builder // Reusable string builder
}

var builderPool = sync.Pool{
	New: func() any {
		return &sqlBuilder{}
	},
}

// newBuilder takes a builder from the pool for table.
func newBuilder(d dialect.Dialect, table string) *sqlBuilder {
	b := builderPool.Get().(*sqlBuilder)
	b.reset(d)
	b.table = table
	return b
}

// putBuilder returns a builder to the pool for reuse.
func putBuilder(b *sqlBuilder) {
	b.reset(nil)
	builderPool.Put(b)
}

func (b *sqlBuilder) reset(d dialect.Dialect) {
	b.dialect = d
	b.table = ""
	b.selectCols = b.selectCols[:0]
	b.whereCols = b.whereCols[:0]
	b.setCols = b.setCols[:0]
	b.sb.Reset()
}

func (b *sqlBuilder) sel(columns ...string) *sqlBuilder {
	b.selectCols = append(b.selectCols, columns...)
	return b
}

func (b *sqlBuilder) where(columns ...string) *sqlBuilder {
	b.whereCols = append(b.whereCols, columns...)
	return b
}

func (b *sqlBuilder) set(columns ...string) *sqlBuilder {
	b.setCols = append(b.setCols, columns...)
	return b
}

func (b *sqlBuilder) writeColumns(cols []string, suffix, sep string) {
	for i, col := range cols {
		if i > 0 {
			b.sb.WriteString(sep)
		}
		b.sb.WriteString(b.dialect.Quote(col))
		b.sb.WriteString(suffix)
	}
}

func (b *sqlBuilder) writeWhere() {
	if len(b.whereCols) == 0 {
		return
	}
	b.sb.WriteString(" WHERE ")
	b.writeColumns(b.whereCols, " = ?", " AND ")
}

// replacePlaceholders numbers the ? markers for dialects that need it.
func (b *sqlBuilder) replacePlaceholders(sql string) string {
	if !strings.Contains(sql, "?") || b.dialect.Placeholder(1) == "?" {
		return sql
	}

	b.sb.Reset()

	index := 1
	for {
		idx := strings.Index(sql, "?")
		if idx == -1 {
			b.sb.WriteString(sql)
			break
		}

		b.sb.WriteString(sql[:idx])
		b.sb.WriteString(b.dialect.Placeholder(index))
		sql = sql[idx+1:]
		index++
	}
	return b.sb.String()
}

// buildSelect generates SELECT <cols|*> FROM <table> [WHERE ...].
func (b *sqlBuilder) buildSelect() string {
	b.sb.Reset()
	b.sb.WriteString("SELECT ")
	if len(b.selectCols) > 0 {
		b.writeColumns(b.selectCols, "", ", ")
	} else {
		b.sb.WriteString("*")
	}
	b.sb.WriteString(" FROM ")
	b.sb.WriteString(b.table)
	b.writeWhere()
	return b.replacePlaceholders(b.sb.String())
}

// buildExists generates SELECT 1 FROM <table> WHERE ...
func (b *sqlBuilder) buildExists() string {
	b.sb.Reset()
	b.sb.WriteString("SELECT 1 FROM ")
	b.sb.WriteString(b.table)
	b.writeWhere()
	return b.replacePlaceholders(b.sb.String())
}

// buildUpdate generates UPDATE <table> SET a = ?, ... WHERE ...; set
// values bind before where values.
func (b *sqlBuilder) buildUpdate() string {
	b.sb.Reset()
	b.sb.WriteString("UPDATE ")
	b.sb.WriteString(b.table)
	b.sb.WriteString(" SET ")
	b.writeColumns(b.setCols, " = ?", ", ")
	b.writeWhere()
	return b.replacePlaceholders(b.sb.String())
}

// buildDelete generates DELETE FROM <table> WHERE ...
func (b *sqlBuilder) buildDelete() string {
	b.sb.Reset()
	b.sb.WriteString("DELETE FROM ")
	b.sb.WriteString(b.table)
	b.writeWhere()
	return b.replacePlaceholders(b.sb.String())
}
