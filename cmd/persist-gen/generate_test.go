package main

import (
	"go/parser"
	"go/token"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shrek82/persist/schema"
)

func TestGenerate(t *testing.T) {
	desc := &schema.Descriptor{
		Namespace:   "main",
		Table:       "employee_test",
		Qualified:   `"main"."employee_test"`,
		Fields:      []string{"id", "last_name", "first_name", "hired", "badge"},
		PrimaryKeys: []string{"id"},
		Types: map[string]string{
			"id": "integer", "last_name": "varchar(64)", "first_name": "text",
			"hired": "timestamp with time zone", "badge": "blob",
		},
		Nullable:      map[string]bool{"first_name": true, "hired": true, "badge": true},
		AutoIncrement: map[string]bool{"id": true},
	}

	src, err := generate("models", desc)
	require.NoError(t, err)
	out := string(src)

	_, err = parser.ParseFile(token.NewFileSet(), "employee_test.go", src, parser.AllErrors)
	require.NoError(t, err)

	assert.Contains(t, out, "package models")
	assert.Contains(t, out, `"time"`)
	assert.Regexp(t, regexp.MustCompile(`ID\s+int64\s+`+"`"+`persist:"column:id"`+"`"+`\s+// primary key, auto increment`), out)
	assert.Regexp(t, `LastName\s+string\s+`, out)
	assert.Regexp(t, `FirstName\s+\*string\s+`, out)
	assert.Regexp(t, `Hired\s+\*time\.Time\s+`+"`"+`persist:"column:hired;type:timestamp"`, out)
	assert.Regexp(t, `Badge\s+\[\]byte\s+`, out)
	assert.Contains(t, out, "func (EmployeeTest) Description() model.Description")
	assert.Contains(t, out, `model.Description{Namespace: "main", Name: "employee_test"}`)
}

func TestGenerateWithoutTimeImport(t *testing.T) {
	desc := &schema.Descriptor{
		Namespace: "SQLUser",
		Table:     "Tag",
		Qualified: "SQLUser.Tag",
		Fields:    []string{"name"},
		Types:     map[string]string{"name": "varchar"},
	}
	src, err := generate("models", desc)
	require.NoError(t, err)
	assert.NotContains(t, string(src), `"time"`)
	assert.Contains(t, string(src), `import "github.com/shrek82/persist/model"`)
}

func TestMapType(t *testing.T) {
	tests := map[string]string{
		"tinyint(1)":                  "int8",
		"INT":                         "int32",
		"integer":                     "int64",
		"bigint":                      "int64",
		"varchar(255)":                "string",
		"character varying":           "string",
		"bytea":                       "[]byte",
		"numeric(10,2)":               "float64",
		"double precision":            "float64",
		"date":                        "time.Time",
		"timestamp without time zone": "time.Time",
		"geometry":                    "any",
	}
	for dbType, want := range tests {
		assert.Equal(t, want, mapType(dbType), dbType)
	}
}

func TestSnakeToCamel(t *testing.T) {
	assert.Equal(t, "UserID", snakeToCamel("user_id", true))
	assert.Equal(t, "EmployeeTest", snakeToCamel("EmployeeTest", true))
	assert.Equal(t, "lastName", snakeToCamel("last_name", false))
}
