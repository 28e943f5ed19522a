package main

import (
	"bytes"
	"go/format"
	"strings"
	"text/template"
	"unicode"

	"github.com/shrek82/persist/schema"
)

const modelTemplate = `// Code generated by persist-gen. DO NOT EDIT.

package {{.Package}}

{{if .NeedsTime}}import (
	"time"

	"github.com/shrek82/persist/model"
)
{{else}}import "github.com/shrek82/persist/model"
{{end}}
// {{.StructName}} maps {{.Qualified}}.
type {{.StructName}} struct {
{{- range .Fields}}
	{{.Name}} {{.Type}} ` + "`" + `persist:"{{.Tag}}"` + "`" + `{{if .Comment}} // {{.Comment}}{{end}}
{{- end}}
}

func ({{.StructName}}) Description() model.Description {
	return model.Description{Namespace: {{printf "%q" .Namespace}}, Name: {{printf "%q" .Table}}}
}
`

var tmpl = template.Must(template.New("model").Parse(modelTemplate))

// Field is one struct field of a generated model.
type Field struct {
	Name    string
	Column  string
	Type    string
	Tag     string
	Comment string
}

// ModelData feeds the model template.
type ModelData struct {
	Package    string
	StructName string
	Namespace  string
	Table      string
	Qualified  string
	Fields     []Field
	NeedsTime  bool
}

// generate renders the entity struct of desc as formatted Go source.
func generate(pkg string, desc *schema.Descriptor) ([]byte, error) {
	data := ModelData{
		Package:    pkg,
		StructName: snakeToCamel(desc.Table, true),
		Namespace:  desc.Namespace,
		Table:      desc.Table,
		Qualified:  desc.QualifiedName(),
	}
	for _, col := range desc.Fields {
		dbType := desc.TypeOf(col)
		goType := mapType(dbType)
		if desc.Nullable[col] && goType != "[]byte" && goType != "any" {
			goType = "*" + goType
		}
		if strings.HasSuffix(goType, "time.Time") {
			data.NeedsTime = true
		}
		data.Fields = append(data.Fields, Field{
			Name:    snakeToCamel(col, true),
			Column:  col,
			Type:    goType,
			Tag:     generateTag(col, dbType),
			Comment: comment(desc, col),
		})
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, err
	}
	return format.Source(buf.Bytes())
}

func comment(desc *schema.Descriptor, col string) string {
	var notes []string
	if desc.IsPrimaryKey(col) {
		notes = append(notes, "primary key")
	}
	if desc.AutoIncrement[col] {
		notes = append(notes, "auto increment")
	}
	return strings.Join(notes, ", ")
}

// mapType maps a declared column type to a Go type.
func mapType(dbType string) string {
	dbTypeUpper := strings.ToUpper(dbType)
	// "TINYINT(1)" -> "TINYINT"
	if idx := strings.Index(dbTypeUpper, "("); idx != -1 {
		dbTypeUpper = dbTypeUpper[:idx]
	}
	dbTypeUpper = strings.TrimSpace(dbTypeUpper)

	switch {
	case dbTypeUpper == "TINYINT":
		return "int8"
	case dbTypeUpper == "SMALLINT":
		return "int16"
	case dbTypeUpper == "MEDIUMINT" || dbTypeUpper == "INT":
		return "int32"
	case dbTypeUpper == "INTEGER" || dbTypeUpper == "BIGINT":
		return "int64"
	case dbTypeUpper == "BOOLEAN" || dbTypeUpper == "BOOL" || dbTypeUpper == "BIT":
		return "bool"
	case strings.Contains(dbTypeUpper, "BLOB") || strings.Contains(dbTypeUpper, "BINARY") || dbTypeUpper == "BYTEA":
		return "[]byte"
	case strings.Contains(dbTypeUpper, "TEXT") || strings.Contains(dbTypeUpper, "CHAR") || dbTypeUpper == "JSON":
		return "string"
	case dbTypeUpper == "DECIMAL" || dbTypeUpper == "NUMERIC" || dbTypeUpper == "DOUBLE" || strings.HasPrefix(dbTypeUpper, "DOUBLE "):
		return "float64"
	case dbTypeUpper == "FLOAT" || dbTypeUpper == "REAL":
		return "float32"
	case dbTypeUpper == "DATE" || dbTypeUpper == "TIME" || dbTypeUpper == "DATETIME" || dbTypeUpper == "SMALLDATETIME" ||
		strings.HasPrefix(dbTypeUpper, "TIMESTAMP"):
		return "time.Time"
	default:
		return "any"
	}
}

// generateTag builds the persist tag. Temporal columns carry their type so
// values bind in the right form even before the table is described.
func generateTag(column, dbType string) string {
	tags := []string{"column:" + column}
	switch t := strings.ToLower(strings.TrimSpace(dbType)); {
	case t == "date", t == "datetime", t == "smalldatetime":
		tags = append(tags, "type:"+t)
	case strings.HasPrefix(t, "timestamp"):
		tags = append(tags, "type:timestamp")
	}
	return strings.Join(tags, ";")
}

// snakeToCamel converts snake_case to CamelCase.
func snakeToCamel(s string, upperFirst bool) string {
	parts := strings.Split(s, "_")
	for i := range parts {
		if i == 0 && !upperFirst {
			continue
		}
		if strings.EqualFold(parts[i], "id") {
			parts[i] = "ID"
		} else if len(parts[i]) > 0 {
			runes := []rune(parts[i])
			runes[0] = unicode.ToUpper(runes[0])
			parts[i] = string(runes)
		}
	}
	return strings.Join(parts, "")
}
