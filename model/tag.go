package model

import (
	"strings"
)

// Tag represents parsed persist tags
type Tag struct {
	Column string
	// Type overrides the catalog's declared type when values are
	// converted for writing.
	Type string
	Skip bool
}

// ParseTag parses the "persist" tag string
func ParseTag(tagStr string) *Tag {
	tag := &Tag{}
	if tagStr == "" {
		return tag
	}
	if strings.TrimSpace(tagStr) == "-" {
		tag.Skip = true
		return tag
	}

	// Support space, semicolon, comma as separators
	parts := strings.FieldsFunc(tagStr, func(r rune) bool {
		return r == ';' || r == ',' || r == ' ' || r == '\t'
	})

	for _, part := range parts {
		kv := strings.SplitN(part, ":", 2)
		key := strings.ToLower(strings.TrimSpace(kv[0]))
		var val string
		if len(kv) > 1 {
			val = strings.TrimSpace(kv[1])
		}

		switch key {
		case "column":
			tag.Column = val
		case "type":
			tag.Type = strings.ToLower(val)
		case "-":
			tag.Skip = true
		}
	}
	return tag
}
