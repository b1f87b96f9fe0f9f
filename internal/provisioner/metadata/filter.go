package metadata

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Dialect is the filter syntax the target store reads.
type Dialect string

const (
	DialectSQL           Dialect = "sql"
	DialectElasticsearch Dialect = "elasticsearch"
)

// DefaultTypeField is the document field holding the entity name.
const DefaultTypeField = "kind"

var fieldPath = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// DialectFor maps a store backend name onto its filter syntax. The memory
// store treats filters as opaque and gets SQL.
func DialectFor(backend string) Dialect {
	if backend == "elasticsearch" {
		return DialectElasticsearch
	}
	return DialectSQL
}

// TypeFilter restricts an index on documents whose field equals value.
func TypeFilter(d Dialect, field, value string) string {
	switch d {
	case DialectElasticsearch:
		b, _ := json.Marshal(map[string]any{
			"term": map[string]string{field: value},
		})
		return string(b)
	default:
		return field + " = '" + strings.ReplaceAll(value, "'", "''") + "'"
	}
}
