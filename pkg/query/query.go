// Package query builds table queries and OData filter literals.
package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ajitpratap0/aztable-extractor/pkg/entity"
)

// MaxPageSize is the largest page the table service returns
const MaxPageSize = 1000

// ContinuationToken identifies the next page of a query. The zero value
// addresses the first page.
type ContinuationToken struct {
	NextPartitionKey string
	NextRowKey       string
}

// IsZero reports whether the token addresses the first page
func (t ContinuationToken) IsZero() bool {
	return t.NextPartitionKey == "" && t.NextRowKey == ""
}

// Query is an immutable read request
type Query struct {
	Filter string
	Select []string
	// Top is the requested page size, zero for the service default
	Top int
}

// Watermark is the typed lower bound of an incremental read
type Watermark struct {
	Key   string
	Value string
	Type  entity.EdmType
}

// Options are the inputs of Build
type Options struct {
	// Watermark is nil when there is no prior value
	Watermark *Watermark
	Filter    string
	Select    []string
	Limit     int
}

// Build creates the query for one extraction. A watermark always wins over a
// static filter.
func Build(opts Options) Query {
	q := Query{
		Filter: opts.Filter,
		Select: opts.Select,
	}

	if opts.Watermark != nil {
		q.Filter = fmt.Sprintf("%s ge %s", opts.Watermark.Key, Literal(opts.Watermark.Type, opts.Watermark.Value))
	}

	if opts.Limit > 0 {
		q.Top = opts.Limit
		if q.Top > MaxPageSize {
			q.Top = MaxPageSize
		}
	}

	return q
}

// Literal formats a value as an OData v3 constant of the given type
func Literal(t entity.EdmType, value string) string {
	switch t {
	case entity.EdmInt32:
		return value
	case entity.EdmInt64:
		return value + "L"
	case entity.EdmDouble:
		return doubleLiteral(value)
	case entity.EdmBoolean:
		return strings.ToLower(value)
	case entity.EdmDateTime:
		return "datetime'" + value + "'"
	case entity.EdmGuid:
		return "guid'" + value + "'"
	default:
		return quote(value)
	}
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// doubleLiteral makes sure the constant is not parsed as an integer
func doubleLiteral(value string) string {
	if strings.ContainsAny(value, ".eE") {
		return value
	}
	if _, err := strconv.ParseFloat(value, 64); err != nil {
		return value
	}
	return value + ".0"
}

// ParseSelect splits a comma separated field list and trims each field.
// Empty entries are dropped.
func ParseSelect(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	fields := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			fields = append(fields, p)
		}
	}
	return fields
}
