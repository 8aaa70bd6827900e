// Package csvmap flattens JSON rows into CSV tables following a declarative
// mapping, compatible with the mapping format of Keboola csv-map.
//
// A mapping is a JSON object whose keys are dot separated paths into the
// row and whose values describe the destination:
//
//	{
//	  "RowKey": {"type": "column", "mapping": {"destination": "id", "primaryKey": true}},
//	  "Name": "name",
//	  "Tags": {"type": "column", "mapping": {"destination": "tags"}, "forceType": true},
//	  "parentId": {"type": "user", "mapping": {"destination": "parent_id"}},
//	  "Items": {
//	    "type": "table",
//	    "destination": "items",
//	    "parentKey": {"destination": "parent_id", "primaryKey": true},
//	    "tableMapping": {"Sku": "sku"}
//	  }
//	}
//
// A string value is a shorthand for a column. "user" columns read from the
// user data passed with each row. "table" columns turn a nested object or
// array into rows of a child table linked to the parent row. The path "."
// addresses the whole value, which lets a child table map arrays of scalars.
package csvmap

import (
	"fmt"
	"strings"

	"github.com/ajitpratap0/aztable-extractor/pkg/entity"
	"github.com/ajitpratap0/aztable-extractor/pkg/errors"
)

const (
	typeColumn = "column"
	typeUser   = "user"
	typeTable  = "table"
)

// column is one entry of a mapping
type column struct {
	kind        string
	path        []string
	destination string
	primaryKey  bool
	forceType   bool

	// table columns only
	child *Mapper
}

// parentKey links child rows to their parent row
type parentKey struct {
	destination string
	primaryKey  bool
	disable     bool
}

func parseMapping(mapping *entity.Object, tableName string) ([]column, error) {
	if mapping == nil || mapping.Len() == 0 {
		return nil, errors.Newf(errors.ErrorTypeConfig, "Empty mapping for table \"%s\".", tableName)
	}

	columns := make([]column, 0, mapping.Len())
	seen := make(map[string]bool)

	for _, key := range mapping.Keys() {
		raw, _ := mapping.Get(key)
		col, err := parseColumn(key, raw, tableName)
		if err != nil {
			return nil, err
		}

		if col.kind != typeTable {
			if seen[col.destination] {
				return nil, errors.Newf(errors.ErrorTypeConfig,
					"Duplicate destination column \"%s\" in table \"%s\".", col.destination, tableName)
			}
			seen[col.destination] = true
		}
		columns = append(columns, col)
	}

	return columns, nil
}

func parseColumn(key string, raw interface{}, tableName string) (column, error) {
	col := column{kind: typeColumn, path: splitPath(key)}

	switch v := raw.(type) {
	case string:
		if v == "" {
			return col, errors.Newf(errors.ErrorTypeConfig,
				"Key \"%s\" in table \"%s\" has an empty destination.", key, tableName)
		}
		col.destination = v
		return col, nil
	case *entity.Object:
		return parseColumnObject(col, key, v, tableName)
	default:
		return col, errors.Newf(errors.ErrorTypeConfig,
			"Key \"%s\" in table \"%s\" must be a string or an object.", key, tableName)
	}
}

func parseColumnObject(col column, key string, v *entity.Object, tableName string) (column, error) {
	if t, ok := stringField(v, "type"); ok {
		col.kind = t
	}
	col.forceType = boolField(v, "forceType")

	switch col.kind {
	case typeColumn, typeUser:
		m, _ := objectField(v, "mapping")
		if m == nil {
			return col, errors.Newf(errors.ErrorTypeConfig,
				"Key 'mapping.destination' is not set for column '%s'.", key)
		}
		dest, ok := stringField(m, "destination")
		if !ok || dest == "" {
			return col, errors.Newf(errors.ErrorTypeConfig,
				"Key 'mapping.destination' is not set for column '%s'.", key)
		}
		col.destination = dest
		col.primaryKey = boolField(m, "primaryKey")
		return col, nil

	case typeTable:
		dest, ok := stringField(v, "destination")
		if !ok || dest == "" {
			return col, errors.Newf(errors.ErrorTypeConfig,
				"Key 'destination' is not set for table '%s'.", key)
		}
		tm, ok := objectField(v, "tableMapping")
		if !ok {
			return col, errors.Newf(errors.ErrorTypeConfig,
				"Key 'tableMapping' is not set for table '%s'.", key)
		}

		pk := parentKey{destination: tableName + "_pk"}
		if p, ok := objectField(v, "parentKey"); ok {
			if d, ok := stringField(p, "destination"); ok && d != "" {
				pk.destination = d
			}
			pk.primaryKey = boolField(p, "primaryKey")
			pk.disable = boolField(p, "disable")
		}

		child, err := newMapper(tm, dest, &pk)
		if err != nil {
			return col, err
		}
		col.destination = dest
		col.child = child
		return col, nil

	default:
		return col, errors.Newf(errors.ErrorTypeConfig,
			"Unknown mapping type \"%s\" for key \"%s\".", col.kind, key)
	}
}

func splitPath(key string) []string {
	if key == "." {
		return nil
	}
	return strings.Split(key, ".")
}

func stringField(o *entity.Object, key string) (string, bool) {
	v, ok := o.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func boolField(o *entity.Object, key string) bool {
	v, ok := o.Get(key)
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

func objectField(o *entity.Object, key string) (*entity.Object, bool) {
	v, ok := o.Get(key)
	if !ok {
		return nil, false
	}
	obj, ok := v.(*entity.Object)
	return obj, ok
}

func describe(v interface{}) string {
	switch v.(type) {
	case *entity.Object:
		return "object"
	case []interface{}:
		return "array"
	default:
		return fmt.Sprintf("%T", v)
	}
}
