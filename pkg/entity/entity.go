// Package entity models schema-less Azure table rows.
//
// An Entity is an ordered JSON object as returned by the table service with
// the full metadata format. Each property may be accompanied by a
// "<name>@odata.type" annotation carrying its EDM type; properties without an
// annotation have their type inferred from the JSON representation.
package entity

import (
	"bytes"
	"strings"

	gojson "github.com/goccy/go-json"
)

// EdmType is an OData entity data model type tag
type EdmType string

const (
	EdmString   EdmType = "Edm.String"
	EdmInt32    EdmType = "Edm.Int32"
	EdmInt64    EdmType = "Edm.Int64"
	EdmDouble   EdmType = "Edm.Double"
	EdmBoolean  EdmType = "Edm.Boolean"
	EdmDateTime EdmType = "Edm.DateTime"
	EdmGuid     EdmType = "Edm.Guid"
)

const (
	// PartitionKey is the reserved partition key property
	PartitionKey = "PartitionKey"
	// RowKey is the reserved row key property
	RowKey = "RowKey"
	// TypeAnnotationSuffix marks a per-property type annotation
	TypeAnnotationSuffix = "@odata.type"
	// MetadataPrefix marks entity-level transport metadata such as odata.etag
	MetadataPrefix = "odata."
)

// ParseEdmType accepts both "Edm.Int64" and "Int64"
func ParseEdmType(s string) EdmType {
	if s == "" {
		return ""
	}
	if strings.HasPrefix(s, "Edm.") {
		return EdmType(s)
	}
	return EdmType("Edm." + s)
}

// Value is a property value together with its type tag
type Value struct {
	Type EdmType
	// Raw is the decoded JSON value: string, gojson.Number or bool
	Raw interface{}
	// Explicit is true when the type came from an annotation
	Explicit bool
}

// String renders the value the way it appears in the JSON payload
func (v Value) String() string {
	return stringify(v.Raw)
}

func stringify(raw interface{}) string {
	switch t := raw.(type) {
	case nil:
		return ""
	case string:
		return t
	case gojson.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		b, err := gojson.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// Entity is one row of a table
type Entity struct {
	*Object
}

// New creates an empty entity
func New() *Entity {
	return &Entity{Object: NewObject()}
}

// Decode parses a JSON object into an entity, keeping property order and
// number precision.
func Decode(data []byte) (*Entity, error) {
	obj := NewObject()
	if err := obj.UnmarshalJSON(bytes.TrimSpace(data)); err != nil {
		return nil, err
	}
	return &Entity{Object: obj}, nil
}

// MustDecode is Decode for literals in tests and examples
func MustDecode(data string) *Entity {
	e, err := Decode([]byte(data))
	if err != nil {
		panic(err)
	}
	return e
}

// Clone returns a deep copy
func (e *Entity) Clone() *Entity {
	return &Entity{Object: e.Object.Clone()}
}

// Value returns the typed value of a property. It reports false when the
// property is absent or null.
func (e *Entity) Value(name string) (Value, bool) {
	raw, ok := e.Get(name)
	if !ok || raw == nil {
		return Value{}, false
	}

	if annotation, ok := e.Get(name + TypeAnnotationSuffix); ok {
		if s, ok := annotation.(string); ok && s != "" {
			return Value{Type: ParseEdmType(s), Raw: raw, Explicit: true}, true
		}
	}

	return Value{Type: inferType(raw), Raw: raw}, true
}

// String returns a property rendered as text
func (e *Entity) String(name string) (string, bool) {
	raw, ok := e.Get(name)
	if !ok || raw == nil {
		return "", false
	}
	return stringify(raw), true
}

// StripMetadata removes entity-level transport metadata (odata.etag,
// odata.metadata, ...). Property type annotations are kept.
func (e *Entity) StripMetadata() {
	var drop []string
	for _, k := range e.Keys() {
		if strings.HasPrefix(k, MetadataPrefix) {
			drop = append(drop, k)
		}
	}
	for _, k := range drop {
		e.Delete(k)
	}
}

// MarshalJSON encodes the entity with its original property order
func (e *Entity) MarshalJSON() ([]byte, error) {
	return e.Object.MarshalJSON()
}

// UnmarshalJSON decodes an entity keeping property order
func (e *Entity) UnmarshalJSON(data []byte) error {
	obj := NewObject()
	if err := obj.UnmarshalJSON(data); err != nil {
		return err
	}
	e.Object = obj
	return nil
}

func inferType(raw interface{}) EdmType {
	switch t := raw.(type) {
	case gojson.Number:
		if strings.ContainsAny(t.String(), ".eE") {
			return EdmDouble
		}
		return EdmInt32
	case bool:
		return EdmBoolean
	default:
		return EdmString
	}
}
