package graph

import "maps"

// DataTypeID is a named type tag. Identity is the name; compatibility
// between two tags is decided by a policy, never structurally.
type DataTypeID string

// Well-known type tags.
const (
	TypeBool     DataTypeID = "bool"
	TypeFloat    DataTypeID = "float"
	TypeInt      DataTypeID = "int"
	TypeUInt     DataTypeID = "uint"
	TypeChar     DataTypeID = "char"
	TypeString   DataTypeID = "string"
	TypeEnum     DataTypeID = "Enum"
	TypeDateTime DataTypeID = "DateTime"
	TypeAny      DataTypeID = "any"
)

// String returns the tag name.
func (t DataTypeID) String() string {
	return string(t)
}

// DataValue is an immutable (value, type, metadata) triple.
//
// Values are produced by nodes and owned by the DataStore once committed.
// The zero DataValue is what a consumer reads from an input that was
// never written.
type DataValue struct {
	value any
	typ   DataTypeID
	meta  map[string]any
}

// NewDataValue creates a DataValue. The metadata map is copied so later
// mutation by the caller cannot leak into the value.
func NewDataValue(v any, t DataTypeID, meta map[string]any) DataValue {
	var m map[string]any
	if len(meta) > 0 {
		m = maps.Clone(meta)
	}
	return DataValue{value: v, typ: t, meta: m}
}

// Value returns the raw payload.
func (d DataValue) Value() any { return d.value }

// Type returns the declared type tag.
func (d DataValue) Type() DataTypeID { return d.typ }

// Meta returns a single metadata entry.
func (d DataValue) Meta(key string) (any, bool) {
	v, ok := d.meta[key]
	return v, ok
}

// Metadata returns a copy of all metadata entries.
func (d DataValue) Metadata() map[string]any {
	return maps.Clone(d.meta)
}

// IsZero reports whether nothing was ever written (no value and no type).
func (d DataValue) IsZero() bool {
	return d.value == nil && d.typ == ""
}

// As returns the payload as T when it holds a T.
// No implicit conversion is attempted.
func As[T any](d DataValue) (T, bool) {
	v, ok := d.value.(T)
	return v, ok
}
