package rowstore

import (
	"fmt"
)

// Record is one row of a store: a mapping from field name to scalar value.
// Every record in a store carries the store's identifier field.
type Record map[string]any

// FieldDef describes one column of a store's schema: its name and the
// default value applied when an appended record omits the field.
// Schemas are static, ordered tables of these descriptors; population
// iterates the table rather than switching on field-name literals.
type FieldDef struct {
	Name    string
	Default any
}

// Schema is the ordered header of a store. The order is the persisted
// column order; the identifier field must be one of the declared fields.
type Schema struct {
	fields  []FieldDef
	idField string
}

// NewSchema builds a schema whose identifier column is idField.
//
// Returns an error if idField is not among the declared fields or a field
// name repeats.
func NewSchema(idField string, fields ...FieldDef) (Schema, error) {
	seen := make(map[string]bool, len(fields))
	hasID := false
	for _, f := range fields {
		if f.Name == "" {
			return Schema{}, fmt.Errorf("schema: empty field name")
		}
		if seen[f.Name] {
			return Schema{}, fmt.Errorf("schema: duplicate field %q", f.Name)
		}
		seen[f.Name] = true
		if f.Name == idField {
			hasID = true
		}
	}
	if !hasID {
		return Schema{}, fmt.Errorf("schema: identifier field %q not declared", idField)
	}
	out := Schema{idField: idField, fields: make([]FieldDef, len(fields))}
	copy(out.fields, fields)
	return out, nil
}

// MustSchema is NewSchema for statically known schemas; it panics on error.
func MustSchema(idField string, fields ...FieldDef) Schema {
	s, err := NewSchema(idField, fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// IDField returns the name of the identifier column.
func (s Schema) IDField() string { return s.idField }

// FieldNames returns the ordered header.
func (s Schema) FieldNames() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

// Has reports whether name is a declared field.
func (s Schema) Has(name string) bool {
	for _, f := range s.fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Normalize produces a full record from a partial one: known fields are
// copied from in, missing fields take their declared default, and fields
// not present in the schema are dropped. The input is never modified.
func (s Schema) Normalize(in Record) Record {
	out := make(Record, len(s.fields))
	for _, f := range s.fields {
		if v, ok := in[f.Name]; ok {
			out[f.Name] = v
			continue
		}
		out[f.Name] = f.Default
	}
	return out
}
