// Package schema provides explicit, coercing value schemas used to validate request parameters.
//
// A schema is built once with constructor functions and modifiers that return copies:
//
//	userID := schema.Int().Min(1)
//	update := schema.Object(schema.Fields{
//	    "fieldA": schema.Number(),
//	    "note":   schema.String().Max(140).Optional(),
//	})
//
// Validating a value coerces it into the schema's Go type (int64, float64, string, bool,
// map[string]any or []any), strips object keys that are not declared, and collects every
// field failure into a single [*Error] instead of stopping at the first one.
package schema

import (
	"maps"
	"slices"
)

// Kind identifies the value type a schema coerces into.
type Kind int

const (
	KindAny Kind = iota
	KindInt
	KindNumber
	KindString
	KindBool
	KindObject
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "integer"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBool:
		return "boolean"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	default:
		return "any"
	}
}

// Fields declares the keys of an object schema.
type Fields map[string]*Schema

// Schema describes a single value. The zero value is not usable, use one of the constructors.
type Schema struct {
	kind        Kind
	optional    bool
	hasDefault  bool
	def         any
	description string
	min, max    *float64
	enum        []any
	rules       []string
	fields      Fields
	items       *Schema
}

// Any accepts every value as-is, except that decoded JSON numbers become int64 or float64, also inside
// nested objects and arrays.
func Any() *Schema { return &Schema{kind: KindAny} }

// Int coerces into an int64. Numeric strings such as "33" are accepted.
func Int() *Schema { return &Schema{kind: KindInt} }

// Number coerces into a float64.
func Number() *Schema { return &Schema{kind: KindNumber} }

// String accepts string values only.
func String() *Schema { return &Schema{kind: KindString} }

// Bool coerces into a bool, accepting strings like "true" and "0".
func Bool() *Schema { return &Schema{kind: KindBool} }

// Object validates a map with the given fields. Undeclared keys are stripped from the result.
func Object(fields Fields) *Schema {
	return &Schema{kind: KindObject, fields: maps.Clone(fields)}
}

// Array validates every element against items. A single non-array value is treated as an
// array of one element, which is how a query string carries a one-valued list.
func Array(items *Schema) *Schema {
	return &Schema{kind: KindArray, items: items}
}

func (s *Schema) clone() *Schema {
	c := *s
	c.enum = slices.Clone(s.enum)
	c.rules = slices.Clone(s.rules)
	c.fields = maps.Clone(s.fields)
	return &c
}

// Optional allows the value to be absent.
func (s *Schema) Optional() *Schema {
	c := s.clone()
	c.optional = true
	return c
}

// Default sets the value used when the field is absent. A field with a default is never
// reported as missing.
func (s *Schema) Default(v any) *Schema {
	c := s.clone()
	c.hasDefault, c.def = true, v
	return c
}

// Description attaches a human readable description, used when generating documentation.
func (s *Schema) Description(desc string) *Schema {
	c := s.clone()
	c.description = desc
	return c
}

// Min sets the lower bound: the value for numbers, the length for strings and arrays.
func (s *Schema) Min(n float64) *Schema {
	c := s.clone()
	c.min = &n
	return c
}

// Max sets the upper bound: the value for numbers, the length for strings and arrays.
func (s *Schema) Max(n float64) *Schema {
	c := s.clone()
	c.max = &n
	return c
}

// Enum restricts the coerced value to one of vals.
func (s *Schema) Enum(vals ...any) *Schema {
	c := s.clone()
	c.enum = append(c.enum, vals...)
	return c
}

// Rule adds a go-playground/validator tag (e.g. "email", "uuid4", "alphanum") that the coerced
// value must satisfy.
func (s *Schema) Rule(tag string) *Schema {
	c := s.clone()
	c.rules = append(c.rules, tag)
	return c
}

// Kind returns the kind of value the schema produces.
func (s *Schema) Kind() Kind { return s.kind }

// IsOptional reports whether an absent value is accepted, either explicitly or through a default.
func (s *Schema) IsOptional() bool { return s.optional || s.hasDefault }

// DefaultValue returns the default and whether one was set.
func (s *Schema) DefaultValue() (any, bool) { return s.def, s.hasDefault }

// Doc returns the description.
func (s *Schema) Doc() string { return s.description }

// Bounds returns the configured min and max, nil when unset.
func (s *Schema) Bounds() (lo, hi *float64) { return s.min, s.max }

// Enums returns the allowed values.
func (s *Schema) Enums() []any { return slices.Clone(s.enum) }

// Rules returns the validator tags.
func (s *Schema) Rules() []string { return slices.Clone(s.rules) }

// Fields returns the declared fields of an object schema.
func (s *Schema) Fields() Fields { return maps.Clone(s.fields) }

// Items returns the element schema of an array schema.
func (s *Schema) Items() *Schema { return s.items }

// FieldNames returns the declared object keys in sorted order.
func (s *Schema) FieldNames() []string {
	return slices.Sorted(maps.Keys(s.fields))
}
