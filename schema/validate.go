package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"github.com/spf13/cast"
)

var rules = validator.New(validator.WithRequiredStructEnabled())

// Validate coerces v into the schema's type. A nil v counts as absent. Every failure is collected
// into the returned *Error.
func (s *Schema) Validate(v any) (any, error) {
	var col collector

	out, present := s.validate(&col, "", v)
	if len(col.errs) > 0 {
		return nil, &Error{Fields: col.errs}
	}

	if !present {
		return nil, nil
	}

	return out, nil
}

// MustValidate is like Validate but panics on failure.
func (s *Schema) MustValidate(v any) any {
	out, err := s.Validate(v)
	if err != nil {
		panic("schema: " + err.Error())
	}

	return out
}

// validate returns the coerced value and whether the value is present in the output.
func (s *Schema) validate(col *collector, path string, v any) (any, bool) {
	if v == nil {
		switch {
		case s.hasDefault:
			v = s.def
		case s.optional:
			return nil, false
		default:
			col.add(path, "is required")
			return nil, false
		}
	}

	switch s.kind {
	case KindObject:
		return s.validateObject(col, path, v), true
	case KindArray:
		return s.validateArray(col, path, v), true
	}

	out, err := s.coerce(v)
	if err != nil {
		col.add(path, err.Error())
		return nil, false
	}

	if msg := s.check(out); msg != "" {
		col.add(path, msg)
		return nil, false
	}

	return out, true
}

func (s *Schema) validateObject(col *collector, path string, v any) map[string]any {
	in, ok := asMap(v)
	if !ok {
		col.add(path, "must be an object")
		return nil
	}

	out := make(map[string]any, len(s.fields))
	for _, name := range s.FieldNames() {
		fv, present := s.fields[name].validate(col, joinPath(path, name), in[name])
		if present {
			out[name] = fv
		}
	}

	return out
}

func (s *Schema) validateArray(col *collector, path string, v any) []any {
	in := asSlice(v)

	if msg := s.checkLen(len(in), "items"); msg != "" {
		col.add(path, msg)
		return nil
	}

	out := make([]any, 0, len(in))
	for i, item := range in {
		if s.items == nil {
			out = append(out, plain(item))
			continue
		}

		iv, present := s.items.validate(col, joinPath(path, strconv.Itoa(i)), item)
		if present {
			out = append(out, iv)
		}
	}

	return out
}

func (s *Schema) coerce(v any) (any, error) {
	if n, ok := v.(json.Number); ok {
		v = number(n)
	}

	switch s.kind {
	case KindInt:
		return coerceInt(v)
	case KindNumber:
		if _, isBool := v.(bool); isBool {
			return nil, fmt.Errorf("must be a number")
		}

		f, err := cast.ToFloat64E(v)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("must be a number")
		}

		return f, nil
	case KindString:
		str, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("must be a string")
		}

		return str, nil
	case KindBool:
		b, err := cast.ToBoolE(v)
		if err != nil {
			return nil, fmt.Errorf("must be a boolean")
		}

		return b, nil
	default:
		return plain(v), nil
	}
}

// number turns a decoded JSON number into an int64 when it is integral and fits, into a float64 otherwise.
func number(n json.Number) any {
	if i, err := n.Int64(); err == nil {
		return i
	}

	if f, err := n.Float64(); err == nil {
		return f
	}

	return n
}

// plain replaces the json.Number values in v, nested ones included.
func plain(v any) any {
	switch vt := v.(type) {
	case json.Number:
		return number(vt)
	case map[string]any:
		out := make(map[string]any, len(vt))
		for k, e := range vt {
			out[k] = plain(e)
		}

		return out
	case []any:
		out := make([]any, len(vt))
		for i, e := range vt {
			out[i] = plain(e)
		}

		return out
	default:
		return v
	}
}

func coerceInt(v any) (any, error) {
	switch vt := v.(type) {
	case bool:
		return nil, fmt.Errorf("must be an integer")
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(vt), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("must be an integer")
		}

		return n, nil
	case float32, float64:
		f := cast.ToFloat64(vt)
		if f != math.Trunc(f) || math.IsInf(f, 0) || math.Abs(f) >= math.MaxInt64 {
			return nil, fmt.Errorf("must be an integer")
		}
	}

	n, err := cast.ToInt64E(v)
	if err != nil {
		return nil, fmt.Errorf("must be an integer")
	}

	return n, nil
}

// check applies bounds, enum and validator rules to a coerced scalar.
func (s *Schema) check(v any) string {
	switch vt := v.(type) {
	case int64:
		if msg := s.checkNum(float64(vt)); msg != "" {
			return msg
		}
	case float64:
		if msg := s.checkNum(vt); msg != "" {
			return msg
		}
	case string:
		if msg := s.checkLen(utf8.RuneCountInString(vt), "characters"); msg != "" {
			return msg
		}
	}

	if len(s.enum) > 0 && !s.inEnum(v) {
		return "must be one of " + strings.Join(lo.Map(s.enum, func(e any, _ int) string {
			return fmt.Sprint(e)
		}), ", ")
	}

	for _, tag := range s.rules {
		if err := rules.Var(v, tag); err != nil {
			return fmt.Sprintf("must satisfy %q", tag)
		}
	}

	return ""
}

func (s *Schema) checkNum(f float64) string {
	if s.min != nil && f < *s.min {
		return "must be at least " + strconv.FormatFloat(*s.min, 'f', -1, 64)
	}

	if s.max != nil && f > *s.max {
		return "must be at most " + strconv.FormatFloat(*s.max, 'f', -1, 64)
	}

	return ""
}

func (s *Schema) checkLen(n int, unit string) string {
	if s.min != nil && float64(n) < *s.min {
		return fmt.Sprintf("must have at least %s %s", strconv.FormatFloat(*s.min, 'f', -1, 64), unit)
	}

	if s.max != nil && float64(n) > *s.max {
		return fmt.Sprintf("must have at most %s %s", strconv.FormatFloat(*s.max, 'f', -1, 64), unit)
	}

	return ""
}

func (s *Schema) inEnum(v any) bool {
	return lo.ContainsBy(s.enum, func(e any) bool {
		ev, err := s.coerce(e)
		return err == nil && ev == v
	})
}

func asMap(v any) (map[string]any, bool) {
	switch vt := v.(type) {
	case map[string]any:
		return vt, true
	case map[string]string:
		out := make(map[string]any, len(vt))
		for k, sv := range vt {
			out[k] = sv
		}

		return out, true
	default:
		return nil, false
	}
}

func asSlice(v any) []any {
	switch vt := v.(type) {
	case []any:
		return vt
	case []string:
		return lo.ToAnySlice(vt)
	case map[string]any:
		// bracket-indexed query keys (a[0]=x&a[1]=y) decode into a map with numeric keys
		if out, ok := indexedSlice(vt); ok {
			return out
		}
	}

	return []any{v}
}

// indexedSlice orders m by its keys when they are exactly the decimal indexes 0..len(m)-1. Keys such as "00"
// or "+1" are not indexes, so no two keys can claim the same slot.
func indexedSlice(m map[string]any) ([]any, bool) {
	out := make([]any, len(m))
	for k, v := range m {
		i, err := strconv.Atoi(k)
		if err != nil || i < 0 || i >= len(m) || strconv.Itoa(i) != k {
			return nil, false
		}

		out[i] = v
	}

	return out, true
}
