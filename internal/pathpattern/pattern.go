// Package pathpattern compiles route paths such as "/api/:userId/followers" into anchored,
// case-insensitive regular expressions with named capture groups, and builds concrete paths back
// from them.
package pathpattern

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var dupSlashes = regexp.MustCompile(`/{2,}`)

// Join concatenates path segments and collapses duplicate slashes.
func Join(segments ...string) string {
	return dupSlashes.ReplaceAllString(strings.Join(segments, ""), "/")
}

type segment struct {
	literal  string
	name     string
	expr     string
	optional bool
}

func (s segment) isParam() bool { return s.name != "" }

// Pattern is a compiled path pattern. It is safe for concurrent use.
type Pattern struct {
	str  string
	segs []segment
	re   *regexp.Regexp
}

// MustCompile is like Compile but panics on error.
func MustCompile(str string) *Pattern {
	pat, err := Compile(str)
	if err != nil {
		panic("pathpattern: " + err.Error())
	}

	return pat
}

// Compile parses str. Parameters are written ":name" or "{name}", may carry a custom expression
// as in ":id(\d+)" and may be made optional with a trailing "?".
func Compile(str string) (*Pattern, error) {
	segs, err := parse(str)
	if err != nil {
		return nil, err
	}

	var expr strings.Builder
	expr.WriteString(`(?i)^`)

	for _, seg := range segs {
		if !seg.isParam() {
			expr.WriteString(regexp.QuoteMeta(seg.literal))
			continue
		}

		if seg.optional {
			fmt.Fprintf(&expr, `(?:/(?P<%s>%s))?`, seg.name, seg.expr)
			continue
		}

		fmt.Fprintf(&expr, `(?P<%s>%s)`, seg.name, seg.expr)
	}

	expr.WriteString(`/?$`)

	re, err := regexp.Compile(expr.String())
	if err != nil {
		return nil, fmt.Errorf("failed to compile %q: %w", str, err)
	}

	return &Pattern{str: str, segs: segs, re: re}, nil
}

func parse(str string) ([]segment, error) {
	var (
		segs []segment
		lit  strings.Builder
	)

	flush := func() {
		if lit.Len() > 0 {
			segs = append(segs, segment{literal: lit.String()})
			lit.Reset()
		}
	}

	seen := map[string]bool{}

	for i := 0; i < len(str); {
		var (
			name string
			end  int
		)

		switch {
		case str[i] == ':':
			end = i + 1
			for end < len(str) && isNameChar(str[end]) {
				end++
			}

			name = str[i+1 : end]
		case str[i] == '{':
			closing := strings.IndexByte(str[i:], '}')
			if closing < 0 {
				return nil, fmt.Errorf("unclosed '{' at offset %d", i) //nolint:goerr113
			}

			end = i + closing + 1
			name = str[i+1 : end-1]
		default:
			lit.WriteByte(str[i])
			i++

			continue
		}

		if name == "" || strings.IndexFunc(name, func(r rune) bool { return r > 0x7f || !isNameChar(byte(r)) }) >= 0 {
			return nil, fmt.Errorf("invalid parameter name at offset %d", i) //nolint:goerr113
		}

		if seen[name] {
			return nil, fmt.Errorf("duplicate parameter %q", name) //nolint:goerr113
		}

		seen[name] = true
		seg := segment{name: name, expr: `[^/]+?`}

		if end < len(str) && str[end] == '(' {
			depth, j := 0, end
			for ; j < len(str); j++ {
				if str[j] == '\\' {
					j++
					continue
				}

				if str[j] == '(' {
					depth++
				} else if str[j] == ')' {
					depth--
					if depth == 0 {
						break
					}
				}
			}

			if j >= len(str) {
				return nil, fmt.Errorf("unbalanced expression for parameter %q", name) //nolint:goerr113
			}

			seg.expr, end = str[end+1:j], j+1
		}

		if end < len(str) && str[end] == '?' {
			seg.optional, end = true, end+1

			// the preceding slash belongs to the optional group
			if l := lit.String(); strings.HasSuffix(l, "/") {
				lit.Reset()
				lit.WriteString(strings.TrimSuffix(l, "/"))
			}
		}

		flush()
		segs = append(segs, seg)
		i = end
	}

	flush()

	return segs, nil
}

func isNameChar(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

// String returns the source pattern.
func (p *Pattern) String() string { return p.str }

// Keys returns the parameter names in order of appearance.
func (p *Pattern) Keys() (keys []string) {
	for _, seg := range p.segs {
		if seg.isParam() {
			keys = append(keys, seg.name)
		}
	}

	return keys
}

// Match reports whether path matches and returns the percent-decoded parameter values. Optional
// parameters that did not participate are left out.
func (p *Pattern) Match(path string) (map[string]string, bool) {
	m := p.re.FindStringSubmatchIndex(path)
	if m == nil {
		return nil, false
	}

	vals := map[string]string{}
	for i, name := range p.re.SubexpNames() {
		if name == "" || m[2*i] < 0 {
			continue
		}

		raw := path[m[2*i]:m[2*i+1]]
		if dec, err := url.PathUnescape(raw); err == nil {
			raw = dec
		}

		vals[name] = raw
	}

	return vals, true
}

var (
	ErrNotEnoughValues = errors.New("not enough values")
	ErrTooManyValues   = errors.New("too many values")
)

// Build fills the pattern's parameters with vals, in order. Values are path-escaped. An empty
// value for an optional parameter drops it.
func Build(pat *Pattern, vals ...string) (string, error) {
	var res strings.Builder

	for _, seg := range pat.segs {
		if !seg.isParam() {
			res.WriteString(seg.literal)
			continue
		}

		if len(vals) == 0 {
			if seg.optional {
				continue
			}

			return "", fmt.Errorf("%w: missing %q", ErrNotEnoughValues, seg.name)
		}

		val := vals[0]
		vals = vals[1:]

		if val == "" && seg.optional {
			continue
		}

		if seg.optional {
			res.WriteByte('/')
		}

		res.WriteString(url.PathEscape(val))
	}

	if len(vals) > 0 {
		return "", fmt.Errorf("%w: %d left", ErrTooManyValues, len(vals))
	}

	return res.String(), nil
}

// Expand rewrites each parameter with fn, e.g. to turn ":id" into "{id}" for documentation.
func (p *Pattern) Expand(fn func(name string) string) string {
	var res strings.Builder

	for _, seg := range p.segs {
		switch {
		case !seg.isParam():
			res.WriteString(seg.literal)
		case seg.optional:
			res.WriteString("/" + fn(seg.name))
		default:
			res.WriteString(fn(seg.name))
		}
	}

	return res.String()
}
