package broute

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"maps"
	"mime"
	"net/url"
	"slices"
	"strings"

	"github.com/advdv/broute/schema"
)

type pair struct{ key, val string }

// parseQuery merges the single and multi value query maps of the event into nested values. Keys are percent-decoded
// and bracket keys ("ids[]", "filter[name]", "ids[0]") build arrays and maps. Values that fail to decode are kept raw.
func parseQuery(ev *Event) map[string]any {
	var pairs []pair
	for _, k := range slices.Sorted(maps.Keys(ev.MultiValueQueryStringParameters)) {
		for _, v := range ev.MultiValueQueryStringParameters[k] {
			pairs = append(pairs, pair{unescape(k), unescape(v)})
		}
	}

	for _, k := range slices.Sorted(maps.Keys(ev.QueryStringParameters)) {
		if _, ok := ev.MultiValueQueryStringParameters[k]; ok {
			continue
		}

		pairs = append(pairs, pair{unescape(k), unescape(ev.QueryStringParameters[k])})
	}

	return buildNested(pairs)
}

func unescape(s string) string {
	if dec, err := url.PathUnescape(s); err == nil {
		return dec
	}

	return s
}

func parseForm(body string) (map[string]any, error) {
	vals, err := url.ParseQuery(body)
	if err != nil {
		return nil, err
	}

	var pairs []pair
	for _, k := range slices.Sorted(maps.Keys(vals)) {
		for _, v := range vals[k] {
			pairs = append(pairs, pair{k, v})
		}
	}

	return buildNested(pairs), nil
}

func buildNested(pairs []pair) map[string]any {
	root := map[string]any{}
	for _, p := range pairs {
		assign(root, splitKey(p.key), p.val)
	}

	return root
}

// splitKey turns "a[b][]" into ["a", "b", ""].
func splitKey(key string) []string {
	open := strings.IndexByte(key, '[')
	if open <= 0 || !strings.HasSuffix(key, "]") {
		return []string{key}
	}

	parts := []string{key[:open]}
	rest := key[open:]

	for len(rest) > 0 {
		if rest[0] != '[' {
			return []string{key}
		}

		closing := strings.IndexByte(rest, ']')
		if closing < 0 {
			return []string{key}
		}

		parts = append(parts, rest[1:closing])
		rest = rest[closing+1:]
	}

	return parts
}

func assign(node map[string]any, path []string, val string) {
	key := path[0]
	if len(path) == 1 {
		switch cur := node[key].(type) {
		case nil:
			node[key] = val
		case []any:
			node[key] = append(cur, val)
		default:
			node[key] = []any{cur, val}
		}

		return
	}

	if path[1] == "" {
		switch cur := node[key].(type) {
		case []any:
			node[key] = append(cur, val)
		case nil:
			node[key] = []any{val}
		default:
			node[key] = []any{cur, val}
		}

		return
	}

	child, ok := node[key].(map[string]any)
	if !ok {
		child = map[string]any{}
		node[key] = child
	}

	assign(child, path[1:], val)
}

// decodeBody decodes the event body by its content type: form encoded, text or JSON. An empty body decodes to an
// empty object so defaults still apply.
func decodeBody(ev *Event, contentType string) (any, error) {
	raw := ev.Body
	if ev.IsBase64Encoded {
		dec, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, NewValidationError(schema.FieldError{Field: "body", Message: "must be valid base64"})
		}

		raw = string(dec)
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = ""
	}

	switch {
	case mediaType == "application/x-www-form-urlencoded":
		form, err := parseForm(raw)
		if err != nil {
			return nil, NewValidationError(schema.FieldError{Field: "body", Message: "must be a valid form"})
		}

		return form, nil
	case mediaType == "text" || strings.HasPrefix(mediaType, "text/"):
		return raw, nil
	case strings.TrimSpace(raw) == "":
		return map[string]any{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, NewValidationError(schema.FieldError{Field: "body", Message: "must be valid JSON"})
	}

	return v, nil
}
