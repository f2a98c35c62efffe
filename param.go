package broute

import (
	"github.com/advdv/broute/schema"
	"github.com/samber/lo"
)

// Source is where a parameter is read from.
type Source string

const (
	SourcePath  Source = "path"
	SourceQuery Source = "query"
	SourceBody  Source = "body"
)

// sourceOrder is the order in which sources are validated and merged. A name declared in more than one source ends
// up with the value of the last one.
var sourceOrder = []Source{SourcePath, SourceQuery, SourceBody}

// Param declares one request parameter.
type Param struct {
	Source Source
	Schema *schema.Schema
}

// Path declares a path parameter.
func Path(s *schema.Schema) Param { return Param{SourcePath, s} }

// Query declares a query string parameter.
func Query(s *schema.Schema) Param { return Param{SourceQuery, s} }

// Body declares a field of the request body.
func Body(s *schema.Schema) Param { return Param{SourceBody, s} }

// Params maps parameter names to their declaration.
type Params map[string]Param

// bySource groups the params into one object schema per source.
func (ps Params) bySource() map[Source]*schema.Schema {
	groups := lo.GroupBy(lo.Keys(ps), func(name string) Source { return ps[name].Source })

	return lo.MapValues(groups, func(names []string, _ Source) *schema.Schema {
		return schema.Object(lo.SliceToMap(names, func(name string) (string, *schema.Schema) {
			return name, ps[name].Schema
		}))
	})
}

// Of returns only the params read from src.
func (ps Params) Of(src Source) Params {
	return lo.PickBy(ps, func(_ string, p Param) bool { return p.Source == src })
}
