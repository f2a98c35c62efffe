// Package openapi documents a route tree as a Swagger 2.0 document and serves it from a namespace.
package openapi

import (
	"cmp"
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/advdv/broute"
	"github.com/advdv/broute/internal/pathpattern"
	"github.com/advdv/broute/schema"
	"github.com/cockroachdb/errors"
	"github.com/go-openapi/spec"
	"github.com/samber/lo"
	"sigs.k8s.io/yaml"
)

// Info describes the documented API.
type Info struct {
	Title       string
	Version     string
	Description string
	// Definitions are published as the document's shared schema definitions.
	Definitions spec.Definitions
}

// Document is a generated Swagger 2.0 document.
type Document struct {
	spec.Swagger
}

// JSON renders the document as JSON.
func (d *Document) JSON() ([]byte, error) {
	buf, err := json.Marshal(&d.Swagger)
	if err != nil {
		return nil, errors.Wrap(err, "marshal document")
	}

	return buf, nil
}

// YAML renders the document as YAML.
func (d *Document) YAML() ([]byte, error) {
	buf, err := d.JSON()
	if err != nil {
		return nil, err
	}

	out, err := yaml.JSONToYAML(buf)
	if err != nil {
		return nil, errors.Wrap(err, "convert to yaml")
	}

	return out, nil
}

// Generate documents every chain. Chains are visited in routing order, so a chain shadowed by an earlier one with
// the same method and path is left out.
func Generate(info Info, chains []broute.Chain) (*Document, error) {
	doc := &Document{spec.Swagger{SwaggerProps: spec.SwaggerProps{
		Swagger: "2.0",
		Info: &spec.Info{InfoProps: spec.InfoProps{
			Title:       info.Title,
			Version:     info.Version,
			Description: info.Description,
		}},
		Consumes:    []string{"application/json"},
		Produces:    []string{"application/json"},
		Paths:       &spec.Paths{Paths: map[string]spec.PathItem{}},
		Definitions: info.Definitions,
	}}}

	for _, ch := range chains {
		pat, err := pathpattern.Compile(ch.Path())
		if err != nil {
			return nil, errors.Wrapf(err, "compile path of %s %s", ch.Method(), ch.Path())
		}

		path := pat.Expand(func(name string) string { return "{" + name + "}" })
		item := doc.Paths.Paths[path]

		op := methodOp(&item, ch.Method())
		if op == nil {
			return nil, errors.Newf("unsupported method %q for path %s", ch.Method(), path)
		}

		if *op != nil {
			continue
		}

		*op = operation(ch)
		doc.Paths.Paths[path] = item
	}

	return doc, nil
}

func methodOp(item *spec.PathItem, method string) **spec.Operation {
	switch method {
	case http.MethodGet:
		return &item.Get
	case http.MethodPost:
		return &item.Post
	case http.MethodDelete:
		return &item.Delete
	case http.MethodPut:
		return &item.Put
	case http.MethodPatch:
		return &item.Patch
	case http.MethodHead:
		return &item.Head
	case http.MethodOptions:
		return &item.Options
	default:
		return nil
	}
}

var sourceRank = map[broute.Source]int{broute.SourcePath: 0, broute.SourceQuery: 1, broute.SourceBody: 2}

func operation(ch broute.Chain) *spec.Operation {
	op := spec.NewOperation(ch.Route.OperationID()).WithDescription(ch.Route.Description())

	params := ch.Params()
	names := lo.Keys(params)
	slices.SortFunc(names, func(a, b string) int {
		return cmp.Or(cmp.Compare(sourceRank[params[a].Source], sourceRank[params[b].Source]), cmp.Compare(a, b))
	})

	body := schema.Fields{}

	for _, name := range names {
		p := params[name]
		if p.Source == broute.SourceBody {
			body[name] = p.Schema
			continue
		}

		op.Parameters = append(op.Parameters, parameter(name, p))
	}

	if len(body) > 0 {
		param := spec.BodyParam("body", Schema(schema.Object(body))).WithDescription("Body")
		param.Required = true
		op.Parameters = append(op.Parameters, *param)
	}

	op.Responses = &spec.Responses{}

	declared := ch.Route.Responses()
	if len(declared) == 0 {
		op.RespondsWith(http.StatusOK, spec.NewResponse().WithDescription("Success"))
		return op
	}

	for status, rs := range declared {
		resp := spec.NewResponse().WithDescription(rs.Description)
		if rs.Schema != nil {
			resp.WithSchema(Schema(rs.Schema))
		}

		op.RespondsWith(status, resp)
	}

	return op
}

func parameter(name string, p broute.Param) spec.Parameter {
	param := spec.Parameter{ParamProps: spec.ParamProps{
		Name:        name,
		In:          string(p.Source),
		Description: p.Schema.Doc(),
		Required:    p.Source == broute.SourcePath || !p.Schema.IsOptional(),
	}}

	param.Type = simpleType(p.Schema)
	if def, ok := p.Schema.DefaultValue(); ok {
		param.Default = def
	}

	param.Enum = p.Schema.Enums()

	lower, upper := p.Schema.Bounds()
	switch p.Schema.Kind() {
	case schema.KindInt, schema.KindNumber:
		param.Minimum, param.Maximum = lower, upper
	case schema.KindString:
		param.MinLength, param.MaxLength = length(lower), length(upper)
	case schema.KindArray:
		param.MinItems, param.MaxItems = length(lower), length(upper)
		param.CollectionFormat = "multi"
		if items := p.Schema.Items(); items != nil {
			param.Items = spec.NewItems().Typed(simpleType(items), "")
		}
	}

	return param
}

// simpleType returns the Swagger type of a non-body parameter. Those cannot be untyped.
func simpleType(s *schema.Schema) string {
	if s.Kind() == schema.KindAny || s.Kind() == schema.KindObject {
		return "string"
	}

	return s.Kind().String()
}

func length(v *float64) *int64 {
	if v == nil {
		return nil
	}

	n := int64(*v)

	return &n
}

// Schema converts a validation schema to its JSON schema.
func Schema(s *schema.Schema) *spec.Schema {
	out := &spec.Schema{}
	if s.Kind() != schema.KindAny {
		out.Typed(s.Kind().String(), "")
	}

	out.Description = s.Doc()
	out.Enum = s.Enums()

	if def, ok := s.DefaultValue(); ok {
		out.Default = def
	}

	if rules := s.Rules(); len(rules) > 0 {
		out.AddExtension("x-rules", rules)
	}

	lower, upper := s.Bounds()
	switch s.Kind() {
	case schema.KindInt, schema.KindNumber:
		out.Minimum, out.Maximum = lower, upper
	case schema.KindString:
		out.MinLength, out.MaxLength = length(lower), length(upper)
	case schema.KindArray:
		out.MinItems, out.MaxItems = length(lower), length(upper)
		if items := s.Items(); items != nil {
			out.Items = &spec.SchemaOrArray{Schema: Schema(items)}
		}
	case schema.KindObject:
		fields := s.Fields()
		for _, name := range s.FieldNames() {
			out.SetProperty(name, *Schema(fields[name]))
			if !fields[name].IsOptional() {
				out.AddRequired(name)
			}
		}
	}

	return out
}

const corsMaxAge = 30 * 24 * time.Hour

func corsHeaders(origin string) map[string]string {
	return map[string]string{
		"Access-Control-Allow-Origin":  origin,
		"Access-Control-Allow-Headers": "Content-Type",
		"Access-Control-Allow-Methods": "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		"Access-Control-Max-Age":       strconv.Itoa(int(corsMaxAge.Seconds())),
	}
}

// Namespace returns a namespace that serves the document of routes on GET and answers CORS preflight requests on
// OPTIONS. The document's host, scheme and base path are taken from the request.
func Namespace(path string, info Info, routes []broute.Node) (*broute.Namespace, error) {
	doc, err := Generate(info, broute.Flatten(routes...))
	if err != nil {
		return nil, err
	}

	return broute.NewNamespace(path, []broute.Node{
		broute.OPTIONS("", func(_ context.Context, rc *broute.RoutingContext) (*broute.Response, error) {
			return broute.NewResponse(http.StatusNoContent, corsHeaders(rc.Header("origin")), ""), nil
		},
			broute.WithOperationID("optionOpenAPI"),
			broute.WithDescription("CORS Preflight Endpoint for OpenAPI Documentation API")),
		broute.GET("", func(_ context.Context, rc *broute.RoutingContext) (*broute.Response, error) {
			served := *doc
			served.Host = rc.Header("host")
			if proto := rc.Header("x-forwarded-proto"); proto != "" {
				served.Schemes = []string{proto}
			}

			served.BasePath = pathpattern.Join("/", rc.Event().RequestContext.Stage, "/")

			return rc.JSON(&served.Swagger, broute.WithHeaders(corsHeaders(rc.Header("origin"))))
		},
			broute.WithOperationID("getOpenAPI"),
			broute.WithDescription("OpenAPI Documentation API")),
	})
}
