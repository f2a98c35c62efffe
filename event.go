package broute

import (
	"encoding/json"
	"strings"
)

// Event is the inbound request in the shape of an API Gateway proxy event.
type Event struct {
	Path                            string              `json:"path"`
	HTTPMethod                      string              `json:"httpMethod"`
	Headers                         map[string]string   `json:"headers,omitempty"`
	MultiValueHeaders               map[string][]string `json:"multiValueHeaders,omitempty"`
	QueryStringParameters           map[string]string   `json:"queryStringParameters,omitempty"`
	MultiValueQueryStringParameters map[string][]string `json:"multiValueQueryStringParameters,omitempty"`
	PathParameters                  map[string]string   `json:"pathParameters,omitempty"`
	Body                            string              `json:"body,omitempty"`
	IsBase64Encoded                 bool                `json:"isBase64Encoded,omitempty"`
	RequestContext                  RequestContext      `json:"requestContext"`
}

// RequestContext holds the parts of the proxy request context the router uses.
type RequestContext struct {
	RequestID string `json:"requestId,omitempty"`
	Stage     string `json:"stage,omitempty"`
}

// Response is the outbound response in the shape of an API Gateway proxy response.
type Response struct {
	StatusCode      int               `json:"statusCode"`
	Headers         map[string]string `json:"headers,omitempty"`
	Body            string            `json:"body"`
	IsBase64Encoded bool              `json:"isBase64Encoded,omitempty"`
}

// NewResponse builds a response with a raw body. Use [RoutingContext.JSON] for JSON bodies.
func NewResponse(status int, headers map[string]string, body string) *Response {
	if headers == nil {
		headers = map[string]string{}
	}

	return &Response{StatusCode: status, Headers: headers, Body: body}
}

// ResponseOption configures a response created by [RoutingContext.JSON].
type ResponseOption func(*Response)

// WithStatus overrides the default 200 status.
func WithStatus(status int) ResponseOption {
	return func(r *Response) { r.StatusCode = status }
}

// WithHeader sets a response header.
func WithHeader(name, value string) ResponseOption {
	return func(r *Response) { r.Headers[name] = value }
}

// WithHeaders sets several response headers at once.
func WithHeaders(headers map[string]string) ResponseOption {
	return func(r *Response) {
		for k, v := range headers {
			r.Headers[k] = v
		}
	}
}

func jsonResponse(v any, opts ...ResponseOption) (*Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	resp := NewResponse(200, map[string]string{
		"Content-Type": "application/json; charset=utf-8",
	}, string(body))

	for _, opt := range opts {
		opt(resp)
	}

	return resp, nil
}

func notFound() *Response {
	return NewResponse(404, map[string]string{"Content-Type": "application/json"}, `{"error":"Not Found"}`)
}

// normalizeHeaders lower-cases header names. Single value headers win over their multi value counterpart.
func normalizeHeaders(ev *Event) map[string]string {
	hdrs := make(map[string]string, len(ev.Headers)+len(ev.MultiValueHeaders))
	for k, vs := range ev.MultiValueHeaders {
		hdrs[strings.ToLower(k)] = strings.Join(vs, ", ")
	}

	for k, v := range ev.Headers {
		hdrs[strings.ToLower(k)] = v
	}

	return hdrs
}
