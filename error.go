package broute

import (
	"fmt"
	"net/http"
	"time"

	"github.com/advdv/broute/schema"
	"github.com/cockroachdb/errors"
)

// Code is an error code that mirrors the http status codes. Application errors carry one so the root exception
// handler can surface them with that status.
type Code int

const (
	CodeUnknown                      Code = 0
	CodeBadRequest                   Code = http.StatusBadRequest                   // RFC 9110, 15.5.1
	CodeUnauthorized                 Code = http.StatusUnauthorized                 // RFC 9110, 15.5.2
	CodePaymentRequired              Code = http.StatusPaymentRequired              // RFC 9110, 15.5.3
	CodeForbidden                    Code = http.StatusForbidden                    // RFC 9110, 15.5.4
	CodeNotFound                     Code = http.StatusNotFound                     // RFC 9110, 15.5.5
	CodeMethodNotAllowed             Code = http.StatusMethodNotAllowed             // RFC 9110, 15.5.6
	CodeNotAcceptable                Code = http.StatusNotAcceptable                // RFC 9110, 15.5.7
	CodeProxyAuthRequired            Code = http.StatusProxyAuthRequired            // RFC 9110, 15.5.8
	CodeRequestTimeout               Code = http.StatusRequestTimeout               // RFC 9110, 15.5.9
	CodeConflict                     Code = http.StatusConflict                     // RFC 9110, 15.5.10
	CodeGone                         Code = http.StatusGone                         // RFC 9110, 15.5.11
	CodeLengthRequired               Code = http.StatusLengthRequired               // RFC 9110, 15.5.12
	CodePreconditionFailed           Code = http.StatusPreconditionFailed           // RFC 9110, 15.5.13
	CodeRequestEntityTooLarge        Code = http.StatusRequestEntityTooLarge        // RFC 9110, 15.5.14
	CodeRequestURITooLong            Code = http.StatusRequestURITooLong            // RFC 9110, 15.5.15
	CodeUnsupportedMediaType         Code = http.StatusUnsupportedMediaType         // RFC 9110, 15.5.16
	CodeRequestedRangeNotSatisfiable Code = http.StatusRequestedRangeNotSatisfiable // RFC 9110, 15.5.17
	CodeExpectationFailed            Code = http.StatusExpectationFailed            // RFC 9110, 15.5.18
	CodeTeapot                       Code = http.StatusTeapot                       // RFC 9110, 15.5.19 (Unused)
	CodeMisdirectedRequest           Code = http.StatusMisdirectedRequest           // RFC 9110, 15.5.20
	CodeUnprocessableEntity          Code = http.StatusUnprocessableEntity          // RFC 9110, 15.5.21
	CodeLocked                       Code = http.StatusLocked                       // RFC 4918, 11.3
	CodeFailedDependency             Code = http.StatusFailedDependency             // RFC 4918, 11.4
	CodeTooEarly                     Code = http.StatusTooEarly                     // RFC 8470, 5.2.
	CodeUpgradeRequired              Code = http.StatusUpgradeRequired              // RFC 9110, 15.5.22
	CodePreconditionRequired         Code = http.StatusPreconditionRequired         // RFC 6585, 3
	CodeTooManyRequests              Code = http.StatusTooManyRequests              // RFC 6585, 4
	CodeRequestHeaderFieldsTooLarge  Code = http.StatusRequestHeaderFieldsTooLarge  // RFC 6585, 5
	CodeUnavailableForLegalReasons   Code = http.StatusUnavailableForLegalReasons   // RFC 7725, 3

	CodeInternalServerError           Code = http.StatusInternalServerError           // RFC 9110, 15.6.1
	CodeNotImplemented                Code = http.StatusNotImplemented                // RFC 9110, 15.6.2
	CodeBadGateway                    Code = http.StatusBadGateway                    // RFC 9110, 15.6.3
	CodeServiceUnavailable            Code = http.StatusServiceUnavailable            // RFC 9110, 15.6.4
	CodeGatewayTimeout                Code = http.StatusGatewayTimeout                // RFC 9110, 15.6.5
	CodeHTTPVersionNotSupported       Code = http.StatusHTTPVersionNotSupported       // RFC 9110, 15.6.6
	CodeVariantAlsoNegotiates         Code = http.StatusVariantAlsoNegotiates         // RFC 2295, 8.1
	CodeInsufficientStorage           Code = http.StatusInsufficientStorage           // RFC 4918, 11.5
	CodeLoopDetected                  Code = http.StatusLoopDetected                  // RFC 5842, 7.2
	CodeNotExtended                   Code = http.StatusNotExtended                   // RFC 2774, 7
	CodeNetworkAuthenticationRequired Code = http.StatusNetworkAuthenticationRequired // RFC 6585, 6
)

// Kind tags an [*Error] with the way the router treats it.
type Kind int

const (
	// KindUnexpected is anything the router did not produce itself. It is surfaced as a 500.
	KindUnexpected Kind = iota
	// KindConfiguration marks a malformed route tree or router setup.
	KindConfiguration
	// KindValidation marks request parameters that failed their schema.
	KindValidation
	// KindTimeout marks a handler that did not finish within its budget.
	KindTimeout
	// KindApplication marks an error a handler raised on purpose, with its own status and code.
	KindApplication
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "ConfigurationError"
	case KindValidation:
		return "ValidationError"
	case KindTimeout:
		return "TimeoutError"
	case KindApplication:
		return "ApplicationError"
	default:
		return "Error"
	}
}

// Error is the error type produced by the router. Its Kind decides how the root scope renders it.
type Error struct {
	kind     Kind
	code     Code
	name     string
	message  string
	metadata any
	fields   []schema.FieldError
	route    *Route
	cause    error
}

// NewError creates an application error. The root scope responds with status c and a body holding name as the error
// code, message and metadata verbatim.
func NewError(c Code, name, message string, metadata any) *Error {
	return &Error{kind: KindApplication, code: c, name: name, message: message, metadata: metadata}
}

// NewValidationError creates a validation error from individual field failures.
func NewValidationError(fields ...schema.FieldError) *Error {
	return &Error{
		kind:    KindValidation,
		code:    CodeBadRequest,
		name:    KindValidation.String(),
		message: (&schema.Error{Fields: fields}).Error(),
		fields:  fields,
	}
}

// NewConfigurationError creates an error for a malformed route tree or a route that does not fit a middleware.
func NewConfigurationError(format string, args ...any) *Error {
	cause := errors.Newf(format, args...)

	return &Error{
		kind:    KindConfiguration,
		code:    CodeInternalServerError,
		name:    KindConfiguration.String(),
		message: cause.Error(),
		cause:   cause,
	}
}

func newTimeoutError(route *Route, after time.Duration) *Error {
	cause := errors.Newf("route %s %s (%q) did not finish within %s",
		route.Method(), route.Path(), route.OperationID(), after)

	return &Error{
		kind:    KindTimeout,
		code:    CodeInternalServerError,
		name:    KindTimeout.String(),
		message: cause.Error(),
		route:   route,
		cause:   cause,
	}
}

// fromValidation turns a schema failure into a validation error. Field paths are relative to the parameter source.
func fromValidation(err error) error {
	var serr *schema.Error
	if !errors.As(err, &serr) {
		return err
	}

	verr := NewValidationError(serr.Fields...)
	verr.cause = err

	return verr
}

// Kind returns what raised the error.
func (e *Error) Kind() Kind { return e.kind }

// Code returns the status the error is tagged with. Only application errors are rendered with it by the root scope.
func (e *Error) Code() Code { return e.code }

// Name returns the code put in the error envelope.
func (e *Error) Name() string { return e.name }

// Message returns the client facing message.
func (e *Error) Message() string { return e.message }

// Metadata returns the metadata of an application error.
func (e *Error) Metadata() any { return e.metadata }

// Fields returns the failed fields of a validation error.
func (e *Error) Fields() []schema.FieldError { return e.fields }

// Route returns the route that timed out, nil for other kinds.
func (e *Error) Route() *Route { return e.route }

// Unwrap returns the underlying error, if any.
func (e *Error) Unwrap() error { return e.cause }

// Error formats the error as "<status text>: <message>", with the name in between for application errors.
func (e *Error) Error() string {
	status := http.StatusText(int(e.Code()))
	if status == "" {
		status = "Unknown"
	}

	if e.kind == KindApplication {
		return fmt.Sprintf("%s: %s: %s", status, e.name, e.message)
	}

	return fmt.Sprintf("%s: %s", status, e.message)
}

// CodeOf returns the error's status code if it is or wraps an [*Error] and
// [CodeUnknown] otherwise.
func CodeOf(err error) Code {
	if berr, ok := AsError(err); ok {
		return berr.Code()
	}
	return CodeUnknown
}

// KindOf returns the kind of the [*Error] err is or wraps, [KindUnexpected] otherwise.
func KindOf(err error) Kind {
	if berr, ok := AsError(err); ok {
		return berr.Kind()
	}
	return KindUnexpected
}

// AsError uses errors.As to unwrap any error and look for an *Error.
func AsError(err error) (*Error, bool) {
	var berr *Error
	ok := errors.As(err, &berr)
	return berr, ok
}
