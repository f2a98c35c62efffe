// Package broute routes single-invocation HTTP events, such as API Gateway proxy events handled by a Lambda
// function, through a declarative tree of namespaces and routes.
//
// # Overview
//
// A request arrives as an [Event] and leaves as a [Response]. In between the [Router] matches the event against the
// flattened route tree, validates parameters scope by scope, runs middleware around the handler, races the handler
// against a timeout and turns errors into responses with the exception handlers of the enclosing namespaces.
//
// A minimal example:
//
//	router, err := broute.NewRouter([]broute.Node{
//	    broute.MustNamespace("/api/:userId", []broute.Node{
//	        broute.GET("/followers", listFollowers, broute.WithOperationID("listFollowers")),
//	    }, broute.WithPathParams(map[string]*schema.Schema{"userId": schema.Int()})),
//	}, broute.WithTimeout(10*time.Second))
//
//	lambda.Start(router.Handler())
//
// # Route Tree
//
// A [Namespace] groups children under a path segment and may declare path parameters, a before hook and an exception
// handler. A [Route] is a leaf with a method, a path segment, parameters and a handler. The router wraps the
// top-level nodes in an implicit root namespace and flattens the tree depth first into [Chain] values. The first
// chain whose method and joined path match the event handles it, so declaration order matters for overlapping paths.
//
// Paths use ":name" or "{name}" for parameters, optionally with a custom expression as in ":id(\d+)". Matching is
// case-insensitive and accepts a trailing slash.
//
// # Parameters
//
// Parameters are declared with [Path], [Query] and [Body] around a [schema.Schema]. Each scope is validated when the
// request enters it: first the path parameters of every namespace, outer to inner, each followed by that
// namespace's before hook, then the route's own parameters. Within a scope the sources are validated in the order
// path, query, body, and a name declared in more than one source ends up with the last value. Unknown fields are
// dropped, missing fields are rejected unless optional or defaulted, and all failures of a source are reported
// together in one validation error.
//
// # Middleware
//
// A [Middleware] is identified by its [MiddlewareKind]. Before hooks run in registration order; the first one to
// return a response skips the handler. After hooks run in reverse order over whatever response was produced,
// including responses rendered for handler errors and timeouts. Routes pass per-route settings to a middleware with
// [WithMetadata]. Handlers reach a middleware through [Router.FindMiddleware] or [FindMiddleware].
//
// # Errors
//
// All errors raised by the router are an [*Error] tagged with a [Kind]. Handlers raise application errors with
// [NewError], which the root scope renders verbatim with their own status:
//
//	return nil, broute.NewError(broute.CodeConflict, "ORDER_SHIPPED", "order was already shipped", nil)
//
// Everything else, a failed parameter schema included, is rendered as a 500 envelope holding the request id, the
// error name and its message. When the BROUTE_ERROR_SECRET environment variable is set the name,
// message and stack of such errors are attached encrypted, see [ErrorFormatter.DecryptDetail]. A namespace that
// wants to answer bad input with a 4xx does so in its exception handler:
//
//	broute.WithExceptionHandler(func(_ context.Context, rc *broute.RoutingContext, err error) (*broute.Response, error) {
//	    if verr, ok := broute.AsError(err); ok && verr.Kind() == broute.KindValidation {
//	        return rc.JSON(map[string]any{"fields": verr.Fields()}, broute.WithStatus(422))
//	    }
//	    return nil, nil
//	})
//
// # Timeouts
//
// A handler runs on its own goroutine and is raced against the router timeout and the deadline of the context,
// minus a small buffer. When the time runs out a [KindTimeout] error carrying the route is raised and the handler is
// abandoned: it is not cancelled and its eventual result is only logged.
package broute
