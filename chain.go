package broute

import (
	"slices"

	"github.com/advdv/broute/internal/pathpattern"
	"github.com/samber/lo"
)

// Chain is one root-to-leaf path through the route tree: the enclosing namespaces, outermost first, and the route.
type Chain struct {
	Namespaces []*Namespace
	Route      *Route
}

// Flatten walks the nodes depth first, children in declaration order, and returns one chain per route.
func Flatten(nodes ...Node) (chains []Chain) {
	for _, n := range nodes {
		chains = append(chains, flatten(nil, n)...)
	}

	return chains
}

func flatten(ancestors []*Namespace, n Node) []Chain {
	switch nt := n.(type) {
	case *Route:
		return []Chain{{Namespaces: slices.Clone(ancestors), Route: nt}}
	case *Namespace:
		var chains []Chain
		for _, child := range nt.children {
			chains = append(chains, flatten(append(slices.Clone(ancestors), nt), child)...)
		}

		return chains
	default:
		return nil
	}
}

// Path joins the path segments of every scope in the chain.
func (c Chain) Path() string {
	segs := lo.Map(c.Namespaces, func(ns *Namespace, _ int) string { return ns.path })
	return pathpattern.Join(append(segs, c.Route.path)...)
}

// Method returns the route's method.
func (c Chain) Method() string { return c.Route.method }

// Params returns every parameter that applies to the chain, namespace parameters first. A route parameter with the
// same name as a namespace parameter replaces it.
func (c Chain) Params() Params {
	ps := Params{}
	for _, ns := range c.Namespaces {
		for name, p := range ns.Params() {
			ps[name] = p
		}
	}

	for name, p := range c.Route.params {
		ps[name] = p
	}

	return ps
}
