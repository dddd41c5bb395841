// Copyright 2025 The layerkit Authors. SPDX-License-Identifier: Apache-2.0

// Package chain turns plain graph-building functions into reusable, name-scoped layers
// that can be chained one after another.
//
// A Layer is a template: constructing it creates no variables. The first time it is
// called it picks a unique scope name (e.g. "dense", then "dense_1", ...) under the
// context it was created with, and runs the function in that scope. Later calls of
// the same Layer reuse the same variables.
//
// Example:
//
//	func ModelGraph(ctx *context.Context, wordIds *Node) *Node {
//		embed := layers.Embedding(ctx, 100, 32).Done()
//		return chain.Chain(wordIds, layers.Identity(ctx), embed)
//	}
//
// Chain(x, a, b) is the equivalent of `x >> a >> b` in languages with operator
// overloading.
package chain

import (
	"fmt"

	. "github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Fn is the graph-building function wrapped by a Layer.
// ctx is already scoped to the layer's unique scope.
type Fn func(ctx *context.Context, x *Node) *Node

// Applier is anything that can be applied to a node: a Layer, a Pipeline or an FnApplier.
type Applier interface {
	Call(x *Node) *Node
}

// Layer is a named, memoized wrapper over a Fn. Create it with New.
type Layer struct {
	ctx     *context.Context
	name    string
	fn      Fn
	summary bool

	// uniqueName is resolved on the first call, see Layer.Call.
	uniqueName string

	// created is set after the first call: from then on the layer's variables exist
	// and further calls run with ctx.Reuse().
	created bool
}

// Option configures a Layer in New.
type Option func(l *Layer)

// WithName overrides the layer name. The unique scope name is derived from it.
func WithName(name string) Option {
	return func(l *Layer) {
		if name != "" {
			l.name = name
		}
	}
}

// WithSummary enables the logging of the mean of each trainable variable of the layer.
// Summaries are added once per graph, the first time the layer is called in it.
func WithSummary(summary bool) Option {
	return func(l *Layer) {
		l.summary = summary
	}
}

// New creates a layer template named name, that will call fn under a unique scope
// inside ctx.
func New(ctx *context.Context, name string, fn Fn, opts ...Option) *Layer {
	if ctx == nil {
		Panicf("chain.New(%q) requires a non-nil context", name)
	}
	if fn == nil {
		Panicf("chain.New(%q) requires a non-nil function", name)
	}
	l := &Layer{
		ctx:  ctx,
		name: name,
		fn:   fn,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.name == "" {
		Panicf("chain.New() requires a non-empty layer name")
	}
	l.name = context.EscapeScopeName(l.name)
	return l
}

// Name returns the base name of the layer, as given to New or WithName.
func (l *Layer) Name() string { return l.name }

// UniqueName returns the scope name resolved on the first call, e.g. "dense_1".
// It is empty until the layer is called.
func (l *Layer) UniqueName() string { return l.uniqueName }

// Scope returns the full scope of the layer's variables, or "" if it was not called yet.
func (l *Layer) Scope() string {
	if l.uniqueName == "" {
		return ""
	}
	return l.ctx.In(l.uniqueName).Scope()
}

// Created returns whether the layer has been called at least once, and hence created its variables.
func (l *Layer) Created() bool { return l.created }

// Call applies the layer to x.
//
// The first call in each graph registers the layer's scope in that graph, so that
// other layers with the same name get different scopes. The first call ever picks
// the unique name; later graphs reuse it.
//
// The per-graph state lives in the graph parameters of the context, not in the Layer.
func (l *Layer) Call(x *Node) *Node {
	if x == nil {
		Panicf("layer %q called with a nil input", l.name)
	}
	g := x.Graph()
	state := registryFor(l.ctx, g).enter(l)

	ctx := l.ctx.In(l.uniqueName)
	if l.created {
		ctx = ctx.Reuse()
	}
	out := l.fn(ctx, x)
	if out == nil {
		Panicf("layer %q returned a nil node", l.uniqueName)
	}
	l.created = true
	klog.V(1).Infof("     %s shape %s -> %s", l.uniqueName, x.Shape(), out.Shape())

	if l.summary && !state.summaryAdded {
		state.summaries = addSummaries(ctx, g)
		state.summaryAdded = true
	}
	return out
}

// Variables returns the trainable variables in the layer's scope.
//
// It returns an error if the layer was not called yet, since variables are only created
// on the first call.
func (l *Layer) Variables() ([]*context.Variable, error) {
	if !l.created {
		return nil, errors.Errorf("layer %q: variables not yet created or undefined", l.name)
	}
	var vars []*context.Variable
	l.ctx.In(l.uniqueName).EnumerateVariablesInScope(func(v *context.Variable) {
		if v.Trainable {
			vars = append(vars, v)
		}
	})
	return vars, nil
}

// Summaries returns the summary nodes added for graph g, if any.
func (l *Layer) Summaries(g *Graph) []*Node {
	registry := lookupRegistry(l.ctx, g)
	if registry == nil {
		return nil
	}
	state, found := registry.layers[l]
	if !found {
		return nil
	}
	return state.summaries
}

// Then returns a Pipeline that applies l and then next.
func (l *Layer) Then(next ...Applier) Pipeline {
	return append(Pipeline{l}, next...)
}

// String implements fmt.Stringer.
func (l *Layer) String() string {
	if l.uniqueName == "" {
		return fmt.Sprintf("Layer(%s)", l.name)
	}
	return fmt.Sprintf("Layer(%s)", l.Scope())
}
