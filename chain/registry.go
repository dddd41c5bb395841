// Copyright 2025 The layerkit Authors. SPDX-License-Identifier: Apache-2.0

package chain

import (
	"fmt"

	. "github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
)

// GraphParamLayerNames is the graph parameter, set at the root scope, holding the layer
// scopes already taken in a graph and the state of each layer called in it.
const GraphParamLayerNames = "layerkit_layer_names"

// nameRegistry tracks the layers called within one graph.
//
// It is kept per graph (and not per context) so that rebuilding the same model function
// for a new graph (e.g. training and evaluation graphs) yields the same names in the same
// order, and hence shares the variables.
type nameRegistry struct {
	taken  map[string]*Layer
	layers map[*Layer]*graphState
}

// graphState holds what a Layer knows about one graph it was called in.
type graphState struct {
	summaries    []*Node
	summaryAdded bool
}

func lookupRegistry(ctx *context.Context, g *Graph) *nameRegistry {
	root := ctx.InAbsPath(context.RootScope)
	if value, found := root.GetGraphParam(g, GraphParamLayerNames); found {
		if registry, ok := value.(*nameRegistry); ok {
			return registry
		}
	}
	return nil
}

func registryFor(ctx *context.Context, g *Graph) *nameRegistry {
	if registry := lookupRegistry(ctx, g); registry != nil {
		return registry
	}
	registry := &nameRegistry{
		taken:  make(map[string]*Layer),
		layers: make(map[*Layer]*graphState),
	}
	ctx.InAbsPath(context.RootScope).SetGraphParam(g, GraphParamLayerNames, registry)
	return registry
}

// enter returns the state of l in this graph. On the first call of l in the graph its
// scope is resolved or claimed.
func (r *nameRegistry) enter(l *Layer) *graphState {
	if state, found := r.layers[l]; found {
		return state
	}
	state := &graphState{}
	r.layers[l] = state
	if l.uniqueName == "" {
		l.uniqueName = r.unique(l, l.ctx, l.name)
	} else {
		r.claim(l, l.Scope())
	}
	return state
}

// unique returns name, or name suffixed with "_<n>", such that the resulting scope
// under ctx is not yet taken in this graph, and marks it as taken by l.
//
// If ctx creates variables (checked and not reusing), scopes that already hold variables
// are skipped too, since they belong to some other layer. A reusing context resolves
// names in call order, which maps a rebuilt model onto the variables of the first build.
func (r *nameRegistry) unique(l *Layer, ctx *context.Context, name string) string {
	creating := ctx.IsChecked() && !ctx.IsReuse()
	candidate := name
	for ii := 1; ; ii++ {
		scopeCtx := ctx.In(candidate)
		if r.taken[scopeCtx.Scope()] == nil && !(creating && hasVariables(scopeCtx)) {
			break
		}
		candidate = fmt.Sprintf("%s_%d", name, ii)
	}
	r.claim(l, ctx.In(candidate).Scope())
	return candidate
}

func (r *nameRegistry) claim(l *Layer, scope string) {
	if owner := r.taken[scope]; owner != nil && owner != l {
		Panicf("layer %s: scope %q was already taken in this graph by another layer", l, scope)
	}
	r.taken[scope] = l
}

func hasVariables(ctx *context.Context) bool {
	found := false
	ctx.EnumerateVariablesInScope(func(*context.Variable) { found = true })
	return found
}
