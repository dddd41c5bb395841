// Copyright 2025 The layerkit Authors. SPDX-License-Identifier: Apache-2.0

// Package layers is a catalog of chainable layers built on chain.Layer: embedding, recurrent,
// dense, dropout, activations and losses.
//
// Every constructor takes the parent context and returns a *chain.Layer (configurable layers
// return a builder, finished with Done). No variables are created until the layer is called.
//
// E.g.:
//
//	logits := chain.Chain(wordIds,
//		layers.Embedding(ctx, vocabSize, 32).Done(),
//		layers.WordDropout(ctx, 0.9),
//		layers.Recurrent(ctx).HiddenDims(64).SequenceLength(lengths).Done(),
//		layers.Dense(ctx, numClasses).Done())
//
// Dropout-like layers follow the phase of the graph, see chain.IsTraining.
package layers

import (
	. "github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/layerkit/layerkit/chain"
)

const (
	// ParamSummary context hyperparameter makes every layer created by this package
	// log summaries of its variables, unless configured otherwise. Default is false.
	ParamSummary = "layers_summary"
)

// defaultOptions returns the options derived from the context hyperparameters, to be
// prepended to the user given ones.
func defaultOptions(ctx *context.Context, opts []chain.Option) []chain.Option {
	all := make([]chain.Option, 0, len(opts)+1)
	if context.GetParamOr(ctx, ParamSummary, false) {
		all = append(all, chain.WithSummary(true))
	}
	return append(all, opts...)
}

// commonConfig holds the configuration shared by all builders in this package.
type commonConfig struct {
	ctx     *context.Context
	name    string
	summary *bool
}

func (c *commonConfig) options() []chain.Option {
	opts := []chain.Option{chain.WithName(c.name)}
	if c.summary != nil {
		opts = append(opts, chain.WithSummary(*c.summary))
	}
	return defaultOptions(c.ctx, opts)
}

// resolveDims replaces one -1 in dims by the dimension that makes the total size match size.
func resolveDims(size int, dims []int) []int {
	resolved := make([]int, len(dims))
	copy(resolved, dims)
	inferredAxis := -1
	known := 1
	for axis, dim := range dims {
		switch {
		case dim == -1:
			if inferredAxis != -1 {
				Panicf("only one dimension can be -1, got %v", dims)
			}
			inferredAxis = axis
		case dim <= 0:
			Panicf("invalid dimension %d in %v", dim, dims)
		default:
			known *= dim
		}
	}
	if inferredAxis != -1 {
		if known == 0 || size%known != 0 {
			Panicf("cannot infer the -1 dimension of %v for a size of %d", dims, size)
		}
		resolved[inferredAxis] = size / known
		known = size
	}
	if known != size {
		Panicf("dimensions %v have a size different from the input's size %d", dims, size)
	}
	return resolved
}

// assertRank panics if x doesn't have the wanted rank.
func assertRank(layerName string, x *graph.Node, rank int) {
	if x.Rank() != rank {
		Panicf("%s requires an input of rank %d, got shape %s", layerName, rank, x.Shape())
	}
}
