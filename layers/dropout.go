// Copyright 2025 The layerkit Authors. SPDX-License-Identifier: Apache-2.0

package layers

import (
	"github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/types/shapes"
	"github.com/layerkit/layerkit/chain"
)

// dropoutMask returns a mask shaped like dims where each element is 1 with probability
// keepProb and 0 otherwise: floor(keepProb + U[0, 1)).
// If normalize is set, the kept values are 1/keepProb instead, to preserve the mean.
func dropoutMask(ctx *context.Context, g *graph.Graph, shape shapes.Shape, keepProb float64, normalize bool) *graph.Node {
	mask := graph.Floor(graph.AddScalar(ctx.RandomUniform(g, shape), keepProb))
	if normalize {
		mask = graph.MulScalar(mask, 1.0/keepProb)
	}
	return mask
}

// Dropout returns a layer that zeroes each element of its input with probability 1-keepProb,
// and scales the kept ones by 1/keepProb.
//
// It is only active when training (see chain.IsTraining): otherwise it returns its input.
func Dropout(ctx *context.Context, keepProb float64, opts ...chain.Option) *chain.Layer {
	return chain.New(ctx, "dropout", func(ctx *context.Context, x *graph.Node) *graph.Node {
		keep := chain.KeepProbability(ctx, x.Graph(), keepProb)
		if keep >= 1.0 {
			return x
		}
		return graph.Mul(x, dropoutMask(ctx, x.Graph(), x.Shape(), keep, true))
	}, defaultOptions(ctx, opts)...)
}

// WordDropout returns a layer that drops whole word vectors of an input shaped
// [batchSize, sequenceLength, embeddingDim]: each word is zeroed with probability 1-keepProb.
// Kept words are not rescaled.
//
// It is only active when training (see chain.IsTraining): otherwise it returns its input.
// It panics if the input is not rank-3: apply it after an Embedding.
func WordDropout(ctx *context.Context, keepProb float64, opts ...chain.Option) *chain.Layer {
	return chain.New(ctx, "word_dropout", func(ctx *context.Context, x *graph.Node) *graph.Node {
		assertRank("word dropout (use it after an embedding lookup)", x, 3)
		keep := chain.KeepProbability(ctx, x.Graph(), keepProb)
		if keep >= 1.0 {
			return x
		}
		dims := x.Shape().Dimensions
		maskShape := shapes.Make(x.DType(), dims[0], dims[1], 1)
		return graph.Mul(x, dropoutMask(ctx, x.Graph(), maskShape, keep, false))
	}, defaultOptions(ctx, opts)...)
}
