// Copyright 2025 The layerkit Authors. SPDX-License-Identifier: Apache-2.0

package layers

import (
	"github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/layerkit/layerkit/chain"
)

// Reshape returns a layer that reshapes its input to dims. One of the dims can be -1,
// in which case it is inferred from the input size.
func Reshape(ctx *context.Context, dims []int, opts ...chain.Option) *chain.Layer {
	dims = append([]int(nil), dims...)
	return chain.New(ctx, "reshape", func(_ *context.Context, x *graph.Node) *graph.Node {
		return graph.Reshape(x, resolveDims(x.Shape().Size(), dims)...)
	}, defaultOptions(ctx, opts)...)
}
