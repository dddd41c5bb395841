// Copyright 2025 The layerkit Authors. SPDX-License-Identifier: Apache-2.0

package layers

import (
	"github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/layers/activations"
	"github.com/layerkit/layerkit/chain"
)

// Identity returns a layer that returns its input unchanged (as a new node).
func Identity(ctx *context.Context, opts ...chain.Option) *chain.Layer {
	return chain.New(ctx, "identity", func(_ *context.Context, x *graph.Node) *graph.Node {
		return graph.Identity(x)
	}, defaultOptions(ctx, opts)...)
}

// Relu returns a layer applying the rectified linear unit, max(x, 0).
func Relu(ctx *context.Context, opts ...chain.Option) *chain.Layer {
	return chain.New(ctx, "relu", func(_ *context.Context, x *graph.Node) *graph.Node {
		return activations.Relu(x)
	}, defaultOptions(ctx, opts)...)
}

// Tanh returns a layer applying the hyperbolic tangent.
func Tanh(ctx *context.Context, opts ...chain.Option) *chain.Layer {
	return chain.New(ctx, "tanh", func(_ *context.Context, x *graph.Node) *graph.Node {
		return graph.Tanh(x)
	}, defaultOptions(ctx, opts)...)
}

// Activation returns a layer applying the activation of the given type.
func Activation(ctx *context.Context, activation activations.Type, opts ...chain.Option) *chain.Layer {
	return chain.New(ctx, activation.String(), func(_ *context.Context, x *graph.Node) *graph.Node {
		return activations.Apply(activation, x)
	}, defaultOptions(ctx, opts)...)
}

// Softmax returns a layer applying softmaxFn, or the softmax over the last axis if
// softmaxFn is nil.
func Softmax(ctx *context.Context, softmaxFn func(x *graph.Node) *graph.Node, opts ...chain.Option) *chain.Layer {
	if softmaxFn == nil {
		softmaxFn = func(x *graph.Node) *graph.Node { return graph.Softmax(x, -1) }
	}
	return chain.New(ctx, "softmax", func(_ *context.Context, x *graph.Node) *graph.Node {
		return softmaxFn(x)
	}, defaultOptions(ctx, opts)...)
}
