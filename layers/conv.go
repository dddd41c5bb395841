// Copyright 2025 The layerkit Authors. SPDX-License-Identifier: Apache-2.0

package layers

import (
	. "github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	mllayers "github.com/gomlx/gomlx/ml/layers"
	"github.com/gomlx/gomlx/ml/layers/activations"
	"github.com/layerkit/layerkit/chain"
)

// Conv1DConfig is created with Conv1D, and finished with Done.
type Conv1DConfig struct {
	commonConfig
	filters, kernelSize, dilation int
	activation                    activations.Type
}

// Conv1D configures a 1D convolution over the sequence axis of an input shaped
// [batchSize, seqLen, channels]. The output is shaped [batchSize, seqLen, filters]:
// the input is padded so the sequence length is preserved.
func Conv1D(ctx *context.Context, filters, kernelSize int) *Conv1DConfig {
	return &Conv1DConfig{
		commonConfig: commonConfig{ctx: ctx, name: "conv1d"},
		filters:      filters,
		kernelSize:   kernelSize,
		dilation:     1,
		activation:   activations.TypeNone,
	}
}

// Name overrides the default layer name "conv1d".
func (c *Conv1DConfig) Name(name string) *Conv1DConfig {
	c.name = name
	return c
}

// Summary enables or disables the summaries of the kernel and bias.
func (c *Conv1DConfig) Summary(summary bool) *Conv1DConfig {
	c.summary = &summary
	return c
}

// Dilation sets the dilation rate of the kernel. Default is 1.
func (c *Conv1DConfig) Dilation(dilation int) *Conv1DConfig {
	c.dilation = dilation
	return c
}

// Activation applied to the output. Default is none.
func (c *Conv1DConfig) Activation(activation activations.Type) *Conv1DConfig {
	c.activation = activation
	return c
}

// Done returns the configured layer.
func (c *Conv1DConfig) Done() *chain.Layer {
	if c.filters <= 0 || c.kernelSize <= 0 || c.dilation <= 0 {
		Panicf("conv1d requires filters, kernelSize and dilation > 0, got %d, %d and %d",
			c.filters, c.kernelSize, c.dilation)
	}
	cfg := *c
	return chain.New(c.ctx, c.name, cfg.build, c.options()...)
}

func (c *Conv1DConfig) build(ctx *context.Context, x *graph.Node) *graph.Node {
	assertRank("conv1d", x, 3)
	output := mllayers.Convolution(ctx, x).
		CurrentScope().
		Filters(c.filters).
		KernelSize(c.kernelSize).
		Dilations(c.dilation).
		PadSame().
		Done()
	return activations.Apply(c.activation, output)
}

// Residual returns a layer that adds its input to the output of inner: x + inner(x).
// inner must preserve the shape of its input.
func Residual(ctx *context.Context, inner chain.Applier, opts ...chain.Option) *chain.Layer {
	if inner == nil {
		Panicf("residual requires an inner layer")
	}
	return chain.New(ctx, "residual", func(_ *context.Context, x *graph.Node) *graph.Node {
		y := inner.Call(x)
		if !y.Shape().Equal(x.Shape()) {
			Panicf("residual inner layer changed the shape from %s to %s", x.Shape(), y.Shape())
		}
		return graph.Add(x, y)
	}, defaultOptions(ctx, opts)...)
}

// Highway returns a highway layer: t·h(x) + (1-t)·x, where h(x) = relu(x·W_h + b_h) and the
// gate t = sigmoid(x·W_t + b_t). The output has the shape of the input.
func Highway(ctx *context.Context, opts ...chain.Option) *chain.Layer {
	return chain.New(ctx, "highway", func(ctx *context.Context, x *graph.Node) *graph.Node {
		if x.Rank() < 1 {
			Panicf("highway requires an input of rank >= 1, got %s", x.Shape())
		}
		dim := x.Shape().Dimensions[x.Rank()-1]
		hidden := activations.Relu(mllayers.DenseWithBias(ctx.In("hidden"), x, dim))
		gate := graph.Sigmoid(mllayers.DenseWithBias(ctx.In("gate"), x, dim))
		return graph.Add(graph.Mul(gate, hidden), graph.Mul(graph.OneMinus(gate), x))
	}, defaultOptions(ctx, opts)...)
}
