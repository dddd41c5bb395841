// Copyright 2025 The layerkit Authors. SPDX-License-Identifier: Apache-2.0

package layers

import (
	. "github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/context/initializers"
	"github.com/gomlx/gomlx/types/shapes"
	"github.com/layerkit/layerkit/chain"
)

const (
	// DenseWeightsName is the name of the dense kernel variable, shaped [inputDim, hiddenDims].
	DenseWeightsName = "weights"

	// DenseBiasesName is the name of the dense bias variable, shaped [hiddenDims].
	DenseBiasesName = "biases"
)

// DenseConfig is created with Dense, and finished with Done.
type DenseConfig struct {
	commonConfig
	hiddenDims   int
	weight, bias *graph.Node
}

// Dense configures a learnable linear transformation plus bias: x·W + b.
//
// If the input has shape [<batch dimensions...>, inputDim], the output will have shape
// [<batch dimensions...>, hiddenDims]. Inputs of rank > 2 are applied "time distributed":
// all leading axes are flattened into one, and restored afterwards.
//
// Weights are initialized with Glorot (Xavier) uniform, biases with zeros.
func Dense(ctx *context.Context, hiddenDims int) *DenseConfig {
	return &DenseConfig{
		commonConfig: commonConfig{ctx: ctx, name: "dense"},
		hiddenDims:   hiddenDims,
	}
}

// Name overrides the default layer name "dense".
func (c *DenseConfig) Name(name string) *DenseConfig {
	c.name = name
	return c
}

// Summary enables or disables the summaries of the weights and biases.
func (c *DenseConfig) Summary(summary bool) *DenseConfig {
	c.summary = &summary
	return c
}

// Weight sets a given kernel, shaped [inputDim, hiddenDims], instead of creating a variable.
func (c *DenseConfig) Weight(weight *graph.Node) *DenseConfig {
	c.weight = weight
	return c
}

// Bias sets a given bias, shaped [hiddenDims], instead of creating a variable.
func (c *DenseConfig) Bias(bias *graph.Node) *DenseConfig {
	c.bias = bias
	return c
}

// Done returns the configured layer.
func (c *DenseConfig) Done() *chain.Layer {
	if c.hiddenDims <= 0 {
		Panicf("dense layer requires hiddenDims > 0, got %d", c.hiddenDims)
	}
	cfg := *c
	return chain.New(c.ctx, c.name, cfg.build, c.options()...)
}

func (c *DenseConfig) build(ctx *context.Context, x *graph.Node) *graph.Node {
	g := x.Graph()
	inputShape := x.Shape()
	rank := inputShape.Rank()
	if rank == 0 {
		Panicf("dense layer needs an input of rank >= 1, got %s", inputShape)
	}
	inputDim := inputShape.Dimensions[rank-1]
	if rank > 2 {
		// Time distributed: collapse the leading axes.
		x = graph.Reshape(x, inputShape.Size()/inputDim, inputDim)
	} else if rank == 1 {
		x = graph.InsertAxes(x, 0)
	}

	weight := c.weight
	if weight == nil {
		weight = ctx.WithInitializer(initializers.GlorotUniformFn(ctx)).
			VariableWithShape(DenseWeightsName, shapes.Make(inputShape.DType, inputDim, c.hiddenDims)).
			ValueGraph(g)
	} else if err := weight.Shape().CheckDims(inputDim, c.hiddenDims); err != nil {
		Panicf("dense layer given weight: %v", err)
	}
	bias := c.bias
	if bias == nil {
		bias = ctx.WithInitializer(initializers.Zero).
			VariableWithShape(DenseBiasesName, shapes.Make(inputShape.DType, c.hiddenDims)).
			ValueGraph(g)
	} else if err := bias.Shape().CheckDims(c.hiddenDims); err != nil {
		Panicf("dense layer given bias: %v", err)
	}

	output := graph.Add(graph.Dot(x, weight), graph.InsertAxes(bias, 0))

	// Restore the leading axes.
	outputDims := make([]int, rank)
	copy(outputDims, inputShape.Dimensions[:rank-1])
	outputDims[rank-1] = c.hiddenDims
	return graph.Reshape(output, outputDims...)
}
