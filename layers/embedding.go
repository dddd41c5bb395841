// Copyright 2025 The layerkit Authors. SPDX-License-Identifier: Apache-2.0

package layers

import (
	. "github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/context/initializers"
	"github.com/gomlx/gomlx/types/shapes"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/layerkit/layerkit/chain"
)

// EmbeddingMatrixName is the name of the variable holding the embedding table.
const EmbeddingMatrixName = "embedding_matrix"

// EmbeddingConfig is created with Embedding, and finished with Done.
type EmbeddingConfig struct {
	commonConfig
	vocabSize, dim int
	dtype          dtypes.DType
	matrix         *graph.Node
}

// Embedding configures a lookup layer: each integer of the input is replaced by a row of
// a [vocabSize, dim] table, so the output has one extra axis of size dim.
//
// The table is a variable initialized with Glorot (Xavier) uniform, unless one is given with
// EmbeddingConfig.Matrix. Values of the input must be in [0, vocabSize); no check is made.
func Embedding(ctx *context.Context, vocabSize, dim int) *EmbeddingConfig {
	return &EmbeddingConfig{
		commonConfig: commonConfig{ctx: ctx, name: "embedding"},
		vocabSize:    vocabSize,
		dim:          dim,
		dtype:        dtypes.Float32,
	}
}

// Name overrides the default layer name "embedding".
func (c *EmbeddingConfig) Name(name string) *EmbeddingConfig {
	c.name = name
	return c
}

// Summary enables or disables the summary of the embedding table.
func (c *EmbeddingConfig) Summary(summary bool) *EmbeddingConfig {
	c.summary = &summary
	return c
}

// DType of the embedding table. Default is Float32.
func (c *EmbeddingConfig) DType(dtype dtypes.DType) *EmbeddingConfig {
	c.dtype = dtype
	return c
}

// Matrix sets a given table, shaped [vocabSize, dim], instead of creating a variable.
// It must belong to the graph where the layer is called.
func (c *EmbeddingConfig) Matrix(matrix *graph.Node) *EmbeddingConfig {
	c.matrix = matrix
	return c
}

// Done returns the configured layer.
func (c *EmbeddingConfig) Done() *chain.Layer {
	if c.matrix != nil {
		if c.matrix.Rank() != 2 {
			Panicf("embedding matrix must be rank-2 [vocabSize, dim], got %s", c.matrix.Shape())
		}
		c.vocabSize = c.matrix.Shape().Dimensions[0]
		c.dim = c.matrix.Shape().Dimensions[1]
	} else if c.vocabSize <= 0 || c.dim <= 0 {
		Panicf("embedding requires vocabSize > 0 and dim > 0, got vocabSize=%d, dim=%d", c.vocabSize, c.dim)
	}
	cfg := *c
	return chain.New(c.ctx, c.name, cfg.build, c.options()...)
}

func (c *EmbeddingConfig) build(ctx *context.Context, x *graph.Node) *graph.Node {
	if !x.DType().IsInt() {
		Panicf("embedding requires integer inputs, got %s", x.Shape())
	}
	table := c.matrix
	if table == nil {
		ctx = ctx.WithInitializer(initializers.GlorotUniformFn(ctx))
		table = ctx.VariableWithShape(EmbeddingMatrixName, shapes.Make(c.dtype, c.vocabSize, c.dim)).ValueGraph(x.Graph())
	} else if table.Graph() != x.Graph() {
		Panicf("embedding matrix belongs to a different graph than the input")
	}
	// Gather takes the indices in the last axis.
	indices := graph.InsertAxes(x, -1)
	return graph.Gather(table, indices)
}
