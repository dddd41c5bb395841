// Copyright 2025 The layerkit Authors. SPDX-License-Identifier: Apache-2.0

package layers

import (
	"slices"

	. "github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/layerkit/layerkit/chain"
)

// CostSummaryName is the summary logged by MeanLossByExample.
const CostSummaryName = "cost"

// CrossEntropy returns a layer that takes logits shaped [..., numClasses] and returns the
// softmax cross-entropy against the sparse target, shaped like the logits without the last axis.
//
// target holds integer class ids. If its rank doesn't match, it is reshaped to the leading
// dimensions of the logits. Class 0 is padding: its positions have a loss of 0.
func CrossEntropy(ctx *context.Context, target *graph.Node, opts ...chain.Option) *chain.Layer {
	if target == nil {
		Panicf("cross entropy requires a target")
	}
	return chain.New(ctx, "cross_entropy", func(_ *context.Context, logits *graph.Node) *graph.Node {
		if logits.Rank() < 2 {
			Panicf("cross entropy requires logits of rank >= 2, got %s", logits.Shape())
		}
		if !target.DType().IsInt() {
			Panicf("cross entropy requires integer targets, got %s", target.Shape())
		}
		leadingDims := logits.Shape().Dimensions[:logits.Rank()-1]
		labels := target
		if !slices.Equal(labels.Shape().Dimensions, leadingDims) {
			labels = graph.Reshape(labels, leadingDims...)
		}
		numClasses := logits.Shape().Dimensions[logits.Rank()-1]
		logProbs := graph.LogSoftmax(logits)
		loss := graph.Neg(graph.ReduceSum(
			graph.Mul(graph.OneHot(labels, numClasses, logits.DType()), logProbs),
			logits.Rank()-1))
		mask := graph.NotEqual(labels, graph.ScalarZero(labels.Graph(), labels.DType()))
		return graph.Where(mask, loss, graph.ZerosLike(loss))
	}, defaultOptions(ctx, opts)...)
}

// SigmoidCrossEntropy returns a layer that takes logits and returns the element-wise sigmoid
// cross-entropy against target, shaped like the logits. Target values are probabilities
// in [0, 1], and are converted to the dtype of the logits.
//
// It is computed as softplus(x) - x*z, which equals max(x, 0) - x*z + log(1 + exp(-|x|)).
func SigmoidCrossEntropy(ctx *context.Context, target *graph.Node, opts ...chain.Option) *chain.Layer {
	if target == nil {
		Panicf("sigmoid cross entropy requires a target")
	}
	return chain.New(ctx, "sigmoid_cross_entropy", func(_ *context.Context, logits *graph.Node) *graph.Node {
		z := graph.ConvertDType(target, logits.DType())
		if !slices.Equal(z.Shape().Dimensions, logits.Shape().Dimensions) {
			z = graph.Reshape(z, logits.Shape().Dimensions...)
		}
		return graph.Sub(graph.Softplus(logits), graph.Mul(logits, z))
	}, defaultOptions(ctx, opts)...)
}

// MeanLossByExample returns a layer that takes per-position losses shaped [batchSize, seqLen]
// and returns the scalar mean over examples of the sum of each example's losses divided by its
// length, given by sequenceLength shaped [batchSize].
//
// The result is always logged as the "cost" summary.
func MeanLossByExample(ctx *context.Context, sequenceLength *graph.Node, opts ...chain.Option) *chain.Layer {
	if sequenceLength == nil {
		Panicf("mean loss by example requires the sequence lengths")
	}
	return chain.New(ctx, "mean_loss_by_example", func(_ *context.Context, loss *graph.Node) *graph.Node {
		assertRank("mean loss by example", loss, 2)
		sequenceLength.AssertDims(loss.Shape().Dimensions[0])
		perExample := graph.ReduceSum(loss, 1)
		perExample = graph.Div(perExample, graph.ConvertDType(sequenceLength, loss.DType()))
		return chain.Summary(CostSummaryName, graph.ReduceAllMean(perExample))
	}, defaultOptions(ctx, opts)...)
}
