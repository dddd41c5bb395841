// Copyright 2025 The layerkit Authors. SPDX-License-Identifier: Apache-2.0

package chain

import (
	"fmt"

	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
)

// SummaryPrefix starts the log message of every summary node.
const SummaryPrefix = "summary: "

// addSummaries marks, for each trainable float variable in ctx's scope, the mean of
// its value to be logged whenever g runs.
func addSummaries(ctx *context.Context, g *Graph) []*Node {
	var summaries []*Node
	ctx.EnumerateVariablesInScope(func(v *context.Variable) {
		if !v.Trainable || !v.Shape().DType.IsFloat() {
			return
		}
		summaries = append(summaries, Summary(v.ParameterName(), ReduceAllMean(v.ValueGraph(g))))
	})
	return summaries
}

// Summary marks x to be logged under name every time its graph runs, and returns it.
// x is typically a scalar.
func Summary(name string, x *Node) *Node {
	x.SetLogged(fmt.Sprintf("%s%s", SummaryPrefix, name))
	return x
}
