package layers

import (
	"testing"

	"github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/graph/graphtest"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/layers/activations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/gomlx/gomlx/backends/default"
)

func TestResolveDims(t *testing.T) {
	assert.Equal(t, []int{2, 3}, resolveDims(6, []int{2, 3}))
	assert.Equal(t, []int{2, 3}, resolveDims(6, []int{-1, 3}))
	assert.Equal(t, []int{6}, resolveDims(6, []int{-1}))
	assert.Equal(t, []int{1, 6, 1}, resolveDims(6, []int{1, -1, 1}))
	assert.Panics(t, func() { resolveDims(6, []int{-1, -1}) })
	assert.Panics(t, func() { resolveDims(6, []int{4, -1}) })
	assert.Panics(t, func() { resolveDims(6, []int{2, 2}) })
	assert.Panics(t, func() { resolveDims(6, []int{0, 6}) })
}

func TestActivations(t *testing.T) {
	ctx := context.New()
	graphtest.RunTestGraphFn(t, "Activations", func(g *graph.Graph) (inputs, outputs []*graph.Node) {
		x := graph.Const(g, []float32{-1, 0, 2})
		inputs = []*graph.Node{x}
		outputs = []*graph.Node{
			Identity(ctx).Call(x),
			Relu(ctx).Call(x),
			Tanh(ctx).Call(graph.ZerosLike(x)),
			Softmax(ctx, nil).Call(graph.ZerosLike(x)),
			Softmax(ctx, func(x *graph.Node) *graph.Node { return graph.MulScalar(x, 2) }).Call(x),
			Activation(ctx, activations.TypeRelu).Call(x),
		}
		return
	}, []any{
		[]float32{-1, 0, 2},
		[]float32{0, 0, 2},
		[]float32{0, 0, 0},
		[]float32{1.0 / 3, 1.0 / 3, 1.0 / 3},
		[]float32{-2, 0, 4},
		[]float32{0, 0, 2},
	}, 1e-4)
}

func TestActivationNames(t *testing.T) {
	ctx := context.New()
	assert.Equal(t, "relu", Relu(ctx).Name())
	assert.Equal(t, "tanh", Tanh(ctx).Name())
	assert.Equal(t, "identity", Identity(ctx).Name())
	assert.Equal(t, "swish", Activation(ctx, activations.TypeSwish).Name())
}

func TestReshape(t *testing.T) {
	ctx := context.New()
	graphtest.RunTestGraphFn(t, "Reshape", func(g *graph.Graph) (inputs, outputs []*graph.Node) {
		x := graph.Const(g, [][]float32{{1, 2, 3}, {4, 5, 6}})
		inputs = []*graph.Node{x}
		outputs = []*graph.Node{
			Reshape(ctx, []int{-1}).Call(x),
			Reshape(ctx, []int{3, -1}).Call(x),
		}
		return
	}, []any{
		[]float32{1, 2, 3, 4, 5, 6},
		[][]float32{{1, 2}, {3, 4}, {5, 6}},
	}, -1)
}

func TestSummaryParam(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := context.New()
	ctx.SetParam(ParamSummary, true)
	var layerSummaries, overriddenSummaries int
	_ = context.ExecOnce(backend, ctx, func(ctx *context.Context, g *graph.Graph) *graph.Node {
		x := graph.Const(g, [][]float32{{1, 2}})
		withSummary := Dense(ctx, 2).Done()
		withoutSummary := Dense(ctx, 2).Summary(false).Done()
		x = withoutSummary.Call(withSummary.Call(x))
		layerSummaries = len(withSummary.Summaries(g))
		overriddenSummaries = len(withoutSummary.Summaries(g))
		return x
	})
	assert.Equal(t, 2, layerSummaries)
	require.Equal(t, 0, overriddenSummaries)
}
