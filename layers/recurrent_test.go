package layers

import (
	"math"
	"testing"

	"github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/graph/graphtest"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/layers/activations"
	"github.com/gomlx/gomlx/types/shapes"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/layerkit/layerkit/chain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newSumContext returns a context where a basic recurrent cell with 1 feature and 1 hidden unit,
// and no activation, computes the cumulative sum of its inputs.
func newSumContext() *context.Context {
	ctx := context.New()
	scoped := ctx.In("recurrent")
	scoped.VariableWithValue(RecurrentInputKernelName, [][]float32{{1}})
	scoped.VariableWithValue(RecurrentStateKernelName, [][]float32{{1}})
	scoped.VariableWithValue(RecurrentBiasName, []float32{0})
	return ctx.Checked(false)
}

func sumRecurrent(ctx *context.Context) *RecurrentConfig {
	return Recurrent(ctx).HiddenDims(1).Activation(activations.TypeNone)
}

func TestRecurrentBasic(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	input := [][][]float32{{{1}, {2}, {3}}, {{1}, {1}, {1}}}

	t.Run("Outputs", func(t *testing.T) {
		got := context.ExecOnce(backend, newSumContext(), func(ctx *context.Context, g *graph.Graph) *graph.Node {
			return sumRecurrent(ctx).Done().Call(graph.Const(g, input))
		})
		assert.Equal(t, [][][]float32{{{1}, {3}, {6}}, {{1}, {2}, {3}}}, got.Value())
	})

	t.Run("SequenceLength", func(t *testing.T) {
		got := context.ExecOnce(backend, newSumContext(), func(ctx *context.Context, g *graph.Graph) *graph.Node {
			lengths := graph.Const(g, []int32{2, 3})
			return sumRecurrent(ctx).SequenceLength(lengths).Done().Call(graph.Const(g, input))
		})
		assert.Equal(t, [][][]float32{{{1}, {3}, {0}}, {{1}, {2}, {3}}}, got.Value())
	})

	t.Run("FinalState", func(t *testing.T) {
		got := context.ExecOnce(backend, newSumContext(), func(ctx *context.Context, g *graph.Graph) *graph.Node {
			lengths := graph.Const(g, []int32{2, 3})
			return sumRecurrent(ctx).SequenceLength(lengths).ReturnFinalState(true).Done().Call(graph.Const(g, input))
		})
		// The state of the first example is frozen after its 2 steps.
		assert.Equal(t, [][]float32{{3}, {3}}, got.Value())
	})

	t.Run("InitialState", func(t *testing.T) {
		got := context.ExecOnce(backend, newSumContext(), func(ctx *context.Context, g *graph.Graph) *graph.Node {
			initial := graph.Const(g, [][]float32{{10}, {0}})
			return sumRecurrent(ctx).InitialState(initial).Done().Call(graph.Const(g, input))
		})
		assert.Equal(t, [][][]float32{{{11}, {13}, {16}}, {{1}, {2}, {3}}}, got.Value())
	})

	t.Run("Decoder", func(t *testing.T) {
		got := context.ExecOnce(backend, newSumContext(), func(ctx *context.Context, g *graph.Graph) *graph.Node {
			feedBack := func(_ *context.Context, prevOutput *graph.Node) *graph.Node { return prevOutput }
			return sumRecurrent(ctx).Decoder(feedBack, 4).Done().Call(graph.Const(g, [][]float32{{1}}))
		})
		assert.Equal(t, [][][]float32{{{1}, {2}, {4}, {8}}}, got.Value())
	})

	t.Run("KeepProbInfer", func(t *testing.T) {
		ctx := newSumContext()
		chain.SetPhase(ctx, chain.PhaseTrain)
		got := context.ExecOnce(backend, ctx, func(ctx *context.Context, g *graph.Graph) *graph.Node {
			// A graph-specific setting wins over the context-wide phase.
			ctx.SetTraining(g, false)
			return sumRecurrent(ctx).KeepProb(0.5).Done().Call(graph.Const(g, input))
		})
		assert.Equal(t, [][][]float32{{{1}, {3}, {6}}, {{1}, {2}, {3}}}, got.Value())
	})

	t.Run("KeepProbTrain", func(t *testing.T) {
		ctx := newSumContext()
		chain.SetPhase(ctx, chain.PhaseTrain)
		got := context.ExecOnce(backend, ctx, func(ctx *context.Context, g *graph.Graph) *graph.Node {
			return sumRecurrent(ctx).KeepProb(0.5).Done().Call(graph.Const(g, input))
		})
		// Inputs and outputs are each either dropped or doubled: every output is a multiple
		// of 4, and hence never equal to the inference output.
		inferred := [][][]float32{{{1}, {3}, {6}}, {{1}, {2}, {3}}}
		for ii, example := range got.Value().([][][]float32) {
			for step, output := range example {
				assert.Zero(t, math.Mod(float64(output[0]), 4), "example %d step %d", ii, step)
				assert.NotEqual(t, inferred[ii][step][0], output[0])
			}
		}
	})
}

func TestRecurrentShapes(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := context.New()
	x := func(g *graph.Graph) *graph.Node { return graph.Ones(g, shapes.Make(dtypes.Float32, 2, 5, 3)) }

	got := context.ExecOnce(backend, ctx, func(ctx *context.Context, g *graph.Graph) *graph.Node {
		return Recurrent(ctx).Done().Call(x(g))
	})
	assert.Equal(t, []int{2, 5, DefaultRecurrentHiddenDims}, got.Shape().Dimensions)
	v := ctx.GetVariableByScopeAndName("/recurrent", RecurrentStateKernelName)
	require.NotNil(t, v)
	assert.Equal(t, []int{DefaultRecurrentHiddenDims, DefaultRecurrentHiddenDims}, v.Shape().Dimensions)

	got = context.ExecOnce(backend, ctx, func(ctx *context.Context, g *graph.Graph) *graph.Node {
		return Recurrent(ctx).Name("encoder").HiddenDims(4).ReturnFinalState(true).Done().Call(x(g))
	})
	assert.Equal(t, []int{2, 4}, got.Shape().Dimensions)

	assert.Panics(t, func() { Recurrent(ctx).HiddenDims(0).Done() })
	assert.Panics(t, func() { Recurrent(ctx).KeepProb(0).Done() })
	assert.Panics(t, func() { Recurrent(ctx).Decoder(nil, 3) })
	assert.Panics(t, func() {
		Recurrent(ctx).Decoder(func(_ *context.Context, x *graph.Node) *graph.Node { return x }, 0).Done()
	})
	assert.Panics(t, func() {
		Recurrent(ctx).Cell(CellLSTM).Decoder(func(_ *context.Context, x *graph.Node) *graph.Node { return x }, 3).Done()
	})
}

func TestRecurrentLSTM(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := context.New()
	got := context.ExecOnce(backend, ctx, func(ctx *context.Context, g *graph.Graph) *graph.Node {
		x := graph.Ones(g, shapes.Make(dtypes.Float32, 2, 4, 2))
		lengths := graph.Const(g, []int32{2, 4})
		return Recurrent(ctx).Cell(CellLSTM).HiddenDims(3).SequenceLength(lengths).Done().Call(x)
	})
	require.Equal(t, []int{2, 4, 3}, got.Shape().Dimensions)
	outputs := got.Value().([][][]float32)
	for step := 2; step < 4; step++ {
		assert.Equal(t, []float32{0, 0, 0}, outputs[0][step], "step %d past the sequence end must be zero", step)
	}
	assert.NotEqual(t, []float32{0, 0, 0}, outputs[1][3])
	assert.Equal(t, "lstm", CellLSTM.String())

	got = context.ExecOnce(backend, ctx, func(ctx *context.Context, g *graph.Graph) *graph.Node {
		x := graph.Ones(g, shapes.Make(dtypes.Float32, 2, 4, 2))
		lengths := graph.Const(g, []int32{2, 4})
		return Recurrent(ctx).Name("final").Cell(CellLSTM).HiddenDims(3).SequenceLength(lengths).
			ReturnFinalState(true).Done().Call(x)
	})
	assert.Equal(t, []int{2, 3}, got.Shape().Dimensions)
}

func TestStateAtLength(t *testing.T) {
	graphtest.RunTestGraphFn(t, "stateAtLength", func(g *graph.Graph) (inputs, outputs []*graph.Node) {
		states := graph.Const(g, [][][]float32{
			{{1, 1}, {2, 2}, {3, 3}},
			{{4, 4}, {5, 5}, {6, 6}},
			{{7, 7}, {8, 8}, {9, 9}},
		})
		lengths := graph.Const(g, []int32{2, 3, 0})
		initial := graph.Const(g, [][]float32{{0, 0}, {0, 0}, {-1, -1}})
		inputs = []*graph.Node{states, lengths}
		outputs = []*graph.Node{
			stateAtLength(states, lengths, nil),
			stateAtLength(states, lengths, initial),
		}
		return
	}, []any{
		[][]float32{{2, 2}, {6, 6}, {0, 0}},
		[][]float32{{2, 2}, {6, 6}, {-1, -1}},
	}, -1)
}
