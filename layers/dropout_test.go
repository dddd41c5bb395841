package layers

import (
	"testing"

	"github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/graph/graphtest"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/types/shapes"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/layerkit/layerkit/chain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDropout(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ones := func(g *graph.Graph) *graph.Node {
		return graph.Ones(g, shapes.Make(dtypes.Float32, 8, 16))
	}

	t.Run("Infer", func(t *testing.T) {
		ctx := context.New()
		got := context.ExecOnce(backend, ctx, func(ctx *context.Context, g *graph.Graph) *graph.Node {
			return Dropout(ctx, 0.5).Call(ones(g))
		})
		for _, row := range got.Value().([][]float32) {
			for _, v := range row {
				require.Equal(t, float32(1), v)
			}
		}
	})

	t.Run("Train", func(t *testing.T) {
		ctx := context.New()
		chain.SetPhase(ctx, chain.PhaseTrain)
		got := context.ExecOnce(backend, ctx, func(ctx *context.Context, g *graph.Graph) *graph.Node {
			return Dropout(ctx, 0.5).Call(ones(g))
		})
		var kept int
		for _, row := range got.Value().([][]float32) {
			for _, v := range row {
				require.Contains(t, []float32{0, 2}, v)
				if v != 0 {
					kept++
				}
			}
		}
		// 128 values: at least a few of each are expected.
		assert.Greater(t, kept, 0)
		assert.Less(t, kept, 128)
	})

	t.Run("KeepAll", func(t *testing.T) {
		ctx := context.New()
		chain.SetPhase(ctx, chain.PhaseTrain)
		got := context.ExecOnce(backend, ctx, func(ctx *context.Context, g *graph.Graph) *graph.Node {
			return Dropout(ctx, 1.0).Call(ones(g))
		})
		assert.Equal(t, float32(1), got.Value().([][]float32)[3][5])
	})
}

func TestWordDropout(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := context.New()
	chain.SetPhase(ctx, chain.PhaseTrain)
	got := context.ExecOnce(backend, ctx, func(ctx *context.Context, g *graph.Graph) *graph.Node {
		return WordDropout(ctx, 0.5).Call(graph.Ones(g, shapes.Make(dtypes.Float32, 4, 10, 3)))
	})
	var droppedWords int
	for _, example := range got.Value().([][][]float32) {
		for _, word := range example {
			// Whole words are dropped, and kept words are not rescaled.
			require.Contains(t, []float32{0, 1}, word[0])
			assert.Equal(t, []float32{word[0], word[0], word[0]}, word)
			if word[0] == 0 {
				droppedWords++
			}
		}
	}
	assert.Greater(t, droppedWords, 0)
	assert.Less(t, droppedWords, 40)

	_ = context.ExecOnce(backend, ctx, func(ctx *context.Context, g *graph.Graph) *graph.Node {
		x := graph.Ones(g, shapes.Make(dtypes.Float32, 4, 10))
		assert.Panics(t, func() { WordDropout(ctx, 0.5).Call(x) })
		return x
	})
}
