// Copyright 2025 The layerkit Authors. SPDX-License-Identifier: Apache-2.0

package layers

import (
	. "github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/context/initializers"
	"github.com/gomlx/gomlx/ml/layers/activations"
	"github.com/gomlx/gomlx/ml/layers/lstm"
	"github.com/gomlx/gomlx/types/shapes"
	"github.com/layerkit/layerkit/chain"
)

// CellType selects the recurrent cell used by Recurrent.
type CellType int

const (
	// CellBasic is the vanilla RNN cell: h_t = activation(x_t·W_x + h_{t-1}·W_h + b).
	CellBasic CellType = iota

	// CellLSTM is a long short-term memory cell, see package lstm.
	CellLSTM
)

// String implements fmt.Stringer.
func (c CellType) String() string {
	switch c {
	case CellBasic:
		return "basic"
	case CellLSTM:
		return "lstm"
	default:
		return "unknown"
	}
}

const (
	// RecurrentInputKernelName is the variable of the basic cell projecting the inputs, shaped [features, hiddenDims].
	RecurrentInputKernelName = "input_kernel"

	// RecurrentStateKernelName is the variable of the basic cell projecting the previous state, shaped [hiddenDims, hiddenDims].
	RecurrentStateKernelName = "recurrent_kernel"

	// RecurrentBiasName is the variable of the basic cell bias, shaped [hiddenDims].
	RecurrentBiasName = "bias"

	// DefaultRecurrentHiddenDims is used if RecurrentConfig.HiddenDims is not set.
	DefaultRecurrentHiddenDims = 128
)

// DecoderFn generates the input of the next step of a decoding recurrent layer from the output of
// the previous step. It receives prevOutput shaped [batchSize, hiddenDims] and must return
// [batchSize, features], where features is the size of the first step input.
type DecoderFn func(ctx *context.Context, prevOutput *graph.Node) *graph.Node

// RecurrentConfig is created with Recurrent, and finished with Done.
type RecurrentConfig struct {
	commonConfig
	hiddenDims       int
	cell             CellType
	activation       activations.Type
	sequenceLength   *graph.Node
	initialState     *graph.Node
	keepProb         float64
	returnFinalState bool
	decoder          DecoderFn
	decoderSteps     int
}

// Recurrent configures a recurrent layer unrolled over the sequence axis.
//
// The input is shaped [batchSize, sequenceLength, features] and the output
// [batchSize, sequenceLength, hiddenDims], or [batchSize, hiddenDims] if ReturnFinalState is set.
//
// Since graphs have static shapes, each step of the sequence becomes its own set of nodes.
func Recurrent(ctx *context.Context) *RecurrentConfig {
	return &RecurrentConfig{
		commonConfig: commonConfig{ctx: ctx, name: "recurrent"},
		hiddenDims:   DefaultRecurrentHiddenDims,
		cell:         CellBasic,
		activation:   activations.TypeTanh,
		keepProb:     1.0,
	}
}

// Name overrides the default layer name "recurrent".
func (c *RecurrentConfig) Name(name string) *RecurrentConfig {
	c.name = name
	return c
}

// Summary enables or disables the summaries of the cell variables.
func (c *RecurrentConfig) Summary(summary bool) *RecurrentConfig {
	c.summary = &summary
	return c
}

// HiddenDims sets the size of the state and of the outputs. Default is 128.
func (c *RecurrentConfig) HiddenDims(hiddenDims int) *RecurrentConfig {
	c.hiddenDims = hiddenDims
	return c
}

// Cell selects the recurrent cell. Default is CellBasic.
func (c *RecurrentConfig) Cell(cell CellType) *RecurrentConfig {
	c.cell = cell
	return c
}

// Activation of the basic cell. Default is tanh. Ignored by CellLSTM.
func (c *RecurrentConfig) Activation(activation activations.Type) *RecurrentConfig {
	c.activation = activation
	return c
}

// SequenceLength sets the length of each example of the batch, shaped [batchSize] with an
// integer dtype. Outputs past the length of an example are zero, and its state is kept unchanged.
func (c *RecurrentConfig) SequenceLength(lengths *graph.Node) *RecurrentConfig {
	c.sequenceLength = lengths
	return c
}

// InitialState sets the state before the first step, shaped [batchSize, hiddenDims]. Default is zeros.
// For CellLSTM it is used as the initial hidden state, and the cell state starts with zeros.
func (c *RecurrentConfig) InitialState(state *graph.Node) *RecurrentConfig {
	c.initialState = state
	return c
}

// KeepProb enables dropout of the inputs and of the outputs of the cell, during training only.
// Default is 1.0, no dropout.
func (c *RecurrentConfig) KeepProb(keepProb float64) *RecurrentConfig {
	c.keepProb = keepProb
	return c
}

// ReturnFinalState makes the layer return the last state, shaped [batchSize, hiddenDims],
// instead of all outputs.
func (c *RecurrentConfig) ReturnFinalState(returnFinalState bool) *RecurrentConfig {
	c.returnFinalState = returnFinalState
	return c
}

// Decoder turns the layer into a decoder that runs numSteps steps: the layer input is then the
// input of the first step, shaped [batchSize, features], and the input of each following step
// is generated by decoderFn from the previous output. Only supported by CellBasic.
func (c *RecurrentConfig) Decoder(decoderFn DecoderFn, numSteps int) *RecurrentConfig {
	if decoderFn == nil {
		Panicf("recurrent decoder requires a non-nil decoder function")
	}
	c.decoder = decoderFn
	c.decoderSteps = numSteps
	return c
}

// Done returns the configured layer.
func (c *RecurrentConfig) Done() *chain.Layer {
	if c.hiddenDims <= 0 {
		Panicf("recurrent layer requires hiddenDims > 0, got %d", c.hiddenDims)
	}
	if c.keepProb <= 0 || c.keepProb > 1 {
		Panicf("recurrent layer keepProb must be in (0, 1], got %g", c.keepProb)
	}
	if c.decoder != nil {
		if c.decoderSteps <= 0 {
			Panicf("recurrent decoder requires numSteps > 0, got %d", c.decoderSteps)
		}
		if c.cell != CellBasic {
			Panicf("recurrent decoder is only supported with CellBasic, got %s", c.cell)
		}
	}
	cfg := *c
	return chain.New(c.ctx, c.name, cfg.build, c.options()...)
}

func (c *RecurrentConfig) build(ctx *context.Context, x *graph.Node) *graph.Node {
	g := x.Graph()
	if c.decoder != nil {
		assertRank("recurrent decoder", x, 2)
	} else {
		assertRank("recurrent layer", x, 3)
	}
	batchSize := x.Shape().Dimensions[0]
	seqLen := c.decoderSteps
	if c.decoder == nil {
		seqLen = x.Shape().Dimensions[1]
	}
	if c.sequenceLength != nil {
		if !c.sequenceLength.DType().IsInt() {
			Panicf("recurrent layer sequence lengths must be integers, got %s", c.sequenceLength.Shape())
		}
		c.sequenceLength.AssertDims(batchSize)
	}
	if c.initialState != nil {
		c.initialState.AssertDims(batchSize, c.hiddenDims)
	}

	keep := chain.KeepProbability(ctx, g, c.keepProb)
	if keep < 1.0 && c.decoder == nil {
		x = graph.Mul(x, dropoutMask(ctx, g, x.Shape(), keep, true))
	}

	var outputs, finalState *graph.Node
	switch c.cell {
	case CellBasic:
		outputs, finalState = c.unrollBasic(ctx, x, batchSize, seqLen, keep)
	case CellLSTM:
		outputs, finalState = c.runLSTM(ctx, x, batchSize, seqLen)
	default:
		Panicf("recurrent layer got unknown cell type %d", c.cell)
	}

	if c.returnFinalState {
		return finalState
	}
	if c.sequenceLength != nil {
		valid := graph.BroadcastToDims(graph.InsertAxes(sequenceMask(c.sequenceLength, batchSize, seqLen), -1),
			batchSize, seqLen, c.hiddenDims)
		outputs = graph.Where(valid, outputs, graph.ZerosLike(outputs))
	}
	if keep < 1.0 {
		outputs = graph.Mul(outputs, dropoutMask(ctx, g, outputs.Shape(), keep, true))
	}
	return outputs
}

// sequenceMask returns a boolean mask shaped [batchSize, seqLen], true where the position is
// before the length of the example.
func sequenceMask(lengths *graph.Node, batchSize, seqLen int) *graph.Node {
	positions := graph.Iota(lengths.Graph(), shapes.Make(lengths.DType(), batchSize, seqLen), 1)
	limits := graph.BroadcastToDims(graph.InsertAxes(lengths, -1), batchSize, seqLen)
	return graph.LessThan(positions, limits)
}

// unrollBasic runs the basic cell over the sequence, returning all outputs [batchSize, seqLen, hiddenDims]
// and the final state [batchSize, hiddenDims].
func (c *RecurrentConfig) unrollBasic(ctx *context.Context, x *graph.Node, batchSize, seqLen int, keep float64) (outputs, finalState *graph.Node) {
	g := x.Graph()
	dtype := x.DType()
	features := x.Shape().Dimensions[x.Rank()-1]
	hidden := c.hiddenDims

	glorotCtx := ctx.WithInitializer(initializers.GlorotUniformFn(ctx))
	inputKernel := glorotCtx.VariableWithShape(RecurrentInputKernelName, shapes.Make(dtype, features, hidden)).ValueGraph(g)
	stateKernel := glorotCtx.VariableWithShape(RecurrentStateKernelName, shapes.Make(dtype, hidden, hidden)).ValueGraph(g)
	bias := ctx.WithInitializer(initializers.Zero).
		VariableWithShape(RecurrentBiasName, shapes.Make(dtype, hidden)).ValueGraph(g)
	bias = graph.InsertAxes(bias, 0)

	// Project the whole sequence at once, if it is known upfront.
	var projX *graph.Node
	if c.decoder == nil {
		projX = graph.Einsum("bsf,fh->bsh", x, inputKernel)
	}

	state := c.initialState
	if state == nil {
		state = graph.Zeros(g, shapes.Make(dtype, batchSize, hidden))
	}
	var valid *graph.Node
	if c.sequenceLength != nil {
		valid = sequenceMask(c.sequenceLength, batchSize, seqLen)
	}

	stepInput := x
	stepOutputs := make([]*graph.Node, seqLen)
	for step := range seqLen {
		var proj *graph.Node
		if projX != nil {
			proj = graph.Reshape(graph.Slice(projX, graph.AxisRange(), graph.AxisElem(step)), batchSize, hidden)
		} else {
			if step > 0 {
				stepInput = c.decoder(ctx, stepOutputs[step-1])
				stepInput.AssertDims(batchSize, features)
			}
			if keep < 1.0 {
				stepInput = graph.Mul(stepInput, dropoutMask(ctx, g, stepInput.Shape(), keep, true))
			}
			proj = graph.Dot(stepInput, inputKernel)
		}
		newState := activations.Apply(c.activation, graph.Add(graph.Add(proj, graph.Dot(state, stateKernel)), bias))
		if valid != nil {
			// State is frozen past the end of the sequence.
			stepValid := graph.BroadcastToDims(graph.Slice(valid, graph.AxisRange(), graph.AxisElem(step)), batchSize, hidden)
			newState = graph.Where(stepValid, newState, state)
		}
		stepOutputs[step] = newState
		state = newState
	}
	return graph.Stack(stepOutputs, 1), state
}

// runLSTM runs the cell from package lstm over the whole padded sequence, returning all outputs
// [batchSize, seqLen, hiddenDims] and the final hidden state [batchSize, hiddenDims].
//
// The cell only looks backwards, so padding doesn't change the outputs of valid positions:
// they are masked by the caller, and the final state is taken at the last valid position.
func (c *RecurrentConfig) runLSTM(ctx *context.Context, x *graph.Node, batchSize, seqLen int) (outputs, finalState *graph.Node) {
	hidden := c.hiddenDims
	cell := lstm.New(ctx.WithInitializer(initializers.GlorotUniformFn(ctx)), x, hidden)
	if c.initialState != nil {
		h0 := graph.InsertAxes(c.initialState, 0)
		cell = cell.InitialStates(h0, graph.ZerosLike(h0))
	}
	allHidden, lastHidden, _ := cell.Done()
	// allHidden: [seqLen, numDirections=1, batchSize, hidden].
	outputs = graph.TransposeAllDims(graph.Reshape(allHidden, seqLen, batchSize, hidden), 1, 0, 2)
	finalState = graph.Reshape(lastHidden, batchSize, hidden)
	if c.sequenceLength != nil {
		finalState = stateAtLength(outputs, c.sequenceLength, c.initialState)
	}
	return
}

// stateAtLength returns outputs[b, lengths[b]-1, :] for each example, shaped [batchSize, hiddenDims].
// Examples of length 0 get the initial state, or zeros if it is nil.
func stateAtLength(outputs, lengths, initialState *graph.Node) *graph.Node {
	dims := outputs.Shape().Dimensions
	batchSize, seqLen, hidden := dims[0], dims[1], dims[2]
	last := graph.OneHot(graph.AddScalar(lengths, -1), seqLen, outputs.DType())
	last = graph.BroadcastToDims(graph.InsertAxes(last, -1), batchSize, seqLen, hidden)
	state := graph.ReduceSum(graph.Mul(outputs, last), 1)
	if initialState == nil {
		initialState = graph.ZerosLike(state)
	}
	nonEmpty := graph.GreaterThan(lengths, graph.ScalarZero(lengths.Graph(), lengths.DType()))
	nonEmpty = graph.BroadcastToDims(graph.InsertAxes(nonEmpty, -1), batchSize, hidden)
	return graph.Where(nonEmpty, state, initialState)
}
