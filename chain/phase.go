// Copyright 2025 The layerkit Authors. SPDX-License-Identifier: Apache-2.0

package chain

import (
	. "github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
)

// Phase of the model: training or inference. It controls dropout-like layers.
type Phase int

const (
	// PhaseInfer disables dropout: keep probabilities are forced to 1.
	PhaseInfer Phase = iota

	// PhaseTrain enables dropout.
	PhaseTrain
)

// String implements fmt.Stringer.
func (p Phase) String() string {
	if p == PhaseTrain {
		return "train"
	}
	return "infer"
}

// graphParamTraining is the graph parameter GoMLX uses for Context.SetTraining and
// Context.IsTraining.
const graphParamTraining = "training"

// ParamPhase is the context parameter holding the context-wide phase, as a bool: true for
// training. It is set at the root scope by SetPhase.
const ParamPhase = "phase_training"

// SetPhase sets the context-wide phase, shared by every scope of ctx.
//
// A graph-specific setting, done with ctx.SetTraining(g, ...) (as the GoMLX trainer does),
// takes precedence. See IsTraining.
func SetPhase(ctx *context.Context, phase Phase) {
	ctx.InAbsPath(context.RootScope).SetParam(ParamPhase, phase == PhaseTrain)
}

// GetPhase returns the context-wide phase. It defaults to PhaseInfer.
func GetPhase(ctx *context.Context) Phase {
	if context.GetParamOr(ctx, ParamPhase, false) {
		return PhaseTrain
	}
	return PhaseInfer
}

// IsTraining returns whether graph g is built for training: the value given to
// ctx.SetTraining(g, ...) if it was set for g, otherwise the context-wide phase.
func IsTraining(ctx *context.Context, g *Graph) bool {
	if value, found := ctx.GetGraphParam(g, graphParamTraining); found {
		if training, ok := value.(bool); ok {
			return training
		}
	}
	return GetPhase(ctx) == PhaseTrain
}

// KeepProbability returns keepProb if graph g is being built for training, or 1.0 otherwise.
// keepProb must be in (0, 1].
func KeepProbability(ctx *context.Context, g *Graph, keepProb float64) float64 {
	if keepProb <= 0 || keepProb > 1 {
		Panicf("keep probability must be in the range (0, 1], got %g", keepProb)
	}
	if !IsTraining(ctx, g) {
		return 1.0
	}
	return keepProb
}
