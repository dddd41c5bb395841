// Copyright 2025 The layerkit Authors. SPDX-License-Identifier: Apache-2.0

package chain

import (
	. "github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/graph"
)

// Pipeline applies its appliers in order. It is itself an Applier, so pipelines nest.
type Pipeline []Applier

// Sequence creates a Pipeline from the given appliers.
func Sequence(appliers ...Applier) Pipeline {
	return Pipeline(appliers)
}

// Call implements Applier.
func (p Pipeline) Call(x *Node) *Node {
	for ii, applier := range p {
		if applier == nil {
			Panicf("pipeline element #%d is nil", ii)
		}
		x = applier.Call(x)
	}
	return x
}

// Then returns a new Pipeline with next appended.
func (p Pipeline) Then(next ...Applier) Pipeline {
	out := make(Pipeline, 0, len(p)+len(next))
	out = append(out, p...)
	return append(out, next...)
}

// Chain applies the appliers to x from left to right: Chain(x, a, b) == b.Call(a.Call(x)).
func Chain(x *Node, appliers ...Applier) *Node {
	return Pipeline(appliers).Call(x)
}

// FnApplier adapts a plain graph function, without variables or scope, to an Applier.
type FnApplier func(x *Node) *Node

// Call implements Applier.
func (fn FnApplier) Call(x *Node) *Node {
	return fn(x)
}
