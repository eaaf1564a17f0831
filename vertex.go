// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bigpregel

import "fmt"

// A Vertex is a single record of a partitioned graph: a globally unique
// id, a user value, and the vertex's activation state. A vertex is owned
// by exactly one worker at any time, and it is mutated only by its own
// Compute invocation.
type Vertex[K comparable, V any] struct {
	ID     K
	Value  V
	Active bool
}

// NewVertex returns a new, active vertex with the provided id and value.
func NewVertex[K comparable, V any](id K, value V) *Vertex[K, V] {
	return &Vertex[K, V]{ID: id, Value: value, Active: true}
}

// Activate marks the vertex active, so that it is computed in the
// next superstep regardless of whether it receives messages.
func (v *Vertex[K, V]) Activate() { v.Active = true }

// VoteToHalt marks the vertex halted. A halted vertex is skipped by
// subsequent supersteps until it receives a message, is explicitly
// activated, or the WakeAll bit is raised.
func (v *Vertex[K, V]) VoteToHalt() { v.Active = false }

// IsActive tells whether the vertex is active.
func (v *Vertex[K, V]) IsActive() bool { return v.Active }

func (v *Vertex[K, V]) String() string {
	state := "active"
	if !v.Active {
		state = "halted"
	}
	return fmt.Sprintf("vertex(%v %s): %v", v.ID, state, v.Value)
}

// A Program is the user-supplied update rule of a vertex-centric
// computation. Compute is invoked once per eligible vertex per
// superstep with the messages sent to it during the previous
// superstep. Compute may mutate the vertex, and affect other vertices
// only through the context's Send and AddVertex. The message slice is
// owned by the engine and is cleared after Compute returns.
type Program[K comparable, V, M any] interface {
	Compute(ctx *WorkerContext[K, V, M], v *Vertex[K, V], msgs []M)
}

// ComputeFunc adapts an ordinary function to a Program.
type ComputeFunc[K comparable, V, M any] func(ctx *WorkerContext[K, V, M], v *Vertex[K, V], msgs []M)

// Compute implements Program.
func (f ComputeFunc[K, V, M]) Compute(ctx *WorkerContext[K, V, M], v *Vertex[K, V], msgs []M) {
	f(ctx, v, msgs)
}
