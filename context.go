// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bigpregel

import (
	"context"

	"github.com/grailbio/bigpregel/metrics"
)

// StepInfo is the worker-wide state visible to compute code during a
// superstep. It is maintained by the engine; programs should treat it
// as read-only.
type StepInfo struct {
	// Rank is the rank of this worker; rank 0 is the coordinator.
	Rank int
	// NumWorkers is the number of cooperating workers.
	NumWorkers int
	// Phase is the current phase number, starting at 1.
	Phase int
	// Step is the current superstep number within the phase,
	// starting at 1.
	Step int
	// NumVertices is the global vertex count at the start of
	// the superstep.
	NumVertices int64
	// NumActive is the global active vertex count at the start of
	// the superstep.
	NumActive int64
	// StepMessages is the global number of messages delivered by
	// the previous superstep.
	StepMessages int64
	// Bits is the OR of the control bits raised by every worker in
	// the previous superstep. It is zero in the first superstep of a
	// phase.
	Bits Bits
	// Aggregated is the final aggregator value computed by the
	// previous superstep, or nil if there is none.
	Aggregated interface{}
	// Scope collects the worker's metrics.
	Scope *metrics.Scope
}

// An Envelope is a message addressed to the vertex with id Target.
type Envelope[K comparable, M any] struct {
	Target  K
	Payload M
}

// A WorkerContext is threaded through every Compute call. It exposes
// the superstep's global state and stages the outgoing effects of
// compute: messages, vertex additions and control bits. A
// WorkerContext is not safe for concurrent use; the engine gives each
// concurrent compute shard its own.
type WorkerContext[K comparable, V, M any] struct {
	context.Context
	info *StepInfo

	out   []Envelope[K, M]
	added []*Vertex[K, V]
	bits  Bits
}

// NewWorkerContext returns a new WorkerContext that reads global state
// from the provided info.
func NewWorkerContext[K comparable, V, M any](ctx context.Context, info *StepInfo) *WorkerContext[K, V, M] {
	return &WorkerContext[K, V, M]{Context: ctx, info: info}
}

// Rank returns the rank of the current worker.
func (w *WorkerContext[K, V, M]) Rank() int { return w.info.Rank }

// NumWorkers returns the number of workers participating in the job.
func (w *WorkerContext[K, V, M]) NumWorkers() int { return w.info.NumWorkers }

// Step returns the current superstep number, starting at 1 in every phase.
func (w *WorkerContext[K, V, M]) Step() int { return w.info.Step }

// Phase returns the current phase number, starting at 1.
func (w *WorkerContext[K, V, M]) Phase() int { return w.info.Phase }

// NumVertices returns the global number of vertices at the start of
// the current superstep.
func (w *WorkerContext[K, V, M]) NumVertices() int64 { return w.info.NumVertices }

// NumActive returns the global number of active vertices at the start
// of the current superstep.
func (w *WorkerContext[K, V, M]) NumActive() int64 { return w.info.NumActive }

// StepMessages returns the global number of messages delivered in the
// previous superstep.
func (w *WorkerContext[K, V, M]) StepMessages() int64 { return w.info.StepMessages }

// Aggregated returns the aggregator's final value from the previous
// superstep. Every worker observes the same value. It returns nil when
// no aggregator is installed or before the first aggregation.
func (w *WorkerContext[K, V, M]) Aggregated() interface{} { return w.info.Aggregated }

// Bits returns the OR, across all workers, of the control bits raised
// during the previous superstep. Programs use it to observe the user
// bits.
func (w *WorkerContext[K, V, M]) Bits() Bits { return w.info.Bits }

// Scope returns the metrics scope of the current worker.
func (w *WorkerContext[K, V, M]) Scope() *metrics.Scope { return w.info.Scope }

// Send stages a message to the vertex with the provided id. It is
// delivered in the next superstep, or dropped if no such vertex exists.
func (w *WorkerContext[K, V, M]) Send(target K, msg M) {
	w.out = append(w.out, Envelope[K, M]{target, msg})
}

// AddVertex requests the creation of a new vertex. The vertex is
// shipped to its owner and becomes part of the graph in the next
// superstep. Requests for ids that already exist are ignored.
func (w *WorkerContext[K, V, M]) AddVertex(v *Vertex[K, V]) {
	w.added = append(w.added, v)
}

// SetBit raises the provided control bits for this superstep.
func (w *WorkerContext[K, V, M]) SetBit(b Bits) { w.bits |= b }

// ForceTerminate is shorthand for SetBit(ForceTerminate).
func (w *WorkerContext[K, V, M]) ForceTerminate() { w.SetBit(ForceTerminate) }

// WakeAll is shorthand for SetBit(WakeAll).
func (w *WorkerContext[K, V, M]) WakeAll() { w.SetBit(WakeAll) }

// Drain returns and resets the messages, vertex additions and bits
// staged in this context. It is called by the engine at the end of the
// compute phase.
func (w *WorkerContext[K, V, M]) Drain() (out []Envelope[K, M], added []*Vertex[K, V], bits Bits) {
	out, added, bits = w.out, w.added, w.bits
	w.out, w.added, w.bits = nil, nil, 0
	return
}
