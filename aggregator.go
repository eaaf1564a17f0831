// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bigpregel

import "github.com/grailbio/bigpregel/codec"

// An Aggregator computes a global value once per superstep with a
// two-phase reduction. Each worker folds its vertices into a partial
// value of type P; the coordinator folds every other worker's partial
// into its own state and produces the final value F, which every
// worker observes during the next superstep.
//
// The coordinator's own vertices are folded by StepPartial into the
// same aggregator state that StepFinal and FinishFinal operate on; the
// coordinator's partial is never passed to StepFinal. P and F must be
// encodable by encoding/gob.
type Aggregator[K comparable, V, P, F any] interface {
	// Init resets the aggregator at the start of each superstep.
	Init()
	// StepPartial folds the vertex, after its Compute, into the
	// worker's partial value.
	StepPartial(v *Vertex[K, V])
	// FinishPartial seals the worker's partial for this superstep.
	FinishPartial() P
	// StepFinal folds another worker's partial on the coordinator.
	StepFinal(partial P)
	// FinishFinal seals the final value on the coordinator.
	FinishFinal() F
}

// AggregatorHandle is the type-erased view of an aggregator used by the
// engine to move partial and final values between workers.
type AggregatorHandle[K comparable, V any] interface {
	Init()
	StepPartial(v *Vertex[K, V])
	// EncodePartial seals and encodes the worker's partial.
	EncodePartial() ([]byte, error)
	// StepFinalEncoded decodes a partial and folds it on the coordinator.
	StepFinalEncoded(p []byte) error
	// EncodeFinal seals and encodes the final value.
	EncodeFinal() ([]byte, error)
	// DecodeFinal decodes a final value produced by EncodeFinal.
	DecodeFinal(p []byte) (interface{}, error)
}

// Aggregate returns a constructor of handles for the aggregators
// returned by newAgg, to be installed in a Job. newAgg is called once
// for each worker.
func Aggregate[K comparable, V, P, F any](newAgg func() Aggregator[K, V, P, F]) func() AggregatorHandle[K, V] {
	return func() AggregatorHandle[K, V] {
		return typedAggregator[K, V, P, F]{newAgg()}
	}
}

type typedAggregator[K comparable, V, P, F any] struct {
	agg Aggregator[K, V, P, F]
}

func (t typedAggregator[K, V, P, F]) Init()                       { t.agg.Init() }
func (t typedAggregator[K, V, P, F]) StepPartial(v *Vertex[K, V]) { t.agg.StepPartial(v) }

func (t typedAggregator[K, V, P, F]) EncodePartial() ([]byte, error) {
	return codec.Marshal(t.agg.FinishPartial())
}

func (t typedAggregator[K, V, P, F]) StepFinalEncoded(p []byte) error {
	var partial P
	if err := codec.Unmarshal(p, &partial); err != nil {
		return err
	}
	t.agg.StepFinal(partial)
	return nil
}

func (t typedAggregator[K, V, P, F]) EncodeFinal() ([]byte, error) {
	return codec.Marshal(t.agg.FinishFinal())
}

func (t typedAggregator[K, V, P, F]) DecodeFinal(p []byte) (interface{}, error) {
	var final F
	if err := codec.Unmarshal(p, &final); err != nil {
		return nil, err
	}
	return final, nil
}

// AggregatedAs returns the previous superstep's final aggregator value
// as type F. The second result is false if there is no such value.
func AggregatedAs[F any, K comparable, V, M any](w *WorkerContext[K, V, M]) (F, bool) {
	f, ok := w.Aggregated().(F)
	return f, ok
}

// AndAggregator computes the global conjunction of a per-vertex
// predicate. It is typically used to detect a fixed point: vertices
// report whether they are unchanged, and the computation is done when
// every vertex is.
type AndAggregator[K comparable, V any] struct {
	Pred func(v *Vertex[K, V]) bool
	and  bool
}

// And returns a constructor of AndAggregators over the provided
// predicate.
func And[K comparable, V any](pred func(v *Vertex[K, V]) bool) func() AggregatorHandle[K, V] {
	return Aggregate(func() Aggregator[K, V, bool, bool] {
		return &AndAggregator[K, V]{Pred: pred}
	})
}

func (a *AndAggregator[K, V]) Init() { a.and = true }

func (a *AndAggregator[K, V]) StepPartial(v *Vertex[K, V]) {
	if !a.Pred(v) {
		a.and = false
	}
}

func (a *AndAggregator[K, V]) FinishPartial() bool { return a.and }

func (a *AndAggregator[K, V]) StepFinal(partial bool) {
	if !partial {
		a.and = false
	}
}

func (a *AndAggregator[K, V]) FinishFinal() bool { return a.and }

// CountAggregator counts the vertices, across all workers, that satisfy
// a predicate.
type CountAggregator[K comparable, V any] struct {
	Pred func(v *Vertex[K, V]) bool
	n    int64
}

// Count returns a constructor of CountAggregators over the provided
// predicate.
func Count[K comparable, V any](pred func(v *Vertex[K, V]) bool) func() AggregatorHandle[K, V] {
	return Aggregate(func() Aggregator[K, V, int64, int64] {
		return &CountAggregator[K, V]{Pred: pred}
	})
}

func (c *CountAggregator[K, V]) Init() { c.n = 0 }

func (c *CountAggregator[K, V]) StepPartial(v *Vertex[K, V]) {
	if c.Pred(v) {
		c.n++
	}
}

func (c *CountAggregator[K, V]) FinishPartial() int64   { return c.n }
func (c *CountAggregator[K, V]) StepFinal(partial int64) { c.n += partial }
func (c *CountAggregator[K, V]) FinishFinal() int64      { return c.n }
