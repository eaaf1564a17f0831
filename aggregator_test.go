// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bigpregel

import (
	"context"
	"testing"
)

// reduce runs one superstep of aggregation over the provided per-worker
// vertex sets, with worker 0 as the coordinator, and returns the
// decoded final value.
func reduce(t *testing.T, newAgg func() AggregatorHandle[int, int], workers ...[]int) interface{} {
	t.Helper()
	aggs := make([]AggregatorHandle[int, int], len(workers))
	for i, ids := range workers {
		aggs[i] = newAgg()
		aggs[i].Init()
		for _, id := range ids {
			aggs[i].StepPartial(NewVertex(id, id*10))
		}
	}
	for _, agg := range aggs[1:] {
		p, err := agg.EncodePartial()
		if err != nil {
			t.Fatal(err)
		}
		if err := aggs[0].StepFinalEncoded(p); err != nil {
			t.Fatal(err)
		}
	}
	p, err := aggs[0].EncodeFinal()
	if err != nil {
		t.Fatal(err)
	}
	final, err := aggs[1].DecodeFinal(p)
	if err != nil {
		t.Fatal(err)
	}
	return final
}

func TestAnd(t *testing.T) {
	small := And(func(v *Vertex[int, int]) bool { return v.Value < 100 })
	if got, want := reduce(t, small, []int{1, 2}, []int{3}, nil), true; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := reduce(t, small, []int{1, 2}, []int{30}, nil), false; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	// A false coordinator partial is not lost.
	if got, want := reduce(t, small, []int{50}, []int{1}), false; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestCount(t *testing.T) {
	even := Count(func(v *Vertex[int, int]) bool { return v.ID%2 == 0 })
	if got, want := reduce(t, even, []int{0, 1, 2}, []int{4, 5}, []int{6, 8, 10}), int64(6); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

type span struct{ Lo, Hi int }

type spanAggregator struct{ s span }

func (a *spanAggregator) Init() { a.s = span{1 << 30, -1 << 30} }

func (a *spanAggregator) StepPartial(v *Vertex[int, int]) { a.StepFinal(span{v.ID, v.ID}) }

func (a *spanAggregator) FinishPartial() span { return a.s }

func (a *spanAggregator) StepFinal(p span) {
	if p.Lo < a.s.Lo {
		a.s.Lo = p.Lo
	}
	if p.Hi > a.s.Hi {
		a.s.Hi = p.Hi
	}
}

func (a *spanAggregator) FinishFinal() span { return a.s }

func TestAggregate(t *testing.T) {
	agg := Aggregate(func() Aggregator[int, int, span, span] { return new(spanAggregator) })
	if got, want := reduce(t, agg, []int{5, 7}, []int{-3}, []int{12, 0}), (span{-3, 12}); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestAggregatedAs(t *testing.T) {
	info := &StepInfo{Aggregated: int64(3)}
	w := NewWorkerContext[int, int, int](context.Background(), info)
	if n, ok := AggregatedAs[int64](w); !ok || n != 3 {
		t.Errorf("got %v, %v, want 3, true", n, ok)
	}
	if _, ok := AggregatedAs[bool](w); ok {
		t.Error("unexpected bool aggregate")
	}
	info.Aggregated = nil
	if _, ok := AggregatedAs[int64](w); ok {
		t.Error("unexpected aggregate")
	}
}
