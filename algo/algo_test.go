// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package algo

import (
	"reflect"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/bigpregel/enginetest"
	"github.com/grailbio/bigpregel/exec"
)

func TestComponents(t *testing.T) {
	lines := []string{
		"# two components and an isolated vertex",
		"1 2", "2 1 3", "3 2",
		"4 5", "5 4",
		"6",
	}
	got := enginetest.RunLines(t, NewComponents("test.components"), 1, lines)
	want := [][]string{{"1 1", "2 1", "3 1", "4 4", "5 4", "6 6"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestComponentsConverge(t *testing.T) {
	job := NewComponents("test.components")
	vertices := enginetest.Load(t, job, "1 2", "2 1 3", "3 2")
	out, res := enginetest.Run(t, job, 2, vertices)
	for _, v := range out {
		if v.Active {
			t.Errorf("vertex %v still active", v)
		}
		if v.Value.Changed {
			t.Errorf("vertex %v changed in the last superstep", v)
		}
	}
	// Labels settle after three supersteps; the fourth observes no
	// change, and the fifth halts every vertex.
	if got, want := len(res.Steps), 5; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestShortestPaths(t *testing.T) {
	lines := []string{"0 1:4 2:1", "2 1:2 3:7", "1 3:1", "3 9", "4 0:1"}
	job := NewShortestPaths("test.sssp", 0)
	got := enginetest.RunLines(t, job, 1, lines)
	want := [][]string{{"0 0", "1 3", "2 1", "3 4", "4 inf"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	// Vertex 3 improves twice, each time sending to the missing vertex 9.
	_, res := enginetest.Run(t, job, 3, enginetest.Load(t, job, lines...))
	if got, want := res.Scope.Snapshot()["dropped"], int64(2); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestShortestPathsParse(t *testing.T) {
	job := NewShortestPaths("test.sssp", 0)
	for _, line := range []string{"x 1", "1 y:2", "1 2:z"} {
		if _, err := job.Load(line); !errors.Is(errors.Invalid, err) {
			t.Errorf("%q: got %v, want invalid", line, err)
		}
	}
}

func TestPrune(t *testing.T) {
	// A triangle with a two-vertex tail, a pendant, and an isolated vertex.
	lines := []string{
		"1 2 3", "2 1 3 7", "3 1 2 4",
		"4 3 5", "5 4", "6", "7 2",
	}
	job := NewPrune("test.prune")
	got := enginetest.RunLines(t, job, 1, lines)
	want := [][]string{{"1 2 3", "2 1 3", "3 1 2"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	_, res := enginetest.Run(t, job, 2, enginetest.Load(t, job, lines...))
	if got, want := res.Phases, 2; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestPruneTree(t *testing.T) {
	got := enginetest.RunLines(t, NewPrune("test.prune"), 1, []string{"1 2", "2 1 3", "3 2"})
	if len(got[0]) != 0 {
		t.Errorf("got %v, want empty core", got)
	}
}

func TestReverse(t *testing.T) {
	lines := []string{"1 2 3", "2 3", "4 1"}
	job := NewReverse("test.reverse")
	got := enginetest.RunLines(t, job, 2, lines)
	want := [][]string{
		{"1 2 3", "2 3", "3", "4 1"},
		{"1 4", "2 1", "3 1 2", "4"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	_, res := enginetest.Run(t, job, 4, enginetest.Load(t, job, lines...))
	if got, want := res.Added, int64(1); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := res.Vertices, int64(4); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestDefined(t *testing.T) {
	for _, fn := range []*exec.Func{Components, ShortestPaths, Prune, Reverse} {
		if exec.Lookup(fn.Name()) != fn {
			t.Errorf("%s: not defined", fn)
		}
	}
}
