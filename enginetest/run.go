// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package enginetest provides utilities for testing bigpregel jobs.
// The utilities here are generally not optimized for performance or
// robustness; they are strictly intended for unit testing.
package enginetest

import (
	"bytes"
	"context"
	"io"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/grailbio/bigpregel"
	"github.com/grailbio/bigpregel/exec"
)

// Load parses lines with the job's loader. Lines for which the loader
// returns a nil vertex are skipped. Errors are reported as fatal to
// the provided t instance.
func Load[K comparable, V, M any](t testing.TB, job *bigpregel.Job[K, V, M], lines ...string) []*bigpregel.Vertex[K, V] {
	t.Helper()
	var vertices []*bigpregel.Vertex[K, V]
	for _, line := range lines {
		v, err := job.Load(line)
		if err != nil {
			t.Fatalf("load %q: %v", line, err)
		}
		if v != nil {
			vertices = append(vertices, v)
		}
	}
	return vertices
}

// Run runs the job in local execution mode on n workers over the
// provided vertices, returning the surviving vertices and the run's
// result. Errors are reported as fatal to the provided t instance.
func Run[K comparable, V, M any](t testing.TB, job *bigpregel.Job[K, V, M], n int, vertices []*bigpregel.Vertex[K, V]) ([]*bigpregel.Vertex[K, V], *exec.Result) {
	t.Helper()
	out, res, err := exec.RunLocal(context.Background(), job, n, vertices, exec.Params{})
	if err != nil {
		t.Fatal(err)
	}
	return out, res
}

// Dump writes the vertices with the job's dumper to nout in-memory
// outputs, and returns the lines of each output in sorted order.
func Dump[K comparable, V, M any](t testing.TB, job *bigpregel.Job[K, V, M], nout int, vertices []*bigpregel.Vertex[K, V]) [][]string {
	t.Helper()
	bufs := make([]bytes.Buffer, nout)
	w := make([]io.Writer, nout)
	for i := range w {
		w[i] = &bufs[i]
	}
	for _, v := range vertices {
		if err := job.Dump(v, w); err != nil {
			t.Fatalf("dump %v: %v", v, err)
		}
	}
	lines := make([][]string, nout)
	for i := range bufs {
		lines[i] = Lines(bufs[i].String())
	}
	return lines
}

// Lines splits text into its non-empty lines, in sorted order.
func Lines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	sort.Strings(lines)
	return lines
}

// RunLines loads the provided lines, runs the job on each of the
// provided worker counts, and dumps the result to nout outputs. The
// dumped outputs must not depend on the number of workers; a mismatch
// is reported as fatal. RunLines returns the dumped lines of each
// output, sorted.
func RunLines[K comparable, V, M any](t testing.TB, job *bigpregel.Job[K, V, M], nout int, lines []string, workers ...int) [][]string {
	t.Helper()
	if len(workers) == 0 {
		workers = []int{1, 2, 4}
	}
	var want [][]string
	for i, n := range workers {
		vertices, _ := Run(t, job, n, Load(t, job, lines...))
		got := Dump(t, job, nout, vertices)
		if i == 0 {
			want = got
			continue
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("%s: %d workers: got %v, want %v (%d workers)", job.Name, n, got, want, workers[0])
		}
	}
	return want
}
