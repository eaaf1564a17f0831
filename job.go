// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bigpregel

import "io"

// A Job describes a vertex-centric computation: the program, and the
// optional plug-ins that load, dump, combine, aggregate and partition
// its vertices. Jobs are defined once, typically at package
// initialization, and run by an exec.Session.
type Job[K comparable, V, M any] struct {
	// Name identifies the job. Names must be unique within a binary
	// since they are used to locate the job on remote workers.
	Name string

	// Program is the job's compute rule. A program is shared by the
	// workers of a process and must be safe for concurrent use.
	Program Program[K, V, M]

	// Load parses a single input line into a vertex. Load may return
	// a nil vertex to skip the line. Load is required when the job is
	// run over input files. A worker loads its splits concurrently, so
	// Load must be safe for concurrent use.
	Load func(line string) (*Vertex[K, V], error)

	// Dump writes a surviving vertex to the job's outputs, one writer
	// per output path, in the order the outputs were given.
	Dump func(v *Vertex[K, V], w []io.Writer) error

	// Combiner, if non-nil, merges messages to the same target before
	// they are exchanged.
	Combiner Combiner[M]

	// Aggregator, if non-nil, returns a new aggregator for each
	// worker. The aggregator computes a per-superstep global value.
	Aggregator func() AggregatorHandle[K, V]

	// Hash is the id hash used to assign vertices to workers. The
	// default hasher for K is used when nil.
	Hash Hasher[K]

	// PhaseContinue decides, at the start of each phase, whether to
	// run it. It is evaluated on every worker over its local
	// vertices and the results are OR-reduced: any worker that wants
	// another phase forces every worker into it. When both
	// PhaseContinue and NumPhases are unset, exactly one phase is run.
	PhaseContinue func(phase int, vertices []*Vertex[K, V]) bool

	// NumPhases, if positive, fixes the number of phases, and
	// PhaseContinue is ignored.
	NumPhases int

	// Parallelism is the number of goroutines used to run Compute
	// within a single worker. Values below 2 compute sequentially.
	Parallelism int
}

// Continue tells whether phase should run on this worker, given its
// local vertices.
func (j *Job[K, V, M]) Continue(phase int, vertices []*Vertex[K, V]) bool {
	switch {
	case j.NumPhases > 0:
		return phase <= j.NumPhases
	case j.PhaseContinue != nil:
		return j.PhaseContinue(phase, vertices)
	default:
		return phase == 1
	}
}

// Partitioner returns the job's partitioner over n workers.
func (j *Job[K, V, M]) Partitioner(n int) Partitioner[K] {
	return NewPartitioner(j.Hash, n)
}
