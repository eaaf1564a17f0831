// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"encoding/gob"
	"fmt"
	"time"

	"github.com/grailbio/bigpregel/metrics"
	"github.com/grailbio/bigpregel/storage"
)

func init() {
	gob.Register(&Result{})
}

// Params is the run surface of a single job run.
type Params struct {
	// Inputs are the files or prefixes from which vertices are loaded.
	Inputs []string
	// Outputs are the paths under which each worker writes its part.
	Outputs []string
	// Force removes existing outputs instead of failing.
	Force bool
	// Dispatch is the split assignment strategy.
	Dispatch storage.Dispatch
	// NumPhases, if positive, overrides the job's phase count.
	NumPhases int
	// Report, if set, is the path to which the per-worker message
	// report is written.
	Report string
	// Compress zstd-compresses output parts.
	Compress bool
}

// StepStats are the global statistics of one superstep.
type StepStats struct {
	Phase, Step int
	// Vertices and Active are the global vertex and active vertex
	// counts at the start of the superstep.
	Vertices, Active int64
	// Messages and Added are the global numbers of messages delivered
	// and vertices added at the end of the superstep.
	Messages, Added int64
	// Duration is the coordinator's wall time for the superstep.
	Duration time.Duration
}

func (s StepStats) String() string {
	return fmt.Sprintf("phase %d superstep %d: vertices:%d active:%d #msgs:%d #vadd:%d %s",
		s.Phase, s.Step, s.Vertices, s.Active, s.Messages, s.Added, s.Duration)
}

// A Result summarizes a completed job run.
type Result struct {
	// Job is the name of the job.
	Job string
	// NumWorkers is the number of workers that ran the job.
	NumWorkers int
	// Phases is the number of phases run.
	Phases int
	// Steps holds the statistics of every superstep.
	Steps []StepStats
	// Vertices is the global number of surviving vertices.
	Vertices int64
	// Messages and Added are the job-wide totals of delivered messages
	// and added vertices.
	Messages, Added int64
	// Scope is the merged metrics scope of every worker.
	Scope metrics.Scope
	// Duration is the wall time of the run.
	Duration time.Duration
}

func (r *Result) String() string {
	return fmt.Sprintf("%s: %d workers %d phases %d supersteps %d vertices #msgs:%d #vadd:%d %s",
		r.Job, r.NumWorkers, r.Phases, len(r.Steps), r.Vertices, r.Messages, r.Added, r.Duration)
}

// workerReply is the outcome of one worker's run. Steps is populated
// only by the coordinator.
type workerReply struct {
	Phases   int
	Steps    []StepStats
	Vertices int64
	Scope    *metrics.Scope
}

func (r *Result) merge(reply *workerReply) {
	if reply.Scope != nil {
		r.Scope.Merge(reply.Scope)
	}
	if reply.Steps == nil {
		return
	}
	r.Phases = reply.Phases
	r.Steps = reply.Steps
	r.Vertices = reply.Vertices
	for _, s := range reply.Steps {
		r.Messages += s.Messages
		r.Added += s.Added
	}
}
