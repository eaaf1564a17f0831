// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

/*
	Package bigpregel implements a vertex-centric, bulk-synchronous
	graph processing system. Users describe a computation as a Program:
	a rule that updates a single vertex from the messages sent to it.
	Bigpregel partitions the graph across a set of workers, runs the
	program over every vertex in lockstep supersteps, and routes the
	messages produced in each superstep to the owners of their targets
	before the next one starts.

	A computation ends when every vertex has voted to halt and no
	messages are in flight, or when any vertex raises the
	ForceTerminate bit. Jobs may further be divided into phases, each
	of which restarts superstep numbering and reactivates every vertex.

	Jobs are described by a Job, which bundles the program with its
	plug-ins: a loader and dumper for vertex files, an optional
	Combiner that merges messages to the same target, an optional
	Aggregator that computes a global value each superstep, and an
	optional id Hasher that determines vertex placement.

	Jobs run locally, with one goroutine per worker, or on a cluster
	of bigmachines (github.com/grailbio/bigmachine). Because Go cannot
	serialize code, jobs must be registered with exec.Define before a
	session is started, typically as package-level variables:

		var components = exec.Define(&bigpregel.Job[uint64, Label, uint64]{
			Name:    "components",
			Program: ...,
		})

		func main() {
			sess := exec.Start(exec.Workers(8))
			defer sess.Shutdown()
			res, err := sess.Run(ctx, components, exec.Params{
				Inputs:  []string{"s3://bucket/graph/"},
				Outputs: []string{"s3://bucket/components/"},
			})
			...
		}

	Compute code may update metrics through the scope returned by
	WorkerContext.Scope (see package github.com/grailbio/bigpregel/metrics);
	metrics are merged across workers into the job's result.
*/
package bigpregel
