// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package algo

import (
	"io"

	"github.com/grailbio/bigpregel"
)

// Core is the state of a vertex in the pruning computation.
type Core struct {
	Adj     []uint64
	Removed bool
}

// leaf tells whether the vertex is a remaining leaf.
func leaf(v *bigpregel.Vertex[uint64, Core]) bool {
	return !v.Value.Removed && len(v.Value.Adj) <= 1
}

// NewPrune returns a multi-phase job that computes the 2-core of an
// undirected graph. Each phase removes the graph's current leaves in
// its first superstep and detaches them from their neighbors in the
// second. Phases continue as long as any leaf remains. Removed
// vertices are not dumped.
func NewPrune(name string) *bigpregel.Job[uint64, Core, uint64] {
	return &bigpregel.Job[uint64, Core, uint64]{
		Name: name,
		Load: func(line string) (*bigpregel.Vertex[uint64, Core], error) {
			id, adj, ok, err := parseAdjacency(line)
			if !ok || err != nil {
				return nil, err
			}
			return bigpregel.NewVertex(id, Core{Adj: adj}), nil
		},
		Dump: func(v *bigpregel.Vertex[uint64, Core], w []io.Writer) error {
			if v.Value.Removed {
				return nil
			}
			return writeIDs(w[0], v.ID, v.Value.Adj)
		},
		PhaseContinue: func(phase int, vertices []*bigpregel.Vertex[uint64, Core]) bool {
			for _, v := range vertices {
				if leaf(v) {
					return true
				}
			}
			return false
		},
		Program: bigpregel.ComputeFunc[uint64, Core, uint64](computePrune),
	}
}

func computePrune(w *bigpregel.WorkerContext[uint64, Core, uint64], v *bigpregel.Vertex[uint64, Core], msgs []uint64) {
	defer v.VoteToHalt()
	if v.Value.Removed {
		return
	}
	if w.Step() == 1 {
		if leaf(v) {
			v.Value.Removed = true
			for _, dst := range v.Value.Adj {
				w.Send(dst, v.ID)
			}
		}
		return
	}
	if len(msgs) == 0 {
		return
	}
	gone := make(map[uint64]bool, len(msgs))
	for _, id := range msgs {
		gone[id] = true
	}
	adj := v.Value.Adj[:0]
	for _, dst := range v.Value.Adj {
		if !gone[dst] {
			adj = append(adj, dst)
		}
	}
	v.Value.Adj = adj
}
