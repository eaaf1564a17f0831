// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package algo

import (
	"io"

	"github.com/grailbio/bigpregel"
)

// Edges is the state of a vertex in the edge reversal computation.
type Edges struct {
	Out, In []uint64
}

// NewReverse returns a job that reverses the edges of a directed
// graph. Edge targets that are not themselves listed in the input are
// added to the graph. With a single output, the job writes the
// reversed adjacency of every vertex. With two, it writes the forward
// adjacency to the first and the reversed adjacency to the second.
func NewReverse(name string) *bigpregel.Job[uint64, Edges, uint64] {
	return &bigpregel.Job[uint64, Edges, uint64]{
		Name: name,
		Load: func(line string) (*bigpregel.Vertex[uint64, Edges], error) {
			id, adj, ok, err := parseAdjacency(line)
			if !ok || err != nil {
				return nil, err
			}
			return bigpregel.NewVertex(id, Edges{Out: adj}), nil
		},
		Dump: func(v *bigpregel.Vertex[uint64, Edges], w []io.Writer) error {
			if len(w) == 1 {
				return writeIDs(w[0], v.ID, v.Value.In)
			}
			if err := writeIDs(w[0], v.ID, v.Value.Out); err != nil {
				return err
			}
			return writeIDs(w[1], v.ID, v.Value.In)
		},
		Program: bigpregel.ComputeFunc[uint64, Edges, uint64](func(w *bigpregel.WorkerContext[uint64, Edges, uint64], v *bigpregel.Vertex[uint64, Edges], msgs []uint64) {
			if w.Step() == 1 {
				for _, dst := range v.Value.Out {
					w.AddVertex(bigpregel.NewVertex(dst, Edges{}))
					w.Send(dst, v.ID)
				}
			} else {
				v.Value.In = append(v.Value.In, msgs...)
			}
			v.VoteToHalt()
		}),
	}
}
