// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package algo

import (
	"fmt"
	"io"

	"github.com/grailbio/bigpregel"
)

// Component is the state of a vertex in the connected components
// computation.
type Component struct {
	Label   uint64
	Adj     []uint64
	Changed bool
}

// NewComponents returns a hash-min connected components job over an
// undirected graph. Every vertex repeatedly adopts the smallest label
// it receives and forwards it to its neighbors. Vertices stay active
// until a global And aggregate reports that no label changed in the
// previous superstep.
func NewComponents(name string) *bigpregel.Job[uint64, Component, uint64] {
	return &bigpregel.Job[uint64, Component, uint64]{
		Name:     name,
		Combiner: bigpregel.Min[uint64](),
		Aggregator: bigpregel.And(func(v *bigpregel.Vertex[uint64, Component]) bool {
			return !v.Value.Changed
		}),
		Load: func(line string) (*bigpregel.Vertex[uint64, Component], error) {
			id, adj, ok, err := parseAdjacency(line)
			if !ok || err != nil {
				return nil, err
			}
			return bigpregel.NewVertex(id, Component{Label: id, Adj: adj}), nil
		},
		Dump: func(v *bigpregel.Vertex[uint64, Component], w []io.Writer) error {
			_, err := fmt.Fprintf(w[0], "%d %d\n", v.ID, v.Value.Label)
			return err
		},
		Program: bigpregel.ComputeFunc[uint64, Component, uint64](computeComponent),
	}
}

func computeComponent(w *bigpregel.WorkerContext[uint64, Component, uint64], v *bigpregel.Vertex[uint64, Component], msgs []uint64) {
	if w.Step() == 1 {
		v.Value.Changed = true
		for _, dst := range v.Value.Adj {
			w.Send(dst, v.Value.Label)
		}
		return
	}
	if stable, ok := bigpregel.AggregatedAs[bool](w); ok && stable {
		v.VoteToHalt()
		return
	}
	v.Value.Changed = false
	for _, label := range msgs {
		if label < v.Value.Label {
			v.Value.Label = label
			v.Value.Changed = true
		}
	}
	if v.Value.Changed {
		for _, dst := range v.Value.Adj {
			w.Send(dst, v.Value.Label)
		}
	}
}
