// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package algo

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/bigpregel"
)

// An Edge is a weighted, directed edge.
type Edge struct {
	Dst    uint64
	Weight float64
}

// Distance is the state of a vertex in the shortest paths computation.
type Distance struct {
	Dist  float64
	Edges []Edge
}

// NewShortestPaths returns a single-source shortest paths job over a
// weighted directed graph, given as lines "id dst:weight ...". Edges
// without a weight have weight 1. Vertices unreachable from the source
// are dumped with distance "inf".
func NewShortestPaths(name string, source uint64) *bigpregel.Job[uint64, Distance, float64] {
	return &bigpregel.Job[uint64, Distance, float64]{
		Name:     name,
		Combiner: bigpregel.Min[float64](),
		Load:     loadWeighted,
		Dump: func(v *bigpregel.Vertex[uint64, Distance], w []io.Writer) error {
			dist := "inf"
			if !math.IsInf(v.Value.Dist, 1) {
				dist = strconv.FormatFloat(v.Value.Dist, 'g', -1, 64)
			}
			_, err := fmt.Fprintf(w[0], "%d %s\n", v.ID, dist)
			return err
		},
		Program: bigpregel.ComputeFunc[uint64, Distance, float64](func(w *bigpregel.WorkerContext[uint64, Distance, float64], v *bigpregel.Vertex[uint64, Distance], msgs []float64) {
			min := math.Inf(1)
			if w.Step() == 1 && v.ID == source {
				min = 0
			}
			for _, d := range msgs {
				if d < min {
					min = d
				}
			}
			if min < v.Value.Dist {
				v.Value.Dist = min
				for _, e := range v.Value.Edges {
					w.Send(e.Dst, min+e.Weight)
				}
			}
			v.VoteToHalt()
		}),
	}
}

func loadWeighted(line string) (*bigpregel.Vertex[uint64, Distance], error) {
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return nil, nil
	}
	id, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return nil, errors.E(errors.Invalid, "bad vertex id", line, err)
	}
	val := Distance{Dist: math.Inf(1)}
	for _, f := range fields[1:] {
		var (
			e   = Edge{Weight: 1}
			dst = f
		)
		if i := strings.IndexByte(f, ':'); i >= 0 {
			dst = f[:i]
			if e.Weight, err = strconv.ParseFloat(f[i+1:], 64); err != nil {
				return nil, errors.E(errors.Invalid, "bad edge weight", line, err)
			}
		}
		if e.Dst, err = strconv.ParseUint(dst, 10, 64); err != nil {
			return nil, errors.E(errors.Invalid, "bad edge target", line, err)
		}
		val.Edges = append(val.Edges, e)
	}
	return bigpregel.NewVertex(id, val), nil
}
