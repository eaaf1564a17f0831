// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package algo contains graph algorithms implemented as bigpregel
// jobs. Each algorithm is available both as a job constructor, so that
// it may be run in-process with exec.RunLocal, and as a defined
// exec.Func that may be run by a session.
//
// Graphs are read from adjacency lines: a vertex id followed by the
// ids of its neighbors, separated by whitespace. Weighted graphs
// annotate each neighbor with a weight, as in "dst:weight".
package algo

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/bigpregel/exec"
)

var (
	// Components labels every vertex with the smallest vertex id in
	// its connected component.
	Components = exec.Define(NewComponents("components"))
	// ShortestPaths computes the length of the shortest path from
	// vertex 0 to every vertex.
	ShortestPaths = exec.Define(NewShortestPaths("sssp", 0))
	// Prune iteratively removes leaves, leaving the 2-core of the graph.
	Prune = exec.Define(NewPrune("prune"))
	// Reverse materializes the reverse of every edge of a directed
	// graph.
	Reverse = exec.Define(NewReverse("reverse"))
)

// parseAdjacency parses an adjacency line. It returns ok=false for
// blank lines and lines starting with '#'.
func parseAdjacency(line string) (id uint64, adj []uint64, ok bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return 0, nil, false, nil
	}
	if id, err = strconv.ParseUint(fields[0], 10, 64); err != nil {
		return 0, nil, false, errors.E(errors.Invalid, "bad vertex id", line, err)
	}
	adj = make([]uint64, len(fields)-1)
	for i, f := range fields[1:] {
		if adj[i], err = strconv.ParseUint(f, 10, 64); err != nil {
			return 0, nil, false, errors.E(errors.Invalid, "bad neighbor", line, err)
		}
	}
	return id, adj, true, nil
}

// writeIDs writes an id followed by a sorted list of ids.
func writeIDs(w io.Writer, id uint64, ids []uint64) error {
	sorted := append([]uint64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	var b strings.Builder
	b.WriteString(strconv.FormatUint(id, 10))
	for _, dst := range sorted {
		b.WriteByte(' ')
		b.WriteString(strconv.FormatUint(dst, 10))
	}
	_, err := fmt.Fprintln(w, b.String())
	return err
}
