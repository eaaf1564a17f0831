// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package storage implements the file-facing side of a job: discovery
// of input splits and their assignment to workers, line-oriented
// readers, per-worker output parts, and the path preconditions checked
// before a job starts. Paths are interpreted by
// github.com/grailbio/base/file, so any registered implementation
// (for example s3://) may be used.
package storage

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
)

// A Split is one input file.
type Split struct {
	Path string
	Size int64
}

func (s Split) String() string { return fmt.Sprintf("%s(%d)", s.Path, s.Size) }

// list returns the files under prefix, or prefix itself if it names a
// file. Hidden files and files whose names begin with "_" are skipped.
func list(ctx context.Context, prefix string) ([]Split, error) {
	var (
		splits []Split
		seen   = make(map[string]bool)
	)
	lst := file.List(ctx, prefix)
	for lst.Scan() {
		path := lst.Path()
		if seen[path] || skip(path) {
			continue
		}
		seen[path] = true
		info, err := file.Stat(ctx, path)
		if err != nil {
			return nil, err
		}
		splits = append(splits, Split{path, info.Size()})
	}
	if err := lst.Err(); err != nil && !notExist(err) {
		return nil, err
	}
	if len(splits) > 0 {
		return splits, nil
	}
	info, err := file.Stat(ctx, prefix)
	if err != nil {
		return nil, err
	}
	return []Split{{prefix, info.Size()}}, nil
}

func notExist(err error) bool {
	return errors.Is(errors.NotExist, err) || os.IsNotExist(err)
}

func skip(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") || strings.HasPrefix(base, "_")
}

// Splits returns the splits of the provided inputs, sorted by path. An
// input is either a file or a prefix under which every file is a split.
// It is a precondition error for an input to have no files.
func Splits(ctx context.Context, inputs []string) ([]Split, error) {
	var all []Split
	for _, input := range inputs {
		splits, err := list(ctx, input)
		if err != nil {
			if notExist(err) {
				return nil, errors.E(errors.Precondition, "input", input, "does not exist", err)
			}
			return nil, errors.E("listing input", input, err)
		}
		all = append(all, splits...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Path < all[j].Path })
	return all, nil
}

// Dispatch is a strategy that assigns splits to workers.
type Dispatch int

const (
	// Balanced assigns each split, largest first, to the worker with
	// the fewest assigned bytes.
	Balanced Dispatch = iota
	// Random assigns each split to a worker chosen uniformly at random.
	// The assignment is deterministic for a set of splits.
	Random
)

var dispatchNames = [...]string{Balanced: "balanced", Random: "random"}

// String implements flag.Value.
func (d Dispatch) String() string {
	if d < 0 || int(d) >= len(dispatchNames) {
		return fmt.Sprintf("Dispatch(%d)", int(d))
	}
	return dispatchNames[d]
}

// Set implements flag.Value.
func (d *Dispatch) Set(s string) error {
	for i, name := range dispatchNames {
		if name == s {
			*d = Dispatch(i)
			return nil
		}
	}
	return errors.E(errors.Invalid, "unknown dispatch strategy", s)
}

// randomSeed seeds the Random dispatcher.
const randomSeed = 0x5eed

// Assign assigns splits to n workers according to the dispatch
// strategy.
func Assign(splits []Split, n int, d Dispatch) [][]Split {
	assigned := make([][]Split, n)
	switch d {
	case Random:
		r := rand.New(rand.NewSource(randomSeed))
		for _, s := range splits {
			w := r.Intn(n)
			assigned[w] = append(assigned[w], s)
		}
	default:
		sorted := make([]Split, len(splits))
		copy(sorted, splits)
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Size > sorted[j].Size })
		load := make([]int64, n)
		for _, s := range sorted {
			w := 0
			for i := 1; i < n; i++ {
				if load[i] < load[w] {
					w = i
				}
			}
			load[w] += s.Size
			assigned[w] = append(assigned[w], s)
		}
	}
	return assigned
}
