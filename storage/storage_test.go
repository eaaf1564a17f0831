// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package storage

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	assert.NoError(t, os.MkdirAll(filepath.Dir(path), 0777))
	assert.NoError(t, ioutil.WriteFile(path, []byte(content), 0644))
}

func TestSplits(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	writeFile(t, filepath.Join(dir, "in", "b"), "bb")
	writeFile(t, filepath.Join(dir, "in", "a"), "a")
	writeFile(t, filepath.Join(dir, "in", "_SUCCESS"), "")
	writeFile(t, filepath.Join(dir, "single"), "ccc")

	ctx := context.Background()
	splits, err := Splits(ctx, []string{filepath.Join(dir, "in"), filepath.Join(dir, "single")})
	assert.NoError(t, err)
	if got, want := len(splits), 3; got != want {
		t.Fatalf("got %v, want %v: %v", got, want, splits)
	}
	for i, want := range []Split{
		{filepath.Join(dir, "in", "a"), 1},
		{filepath.Join(dir, "in", "b"), 2},
		{filepath.Join(dir, "single"), 3},
	} {
		if got := splits[i]; got != want {
			t.Errorf("split %d: got %v, want %v", i, got, want)
		}
	}

	_, err = Splits(ctx, []string{filepath.Join(dir, "missing")})
	if !errors.Is(errors.Precondition, err) {
		t.Errorf("expected precondition error, got %v", err)
	}
}

func TestAssign(t *testing.T) {
	splits := []Split{{"a", 10}, {"b", 7}, {"c", 5}, {"d", 3}, {"e", 2}}
	assigned := Assign(splits, 2, Balanced)
	var load [2]int64
	for w, ss := range assigned {
		for _, s := range ss {
			load[w] += s.Size
		}
	}
	if got, want := load, [2]int64{13, 14}; got != want {
		t.Errorf("got %v, want %v", got, want)
	}

	for _, d := range []Dispatch{Balanced, Random} {
		const n = 3
		assigned := Assign(splits, n, d)
		if got, want := len(assigned), n; got != want {
			t.Fatalf("%v: got %v, want %v", d, got, want)
		}
		var total int
		for _, ss := range assigned {
			total += len(ss)
		}
		if got, want := total, len(splits); got != want {
			t.Errorf("%v: got %v, want %v", d, got, want)
		}
		if got, want := fmt.Sprint(Assign(splits, n, d)), fmt.Sprint(assigned); got != want {
			t.Errorf("%v: nondeterministic assignment: got %v, want %v", d, got, want)
		}
	}
}

func TestDispatchFlag(t *testing.T) {
	var d Dispatch
	assert.NoError(t, d.Set("random"))
	if got, want := d, Random; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := d.String(), "random"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if err := d.Set("locality"); err == nil {
		t.Error("expected error")
	}
}

func TestPartsRoundTrip(t *testing.T) {
	for _, compress := range []bool{false, true} {
		t.Run(fmt.Sprint(compress), func(t *testing.T) {
			dir, cleanup := testutil.TempDir(t, "", "")
			defer cleanup()
			ctx := context.Background()
			outputs := []string{filepath.Join(dir, "x"), filepath.Join(dir, "y")}
			parts, err := CreateParts(ctx, outputs, 3, compress)
			assert.NoError(t, err)
			for i, w := range parts.Writers() {
				for j := 0; j < 100; j++ {
					fmt.Fprintf(w, "%d:%d\n", i, j)
				}
			}
			assert.NoError(t, parts.Close(ctx))

			for i, output := range outputs {
				path := filepath.Join(output, PartName(3, compress))
				if compress && !strings.HasSuffix(path, "part_0003.zst") {
					t.Fatalf("bad part name %s", path)
				}
				var lines []string
				err := ReadLines(ctx, Split{Path: path}, func(line string) error {
					lines = append(lines, line)
					return nil
				})
				assert.NoError(t, err)
				if got, want := len(lines), 100; got != want {
					t.Fatalf("got %v, want %v", got, want)
				}
				if got, want := lines[99], fmt.Sprintf("%d:99", i); got != want {
					t.Errorf("got %v, want %v", got, want)
				}
			}
		})
	}
}

func TestPartsDiscard(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := context.Background()
	outputs := []string{filepath.Join(dir, "x"), filepath.Join(dir, "y")}
	parts, err := CreateParts(ctx, outputs, 0, true)
	assert.NoError(t, err)
	if got, want := len(parts.zws), 2; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	for _, w := range parts.Writers() {
		fmt.Fprintln(w, "abandoned")
	}
	parts.Discard(ctx)
	if got, want := len(parts.zws), 0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	for _, output := range outputs {
		path := filepath.Join(output, PartName(0, true))
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("%s: discarded part exists (%v)", path, err)
		}
	}
}

func TestCheckPaths(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := context.Background()
	in := filepath.Join(dir, "in")
	out := filepath.Join(dir, "out")
	writeFile(t, filepath.Join(in, "a"), "a\n")

	if err := CheckPaths(ctx, nil, []string{out}, false); !errors.Is(errors.Invalid, err) {
		t.Errorf("expected invalid error, got %v", err)
	}
	if err := CheckPaths(ctx, []string{in}, nil, false); !errors.Is(errors.Invalid, err) {
		t.Errorf("expected invalid error, got %v", err)
	}
	if err := CheckPaths(ctx, []string{filepath.Join(dir, "nope")}, []string{out}, false); !errors.Is(errors.Precondition, err) {
		t.Errorf("expected precondition error, got %v", err)
	}
	assert.NoError(t, CheckPaths(ctx, []string{in}, []string{out}, false))

	writeFile(t, filepath.Join(out, "part_0000"), "old\n")
	if err := CheckPaths(ctx, []string{in}, []string{out}, false); !errors.Is(errors.Exists, err) {
		t.Errorf("expected exists error, got %v", err)
	}
	assert.NoError(t, CheckPaths(ctx, []string{in}, []string{out}, true))
	if _, err := os.Stat(filepath.Join(out, "part_0000")); !os.IsNotExist(err) {
		t.Errorf("expected part to be removed, got %v", err)
	}
}
