// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/bigmachine/testsystem"
	"github.com/grailbio/bigpregel"
	"github.com/grailbio/bigpregel/storage"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
)

type degrees struct {
	Out []int
	In  int
}

// indegree computes the in-degree of every vertex of a graph given as
// adjacency lines "id dst...". It writes "id in-degree" lines to its
// first output and "id out-degree" lines to its second.
var indegree = Define(&bigpregel.Job[int, degrees, int]{
	Name:     "exec.indegree",
	Combiner: bigpregel.Sum[int](),
	Load: func(line string) (*bigpregel.Vertex[int, degrees], error) {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			return nil, nil
		}
		ids := make([]int, len(fields))
		for i, f := range fields {
			var err error
			if ids[i], err = strconv.Atoi(f); err != nil {
				return nil, err
			}
		}
		return bigpregel.NewVertex(ids[0], degrees{Out: ids[1:]}), nil
	},
	Dump: func(v *bigpregel.Vertex[int, degrees], w []io.Writer) error {
		if _, err := fmt.Fprintf(w[0], "%d %d\n", v.ID, v.Value.In); err != nil {
			return err
		}
		_, err := fmt.Fprintf(w[1], "%d %d\n", v.ID, len(v.Value.Out))
		return err
	},
	Program: bigpregel.ComputeFunc[int, degrees, int](func(w *bigpregel.WorkerContext[int, degrees, int], v *bigpregel.Vertex[int, degrees], msgs []int) {
		if w.Step() == 1 {
			for _, dst := range v.Value.Out {
				w.Send(dst, 1)
			}
		}
		for _, n := range msgs {
			v.Value.In += n
		}
		v.VoteToHalt()
	}),
})

func writeGraph(t *testing.T, dir string) string {
	t.Helper()
	in := filepath.Join(dir, "in")
	assert.NoError(t, os.MkdirAll(in, 0777))
	// A star on 0, plus a chain 1->2->3.
	files := map[string]string{
		"a": "0 1 2 3\n1 2\n",
		"b": "2 3\n3 0\n\n",
	}
	for name, content := range files {
		assert.NoError(t, ioutil.WriteFile(filepath.Join(in, name), []byte(content), 0644))
	}
	return in
}

// readOutput reads every part under output into a map of id to value.
func readOutput(t *testing.T, output string) map[int]int {
	t.Helper()
	ctx := context.Background()
	splits, err := storage.Splits(ctx, []string{output})
	assert.NoError(t, err)
	vals := make(map[int]int)
	for _, split := range splits {
		err := storage.ReadLines(ctx, split, func(line string) error {
			var id, val int
			if _, err := fmt.Sscanf(line, "%d %d", &id, &val); err != nil {
				return err
			}
			vals[id] = val
			return nil
		})
		assert.NoError(t, err)
	}
	return vals
}

func checkDegrees(t *testing.T, outputs []string) {
	t.Helper()
	if got, want := fmt.Sprint(readOutput(t, outputs[0])), "map[0:1 1:1 2:2 3:2]"; got != want {
		t.Errorf("in-degrees: got %v, want %v", got, want)
	}
	if got, want := fmt.Sprint(readOutput(t, outputs[1])), "map[0:3 1:1 2:1 3:1]"; got != want {
		t.Errorf("out-degrees: got %v, want %v", got, want)
	}
}

func TestSessionRun(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	in := writeGraph(t, dir)
	outputs := []string{filepath.Join(dir, "in-degree"), filepath.Join(dir, "out-degree")}
	report := filepath.Join(dir, "report")

	sess := Start(Local, Workers(3))
	defer sess.Shutdown()
	ctx := context.Background()
	res, err := sess.Run(ctx, indegree, Params{
		Inputs:   []string{in},
		Outputs:  outputs,
		Dispatch: storage.Random,
		Report:   report,
	})
	assert.NoError(t, err)
	checkDegrees(t, outputs)
	if got, want := res.Vertices, int64(4); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := res.NumWorkers, 3; got != want {
		t.Errorf("got %v, want %v", got, want)
	}

	p, err := ioutil.ReadFile(report)
	assert.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(p)), "\n")
	if got, want := len(lines), 3; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	var total int
	for _, line := range lines {
		fields := strings.Fields(line)
		if got, want := len(fields), len(res.Steps); got != want {
			t.Fatalf("got %v, want %v", got, want)
		}
		for _, f := range fields {
			n, err := strconv.Atoi(f)
			assert.NoError(t, err)
			total += n
		}
	}
	// The combiner merges messages to the same target on each worker,
	// so at most 6 messages are delivered.
	if total == 0 || int64(total) != res.Messages {
		t.Errorf("report total %d, result %d", total, res.Messages)
	}

	_, err = sess.Run(ctx, indegree, Params{Inputs: []string{in}, Outputs: outputs})
	if !errors.Is(errors.Exists, err) {
		t.Errorf("expected exists error, got %v", err)
	}
	_, err = sess.Run(ctx, indegree, Params{Inputs: []string{in}, Outputs: outputs, Force: true, Compress: true})
	assert.NoError(t, err)
	checkDegrees(t, outputs)
	if _, err := os.Stat(filepath.Join(outputs[0], "part_0002.zst")); err != nil {
		t.Error(err)
	}
	if _, err := os.Stat(filepath.Join(outputs[0], "part_0002")); !os.IsNotExist(err) {
		t.Errorf("stale part survived: %v", err)
	}

	_, err = sess.Run(ctx, indegree, Params{Inputs: []string{filepath.Join(dir, "missing")}, Outputs: []string{filepath.Join(dir, "x")}})
	if !errors.Is(errors.Precondition, err) {
		t.Errorf("expected precondition error, got %v", err)
	}
	_, err = sess.Run(ctx, indegree, Params{Inputs: []string{in}})
	if !errors.Is(errors.Invalid, err) {
		t.Errorf("expected invalid error, got %v", err)
	}
}

func TestBigmachineRun(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	in := writeGraph(t, dir)
	outputs := []string{filepath.Join(dir, "in-degree"), filepath.Join(dir, "out-degree")}

	sess := Start(Bigmachine(testsystem.New()), Workers(2))
	defer sess.Shutdown()
	res, err := sess.Run(context.Background(), indegree, Params{Inputs: []string{in}, Outputs: outputs})
	assert.NoError(t, err)
	checkDegrees(t, outputs)
	if got, want := res.NumWorkers, 2; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := res.Vertices, int64(4); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestDefine(t *testing.T) {
	if got, want := Lookup("exec.indegree"), indegree; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	names := Funcs()
	if !sort.StringsAreSorted(names) {
		t.Errorf("names not sorted: %v", names)
	}
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	Define(&bigpregel.Job[int, degrees, int]{Name: "exec.indegree", Program: indegree.runner.(*jobRunner[int, degrees, int]).job.Program})
}

func TestDefineUnhashable(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	Define(&bigpregel.Job[*int, int, int]{
		Name:    "exec.pointerkeys",
		Program: bigpregel.ComputeFunc[*int, int, int](func(*bigpregel.WorkerContext[*int, int, int], *bigpregel.Vertex[*int, int], []int) {}),
	})
}

func TestUndefined(t *testing.T) {
	sess := Start(Local, Workers(1))
	defer sess.Shutdown()
	if _, err := sess.Run(context.Background(), &Func{name: "undefined"}, Params{}); !errors.Is(errors.Invalid, err) {
		t.Errorf("expected invalid error, got %v", err)
	}
}
