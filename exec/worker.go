// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/bigpregel"
	"github.com/grailbio/bigpregel/codec"
	"github.com/grailbio/bigpregel/comm"
	"github.com/grailbio/bigpregel/metrics"
	"github.com/grailbio/bigpregel/storage"
)

// workerEnv is the environment in which a single worker runs.
type workerEnv struct {
	Comm   comm.Communicator
	Params Params
	// Parallelism is the compute parallelism used when the job does
	// not specify its own.
	Parallelism int
	// Status, if non-nil, receives the coordinator's progress.
	Status *status.Task
}

// setupVerdict is the coordinator's verdict on a job's preconditions.
type setupVerdict struct {
	Err *errors.Error
}

// A graphWorker runs one rank of a job: it loads and synchronizes its
// partition of the graph, runs the phases and supersteps of the job in
// lock-step with its peers, and dumps its surviving vertices.
type graphWorker[K comparable, V, M any] struct {
	job  *bigpregel.Job[K, V, M]
	env  workerEnv
	c    comm.Communicator
	rank int
	part bigpregel.Partitioner[K]
	buf  *messageBuffer[K, V, M]
	agg  bigpregel.AggregatorHandle[K, V]

	// input, if non-nil, is the worker's in-memory input, used instead
	// of the input paths.
	input    []*bigpregel.Vertex[K, V]
	vertices []*bigpregel.Vertex[K, V]

	info        bigpregel.StepInfo
	scope       *metrics.Scope
	bits        bigpregel.Bits
	parallelism int
	numPhases   int

	phases int
	steps  []StepStats
	report []int64
}

func newWorker[K comparable, V, M any](job *bigpregel.Job[K, V, M], env workerEnv, input []*bigpregel.Vertex[K, V]) (*graphWorker[K, V, M], error) {
	if env.Comm == nil {
		return nil, errors.E(errors.Invalid, "worker has no communicator")
	}
	n := env.Comm.Size()
	w := &graphWorker[K, V, M]{
		job:         job,
		env:         env,
		c:           env.Comm,
		rank:        env.Comm.Rank(),
		part:        job.Partitioner(n),
		input:       input,
		scope:       new(metrics.Scope),
		parallelism: job.Parallelism,
		numPhases:   job.NumPhases,
	}
	if w.parallelism == 0 {
		w.parallelism = env.Parallelism
	}
	if env.Params.NumPhases > 0 {
		w.numPhases = env.Params.NumPhases
	}
	w.buf = newMessageBuffer[K, V, M](w.part, job.Combiner)
	if job.Aggregator != nil {
		w.agg = job.Aggregator()
	}
	w.info = bigpregel.StepInfo{
		Rank:       w.rank,
		NumWorkers: n,
		Scope:      w.scope,
	}
	return w, nil
}

func (w *graphWorker[K, V, M]) coordinator() bool { return w.rank == comm.Root }

func panicError(rank int, e interface{}) error {
	stack := debug.Stack()
	err := fmt.Errorf("panic in worker %d: %v\n%s", rank, e, string(stack))
	return errors.E(err, errors.Fatal)
}

// run runs the job to completion on this worker.
func (w *graphWorker[K, V, M]) run(ctx context.Context) (reply *workerReply, err error) {
	defer func() {
		if e := recover(); e != nil {
			err = panicError(w.rank, e)
		}
		if err != nil {
			log.Error.Printf("%s: worker %d: %v", w.job.Name, w.rank, err)
		}
	}()
	if err = w.setup(ctx); err != nil {
		return nil, err
	}
	if err = w.load(ctx); err != nil {
		return nil, err
	}
	if err = w.syncGraph(ctx); err != nil {
		return nil, err
	}
	if err = w.runPhases(ctx); err != nil {
		return nil, err
	}
	if err = w.dump(ctx); err != nil {
		return nil, err
	}
	if err = w.writeReport(ctx); err != nil {
		return nil, err
	}
	total, err := comm.AllSum(ctx, w.c, int64(len(w.vertices)))
	if err != nil {
		return nil, err
	}
	reply = &workerReply{Vertices: total, Scope: w.scope}
	if w.coordinator() {
		reply.Phases = w.phases
		reply.Steps = w.steps
	}
	return reply, nil
}

// setup checks the job's preconditions on the coordinator and shares
// the verdict, so that every worker fails with the same error before
// any superstep runs.
func (w *graphWorker[K, V, M]) setup(ctx context.Context) error {
	var verdict setupVerdict
	if w.coordinator() {
		if err := w.check(ctx); err != nil {
			verdict.Err = errors.Recover(err)
		}
	}
	verdict, err := comm.BcastValue(ctx, w.c, verdict)
	if err != nil {
		return err
	}
	if verdict.Err != nil {
		return verdict.Err
	}
	return nil
}

func (w *graphWorker[K, V, M]) check(ctx context.Context) error {
	p := w.env.Params
	if len(p.Outputs) > 0 && w.job.Dump == nil {
		return errors.E(errors.Invalid, "job", w.job.Name, "has outputs but no dumper")
	}
	if w.input != nil {
		return storage.CheckOutputs(ctx, p.Outputs, p.Force)
	}
	if w.job.Load == nil {
		return errors.E(errors.Invalid, "job", w.job.Name, "has no loader")
	}
	return storage.CheckPaths(ctx, p.Inputs, p.Outputs, p.Force)
}

// load assigns input splits to workers and loads this worker's splits.
func (w *graphWorker[K, V, M]) load(ctx context.Context) error {
	if w.input != nil {
		w.vertices = w.input
		w.input = nil
		return nil
	}
	var assigned [][]storage.Split
	if w.coordinator() {
		splits, err := storage.Splits(ctx, w.env.Params.Inputs)
		if err != nil {
			return err
		}
		assigned = storage.Assign(splits, w.c.Size(), w.env.Params.Dispatch)
		log.Printf("%s: dispatching %d splits to %d workers (%s)", w.job.Name, len(splits), w.c.Size(), w.env.Params.Dispatch)
	}
	splits, err := comm.ScatterValue(ctx, w.c, assigned)
	if err != nil {
		return err
	}
	loaded := make([][]*bigpregel.Vertex[K, V], len(splits))
	err = traverse.Each(len(splits), func(i int) (err error) {
		defer func() {
			if e := recover(); e != nil {
				err = panicError(w.rank, e)
			}
		}()
		return storage.ReadLines(ctx, splits[i], func(line string) error {
			v, err := w.job.Load(line)
			if err != nil {
				return errors.E("loading", splits[i].Path, err)
			}
			if v != nil {
				loaded[i] = append(loaded[i], v)
			}
			return nil
		})
	})
	if err != nil {
		return err
	}
	for _, vs := range loaded {
		w.vertices = append(w.vertices, vs...)
	}
	log.Debug.Printf("%s: worker %d: loaded %d vertices from %d splits", w.job.Name, w.rank, len(w.vertices), len(splits))
	return nil
}

// syncGraph moves every vertex to the worker that owns it.
func (w *graphWorker[K, V, M]) syncGraph(ctx context.Context) error {
	var (
		n     = w.c.Size()
		local []*bigpregel.Vertex[K, V]
		out   = make([][]bigpregel.Vertex[K, V], n)
	)
	for _, v := range w.vertices {
		if dst := w.part.Owner(v.ID); dst == w.rank {
			local = append(local, v)
		} else {
			out[dst] = append(out[dst], *v)
		}
	}
	bufs := make([][]byte, n)
	for dst := range out {
		if len(out[dst]) == 0 {
			continue
		}
		p, err := codec.Marshal(out[dst])
		if err != nil {
			return errors.E(errors.Fatal, "encoding vertices", err)
		}
		bufs[dst] = p
	}
	in, err := comm.AllToAll(ctx, w.c, bufs)
	if err != nil {
		return err
	}
	for src, p := range in {
		if len(p) == 0 {
			continue
		}
		var vs []bigpregel.Vertex[K, V]
		if err := codec.Unmarshal(p, &vs); err != nil {
			return errors.E(fmt.Sprintf("decoding vertices from worker %d", src), err)
		}
		for i := range vs {
			local = append(local, &vs[i])
		}
	}
	w.vertices = local
	w.buf.init(w.vertices)
	return nil
}

// cont tells whether this worker wants to run the provided phase.
func (w *graphWorker[K, V, M]) cont(phase int) bool {
	if w.numPhases > 0 {
		return phase <= w.numPhases
	}
	return w.job.Continue(phase, w.vertices)
}

// runPhases runs phases for as long as any worker wants another one.
func (w *graphWorker[K, V, M]) runPhases(ctx context.Context) error {
	for phase := 1; ; phase++ {
		var want uint8
		if w.cont(phase) {
			want = 1
		}
		or, err := comm.AllOr(ctx, w.c, want)
		if err != nil {
			return err
		}
		if or == 0 {
			return nil
		}
		if w.coordinator() && (phase > 1 || w.numPhases > 1 || w.job.PhaseContinue != nil) {
			log.Printf("%s: phase %d", w.job.Name, phase)
		}
		w.info.Phase = phase
		for _, v := range w.vertices {
			v.Activate()
		}
		if err := w.runSteps(ctx); err != nil {
			return err
		}
		w.phases = phase
	}
}

func (w *graphWorker[K, V, M]) countActive() int64 {
	var n int64
	for _, v := range w.vertices {
		if v.Active {
			n++
		}
	}
	return n
}

// runSteps runs supersteps until the computation converges or a
// worker forces termination. The first superstep of a phase always
// runs.
func (w *graphWorker[K, V, M]) runSteps(ctx context.Context) error {
	w.bits = 0
	for step := 1; ; step++ {
		start := time.Now()
		w.info.Step = step
		w.info.Bits = 0
		var bits bigpregel.Bits
		if step > 1 {
			or, err := comm.AllOr(ctx, w.c, uint8(w.bits))
			if err != nil {
				return err
			}
			bits = bigpregel.Bits(or)
			w.info.Bits = bits
			if bits.Has(bigpregel.ForceTerminate) {
				if w.coordinator() {
					log.Printf("%s: terminated by request at superstep %d", w.job.Name, step)
				}
				return nil
			}
		}
		nv, err := comm.AllSum(ctx, w.c, int64(len(w.vertices)))
		if err != nil {
			return err
		}
		w.info.NumVertices = nv
		wakeAll := bits.Has(bigpregel.WakeAll)
		if wakeAll {
			w.info.NumActive = nv
		} else {
			na, err := comm.AllSum(ctx, w.c, w.countActive())
			if err != nil {
				return err
			}
			w.info.NumActive = na
			if step > 1 && na == 0 && !bits.Has(bigpregel.HasMsg) {
				return nil
			}
		}
		if w.agg != nil {
			w.agg.Init()
		}
		w.bits = 0
		all := wakeAll || (step == 1 && w.info.Phase > 1)
		if err := w.compute(ctx, all); err != nil {
			return err
		}
		w.buf.combine()
		added, err := w.buf.syncMessages(ctx, w.c, w.scope)
		if err != nil {
			return err
		}
		if w.buf.delivered > 0 {
			w.bits |= bigpregel.HasMsg
		}
		msgs, err := comm.AllSum(ctx, w.c, w.buf.delivered)
		if err != nil {
			return err
		}
		vadd, err := comm.AllSum(ctx, w.c, w.buf.vadd)
		if err != nil {
			return err
		}
		w.vertices = append(w.vertices, added...)
		w.info.StepMessages = msgs
		if w.agg != nil {
			if w.info.Aggregated, err = syncAggregate(ctx, w.c, w.agg); err != nil {
				return err
			}
		}
		if err := comm.Barrier(ctx, w.c); err != nil {
			return err
		}
		if w.env.Params.Report != "" {
			w.report = append(w.report, w.buf.delivered)
		}
		if w.coordinator() {
			stats := StepStats{
				Phase:    w.info.Phase,
				Step:     step,
				Vertices: nv,
				Active:   w.info.NumActive,
				Messages: msgs,
				Added:    vadd,
				Duration: time.Since(start),
			}
			w.steps = append(w.steps, stats)
			log.Printf("%s: %s", w.job.Name, stats)
			if w.env.Status != nil {
				w.env.Status.Printf("phase %d superstep %d: %d active #msgs:%d", stats.Phase, step, stats.Active, msgs)
			}
		}
	}
}

// compute runs the program over the worker's vertices: every vertex if
// all is true, otherwise only the vertices that are active or have
// pending messages. A vertex with pending messages is activated before
// it computes.
func (w *graphWorker[K, V, M]) compute(ctx context.Context, all bool) error {
	var (
		n        = len(w.vertices)
		ran      = make([]bool, n)
		nshard   = w.parallelism
		contexts []*bigpregel.WorkerContext[K, V, M]
	)
	if nshard < 2 || n < nshard {
		nshard = 1
	}
	contexts = make([]*bigpregel.WorkerContext[K, V, M], nshard)
	for i := range contexts {
		contexts[i] = bigpregel.NewWorkerContext[K, V, M](ctx, &w.info)
	}
	shard := func(s int) (err error) {
		defer func() {
			if e := recover(); e != nil {
				err = panicError(w.rank, e)
			}
		}()
		wctx := contexts[s]
		for i := s * n / nshard; i < (s+1)*n/nshard; i++ {
			v := w.vertices[i]
			if !all && !v.Active && !w.buf.pending(i) {
				continue
			}
			msgs := w.buf.take(i)
			if len(msgs) > 0 {
				v.Activate()
			}
			w.job.Program.Compute(wctx, v, msgs)
			ran[i] = true
		}
		return nil
	}
	if nshard == 1 {
		if err := shard(0); err != nil {
			return err
		}
	} else if err := traverse.Each(nshard, shard); err != nil {
		return err
	}
	if w.agg != nil {
		for i, v := range w.vertices {
			if ran[i] {
				w.agg.StepPartial(v)
			}
		}
	}
	for _, wctx := range contexts {
		out, added, bits := wctx.Drain()
		for _, e := range out {
			w.buf.addMessage(e)
		}
		for _, v := range added {
			w.buf.addVertex(v)
		}
		w.bits |= bits
	}
	return nil
}

// dump writes the worker's vertices to its part of every output.
func (w *graphWorker[K, V, M]) dump(ctx context.Context) error {
	outputs := w.env.Params.Outputs
	if len(outputs) == 0 {
		return nil
	}
	parts, err := storage.CreateParts(ctx, outputs, w.rank, w.env.Params.Compress)
	if err != nil {
		return err
	}
	writers := parts.Writers()
	for _, v := range w.vertices {
		if err := w.job.Dump(v, writers); err != nil {
			parts.Discard(ctx)
			return errors.E(fmt.Sprintf("dumping vertex %v", v), err)
		}
	}
	if err := parts.Close(ctx); err != nil {
		return err
	}
	log.Debug.Printf("%s: worker %d: dumped %d vertices", w.job.Name, w.rank, len(w.vertices))
	return nil
}

// writeReport gathers every worker's per-superstep delivered message
// counts on the coordinator, which writes one line per worker.
func (w *graphWorker[K, V, M]) writeReport(ctx context.Context) (err error) {
	path := w.env.Params.Report
	if path == "" {
		return nil
	}
	counts, err := comm.GatherValues(ctx, w.c, w.report)
	if err != nil || !w.coordinator() {
		return err
	}
	f, err := file.Create(ctx, path)
	if err != nil {
		return errors.E("create report", path, err)
	}
	defer errors.CleanUpCtx(ctx, f.Close, &err)
	out := f.Writer(ctx)
	for _, row := range counts {
		fields := make([]string, len(row))
		for i, n := range row {
			fields[i] = fmt.Sprint(n)
		}
		if _, err := fmt.Fprintln(out, strings.Join(fields, " ")); err != nil {
			return err
		}
	}
	return nil
}
