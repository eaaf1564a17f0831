// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"

	"github.com/grailbio/base/status"
	"github.com/grailbio/bigpregel"
	"github.com/grailbio/bigpregel/comm"
	"golang.org/x/sync/errgroup"
)

// localExecutor runs every worker in-process, in its own goroutine,
// connected through an in-process hub.
type localExecutor struct {
	sess *Session
}

func newLocalExecutor() *localExecutor {
	return new(localExecutor)
}

func (*localExecutor) Name() string { return "local" }

func (l *localExecutor) Start(sess *Session) (shutdown func()) {
	l.sess = sess
	return func() {}
}

func (l *localExecutor) Run(ctx context.Context, fn *Func, params Params, task *status.Task) ([]*workerReply, error) {
	return runGroup(ctx, l.sess.workers, func(ctx context.Context, c comm.Communicator) (*workerReply, error) {
		env := workerEnv{Comm: c, Params: params, Parallelism: l.sess.p}
		if c.Rank() == comm.Root {
			env.Status = task
		}
		return fn.runner.run(ctx, env)
	})
}

// runGroup runs fn for each rank of a local group of n workers. The
// first error cancels and aborts the whole group.
func runGroup(ctx context.Context, n int, fn func(ctx context.Context, c comm.Communicator) (*workerReply, error)) ([]*workerReply, error) {
	comms, hub := comm.NewLocal(n)
	replies := make([]*workerReply, n)
	g, ctx := errgroup.WithContext(ctx)
	for rank := range comms {
		rank := rank
		g.Go(func() error {
			reply, err := fn(ctx, comms[rank])
			if err != nil {
				hub.Close(err)
				return err
			}
			replies[rank] = reply
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return replies, nil
}

// RunLocal runs job in-process on n workers over the provided
// vertices, which are distributed round-robin before the graph is
// synchronized. It returns the surviving vertices of every worker,
// in rank order, and the run's result. Params.Inputs is ignored.
func RunLocal[K comparable, V, M any](ctx context.Context, job *bigpregel.Job[K, V, M], n int, vertices []*bigpregel.Vertex[K, V], params Params) ([]*bigpregel.Vertex[K, V], *Result, error) {
	if n <= 0 {
		panic("exec.RunLocal: n <= 0")
	}
	inputs := make([][]*bigpregel.Vertex[K, V], n)
	for i, v := range vertices {
		inputs[i%n] = append(inputs[i%n], v)
	}
	workers := make([]*graphWorker[K, V, M], n)
	replies, err := runGroup(ctx, n, func(ctx context.Context, c comm.Communicator) (*workerReply, error) {
		input := inputs[c.Rank()]
		if input == nil {
			input = []*bigpregel.Vertex[K, V]{}
		}
		w, err := newWorker(job, workerEnv{Comm: c, Params: params}, input)
		if err != nil {
			return nil, err
		}
		workers[c.Rank()] = w
		return w.run(ctx)
	})
	if err != nil {
		return nil, nil, err
	}
	res := &Result{Job: job.Name, NumWorkers: n}
	for _, reply := range replies {
		res.merge(reply)
	}
	var out []*bigpregel.Vertex[K, V]
	for _, w := range workers {
		out = append(out, w.vertices...)
	}
	return out, res, nil
}
