// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"encoding/gob"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
	"github.com/grailbio/base/sync/once"
	"github.com/grailbio/bigmachine"
	"github.com/grailbio/bigpregel/comm"
	"golang.org/x/sync/errgroup"
)

func init() {
	gob.Register(&worker{})
}

// bigmachineExecutor runs each worker of a job on its own bigmachine
// machine. The coordinator's machine also hosts the hub through which
// the workers communicate.
type bigmachineExecutor struct {
	system bigmachine.System
	params []bigmachine.Param

	sess *Session
	b    *bigmachine.B

	status *status.Group

	startOnce once.Task
	machines  []*bigmachine.Machine

	groups int64
}

func newBigmachineExecutor(system bigmachine.System, params ...bigmachine.Param) *bigmachineExecutor {
	return &bigmachineExecutor{system: system, params: params}
}

func (*bigmachineExecutor) Name() string { return "bigmachine" }

// Start starts the bigmachine. Machines are started on first use.
func (b *bigmachineExecutor) Start(sess *Session) (shutdown func()) {
	b.sess = sess
	b.b = bigmachine.Start(b.system)
	if status := sess.Status(); status != nil {
		b.status = status.Group("bigmachine")
	}
	return b.b.Shutdown
}

// startMachines starts one machine per worker, installing the worker
// and hub services on each of them, and waits for all of them to be
// running. Any machine that fails to start fails the session.
func (b *bigmachineExecutor) startMachines(ctx context.Context) error {
	return b.startOnce.Do(func() error {
		n := b.sess.workers
		params := append([]bigmachine.Param{bigmachine.Services{
			"Worker": &worker{},
			"Hub":    &comm.HubService{},
		}}, b.params...)
		machines, err := b.b.Start(ctx, n, params...)
		if err != nil {
			return errors.E("starting machines", err)
		}
		var wg sync.WaitGroup
		errs := make([]error, len(machines))
		for i := range machines {
			i, m := i, machines[i]
			var task *status.Task
			if b.status != nil {
				task = b.status.Start()
				task.Print("waiting for machine to boot")
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-m.Wait(bigmachine.Running)
				if err := m.Err(); err != nil {
					log.Printf("machine %s failed to start: %v", m.Addr, err)
					errs[i] = err
					if task != nil {
						task.Printf("failed to start: %v", err)
						task.Done()
					}
					return
				}
				if task != nil {
					task.Title(m.Addr)
					task.Print("running")
				}
				log.Printf("machine %v is ready", m.Addr)
			}()
		}
		wg.Wait()
		for _, err := range errs {
			if err != nil {
				return errors.E(errors.Fatal, "machine failed to start", err)
			}
		}
		if len(machines) != n {
			return errors.E(errors.Fatal, fmt.Sprintf("started %d machines; need %d", len(machines), n))
		}
		b.machines = machines
		return nil
	})
}

// Run runs every worker of the job on its machine. The first failure
// cancels the remaining workers and releases the job's hub, which
// aborts their pending collective calls.
func (b *bigmachineExecutor) Run(ctx context.Context, fn *Func, params Params, task *status.Task) ([]*workerReply, error) {
	if err := b.startMachines(ctx); err != nil {
		return nil, err
	}
	var (
		group   = fmt.Sprintf("%s-%d", fn.Name(), atomic.AddInt64(&b.groups, 1))
		hub     = b.machines[comm.Root]
		replies = make([]*workerReply, len(b.machines))
	)
	defer func() {
		if err := hub.Call(context.Background(), "Hub.Release", group, nil); err != nil {
			log.Error.Printf("%s: release hub: %v", group, err)
		}
	}()
	if task != nil {
		task.Printf("running on %d machines", len(b.machines))
	}
	g, gctx := errgroup.WithContext(ctx)
	for rank, m := range b.machines {
		rank, m := rank, m
		g.Go(func() error {
			req := runRequest{
				Func:        fn.Name(),
				Group:       group,
				Hub:         hub.Addr,
				Rank:        rank,
				Size:        len(b.machines),
				Params:      params,
				Parallelism: b.sess.p,
			}
			reply := new(workerReply)
			if err := m.Call(gctx, "Worker.Run", req, reply); err != nil {
				return errors.E(fmt.Sprintf("worker %d (%s)", rank, m.Addr), err)
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

// runRequest is the argument to worker.Run.
type runRequest struct {
	Func        string
	Group       string
	Hub         string
	Rank, Size  int
	Params      Params
	Parallelism int
}

// A worker is the bigmachine service that runs one rank of a job.
type worker struct {
	// Exported just satisfies gob's persnickety nature: we need at least
	// one exported field.
	Exported struct{}

	b *bigmachine.B
}

func (w *worker) Init(b *bigmachine.B) error {
	w.b = b
	return nil
}

// Run runs the requested rank of a job to completion.
func (w *worker) Run(ctx context.Context, req runRequest, reply *workerReply) (err error) {
	defer func() {
		if e := recover(); e != nil {
			err = panicError(req.Rank, e)
		}
	}()
	fn := Lookup(req.Func)
	if fn == nil {
		return errors.E(errors.NotExist, "job", req.Func, "is not defined in this binary")
	}
	c, err := comm.Dial(ctx, w.b, req.Hub, req.Group, req.Rank, req.Size)
	if err != nil {
		return err
	}
	log.Printf("%s: running worker %d of %d", req.Group, req.Rank, req.Size)
	r, err := fn.runner.run(ctx, workerEnv{Comm: c, Params: req.Params, Parallelism: req.Parallelism})
	if err != nil {
		return err
	}
	*reply = *r
	return nil
}
