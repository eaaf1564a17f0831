// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/grailbio/base/backgroundcontext"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/eventlog"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
	"github.com/grailbio/bigmachine"
)

// DefaultWorkers is the default number of workers in a session.
const DefaultWorkers = 4

// An executor runs every worker of a job.
type executor interface {
	// Name returns a human-friendly name for the executor.
	Name() string
	// Start starts the executor with n workers. It returns a function
	// that tears the executor down.
	Start(sess *Session) (shutdown func())
	// Run runs the job on every worker and returns their replies,
	// indexed by rank.
	Run(ctx context.Context, fn *Func, params Params, task *status.Task) ([]*workerReply, error)
}

// Session represents a bigpregel compute session. A session shares a
// binary and an executor with a fixed number of workers, and is valid
// for the run of the binary. A session can run multiple jobs, one
// after another.
//
// Jobs must be defined (see Define) before Start is called, typically
// as part of package initialization, since remote workers locate jobs
// by name:
//
//	var Components = exec.Define(&bigpregel.Job[...]{...})
//
//	func main() {
//		sess := exec.Start(exec.Workers(16))
//		res, err := sess.Run(ctx, Components, exec.Params{...})
//		...
//	}
type Session struct {
	context.Context
	executor executor
	shutdown func()
	workers  int
	p        int
	status   *status.Status
	eventer  eventlog.Eventer

	runs int32
}

func newSession() *Session {
	return &Session{
		Context: backgroundcontext.Get(),
		eventer: eventlog.Nop{},
	}
}

// An Option represents a session configuration parameter value.
type Option func(s *Session)

// Local configures a session with the local in-binary executor, which
// runs each worker in its own goroutine.
var Local Option = func(s *Session) {
	s.executor = newLocalExecutor()
}

// Bigmachine configures a session using the bigmachine executor
// configured with the provided system. If any params are provided,
// they are applied to each bigmachine allocated by the session.
func Bigmachine(system bigmachine.System, params ...bigmachine.Param) Option {
	return func(s *Session) {
		s.executor = newBigmachineExecutor(system, params...)
	}
}

// Workers configures the number of workers that run each job.
func Workers(n int) Option {
	if n <= 0 {
		panic("exec.Workers: n <= 0")
	}
	return func(s *Session) {
		s.workers = n
	}
}

// Parallelism configures the number of goroutines each worker uses to
// compute, for jobs that do not set their own.
func Parallelism(p int) Option {
	if p <= 0 {
		panic("exec.Parallelism: p <= 0")
	}
	return func(s *Session) {
		s.p = p
	}
}

// Status configures the session with a status object to which
// run statuses are reported.
func Status(status *status.Status) Option {
	return func(s *Session) {
		s.status = status
	}
}

// Eventer configures the session with an Eventer that will be used to log
// session events (for analytics).
func Eventer(e eventlog.Eventer) Option {
	return func(s *Session) {
		s.eventer = e
	}
}

// Start creates and starts a new bigpregel session, configuring it
// according to the provided options. If no executor is configured, the
// session uses the local executor.
func Start(options ...Option) *Session {
	s := newSession()
	for _, opt := range options {
		opt(s)
	}
	if s.executor == nil {
		s.executor = newLocalExecutor()
	}
	s.start()
	return s
}

func (s *Session) start() {
	if s.workers == 0 {
		s.workers = DefaultWorkers
	}
	if s.p == 0 {
		s.p = 1
	}
	if s.status == nil {
		s.status = new(status.Status)
	}
	s.shutdown = s.executor.Start(s)
	s.eventer.Event("bigpregel:sessionStart",
		"command", command(),
		"executorType", s.executor.Name(),
		"workers", s.workers,
		"parallelism", s.p)
}

// Run runs the job fn with the provided parameters on the session's
// workers. Run returns when every worker has finished, or else on the
// first error, which aborts the job on every worker.
func (s *Session) Run(ctx context.Context, fn *Func, params Params) (*Result, error) {
	if fn == nil || Lookup(fn.Name()) != fn {
		return nil, errors.E(errors.Invalid, "exec.Run: job is not defined")
	}
	var task *status.Task
	if s.status != nil {
		index := atomic.AddInt32(&s.runs, 1)
		task = s.status.Groupf("run %s [%d]", fn.Name(), index).Start()
		task.Print("starting")
		defer task.Done()
	}
	log.Printf("%s: running on %d workers (%s)", fn.Name(), s.workers, s.executor.Name())
	start := time.Now()
	replies, err := s.executor.Run(ctx, fn, params, task)
	s.eventer.Event("bigpregel:jobDone",
		"job", fn.Name(),
		"workers", s.workers,
		"success", err == nil,
		"duration", time.Since(start).String())
	if err != nil {
		if task != nil {
			task.Printf("error: %v", err)
		}
		return nil, err
	}
	res := &Result{Job: fn.Name(), NumWorkers: len(replies)}
	for _, reply := range replies {
		res.merge(reply)
	}
	res.Duration = time.Since(start)
	log.Printf("%s", res)
	if task != nil {
		task.Print(res)
	}
	return res, nil
}

// Must is a version of Run that panics if the job fails.
func (s *Session) Must(ctx context.Context, fn *Func, params Params) *Result {
	res, err := s.Run(ctx, fn, params)
	if err != nil {
		log.Panicf("exec.Run: %v", err)
	}
	return res
}

// Workers returns the number of workers that run each job.
func (s *Session) Workers() int {
	return s.workers
}

// Parallelism returns the default per-worker compute parallelism.
func (s *Session) Parallelism() int {
	return s.p
}

// Status returns the session's status aggregator.
func (s *Session) Status() *status.Status {
	return s.status
}

// Shutdown tears down resources associated with this session.
// It should be called when the session is discarded.
func (s *Session) Shutdown() {
	if s.shutdown != nil {
		s.shutdown()
	}
}

// command returns the command line of the current execution, quoted
// so that it may be pasted into sh.
func command() string {
	args := make([]string, len(os.Args))
	for i, arg := range os.Args {
		args[i] = "'" + strings.Replace(arg, "'", `'\''`, -1) + "'"
	}
	return strings.Join(args, " ")
}
