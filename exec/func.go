// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/grailbio/bigpregel"
)

// A Func is a job registered for execution. Funcs are looked up by name
// on remote workers, so they must be defined in every binary that
// participates in a session, typically at package initialization:
//
//	var Components = exec.Define(&bigpregel.Job[uint64, uint64, uint64]{
//		Name:    "components",
//		Program: ...,
//	})
type Func struct {
	name   string
	runner runner
}

// Name returns the name of the job.
func (f *Func) Name() string { return f.name }

// String returns the name of the job.
func (f *Func) String() string { return f.name }

// A runner runs one worker of a job.
type runner interface {
	run(ctx context.Context, env workerEnv) (*workerReply, error)
}

var (
	funcsMu sync.Mutex
	funcs   = make(map[string]*Func)
)

// Define registers the provided job and returns its Func. Define panics
// if the job is malformed or its name is already taken, and (through
// bigpregel.DefaultHasher) if the job has no Hash and its id type
// cannot be hashed canonically.
func Define[K comparable, V, M any](job *bigpregel.Job[K, V, M]) *Func {
	if job.Name == "" {
		panic("exec.Define: job has no name")
	}
	if job.Program == nil {
		panic(fmt.Sprintf("exec.Define: job %s has no program", job.Name))
	}
	if job.Hash == nil {
		bigpregel.DefaultHasher[K]()
	}
	funcsMu.Lock()
	defer funcsMu.Unlock()
	if _, ok := funcs[job.Name]; ok {
		panic(fmt.Sprintf("exec.Define: job %s defined twice", job.Name))
	}
	f := &Func{name: job.Name, runner: &jobRunner[K, V, M]{job}}
	funcs[job.Name] = f
	return f
}

// Lookup returns the Func with the provided name, or nil.
func Lookup(name string) *Func {
	funcsMu.Lock()
	defer funcsMu.Unlock()
	return funcs[name]
}

// Funcs returns the names of every defined Func, sorted.
func Funcs() []string {
	funcsMu.Lock()
	defer funcsMu.Unlock()
	names := make([]string, 0, len(funcs))
	for name := range funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type jobRunner[K comparable, V, M any] struct {
	job *bigpregel.Job[K, V, M]
}

func (r *jobRunner[K, V, M]) run(ctx context.Context, env workerEnv) (*workerReply, error) {
	w, err := newWorker(r.job, env, nil)
	if err != nil {
		return nil, err
	}
	return w.run(ctx)
}
