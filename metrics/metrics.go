// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package metrics provides named counters that are collected per
// worker in scopes. Scopes are mergeable and gob-encodable so that
// the counters of every worker can be shipped to the driver and
// combined into a single job-wide view.
package metrics

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// A Counter is a named, monotonically increasing integer metric.
// Counters with the same name refer to the same metric in every scope,
// so they may be created independently by the driver and by workers.
type Counter struct {
	name string
}

// NewCounter returns the counter with the provided name.
func NewCounter(name string) Counter {
	if name == "" {
		panic("metrics.NewCounter: empty name")
	}
	return Counter{name}
}

// Name returns the counter's name.
func (c Counter) Name() string { return c.name }

// Incr increments the counter by n in the provided scope.
func (c Counter) Incr(scope *Scope, n int64) {
	scope.mu.Lock()
	if scope.vals == nil {
		scope.vals = make(map[string]int64)
	}
	scope.vals[c.name] += n
	scope.mu.Unlock()
}

// Value returns the counter's value in the provided scope.
func (c Counter) Value(scope *Scope) int64 {
	scope.mu.Lock()
	defer scope.mu.Unlock()
	return scope.vals[c.name]
}

// Scope is a collection of counter values. The zero Scope is empty and
// ready to use. Scopes are safe for concurrent use.
type Scope struct {
	mu   sync.Mutex
	vals map[string]int64
}

// Merge adds the values of scope u into scope s.
func (s *Scope) Merge(u *Scope) {
	if u == nil || u == s {
		return
	}
	vals := u.Snapshot()
	s.mu.Lock()
	if s.vals == nil {
		s.vals = make(map[string]int64)
	}
	for k, v := range vals {
		s.vals[k] += v
	}
	s.mu.Unlock()
}

// Reset clears all values in the scope.
func (s *Scope) Reset() {
	s.mu.Lock()
	s.vals = nil
	s.mu.Unlock()
}

// Snapshot returns a copy of the scope's values.
func (s *Scope) Snapshot() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	vals := make(map[string]int64, len(s.vals))
	for k, v := range s.vals {
		vals[k] = v
	}
	return vals
}

// String returns the scope's values sorted by name.
func (s *Scope) String() string {
	vals := s.Snapshot()
	keys := make([]string, 0, len(vals))
	for k := range vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		keys[i] = fmt.Sprintf("%s:%d", k, vals[k])
	}
	return strings.Join(keys, " ")
}

// GobEncode implements a custom gob encoder for scopes.
func (s *Scope) GobEncode() ([]byte, error) {
	var b bytes.Buffer
	err := gob.NewEncoder(&b).Encode(s.Snapshot())
	return b.Bytes(), err
}

// GobDecode implements a custom gob decoder for scopes.
func (s *Scope) GobDecode(p []byte) error {
	var vals map[string]int64
	if err := gob.NewDecoder(bytes.NewReader(p)).Decode(&vals); err != nil {
		return err
	}
	s.mu.Lock()
	s.vals = vals
	s.mu.Unlock()
	return nil
}

// contextKeyType is used to create unique context key for scopes,
// available only to code in this package.
type contextKeyType struct{}

// contextKey is the key used to attach scopes to contexts.
var contextKey contextKeyType

// ScopedContext returns a context with the provided scope attached.
// The scope may be retrieved by ContextScope.
func ScopedContext(ctx context.Context, scope *Scope) context.Context {
	return context.WithValue(ctx, contextKey, scope)
}

// ContextScope returns the scope attached to the provided context.
// ContextScope panics if the context does not have an attached scope.
func ContextScope(ctx context.Context) *Scope {
	s := ctx.Value(contextKey)
	if s == nil {
		panic("metrics: context does not provide metrics")
	}
	return s.(*Scope)
}
