// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package metrics

import (
	"bytes"
	"context"
	"encoding/gob"
	"sync"
	"testing"
)

func TestCounter(t *testing.T) {
	var (
		a, b Scope
		c    = NewCounter("test")
	)
	c.Incr(&a, 2)
	if got, want := c.Value(&a), int64(2); got != want {
		t.Errorf("got %v, want %v", got, want)
	}

	c.Incr(&b, 123)
	if got, want := c.Value(&a), int64(2); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := c.Value(&b), int64(123); got != want {
		t.Errorf("got %v, want %v", got, want)
	}

	a.Merge(&b)
	if got, want := c.Value(&a), int64(125); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	// Counters are identified by name.
	if got, want := NewCounter("test").Value(&a), int64(125); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	a.Reset()
	if got, want := c.Value(&a), int64(0); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestConcurrentIncr(t *testing.T) {
	var (
		s  Scope
		c  = NewCounter("concurrent")
		wg sync.WaitGroup
	)
	const N = 16
	wg.Add(N)
	for i := 0; i < N; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Incr(&s, 1)
			}
		}()
	}
	wg.Wait()
	if got, want := c.Value(&s), int64(N*100); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestGob(t *testing.T) {
	var s Scope
	NewCounter("x").Incr(&s, 3)
	NewCounter("y").Incr(&s, 4)
	var b bytes.Buffer
	if err := gob.NewEncoder(&b).Encode(&s); err != nil {
		t.Fatal(err)
	}
	var u Scope
	if err := gob.NewDecoder(&b).Decode(&u); err != nil {
		t.Fatal(err)
	}
	if got, want := u.String(), "x:3 y:4"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestContextScope(t *testing.T) {
	var s Scope
	ctx := ScopedContext(context.Background(), &s)
	if got, want := ContextScope(ctx), &s; got != want {
		t.Errorf("got %p, want %p", got, want)
	}
}
