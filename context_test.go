// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bigpregel

import (
	"context"
	"testing"
)

func TestWorkerContext(t *testing.T) {
	info := &StepInfo{Rank: 2, NumWorkers: 3, Phase: 1, Step: 4, NumVertices: 10, NumActive: 7, StepMessages: 5, Bits: UserBit0}
	w := NewWorkerContext[string, int, float64](context.Background(), info)
	if got, want := w.Step(), 4; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := w.NumActive(), int64(7); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if !w.Bits().Has(UserBit0) {
		t.Errorf("bits %v: missing USER0", w.Bits())
	}
	w.Send("a", 1.5)
	w.Send("b", 2)
	w.AddVertex(NewVertex("c", 0))
	w.SetBit(UserBit1)
	w.WakeAll()
	out, added, bits := w.Drain()
	if got, want := len(out), 2; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got, want := out[1], (Envelope[string, float64]{"b", 2}); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := len(added), 1; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if !bits.Has(UserBit1 | WakeAll) {
		t.Errorf("bits %v: missing USER1|WAKE_ALL", bits)
	}
	if bits.Has(ForceTerminate) {
		t.Errorf("bits %v: unexpected FORCE_TERMINATE", bits)
	}
	out, added, bits = w.Drain()
	if out != nil || added != nil || bits != 0 {
		t.Errorf("drain did not reset: %v %v %v", out, added, bits)
	}
}

func TestBitsString(t *testing.T) {
	for _, c := range []struct {
		bits Bits
		want string
	}{
		{0, "none"},
		{ForceTerminate, "FORCE_TERMINATE"},
		{HasMsg | UserBit4, "HAS_MSG|USER4"},
	} {
		if got := c.bits.String(); got != c.want {
			t.Errorf("got %v, want %v", got, c.want)
		}
	}
}

func TestVertex(t *testing.T) {
	v := NewVertex(7, "x")
	if !v.IsActive() {
		t.Error("new vertex not active")
	}
	v.VoteToHalt()
	if got, want := v.String(), "vertex(7 halted): x"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	v.Activate()
	if !v.IsActive() {
		t.Error("vertex not reactivated")
	}
}
