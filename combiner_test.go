// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bigpregel

import "testing"

func fold[M any](c Combiner[M], msgs ...M) M {
	acc := msgs[0]
	for _, m := range msgs[1:] {
		acc = c.Combine(acc, m)
	}
	return acc
}

func TestCombiners(t *testing.T) {
	msgs := []int{5, -2, 9, 3}
	if got, want := fold(Sum[int](), msgs...), 15; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := fold(Min[int](), msgs...), -2; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := fold(Max[int](), msgs...), 9; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := fold(Min[float64](), 2.5, 0.5, 1), 0.5; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	concat := CombinerFunc[string](func(x, y string) string { return x + y })
	if got, want := fold[string](concat, "a", "b", "c"), "abc"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}
