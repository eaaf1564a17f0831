// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bigpregel

// A Combiner merges two messages addressed to the same vertex into
// one. Combiners are applied by the sending worker before messages are
// exchanged, so they must be associative and commutative: the order in
// which messages arrive from different senders is unspecified.
type Combiner[M any] interface {
	Combine(existing, incoming M) M
}

// CombinerFunc adapts an ordinary function to a Combiner.
type CombinerFunc[M any] func(existing, incoming M) M

// Combine implements Combiner.
func (f CombinerFunc[M]) Combine(existing, incoming M) M { return f(existing, incoming) }

// Number is the set of types supported by the arithmetic combiners.
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// Sum returns a combiner that adds messages.
func Sum[M Number]() Combiner[M] {
	return CombinerFunc[M](func(x, y M) M { return x + y })
}

// Min returns a combiner that keeps the smallest message.
func Min[M Number]() Combiner[M] {
	return CombinerFunc[M](func(x, y M) M {
		if y < x {
			return y
		}
		return x
	})
}

// Max returns a combiner that keeps the largest message.
func Max[M Number]() Combiner[M] {
	return CombinerFunc[M](func(x, y M) M {
		if y > x {
			return y
		}
		return x
	})
}
