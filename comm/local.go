// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package comm

import "context"

// NewLocal returns n communicators, indexed by rank, connected through
// an in-process hub. The returned hub may be closed to abort the group.
func NewLocal(n int) ([]Communicator, *Hub) {
	h := NewHub(n)
	comms := make([]Communicator, n)
	for i := range comms {
		comms[i] = &local{hub: h, rank: i}
	}
	return comms, h
}

type local struct {
	hub  *Hub
	rank int
	seq  uint64
}

func (l *local) Rank() int { return l.rank }
func (l *local) Size() int { return l.hub.Size() }

func (l *local) Exchange(ctx context.Context, out [][]byte) ([][]byte, error) {
	seq := l.seq
	l.seq++
	return l.hub.Exchange(ctx, l.rank, seq, out)
}

func (l *local) Send(ctx context.Context, dst int, p []byte) error {
	return l.hub.Post(l.rank, dst, p)
}

func (l *local) Recv(ctx context.Context, src int) ([]byte, error) {
	return l.hub.Take(ctx, src, l.rank)
}
