// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package comm

import (
	"context"
	"fmt"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/sync/ctxsync"
)

// A Hub is the rendezvous point of a group of ranks. Every rank numbers
// its exchanges; an exchange completes when all ranks have submitted
// the same sequence number. The hub also holds a FIFO mailbox for each
// ordered pair of ranks.
type Hub struct {
	n int

	mu    sync.Mutex
	cond  *ctxsync.Cond
	err   error
	round map[uint64]*round
	boxes map[[2]int][][]byte
}

type round struct {
	// in[src][dst] is the buffer sent by src to dst.
	in       [][][]byte
	arrived  int
	departed int
}

// NewHub returns a hub for n ranks.
func NewHub(n int) *Hub {
	if n <= 0 {
		panic("comm.NewHub: n <= 0")
	}
	h := &Hub{
		n:     n,
		round: make(map[uint64]*round),
		boxes: make(map[[2]int][][]byte),
	}
	h.cond = ctxsync.NewCond(&h.mu)
	return h
}

// Size returns the number of ranks served by the hub.
func (h *Hub) Size() int { return h.n }

func (h *Hub) check(rank int) error {
	if rank < 0 || rank >= h.n {
		return errors.E(errors.Invalid, fmt.Sprintf("comm: rank %d out of range [0, %d)", rank, h.n))
	}
	return nil
}

// Exchange submits the seq'th exchange of rank and waits for its
// peers.
func (h *Hub) Exchange(ctx context.Context, rank int, seq uint64, out [][]byte) ([][]byte, error) {
	if err := h.check(rank); err != nil {
		return nil, err
	}
	if len(out) != h.n {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("comm: exchange of %d buffers among %d ranks", len(out), h.n))
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return nil, h.err
	}
	r := h.round[seq]
	if r == nil {
		r = &round{in: make([][][]byte, h.n)}
		h.round[seq] = r
	}
	if r.in[rank] != nil {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("comm: rank %d submitted exchange %d twice", rank, seq))
	}
	r.in[rank] = out
	r.arrived++
	if r.arrived == h.n {
		h.cond.Broadcast()
	}
	for r.arrived < h.n && h.err == nil {
		if err := h.cond.Wait(ctx); err != nil {
			return nil, errors.E(errors.Fatal, fmt.Sprintf("comm: rank %d abandoned exchange %d", rank, seq), err)
		}
	}
	if h.err != nil {
		return nil, h.err
	}
	in := make([][]byte, h.n)
	for src := range in {
		in[src] = r.in[src][rank]
	}
	r.departed++
	if r.departed == h.n {
		delete(h.round, seq)
	}
	return in, nil
}

// Post appends p to the mailbox from src to dst.
func (h *Hub) Post(src, dst int, p []byte) error {
	if err := h.check(src); err != nil {
		return err
	}
	if err := h.check(dst); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	key := [2]int{src, dst}
	h.boxes[key] = append(h.boxes[key], p)
	h.cond.Broadcast()
	return nil
}

// Take removes and returns the oldest message in the mailbox from src
// to dst, waiting for one to arrive.
func (h *Hub) Take(ctx context.Context, src, dst int) ([]byte, error) {
	if err := h.check(src); err != nil {
		return nil, err
	}
	if err := h.check(dst); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	key := [2]int{src, dst}
	for len(h.boxes[key]) == 0 && h.err == nil {
		if err := h.cond.Wait(ctx); err != nil {
			return nil, errors.E(errors.Fatal, fmt.Sprintf("comm: rank %d abandoned receive from %d", dst, src), err)
		}
	}
	if h.err != nil {
		return nil, h.err
	}
	box := h.boxes[key]
	p := box[0]
	box[0] = nil
	if len(box) == 1 {
		delete(h.boxes, key)
	} else {
		h.boxes[key] = box[1:]
	}
	return p, nil
}

// Close fails every pending and future call on the hub with err.
func (h *Hub) Close(err error) {
	if err == nil {
		err = errors.E(errors.Fatal, "comm: hub closed")
	}
	h.mu.Lock()
	if h.err == nil {
		h.err = errors.E(errors.Fatal, err)
	}
	h.cond.Broadcast()
	h.mu.Unlock()
}
