// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/bigpregel"
	"github.com/grailbio/bigpregel/codec"
	"github.com/grailbio/bigpregel/comm"
	"github.com/grailbio/bigpregel/metrics"
)

var (
	deliveredCounter = metrics.NewCounter("delivered")
	droppedCounter   = metrics.NewCounter("dropped")
	vaddCounter      = metrics.NewCounter("vadd")
)

// A batch is the unit exchanged between a pair of workers in one
// superstep. Vertex additions are applied before messages, so that a
// vertex added in a superstep receives the messages sent to it in that
// same superstep.
type batch[K comparable, V, M any] struct {
	Added    []bigpregel.Vertex[K, V]
	Messages []bigpregel.Envelope[K, M]
}

// A messageBuffer stages the messages and vertex additions produced by
// a worker's compute, routes them to their owners, and holds the
// messages delivered to each local vertex until they are consumed.
// Slot i holds the messages of the worker's i'th vertex.
type messageBuffer[K comparable, V, M any] struct {
	part     bigpregel.Partitioner[K]
	combiner bigpregel.Combiner[M]

	index map[K]int
	slots [][]M

	// Outgoing messages and vertex additions, indexed by destination
	// rank.
	out   [][]bigpregel.Envelope[K, M]
	added [][]*bigpregel.Vertex[K, V]

	// Per-superstep local counters.
	delivered, dropped, vadd int64
}

func newMessageBuffer[K comparable, V, M any](part bigpregel.Partitioner[K], combiner bigpregel.Combiner[M]) *messageBuffer[K, V, M] {
	n := part.NumWorkers()
	return &messageBuffer[K, V, M]{
		part:     part,
		combiner: combiner,
		out:      make([][]bigpregel.Envelope[K, M], n),
		added:    make([][]*bigpregel.Vertex[K, V], n),
	}
}

// init binds a slot to each of the provided vertices, by position.
func (b *messageBuffer[K, V, M]) init(vertices []*bigpregel.Vertex[K, V]) {
	b.index = make(map[K]int, len(vertices))
	b.slots = make([][]M, len(vertices))
	for i, v := range vertices {
		b.index[v.ID] = i
	}
}

// take returns the messages held for the i'th vertex and empties its
// slot.
func (b *messageBuffer[K, V, M]) take(i int) []M {
	msgs := b.slots[i]
	b.slots[i] = nil
	return msgs
}

// pending tells whether the i'th vertex has queued messages.
func (b *messageBuffer[K, V, M]) pending(i int) bool {
	return len(b.slots[i]) > 0
}

func (b *messageBuffer[K, V, M]) addMessage(e bigpregel.Envelope[K, M]) {
	dst := b.part.Owner(e.Target)
	b.out[dst] = append(b.out[dst], e)
}

func (b *messageBuffer[K, V, M]) addVertex(v *bigpregel.Vertex[K, V]) {
	dst := b.part.Owner(v.ID)
	b.added[dst] = append(b.added[dst], v)
}

// combine merges staged messages that share a target. Merged messages
// take the position of the target's first message.
func (b *messageBuffer[K, V, M]) combine() {
	if b.combiner == nil {
		return
	}
	for dst, out := range b.out {
		if len(out) < 2 {
			continue
		}
		pos := make(map[K]int, len(out))
		n := 0
		for _, e := range out {
			if i, ok := pos[e.Target]; ok {
				out[i].Payload = b.combiner.Combine(out[i].Payload, e.Payload)
				continue
			}
			pos[e.Target] = n
			out[n] = e
			n++
		}
		for i := n; i < len(out); i++ {
			out[i] = bigpregel.Envelope[K, M]{}
		}
		b.out[dst] = out[:n]
	}
}

// syncMessages exchanges the staged messages and vertex additions with
// every other worker. Received additions of ids unknown to this worker
// become new vertices, which are returned in slot order; received
// messages are appended to their target's slot, or dropped if the
// target does not exist. Staged state is cleared.
func (b *messageBuffer[K, V, M]) syncMessages(ctx context.Context, c comm.Communicator, scope *metrics.Scope) ([]*bigpregel.Vertex[K, V], error) {
	b.delivered, b.dropped, b.vadd = 0, 0, 0
	bufs := make([][]byte, len(b.out))
	for dst := range bufs {
		if len(b.out[dst]) == 0 && len(b.added[dst]) == 0 {
			continue
		}
		bat := batch[K, V, M]{Messages: b.out[dst]}
		if len(b.added[dst]) > 0 {
			bat.Added = make([]bigpregel.Vertex[K, V], len(b.added[dst]))
			for i, v := range b.added[dst] {
				bat.Added[i] = *v
			}
		}
		p, err := codec.Marshal(bat)
		if err != nil {
			return nil, errors.E(errors.Fatal, "encoding messages", err)
		}
		bufs[dst] = p
		b.out[dst] = nil
		b.added[dst] = nil
	}
	in, err := comm.AllToAll(ctx, c, bufs)
	if err != nil {
		return nil, err
	}
	batches := make([]batch[K, V, M], len(in))
	for src, p := range in {
		if len(p) == 0 {
			continue
		}
		if err := codec.Unmarshal(p, &batches[src]); err != nil {
			return nil, errors.E(fmt.Sprintf("decoding messages from worker %d", src), err)
		}
	}
	var added []*bigpregel.Vertex[K, V]
	for src := range batches {
		for i := range batches[src].Added {
			v := batches[src].Added[i]
			if _, ok := b.index[v.ID]; ok {
				continue
			}
			b.index[v.ID] = len(b.slots)
			b.slots = append(b.slots, nil)
			added = append(added, &v)
		}
	}
	for src := range batches {
		for _, e := range batches[src].Messages {
			i, ok := b.index[e.Target]
			if !ok {
				b.dropped++
				continue
			}
			b.delivered++
			if b.combiner != nil && len(b.slots[i]) > 0 {
				b.slots[i][0] = b.combiner.Combine(b.slots[i][0], e.Payload)
				continue
			}
			b.slots[i] = append(b.slots[i], e.Payload)
		}
	}
	b.vadd = int64(len(added))
	deliveredCounter.Incr(scope, b.delivered)
	droppedCounter.Incr(scope, b.dropped)
	vaddCounter.Incr(scope, b.vadd)
	return added, nil
}
