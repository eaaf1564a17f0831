// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package comm implements the collective transport used by cooperating
// workers. A Communicator provides one rendezvous primitive, Exchange,
// in which every rank supplies a buffer for every other rank and
// receives a buffer from every other rank, along with reliable, ordered
// point-to-point messaging. The remaining collectives are derived from
// these.
//
// All collective calls block until every rank has made the matching
// call. There is no partial failure: any error returned by a
// collective is fatal to the job.
package comm

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/grailbio/base/errors"
)

// Root is the rank of the coordinator.
const Root = 0

// A Communicator connects one rank to its peers. Communicators are not
// safe for concurrent use: each rank issues its collective calls from
// a single control flow, in the same order as every other rank.
type Communicator interface {
	// Rank returns the rank of the caller.
	Rank() int
	// Size returns the number of ranks.
	Size() int
	// Exchange sends out[i] to rank i and returns, for each rank j,
	// the buffer that rank j sent to the caller. len(out) must equal
	// Size.
	Exchange(ctx context.Context, out [][]byte) ([][]byte, error)
	// Send sends p to rank dst. Messages between a pair of ranks are
	// delivered in order.
	Send(ctx context.Context, dst int, p []byte) error
	// Recv receives the next message sent by rank src.
	Recv(ctx context.Context, src int) ([]byte, error)
}

// Scatter distributes parts[i] from the root to rank i. Only the root's
// parts are consulted.
func Scatter(ctx context.Context, c Communicator, parts [][]byte) ([]byte, error) {
	out := make([][]byte, c.Size())
	if c.Rank() == Root {
		if len(parts) != c.Size() {
			return nil, errors.E(errors.Invalid, "comm.Scatter: wrong number of parts")
		}
		copy(out, parts)
	}
	in, err := c.Exchange(ctx, out)
	if err != nil {
		return nil, err
	}
	return in[Root], nil
}

// Gather collects p from every rank at the root. The root receives the
// buffers indexed by rank; other ranks receive nil.
func Gather(ctx context.Context, c Communicator, p []byte) ([][]byte, error) {
	out := make([][]byte, c.Size())
	out[Root] = p
	in, err := c.Exchange(ctx, out)
	if err != nil {
		return nil, err
	}
	if c.Rank() != Root {
		return nil, nil
	}
	return in, nil
}

// Bcast sends the root's p to every rank.
func Bcast(ctx context.Context, c Communicator, p []byte) ([]byte, error) {
	out := make([][]byte, c.Size())
	if c.Rank() == Root {
		for i := range out {
			out[i] = p
		}
	}
	in, err := c.Exchange(ctx, out)
	if err != nil {
		return nil, err
	}
	return in[Root], nil
}

// AllToAll is Exchange.
func AllToAll(ctx context.Context, c Communicator, out [][]byte) ([][]byte, error) {
	return c.Exchange(ctx, out)
}

// AllSum returns the sum of x over every rank.
func AllSum(ctx context.Context, c Communicator, x int64) (int64, error) {
	buf := make([]byte, binary.MaxVarintLen64)
	buf = buf[:binary.PutVarint(buf, x)]
	out := make([][]byte, c.Size())
	for i := range out {
		out[i] = buf
	}
	in, err := c.Exchange(ctx, out)
	if err != nil {
		return 0, err
	}
	var sum int64
	for rank, p := range in {
		v, n := binary.Varint(p)
		if n <= 0 {
			return 0, errors.E(errors.Integrity, fmt.Sprintf("comm.AllSum: bad value from rank %d", rank))
		}
		sum += v
	}
	return sum, nil
}

// AllOr returns the bitwise OR of b over every rank.
func AllOr(ctx context.Context, c Communicator, b uint8) (uint8, error) {
	out := make([][]byte, c.Size())
	for i := range out {
		out[i] = []byte{b}
	}
	in, err := c.Exchange(ctx, out)
	if err != nil {
		return 0, err
	}
	var or uint8
	for rank, p := range in {
		if len(p) != 1 {
			return 0, errors.E(errors.Integrity, fmt.Sprintf("comm.AllOr: bad value from rank %d", rank))
		}
		or |= p[0]
	}
	return or, nil
}

// Barrier returns once every rank has called Barrier.
func Barrier(ctx context.Context, c Communicator) error {
	_, err := c.Exchange(ctx, make([][]byte, c.Size()))
	return err
}
