// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package comm

import (
	"context"

	"github.com/grailbio/bigpregel/codec"
)

// ScatterValue distributes parts[i] from the root to rank i, encoding
// the values with codec.
func ScatterValue[T any](ctx context.Context, c Communicator, parts []T) (T, error) {
	var (
		v    T
		bufs [][]byte
	)
	if c.Rank() == Root {
		bufs = make([][]byte, len(parts))
		for i := range parts {
			p, err := codec.Marshal(parts[i])
			if err != nil {
				return v, err
			}
			bufs[i] = p
		}
	}
	p, err := Scatter(ctx, c, bufs)
	if err != nil {
		return v, err
	}
	err = codec.Unmarshal(p, &v)
	return v, err
}

// BcastValue sends the root's v to every rank.
func BcastValue[T any](ctx context.Context, c Communicator, v T) (T, error) {
	var p []byte
	if c.Rank() == Root {
		var err error
		if p, err = codec.Marshal(v); err != nil {
			return v, err
		}
	}
	p, err := Bcast(ctx, c, p)
	if err != nil {
		return v, err
	}
	var w T
	err = codec.Unmarshal(p, &w)
	return w, err
}

// GatherValues collects v from every rank at the root, indexed by
// rank. Other ranks receive nil.
func GatherValues[T any](ctx context.Context, c Communicator, v T) ([]T, error) {
	p, err := codec.Marshal(v)
	if err != nil {
		return nil, err
	}
	bufs, err := Gather(ctx, c, p)
	if err != nil || bufs == nil {
		return nil, err
	}
	vals := make([]T, len(bufs))
	for i, p := range bufs {
		if err := codec.Unmarshal(p, &vals[i]); err != nil {
			return nil, err
		}
	}
	return vals, nil
}
