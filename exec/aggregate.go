// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"fmt"

	"github.com/grailbio/base/data"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/bigpregel"
	"github.com/grailbio/bigpregel/comm"
)

// aggSwitch is the total encoded size of all partial aggregates below
// which partials are collected with a gather. Larger totals are sent to
// the coordinator point-to-point, one worker at a time.
var aggSwitch int64 = 10 << 20

// syncAggregate reduces the workers' partial aggregates on the
// coordinator and broadcasts the final value, which is returned on
// every worker. The coordinator's own partial is already folded into
// its aggregator and is not sent.
func syncAggregate[K comparable, V any](ctx context.Context, c comm.Communicator, agg bigpregel.AggregatorHandle[K, V]) (interface{}, error) {
	var (
		partial []byte
		err     error
	)
	if c.Rank() != comm.Root {
		if partial, err = agg.EncodePartial(); err != nil {
			return nil, errors.E(errors.Fatal, "encoding partial aggregate", err)
		}
	}
	total, err := comm.AllSum(ctx, c, int64(len(partial)))
	if err != nil {
		return nil, err
	}
	if total < aggSwitch {
		if c.Rank() == comm.Root {
			log.Debug.Printf("aggregate: gathering %s of partials", data.Size(total))
		}
		partials, err := comm.Gather(ctx, c, partial)
		if err != nil {
			return nil, err
		}
		for rank, p := range partials {
			if rank == comm.Root {
				continue
			}
			if err := agg.StepFinalEncoded(p); err != nil {
				return nil, errors.E(fmt.Sprintf("aggregate from worker %d", rank), err)
			}
		}
	} else {
		if c.Rank() == comm.Root {
			log.Debug.Printf("aggregate: receiving %s of partials point-to-point", data.Size(total))
			for rank := 0; rank < c.Size(); rank++ {
				if rank == comm.Root {
					continue
				}
				p, err := c.Recv(ctx, rank)
				if err != nil {
					return nil, err
				}
				if err := agg.StepFinalEncoded(p); err != nil {
					return nil, errors.E(fmt.Sprintf("aggregate from worker %d", rank), err)
				}
			}
		} else if err := c.Send(ctx, comm.Root, partial); err != nil {
			return nil, err
		}
	}
	var final []byte
	if c.Rank() == comm.Root {
		if final, err = agg.EncodeFinal(); err != nil {
			return nil, errors.E(errors.Fatal, "encoding final aggregate", err)
		}
	}
	if final, err = comm.Bcast(ctx, c, final); err != nil {
		return nil, err
	}
	return agg.DecodeFinal(final)
}
