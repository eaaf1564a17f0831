// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"github.com/grailbio/base/config"
	"github.com/grailbio/bigmachine"
)

func init() {
	config.Register("bigpregel", func(inst *config.Instance) {
		sess := newSession()
		inst.IntVar(&sess.workers, "workers", DefaultWorkers, "number of workers that run each job")
		inst.IntVar(&sess.p, "parallelism", 1, "per-worker compute parallelism")
		var system bigmachine.System
		inst.InstanceVar(&system, "system", "", "the bigmachine system used for job execution; jobs run in-process if empty")
		inst.Doc = "bigpregel configures the bigpregel runtime"
		inst.New = func() (interface{}, error) {
			if system != nil {
				sess.executor = newBigmachineExecutor(system)
			} else {
				sess.executor = newLocalExecutor()
			}
			sess.start()
			return sess, nil
		}
	})
}
