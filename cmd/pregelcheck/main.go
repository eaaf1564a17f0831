// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Command pregelcheck reports bigpregel jobs that are not defined at
// package initialization.
//
//	$ pregelcheck ./...
package main

import (
	"github.com/grailbio/bigpregel/analysis/definecheck"
	"golang.org/x/tools/go/analysis/singlechecker"
)

func main() {
	singlechecker.Main(definecheck.Analyzer)
}
