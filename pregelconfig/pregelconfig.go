// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package pregelconfig provides a mechanism to create a bigpregel
// session from a shared configuration. Pregelconfig uses the
// configuration mechanism in package
// github.com/grailbio/base/config, and reads a default profile from
// $HOME/.bigpregel/config.
package pregelconfig

import (
	"flag"
	"os"

	"github.com/grailbio/base/config"
	"github.com/grailbio/base/must"

	// Used to provide ec2system.System bigmachines.
	_ "github.com/grailbio/bigmachine/ec2system"
	"github.com/grailbio/bigpregel/exec"
)

// Path determines the location of the bigpregel profile read
// by Parse.
var Path = os.ExpandEnv("$HOME/.bigpregel/config")

// Parse registers configuration flags and calls flag.Parse. It reads
// bigpregel configuration from Path defined in this package. Parse
// returns the session as configured by the configuration and any flags
// provided, and a function that shuts it down. Parse panics if session
// creation fails.
func Parse() (sess *exec.Session, shutdown func()) {
	config.RegisterFlags("", Path)
	flag.Parse()
	must.Nil(config.ProcessFlags())
	config.Must("bigpregel", &sess)
	return sess, sess.Shutdown
}
