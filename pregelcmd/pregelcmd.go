// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package pregelcmd provides utilities for implementing
// bigpregel-based command line tools. The main entry point,
// pregelcmd.Main, configures bigpregel from the shared profile and a
// common set of flags, and then invokes the user's driver code.
//
// A pregelcmd tool follows this form:
//
//	func main() {
//		var (
//			applicationFlag1 = flag.Int(...)
//			applicationFlag2 = ...
//		)
//		pregelcmd.Main(func(sess *exec.Session, args []string) error {
//			ctx := context.Background()
//			_, err := sess.Run(ctx, MyJob, exec.Params{...})
//			return err
//		})
//	}
package pregelcmd

import (
	"flag"
	"net/http"
	_ "net/http/pprof" // Pprof is exposed on the diagnostic web server.
	"os"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/must"
	"github.com/grailbio/base/status"
	"github.com/grailbio/bigpregel/exec"
	"github.com/grailbio/bigpregel/pregelconfig"
)

var (
	consoleStatus = flag.Bool("console-status", false, "display job status on the console")
	httpAddr      = flag.String("http", "", "address of the diagnostic web server; disabled if empty")
)

// Main is a convenient entry point for a pregelcmd. Main parses
// (global) flags, creates a session through package pregelconfig, and
// then invokes the provided func with the session and the unparsed
// arguments. Main terminates the program after the func returns: if
// it returns with an error, the error is reported and the process
// exits with code 1.
func Main(main func(sess *exec.Session, args []string) error) {
	must.Func = log.Fatal
	log.AddFlags()
	sess, shutdown := pregelconfig.Parse()
	DisplayStatus(sess, *consoleStatus, *httpAddr)
	err := main(sess, flag.Args())
	shutdown()
	if err != nil {
		log.Fatal(err)
	}
	os.Exit(0)
}

// DisplayStatus arranges for the session's status to be displayed on
// the console, if console is set, and on the web page /debug/status
// served at addr using http.DefaultServeMux, if addr is non-empty.
func DisplayStatus(sess *exec.Session, console bool, addr string) {
	if console {
		var reporter status.Reporter
		go reporter.Go(os.Stdout, sess.Status())
	}
	if addr == "" {
		return
	}
	http.Handle("/debug/status", status.Handler(sess.Status()))
	go func() {
		log.Printf("http status at %s", addr)
		if err := http.ListenAndServe(addr, nil); err != nil {
			log.Error.Printf("failed to start http server at %s: %v", addr, err)
		}
	}()
}
