// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Command pregel runs the graph algorithms of package algo over
// adjacency files. Inputs and outputs may be local paths or S3 URLs.
//
// Usage:
//
//	pregel [flags] -job components -input s3://bucket/graph/ -output s3://bucket/labels
//
// Run pregel -list to print the available jobs.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/file/s3file"
	"github.com/grailbio/base/log"
	_ "github.com/grailbio/bigpregel/algo"
	"github.com/grailbio/bigpregel/exec"
	"github.com/grailbio/bigpregel/pregelcmd"
	"github.com/grailbio/bigpregel/storage"
)

func init() {
	file.RegisterImplementation("s3", s3file.NewImplementation(
		s3file.NewDefaultProvider(session.Options{})))
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: pregel [flags] -job name -input paths -output paths

Pregel runs the named job over the comma-separated input files or
prefixes, writing worker parts under each of the comma-separated output
paths. Available jobs: %s

Flags:
`, strings.Join(exec.Funcs(), ", "))
	flag.PrintDefaults()
	os.Exit(2)
}

func splitList(s string) []string {
	var list []string
	for _, elem := range strings.Split(s, ",") {
		if elem = strings.TrimSpace(elem); elem != "" {
			list = append(list, elem)
		}
	}
	return list
}

func main() {
	var (
		params   exec.Params
		job      = flag.String("job", "", "name of the job to run")
		list     = flag.Bool("list", false, "list the available jobs and exit")
		inputs   = flag.String("input", "", "comma-separated input files or prefixes")
		outputs  = flag.String("output", "", "comma-separated output paths")
		dispatch = storage.Balanced
	)
	flag.BoolVar(&params.Force, "force", false, "overwrite existing outputs")
	flag.Var(&dispatch, "dispatch", "input split dispatch: balanced or random")
	flag.IntVar(&params.NumPhases, "phases", 0, "number of phases to run; the job decides if zero")
	flag.StringVar(&params.Report, "report", "", "path of the per-worker message report")
	flag.BoolVar(&params.Compress, "compress", false, "zstd-compress output parts")
	flag.Usage = usage
	pregelcmd.Main(func(sess *exec.Session, args []string) error {
		if *list {
			for _, name := range exec.Funcs() {
				fmt.Println(name)
			}
			return nil
		}
		if len(args) != 0 || *job == "" {
			flag.Usage()
		}
		fn := exec.Lookup(*job)
		if fn == nil {
			return fmt.Errorf("job %q is not defined; available: %s", *job, strings.Join(exec.Funcs(), ", "))
		}
		params.Inputs = splitList(*inputs)
		params.Outputs = splitList(*outputs)
		params.Dispatch = dispatch
		res, err := sess.Run(context.Background(), fn, params)
		if err != nil {
			return err
		}
		log.Print(res)
		for _, step := range res.Steps {
			log.Debug.Printf("%s", step)
		}
		return nil
	})
}
