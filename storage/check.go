// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package storage

import (
	"context"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
)

// CheckPaths verifies the path preconditions of a job: there must be
// at least one input and one output; every input must exist; and no
// output may have existing content unless force is set, in which case
// the content is removed.
func CheckPaths(ctx context.Context, inputs, outputs []string, force bool) error {
	if len(inputs) == 0 {
		return errors.E(errors.Invalid, "no input paths")
	}
	if len(outputs) == 0 {
		return errors.E(errors.Invalid, "no output paths")
	}
	if _, err := Splits(ctx, inputs); err != nil {
		return err
	}
	return CheckOutputs(ctx, outputs, force)
}

// CheckOutputs verifies that no output has existing content. If force
// is set, existing content is removed instead.
func CheckOutputs(ctx context.Context, outputs []string, force bool) error {
	for _, output := range outputs {
		var existing []string
		lst := file.List(ctx, output)
		for lst.Scan() {
			existing = append(existing, lst.Path())
		}
		if err := lst.Err(); err != nil && !notExist(err) {
			return errors.E("listing output", output, err)
		}
		if len(existing) == 0 {
			if _, err := file.Stat(ctx, output); err == nil {
				existing = append(existing, output)
			}
		}
		if len(existing) == 0 {
			continue
		}
		if !force {
			return errors.E(errors.Exists, "output path", output, "already exists")
		}
		for _, path := range existing {
			if err := file.Remove(ctx, path); err != nil && !notExist(err) {
				return errors.E("removing", path, err)
			}
		}
		log.Printf("removed %d existing files under %s", len(existing), output)
	}
	return nil
}
