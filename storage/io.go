// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package storage

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/grailbio/base/compress/zstd"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/grailbio/base/log"
)

// maxLine is the longest input line accepted by ReadLines.
const maxLine = 64 << 20

// ReadLines calls fn with every line of the split, without its line
// terminator. Splits whose path ends in ".zst" are decompressed.
func ReadLines(ctx context.Context, split Split, fn func(line string) error) (err error) {
	f, err := file.Open(ctx, split.Path)
	if err != nil {
		return errors.E("open", split.Path, err)
	}
	defer errors.CleanUpCtx(ctx, f.Close, &err)
	var r io.Reader = f.Reader(ctx)
	if strings.HasSuffix(split.Path, ".zst") {
		var zr io.ReadCloser
		if zr, err = zstd.NewReader(r); err != nil {
			return errors.E("zstd", split.Path, err)
		}
		defer fileio.CloseAndReport(zr, &err)
		r = zr
	}
	scan := bufio.NewScanner(r)
	scan.Buffer(make([]byte, 64<<10), maxLine)
	for scan.Scan() {
		if err := fn(scan.Text()); err != nil {
			return err
		}
	}
	if err := scan.Err(); err != nil {
		return errors.E("read", split.Path, err)
	}
	return nil
}

// PartName returns the name of rank's part within an output.
func PartName(rank int, compress bool) string {
	name := fmt.Sprintf("part_%04d", rank)
	if compress {
		name += ".zst"
	}
	return name
}

// Parts writes one part per output path for a single worker.
type Parts struct {
	files   []file.File
	zws     []io.WriteCloser
	bufs    []*bufio.Writer
	writers []io.Writer
}

// CreateParts creates rank's part under each of the provided outputs.
// Parts are zstd-compressed if compress is true.
func CreateParts(ctx context.Context, outputs []string, rank int, compress bool) (*Parts, error) {
	p := new(Parts)
	for _, output := range outputs {
		path := file.Join(output, PartName(rank, compress))
		f, err := file.Create(ctx, path)
		if err != nil {
			p.Discard(ctx)
			return nil, errors.E("create", path, err)
		}
		p.files = append(p.files, f)
		w := f.Writer(ctx)
		if compress {
			zw, err := zstd.NewWriter(w)
			if err != nil {
				p.Discard(ctx)
				return nil, errors.E("zstd", path, err)
			}
			p.zws = append(p.zws, zw)
			w = zw
		}
		buf := bufio.NewWriter(w)
		p.bufs = append(p.bufs, buf)
		p.writers = append(p.writers, buf)
	}
	return p, nil
}

// Writers returns the part writers, one for each output in order.
func (p *Parts) Writers() []io.Writer { return p.writers }

// Close flushes and closes every part.
func (p *Parts) Close(ctx context.Context) (err error) {
	for i, f := range p.files {
		if flushErr := p.bufs[i].Flush(); flushErr != nil && err == nil {
			err = flushErr
		}
		if i < len(p.zws) {
			fileio.CloseAndReport(p.zws[i], &err)
		}
		errors.CleanUpCtx(ctx, f.Close, &err)
	}
	return
}

// Discard abandons every part without committing it. Compressors are
// closed first to release their resources; their errors are ignored.
func (p *Parts) Discard(ctx context.Context) {
	for _, zw := range p.zws {
		_ = zw.Close()
	}
	p.zws = nil
	for _, f := range p.files {
		if err := f.Discard(ctx); err != nil {
			log.Error.Printf("discard %s: %v", f.Name(), err)
		}
	}
}
