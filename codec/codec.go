// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package codec implements the wire encoding used to move vertices,
// messages and aggregator values between workers. Values are gob
// encoded; each value is followed by a CRC32 checksum of its encoding
// so that corrupted transfers are detected on receipt.
package codec

import (
	"bufio"
	"bytes"
	"encoding/gob"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"strings"

	"github.com/grailbio/base/errors"
)

// An Encoder writes a stream of checksummed values to an
// underlying writer. Encoders maintain gob type state across values,
// so a stream must be read by a single Decoder.
type Encoder struct {
	enc *gob.Encoder
	crc hash.Hash32
}

// NewEncoder returns a new Encoder that writes to w.
func NewEncoder(w io.Writer) *Encoder {
	crc := crc32.NewIEEE()
	return &Encoder{
		enc: gob.NewEncoder(io.MultiWriter(w, crc)),
		crc: crc,
	}
}

// Encode encodes v and its checksum.
func (e *Encoder) Encode(v interface{}) error {
	e.crc.Reset()
	if err := e.enc.Encode(v); err != nil {
		// User-defined vertex, message and aggregator types that gob
		// cannot handle will fail every time; there is no point in
		// retrying them.
		if strings.HasPrefix(err.Error(), "gob: ") {
			err = errors.E(errors.Fatal, err)
		}
		return err
	}
	return e.enc.Encode(e.crc.Sum32())
}

// A Decoder reads values written by an Encoder.
type Decoder struct {
	dec *gob.Decoder
	crc hash.Hash32
}

// NewDecoder returns a new Decoder that reads from r.
func NewDecoder(r io.Reader) *Decoder {
	// Gob uses the presence of io.ByteReader to decide whether the
	// reader is already buffered. io.TeeReader does not implement it,
	// and a buffer inserted by gob would read ahead of the checksum.
	// We buffer underneath the tee ourselves and claim ByteReader.
	crc := crc32.NewIEEE()
	if _, ok := r.(io.ByteReader); !ok {
		r = bufio.NewReader(r)
	}
	r = io.TeeReader(r, crc)
	return &Decoder{dec: gob.NewDecoder(readerByteReader{Reader: r}), crc: crc}
}

// Decode decodes the next value into v, which must be a pointer, and
// verifies its checksum. Decode returns io.EOF at the end of the stream.
func (d *Decoder) Decode(v interface{}) error {
	d.crc.Reset()
	if err := d.dec.Decode(v); err != nil {
		return err
	}
	sum := d.crc.Sum32()
	var decoded uint32
	if err := d.dec.Decode(&decoded); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return err
	}
	if sum != decoded {
		return errors.E(errors.Integrity, fmt.Errorf("computed checksum %x but expected checksum %x", sum, decoded))
	}
	return nil
}

// readerByteReader provides an (invalid) implementation of
// io.ByteReader to gob.Decoder. See NewDecoder for details.
type readerByteReader struct {
	io.Reader
	io.ByteReader
}

// Marshal encodes a single value into a self-contained buffer.
func Marshal(v interface{}) ([]byte, error) {
	var b bytes.Buffer
	if err := NewEncoder(&b).Encode(v); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// Unmarshal decodes a buffer produced by Marshal into v.
func Unmarshal(p []byte, v interface{}) error {
	if len(p) == 0 {
		return errors.E(errors.Invalid, "codec: empty buffer")
	}
	return NewDecoder(bytes.NewReader(p)).Decode(v)
}
