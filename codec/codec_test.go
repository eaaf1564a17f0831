// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package codec

import (
	"bytes"
	"io"
	"reflect"
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/grailbio/base/errors"
)

type testEnvelope struct {
	Target  uint64
	Payload []int
}

func TestCodec(t *testing.T) {
	const N = 100
	fz := fuzz.New()
	fz.NilChance(0)
	fz.NumElements(N, N)
	var (
		c0 []string
		c1 []testEnvelope
	)
	fz.Fuzz(&c0)
	fz.Fuzz(&c1)

	var b bytes.Buffer
	enc := NewEncoder(&b)
	if err := enc.Encode(c0); err != nil {
		t.Fatal(err)
	}
	if err := enc.Encode(c1); err != nil {
		t.Fatal(err)
	}
	dec := NewDecoder(&b)
	var (
		d0 []string
		d1 []testEnvelope
	)
	if err := dec.Decode(&d0); err != nil {
		t.Fatal(err)
	}
	if err := dec.Decode(&d1); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(c0, d0) {
		t.Error("strings mismatch")
	}
	if !reflect.DeepEqual(c1, d1) {
		t.Error("envelopes mismatch")
	}
	if got, want := dec.Decode(&d0), io.EOF; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestMarshal(t *testing.T) {
	for _, v := range []interface{}{true, int64(12345), "hello", []uint64{1, 2, 3}} {
		p, err := Marshal(v)
		if err != nil {
			t.Fatal(err)
		}
		out := reflect.New(reflect.TypeOf(v))
		if err := Unmarshal(p, out.Interface()); err != nil {
			t.Fatal(err)
		}
		if got, want := out.Elem().Interface(), v; !reflect.DeepEqual(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}

func TestCorruption(t *testing.T) {
	p, err := Marshal("a string long enough to corrupt")
	if err != nil {
		t.Fatal(err)
	}
	// Flip a bit inside the string payload; gob still decodes it
	// but the checksum must not match.
	i := bytes.Index(p, []byte("corrupt"))
	if i < 0 {
		t.Fatal("payload not found")
	}
	p[i] ^= 1
	var s string
	err = Unmarshal(p, &s)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(errors.Integrity, err) {
		t.Errorf("unexpected error %v", err)
	}
}

func TestEmpty(t *testing.T) {
	var s string
	if err := Unmarshal(nil, &s); !errors.Is(errors.Invalid, err) {
		t.Errorf("unexpected error %v", err)
	}
}
