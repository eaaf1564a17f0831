// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bigpregel

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"

	"github.com/spaolacci/murmur3"
)

// Hasher64 is implemented by id types that wish to provide their own
// partitioning hash.
type Hasher64 interface {
	// Hash64 returns a 64-bit hash of the value.
	Hash64() uint64
}

// A Hasher maps a vertex id to a 64-bit hash. Hashers must be pure:
// every worker must compute the same hash for the same id.
type Hasher[K comparable] func(id K) uint64

// DefaultHasher returns the default hasher for id type K. Integer ids
// are hashed with Mix64; strings with murmur3; ids implementing
// Hasher64 with their own method. Other ids are hashed with murmur3
// over a canonical encoding of their value: fields and elements in
// order, integers and floats widened to 64 bits little-endian, strings
// prefixed by their length. The encoding depends only on the value, so
// every process computes the same hash. DefaultHasher panics if K
// contains pointers, channels or unsafe pointers, whose identity does
// not survive across processes.
func DefaultHasher[K comparable]() Hasher[K] {
	var id K
	if _, ok := interface{}(id).(Hasher64); !ok {
		if err := checkHashable(reflect.TypeOf(&id).Elem()); err != nil {
			panic(fmt.Sprintf("bigpregel.DefaultHasher: %v", err))
		}
	}
	return func(id K) uint64 {
		return hashValue(id)
	}
}

// checkHashable returns an error if values of type t cannot be hashed
// canonically. Interface types are checked dynamically by hashValue.
func checkHashable(t reflect.Type) error {
	switch t.Kind() {
	case reflect.Ptr, reflect.Chan, reflect.UnsafePointer, reflect.Func, reflect.Map, reflect.Slice:
		return fmt.Errorf("cannot hash ids of type %s", t)
	case reflect.Array:
		return checkHashable(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if err := checkHashable(t.Field(i).Type); err != nil {
				return err
			}
		}
	}
	return nil
}

func hashValue(id interface{}) uint64 {
	switch v := id.(type) {
	case Hasher64:
		return v.Hash64()
	case int:
		return Mix64(uint64(v))
	case int8:
		return Mix64(uint64(v))
	case int16:
		return Mix64(uint64(v))
	case int32:
		return Mix64(uint64(v))
	case int64:
		return Mix64(uint64(v))
	case uint:
		return Mix64(uint64(v))
	case uint8:
		return Mix64(uint64(v))
	case uint16:
		return Mix64(uint64(v))
	case uint32:
		return Mix64(uint64(v))
	case uint64:
		return Mix64(v)
	case uintptr:
		return Mix64(uint64(v))
	case string:
		return murmur3.Sum64([]byte(v))
	}
	var e canonicalEncoder
	e.value(reflect.ValueOf(id))
	return murmur3.Sum64(e.buf)
}

// canonicalEncoder appends the canonical, history-independent encoding
// of a value.
type canonicalEncoder struct {
	buf     []byte
	scratch [8]byte
}

func (e *canonicalEncoder) uint64(x uint64) {
	binary.LittleEndian.PutUint64(e.scratch[:], x)
	e.buf = append(e.buf, e.scratch[:]...)
}

func (e *canonicalEncoder) string(s string) {
	e.uint64(uint64(len(s)))
	e.buf = append(e.buf, s...)
}

func (e *canonicalEncoder) value(v reflect.Value) {
	switch v.Kind() {
	case reflect.Bool:
		if v.Bool() {
			e.buf = append(e.buf, 1)
		} else {
			e.buf = append(e.buf, 0)
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		e.uint64(uint64(v.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		e.uint64(v.Uint())
	case reflect.Float32, reflect.Float64:
		e.uint64(math.Float64bits(v.Float()))
	case reflect.Complex64, reflect.Complex128:
		c := v.Complex()
		e.uint64(math.Float64bits(real(c)))
		e.uint64(math.Float64bits(imag(c)))
	case reflect.String:
		e.string(v.String())
	case reflect.Array:
		for i := 0; i < v.Len(); i++ {
			e.value(v.Index(i))
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			e.value(v.Field(i))
		}
	case reflect.Interface:
		if v.IsNil() {
			e.buf = append(e.buf, 0)
			return
		}
		e.buf = append(e.buf, 1)
		elem := v.Elem()
		if err := checkHashable(elem.Type()); err != nil {
			panic(fmt.Sprintf("bigpregel: %v", err))
		}
		e.string(elem.Type().String())
		e.value(elem)
	default:
		panic(fmt.Sprintf("bigpregel: cannot hash value of type %s", v.Type()))
	}
}

// Mix64 is a 64-bit avalanche mix of x, built from xor-shifts and
// multiplicative (shift-add) mixing. It is the default integer id hash.
func Mix64(x uint64) uint64 {
	x = ^x + (x << 21)
	x ^= x >> 24
	x = x + (x << 3) + (x << 8) // x * 265
	x ^= x >> 14
	x = x + (x << 2) + (x << 4) // x * 21
	x ^= x >> 28
	x += x << 31
	return x
}

// A Partitioner assigns vertex ids to the worker that owns them.
type Partitioner[K comparable] struct {
	hash Hasher[K]
	n    int
}

// NewPartitioner returns a partitioner over n workers using the
// provided hasher. The default hasher is used if h is nil.
func NewPartitioner[K comparable](h Hasher[K], n int) Partitioner[K] {
	if n <= 0 {
		panic("bigpregel.NewPartitioner: n <= 0")
	}
	if h == nil {
		h = DefaultHasher[K]()
	}
	return Partitioner[K]{hash: h, n: n}
}

// Owner returns the rank of the worker that owns id. Owner is a pure
// function of the id and the number of workers.
func (p Partitioner[K]) Owner(id K) int {
	return int(p.hash(id) % uint64(p.n))
}

// NumWorkers returns the number of workers the partitioner assigns to.
func (p Partitioner[K]) NumWorkers() int { return p.n }
