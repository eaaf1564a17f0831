// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bigpregel

import "strings"

// Bits is a small bitmap of named global booleans ("orbits"). Each
// worker maintains its own Bits during a superstep; the engine
// OR-reduces them across all workers at the start of the next
// superstep and then clears the local copy.
type Bits uint8

const (
	// ForceTerminate ends the superstep loop on every worker.
	ForceTerminate Bits = 1 << iota
	// WakeAll runs Compute on every vertex in the next superstep,
	// whether it is active or not.
	WakeAll
	// HasMsg indicates that some worker delivered messages, and keeps
	// the computation alive even when no vertex is active. The engine
	// raises it whenever a message is delivered locally.
	HasMsg

	// UserBit0 through UserBit4 are reserved for programs. A bit
	// raised with WorkerContext.SetBit is visible to every vertex in
	// the next superstep through WorkerContext.Bits.
	UserBit0
	UserBit1
	UserBit2
	UserBit3
	UserBit4
)

var bitNames = [...]string{"FORCE_TERMINATE", "WAKE_ALL", "HAS_MSG", "USER0", "USER1", "USER2", "USER3", "USER4"}

// Has tells whether all of the bits in mask are set in b.
func (b Bits) Has(mask Bits) bool { return b&mask == mask }

// String returns a "|"-separated list of the set bits.
func (b Bits) String() string {
	if b == 0 {
		return "none"
	}
	var names []string
	for i, name := range bitNames {
		if b&(1<<uint(i)) != 0 {
			names = append(names, name)
		}
	}
	return strings.Join(names, "|")
}
