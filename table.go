// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// package oamap is an open-addressing hash table from string keys to uint64
// values. See https://en.wikipedia.org/wiki/Open_addressing.
//
// # Probing
//
// Every key has a home bucket, hash(key) % capacity. A lookup checks the home
// bucket and then walks a probe sequence of offsets from home, wrapping
// around the end of the bucket array. The offsets are a random permutation of
// [1, capacity-1] generated with a Fisher-Yates shuffle whenever the table is
// created or resized. The same permutation is shared by every key for as long
// as the table keeps that capacity. Because it is a permutation, a probe that
// runs to completion visits every bucket exactly once.
//
// # Buckets
//
// A bucket is in one of three states: empty since start (ESS), normal, or
// empty after remove (EAR). A lookup stops at the first ESS bucket because
// the key would have been placed there. Removing a key leaves an EAR
// tombstone rather than an ESS bucket so that lookups for keys that probed
// past the removed one keep walking. Inserts reuse tombstones.
//
// # Growth
//
// The table keeps its load factor (Len/Capacity) strictly below 1/2. Before
// an insert, if placing one more entry would bring the load factor to 1/2 or
// above, the capacity doubles. A resize allocates fresh ESS buckets, shuffles
// a fresh offset permutation and re-inserts every entry in storage order.
// Tombstones are dropped by a resize. The table never shrinks.
//
// # Values
//
// ReservedValue (9999) is not a storable value. Insert and Set reject it.
package oamap

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

const (
	debug = false

	// DefaultCapacity is the capacity used by New when the requested initial
	// capacity is not positive.
	DefaultCapacity = 8

	// ReservedValue marks "no value" and can never be stored in a Table.
	ReservedValue uint64 = 9999
)

const msgClosed = "oamap: use of closed Table"

type insertResult uint8

const (
	insertOK insertResult = iota
	insertDuplicate
	insertFull
)

// Table is an open-addressing hash table mapping string keys to uint64
// values.
//
// A Table is NOT goroutine-safe. Callers that share a Table must guard every
// operation with a single lock, since a resize replaces the whole bucket
// array.
type Table struct {
	hash HashFunc
	// rng shuffles the probe offsets. It is owned by the table.
	rng *rand.Rand
	// The allocator to use for the buckets slice.
	allocator Allocator
	buckets   []Bucket
	// offsets is a permutation of [1, len(buckets)-1]. It is regenerated on
	// every resize and never modified otherwise.
	offsets []uintptr
	// The number of normal buckets.
	used int
}

// New constructs a new Table with the specified initial capacity. If
// initialCapacity is not positive DefaultCapacity is used.
func New(initialCapacity int, options ...option) *Table {
	t := &Table{
		hash:      AdditiveHash,
		allocator: defaultAllocator{},
	}

	for _, op := range options {
		op.apply(t)
	}

	if t.rng == nil {
		t.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if initialCapacity <= 0 {
		initialCapacity = DefaultCapacity
	}

	t.buckets = t.allocator.AllocBuckets(initialCapacity)
	t.generateOffsets()
	t.checkInvariants()
	return t
}

// Close releases the buckets back to the configured allocator. It is
// unnecessary to close a table using the default allocator. It is invalid to
// use a Table after it has been closed, though Close itself is idempotent.
// Lookups and inserts on a closed table panic.
func (t *Table) Close() {
	if t.buckets != nil {
		t.allocator.FreeBuckets(t.buckets)
	}
	t.buckets = nil
	t.offsets = nil
	t.used = 0
}

// generateOffsets fills t.offsets with [1, capacity-1] and shuffles it.
func (t *Table) generateOffsets() {
	offsets := make([]uintptr, len(t.buckets)-1)
	for i := range offsets {
		offsets[i] = uintptr(i + 1)
	}
	t.rng.Shuffle(len(offsets), func(i, j int) {
		offsets[i], offsets[j] = offsets[j], offsets[i]
	})
	t.offsets = offsets
}

// home returns the index of the first bucket probed for key.
func (t *Table) home(key string) uintptr {
	if len(t.buckets) == 0 {
		panic(msgClosed)
	}
	return uintptr(t.hash(key) % uint64(len(t.buckets)))
}

// probeAt returns the index of the i'th bucket visited by a probe starting at
// home. The 0'th bucket is home itself. Valid values of i are
// [0, len(t.offsets)].
func (t *Table) probeAt(home uintptr, i int) uintptr {
	if i == 0 {
		return home
	}
	return (home + t.offsets[i-1]) % uintptr(len(t.buckets))
}

// findBucket returns the index of the normal bucket holding key. The probe
// stops at the first ESS bucket and skips over EAR buckets.
func (t *Table) findBucket(key string) (uintptr, bool) {
	home := t.home(key)
	if debug {
		fmt.Printf("find(%q): home=%d capacity=%d\n", key, home, len(t.buckets))
	}

	for i := 0; i <= len(t.offsets); i++ {
		idx := t.probeAt(home, i)
		b := &t.buckets[idx]
		if b.IsNormal() && b.key == key {
			if debug {
				fmt.Printf("find(found): index=%d probes=%d\n", idx, i+1)
			}
			return idx, true
		}
		if b.IsEmptySinceStart() {
			if debug {
				fmt.Printf("find(not-found): index=%d probes=%d\n", idx, i+1)
			}
			return 0, false
		}
	}

	if debug {
		fmt.Printf("find(exhausted): %q\n", key)
	}
	return 0, false
}

// findInsertBucket returns the index of the bucket an insert of key should
// fill. The first ESS or EAR bucket on the probe is the target, but the probe
// keeps walking past EAR buckets until it reaches an ESS bucket so that a
// copy of key further along the probe is reported as insertDuplicate.
func (t *Table) findInsertBucket(key string) (uintptr, insertResult) {
	home := t.home(key)
	if debug {
		fmt.Printf("find-insert(%q): home=%d capacity=%d\n", key, home, len(t.buckets))
	}

	var target uintptr
	var found bool
	for i := 0; i <= len(t.offsets); i++ {
		idx := t.probeAt(home, i)
		b := &t.buckets[idx]
		switch {
		case b.IsNormal():
			if b.key == key {
				if debug {
					fmt.Printf("find-insert(duplicate): index=%d\n", idx)
				}
				return 0, insertDuplicate
			}
		case b.IsEmptySinceStart():
			if !found {
				target = idx
			}
			return target, insertOK
		default:
			if !found {
				target, found = idx, true
			}
		}
	}

	if found {
		return target, insertOK
	}
	return 0, insertFull
}

// Insert adds key with value to the table. It returns false if key is already
// present or value is ReservedValue, in which case no entry is changed. The
// table may still have grown before a duplicate was detected. Insert never
// overwrites; use Set for that.
func (t *Table) Insert(key string, value uint64) bool {
	if value == ReservedValue {
		return false
	}
	if t.buckets == nil {
		panic(msgClosed)
	}

	for t.needsGrowth() {
		t.resize()
	}

	ok := t.put(key, value)
	t.checkInvariants()
	return ok
}

// needsGrowth reports whether one more entry would bring the load factor to
// 1/2 or above.
func (t *Table) needsGrowth() bool {
	return 2*(t.used+1) >= len(t.buckets)
}

// put places key and value in the table without considering growth.
func (t *Table) put(key string, value uint64) bool {
	i, res := t.findInsertBucket(key)
	switch res {
	case insertDuplicate:
		return false
	case insertFull:
		// Unreachable while the table stays under the maximum load factor.
		if debug {
			fmt.Printf("put(full): %q capacity=%d used=%d\n", key, len(t.buckets), t.used)
		}
		return false
	}

	if debug {
		fmt.Printf("put(%q, %d): index=%d\n", key, value, i)
	}
	t.buckets[i].load(key, value)
	t.used++
	return true
}

// resize doubles the capacity and re-inserts every entry.
func (t *Table) resize() {
	old := t.buckets
	newCapacity := 2 * len(old)
	if debug {
		fmt.Printf("resize: capacity=%d -> %d used=%d\n", len(old), newCapacity, t.used)
	}

	t.buckets = t.allocator.AllocBuckets(newCapacity)
	t.used = 0
	t.generateOffsets()

	for i := range old {
		b := &old[i]
		if !b.IsNormal() {
			continue
		}
		if !t.put(b.key, b.value) {
			panic(fmt.Sprintf("resize: unable to re-insert %q\n%s", b.key, t.debugString()))
		}
	}

	t.allocator.FreeBuckets(old)
}

// Set stores value for key, overwriting the existing value if key is
// present. It returns false, leaving the table unchanged, only if value is
// ReservedValue.
func (t *Table) Set(key string, value uint64) bool {
	if value == ReservedValue {
		return false
	}
	if i, ok := t.findBucket(key); ok {
		t.buckets[i].value = value
		t.checkInvariants()
		return true
	}
	return t.Insert(key, value)
}

// Remove deletes key from the table, leaving a tombstone in its bucket. It
// returns false if key is not present.
func (t *Table) Remove(key string) bool {
	i, ok := t.findBucket(key)
	if !ok {
		return false
	}

	t.buckets[i].makeEAR()
	t.used--
	t.checkInvariants()
	return true
}

// Contains reports whether key is present.
func (t *Table) Contains(key string) bool {
	_, ok := t.findBucket(key)
	return ok
}

// Get retrieves the value for key, returning ok=false if key is not present.
func (t *Table) Get(key string) (value uint64, ok bool) {
	i, ok := t.findBucket(key)
	if !ok {
		return 0, false
	}
	return t.buckets[i].Value(), true
}

// ValueRef returns a pointer to the value stored for key so that it can be
// updated in place.
//
// The caller must know that key is present: ValueRef panics if it is not. The
// pointer is only valid until the next Insert, Set, Clear or Close, any of
// which may move the entry to new storage. Storing ReservedValue through the
// pointer is not checked.
func (t *Table) ValueRef(key string) *uint64 {
	i, ok := t.findBucket(key)
	if !ok {
		panic(fmt.Sprintf("oamap: ValueRef(%q): key not present", key))
	}
	return t.buckets[i].valueRef()
}

// Keys returns the keys in the table in bucket order. The order is neither
// insertion order nor stable across a resize.
func (t *Table) Keys() []string {
	keys := make([]string, 0, t.used)
	for i := range t.buckets {
		if b := &t.buckets[i]; b.IsNormal() {
			keys = append(keys, b.key)
		}
	}
	return keys
}

// All calls yield sequentially for each key and value present in the table
// in bucket order. If yield returns false, All stops the iteration. All
// iterates over the buckets as they were when it started, so an entry moved by
// a resize during iteration is neither lost nor repeated. If an entry is
// inserted or removed during iteration it may or may not be visited.
func (t *Table) All(yield func(key string, value uint64) bool) {
	buckets := t.buckets
	for i := range buckets {
		if b := &buckets[i]; b.IsNormal() {
			if !yield(b.key, b.value) {
				return
			}
		}
	}
}

// Clear deletes all entries, keeping the capacity. The table gets fresh ESS
// buckets, so existing tombstones are dropped.
func (t *Table) Clear() {
	old := t.buckets
	t.buckets = t.allocator.AllocBuckets(len(old))
	t.used = 0
	t.allocator.FreeBuckets(old)
	t.checkInvariants()
}

// Alpha returns the load factor, Len divided by Capacity.
func (t *Table) Alpha() float64 {
	if len(t.buckets) == 0 {
		return 0
	}
	return float64(t.used) / float64(len(t.buckets))
}

// Capacity returns the number of buckets.
func (t *Table) Capacity() int {
	return len(t.buckets)
}

// Len returns the number of entries in the table.
func (t *Table) Len() int {
	return t.used
}

// Tombstones returns the number of EAR buckets.
func (t *Table) Tombstones() int {
	var n int
	for i := range t.buckets {
		if t.buckets[i].IsEmptyAfterRemove() {
			n++
		}
	}
	return n
}

// String renders every normal bucket as "Bucket <index>: <key, value>", one
// per line, in bucket order.
func (t *Table) String() string {
	var buf strings.Builder
	for i := range t.buckets {
		if b := &t.buckets[i]; b.IsNormal() {
			fmt.Fprintf(&buf, "Bucket %d: %s\n", i, b)
		}
	}
	return buf.String()
}

func (t *Table) checkInvariants() {
	if invariants {
		if err := t.verify(); err != nil {
			panic(fmt.Sprintf("invariant failed: %v\n%s", err, t.debugString()))
		}
	}
}

// verify checks the structural invariants of the table.
func (t *Table) verify() error {
	capacity := len(t.buckets)
	if capacity <= 0 {
		return fmt.Errorf("capacity %d is not positive", capacity)
	}

	// The offsets must be a permutation of [1, capacity-1] so that a probe
	// visits every bucket.
	if len(t.offsets) != capacity-1 {
		return fmt.Errorf("found %d offsets, but capacity is %d", len(t.offsets), capacity)
	}
	seen := make([]bool, capacity)
	for i, o := range t.offsets {
		if o == 0 || o >= uintptr(capacity) || seen[o] {
			return fmt.Errorf("offset(%d)=%d is out of range or repeated", i, o)
		}
		seen[o] = true
	}

	// For every normal bucket, verify we find the key in that same bucket.
	var used int
	keys := make(map[string]int, t.used)
	for i := range t.buckets {
		b := &t.buckets[i]
		if !b.IsNormal() {
			continue
		}
		if j, ok := keys[b.key]; ok {
			return fmt.Errorf("bucket(%d) and bucket(%d) both hold %q", j, i, b.key)
		}
		keys[b.key] = i
		if j, ok := t.findBucket(b.key); !ok || j != uintptr(i) {
			return fmt.Errorf("bucket(%d): %q not found [home=%d]", i, b.key, t.home(b.key))
		}
		if b.value == ReservedValue {
			return fmt.Errorf("bucket(%d): %q holds the reserved value", i, b.key)
		}
		used++
	}

	if used != t.used {
		return fmt.Errorf("found %d used buckets, but used count is %d", used, t.used)
	}
	if 2*t.used >= capacity {
		return fmt.Errorf("load factor %d/%d is not below 1/2", t.used, capacity)
	}
	return nil
}

func (t *Table) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "capacity=%d  used=%d  offsets=%v\n", len(t.buckets), t.used, t.offsets)
	for i := range t.buckets {
		switch b := &t.buckets[i]; {
		case b.IsEmptySinceStart():
			fmt.Fprintf(&buf, "  %4d: empty\n", i)
		case b.IsEmptyAfterRemove():
			fmt.Fprintf(&buf, "  %4d: deleted\n", i)
		default:
			fmt.Fprintf(&buf, "  %4d: %s [home=%d]\n", i, b, t.home(b.key))
		}
	}
	return buf.String()
}
