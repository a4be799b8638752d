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

package oamap

import "fmt"

// bucketState is the tri-state tag of a Bucket. The zero value is
// stateNeverUsed so that a freshly allocated []Bucket is entirely empty.
type bucketState uint8

const (
	stateNeverUsed bucketState = iota
	stateHolding
	stateRemoved
)

func (s bucketState) String() string {
	switch s {
	case stateNeverUsed:
		return "empty-since-start"
	case stateHolding:
		return "normal"
	case stateRemoved:
		return "empty-after-remove"
	default:
		return fmt.Sprintf("bucketState(%d)", uint8(s))
	}
}

// Bucket is a single slot in a Table. It is either empty since the storage
// was allocated (ESS), holding a key and value (normal), or empty after a
// remove (EAR). The key and value are only meaningful while the bucket is
// normal.
//
// A bucket moves ESS -> normal -> EAR -> normal -> ... and never goes back
// to ESS. An EAR bucket is a tombstone: it accepts inserts but does not stop
// a probe.
type Bucket struct {
	key   string
	value uint64
	state bucketState
}

// load stores key and value and marks the bucket normal.
func (b *Bucket) load(key string, value uint64) {
	b.key = key
	b.value = value
	b.makeNormal()
}

// Key returns the key stored in the bucket.
func (b *Bucket) Key() string {
	return b.key
}

// Value returns the value stored in the bucket.
func (b *Bucket) Value() uint64 {
	return b.value
}

func (b *Bucket) valueRef() *uint64 {
	return &b.value
}

// IsNormal reports whether the bucket holds a key and value.
func (b *Bucket) IsNormal() bool {
	return b.state == stateHolding
}

// IsEmpty reports whether the bucket can accept an insert, i.e. it is
// either ESS or EAR.
func (b *Bucket) IsEmpty() bool {
	return b.state == stateNeverUsed || b.state == stateRemoved
}

// IsEmptySinceStart reports whether the bucket has never held data.
func (b *Bucket) IsEmptySinceStart() bool {
	return b.state == stateNeverUsed
}

// IsEmptyAfterRemove reports whether the bucket is a tombstone.
func (b *Bucket) IsEmptyAfterRemove() bool {
	return b.state == stateRemoved
}

func (b *Bucket) makeNormal() {
	b.state = stateHolding
}

// makeESS is the inverse of the first load. The table never calls it on
// storage in use, since a bucket that has held data must not stop a probe.
// Fresh ESS buckets come from the allocator instead. Tests use it to corrupt
// a table deliberately.
func (b *Bucket) makeESS() {
	b.state = stateNeverUsed
}

func (b *Bucket) makeEAR() {
	b.state = stateRemoved
}

// String renders the bucket as "<key, value>".
func (b Bucket) String() string {
	return fmt.Sprintf("<%s, %d>", b.key, b.value)
}
