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

import "math/rand/v2"

// option provide an interface to do work on Table while it is being created.
type option interface {
	apply(t *Table)
}

type hashOption struct {
	hash HashFunc
}

func (op hashOption) apply(t *Table) {
	t.hash = op.hash
}

// WithHash is an option to specify the hash function to use for a Table.
// The default is AdditiveHash.
func WithHash(hash HashFunc) option {
	return hashOption{hash}
}

type randOption struct {
	rng *rand.Rand
}

func (op randOption) apply(t *Table) {
	t.rng = op.rng
}

// WithRand is an option to specify the random source used to shuffle the
// probe offsets. The Table takes ownership of rng.
func WithRand(rng *rand.Rand) option {
	return randOption{rng}
}

// WithSeed is an option to seed the random source used to shuffle the probe
// offsets. Two tables built with the same seed and fed the same operations
// lay out their buckets identically.
func WithSeed(seed1, seed2 uint64) option {
	return randOption{rand.New(rand.NewPCG(seed1, seed2))}
}

// Allocator specifies an interface for allocating and releasing the bucket
// storage used by a Table. The default allocator utilizes Go's builtin
// make() and allows the GC to reclaim memory.
//
// If the allocator is manually managing memory and requires that buckets be
// freed then Table.Close must be called in order to ensure FreeBuckets is
// called for the final storage.
type Allocator interface {
	// AllocBuckets should return a slice equivalent to make([]Bucket, n).
	// Every bucket must be empty since start.
	AllocBuckets(n int) []Bucket

	// FreeBuckets can optional release the memory associated with the
	// supplied slice that is guaranteed to have been allocated by
	// AllocBuckets.
	FreeBuckets(v []Bucket)
}

type defaultAllocator struct{}

func (defaultAllocator) AllocBuckets(n int) []Bucket {
	return make([]Bucket, n)
}

func (defaultAllocator) FreeBuckets(v []Bucket) {
}

type allocatorOption struct {
	allocator Allocator
}

func (op allocatorOption) apply(t *Table) {
	t.allocator = op.allocator
}

// WithAllocator is an option for specify the Allocator to use for a Table.
func WithAllocator(allocator Allocator) option {
	return allocatorOption{allocator}
}
