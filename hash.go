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

import "github.com/cespare/xxhash/v2"

// HashFunc maps a key to a 64-bit hash. The table reduces the hash modulo
// its capacity to find the key's home bucket, so a HashFunc must be
// deterministic and must not depend on the capacity.
type HashFunc func(key string) uint64

// AdditiveHash sums the bytes of key. It is the default HashFunc. It is
// weak: anagrams and any keys with the same byte sum share a home bucket.
func AdditiveHash(key string) uint64 {
	var h uint64
	for i := 0; i < len(key); i++ {
		h += uint64(key[i])
	}
	return h
}

// XXHash hashes key with xxHash64. Install it with WithHash(XXHash) when
// keys are likely to collide under AdditiveHash.
func XXHash(key string) uint64 {
	return xxhash.Sum64String(key)
}
