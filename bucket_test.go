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

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBucketLifecycle(t *testing.T) {
	var b Bucket
	require.True(t, b.IsEmpty())
	require.True(t, b.IsEmptySinceStart())
	require.False(t, b.IsEmptyAfterRemove())
	require.False(t, b.IsNormal())

	b.load("foo", 42)
	require.True(t, b.IsNormal())
	require.False(t, b.IsEmpty())
	require.Equal(t, "foo", b.Key())
	require.EqualValues(t, 42, b.Value())

	*b.valueRef() = 43
	require.EqualValues(t, 43, b.Value())

	b.makeEAR()
	require.True(t, b.IsEmpty())
	require.True(t, b.IsEmptyAfterRemove())
	require.False(t, b.IsEmptySinceStart())

	b.load("bar", 7)
	require.True(t, b.IsNormal())
	require.Equal(t, "bar", b.Key())
	require.EqualValues(t, 7, b.Value())
}

func TestBucketForceState(t *testing.T) {
	b := Bucket{key: "foo", value: 1, state: stateHolding}
	require.True(t, b.IsNormal())

	b.makeESS()
	require.True(t, b.IsEmptySinceStart())
	b.makeNormal()
	require.True(t, b.IsNormal())
	require.Equal(t, "foo", b.Key())
}

func TestBucketString(t *testing.T) {
	require.Equal(t, "<Caleb, 100>", Bucket{key: "Caleb", value: 100, state: stateHolding}.String())
	require.Equal(t, "empty-after-remove", stateRemoved.String())
	require.Equal(t, "bucketState(9)", bucketState(9).String())
}
