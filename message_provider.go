// Copyright 2015 Google Inc. All Rights Reserved.
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

package ninesrv

import "sync"

// bufferPool recycles the byte slices used to encode a response
// message, the same "don't allocate per message" concern the
// teacher's DefaultMessageProvider addressed with a hand-rolled
// freelist of In/OutMessage values. sync.Pool is the stdlib's
// general-purpose equivalent and needs no bespoke freelist type here
// (see DESIGN.md).
type bufferPool struct {
	pool sync.Pool
}

// get returns a buffer of exactly size bytes, reused from the pool
// when one of sufficient capacity is available.
func (b *bufferPool) get(size int) []byte {
	if v := b.pool.Get(); v != nil {
		if buf := v.([]byte); cap(buf) >= size {
			return buf[:size]
		}
	}
	return make([]byte, size)
}

// put returns buf to the pool for reuse by a later get. Callers must
// not retain any reference to buf afterward.
func (b *bufferPool) put(buf []byte) {
	b.pool.Put(buf) //nolint:staticcheck // intentional slice-as-interface{} reuse
}
