// Copyright 2025 Google LLC
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

package inode

import "fmt"

// openCount is the in-memory inode's open_cnt: incremented by Open/Reopen,
// decremented by Close, with a callback invoked the moment it reaches zero.
// External synchronization is required (the Store's mutex serializes every
// caller).
type openCount struct {
	count  uint64
	onZero func() error
}

func (oc *openCount) Inc() {
	oc.count++
}

// Dec decrements by n and, if the count reaches zero, invokes onZero,
// reporting whether it did. Decrementing past zero is a caller bug.
func (oc *openCount) Dec(n uint64) (closed bool, err error) {
	if n > oc.count {
		panic(fmt.Sprintf("inode: open count underflow: decrementing %d by %d", oc.count, n))
	}

	oc.count -= n
	if oc.count == 0 {
		err = oc.onZero()
		closed = true
	}
	return
}
