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

import (
	"fmt"

	"github.com/go-pintos/diskfs/internal/blockdev"
)

// Inode is the in-memory counterpart of a disk inode: its sector, open/deny
// counts, removed flag, and a cached copy of the on-disk image. While
// open_cnt > 0 this copy is authoritative (I5) and is the only in-memory
// inode for its sector (enforced by the Store's open table).
type Inode struct {
	store *Store

	sector  blockdev.Sector
	isDir   bool
	disk    diskInode
	open    openCount
	denyCnt int
	removed bool
}

// Sector returns the disk sector this inode occupies (inode_get_inumber).
func (n *Inode) Sector() blockdev.Sector { return n.sector }

// IsDir reports whether this inode was opened as a directory.
func (n *Inode) IsDir() bool { return n.isDir }

// Length returns the current byte length of the file (inode_length).
func (n *Inode) Length() uint64 {
	return uint64(n.disk.Length)
}

// DenyWrite is inode_deny_write: bumps the deny-write count, bounded by the
// current open count (I4).
func (n *Inode) DenyWrite() {
	n.denyCnt++
	n.checkInvariants()
}

// AllowWrite is inode_allow_write: the symmetric decrement.
func (n *Inode) AllowWrite() {
	n.denyCnt--
	n.checkInvariants()
}

// checkInvariants enforces I4: 0 ≤ deny_write_cnt ≤ open_cnt.
func (n *Inode) checkInvariants() {
	if n.denyCnt < 0 || uint64(n.denyCnt) > n.open.count {
		panic(fmt.Sprintf("inode: sector %d: deny_write_cnt=%d out of [0,%d]", n.sector, n.denyCnt, n.open.count))
	}
}
