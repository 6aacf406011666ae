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

// Package inode is the on-disk inode and in-memory open-inode table: direct,
// indirect, and doubly-indirect block addressing, file growth, and
// reference-counted close/remove semantics, built atop the buffer cache.
package inode

import (
	"encoding/binary"
	"fmt"

	"github.com/go-pintos/diskfs/internal/blockdev"
)

const (
	// D, I, A are the addressing-contract constants: 100 direct pointers, 25
	// indirect-block pointers, 128 pointers per indirect block (sector
	// size / 4 bytes per pointer).
	D = 100
	I = 25
	A = blockdev.SectorSize / 4

	magic = 0x494E4F44

	// diskInodeSize is the binding layout's total: length(4) + magic(4) +
	// direct(400) + indirect(100) + doubly_indirect(4) = 512.
	diskInodeSize = 4 + 4 + D*4 + I*4 + 4
)

// MaxFileSize is the largest byte length representable by the addressing
// scheme: (D + I·A + A·A) sectors.
const MaxFileSize = uint64(D+I*A+A*A) * blockdev.SectorSize

func init() {
	if diskInodeSize != blockdev.SectorSize {
		panic(fmt.Sprintf("inode: on-disk layout is %d bytes, want %d", diskInodeSize, blockdev.SectorSize))
	}
}

// diskInode is the exact 512-byte on-disk representation: a flat array of
// sector indices at every addressing tier, rather than the Pintos source's
// pointer-to-scratch-buffer representation — the indirection tiers here are
// only ever materialized by reading the pointed-to sector through the
// buffer cache, never held in memory as a parallel pointer graph.
type diskInode struct {
	Length         uint32
	Magic          uint32
	Direct         [D]blockdev.Sector
	Indirect       [I]blockdev.Sector
	DoublyIndirect blockdev.Sector
}

func newDiskInode(length uint32) diskInode {
	return diskInode{Length: length, Magic: magic}
}

// encode serializes d into a fresh SectorSize-byte buffer of little-endian
// 32-bit sector indices.
func (d *diskInode) encode() []byte {
	buf := make([]byte, blockdev.SectorSize)
	off := 0
	binary.LittleEndian.PutUint32(buf[off:], d.Length)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], d.Magic)
	off += 4
	for _, s := range d.Direct {
		binary.LittleEndian.PutUint32(buf[off:], uint32(s))
		off += 4
	}
	for _, s := range d.Indirect {
		binary.LittleEndian.PutUint32(buf[off:], uint32(s))
		off += 4
	}
	binary.LittleEndian.PutUint32(buf[off:], uint32(d.DoublyIndirect))
	return buf
}

// decodeDiskInode parses a SectorSize-byte buffer into a diskInode. Returns
// an error if the magic tag doesn't match: a corrupt or uninitialized inode
// sector is fatal to the caller rather than something to silently paper
// over.
func decodeDiskInode(buf []byte) (diskInode, error) {
	var d diskInode
	if len(buf) < blockdev.SectorSize {
		return d, fmt.Errorf("inode: decode: buffer too small: %d < %d", len(buf), blockdev.SectorSize)
	}

	off := 0
	d.Length = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	d.Magic = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	for i := range d.Direct {
		d.Direct[i] = blockdev.Sector(binary.LittleEndian.Uint32(buf[off:]))
		off += 4
	}
	for i := range d.Indirect {
		d.Indirect[i] = blockdev.Sector(binary.LittleEndian.Uint32(buf[off:]))
		off += 4
	}
	d.DoublyIndirect = blockdev.Sector(binary.LittleEndian.Uint32(buf[off:]))

	if d.Magic != magic {
		return d, fmt.Errorf("inode: decode: bad magic %#x, want %#x", d.Magic, uint32(magic))
	}
	return d, nil
}

// indirectBlock is a full sector's worth of A sector indices: the payload
// of both a single-indirect block and, one tier up, the doubly-indirect
// block's own array of single-indirect-block pointers.
type indirectBlock [A]blockdev.Sector

func decodeIndirectBlock(buf []byte) indirectBlock {
	var b indirectBlock
	for i := range b {
		b[i] = blockdev.Sector(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return b
}

func (b *indirectBlock) encode(buf []byte) {
	for i, s := range b {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(s))
	}
}
