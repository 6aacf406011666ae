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

// byteToSector implements the byte-to-sector mapping: given a byte
// offset, walk direct, then indirect, then doubly-indirect tiers, reading
// intermediate blocks through the buffer cache. Returns blockdev.NoSector
// if the addressed block was never allocated (a hole past a growth
// boundary that was skipped — cannot happen via WriteAt's own growth path,
// but ReadAt must tolerate it defensively since length and allocated_bytes
// can diverge only by construction, never in practice here).
func (n *Inode) byteToSector(pos uint64) (blockdev.Sector, error) {
	b := pos / blockdev.SectorSize

	if b < D {
		return n.disk.Direct[b], nil
	}
	b -= D

	if b < I*A {
		return n.store.readIndirectEntry(n.disk.Indirect[b/A], b%A)
	}
	b -= I * A

	if b >= A*A {
		return blockdev.NoSector, fmt.Errorf("inode: sector %d: offset %d exceeds MaxFileSize", n.sector, pos)
	}

	singleIndirect, err := n.store.readIndirectEntry(n.disk.DoublyIndirect, b/A)
	if err != nil {
		return blockdev.NoSector, err
	}
	return n.store.readIndirectEntry(singleIndirect, b%A)
}

// readIndirectEntry reads slot idx out of the indirect block at sector
// blockSector, routed through the buffer cache rather than the source's
// direct-BDA intermediates. A NoSector
// blockSector means the tier was never allocated, so every entry in it
// reads as NoSector too.
func (s *Store) readIndirectEntry(blockSector blockdev.Sector, idx uint64) (blockdev.Sector, error) {
	if blockSector == blockdev.NoSector {
		return blockdev.NoSector, nil
	}

	h, err := s.bc.Lookup(blockSector)
	if err != nil {
		return blockdev.NoSector, fmt.Errorf("inode: read indirect block %d: %w", blockSector, err)
	}
	defer s.bc.Release(h)

	block := decodeIndirectBlock(s.bc.Data(h))
	return block[idx], nil
}

// writeIndirectEntry sets slot idx of the indirect block at blockSector to
// value and marks the cache slot dirty.
func (s *Store) writeIndirectEntry(blockSector blockdev.Sector, idx uint64, value blockdev.Sector) error {
	h, err := s.bc.Lookup(blockSector)
	if err != nil {
		return fmt.Errorf("inode: write indirect block %d: %w", blockSector, err)
	}
	defer s.bc.Release(h)

	block := decodeIndirectBlock(s.bc.Data(h))
	block[idx] = value
	block.encode(s.bc.Data(h))
	s.bc.MarkDirty(h)
	return nil
}

// zeroFillSector writes S zero bytes to sector through the buffer cache.
func (s *Store) zeroFillSector(sector blockdev.Sector) error {
	h, err := s.bc.Lookup(sector)
	if err != nil {
		return fmt.Errorf("inode: zero-fill sector %d: %w", sector, err)
	}
	defer s.bc.Release(h)

	data := s.bc.Data(h)
	for i := range data {
		data[i] = 0
	}
	s.bc.MarkDirty(h)
	return nil
}

// ReadAt is inode_read_at: copies up to len(buf) bytes starting at offset
// into buf, stopping at EOF. Returns the number of bytes copied; a short
// count past EOF is not an error.
func (n *Inode) ReadAt(buf []byte, offset uint64) (int, error) {
	var read int
	length := uint64(n.disk.Length)

	for len(buf) > 0 && offset < length {
		sectorIdx, err := n.byteToSector(offset)
		if err != nil {
			return read, err
		}

		sectorOfs := offset % blockdev.SectorSize
		remainingInFile := length - offset
		remainingInSector := blockdev.SectorSize - sectorOfs
		chunk := min3(uint64(len(buf)), remainingInFile, remainingInSector)
		if chunk == 0 {
			break
		}

		if sectorIdx == blockdev.NoSector {
			// A hole: treated as zeros, though WriteAt never leaves one within
			// [0, length) — this implementation never produces sparse files.
			for i := uint64(0); i < chunk; i++ {
				buf[i] = 0
			}
		} else {
			h, err := n.store.bc.Lookup(sectorIdx)
			if err != nil {
				return read, fmt.Errorf("inode: read sector %d: %w", sectorIdx, err)
			}
			copy(buf[:chunk], n.store.bc.Data(h)[sectorOfs:sectorOfs+chunk])
			n.store.bc.Release(h)
		}

		buf = buf[chunk:]
		offset += chunk
		read += int(chunk)
	}

	return read, nil
}

// WriteAt is inode_write_at: copies len(buf) bytes into the file starting
// at offset, extending the file (and allocating new data sectors) as
// needed. Returns the number of bytes written; a short count indicates a
// free-map allocation failure partway through, with every sector allocated
// during this call already released.
func (n *Inode) WriteAt(buf []byte, offset uint64) (int, error) {
	allocatedBytes := ceilToSector(uint64(n.disk.Length))
	var written int
	var allocatedThisCall []blockdev.Sector

	rollback := func() {
		for i := len(allocatedThisCall) - 1; i >= 0; i-- {
			n.store.fm.Release(allocatedThisCall[i])
		}
	}

	for len(buf) > 0 {
		for offset >= allocatedBytes {
			k := allocatedBytes / blockdev.SectorSize
			sector, err := n.store.fm.Allocate()
			if err != nil {
				rollback()
				return written, fmt.Errorf("inode: grow sector %d: %w", n.sector, err)
			}
			allocatedThisCall = append(allocatedThisCall, sector)

			if err := n.store.zeroFillSector(sector); err != nil {
				rollback()
				return written, err
			}
			if err := n.attach(k, sector, &allocatedThisCall); err != nil {
				rollback()
				return written, err
			}
			allocatedBytes += blockdev.SectorSize
		}

		sectorIdx, err := n.byteToSector(offset)
		if err != nil {
			rollback()
			return written, err
		}

		sectorOfs := offset % blockdev.SectorSize
		sectorLeft := blockdev.SectorSize - sectorOfs
		chunk := min2(uint64(len(buf)), sectorLeft)

		h, err := n.store.bc.Lookup(sectorIdx)
		if err != nil {
			rollback()
			return written, fmt.Errorf("inode: write sector %d: %w", sectorIdx, err)
		}
		copy(n.store.bc.Data(h)[sectorOfs:sectorOfs+chunk], buf[:chunk])
		n.store.bc.MarkDirty(h)
		n.store.bc.Release(h)

		if offset+chunk > uint64(n.disk.Length) {
			n.disk.Length = uint32(offset + chunk)
		}

		buf = buf[chunk:]
		offset += chunk
		written += int(chunk)
	}

	return written, nil
}

// attach implements the block-index-k attachment algorithm for write
// growth: place sector at direct[k] if k<D, else in the appropriate
// single-indirect block (allocating it on first use), else in the
// doubly-indirect tree (allocating the doubly-indirect block and each
// single-indirect child on first use). Every block allocated along the way
// is appended to *allocated so a failure partway through can roll all of it
// back.
func (n *Inode) attach(k uint64, sector blockdev.Sector, allocated *[]blockdev.Sector) error {
	if k < D {
		n.disk.Direct[k] = sector
		return nil
	}
	k -= D

	if k < I*A {
		return n.attachIndirect(&n.disk.Indirect[k/A], k%A, sector, allocated)
	}
	k -= I * A

	// allocatedDoublyIndirectHere tracks whether this call is the one that
	// set n.disk.DoublyIndirect, so a later failure in this same call can
	// unset it again: the sector itself is already queued in *allocated for
	// the caller's rollback, and a dangling DoublyIndirect pointing at a
	// sector that's about to be freed would corrupt the next attach.
	allocatedDoublyIndirectHere := false
	if n.disk.DoublyIndirect == blockdev.NoSector {
		dbl, err := n.store.fm.Allocate()
		if err != nil {
			return fmt.Errorf("inode: allocate doubly-indirect block: %w", err)
		}
		*allocated = append(*allocated, dbl)
		if err := n.store.zeroFillSector(dbl); err != nil {
			return err
		}
		n.disk.DoublyIndirect = dbl
		allocatedDoublyIndirectHere = true
	}

	var singleIndirect blockdev.Sector
	var err error
	singleIndirect, err = n.store.readIndirectEntry(n.disk.DoublyIndirect, k/A)
	if err != nil {
		if allocatedDoublyIndirectHere {
			n.disk.DoublyIndirect = blockdev.NoSector
		}
		return err
	}
	if singleIndirect == blockdev.NoSector {
		singleIndirect, err = n.store.fm.Allocate()
		if err != nil {
			if allocatedDoublyIndirectHere {
				n.disk.DoublyIndirect = blockdev.NoSector
			}
			return fmt.Errorf("inode: allocate single-indirect child: %w", err)
		}
		*allocated = append(*allocated, singleIndirect)
		if err := n.store.zeroFillSector(singleIndirect); err != nil {
			if allocatedDoublyIndirectHere {
				n.disk.DoublyIndirect = blockdev.NoSector
			}
			return err
		}
		if err := n.store.writeIndirectEntry(n.disk.DoublyIndirect, k/A, singleIndirect); err != nil {
			if allocatedDoublyIndirectHere {
				n.disk.DoublyIndirect = blockdev.NoSector
			}
			return err
		}
	}

	return n.store.writeIndirectEntry(singleIndirect, k%A, sector)
}

func (n *Inode) attachIndirect(indirectSector *blockdev.Sector, idx uint64, sector blockdev.Sector, allocated *[]blockdev.Sector) error {
	if *indirectSector == blockdev.NoSector {
		blk, err := n.store.fm.Allocate()
		if err != nil {
			return fmt.Errorf("inode: allocate indirect block: %w", err)
		}
		*allocated = append(*allocated, blk)
		if err := n.store.zeroFillSector(blk); err != nil {
			return err
		}
		*indirectSector = blk
	}
	return n.store.writeIndirectEntry(*indirectSector, idx, sector)
}

func ceilToSector(n uint64) uint64 {
	return (n + blockdev.SectorSize - 1) / blockdev.SectorSize * blockdev.SectorSize
}

func min2(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

func min3(a, b, c uint64) uint64 {
	return min2(a, min2(b, c))
}
