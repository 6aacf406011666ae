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
	"github.com/go-pintos/diskfs/internal/buffercache"
	"github.com/go-pintos/diskfs/internal/freemap"
	"github.com/go-pintos/diskfs/internal/logger"
	"github.com/jacobsa/syncutil"
	"golang.org/x/sync/errgroup"
)

// Store is the open-inode table and the entry point for every inode
// operation: a mapping from sector to in-memory inode, serialized by a
// single mutex so top-level file-system operations never interleave at the
// table level. Opening the same sector twice yields the same *Inode with
// open_cnt incremented.
type Store struct {
	/////////////////////////
	// Dependencies
	/////////////////////////

	dev blockdev.Device
	bc  *buffercache.Cache
	fm  *freemap.FreeMap

	/////////////////////////
	// Mutable state
	/////////////////////////

	mu syncutil.InvariantMutex

	// GUARDED_BY(mu)
	open map[blockdev.Sector]*Inode
}

// Device returns the block device backing this store, for callers that need
// raw sector counts outside any inode.
func (s *Store) Device() blockdev.Device { return s.dev }

// NewStore is inode_init: prepares an empty open-inode table atop bc/fm.
func NewStore(dev blockdev.Device, bc *buffercache.Cache, fm *freemap.FreeMap) *Store {
	s := &Store{
		dev:  dev,
		bc:   bc,
		fm:   fm,
		open: make(map[blockdev.Sector]*Inode),
	}
	s.mu = syncutil.NewInvariantMutex(s.checkInvariants)
	return s
}

// checkInvariants enforces I5: every entry's key matches its value's own
// sector, and no two entries alias the same in-memory inode.
func (s *Store) checkInvariants() {
	for sector, n := range s.open {
		if n.sector != sector {
			panic(fmt.Sprintf("inode: open table key %d maps to inode for sector %d", sector, n.sector))
		}
	}
}

// Create is inode_create: formats a new on-disk inode at sector holding
// length zeroed bytes, allocating data blocks direct-then-indirect-then-
// doubly-indirect as needed. On any allocation failure, every sector
// allocated during this call is released before returning false.
func (s *Store) Create(sector blockdev.Sector, length uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	disk := newDiskInode(0)
	n := &Inode{store: s, sector: sector, disk: disk}

	var allocated []blockdev.Sector
	rollback := func() {
		for i := len(allocated) - 1; i >= 0; i-- {
			s.fm.Release(allocated[i])
		}
	}

	remaining := length
	k := uint64(0)
	for remaining > 0 {
		dataSector, err := s.fm.Allocate()
		if err != nil {
			logger.Warnf("inode: create sector %d: allocation failed at block %d: %v", sector, k, err)
			rollback()
			return false, nil
		}
		allocated = append(allocated, dataSector)

		if err := s.zeroFillSector(dataSector); err != nil {
			rollback()
			return false, err
		}
		if err := n.attach(k, dataSector, &allocated); err != nil {
			rollback()
			return false, err
		}

		chunk := min2(remaining, blockdev.SectorSize)
		remaining -= chunk
		k++
	}
	n.disk.Length = uint32(length)

	h, err := s.bc.Lookup(sector)
	if err != nil {
		rollback()
		return false, fmt.Errorf("inode: create: write inode sector %d: %w", sector, err)
	}
	copy(s.bc.Data(h), n.disk.encode())
	s.bc.MarkDirty(h)
	s.bc.Release(h)

	return true, nil
}

// Open is inode_open: returns the existing in-memory inode for sector with
// open_cnt incremented, or reads it fresh from disk and inserts it into the
// open table.
func (s *Store) Open(sector blockdev.Sector, isDir bool) (*Inode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n, ok := s.open[sector]; ok {
		n.open.Inc()
		return n, nil
	}

	h, err := s.bc.Lookup(sector)
	if err != nil {
		return nil, fmt.Errorf("inode: open sector %d: %w", sector, err)
	}
	disk, err := decodeDiskInode(s.bc.Data(h))
	s.bc.Release(h)
	if err != nil {
		return nil, fmt.Errorf("inode: open sector %d: %w", sector, err)
	}

	n := &Inode{store: s, sector: sector, isDir: isDir, disk: disk}
	n.open.onZero = n.destroy
	n.open.Inc()
	s.open[sector] = n
	return n, nil
}

// Reopen is inode_reopen: increments open_cnt on an already-open inode.
func (s *Store) Reopen(n *Inode) *Inode {
	s.mu.Lock()
	defer s.mu.Unlock()
	n.open.Inc()
	return n
}

// Remove is inode_remove: marks n for deletion on final close.
func (s *Store) Remove(n *Inode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n.removed = true
}

// Close is inode_close: decrements open_cnt; at zero, writes the in-memory
// copy back to its sector (always, per the original's ordering — the
// writeback happens before the removed check, not skipped for a doomed
// inode), removes n from the open table, and if removed, frees its data
// blocks and its own sector.
func (s *Store) Close(n *Inode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := n.open.Dec(1)
	return err
}

// destroy is the openCount zero-callback: write back, unlink from the open
// table, and reclaim storage if removed. Called with s.mu already held (it
// runs synchronously inside Dec, invoked from Close).
func (n *Inode) destroy() error {
	s := n.store

	h, err := s.bc.Lookup(n.sector)
	if err != nil {
		return fmt.Errorf("inode: close sector %d: %w", n.sector, err)
	}
	copy(s.bc.Data(h), n.disk.encode())
	s.bc.MarkDirty(h)
	s.bc.Release(h)

	delete(s.open, n.sector)

	if !n.removed {
		return nil
	}
	return n.freeAllBlocks()
}

// freeAllBlocks releases every data sector reachable from n's addressing
// tiers, the indirect/doubly-indirect blocks themselves, and finally n's
// own inode sector (I6).
func (n *Inode) freeAllBlocks() error {
	s := n.store
	blocks := ceilBlocks(uint64(n.disk.Length))

	for k := uint64(0); k < blocks && k < D; k++ {
		if n.disk.Direct[k] == blockdev.NoSector {
			continue
		}
		if err := s.fm.Release(n.disk.Direct[k]); err != nil {
			return err
		}
	}

	for _, indirectSector := range n.disk.Indirect {
		if indirectSector == blockdev.NoSector {
			continue
		}
		if err := s.freeIndirectBlock(indirectSector); err != nil {
			return err
		}
	}

	if n.disk.DoublyIndirect != blockdev.NoSector {
		h, err := s.bc.Lookup(n.disk.DoublyIndirect)
		if err != nil {
			return fmt.Errorf("inode: free doubly-indirect block %d: %w", n.disk.DoublyIndirect, err)
		}
		children := decodeIndirectBlock(s.bc.Data(h))
		s.bc.Release(h)

		for _, child := range children {
			if child == blockdev.NoSector {
				continue
			}
			if err := s.freeIndirectBlock(child); err != nil {
				return err
			}
		}
		if err := s.fm.Release(n.disk.DoublyIndirect); err != nil {
			return err
		}
	}

	return s.fm.Release(n.sector)
}

func (s *Store) freeIndirectBlock(indirectSector blockdev.Sector) error {
	h, err := s.bc.Lookup(indirectSector)
	if err != nil {
		return fmt.Errorf("inode: free indirect block %d: %w", indirectSector, err)
	}
	entries := decodeIndirectBlock(s.bc.Data(h))
	s.bc.Release(h)

	for _, e := range entries {
		if e == blockdev.NoSector {
			continue
		}
		if err := s.fm.Release(e); err != nil {
			return err
		}
	}
	return s.fm.Release(indirectSector)
}

func ceilBlocks(length uint64) uint64 {
	return (length + blockdev.SectorSize - 1) / blockdev.SectorSize
}

// CloseAll calls Close once on every inode in the open table, then flushes
// the buffer cache. An inode opened more than once stays open with its count
// decremented, and its in-memory image is not written back by this call.
// Close itself serializes on the store's own
// mutex, so these closes do not run in parallel; errgroup is used for its
// wait-all/first-error collection, not for throughput.
func (s *Store) CloseAll() error {
	s.mu.Lock()
	open := make([]*Inode, 0, len(s.open))
	for _, n := range s.open {
		open = append(open, n)
	}
	s.mu.Unlock()

	var g errgroup.Group
	for _, n := range open {
		n := n
		g.Go(func() error {
			return s.Close(n)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("inode: close all: %w", err)
	}

	return s.bc.Flush()
}
