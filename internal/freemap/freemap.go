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

// Package freemap is the free-sector allocator consumed by the inode core:
// Allocate/Release over a fixed universe of sectors, backed by a bitset and
// persisted to a reserved run of sectors on the same device the inode store
// and buffer cache share.
package freemap

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-pintos/diskfs/internal/blockdev"
	"github.com/willf/bitset"
)

// ErrExhausted is returned by Allocate when no sector is free.
var ErrExhausted = errors.New("freemap: no free sectors")

// sectorsPerMapSector is how many bitset bits fit in one persisted sector.
const sectorsPerMapSector = blockdev.SectorSize * 8

// FreeMap tracks which sectors of a device are in use. Create marks sector 0
// through mapStart+mapLen-1 (everything up to the end of the persisted map
// region) in use, plus every sector in its reserved argument (such as the
// root inode sector); Open restores those marks from the persisted bitset.
// Sectors marked in use are never handed out by Allocate.
type FreeMap struct {
	mu       sync.Mutex
	dev      blockdev.Device
	mapStart blockdev.Sector // first sector holding persisted bitset bytes
	mapLen   blockdev.Sector // number of sectors the bitset occupies on disk
	universe uint            // total addressable sectors, bit-indexed
	bits     *bitset.BitSet
	recent   sectorFreeList // most-recently-released, for O(1) reuse
}

// sectorFreeList is a LIFO of recently released sectors: releasing and
// immediately re-allocating a sector (the common churn pattern during
// WriteAt's growth/rollback) shouldn't have to rescan the whole bitset. Its
// zero value is an empty list, so FreeMap needs no extra constructor step
// beyond the struct literals in Create/Open.
type sectorFreeList struct {
	top *sectorFreeNode
}

type sectorFreeNode struct {
	sector blockdev.Sector
	next   *sectorFreeNode
}

func (l *sectorFreeList) isEmpty() bool { return l.top == nil }

func (l *sectorFreeList) push(s blockdev.Sector) {
	l.top = &sectorFreeNode{sector: s, next: l.top}
}

// pop removes and returns the most recently pushed sector. Panics if the
// list is empty; callers always check isEmpty first.
func (l *sectorFreeList) pop() blockdev.Sector {
	s := l.top.sector
	l.top = l.top.next
	return s
}

// Create formats a fresh free-map covering [0, universe) sectors on dev,
// reserving mapStart..mapStart+mapLen and every sector in reserved as
// already-in-use, and persists it.
func Create(dev blockdev.Device, mapStart blockdev.Sector, universe uint, reserved []blockdev.Sector) (*FreeMap, error) {
	mapLen := mapSectorCount(universe)
	fm := &FreeMap{
		dev:      dev,
		mapStart: mapStart,
		mapLen:   mapLen,
		universe: universe,
		bits:     bitset.New(universe),
	}

	for s := blockdev.Sector(0); s < mapStart+mapLen; s++ {
		fm.bits.Set(uint(s))
	}
	for _, s := range reserved {
		fm.bits.Set(uint(s))
	}

	if err := fm.persist(); err != nil {
		return nil, err
	}
	return fm, nil
}

// Open reconstructs a free-map from its persisted bitset on dev.
func Open(dev blockdev.Device, mapStart blockdev.Sector, universe uint) (*FreeMap, error) {
	mapLen := mapSectorCount(universe)
	fm := &FreeMap{
		dev:      dev,
		mapStart: mapStart,
		mapLen:   mapLen,
		universe: universe,
		bits:     bitset.New(universe),
	}

	buf := make([]byte, blockdev.SectorSize)
	for i := blockdev.Sector(0); i < mapLen; i++ {
		if err := dev.ReadSector(mapStart+i, buf); err != nil {
			return nil, fmt.Errorf("freemap: open: read map sector %d: %w", mapStart+i, err)
		}
		base := uint(i) * sectorsPerMapSector
		for bit := 0; bit < sectorsPerMapSector; bit++ {
			byteIdx, bitIdx := bit/8, uint(bit%8)
			if buf[byteIdx]&(1<<bitIdx) != 0 {
				fm.bits.Set(base + uint(bit))
			}
		}
	}
	return fm, nil
}

// Init is the in-process counterpart to Create/Open for a freemap that has
// already been constructed; it exists so callers that hold a *FreeMap value
// across a restart have a uniform verb alongside Open/Close/Create. It is a
// no-op beyond returning the receiver, kept for that symmetry.
func (fm *FreeMap) Init() *FreeMap { return fm }

// Allocate reserves and returns one free sector, or ErrExhausted.
func (fm *FreeMap) Allocate() (blockdev.Sector, error) {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	if !fm.recent.isEmpty() {
		s := fm.recent.pop()
		fm.bits.Set(uint(s))
		if err := fm.persist(); err != nil {
			return blockdev.NoSector, err
		}
		return s, nil
	}

	idx, ok := fm.bits.NextClear(0)
	if !ok || idx >= fm.universe {
		return blockdev.NoSector, ErrExhausted
	}
	fm.bits.Set(idx)
	if err := fm.persist(); err != nil {
		return blockdev.NoSector, err
	}
	return blockdev.Sector(idx), nil
}

// Release returns sector to the free pool. Releasing an already-free sector
// is a caller bug and panics, matching the inode core's own treatment of
// invariant violations.
func (fm *FreeMap) Release(sector blockdev.Sector) error {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	if !fm.bits.Test(uint(sector)) {
		panic(fmt.Sprintf("freemap: release of already-free sector %d", sector))
	}
	fm.bits.Clear(uint(sector))
	fm.recent.push(sector)
	return fm.persist()
}

// Count returns the number of sectors currently marked in-use.
func (fm *FreeMap) Count() uint {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	return fm.bits.Count()
}

// Close flushes the current bitset state one final time.
func (fm *FreeMap) Close() error {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	return fm.persist()
}

// persist rewrites every map sector from the in-memory bitset. There is no
// journal to batch these writes against, so each mutation pays a full
// rewrite of the (small) map region.
func (fm *FreeMap) persist() error {
	buf := make([]byte, blockdev.SectorSize)
	for i := blockdev.Sector(0); i < fm.mapLen; i++ {
		for b := range buf {
			buf[b] = 0
		}
		base := uint(i) * sectorsPerMapSector
		for bit := 0; bit < sectorsPerMapSector; bit++ {
			if base+uint(bit) >= fm.universe {
				break
			}
			if fm.bits.Test(base + uint(bit)) {
				buf[bit/8] |= 1 << uint(bit%8)
			}
		}
		if err := fm.dev.WriteSector(fm.mapStart+i, buf); err != nil {
			return fmt.Errorf("freemap: persist map sector %d: %w", fm.mapStart+i, err)
		}
	}
	return nil
}

func mapSectorCount(universe uint) blockdev.Sector {
	n := (universe + sectorsPerMapSector - 1) / sectorsPerMapSector
	if n == 0 {
		n = 1
	}
	return blockdev.Sector(n)
}
