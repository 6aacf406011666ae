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
	"bytes"
	"testing"

	"github.com/go-pintos/diskfs/internal/blockdev"
	"github.com/go-pintos/diskfs/internal/buffercache"
	"github.com/go-pintos/diskfs/internal/freemap"
	"github.com/stretchr/testify/require"
)

// newTestStore builds a store over a numSectors-sector MemDevice, with the
// free-map's own sectors (and a root inode sector, matching how a real
// format would reserve it) pre-marked in-use.
func newTestStore(t *testing.T, numSectors uint) *Store {
	dev := blockdev.NewMemDevice(int(numSectors))
	fm, err := freemap.Create(dev, 0, numSectors, []blockdev.Sector{1})
	require.NoError(t, err)

	bc := buffercache.New(dev, 8)
	return NewStore(dev, bc, fm)
}

func allocRootSector(t *testing.T, s *Store) blockdev.Sector {
	return blockdev.Sector(1)
}

func TestCreateSmallFileAndReadBack(t *testing.T) {
	s := newTestStore(t, 256)
	root := allocRootSector(t, s)

	ok, err := s.Create(root, 100)
	require.NoError(t, err)
	require.True(t, ok)

	n, err := s.Open(root, false)
	require.NoError(t, err)
	require.Equal(t, uint64(100), n.Length())

	buf := make([]byte, 100)
	got, err := n.ReadAt(buf, 0)
	require.NoError(t, err)
	require.Equal(t, 100, got)
	require.Equal(t, make([]byte, 100), buf)

	require.NoError(t, s.Close(n))
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	s := newTestStore(t, 256)
	root := allocRootSector(t, s)

	ok, err := s.Create(root, 0)
	require.NoError(t, err)
	require.True(t, ok)

	n, err := s.Open(root, false)
	require.NoError(t, err)

	want := bytes.Repeat([]byte("hello-pintos-"), 50)
	written, err := n.WriteAt(want, 0)
	require.NoError(t, err)
	require.Equal(t, len(want), written)
	require.Equal(t, uint64(len(want)), n.Length())

	got := make([]byte, len(want))
	read, err := n.ReadAt(got, 0)
	require.NoError(t, err)
	require.Equal(t, len(want), read)
	require.Equal(t, want, got)

	require.NoError(t, s.Close(n))
}

func TestWriteGrowsAcrossDirectBoundary(t *testing.T) {
	s := newTestStore(t, 4096)
	root := allocRootSector(t, s)

	ok, err := s.Create(root, 0)
	require.NoError(t, err)
	require.True(t, ok)

	n, err := s.Open(root, false)
	require.NoError(t, err)

	// D=100 direct blocks; this write spans into the first indirect block.
	size := (D+2)*blockdev.SectorSize + 37
	want := bytes.Repeat([]byte{0xCD}, size)
	written, err := n.WriteAt(want, 0)
	require.NoError(t, err)
	require.Equal(t, size, written)

	got := make([]byte, size)
	read, err := n.ReadAt(got, 0)
	require.NoError(t, err)
	require.Equal(t, size, read)
	require.Equal(t, want, got)

	require.NoError(t, s.Close(n))
}

func TestReadPastEOFReturnsShortCount(t *testing.T) {
	s := newTestStore(t, 256)
	root := allocRootSector(t, s)

	ok, err := s.Create(root, 10)
	require.NoError(t, err)
	require.True(t, ok)

	n, err := s.Open(root, false)
	require.NoError(t, err)

	buf := make([]byte, 100)
	got, err := n.ReadAt(buf, 5)
	require.NoError(t, err)
	require.Equal(t, 5, got)

	require.NoError(t, s.Close(n))
}

func TestRemoveReclaimsBlocks(t *testing.T) {
	s := newTestStore(t, 4096)

	// Record the free-map occupancy before the inode's own sector is
	// allocated below (Create does not allocate it).
	f0 := s.fm.Count()

	sector, err := s.fm.Allocate()
	require.NoError(t, err)

	// 101 sectors of data: fills all 100 direct blocks plus one entry in the
	// first indirect block.
	size := uint64(101 * blockdev.SectorSize)
	ok, err := s.Create(sector, size)
	require.NoError(t, err)
	require.True(t, ok)

	n, err := s.Open(sector, false)
	require.NoError(t, err)
	s.Remove(n)
	require.NoError(t, s.Close(n))

	require.Equal(t, f0, s.fm.Count())
}

func TestOpenSameSectorTwiceSharesInode(t *testing.T) {
	s := newTestStore(t, 256)
	root := allocRootSector(t, s)

	ok, err := s.Create(root, 0)
	require.NoError(t, err)
	require.True(t, ok)

	n1, err := s.Open(root, false)
	require.NoError(t, err)
	n2, err := s.Open(root, false)
	require.NoError(t, err)
	require.Same(t, n1, n2)

	require.NoError(t, s.Close(n1))
	require.NoError(t, s.Close(n2))
}

func TestDenyWriteBoundedByOpenCount(t *testing.T) {
	s := newTestStore(t, 256)
	root := allocRootSector(t, s)

	ok, err := s.Create(root, 0)
	require.NoError(t, err)
	require.True(t, ok)

	n, err := s.Open(root, false)
	require.NoError(t, err)

	n.DenyWrite()
	require.Panics(t, n.DenyWrite) // second deny with open_cnt still 1 violates I4

	n.AllowWrite()
	require.NoError(t, s.Close(n))
}

func TestCloseAllFlushesEveryOpenInode(t *testing.T) {
	s := newTestStore(t, 4096)

	var sectors []blockdev.Sector
	for i := 0; i < 3; i++ {
		sector, err := s.fm.Allocate()
		require.NoError(t, err)
		ok, err := s.Create(sector, 0)
		require.NoError(t, err)
		require.True(t, ok)
		sectors = append(sectors, sector)
	}

	for _, sector := range sectors {
		n, err := s.Open(sector, false)
		require.NoError(t, err)
		_, err = n.WriteAt([]byte("durable"), 0)
		require.NoError(t, err)
	}

	require.NoError(t, s.CloseAll())
	require.Empty(t, s.open)
}

func TestWriteAndReadAcrossDoublyIndirectBoundary(t *testing.T) {
	s := newTestStore(t, 3400)
	root := allocRootSector(t, s)

	ok, err := s.Create(root, 0)
	require.NoError(t, err)
	require.True(t, ok)

	n, err := s.Open(root, false)
	require.NoError(t, err)

	// D+I*A = 100 + 25*128 = 3300 blocks exhausts direct and indirect
	// addressing entirely; byte offset D*S+I*A*S = 1,689,600 is the first
	// byte the doubly-indirect tier must serve. Write past it by a block and
	// a bit, so block k=3300 and k=3301 both land under the doubly-indirect
	// block's first single-indirect child.
	size := (D+I*A+1)*blockdev.SectorSize + 37

	want := bytes.Repeat([]byte{0xEF}, size)
	written, err := n.WriteAt(want, 0)
	require.NoError(t, err)
	require.Equal(t, size, written)
	require.Equal(t, uint64(size), n.Length())
	require.NotEqual(t, blockdev.NoSector, n.disk.DoublyIndirect)

	got := make([]byte, size)
	read, err := n.ReadAt(got, 0)
	require.NoError(t, err)
	require.Equal(t, size, read)
	require.Equal(t, want, got)

	// Spot-check the addressing right at and past the boundary.
	boundary := uint64(D*blockdev.SectorSize + I*A*blockdev.SectorSize)
	one := make([]byte, 1)
	_, err = n.ReadAt(one, boundary)
	require.NoError(t, err)
	require.Equal(t, byte(0xEF), one[0])

	require.NoError(t, s.Close(n))
}

func TestWriteAllocationFailureInDoublyIndirectTierRollsBack(t *testing.T) {
	// Budget enough to fill direct+indirect tiers completely (3300 data
	// blocks + 25 indirect-block sectors), plus exactly two more free
	// sectors: enough to allocate the doubly-indirect block itself and the
	// new data sector, but not its first single-indirect child.
	const reserved = 2 // free-map's own sector(s) + the root inode's sector
	universe := uint((D+I*A)+I+2) + reserved
	s := newTestStore(t, universe)
	root := allocRootSector(t, s)

	ok, err := s.Create(root, 0)
	require.NoError(t, err)
	require.True(t, ok)

	n, err := s.Open(root, false)
	require.NoError(t, err)

	fillSize := (D + I*A) * blockdev.SectorSize
	written, err := n.WriteAt(bytes.Repeat([]byte{0xAB}, fillSize), 0)
	require.NoError(t, err)
	require.Equal(t, fillSize, written)

	before := s.fm.Count()

	// This single extra byte needs a new data block at k=D+I*A, the first
	// block addressed through the doubly-indirect tier: it requires three
	// fresh allocations (data sector, doubly-indirect block, first
	// single-indirect child), but only two sectors remain free.
	attempted, err := n.WriteAt([]byte{0xFF}, uint64(fillSize))
	require.Error(t, err)
	require.Zero(t, attempted)
	require.Equal(t, uint64(fillSize), n.Length())

	require.Equal(t, before, s.fm.Count())
	require.Equal(t, blockdev.NoSector, n.disk.DoublyIndirect)

	require.NoError(t, s.Close(n))
}

func TestCreateAllocationFailureRollsBack(t *testing.T) {
	// Universe only has a handful of free sectors beyond the reserved ones;
	// a large create should fail cleanly and release everything it grabbed.
	s := newTestStore(t, 16)
	root := allocRootSector(t, s)

	before := s.fm.Count()
	ok, err := s.Create(root, uint64(50*blockdev.SectorSize))
	require.NoError(t, err)
	require.False(t, ok)

	after := s.fm.Count()
	require.Equal(t, before, after)
}
