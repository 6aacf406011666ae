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

package buffercache

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/go-pintos/diskfs/internal/blockdev"
	"github.com/jacobsa/timeutil"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, n int) (*Cache, blockdev.Device) {
	dev := blockdev.NewMemDevice(n * 4)
	bc := New(dev, n, withSleep(func(time.Duration) {}))
	return bc, dev
}

func TestLookupFillsFromEmptySlot(t *testing.T) {
	bc, dev := newTestCache(t, 4)

	want := bytes.Repeat([]byte{0x7}, blockdev.SectorSize)
	require.NoError(t, dev.WriteSector(2, want))

	h, err := bc.Lookup(2)
	require.NoError(t, err)
	require.Equal(t, want, bc.Data(h))
	bc.Release(h)
}

func TestLookupHitReturnsSameHandle(t *testing.T) {
	bc, _ := newTestCache(t, 4)

	h1, err := bc.Lookup(1)
	require.NoError(t, err)
	bc.Release(h1)

	h2, err := bc.Lookup(1)
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}

func TestMarkDirtyAndFlushWritesBack(t *testing.T) {
	bc, dev := newTestCache(t, 4)

	h, err := bc.Lookup(5)
	require.NoError(t, err)
	copy(bc.Data(h), bytes.Repeat([]byte{0x42}, blockdev.SectorSize))
	bc.MarkDirty(h)
	bc.Release(h)

	require.NoError(t, bc.Flush())

	got := make([]byte, blockdev.SectorSize)
	require.NoError(t, dev.ReadSector(5, got))
	require.Equal(t, bytes.Repeat([]byte{0x42}, blockdev.SectorSize), got)
}

func TestEvictionSkipsPinnedSlots(t *testing.T) {
	bc, _ := newTestCache(t, 2)

	pinned, err := bc.Lookup(0)
	require.NoError(t, err)

	// Filling the second slot should not touch the pinned one.
	h2, err := bc.Lookup(1)
	require.NoError(t, err)
	bc.Release(h2)

	// Both slots are now occupied and the second is unpinned; a third lookup
	// must evict slot 1, never the pinned slot 0.
	h3, err := bc.Lookup(2)
	require.NoError(t, err)
	require.NotEqual(t, pinned, h3)

	bc.Release(pinned)
	bc.Release(h3)
}

func TestDirtyVictimFlushedBeforeReuse(t *testing.T) {
	bc, dev := newTestCache(t, 1)

	h, err := bc.Lookup(0)
	require.NoError(t, err)
	copy(bc.Data(h), bytes.Repeat([]byte{0x9}, blockdev.SectorSize))
	bc.MarkDirty(h)
	bc.Release(h)

	// Only one slot exists; looking up a different sector must evict slot 0,
	// and because it was dirty, must flush it to the BDA first.
	h2, err := bc.Lookup(1)
	require.NoError(t, err)
	bc.Release(h2)

	got := make([]byte, blockdev.SectorSize)
	require.NoError(t, dev.ReadSector(0, got))
	require.Equal(t, bytes.Repeat([]byte{0x9}, blockdev.SectorSize), got)
}

func TestReleaseOfUnpinnedSlotPanics(t *testing.T) {
	bc, _ := newTestCache(t, 2)

	h, err := bc.Lookup(0)
	require.NoError(t, err)
	bc.Release(h)

	require.Panics(t, func() { bc.Release(h) })
}

func TestLookupRetriesWhenAllSlotsPinned(t *testing.T) {
	clock := &timeutil.SimulatedClock{}
	clock.SetTime(time.Unix(0, 0))

	var sleeps int
	var mu sync.Mutex
	sleepFn := func(time.Duration) {
		mu.Lock()
		sleeps++
		n := sleeps
		mu.Unlock()
		if n == 1 {
			clock.AdvanceTime(5 * time.Millisecond)
		}
	}

	dev := blockdev.NewMemDevice(8)
	bc := New(dev, 1, WithClock(clock), withSleep(sleepFn))

	h0, err := bc.Lookup(0)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		h1, err := bc.Lookup(1)
		require.NoError(t, err)
		bc.Release(h1)
		close(done)
	}()

	// Give the goroutine a chance to stall at least once, then free the pin.
	time.Sleep(10 * time.Millisecond)
	bc.Release(h0)
	<-done

	require.GreaterOrEqual(t, sleeps, 1)
}
