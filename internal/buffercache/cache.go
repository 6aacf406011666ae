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

// Package buffercache is the fixed-size, concurrently-accessed buffer cache
// sitting between the inode store and the block device: a pool of N slots,
// a modified-clock eviction policy, and a pinning discipline via a per-slot
// user count.
package buffercache

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-pintos/diskfs/internal/blockdev"
	"github.com/go-pintos/diskfs/internal/logger"
	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/timeutil"
	"github.com/prometheus/client_golang/prometheus"
)

// Handle is an opaque reference to a pinned slot, returned by Lookup and
// consumed by Data, MarkDirty, and Release.
type Handle int

// slot is one cache line: valid/sector/data/dirty/accessed/users, per the
// data model. users is guarded by mu; every other field is guarded by the
// cache's global mutex, touched only during a fill/evict transition or
// while mu is also held (invariant I3).
type slot struct {
	mu sync.Mutex

	valid    bool
	sector   blockdev.Sector
	data     [blockdev.SectorSize]byte
	dirty    bool
	accessed bool
	users    int
}

// Cache is the fixed-size buffer cache: an array of slots, a clock hand, and
// a single global mutex over the slot array's metadata and the hand. Safe
// for concurrent use by multiple goroutines.
type Cache struct {
	/////////////////////////
	// Dependencies
	/////////////////////////

	dev blockdev.Device

	/////////////////////////
	// Constant data
	/////////////////////////

	clock   timeutil.Clock
	backoff time.Duration
	sleep   func(time.Duration)
	metrics *metrics

	/////////////////////////
	// Mutable state
	/////////////////////////

	// globalMu guards every field below, plus each slot's valid/sector/data/
	// dirty/accessed (but not users; see slot's own mu). Its invariant
	// callback is checkInvariants.
	globalMu syncutil.InvariantMutex

	// GUARDED_BY(globalMu)
	slots []*slot

	// GUARDED_BY(globalMu)
	hand int
}

// Option configures a Cache at construction time.
type Option func(*Cache)

// WithClock overrides the clock used to time the eviction retry path.
// Production code can leave this unset (it defaults to timeutil.RealClock());
// tests inject a *timeutil.SimulatedClock for deterministic stall reporting.
func WithClock(c timeutil.Clock) Option {
	return func(bc *Cache) { bc.clock = c }
}

// WithBackoff overrides the bounded sleep duration a caller waits after two
// fruitless eviction sweeps before retrying the whole lookup.
func WithBackoff(d time.Duration) Option {
	return func(bc *Cache) { bc.backoff = d }
}

// withSleep overrides the actual sleep primitive; unexported since only this
// package's own tests need to neuter the real wall-clock sleep.
func withSleep(f func(time.Duration)) Option {
	return func(bc *Cache) { bc.sleep = f }
}

// WithRegisterer registers this cache's metrics against reg. Without this
// option, or with a nil reg, the metrics are not registered anywhere (so
// many caches can be constructed in the same test binary).
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(bc *Cache) { bc.metrics = newMetrics(reg) }
}

// New is cache_init: prepares a pool of n slots over dev, all invalid, hand
// at 0.
func New(dev blockdev.Device, n int, opts ...Option) *Cache {
	bc := &Cache{
		dev:     dev,
		slots:   make([]*slot, n),
		clock:   timeutil.RealClock(),
		backoff: time.Millisecond,
		sleep:   time.Sleep,
	}
	for i := range bc.slots {
		bc.slots[i] = &slot{}
	}
	for _, opt := range opts {
		opt(bc)
	}
	if bc.metrics == nil {
		bc.metrics = newMetrics(nil)
	}
	bc.globalMu = syncutil.NewInvariantMutex(bc.checkInvariants)
	return bc
}

// checkInvariants enforces I1 (unique sector per valid slot) and that the
// clock hand lies within the slot array. I2 and I3 are not checked here. Called
// by the InvariantMutex on every Lock/Unlock in race-detector-style builds.
func (bc *Cache) checkInvariants() {
	seen := make(map[blockdev.Sector]int, len(bc.slots))
	for i, s := range bc.slots {
		if !s.valid {
			continue
		}
		if prior, ok := seen[s.sector]; ok {
			panic(fmt.Sprintf("buffercache: sector %d valid in both slot %d and slot %d", s.sector, prior, i))
		}
		seen[s.sector] = i
	}
	if bc.hand < 0 || bc.hand >= len(bc.slots) {
		panic(fmt.Sprintf("buffercache: hand %d out of range [0,%d)", bc.hand, len(bc.slots)))
	}
}

// Lookup is cache_lookup: returns a handle to sector, pinning it. Returns an
// error only when the device fails to write back a dirty victim or to read
// sector in; no slot is pinned in that case.
func (bc *Cache) Lookup(sector blockdev.Sector) (Handle, error) {
	start := bc.clock.Now()
	for attempt := 1; ; attempt++ {
		h, ok, err := bc.tryLookup(sector)
		if err != nil {
			return 0, err
		}
		if ok {
			return h, nil
		}
		// Two fruitless sweeps found every slot pinned: drop the lock (already
		// released by tryLookup's defer), yield briefly, and retry from scratch.
		bc.waitForVictim(start, attempt)
	}
}

func (bc *Cache) tryLookup(sector blockdev.Sector) (Handle, bool, error) {
	bc.globalMu.Lock()
	defer bc.globalMu.Unlock()

	for i, s := range bc.slots {
		if s.valid && s.sector == sector {
			s.mu.Lock()
			s.users++
			s.mu.Unlock()
			s.accessed = true
			bc.metrics.hits.Inc()
			return Handle(i), true, nil
		}
	}
	bc.metrics.misses.Inc()

	idx, found := bc.findVictimLocked()
	if !found {
		return 0, false, nil
	}

	victim := bc.slots[idx]
	if victim.valid && victim.dirty {
		if err := bc.writeBackLocked(victim); err != nil {
			return 0, false, err
		}
	}

	if err := bc.dev.ReadSector(sector, victim.data[:]); err != nil {
		return 0, false, fmt.Errorf("buffercache: fill sector %d: %w", sector, err)
	}
	victim.valid = true
	victim.dirty = false
	victim.accessed = true
	victim.sector = sector
	victim.users = 1

	return Handle(idx), true, nil
}

// findVictimLocked implements the miss-fill victim selection of step 3: an
// invalid slot if one exists, else the modified-clock eviction policy.
// Must be called with globalMu held. Reports ok=false only when both the
// invalid-slot search and two full eviction sweeps come up empty, in which
// case the caller must drop the lock, wait, and retry.
func (bc *Cache) findVictimLocked() (int, bool) {
	for i, s := range bc.slots {
		if !s.valid {
			return i, true
		}
	}

	// I3 permits reading/writing users here without the per-slot mutex: the
	// global mutex is held together with exclusive access to the slot
	// (nothing outside a fill/evict critical section can change users while
	// globalMu is held).
	for sweep := 0; sweep < 2; sweep++ {
		for visited := 0; visited < len(bc.slots); visited++ {
			i := bc.hand
			bc.hand = (bc.hand + 1) % len(bc.slots)
			s := bc.slots[i]

			if s.users > 0 {
				continue
			}
			if s.accessed {
				s.accessed = false
				continue
			}
			if s.valid {
				bc.metrics.evictions.Inc()
			}
			return i, true
		}
	}
	return 0, false
}

// writeBackLocked flushes a dirty, valid slot to the BDA. Must be called
// with globalMu held; does not clear dirty or touch accessed (the eviction
// path overwrites the slot's contents immediately afterward, and Flush
// clears dirty itself).
func (bc *Cache) writeBackLocked(s *slot) error {
	if err := bc.dev.WriteSector(s.sector, s.data[:]); err != nil {
		return fmt.Errorf("buffercache: writeback sector %d: %w", s.sector, err)
	}
	bc.metrics.flushes.Inc()
	return nil
}

// Data is cache_data: a mutable view of the slot's payload. The returned
// slice aliases the cache's internal buffer and is valid only until the
// matching Release.
func (bc *Cache) Data(h Handle) []byte {
	return bc.slots[h].data[:]
}

// MarkDirty is cache_mark_dirty. Idempotent. dirty is globalMu-guarded (see
// the Cache struct), so this takes the lock rather than writing unsynchronized.
func (bc *Cache) MarkDirty(h Handle) {
	bc.globalMu.Lock()
	defer bc.globalMu.Unlock()
	bc.slots[h].dirty = true
}

// Release is cache_release: decrements the slot's pin count. The caller
// must not touch the slot's Data after this returns. Takes globalMu, not
// just the slot's own mutex: findVictimLocked reads users under globalMu
// alone, so a decrement under only the slot's mutex would race with it.
func (bc *Cache) Release(h Handle) {
	bc.globalMu.Lock()
	defer bc.globalMu.Unlock()

	s := bc.slots[h]
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users <= 0 {
		panic(fmt.Sprintf("buffercache: release of slot %d with users=%d", h, s.users))
	}
	s.users--
}

// Flush is cache_flush: writes every valid dirty slot to the BDA and clears
// its dirty flag. Slot validity is preserved: a flushed slot moves from
// valid/dirty to valid/clean without a read back from the device.
func (bc *Cache) Flush() error {
	bc.globalMu.Lock()
	defer bc.globalMu.Unlock()

	for _, s := range bc.slots {
		if !s.valid || !s.dirty {
			continue
		}
		if err := bc.writeBackLocked(s); err != nil {
			return err
		}
		s.dirty = false
	}
	return nil
}

// waitForVictim is the bounded-sleep retry step: drop the lock (already
// done by the caller failing to find a victim), yield briefly, and let the
// caller retry the whole lookup. It exists as its own method so the
// eviction-stall log line has one place to live.
func (bc *Cache) waitForVictim(attemptStart time.Time, attempt int) {
	elapsed := bc.clock.Now().Sub(attemptStart)
	logger.Warnf("buffercache: eviction stalled (attempt %d, %s elapsed); all slots pinned, retrying", attempt, elapsed)
	bc.sleep(bc.backoff)
}
