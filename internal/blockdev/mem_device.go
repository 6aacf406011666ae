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

package blockdev

import "sync"

// MemDevice is an in-memory Device, used by the buffer cache and inode
// store's unit and property tests so they don't pay real file-system I/O
// cost to exercise eviction and growth paths.
type MemDevice struct {
	mu      sync.Mutex
	sectors [][SectorSize]byte
}

// NewMemDevice returns a device with the given fixed capacity, all sectors
// zeroed.
func NewMemDevice(numSectors int) *MemDevice {
	return &MemDevice{sectors: make([][SectorSize]byte, numSectors)}
}

func (d *MemDevice) ReadSector(sector Sector, out []byte) error {
	if err := checkBufLen(out); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if int(sector) >= len(d.sectors) {
		return ErrIO
	}
	copy(out, d.sectors[sector][:])
	return nil
}

func (d *MemDevice) WriteSector(sector Sector, in []byte) error {
	if err := checkBufLen(in); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if int(sector) >= len(d.sectors) {
		return ErrIO
	}
	copy(d.sectors[sector][:], in[:SectorSize])
	return nil
}

func (d *MemDevice) NumSectors() Sector {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Sector(len(d.sectors))
}

func (d *MemDevice) Close() error { return nil }
