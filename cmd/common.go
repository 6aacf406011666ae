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

package cmd

import (
	"context"
	"fmt"

	"github.com/go-pintos/diskfs/common"
	"github.com/go-pintos/diskfs/internal/blockdev"
	"github.com/go-pintos/diskfs/internal/buffercache"
	"github.com/go-pintos/diskfs/internal/freemap"
	"github.com/go-pintos/diskfs/internal/inode"
)

// rootSector is the well-known sector diskfsctl treats as "the file": with
// no directory layer, every put/get/stat operates on this single fixed
// inode rather than resolving a path.
const rootSector blockdev.Sector = 1

// freeMapSector is where the free-map's own persisted bitset lives.
const freeMapSector blockdev.Sector = 0

// session bundles the open device, cache, free-map, and inode store a
// subcommand needs, plus a Close that tears them down in the right order.
type session struct {
	dev   blockdev.Device
	bc    *buffercache.Cache
	fm    *freemap.FreeMap
	store *inode.Store
}

// openSession opens an already-formatted device by its own on-disk size
// (OpenExistingFileDevice), never by a caller-supplied sector count: a
// stale or zero --device.num-sectors flag must never be able to resize —
// and so truncate — a device that format already wrote real data to.
func openSession(path string, cacheSlots uint32) (*session, error) {
	dev, err := blockdev.OpenExistingFileDevice(path)
	if err != nil {
		return nil, fmt.Errorf("open device %s: %w", path, err)
	}

	fm, err := freemap.Open(dev, freeMapSector, uint(dev.NumSectors()))
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("open free-map: %w", err)
	}

	bc := buffercache.New(dev, int(cacheSlots))
	store := inode.NewStore(dev, bc, fm)

	return &session{dev: dev, bc: bc, fm: fm, store: store}, nil
}

// Close flushes every open inode and the buffer cache, persists the
// free-map, and closes the device, in that order: each step is wrapped as a
// common.ShutdownFn so a failure partway through doesn't skip the rest.
func (s *session) Close() error {
	shutdown := common.JoinShutdownFunc(
		func(context.Context) error { return s.store.CloseAll() },
		func(context.Context) error { return s.fm.Close() },
		func(context.Context) error { return s.dev.Close() },
	)
	return shutdown(context.Background())
}
