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

import (
	"fmt"
	"os"
)

// FileDevice is a Device backed by a single regular file, addressed in
// SectorSize-byte strides. The file itself may be a sparse OS file — that's
// this collaborator's own storage-layout freedom, unrelated to the inode
// layer's logical address space above it.
type FileDevice struct {
	f          *os.File
	numSectors Sector
}

// OpenFileDevice creates (or truncates, if it already exists) path as a
// fresh file-backed device with capacity for exactly numSectors sectors.
// This is the formatting path: calling it on an existing device discards
// its contents. Callers that want to open an already-formatted device
// should use OpenExistingFileDevice instead, which trusts the file's own
// size rather than a caller-supplied sector count.
func OpenFileDevice(path string, numSectors Sector) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("blockdev: open %s: %w", path, err)
	}

	size := int64(numSectors) * SectorSize
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, fmt.Errorf("blockdev: truncate %s to %d bytes: %w", path, size, err)
	}

	return &FileDevice{f: f, numSectors: numSectors}, nil
}

// OpenExistingFileDevice opens an already-formatted device file, deriving
// its capacity from its actual on-disk size rather than from a caller-
// supplied sector count. It never creates or resizes the file: a missing
// file, or one whose size isn't a whole number of sectors, is an error.
// This is the path every subcommand but format should use, so a stale or
// zero --device.num-sectors flag can never silently truncate a live device.
func OpenExistingFileDevice(path string) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("blockdev: open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("blockdev: stat %s: %w", path, err)
	}
	if info.Size()%SectorSize != 0 {
		f.Close()
		return nil, fmt.Errorf("blockdev: %s size %d is not a multiple of sector size %d", path, info.Size(), SectorSize)
	}

	return &FileDevice{f: f, numSectors: Sector(info.Size() / SectorSize)}, nil
}

func (d *FileDevice) ReadSector(sector Sector, out []byte) error {
	if err := checkBufLen(out); err != nil {
		return err
	}
	if sector >= d.numSectors {
		return ErrIO
	}

	off := int64(sector) * SectorSize
	if _, err := d.f.ReadAt(out[:SectorSize], off); err != nil {
		return fmt.Errorf("%w: read sector %d: %v", ErrIO, sector, err)
	}
	return nil
}

func (d *FileDevice) WriteSector(sector Sector, in []byte) error {
	if err := checkBufLen(in); err != nil {
		return err
	}
	if sector >= d.numSectors {
		return ErrIO
	}

	off := int64(sector) * SectorSize
	if _, err := d.f.WriteAt(in[:SectorSize], off); err != nil {
		return fmt.Errorf("%w: write sector %d: %v", ErrIO, sector, err)
	}
	return nil
}

func (d *FileDevice) NumSectors() Sector { return d.numSectors }

func (d *FileDevice) Close() error { return d.f.Close() }
