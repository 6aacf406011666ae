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

package blockdev_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-pintos/diskfs/internal/blockdev"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func devices(t *testing.T) map[string]blockdev.Device {
	fd, err := blockdev.OpenFileDevice(filepath.Join(t.TempDir(), "disk.img"), 16)
	require.NoError(t, err)
	t.Cleanup(func() { fd.Close() })

	return map[string]blockdev.Device{
		"mem":  blockdev.NewMemDevice(16),
		"file": fd,
	}
}

func TestReadWriteRoundTrip(t *testing.T) {
	for name, dev := range devices(t) {
		t.Run(name, func(t *testing.T) {
			want := bytes.Repeat([]byte{0xAB}, blockdev.SectorSize)
			require.NoError(t, dev.WriteSector(3, want))

			got := make([]byte, blockdev.SectorSize)
			require.NoError(t, dev.ReadSector(3, got))
			assert.Equal(t, want, got)
		})
	}
}

func TestReadSectorOutOfRange(t *testing.T) {
	for name, dev := range devices(t) {
		t.Run(name, func(t *testing.T) {
			buf := make([]byte, blockdev.SectorSize)
			err := dev.ReadSector(dev.NumSectors(), buf)
			assert.ErrorIs(t, err, blockdev.ErrIO)
		})
	}
}

func TestWriteSectorBufferTooSmall(t *testing.T) {
	for name, dev := range devices(t) {
		t.Run(name, func(t *testing.T) {
			err := dev.WriteSector(0, make([]byte, 4))
			assert.Error(t, err)
		})
	}
}

func TestNumSectors(t *testing.T) {
	for name, dev := range devices(t) {
		t.Run(name, func(t *testing.T) {
			assert.EqualValues(t, 16, dev.NumSectors())
		})
	}
}

func TestOpenExistingFileDeviceDerivesSizeFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")

	created, err := blockdev.OpenFileDevice(path, 16)
	require.NoError(t, err)
	require.NoError(t, created.WriteSector(3, bytes.Repeat([]byte{0xCD}, blockdev.SectorSize)))
	require.NoError(t, created.Close())

	reopened, err := blockdev.OpenExistingFileDevice(path)
	require.NoError(t, err)
	defer reopened.Close()

	assert.EqualValues(t, 16, reopened.NumSectors())

	got := make([]byte, blockdev.SectorSize)
	require.NoError(t, reopened.ReadSector(3, got))
	assert.Equal(t, bytes.Repeat([]byte{0xCD}, blockdev.SectorSize), got)
}

func TestOpenExistingFileDeviceRejectsMissingFile(t *testing.T) {
	_, err := blockdev.OpenExistingFileDevice(filepath.Join(t.TempDir(), "missing.img"))
	assert.Error(t, err)
}

func TestOpenExistingFileDeviceRejectsPartialSector(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")

	f, err := blockdev.OpenFileDevice(path, 4)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, os.Truncate(path, blockdev.SectorSize*4-1))

	_, err = blockdev.OpenExistingFileDevice(path)
	assert.Error(t, err)
}
