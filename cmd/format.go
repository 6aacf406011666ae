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
	"fmt"

	"github.com/go-pintos/diskfs/internal/blockdev"
	"github.com/go-pintos/diskfs/internal/buffercache"
	"github.com/go-pintos/diskfs/internal/freemap"
	"github.com/go-pintos/diskfs/internal/inode"
	"github.com/go-pintos/diskfs/internal/logger"
	"github.com/spf13/cobra"
)

var formatCmd = &cobra.Command{
	Use:   "format",
	Short: "Create a fresh device file and format it with an empty root inode",
	RunE: func(cmd *cobra.Command, args []string) error {
		numSectors := Conf.Device.NumSectors
		if numSectors == 0 {
			return fmt.Errorf("format: device.num-sectors must be set")
		}

		dev, err := blockdev.OpenFileDevice(Conf.Device.Path, blockdev.Sector(numSectors))
		if err != nil {
			return fmt.Errorf("format: %w", err)
		}
		defer dev.Close()

		fm, err := freemap.Create(dev, freeMapSector, uint(numSectors), []blockdev.Sector{rootSector})
		if err != nil {
			return fmt.Errorf("format: %w", err)
		}

		bc := buffercache.New(dev, int(Conf.Cache.Slots))
		store := inode.NewStore(dev, bc, fm)

		ok, err := store.Create(rootSector, 0)
		if err != nil {
			return fmt.Errorf("format: create root inode: %w", err)
		}
		if !ok {
			return fmt.Errorf("format: no room for the root inode on a %d-sector device", numSectors)
		}

		if err := bc.Flush(); err != nil {
			return fmt.Errorf("format: %w", err)
		}
		if err := fm.Close(); err != nil {
			return fmt.Errorf("format: %w", err)
		}

		logger.Infof("formatted %s: %d sectors, root inode at sector %d", Conf.Device.Path, numSectors, rootSector)
		return nil
	},
}
