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

	"github.com/spf13/cobra"
)

var statCmd = &cobra.Command{
	Use:   "stat",
	Short: "Print the root inode's length and free-map occupancy",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(Conf.Device.Path, Conf.Cache.Slots)
		if err != nil {
			return err
		}
		defer s.Close()

		n, err := s.store.Open(rootSector, false)
		if err != nil {
			return fmt.Errorf("stat: %w", err)
		}
		defer s.store.Close(n)

		fmt.Printf("sector=%d length=%d bytes in-use-sectors=%d device-sectors=%d\n",
			n.Sector(), n.Length(), s.fm.Count(), s.dev.NumSectors())
		return nil
	},
}
