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
	"io"
	"os"

	"github.com/go-pintos/diskfs/common"
	"github.com/go-pintos/diskfs/internal/inode"
	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get [local-file]",
	Short: "Read the root inode's full contents into a local file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(Conf.Device.Path, Conf.Cache.Slots)
		if err != nil {
			return err
		}
		defer s.Close()

		n, err := s.store.Open(rootSector, false)
		if err != nil {
			return fmt.Errorf("get: %w", err)
		}
		defer s.store.Close(n)

		dst, err := os.Create(args[0])
		if err != nil {
			return fmt.Errorf("get: create %s: %w", args[0], err)
		}
		defer common.CloseFile(dst)

		if _, err := io.Copy(dst, inode.NewReader(n, 0)); err != nil {
			return fmt.Errorf("get: read: %w", err)
		}
		return nil
	},
}
