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

// Package cmd is diskfsctl's cobra command tree: a small CLI that pokes the
// inode store directly by sector number, exercising create/read/write/fsck
// against a real file-backed device.
package cmd

import (
	"fmt"
	"os"

	"github.com/go-pintos/diskfs/cfg"
	"github.com/go-pintos/diskfs/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile       string
	bindErr       error
	configFileErr error
	unmarshalErr  error

	// Conf is the process-wide configuration, populated by initConfig before
	// any subcommand's RunE runs.
	Conf cfg.Config

	// viperDecodeHookOpt lets "INFO"/"json"-style strings decode into
	// logger.Severity/logger.Format, the way gcsfuse's cfg.DecodeHook
	// decodes its own LogSeverity/Protocol flag strings.
	viperDecodeHookOpt = viper.DecodeHook(cfg.DecodeHook())
)

var rootCmd = &cobra.Command{
	Use:   "diskfsctl",
	Short: "Inspect and drive the teaching file system's storage core directly",
	Long: `diskfsctl formats, reads, and writes a raw disk image through the
same buffer cache and inode store the file system itself uses, without a
directory layer or a mounted file system in between.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return bindErr
		}
		if configFileErr != nil {
			return configFileErr
		}
		if unmarshalErr != nil {
			return unmarshalErr
		}
		if err := cfg.Validate(&Conf); err != nil {
			return err
		}
		logger.Init(os.Stderr, Conf.Log.Severity, Conf.Log.Format)
		return nil
	},
}

// Execute runs the root command, exiting the process with status 1 on
// failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "path to a YAML config file")
	bindErr = cfg.BindFlags(rootCmd.PersistentFlags())
	if bindErr == nil {
		bindErr = viper.BindPFlags(rootCmd.PersistentFlags())
	}

	rootCmd.AddCommand(formatCmd, statCmd, putCmd, getCmd, fsckCmd)
}

func initConfig() {
	if cfgFile == "" {
		unmarshalErr = viper.Unmarshal(&Conf, viperDecodeHookOpt)
		return
	}

	viper.SetConfigFile(cfgFile)
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		configFileErr = fmt.Errorf("reading config file %s: %w", cfgFile, err)
		return
	}
	unmarshalErr = viper.Unmarshal(&Conf, viperDecodeHookOpt)
}
