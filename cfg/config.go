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

// Package cfg is diskfsctl's configuration surface: a Config struct bound
// to both command-line flags and an optional YAML config file, the way
// cmd/root.go binds gcsfuse's flags through viper.
package cfg

import (
	"fmt"

	"github.com/go-pintos/diskfs/internal/logger"
	"github.com/spf13/pflag"
)

// Config is the top-level configuration for diskfsctl. Every field is
// bindable as both a flag and a YAML key (lower-cased, per viper's default
// key-matching against struct field names).
type Config struct {
	Device DeviceConfig `yaml:"device"`
	Cache  CacheConfig  `yaml:"cache"`
	Log    LogConfig    `yaml:"log"`
}

// DeviceConfig names the backing file and its capacity.
type DeviceConfig struct {
	Path       string `yaml:"path"`
	NumSectors uint32 `yaml:"num-sectors" mapstructure:"num-sectors"`
}

// CacheConfig sizes the buffer cache.
type CacheConfig struct {
	Slots uint32 `yaml:"slots"`
}

// LogConfig controls diskfsctl's own logging.
type LogConfig struct {
	Severity logger.Severity `yaml:"severity"`
	Format   logger.Format   `yaml:"format"`
}

// defaultCacheSlots is the buffer cache's default slot count absent any
// explicit --cache.slots flag or config-file override.
const defaultCacheSlots = 64

// BindFlags registers every Config field as a persistent flag, the way
// gcsfuse's cfg.BindFlags wires its own Config up to a pflag.FlagSet for
// viper to read back.
func BindFlags(flags *pflag.FlagSet) error {
	flags.String("device.path", "", "path to the backing device file")
	flags.Uint32("device.num-sectors", 0, "device capacity in sectors (format only)")
	flags.Uint32("cache.slots", defaultCacheSlots, "number of buffer cache slots")
	flags.String("log.severity", "INFO", "log severity: TRACE, DEBUG, INFO, WARNING, ERROR")
	flags.String("log.format", "text", "log format: text or json")
	return nil
}

// Validate checks invariants BindFlags alone can't express: a device path
// is always required, and cache.slots must be positive (a zero-slot cache
// can never satisfy a single lookup, since every miss must land in some
// slot before its data can be returned).
func Validate(c *Config) error {
	if c.Device.Path == "" {
		return fmt.Errorf("cfg: device.path is required")
	}
	if c.Cache.Slots == 0 {
		return fmt.Errorf("cfg: cache.slots must be positive")
	}
	return nil
}
