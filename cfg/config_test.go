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

package cfg_test

import (
	"testing"

	"github.com/go-pintos/diskfs/cfg"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindFlagsRegistersEveryKey(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	require.NoError(t, cfg.BindFlags(flags))

	for _, name := range []string{"device.path", "device.num-sectors", "cache.slots", "log.severity", "log.format"} {
		assert.NotNil(t, flags.Lookup(name), "flag %s not registered", name)
	}
}

func TestValidateRequiresDevicePath(t *testing.T) {
	c := &cfg.Config{Cache: cfg.CacheConfig{Slots: 64}}
	assert.Error(t, cfg.Validate(c))
}

func TestValidateRejectsZeroSlots(t *testing.T) {
	c := &cfg.Config{Device: cfg.DeviceConfig{Path: "disk.img"}}
	assert.Error(t, cfg.Validate(c))
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	c := &cfg.Config{
		Device: cfg.DeviceConfig{Path: "disk.img", NumSectors: 1024},
		Cache:  cfg.CacheConfig{Slots: 64},
	}
	assert.NoError(t, cfg.Validate(c))
}
