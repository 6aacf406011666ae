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
	"github.com/go-pintos/diskfs/internal/logger"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeHookParsesSeverityAndFormat(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	require.NoError(t, cfg.BindFlags(fs))
	require.NoError(t, fs.Parse([]string{"--log.severity=warning", "--log.format=JSON", "--device.path=disk.img"}))

	v := viper.New()
	require.NoError(t, v.BindPFlags(fs))

	var c cfg.Config
	require.NoError(t, v.Unmarshal(&c, viper.DecodeHook(cfg.DecodeHook())))

	assert.Equal(t, logger.WARNING, c.Log.Severity)
	assert.Equal(t, logger.FormatJSON, c.Log.Format)
}

func TestDecodeHookRejectsUnknownFormat(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	require.NoError(t, cfg.BindFlags(fs))
	require.NoError(t, fs.Parse([]string{"--log.format=xml"}))

	v := viper.New()
	require.NoError(t, v.BindPFlags(fs))

	var c cfg.Config
	assert.Error(t, v.Unmarshal(&c, viper.DecodeHook(cfg.DecodeHook())))
}
