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

package cfg

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-pintos/diskfs/internal/logger"
	"github.com/mitchellh/mapstructure"
)

// DecodeHook lets viper.Unmarshal turn the plain strings flags/YAML hand it
// into logger.Severity/logger.Format, the way gcsfuse's cfg/decode_hook.go
// turns flag strings into its own LogSeverity/Protocol types.
func DecodeHook() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		s := data.(string)
		switch t {
		case reflect.TypeOf(logger.Severity(0)):
			return logger.ParseSeverity(s)
		case reflect.TypeOf(logger.Format("")):
			switch strings.ToLower(s) {
			case "text", "json":
				return logger.Format(strings.ToLower(s)), nil
			default:
				return nil, fmt.Errorf("cfg: invalid log.format %q", s)
			}
		default:
			return data, nil
		}
	}
}
