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

package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type LoggerTest struct {
	suite.Suite
	buf *bytes.Buffer
}

func TestLoggerSuite(t *testing.T) {
	suite.Run(t, new(LoggerTest))
}

func (t *LoggerTest) SetupTest() {
	t.buf = &bytes.Buffer{}
}

func (t *LoggerTest) TestTextSeverityLabel() {
	Init(t.buf, TRACE, FormatText)

	Warnf("eviction stalled: %d sweeps", 2)

	assert.Contains(t.T(), t.buf.String(), "severity=WARNING")
	assert.Contains(t.T(), t.buf.String(), "eviction stalled: 2 sweeps")
}

func (t *LoggerTest) TestJSONSeverityLabel() {
	Init(t.buf, TRACE, FormatJSON)

	Errorf("invariant violated")

	var record map[string]any
	require.NoError(t.T(), json.Unmarshal(t.buf.Bytes(), &record))
	assert.Equal(t.T(), "ERROR", record["severity"])
	assert.Equal(t.T(), "invariant violated", record["message"])
}

func (t *LoggerTest) TestSeverityFilter() {
	Init(t.buf, WARNING, FormatText)

	Debugf("below threshold, should be dropped")
	Errorf("above threshold, should appear")

	out := t.buf.String()
	assert.False(t.T(), strings.Contains(out, "below threshold"))
	assert.Contains(t.T(), out, "above threshold")
}

func (t *LoggerTest) TestParseSeverityRoundTrip() {
	for _, sev := range []Severity{TRACE, DEBUG, INFO, WARNING, ERROR} {
		parsed, err := ParseSeverity(sev.String())
		require.NoError(t.T(), err)
		assert.Equal(t.T(), sev, parsed)
	}
}

func (t *LoggerTest) TestParseSeverityUnrecognized() {
	_, err := ParseSeverity("CATASTROPHIC")
	assert.Error(t.T(), err)
}

func (t *LoggerTest) TestSeverityString() {
	assert.Equal(t.T(), "TRACE", TRACE.String())
	assert.Equal(t.T(), "DEBUG", DEBUG.String())
	assert.Equal(t.T(), "INFO", INFO.String())
	assert.Equal(t.T(), "WARNING", WARNING.String())
	assert.Equal(t.T(), "ERROR", ERROR.String())
}
