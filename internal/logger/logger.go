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

// Package logger provides the structured logging used throughout the buffer
// cache and inode store: a small severity model layered on top of log/slog,
// with a text or JSON handler selected at startup.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Severity is one of the five logging levels this package recognizes, in
// increasing order of urgency.
type Severity int

const (
	TRACE Severity = iota
	DEBUG
	INFO
	WARNING
	ERROR
)

func (s Severity) String() string {
	switch s {
	case TRACE:
		return "TRACE"
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARNING:
		return "WARNING"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// slog doesn't have TRACE/WARNING levels of its own; map our severities onto
// slog.Level values spaced widely enough to sort correctly alongside the
// built-in Debug/Info/Warn/Error levels.
func (s Severity) slogLevel() slog.Level {
	switch s {
	case TRACE:
		return slog.LevelDebug - 4
	case DEBUG:
		return slog.LevelDebug
	case INFO:
		return slog.LevelInfo
	case WARNING:
		return slog.LevelWarn
	case ERROR:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseSeverity parses one of the five level names, case-insensitively.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToUpper(s) {
	case "TRACE":
		return TRACE, nil
	case "DEBUG":
		return DEBUG, nil
	case "INFO":
		return INFO, nil
	case "WARNING", "WARN":
		return WARNING, nil
	case "ERROR":
		return ERROR, nil
	default:
		return 0, fmt.Errorf("logger: unrecognized severity %q", s)
	}
}

// UnmarshalText lets Severity bind directly to a YAML/flag string value
// (e.g. cfg.LogConfig.Severity), rather than requiring callers to convert
// through ParseSeverity by hand.
func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// MarshalText is UnmarshalText's inverse, for round-tripping through config
// files and flag defaults.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Format selects the on-disk/on-terminal encoding of log records.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

type factory struct {
	prefix string
}

func (f factory) createJSONOrTextHandler(w io.Writer, levelVar *slog.LevelVar, format Format) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: levelVar,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.LevelKey:
				lvl := a.Value.Any().(slog.Level)
				a.Value = slog.StringValue(severityForLevel(lvl).String())
				a.Key = "severity"
			case slog.TimeKey:
				a.Value = slog.StringValue(a.Value.Time().Format(time.RFC3339Nano))
			case slog.MessageKey:
				a.Value = slog.StringValue(f.prefix + a.Value.String())
				a.Key = "message"
			}
			return a
		},
	}

	if format == FormatJSON {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func severityForLevel(l slog.Level) Severity {
	switch {
	case l < slog.LevelDebug:
		return TRACE
	case l < slog.LevelInfo:
		return DEBUG
	case l < slog.LevelWarn:
		return INFO
	case l < slog.LevelError:
		return WARNING
	default:
		return ERROR
	}
}

var (
	mu                   sync.Mutex
	defaultLoggerFactory = factory{}
	programLevel         = new(slog.LevelVar)
	defaultLogger        = slog.New(defaultLoggerFactory.createJSONOrTextHandler(os.Stderr, programLevel, FormatText))
)

// Init configures the package-level logger. Safe to call more than once;
// later calls replace the handler entirely.
func Init(w io.Writer, severity Severity, format Format) {
	mu.Lock()
	defer mu.Unlock()

	programLevel.Set(severity.slogLevel())
	defaultLogger = slog.New(defaultLoggerFactory.createJSONOrTextHandler(w, programLevel, format))
}

func log(ctx context.Context, sev Severity, format string, args ...any) {
	mu.Lock()
	l := defaultLogger
	mu.Unlock()

	l.Log(ctx, sev.slogLevel(), fmt.Sprintf(format, args...))
}

func Tracef(format string, args ...any)   { log(context.Background(), TRACE, format, args...) }
func Debugf(format string, args ...any)   { log(context.Background(), DEBUG, format, args...) }
func Infof(format string, args ...any)    { log(context.Background(), INFO, format, args...) }
func Warnf(format string, args ...any)    { log(context.Background(), WARNING, format, args...) }
func Errorf(format string, args ...any)   { log(context.Background(), ERROR, format, args...) }
func TracefCtx(ctx context.Context, format string, args ...any) { log(ctx, TRACE, format, args...) }
func DebugfCtx(ctx context.Context, format string, args ...any) { log(ctx, DEBUG, format, args...) }
func InfofCtx(ctx context.Context, format string, args ...any)  { log(ctx, INFO, format, args...) }
func WarnfCtx(ctx context.Context, format string, args ...any)  { log(ctx, WARNING, format, args...) }
func ErrorfCtx(ctx context.Context, format string, args ...any) { log(ctx, ERROR, format, args...) }
