// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds the process logger: human-readable on a terminal,
// JSON lines everywhere else.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

const (
	EnvLogLevel     = "LOCKSTEP_LOG_LEVEL"
	EnvLogTimestamp = "LOCKSTEP_LOG_TIMESTAMP"
	EnvLogNoColor   = "LOCKSTEP_LOG_NOCOLOR"
)

// Options controls logger construction. Zero values log info and above
// to stderr.
type Options struct {
	Out     io.Writer
	Verbose bool
	Getenv  func(string) string
}

type settings struct {
	level     zerolog.Level
	timestamp bool
	noColor   bool
}

// New returns a logger honoring opts and the LOCKSTEP_LOG_* environment.
// --verbose wins over LOCKSTEP_LOG_LEVEL.
func New(opts Options) zerolog.Logger {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	s := settings{level: zerolog.InfoLevel, timestamp: true}
	applyEnvOverrides(&s, getenv)
	if opts.Verbose {
		s.level = zerolog.DebugLevel
	}

	w := out
	if isTerminal(out) {
		w = zerolog.ConsoleWriter{Out: out, NoColor: s.noColor, TimeFormat: time.Kitchen}
	}

	ctx := zerolog.New(w).Level(s.level).With()
	if s.timestamp {
		ctx = ctx.Timestamp()
	}
	return ctx.Logger()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func applyEnvOverrides(s *settings, getenv func(string) string) {
	if lvl, ok := parseLevel(getenv(EnvLogLevel)); ok {
		s.level = lvl
	}
	if v, ok := parseBool(getenv(EnvLogTimestamp)); ok {
		s.timestamp = v
	}
	if v, ok := parseBool(getenv(EnvLogNoColor)); ok {
		s.noColor = v
	}
}

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
