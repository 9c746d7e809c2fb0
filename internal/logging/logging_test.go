package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vals map[string]string) func(string) string {
	return func(k string) string { return vals[k] }
}

func TestNew_JSONWhenNotATerminal(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Out: &buf, Getenv: env(nil)})

	log.Debug().Msg("hidden")
	log.Info().Str("ecosystem", "npm").Msg("detected")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "npm", entry["ecosystem"])
	assert.Contains(t, entry, "time")
}

func TestNew_EnvOverrides(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Out: &buf, Getenv: env(map[string]string{
		EnvLogLevel:     "warn",
		EnvLogTimestamp: "false",
	})})

	log.Info().Msg("hidden")
	log.Warn().Msg("shown")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "shown", entry["message"])
	assert.NotContains(t, entry, "time")
}

func TestNew_VerboseWinsOverEnv(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Out: &buf, Verbose: true, Getenv: env(map[string]string{EnvLogLevel: "error"})})
	assert.Equal(t, zerolog.DebugLevel, log.GetLevel())
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want zerolog.Level
		ok   bool
	}{
		{"", zerolog.InfoLevel, false},
		{"DEBUG", zerolog.DebugLevel, true},
		{" warning ", zerolog.WarnLevel, true},
		{"off", zerolog.Disabled, true},
		{"loud", zerolog.InfoLevel, false},
	}
	for _, tc := range cases {
		got, ok := parseLevel(tc.in)
		assert.Equal(t, tc.want, got, tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
	}
}
