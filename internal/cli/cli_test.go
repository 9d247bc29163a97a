package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	cfg, exit, err := Parse([]string{"live/main.hcl"}, out)
	require.NoError(t, err)
	require.False(t, exit)

	assert.Equal(t, "live/main.hcl", cfg.PatchPath)
	assert.Equal(t, 48000, cfg.SampleRate)
	assert.Equal(t, 256, cfg.BlockSize)
	assert.Equal(t, "oto", cfg.Driver)
	assert.True(t, cfg.MIDI)
	assert.False(t, cfg.Watch)
	assert.Zero(t, cfg.MonitorPort)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestParseFlagsOverrideDefaults(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	cfg, exit, err := Parse([]string{
		"-patch", "set.hcl",
		"-sample-rate", "44100",
		"-block-size", "128",
		"-driver", "headless",
		"-watch",
		"-midi=false",
		"-monitor-port", "9090",
		"-log-format", "json",
		"-log-level", "debug",
	}, out)
	require.NoError(t, err)
	require.False(t, exit)

	assert.Equal(t, "set.hcl", cfg.PatchPath)
	assert.Equal(t, 44100, cfg.SampleRate)
	assert.Equal(t, 128, cfg.BlockSize)
	assert.Equal(t, "headless", cfg.Driver)
	assert.True(t, cfg.Watch)
	assert.False(t, cfg.MIDI)
	assert.Equal(t, 9090, cfg.MonitorPort)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestParseShorthandPath(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	cfg, exit, err := Parse([]string{"-p", "gig.hcl"}, out)
	require.NoError(t, err)
	require.False(t, exit)
	assert.Equal(t, "gig.hcl", cfg.PatchPath)
}

func TestParseNoPathPrintsUsage(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	cfg, exit, err := Parse(nil, out)
	require.NoError(t, err)
	assert.True(t, exit)
	assert.Nil(t, cfg)
	assert.Contains(t, out.String(), "Usage:")
}

func TestParseHelpFlag(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	cfg, exit, err := Parse([]string{"-h"}, out)
	require.NoError(t, err)
	assert.True(t, exit)
	assert.Nil(t, cfg)
	assert.Contains(t, out.String(), "Usage:")
}

func TestParseRejectsBadValues(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		args []string
		want string
	}{
		{"log format", []string{"-log-format", "yaml", "main.hcl"}, "invalid log-format"},
		{"log level", []string{"-log-level", "loud", "main.hcl"}, "invalid log-level"},
		{"driver", []string{"-driver", "pulse", "main.hcl"}, "unknown audio driver"},
		{"sample rate", []string{"-sample-rate", "300", "main.hcl"}, "sample rate"},
		{"block size", []string{"-block-size", "7", "main.hcl"}, "block size"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			_, _, err := Parse(tc.args, out)
			require.Error(t, err)

			exitErr, ok := err.(*ExitError)
			require.True(t, ok, "expected an ExitError, got %T", err)
			assert.Equal(t, 2, exitErr.Code)
			assert.Contains(t, exitErr.Message, tc.want)
		})
	}
}

func TestParseUnknownFlag(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	_, _, err := Parse([]string{"--this-is-not-a-valid-flag"}, out)
	require.Error(t, err)

	exitErr, ok := err.(*ExitError)
	require.True(t, ok)
	assert.Equal(t, 2, exitErr.Code)
	assert.Contains(t, exitErr.Message, "flag provided but not defined")
}
