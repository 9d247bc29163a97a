package app

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Cignor/Collider-sub010/internal/registry"
	"github.com/Cignor/Collider-sub010/internal/testutil"
)

// SetupAppTest creates a new app instance for system testing. Logs land in
// the returned buffer at debug level, the driver defaults to headless, and
// MIDI stays off so tests never touch real hardware.
func SetupAppTest(t *testing.T, cfg Config, modules ...registry.Module) (*App, *testutil.SafeBuffer) {
	t.Helper()

	logBuffer := &testutil.SafeBuffer{}
	cfg.LogLevel = "debug"
	cfg.MIDI = false
	if cfg.Driver == "" {
		cfg.Driver = "headless"
	}

	validated, err := NewConfig(cfg)
	require.NoError(t, err)
	return New(logBuffer, validated, modules...), logBuffer
}
