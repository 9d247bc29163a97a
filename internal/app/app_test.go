package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cignor/Collider-sub010/internal/transport"
)

const tonePatch = `
module "oscillator" "osc1" {
  params {
    freq = 220
  }
}

module "output" "main" {
}

cable {
  from = "osc1.out"
  to   = "main.in_l"
}

transport {
  bpm     = 100
  playing = true
}
`

// freePort grabs an ephemeral port for the monitor server.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func writePatch(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// runApp starts Run on a goroutine. The returned stop cancels it and waits
// for a clean return.
func runApp(t *testing.T, a *App) (stop func() error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx) }()
	return func() error {
		cancel()
		select {
		case err := <-errCh:
			return err
		case <-time.After(10 * time.Second):
			t.Fatal("Run did not return after cancel")
			return nil
		}
	}
}

func getJSON(t *testing.T, url string, v any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func waitHealthy(t *testing.T, base string) {
	t.Helper()
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)
}

func TestRunServesMonitorEndpoints(t *testing.T) {
	dir := t.TempDir()
	writePatch(t, dir, "main.hcl", tonePatch)
	port := freePort(t)

	a, _ := SetupAppTest(t, Config{PatchPath: dir, MonitorPort: port})
	stop := runApp(t, a)
	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	waitHealthy(t, base)

	var report graphReport
	getJSON(t, base+"/graph", &report)
	require.Len(t, report.Modules, 2)
	require.Len(t, report.Cables, 1)
	assert.Equal(t, "osc1.out", report.Cables[0].From)
	assert.Equal(t, "main.in_l", report.Cables[0].To)

	resp, err := http.Get(base + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "collider_blocks_rendered_total")

	require.NoError(t, stop())
}

func TestRhythmEndpointSeesProviders(t *testing.T) {
	dir := t.TempDir()
	writePatch(t, dir, "main.hcl", `
module "sequencer" "seq" {
  params {
    steps = 4
  }
}

transport {
  bpm     = 120
  playing = true
}
`)
	port := freePort(t)

	a, _ := SetupAppTest(t, Config{PatchPath: dir, MonitorPort: port})
	stop := runApp(t, a)
	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	waitHealthy(t, base)

	require.Eventually(t, func() bool {
		var infos []transport.RhythmInfo
		getJSON(t, base+"/rhythm", &infos)
		return len(infos) == 1 && infos[0].SourceType == "sequencer" && infos[0].IsActive
	}, 3*time.Second, 50*time.Millisecond)

	require.NoError(t, stop())
}

func TestWatchReloadsPatch(t *testing.T) {
	dir := t.TempDir()
	writePatch(t, dir, "main.hcl", tonePatch)
	port := freePort(t)

	a, _ := SetupAppTest(t, Config{PatchPath: dir, MonitorPort: port, Watch: true})
	stop := runApp(t, a)
	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	waitHealthy(t, base)

	var report graphReport
	getJSON(t, base+"/graph", &report)
	require.Len(t, report.Modules, 2)

	writePatch(t, dir, "main.hcl", tonePatch+`
module "filter" "flt" {
}
`)
	require.Eventually(t, func() bool {
		var r graphReport
		getJSON(t, base+"/graph", &r)
		return len(r.Modules) == 3
	}, 5*time.Second, 50*time.Millisecond)

	require.NoError(t, stop())
}

func TestBrokenModuleIsBypassedNotFatal(t *testing.T) {
	dir := t.TempDir()
	writePatch(t, dir, "main.hcl", `
module "sampler" "smp" {
  params {
    file = "/nonexistent/loop.wav"
  }
}

module "output" "main" {
}
`)
	port := freePort(t)

	a, logBuffer := SetupAppTest(t, Config{PatchPath: dir, MonitorPort: port})
	stop := runApp(t, a)
	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	waitHealthy(t, base)

	var report graphReport
	getJSON(t, base+"/graph", &report)
	require.Len(t, report.Modules, 2)
	for _, m := range report.Modules {
		if m.ID == "smp" {
			assert.True(t, m.Bypassed)
		}
	}
	assert.Contains(t, logBuffer.String(), "bypassed")

	require.NoError(t, stop())
}

func TestRunFailsOnBrokenPatch(t *testing.T) {
	dir := t.TempDir()
	writePatch(t, dir, "main.hcl", `module "oscillator" {`)

	a, _ := SetupAppTest(t, Config{PatchPath: dir})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := a.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse")
}

func TestRunFailsOnUnknownModuleType(t *testing.T) {
	dir := t.TempDir()
	writePatch(t, dir, "main.hcl", `module "warpdrive" "w" {}`)

	a, _ := SetupAppTest(t, Config{PatchPath: dir})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := a.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown module type")
}
