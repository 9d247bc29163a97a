package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/Cignor/Collider-sub010/internal/engine"
	"github.com/Cignor/Collider-sub010/internal/metrics"
	"github.com/Cignor/Collider-sub010/internal/transport"
)

// rhythmScanInterval paces the rhythm provider scan. UIs poll /rhythm at
// human rates, so half a second of staleness is invisible.
const rhythmScanInterval = 500 * time.Millisecond

// monitor is the control-plane HTTP surface: health, Prometheus metrics, the
// most recent rhythm scan, and a graph dump for external UIs.
type monitor struct {
	logger *slog.Logger
	eng    *engine.Engine
	server *http.Server

	rhythm atomic.Pointer[[]transport.RhythmInfo]
}

func (a *App) newMonitor(eng *engine.Engine, met *metrics.Metrics, port int) *monitor {
	m := &monitor{logger: a.logger, eng: eng}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", m.handleHealth)
	mux.Handle("/metrics", met.Handler())
	mux.HandleFunc("/rhythm", m.handleRhythm)
	mux.HandleFunc("/graph", m.handleGraph)

	m.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	return m
}

// start runs the server in a goroutine so it doesn't block.
func (m *monitor) start() {
	m.logger.Info("🩺 Monitor server starting", "address", fmt.Sprintf("http://localhost%s/healthz", m.server.Addr))
	go func() {
		// ListenAndServe returns ErrServerClosed on graceful shutdown; that
		// is not a failure.
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("Monitor server failed unexpectedly", "error", err)
		}
	}()
}

// shutdown drains in-flight requests before returning.
func (m *monitor) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	m.logger.Info("🩺 Shutting down monitor server...")
	if err := m.server.Shutdown(ctx); err != nil {
		m.logger.Error("Monitor server shutdown failed", "error", err)
		return err
	}
	return nil
}

// scanLoop snapshots the rhythm providers until ctx is done. /rhythm serves
// whatever the last scan saw.
func (m *monitor) scanLoop(ctx context.Context) {
	tick := time.NewTicker(rhythmScanInterval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			infos := m.eng.RhythmReport()
			m.rhythm.Store(&infos)
		}
	}
}

func (m *monitor) handleHealth(w http.ResponseWriter, r *http.Request) {
	m.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func (m *monitor) handleRhythm(w http.ResponseWriter, _ *http.Request) {
	infos := []transport.RhythmInfo{}
	if p := m.rhythm.Load(); p != nil {
		infos = *p
	}
	writeJSON(w, infos)
}

// graphCable is the wire form of a cable, using the same "module.pin"
// addresses patch files use.
type graphCable struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type graphReport struct {
	Modules []engine.ModuleInfo `json:"modules"`
	Cables  []graphCable        `json:"cables"`
}

func (m *monitor) handleGraph(w http.ResponseWriter, _ *http.Request) {
	report := graphReport{
		Modules: m.eng.Modules(),
		Cables:  []graphCable{},
	}
	for _, c := range m.eng.Cables() {
		report.Cables = append(report.Cables, graphCable{
			From: c.From.String(),
			To:   c.To.String(),
		})
	}
	writeJSON(w, report)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
