package app

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/Cignor/Collider-sub010/internal/audiodev"
	"github.com/Cignor/Collider-sub010/internal/ctxlog"
	"github.com/Cignor/Collider-sub010/internal/engine"
	"github.com/Cignor/Collider-sub010/internal/metrics"
	"github.com/Cignor/Collider-sub010/internal/mididev"
	"github.com/Cignor/Collider-sub010/internal/patch"
)

// Run brings the engine up, applies the patch, starts the audio driver, and
// blocks until ctx is cancelled. Teardown happens in reverse order on the
// way out.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	met := metrics.New()

	var midiSrc mididev.Source
	if a.config.MIDI {
		manager, err := mididev.NewManager(ctx)
		if err != nil {
			a.logger.Warn("MIDI backend unavailable, continuing without device input", "error", err)
		} else {
			defer manager.Close()
			midiSrc = manager
		}
	}

	eng := engine.New(engine.Config{
		SampleRate: float64(a.config.SampleRate),
		BlockSize:  a.config.BlockSize,
		Registry:   a.registry,
		MIDI:       midiSrc,
		Metrics:    met,
		Logger:     a.logger,
	})
	defer eng.Close()

	doc, err := patch.Load(ctx, a.config.PatchPath)
	if err != nil {
		return fmt.Errorf("failed to load patch: %w", err)
	}
	if err := a.applyPatch(ctx, eng, nil, doc); err != nil {
		return err
	}

	driver, err := a.newDriver()
	if err != nil {
		return err
	}
	if err := driver.Start(ctx, eng.RenderBlock); err != nil {
		return fmt.Errorf("failed to start audio driver %q: %w", a.config.Driver, err)
	}
	eng.SetRenderActive(true)
	defer func() {
		eng.SetRenderActive(false)
		_ = driver.Stop()
	}()
	a.logger.Info("🔊 Audio running",
		"driver", a.config.Driver,
		"sampleRate", a.config.SampleRate,
		"blockSize", a.config.BlockSize,
	)

	group, gctx := errgroup.WithContext(ctx)

	if a.config.MonitorPort > 0 {
		mon := a.newMonitor(eng, met, a.config.MonitorPort)
		mon.start()
		group.Go(func() error {
			mon.scanLoop(gctx)
			return nil
		})
		group.Go(func() error {
			<-gctx.Done()
			return mon.shutdown()
		})
	}

	if a.config.Watch {
		group.Go(func() error {
			last := doc
			return patch.Watch(gctx, []string{a.config.PatchPath}, func(next *patch.Document) {
				if err := a.applyPatch(gctx, eng, last, next); err != nil {
					a.logger.Error("Patch reload rejected, keeping the running graph", "error", err)
					return
				}
				last = next
			})
		})
	}

	<-gctx.Done()
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.logger.Info("🏁 Shut down cleanly.")
	return nil
}

// applyPatch lands the diff between two documents as one commit and pushes
// the new transport settings. A preparation failure is not fatal: the commit
// has landed with the failed module bypassed, so the rest of the patch plays.
func (a *App) applyPatch(ctx context.Context, eng *engine.Engine, old, next *patch.Document) error {
	edits := patch.Diff(old, next)
	if err := eng.Apply(ctx, edits...); err != nil {
		var prep *engine.PreparationError
		if !errors.As(err, &prep) {
			return fmt.Errorf("failed to apply patch: %w", err)
		}
		a.logger.Warn("Patch applied with bypassed modules", "error", err)
	}
	next.ApplyTransport(eng.Transport())
	a.logger.Info("Patch applied.",
		"modules", len(next.Modules),
		"cables", len(next.Cables),
		"edits", len(edits),
	)
	return nil
}

func (a *App) newDriver() (audiodev.Driver, error) {
	switch a.config.Driver {
	case "headless":
		return audiodev.NewHeadlessDriver(audiodev.HeadlessConfig{
			SampleRate:  a.config.SampleRate,
			BlockFrames: a.config.BlockSize,
			Realtime:    true,
		}), nil
	case "oto":
		return audiodev.NewOtoDriver(a.config.SampleRate, a.config.BlockSize), nil
	default:
		return nil, fmt.Errorf("unknown audio driver %q", a.config.Driver)
	}
}
