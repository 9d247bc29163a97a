package app

import (
	"io"
	"log/slog"

	"github.com/Cignor/Collider-sub010/internal/registry"
)

// App encapsulates the application's dependencies, configuration, and
// lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	config   *Config
	registry *registry.Registry
}

// New is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger and a registry
// holding the given module types; an empty module list means the built-in
// set.
func New(outW io.Writer, cfg *Config, modules ...registry.Module) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	logger.Debug("Logger configured successfully.")

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All module types registered.", "types", reg.Types())

	return &App{outW: outW, logger: logger, config: cfg, registry: reg}
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}
