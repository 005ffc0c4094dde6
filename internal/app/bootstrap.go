package app

import (
	"fmt"
	"io"
	"os"

	"wsruntime/internal/config"
	"wsruntime/internal/runtime"
	"wsruntime/pkg/logging"
)

// logOutput is where bootstrap logs go. Stdout is reserved for command output.
var logOutput io.Writer = os.Stderr

// Application is the main application structure that bootstraps wsctl
type Application struct {
	config   *Config
	services *Services
}

// NewApplication initializes logging, loads the configuration and builds the
// backend selected by it.
func NewApplication(cfg *Config) (*Application, error) {
	logging.Init(cfg.LogFormat, cfg.LogLevel(), logOutput)

	var wsctlCfg config.WsctlConfig
	var err error

	if cfg.ConfigPath != "" {
		wsctlCfg, err = config.LoadConfigFromPath(cfg.ConfigPath)
		if err != nil {
			logging.Error("Bootstrap", err, "Failed to load wsctl configuration from path: %s", cfg.ConfigPath)
			return nil, fmt.Errorf("failed to load wsctl configuration from path %s: %w", cfg.ConfigPath, err)
		}
		logging.Debug("Bootstrap", "Loaded configuration from custom path: %s", cfg.ConfigPath)
	} else {
		wsctlCfg, err = config.LoadConfig()
		if err != nil {
			logging.Error("Bootstrap", err, "Failed to load wsctl configuration")
			return nil, fmt.Errorf("failed to load wsctl configuration: %w", err)
		}
		logging.Debug("Bootstrap", "Loaded configuration using layered approach")
	}

	cfg.WsctlConfig = &wsctlCfg

	services, err := InitializeServices(wsctlCfg)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to initialize %s infrastructure", wsctlCfg.Infrastructure)
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return &Application{
		config:   cfg,
		services: services,
	}, nil
}

// Orchestrator returns the runtime orchestrator for the configured backend.
func (a *Application) Orchestrator() *runtime.Orchestrator {
	return a.services.Orchestrator
}

// Config returns the loaded wsctl configuration.
func (a *Application) Config() config.WsctlConfig {
	return *a.config.WsctlConfig
}

// Close releases backend connections.
func (a *Application) Close() error {
	if a.services.closer == nil {
		return nil
	}
	return a.services.closer.Close()
}
