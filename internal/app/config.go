package app

import (
	"wsruntime/internal/config"
	"wsruntime/pkg/logging"
)

// Config holds the application configuration
type Config struct {
	// ConfigPath is an explicit configuration file. Empty selects the
	// layered user and project files.
	ConfigPath string

	// Debug settings
	Debug bool

	// LogFormat is "text" or "json".
	LogFormat logging.Format

	// Loaded wsctl configuration, set by NewApplication.
	WsctlConfig *config.WsctlConfig
}

// NewConfig creates a new application configuration
func NewConfig(configPath string, debug bool, logFormat string) *Config {
	format := logging.FormatText
	if logFormat == string(logging.FormatJSON) {
		format = logging.FormatJSON
	}
	return &Config{
		ConfigPath: configPath,
		Debug:      debug,
		LogFormat:  format,
	}
}

// LogLevel returns the level selected by the debug flag.
func (c *Config) LogLevel() logging.LogLevel {
	if c.Debug {
		return logging.LevelDebug
	}
	return logging.LevelInfo
}
