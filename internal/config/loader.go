package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"wsruntime/pkg/logging"
)

// For mocking in tests
var osUserHomeDir = os.UserHomeDir
var osGetwd = os.Getwd

const (
	userConfigDir    = ".config/wsctl"
	projectConfigDir = ".wsctl"
	configFileName   = "config.yaml"
)

// LoadConfig loads the wsctl configuration by layering default, user, and project settings.
func LoadConfig() (WsctlConfig, error) {
	config := GetDefaultConfig()

	userConfigPath, err := getUserConfigPath()
	if err != nil {
		// User config is optional.
		logging.Warn("Config", "Could not determine user config path: %v", err)
	} else if config, err = overlayIfExists(config, userConfigPath); err != nil {
		return WsctlConfig{}, fmt.Errorf("error loading user config from %s: %w", userConfigPath, err)
	}

	projectConfigPath, err := getProjectConfigPath()
	if err != nil {
		logging.Warn("Config", "Could not determine project config path: %v", err)
	} else if config, err = overlayIfExists(config, projectConfigPath); err != nil {
		return WsctlConfig{}, fmt.Errorf("error loading project config from %s: %w", projectConfigPath, err)
	}

	if err := config.Validate(); err != nil {
		return WsctlConfig{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// LoadConfigFromPath layers a single explicit file over the defaults. User
// and project files are ignored.
func LoadConfigFromPath(path string) (WsctlConfig, error) {
	overlay, err := loadConfigFromFile(path)
	if err != nil {
		return WsctlConfig{}, fmt.Errorf("error loading config from %s: %w", path, err)
	}
	config := mergeConfigs(GetDefaultConfig(), overlay)
	if err := config.Validate(); err != nil {
		return WsctlConfig{}, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return config, nil
}

func overlayIfExists(base WsctlConfig, path string) (WsctlConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return base, nil
	}
	overlay, err := loadConfigFromFile(path)
	if err != nil {
		return base, err
	}
	logging.Debug("Config", "Loaded configuration from %s", path)
	return mergeConfigs(base, overlay), nil
}

var getUserConfigPath = func() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

var getProjectConfigPath = func() (string, error) {
	wd, err := osGetwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, projectConfigDir, configFileName), nil
}

// loadConfigFromFile loads a WsctlConfig from a YAML file.
func loadConfigFromFile(filePath string) (WsctlConfig, error) {
	var config WsctlConfig
	data, err := os.ReadFile(filePath)
	if err != nil {
		return WsctlConfig{}, err
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return WsctlConfig{}, err
	}
	return config, nil
}

// mergeConfigs merges 'overlay' config into 'base' config. Set fields of the
// overlay win.
func mergeConfigs(base, overlay WsctlConfig) WsctlConfig {
	merged := base

	mergeString(&merged.Infrastructure, overlay.Infrastructure)

	mergeString(&merged.Exposure.Strategy, overlay.Exposure.Strategy)
	mergeString(&merged.Exposure.Domain, overlay.Exposure.Domain)
	mergeString(&merged.Exposure.Host, overlay.Exposure.Host)
	mergeString(&merged.Exposure.Protocol, overlay.Exposure.Protocol)
	if overlay.Exposure.Port != 0 {
		merged.Exposure.Port = overlay.Exposure.Port
	}

	mergeString(&merged.Kubernetes.Context, overlay.Kubernetes.Context)
	mergeString(&merged.Kubernetes.Namespace, overlay.Kubernetes.Namespace)
	mergeString(&merged.Kubernetes.IngressClass, overlay.Kubernetes.IngressClass)

	mergeString(&merged.Docker.Host, overlay.Docker.Host)
	mergeString(&merged.Docker.Network, overlay.Docker.Network)

	mergeString(&merged.Defaults.MemoryLimit, overlay.Defaults.MemoryLimit)

	return merged
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// GetUserConfigDir returns the user configuration directory path
func GetUserConfigDir() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir), nil
}
